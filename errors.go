// errors.go — location-annotated errors and caret-snippet rendering.
//
// Every failure the evaluator can raise is a *LispError: a message, an
// optional primary source location, and an ordered call chain of frames
// (macro expansions and function calls) leading to the failure. Inside the
// package errors unwind as panics and are recovered at the public entry
// points (EvalSource and friends), which is also where the current-
// expression fallback location is attached.
//
// Rendering follows the reference format:
//
//	error: <file>:<line>:<col>: <message>
//	<offending source line>
//	     ^
//
// with the caret column padded tab-for-tab so it lines up under tabs, then
// an optional "Call chain:" block listing each frame with its own snippet.
// Output is colorized when stderr is a terminal or VDLISP_COLOR is set;
// NO_COLOR suppresses it.
package vdlisp

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xyproto/env/v2"
	"golang.org/x/term"
)

// SourceLoc is a (file, line, column) position, 1-based, with an optional
// frame label such as "fn", "macro foo" or "macro-def".
type SourceLoc struct {
	File  string
	Line  int
	Col   int
	Label string
}

// LispError carries a message, a primary location when one is known, and
// the call chain accumulated while unwinding.
type LispError struct {
	Msg    string
	Loc    SourceLoc
	HasLoc bool
	Chain  []SourceLoc
}

func (e *LispError) Error() string {
	if e.HasLoc {
		return fmt.Sprintf("%s:%d:%d: %s", e.Loc.File, e.Loc.Line, e.Loc.Col, e.Msg)
	}
	return e.Msg
}

// throwRuntime raises a location-less runtime error; the evaluator boundary
// attaches the current expression's location when one is known.
func throwRuntime(msg string) {
	panic(&LispError{Msg: msg})
}

func throwAt(loc SourceLoc, msg string) {
	panic(&LispError{Msg: msg, Loc: loc, HasLoc: true})
}

// recoverLispError converts a recovered panic value into *LispError,
// re-panicking anything that is not one (those are bugs, not user errors).
func recoverLispError(r any) *LispError {
	if r == nil {
		return nil
	}
	if le, ok := r.(*LispError); ok {
		return le
	}
	panic(r)
}

// withCallChain runs fn and, when a call-site location is known, prepends
// the given frames to any error unwinding out of it.
func (s *State) withCallChain(haveLoc bool, frames []SourceLoc, fn func() Value) (result Value) {
	if !haveLoc {
		return fn()
	}
	defer func() {
		if r := recover(); r != nil {
			le := recoverLispError(r)
			chain := make([]SourceLoc, 0, len(frames)+len(le.Chain))
			chain = append(chain, frames...)
			chain = append(chain, le.Chain...)
			le.Chain = chain
			if !le.HasLoc {
				le.Loc, le.HasLoc = frames[0], true
			}
			panic(le)
		}
	}()
	return fn()
}

/* ---------- rendering ---------- */

const (
	ansiRed   = "\x1b[1;31m"
	ansiBold  = "\x1b[1m"
	ansiReset = "\x1b[0m"
)

func colorEnabled() bool {
	if env.Str("NO_COLOR") != "" {
		return false
	}
	if env.Str("VDLISP_COLOR") != "" {
		return true
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// caretPad builds the whitespace run that places a caret under col (1-based)
// of line, copying tabs through so terminals keep the columns aligned.
func caretPad(line string, col int) string {
	idx := 0
	if col > 0 {
		idx = col - 1
	}
	var b strings.Builder
	for i := 0; i < idx; i++ {
		if i < len(line) && line[i] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func (s *State) writeSnippet(w io.Writer, loc SourceLoc, indent string, color bool) {
	line, ok := s.SourceLine(loc.File, loc.Line)
	if !ok {
		return
	}
	if color {
		fmt.Fprintf(w, "%s%s%s%s\n", indent, ansiBold, line, ansiReset)
		fmt.Fprintf(w, "%s%s%s^%s\n", indent, caretPad(line, loc.Col), ansiRed, ansiReset)
	} else {
		fmt.Fprintf(w, "%s%s\n", indent, line)
		fmt.Fprintf(w, "%s%s^\n", indent, caretPad(line, loc.Col))
	}
}

func (s *State) printErrorWithLoc(w io.Writer, loc SourceLoc, msg string, color bool) {
	if color {
		fmt.Fprintf(w, "%serror: %s:%d:%d: %s%s\n", ansiRed, loc.File, loc.Line, loc.Col, msg, ansiReset)
	} else {
		fmt.Fprintf(w, "error: %s:%d:%d: %s\n", loc.File, loc.Line, loc.Col, msg)
	}
	s.writeSnippet(w, loc, "", color)
}

func (s *State) printCallChain(w io.Writer, chain []SourceLoc, color bool) {
	if len(chain) == 0 {
		return
	}
	fmt.Fprintln(w, "Call chain:")
	for _, fr := range chain {
		if fr.Label != "" {
			fmt.Fprintf(w, "  at %s %s:%d:%d\n", fr.Label, fr.File, fr.Line, fr.Col)
		} else {
			fmt.Fprintf(w, "  at %s:%d:%d\n", fr.File, fr.Line, fr.Col)
		}
		s.writeSnippet(w, fr, "    ", color)
	}
}

// ReportError writes err to w in the user-visible diagnostic format. Errors
// that are not *LispError print as a bare "error: <message>" line.
func (s *State) ReportError(w io.Writer, err error) {
	s.reportError(w, err, colorEnabled())
}

func (s *State) reportError(w io.Writer, err error, color bool) {
	le, ok := err.(*LispError)
	if !ok {
		fmt.Fprintf(w, "error: %s\n", err.Error())
		return
	}
	if !le.HasLoc {
		fmt.Fprintf(w, "error: %s\n", le.Msg)
		return
	}
	s.printErrorWithLoc(w, le.Loc, le.Msg, color)
	s.printCallChain(w, le.Chain, color)
}

// attachContext fills in the fallback location and call chain from the
// expression that was under evaluation when the error unwound.
func (s *State) attachContext(le *LispError) *LispError {
	key := s.currentExpr.identityKey()
	if !le.HasLoc {
		if loc, ok := s.sourceLoc(s.currentExpr); ok {
			le.Loc, le.HasLoc = loc, true
		}
	}
	if len(le.Chain) == 0 && key != nil {
		if chain, ok := s.callChainMap[key]; ok {
			le.Chain = append(le.Chain, chain...)
		}
	}
	return le
}
