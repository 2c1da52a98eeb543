// Command vdlisp runs the interpreter: with no argument an interactive
// REPL with line history, with one argument a script file whose last value
// is printed to stdout.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/xyproto/env/v2"

	"github.com/ImVecDim/vdlisp"
)

const (
	historyFile = ".vdlisp_history"
	langBasics  = "scripts/lang_basics.lisp"
	prompt      = "> "
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := vdlisp.CheckRuntimeAssumptions(); err != nil {
		fmt.Fprintln(os.Stderr, "vdlisp: "+err.Error())
		return 1
	}

	s := vdlisp.NewState()
	defer s.Shutdown()

	// argv holds the CLI arguments after the script path.
	var tail []string
	if len(os.Args) > 2 {
		tail = os.Args[2:]
	}
	s.BindGlobal("argv", s.MakeStringList(tail))

	loadLangBasics(s)

	if len(os.Args) < 2 {
		repl(s)
		return 0
	}
	return runFile(s, os.Args[1])
}

// loadLangBasics evaluates the language-level prelude when present.
// Silent on absence and on failure: the core works without the sugar.
func loadLangBasics(s *vdlisp.State) {
	text, err := os.ReadFile(langBasics)
	if err != nil {
		return
	}
	_, _ = s.EvalSource(string(text), langBasics)
}

func runFile(s *vdlisp.State, path string) int {
	text, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open file: %s\n", path)
		return 1
	}
	v, evalErr := s.EvalSource(string(text), path)
	if evalErr != nil {
		s.ReportError(os.Stderr, evalErr)
		return 1
	}
	fmt.Println(s.ToString(v))
	return 0
}

func repl(s *vdlisp.State) {
	histPath := filepath.Join(env.Str("HOME"), historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		line, err := ln.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue // Ctrl-C cancels the line
			}
			if errors.Is(err, io.EOF) {
				fmt.Println()
			}
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)

		v, evalErr := s.EvalSource(line, "(repl)")
		if evalErr != nil {
			s.ReportError(os.Stderr, evalErr)
			continue
		}
		fmt.Println(s.ToString(v))
	}
}
