// reader.go — textual source → AST.
//
// The reader is a single-pass recursive descent over the raw bytes with a
// position/(line, column) tracker. Every atom, pair, string and quote
// wrapper it produces is recorded in the source-location side table under
// its identity key, which is what the error reporter and `require` lean on
// later. Elements of a list record the location of the list's opening
// paren; atoms and quote wrappers record their own first character.
package vdlisp

import (
	"strconv"
	"strings"
)

type reader struct {
	src  string
	name string
	pos  int
	line int
	col  int
}

func isDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f', '(', ')', '\'', '"', ';', '`', ',':
		return true
	}
	return false
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func (r *reader) advance() {
	if r.pos >= len(r.src) {
		return
	}
	if r.src[r.pos] == '\n' {
		r.line++
		r.col = 1
	} else {
		r.col++
	}
	r.pos++
}

func (r *reader) skipWsAndComments() {
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		if isSpace(c) {
			r.advance()
			continue
		}
		if c == ';' {
			for r.pos < len(r.src) && r.src[r.pos] != '\n' {
				r.advance()
			}
			continue
		}
		break
	}
}

func (r *reader) loc() SourceLoc {
	return SourceLoc{File: r.name, Line: r.line, Col: r.col}
}

// parseAt reads one expression; nil Value with ok=false signals EOF.
func (r *reader) parseAt(s *State) (Value, bool) {
	r.skipWsAndComments()
	if r.pos >= len(r.src) {
		return Value{}, false
	}
	c := r.src[r.pos]
	switch {
	case c == ')':
		throwAt(r.loc(), "unexpected )")
	case c == '(':
		return r.parseList(s), true
	case c == '\'':
		return r.parseWrapper(s, "quote"), true
	case c == '`':
		return r.parseWrapper(s, "quasiquote"), true
	case c == ',':
		return r.parseWrapper(s, "unquote"), true
	case c == '"':
		return r.parseString(s), true
	}
	return r.parseAtom(s), true
}

func (r *reader) parseList(s *State) Value {
	open := r.loc()
	r.advance()
	var head Value
	last := &head
	closed := false
	for {
		r.skipWsAndComments()
		if r.pos >= len(r.src) {
			break
		}
		if r.src[r.pos] == ')' {
			r.advance()
			closed = true
			break
		}
		e, ok := r.parseAt(s)
		if !ok {
			break
		}
		if isSymbolNamed(e, ".") {
			// dotted-tail: the next expression becomes the final cdr and
			// the list must close immediately after it.
			r.skipWsAndComments()
			if r.pos >= len(r.src) {
				throwAt(open, "unexpected EOF after . in list")
			}
			tail, ok := r.parseAt(s)
			if !ok {
				throwAt(open, "unexpected EOF after . in list")
			}
			*last = tail
			r.skipWsAndComments()
			if r.pos >= len(r.src) || r.src[r.pos] != ')' {
				throwAt(open, "expected ) after dotted-tail")
			}
			r.advance()
			closed = true
			break
		}
		*last = PairValue(e, Value{})
		s.setSourceLoc(*last, open)
		last = &(*last).Pair().Cdr
	}
	if !closed {
		throwAt(open, "unexpected EOF while reading list")
	}
	return head
}

func (r *reader) parseWrapper(s *State, sym string) Value {
	at := r.loc()
	r.advance()
	inner, _ := r.parseAt(s) // a bare quote at EOF wraps nil
	res := s.List(s.Intern(sym), inner)
	s.setSourceLoc(res, at)
	return res
}

func (r *reader) parseString(s *State) Value {
	at := r.loc()
	r.advance()
	var b strings.Builder
	for r.pos < len(r.src) && r.src[r.pos] != '"' {
		if r.src[r.pos] == '\\' && r.pos+1 < len(r.src) {
			r.advance()
			esc := r.src[r.pos]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			default:
				b.WriteByte(esc)
			}
			r.advance()
		} else {
			b.WriteByte(r.src[r.pos])
			r.advance()
		}
	}
	if r.pos >= len(r.src) {
		throwAt(at, "unexpected EOF while reading string")
	}
	r.advance() // closing quote
	v := StringValue(b.String())
	s.setSourceLoc(v, at)
	return v
}

func (r *reader) parseAtom(s *State) Value {
	at := r.loc()
	start := r.pos
	for r.pos < len(r.src) && !isDelim(r.src[r.pos]) {
		r.advance()
	}
	tok := r.src[start:r.pos]
	if n, err := strconv.ParseFloat(tok, 64); err == nil {
		v := NumberValue(n)
		s.setSourceLoc(v, at)
		return v
	}
	if tok == "nil" {
		return Value{}
	}
	v := s.Intern(tok)
	s.setSourceLoc(v, at)
	return v
}

// Parse reads a single expression from src, registering the text under name
// for later snippet rendering. Parse failures unwind as *LispError.
func (s *State) Parse(src, name string) Value {
	s.sources[name] = src
	r := &reader{src: src, name: name, line: 1, col: 1}
	v, _ := r.parseAt(s)
	return v
}

// ParseAll reads every top-level expression from src and returns them as a
// list.
func (s *State) ParseAll(src, name string) Value {
	s.sources[name] = src
	r := &reader{src: src, name: name, line: 1, col: 1}
	var head Value
	last := &head
	for {
		e, ok := r.parseAt(s)
		if !ok {
			break
		}
		*last = PairValue(e, Value{})
		last = &(*last).Pair().Cdr
	}
	return head
}

// List builds a proper list of the given items.
func (s *State) List(items ...Value) Value {
	var head Value
	last := &head
	for _, it := range items {
		*last = PairValue(it, Value{})
		last = &(*last).Pair().Cdr
	}
	return head
}

// MakeStringList builds a list of string values, used to bind argv.
func (s *State) MakeStringList(items []string) Value {
	var head Value
	last := &head
	for _, it := range items {
		*last = PairValue(StringValue(it), Value{})
		last = &(*last).Pair().Cdr
	}
	return head
}
