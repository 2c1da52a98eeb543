package vdlisp

import (
	"strings"
	"testing"
)

func renderErr(t *testing.T, s *State, src string) string {
	t.Helper()
	_, err := s.EvalSource(src, "t.lisp")
	if err == nil {
		t.Fatalf("eval %q: expected error", src)
	}
	var buf strings.Builder
	s.reportError(&buf, err, false)
	return buf.String()
}

func Test_Errors_header_format(t *testing.T) {
	s := NewState()
	out := renderErr(t, s, `(+ 1 nil)`)
	if !strings.HasPrefix(out, "error: t.lisp:1:1: +: expected number, got nil\n") {
		t.Fatalf("unexpected header:\n%s", out)
	}
	if !strings.Contains(out, "(+ 1 nil)\n^\n") {
		t.Fatalf("source line with caret at column 1 expected:\n%s", out)
	}
}

func Test_Errors_parse_error_snippet(t *testing.T) {
	s := NewState()
	out := renderErr(t, s, "(")
	if !strings.Contains(out, "unexpected EOF while reading list") {
		t.Fatalf("missing message:\n%s", out)
	}
	if !strings.Contains(out, "(\n^\n") {
		t.Fatalf("caret should sit under column 1:\n%s", out)
	}
}

func Test_Errors_caret_preserves_tabs(t *testing.T) {
	s := NewState()
	out := renderErr(t, s, "\t(car 5)")
	if !strings.Contains(out, "\t(car 5)\n\t^\n") {
		t.Fatalf("caret padding should copy the leading tab:\n%q", out)
	}
}

func Test_Errors_caret_column(t *testing.T) {
	s := NewState()
	out := renderErr(t, s, "  bad-symbol")
	if !strings.Contains(out, "  bad-symbol\n  ^\n") {
		t.Fatalf("caret should sit under column 3:\n%q", out)
	}
}

func Test_Errors_call_chain_block(t *testing.T) {
	s := NewState()
	evalString(t, s, `(set m (macro () (error "inside")))`)
	out := renderErr(t, s, `(m)`)
	if !strings.Contains(out, "Call chain:") {
		t.Fatalf("call chain block expected:\n%s", out)
	}
	if !strings.Contains(out, "at macro m ") {
		t.Fatalf("call-site frame with macro label expected:\n%s", out)
	}
	if !strings.Contains(out, "at macro-def ") {
		t.Fatalf("macro definition frame expected:\n%s", out)
	}
}

func Test_Errors_fn_frame(t *testing.T) {
	s := NewState()
	evalString(t, s, `(set boom (fn () (error "kapow")))`)
	_, err := s.EvalSource(`(boom)`, "t.lisp")
	le, ok := err.(*LispError)
	if !ok {
		t.Fatalf("want *LispError, got %T", err)
	}
	if len(le.Chain) == 0 || le.Chain[0].Label != "fn" {
		t.Fatalf("function call frame expected, got %+v", le.Chain)
	}
}

func Test_Errors_location_falls_back_to_current_expr(t *testing.T) {
	s := NewState()
	le := evalErr(t, s, "\n\n  (error \"late\")")
	if !le.HasLoc || le.Loc.Line != 3 || le.Loc.Col != 3 {
		t.Fatalf("fallback location should be the failing expression, got %+v", le.Loc)
	}
}

func Test_Errors_plain_error_without_location(t *testing.T) {
	s := NewState()
	var buf strings.Builder
	s.reportError(&buf, &LispError{Msg: "floating"}, false)
	if buf.String() != "error: floating\n" {
		t.Fatalf("plain rendering expected, got %q", buf.String())
	}
}

func Test_Errors_color_wraps_header(t *testing.T) {
	s := NewState()
	_, err := s.EvalSource(`(car 7)`, "t.lisp")
	var buf strings.Builder
	s.reportError(&buf, err, true)
	if !strings.Contains(buf.String(), ansiRed) || !strings.Contains(buf.String(), ansiReset) {
		t.Fatalf("colored rendering should use ANSI escapes:\n%q", buf.String())
	}
}
