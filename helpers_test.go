package vdlisp

import (
	"strings"
	"testing"
)

// evalString evaluates src in s and returns the last top-level value,
// failing the test on any error.
func evalString(t *testing.T, s *State, src string) Value {
	t.Helper()
	v, err := s.EvalSource(src, "(test)")
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return v
}

// evalErr evaluates src expecting a failure and returns it.
func evalErr(t *testing.T, s *State, src string) *LispError {
	t.Helper()
	_, err := s.EvalSource(src, "(test)")
	if err == nil {
		t.Fatalf("eval %q: expected error, got none", src)
	}
	le, ok := err.(*LispError)
	if !ok {
		t.Fatalf("eval %q: error is %T, want *LispError", src, err)
	}
	return le
}

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q should contain %q", err.Error(), sub)
	}
}

func mustNumber(t *testing.T, v Value) float64 {
	t.Helper()
	if v.Tag() != VTNumber {
		t.Fatalf("want number, got %s", v.TypeName())
	}
	return v.Number()
}

func wantNumber(t *testing.T, v Value, n float64) {
	t.Helper()
	if got := mustNumber(t, v); got != n {
		t.Fatalf("want %v, got %v", n, got)
	}
}

func wantRepr(t *testing.T, s *State, v Value, repr string) {
	t.Helper()
	if got := s.ToString(v); got != repr {
		t.Fatalf("want %q, got %q", repr, got)
	}
}
