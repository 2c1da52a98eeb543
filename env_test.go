package vdlisp

import "testing"

func Test_Env_bind_and_lookup(t *testing.T) {
	s := NewState()
	e := s.MakeEnv(s.Global)
	defer releaseEnv(e)

	sym := s.Intern("x")
	s.Bind(sym, NumberValue(1), e)
	if v, ok := lookupPresent(e, "x"); !ok || v.Number() != 1 {
		t.Fatal("x should be bound to 1")
	}

	// bound-to-nil is present, unbound is not
	s.Bind(s.Intern("z"), Value{}, e)
	if _, ok := lookupPresent(e, "z"); !ok {
		t.Fatal("z is bound to nil, not unbound")
	}
	if _, ok := lookupPresent(e, "missing"); ok {
		t.Fatal("missing should be unbound")
	}
}

func Test_Env_set_overwrites_nearest(t *testing.T) {
	s := NewState()
	outer := s.MakeEnv(s.Global)
	inner := s.MakeEnv(outer)
	defer releaseEnv(inner)
	defer releaseEnv(outer)

	sym := s.Intern("x")
	s.Bind(sym, NumberValue(1), outer)
	s.Set(sym, NumberValue(2), inner)
	if v, _ := lookupPresent(outer, "x"); v.Number() != 2 {
		t.Fatal("set should overwrite the outer binding")
	}
	if _, ok := inner.table["x"]; ok {
		t.Fatal("set must not shadow when an outer binding exists")
	}

	// no binding anywhere: set binds locally
	s.Set(s.Intern("fresh"), NumberValue(3), inner)
	if _, ok := inner.table["fresh"]; !ok {
		t.Fatal("set should bind locally when the name is unbound")
	}
}

func Test_Env_bind_rejects_non_symbols(t *testing.T) {
	s := NewState()
	defer func() {
		le := recoverLispError(recover())
		if le == nil {
			t.Fatal("bind of a number key should fail")
		}
		wantErrContains(t, le, "bind expects a symbol")
	}()
	s.Bind(NumberValue(1), NumberValue(2), s.Global)
}

func Test_Env_parent_refcounting(t *testing.T) {
	s := NewState()
	parent := s.MakeEnv(s.Global)
	child := s.MakeEnv(parent)
	if parent.refs != 2 {
		t.Fatalf("parent refs = %d, want 2 (ours + child's)", parent.refs)
	}
	releaseEnv(child)
	if parent.refs != 1 {
		t.Fatalf("parent refs = %d after child release, want 1", parent.refs)
	}
	releaseEnv(parent)
}

func Test_Env_interning_is_global(t *testing.T) {
	s := NewState()
	a := s.Intern("same")
	b := s.Intern("same")
	if a.identityKey() != b.identityKey() {
		t.Fatal("interned symbols with equal text must share a record")
	}
	if a.Text() != "same" {
		t.Fatal("symbol text should round-trip")
	}
}

func Test_Env_truthy_symbol_bound_at_startup(t *testing.T) {
	s := NewState()
	v := evalString(t, s, `#t`)
	if v.Tag() != VTSymbol || v.Text() != "#t" {
		t.Fatal("#t should evaluate to itself")
	}
}
