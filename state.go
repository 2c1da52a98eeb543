// state.go — the interpreter state: global environment, symbol intern
// table, source registry and the sidecar maps that attach locations and
// call chains to AST nodes without touching the nodes themselves.
package vdlisp

// State owns every process-wide structure of one interpreter instance. The
// runtime is single-threaded; nothing here is locked.
type State struct {
	Global *Env

	symbolIntern map[string]Value

	// currentExpr is the expression under evaluation. It is restored on
	// successful evaluation and deliberately left pointing at the failing
	// expression on unwind, so the top level can report a location for
	// errors that carry none.
	currentExpr Value

	// Sidecar maps keyed by value identity.
	srcMap       map[any]SourceLoc
	callChainMap map[any][]SourceLoc

	// Raw source text per registered name, for snippet rendering.
	sources map[string]string

	// Module cache for require, keyed by canonical path. An in-progress
	// load holds a nil entry so re-entrant requires of the same module
	// return nil instead of recursing.
	loadedModules map[string]Value
}

// NewState builds a ready interpreter: fresh global environment, core
// builtins and primitives registered, and the truthy symbol #t bound to
// itself.
func NewState() *State {
	s := &State{
		symbolIntern:  make(map[string]Value, 256),
		srcMap:        make(map[any]SourceLoc),
		callChainMap:  make(map[any][]SourceLoc),
		sources:       make(map[string]string),
		loadedModules: make(map[string]Value, 64),
	}
	s.Global = s.MakeEnv(nil)
	registerCore(s)
	s.BindGlobal("#t", s.Intern("#t"))
	return s
}

// BindGlobal binds name in the global environment.
func (s *State) BindGlobal(name string, v Value) {
	s.Global.bindName(name, v)
}

func (s *State) registerBuiltin(name string, fn CFn) {
	s.BindGlobal(name, CFuncValue(fn))
}

func (s *State) registerPrim(name string, fn PrimFn) {
	s.BindGlobal(name, PrimValue(fn))
}

func (s *State) setSourceLoc(v Value, loc SourceLoc) {
	key := v.identityKey()
	if key == nil {
		return
	}
	loc.Label = ""
	s.srcMap[key] = loc
}

func (s *State) sourceLoc(v Value) (SourceLoc, bool) {
	key := v.identityKey()
	if key == nil {
		return SourceLoc{}, false
	}
	loc, ok := s.srcMap[key]
	return loc, ok
}

// SourceLine returns the 1-based line of a registered source, when present.
func (s *State) SourceLine(file string, line int) (string, bool) {
	src, ok := s.sources[file]
	if !ok || line < 1 {
		return "", false
	}
	cur := 1
	start := 0
	for i := 0; i < len(src) && cur < line; i++ {
		if src[i] == '\n' {
			cur++
			start = i + 1
		}
	}
	if cur != line || start >= len(src) {
		return "", false
	}
	end := start
	for end < len(src) && src[end] != '\n' {
		end++
	}
	return src[start:end], true
}

// EvalSource parses src (registered under name) and evaluates every
// top-level expression in the global environment, returning the last value.
// All failures — parse and runtime — come back as a *LispError with the
// fallback location attached.
func (s *State) EvalSource(src, name string) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = s.attachContext(recoverLispError(r))
		}
	}()
	prog := s.ParseAll(src, name)
	return s.DoList(prog, s.Global), nil
}
