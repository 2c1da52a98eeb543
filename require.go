// require.go — the module loader behind the `require` builtin.
//
// Resolution: a relative path is first tried against the directory of the
// file the requiring expression came from (when known), then as given.
// Candidates that exist are canonicalized, and the canonical path is the
// cache key. While a module loads its cache entry is nil, so a re-entrant
// require of the same module during its own evaluation returns nil instead
// of recursing. The module's value is its last top-level expression.
package vdlisp

import (
	"os"
	"path/filepath"
	"strings"
)

func registerRequire(s *State) {
	s.registerBuiltin("require", func(s *State, args Value) Value {
		v := pairCar(args)
		if v.Tag() != VTString {
			throwRuntime("require requires a string")
		}
		return s.requirePath(v.Text())
	})
}

func (s *State) requirePath(name string) Value {
	var candidates []string
	if name != "" && !filepath.IsAbs(name) {
		if loc, ok := s.sourceLoc(s.currentExpr); ok && loc.File != "" {
			if dir := filepath.Dir(loc.File); dir != "" && dir != "." {
				candidates = append(candidates, filepath.Join(dir, name))
			}
		}
	}
	candidates = append(candidates, name)

	var tried []string
	for _, cand := range candidates {
		key := cand
		if _, err := os.Stat(cand); err == nil {
			key = canonicalPath(cand)
		}
		if cached, ok := s.loadedModules[key]; ok {
			return cached
		}
		text, err := os.ReadFile(key)
		if err != nil {
			if text, err = os.ReadFile(cand); err != nil {
				tried = append(tried, key)
				continue
			}
		}
		// Nil placeholder guards against require cycles.
		s.loadedModules[key] = Value{}
		prog := s.ParseAll(string(text), key)
		var res Value
		if !prog.IsNil() {
			res = s.DoList(prog, s.Global)
		}
		s.loadedModules[key] = res
		return res
	}

	throwRuntime("could not open file: " + name + " (tried: " + strings.Join(tried, ", ") + ")")
	return Value{}
}

func canonicalPath(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
