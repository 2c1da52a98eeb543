// interp.go — the tree-walking evaluator.
//
// Eval dispatches on the expression's kind: literals are themselves,
// symbols look up the environment chain (bound-to-nil is not unbound), and
// pairs apply their evaluated head — special forms get the raw argument
// list, macros expand in their closure environment and re-evaluate the
// expansion at the call site, functions and builtins get evaluated
// arguments. Function calls go through Call, which also owns the tiered
// native dispatch and its NaN-signalled deopt path.
package vdlisp

import "math"

// Eval evaluates expr in env (nil means the global environment).
func (s *State) Eval(expr Value, env *Env) Value {
	// currentExpr is restored only on success; an unwinding error leaves it
	// pointing at the failing expression for the top-level reporter.
	prev := s.currentExpr
	s.currentExpr = expr
	res := s.evalDispatch(expr, env)
	s.currentExpr = prev
	return res
}

func (s *State) evalDispatch(expr Value, env *Env) Value {
	if expr.IsNil() {
		return Value{}
	}
	if env == nil {
		env = s.Global
	}
	switch expr.Tag() {
	case VTSymbol:
		name := expr.Text()
		if v, ok := lookupPresent(env, name); ok {
			return v
		}
		if loc, ok := s.sourceLoc(expr); ok {
			throwAt(loc, "unbound symbol: "+name)
		}
		throwRuntime("unbound symbol: " + name)
	case VTPair:
		pd := expr.Pair()
		fn := s.Eval(pd.Car, env)
		switch fn.Tag() {
		case VTNil:
			throwRuntime("attempt to call nil")
		case VTPrim:
			return fn.Prim()(s, pd.Cdr, env)
		case VTMacro:
			return s.expandAndEvalMacro(expr, fn, env)
		default:
			args := s.evalArgs(pd.Cdr, env)
			return s.Call(fn, args)
		}
	}
	return expr
}

// evalArgs evaluates each element of list left-to-right into a fresh list.
func (s *State) evalArgs(list Value, env *Env) Value {
	var head Value
	last := &head
	for a := list; isPair(a); a = a.Pair().Cdr {
		av := s.Eval(a.Pair().Car, env)
		*last = PairValue(av, Value{})
		last = &(*last).Pair().Cdr
	}
	return head
}

// bindParams binds formals to actuals into table. A bare-symbol formal (or
// dotted tail) takes the remaining actuals as a list. For function calls
// missing actuals stop the walk early; for macro calls they bind the
// remaining formals to nil.
func bindParams(table map[string]Value, params, args Value, fillMissingWithNil bool) {
	p, a := params, args
	for !p.IsNil() {
		if p.Tag() == VTSymbol {
			table[p.Text()] = a
			a.Retain()
			return
		}
		if !isPair(p) {
			return
		}
		if !fillMissingWithNil && a.IsNil() {
			return
		}
		pcar := p.Pair().Car
		if pcar.Tag() == VTSymbol {
			var actual Value
			if isPair(a) {
				actual = a.Pair().Car
			}
			actual.Retain()
			table[pcar.Text()] = actual
		}
		p = p.Pair().Cdr
		if isPair(a) {
			a = a.Pair().Cdr
		}
	}
}

func (s *State) expandAndEvalMacro(expr, fn Value, env *Env) Value {
	md := fn.Macro()
	e := s.MakeEnv(md.ClosureEnv)
	defer releaseEnv(e)
	bindParams(e.table, md.Params, expr.Pair().Cdr, true)

	// Call-site location plus, when known, the macro definition — both go
	// into the frames reported for errors during expansion, and onto every
	// node of the expansion afterwards.
	callLoc, haveLoc := s.sourceLoc(s.currentExpr)
	if !haveLoc {
		callLoc, haveLoc = s.sourceLoc(expr)
	}
	var frames []SourceLoc
	if haveLoc {
		head := expr.Pair().Car
		if head.Tag() == VTSymbol {
			callLoc.Label = "macro " + head.Text()
		} else {
			callLoc.Label = "macro"
		}
		frames = append(frames, callLoc)
		if defLoc, ok := s.sourceLoc(md.Body); ok {
			defLoc.Label = "macro-def"
			frames = append(frames, defLoc)
		}
		if key := expr.identityKey(); key != nil {
			s.callChainMap[key] = frames
		}
	}

	res := s.withCallChain(haveLoc, frames, func() Value {
		return s.DoList(md.Body, e)
	})

	if haveLoc && !res.IsNil() {
		s.annotateExpansion(res, callLoc, frames)
	}
	return s.Eval(res, env)
}

// annotateExpansion tags every node of a macro expansion with the call-site
// location and prepends the call frames to any chain inner macros left.
func (s *State) annotateExpansion(v Value, callLoc SourceLoc, frames []SourceLoc) {
	if v.IsNil() {
		return
	}
	s.setSourceLoc(v, SourceLoc{File: callLoc.File, Line: callLoc.Line, Col: callLoc.Col})
	if key := v.identityKey(); key != nil {
		chain := make([]SourceLoc, 0, len(frames))
		chain = append(chain, frames...)
		if old, ok := s.callChainMap[key]; ok {
			chain = append(chain, old...)
		}
		s.callChainMap[key] = chain
	}
	if pd := v.Pair(); pd != nil {
		s.annotateExpansion(pd.Car, callLoc, frames)
		s.annotateExpansion(pd.Cdr, callLoc, frames)
	}
}

// Call invokes fn with an already-evaluated argument list. User functions
// go through the tiered dispatch: an all-numeric call bumps the hotness
// counter, may trigger compilation, and prefers the installed native entry
// with a NaN-deopt fallback into the interpreter.
func (s *State) Call(fn Value, args Value) Value {
	switch fn.Tag() {
	case VTNil:
		throwRuntime("attempt to call nil")
	case VTCFunc:
		return fn.CFunc()(s, args)
	case VTFunc:
		return s.callFunction(fn.Func(), args)
	}
	throwRuntime("not a function")
	return Value{}
}

func (s *State) callFunction(fd *FuncData, args Value) Value {
	fd.CallCount++

	// Extract raw doubles when every actual is a number.
	var darr []float64
	numeric := true
	for a := args; isPair(a); a = a.Pair().Cdr {
		av := a.Pair().Car
		if av.Tag() != VTNumber {
			numeric = false
			break
		}
		darr = append(darr, av.Number())
	}

	if numeric {
		fd.NumCallCount++
		if fd.NumCallCount > jitHotThreshold && fd.Compiled == nil && !fd.JitFailed {
			if entry := globalCompiler.compileFuncData(s, fd); entry != nil {
				fd.Compiled = entry
			} else {
				fd.JitFailed = true
			}
		}
	}

	if numeric && fd.Compiled != nil {
		res, panicked := s.invokeNative(fd.Compiled, darr)
		if panicked {
			globalCompiler.releaseFunctionCode(fd)
			fd.Compiled = nil
			fd.JitFailed = true
		}
		if !math.IsNaN(res) {
			return NumberValue(res)
		}
		// NaN is the deopt signal: something non-numeric surfaced in the
		// native tier. Run this call in the interpreter; the entry stays
		// installed unless the native code itself blew up.
		return s.interpretCall(fd, args, true)
	}

	return s.interpretCall(fd, args, true)
}

// invokeNative runs a native entry with the active-state pointer set for
// the duration, so bridge callbacks can reach the evaluator. A panic across
// the entry is reported to the caller and mapped to NaN.
func (s *State) invokeNative(entry NativeFn, darr []float64) (res float64, panicked bool) {
	prev := activeState
	activeState = s
	defer func() {
		activeState = prev
		if r := recover(); r != nil {
			recoverLispError(r)
			res, panicked = math.NaN(), true
		}
	}()
	return entry(darr, int32(len(darr))), false
}

// interpretCall binds params in a fresh activation env and runs the body.
// withFrame annotates errors with a call-site "fn" frame when the call
// expression has a known location; a deopted call gets the same frame as
// a plain interpreted one.
func (s *State) interpretCall(fd *FuncData, args Value, withFrame bool) Value {
	closure := fd.ClosureEnv
	if closure == nil {
		closure = s.Global
	}
	e := s.MakeEnv(closure)
	defer releaseEnv(e)
	bindParams(e.table, fd.Params, args, false)

	if withFrame {
		if callLoc, ok := s.sourceLoc(s.currentExpr); ok {
			callLoc.Label = "fn"
			return s.withCallChain(true, []SourceLoc{callLoc}, func() Value {
				return s.DoList(fd.Body, e)
			})
		}
	}
	return s.DoList(fd.Body, e)
}

// DoList evaluates each expression of body in order and returns the last;
// an empty body yields nil.
func (s *State) DoList(body Value, env *Env) Value {
	var res Value
	for w := body; isPair(w); w = w.Pair().Cdr {
		res = s.Eval(w.Pair().Car, env)
	}
	return res
}

// Truthy: anything but nil.
func truthy(v Value) bool { return !v.IsNil() }
