// core.go — registration of the builtin functions and special forms.
//
// Everything here is bound in the global environment as a first-class
// value, so `apply` can receive `+` like any other function. Builtins (CFn)
// get evaluated argument lists; primitives (PrimFn) get the raw argument
// list plus the caller's environment.
package vdlisp

import (
	"fmt"
	"os"
)

func requireNumber(v Value, who string) float64 {
	if v.Tag() != VTNumber {
		throwRuntime(who + ": expected number, got " + v.TypeName())
	}
	return v.Number()
}

// twoNumbers enforces the strict two-argument arity shared by the
// arithmetic and comparison builtins.
func twoNumbers(args Value, name string) (float64, float64) {
	if args.IsNil() || pairCdr(args).IsNil() || !pairCdr(pairCdr(args)).IsNil() {
		throwRuntime(name + " requires exactly two arguments")
	}
	a := requireNumber(pairCar(args), name)
	b := requireNumber(pairCar(pairCdr(args)), name)
	return a, b
}

func arith(name string, op func(a, b float64) float64) CFn {
	return func(s *State, args Value) Value {
		a, b := twoNumbers(args, name)
		return NumberValue(op(a, b))
	}
}

func compare(name string, cmp func(a, b float64) bool) CFn {
	return func(s *State, args Value) Value {
		a, b := twoNumbers(args, name)
		if cmp(a, b) {
			return s.GetBound("#t", s.Global)
		}
		return Value{}
	}
}

func registerCore(s *State) {
	// --- builtins ---

	s.registerBuiltin("print", func(s *State, args Value) Value {
		var last Value
		first := true
		for cur := args; !cur.IsNil(); cur = pairCdr(cur) {
			if !first {
				fmt.Fprint(os.Stdout, " ")
			}
			el := pairCar(cur)
			fmt.Fprint(os.Stdout, s.ToString(el))
			first = false
			last = el
		}
		fmt.Fprintln(os.Stdout)
		return last
	})

	s.registerBuiltin("+", arith("+", func(a, b float64) float64 { return a + b }))
	s.registerBuiltin("-", arith("-", func(a, b float64) float64 { return a - b }))
	s.registerBuiltin("*", arith("*", func(a, b float64) float64 { return a * b }))
	s.registerBuiltin("/", func(s *State, args Value) Value {
		a, b := twoNumbers(args, "/")
		if b == 0 {
			throwRuntime("division by zero")
		}
		return NumberValue(a / b)
	})

	s.registerBuiltin("<", compare("<", func(a, b float64) bool { return a < b }))
	s.registerBuiltin(">", compare(">", func(a, b float64) bool { return a > b }))
	s.registerBuiltin("<=", compare("<=", func(a, b float64) bool { return a <= b }))
	s.registerBuiltin(">=", compare(">=", func(a, b float64) bool { return a >= b }))

	s.registerBuiltin("=", func(s *State, args Value) Value {
		if args.IsNil() || pairCdr(args).IsNil() || !pairCdr(pairCdr(args)).IsNil() {
			throwRuntime("= requires exactly two arguments")
		}
		if valueEqual(pairCar(args), pairCar(pairCdr(args))) {
			return s.GetBound("#t", s.Global)
		}
		return Value{}
	})

	s.registerBuiltin("list", func(s *State, args Value) Value {
		return args
	})

	s.registerBuiltin("type", func(s *State, args Value) Value {
		return s.Intern(pairCar(args).TypeName())
	})

	s.registerBuiltin("parse", func(s *State, args Value) Value {
		v := pairCar(args)
		if v.Tag() != VTString {
			throwRuntime("parse requires a string")
		}
		return s.Parse(v.Text(), "(string)")
	})

	s.registerBuiltin("error", func(s *State, args Value) Value {
		msg := "error"
		if !pairCar(args).IsNil() {
			msg = s.ToString(pairCar(args))
		}
		throwRuntime(msg)
		return Value{}
	})

	s.registerBuiltin("cons", func(s *State, args Value) Value {
		return PairValue(pairCar(args), pairCar(pairCdr(args)))
	})

	s.registerBuiltin("car", func(s *State, args Value) Value {
		v := pairCar(args)
		if v.IsNil() {
			return Value{}
		}
		if v.Tag() != VTPair {
			throwRuntime("car expects a pair")
		}
		return v.Pair().Car
	})

	s.registerBuiltin("cdr", func(s *State, args Value) Value {
		v := pairCar(args)
		if v.IsNil() {
			return Value{}
		}
		if v.Tag() != VTPair {
			throwRuntime("cdr expects a pair")
		}
		return v.Pair().Cdr
	})

	s.registerBuiltin("setcar", func(s *State, args Value) Value {
		p := pairCar(args)
		v := pairCar(pairCdr(args))
		if p.Tag() != VTPair {
			throwRuntime("setcar expects a pair")
		}
		v.Retain()
		p.Pair().Car.Release()
		p.Pair().Car = v
		return v
	})

	s.registerBuiltin("setcdr", func(s *State, args Value) Value {
		p := pairCar(args)
		v := pairCar(pairCdr(args))
		if p.Tag() != VTPair {
			throwRuntime("setcdr expects a pair")
		}
		v.Retain()
		p.Pair().Cdr.Release()
		p.Pair().Cdr = v
		return v
	})

	s.registerBuiltin("exit", func(s *State, args Value) Value {
		code := 0
		if !pairCar(args).IsNil() {
			code = int(requireNumber(pairCar(args), "exit"))
		}
		s.Shutdown()
		os.Exit(code)
		return Value{}
	})

	registerRequire(s)

	// --- special forms ---

	s.registerPrim("quote", func(s *State, args Value, env *Env) Value {
		return pairCar(args)
	})

	s.registerPrim("unquote", func(s *State, args Value, env *Env) Value {
		if pairCar(args).IsNil() {
			return Value{}
		}
		return s.Eval(pairCar(args), env)
	})

	s.registerPrim("quasiquote", func(s *State, args Value, env *Env) Value {
		return s.qqExpand(pairCar(args), 1, env)
	})

	s.registerPrim("set", func(s *State, args Value, env *Env) Value {
		sym := pairCar(args)
		val := s.Eval(pairCar(pairCdr(args)), env)
		return s.Set(sym, val, env)
	})

	s.registerPrim("fn", func(s *State, args Value, env *Env) Value {
		return s.MakeFunction(pairCar(args), pairCdr(args), env)
	})

	s.registerPrim("macro", func(s *State, args Value, env *Env) Value {
		return s.MakeMacro(pairCar(args), pairCdr(args), env)
	})

	s.registerPrim("let", func(s *State, args Value, env *Env) Value {
		e := s.MakeEnv(env)
		defer releaseEnv(e)
		bindLet(s, pairCar(args), e)
		return s.DoList(pairCdr(args), e)
	})

	s.registerPrim("while", func(s *State, args Value, env *Env) Value {
		cond := pairCar(args)
		body := pairCdr(args)
		var res Value
		for truthy(s.Eval(cond, env)) {
			res = s.DoList(body, env)
		}
		return res
	})

	s.registerPrim("cond", func(s *State, args Value, env *Env) Value {
		for clauses := args; !clauses.IsNil(); clauses = pairCdr(clauses) {
			clause := pairCar(clauses)
			if clause.IsNil() {
				continue
			}
			if truthy(s.Eval(pairCar(clause), env)) {
				return s.DoList(pairCdr(clause), env)
			}
		}
		return Value{}
	})

	s.registerPrim("apply", func(s *State, args Value, env *Env) Value {
		fnexpr := pairCar(args)
		if fnexpr.IsNil() {
			throwRuntime("apply requires a function")
		}
		fn := s.Eval(fnexpr, env)
		list := s.Eval(pairCar(pairCdr(args)), env)
		return s.Call(fn, list)
	})
}

// bindLet handles both accepted binding shapes: the flat (a 1 b 2 ...) form
// and the clause form ((a 1) (b 2) ...). Bindings evaluate sequentially in
// the child environment, so later initializers see earlier bindings.
func bindLet(s *State, vars Value, e *Env) {
	if isPair(vars) && isPair(pairCar(vars)) {
		for b := vars; !b.IsNil(); b = pairCdr(b) {
			pair := pairCar(b)
			s.Bind(pairCar(pair), s.Eval(pairCar(pairCdr(pair)), e), e)
		}
		return
	}
	for b := vars; !b.IsNil(); {
		sym := pairCar(b)
		b = pairCdr(b)
		s.Bind(sym, s.Eval(pairCar(b), e), e)
		b = pairCdr(b)
	}
}

// qqExpand walks a quasiquote template. An (unquote e) at depth 1 evaluates
// e; nested quasiquotes raise the depth, nested unquotes lower it; other
// pairs rebuild recursively.
func (s *State) qqExpand(expr Value, depth int, env *Env) Value {
	if !isPair(expr) {
		return expr
	}
	car := pairCar(expr)
	cdr := pairCdr(expr)
	if isSymbolNamed(car, "unquote") {
		if depth == 1 {
			if cdr.IsNil() {
				return Value{}
			}
			return s.Eval(pairCar(cdr), env)
		}
		return PairValue(car, s.qqExpand(cdr, depth-1, env))
	}
	if isSymbolNamed(car, "quasiquote") {
		return PairValue(car, s.qqExpand(cdr, depth+1, env))
	}
	return PairValue(s.qqExpand(car, depth, env), s.qqExpand(cdr, depth, env))
}

// MakeFunction allocates a user function closing over env.
func (s *State) MakeFunction(params, body Value, env *Env) Value {
	params.Retain()
	body.Retain()
	retainEnv(env)
	return funcValue(&FuncData{refs: 1, Params: params, Body: body, ClosureEnv: env})
}

// MakeMacro allocates a macro closing over env.
func (s *State) MakeMacro(params, body Value, env *Env) Value {
	params.Retain()
	body.Retain()
	retainEnv(env)
	return macroValue(&MacroData{refs: 1, Params: params, Body: body, ClosureEnv: env})
}
