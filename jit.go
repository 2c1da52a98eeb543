// jit.go — tiered compilation of numerically-hot user functions.
//
// The protocol, driven from State.callFunction: a call whose actuals are
// all numbers bumps the function's numeric call counter; past the hotness
// threshold the body is lowered to a NumChunk (numvm.go) and the entry
// installed on the FuncData. Lowering accepts only the numeric subset —
// literals, parameters, let locals, free-variable lookups, the four
// arithmetic operators, the five comparisons, cond, while, let, and calls
// to user functions reachable by symbol through the closure chain. Anything
// else fails the lowering, which marks the function jit-failed for good and
// leaves it to the interpreter.
//
// Before a function is lowered, user functions its body calls are compiled
// best-effort so those call sites can dispatch native-to-native instead of
// bridging back through the evaluator.
package vdlisp

import "errors"

// jitHotThreshold: a function compiles once its numeric call count exceeds
// this many calls.
const jitHotThreshold = 3

// Compiler owns the compiled-code registry so chunks can be released when
// their function is destroyed.
type Compiler struct {
	chunks     map[*FuncData]*NumChunk
	inProgress map[*FuncData]bool // breaks mutual-recursion in the pre-pass
}

var globalCompiler = &Compiler{
	chunks:     make(map[*FuncData]*NumChunk),
	inProgress: make(map[*FuncData]bool),
}

// releaseFunctionCode drops the registration for fd's installed entry.
func (c *Compiler) releaseFunctionCode(fd *FuncData) {
	delete(c.chunks, fd)
}

// compileFuncData lowers fd and returns the native entry, or nil when the
// body falls outside the supported subset.
func (c *Compiler) compileFuncData(s *State, fd *FuncData) NativeFn {
	if fd == nil {
		return nil
	}
	c.inProgress[fd] = true
	defer delete(c.inProgress, fd)

	// Best-effort pre-pass: compile callees reachable by symbol so the
	// emitter can wire direct calls.
	var callees []*FuncData
	collectCalledFuncs(fd.Body, fd.ClosureEnv, &callees)
	for _, callee := range callees {
		if callee == fd || c.inProgress[callee] || callee.Compiled != nil || callee.JitFailed {
			continue
		}
		if entry := c.compileFuncData(s, callee); entry != nil {
			callee.Compiled = entry
		} else {
			callee.JitFailed = true
		}
	}

	chunk, err := lowerFunc(fd)
	if err != nil {
		return nil
	}
	c.chunks[fd] = chunk
	return chunk.entry()
}

// collectCalledFuncs scans an AST for call heads that resolve through the
// closure chain to user functions.
func collectCalledFuncs(expr Value, closure *Env, out *[]*FuncData) {
	if !isPair(expr) {
		return
	}
	car := pairCar(expr)
	if car.Tag() == VTSymbol {
		if v, ok := lookupPresent(closure, car.Text()); ok && v.Tag() == VTFunc {
			*out = append(*out, v.Func())
		}
	}
	for w := expr; isPair(w); w = pairCdr(w) {
		collectCalledFuncs(pairCar(w), closure, out)
	}
}

/* ---------- lowering ---------- */

var errUnsupported = errors.New("form outside the numeric subset")

type numEmitter struct {
	fd         *FuncData
	code       []uint32
	consts     []float64
	names      []string
	funcs      []*FuncData
	paramIndex map[string]int
	locals     map[string]int
	nlocals    int
}

func lowerFunc(fd *FuncData) (*NumChunk, error) {
	e := &numEmitter{
		fd:         fd,
		paramIndex: make(map[string]int),
		locals:     make(map[string]int),
	}
	idx := 0
	for p := fd.Params; !p.IsNil(); {
		if p.Tag() == VTSymbol {
			e.paramIndex[p.Text()] = idx
			break
		}
		if name := pairCar(p); name.Tag() == VTSymbol {
			e.paramIndex[name.Text()] = idx
			idx++
		}
		p = pairCdr(p)
	}

	if err := e.emitBody(fd.Body); err != nil {
		return nil, err
	}
	e.emit(nopReturn, 0)

	return &NumChunk{
		code:    e.code,
		consts:  e.consts,
		names:   e.names,
		funcs:   e.funcs,
		env:     fd.ClosureEnv,
		nlocals: e.nlocals,
	}, nil
}

func (e *numEmitter) emit(op numOp, imm int) int {
	e.code = append(e.code, packNum(op, imm))
	return len(e.code) - 1
}

func (e *numEmitter) patch(at int, imm int) {
	e.code[at] = packNum(numOpOf(e.code[at]), imm)
}

func (e *numEmitter) here() int { return len(e.code) }

func (e *numEmitter) constIndex(n float64) int {
	for i, c := range e.consts {
		if c == n {
			return i
		}
	}
	e.consts = append(e.consts, n)
	return len(e.consts) - 1
}

func (e *numEmitter) nameIndex(n string) int {
	e.names = append(e.names, n)
	return len(e.names) - 1
}

func (e *numEmitter) slotFor(name string) int {
	if i, ok := e.locals[name]; ok {
		return i
	}
	i := e.nlocals
	e.nlocals++
	e.locals[name] = i
	return i
}

func (e *numEmitter) tempSlot() int {
	i := e.nlocals
	e.nlocals++
	return i
}

// emitBody lowers a sequence of expressions that contributes the last one's
// value; an empty body contributes 0.0.
func (e *numEmitter) emitBody(body Value) error {
	if body.IsNil() {
		e.emit(nopConst, e.constIndex(0))
		return nil
	}
	for w := body; !w.IsNil(); w = pairCdr(w) {
		if err := e.emitExpr(pairCar(w)); err != nil {
			return err
		}
		if !pairCdr(w).IsNil() {
			e.emit(nopPop, 0)
		}
	}
	return nil
}

// emitExpr lowers one expression, leaving exactly one value on the stack.
func (e *numEmitter) emitExpr(expr Value) error {
	if expr.IsNil() {
		e.emit(nopConst, e.constIndex(0))
		return nil
	}
	switch expr.Tag() {
	case VTNumber:
		e.emit(nopConst, e.constIndex(expr.Number()))
		return nil
	case VTSymbol:
		name := expr.Text()
		// #t lowers to 1.0 without an environment lookup, so cond/while
		// default branches stay in straight-line numeric code.
		if name == "#t" {
			e.emit(nopConst, e.constIndex(1.0))
			return nil
		}
		if i, ok := e.paramIndex[name]; ok {
			e.emit(nopArg, i)
			return nil
		}
		if i, ok := e.locals[name]; ok {
			e.emit(nopLocal, i)
			return nil
		}
		e.emit(nopLookup, e.nameIndex(name))
		return nil
	case VTPair:
		op := pairCar(expr)
		rest := pairCdr(expr)
		if op.Tag() != VTSymbol {
			return errUnsupported
		}
		switch op.Text() {
		case "cond":
			return e.emitCond(rest)
		case "while":
			return e.emitWhile(rest)
		case "let":
			return e.emitLet(rest)
		}
		return e.emitOpOrCall(op.Text(), rest)
	}
	return errUnsupported
}

var numBinOps = map[string]numOp{
	"+": nopAdd, "-": nopSub, "*": nopMul, "/": nopDiv,
	"<": nopLt, ">": nopGt, "<=": nopLe, ">=": nopGe, "=": nopEq,
}

func (e *numEmitter) emitOpOrCall(name string, rest Value) error {
	argc := 0
	for a := rest; !a.IsNil(); a = pairCdr(a) {
		if err := e.emitExpr(pairCar(a)); err != nil {
			return err
		}
		argc++
	}

	if op, ok := numBinOps[name]; ok {
		if argc != 2 {
			return errUnsupported
		}
		e.emit(op, 0)
		return nil
	}

	// A call head must resolve through the closure chain to a user
	// function; direct when the callee already has native code, bridged
	// through the evaluator otherwise.
	found, ok := lookupPresent(e.fd.ClosureEnv, name)
	if !ok || found.Tag() != VTFunc {
		return errUnsupported
	}
	callee := found.Func()
	if argc > 0xFF {
		return errUnsupported
	}
	fidx := len(e.funcs)
	e.funcs = append(e.funcs, callee)
	imm := fidx<<8 | argc
	if callee.Compiled != nil {
		e.emit(nopCallDirect, imm)
	} else {
		e.emit(nopCallBridge, imm)
	}
	return nil
}

func (e *numEmitter) emitCond(clauses Value) error {
	slot := e.tempSlot()
	e.emit(nopConst, e.constIndex(0))
	e.emit(nopStore, slot)
	var endJumps []int
	for w := clauses; !w.IsNil(); w = pairCdr(w) {
		clause := pairCar(w)
		var test, body Value
		if isPair(clause) {
			test = pairCar(clause)
			body = pairCdr(clause)
		}
		if err := e.emitExpr(test); err != nil {
			return err
		}
		skip := e.emit(nopJumpIfZero, 0)
		if err := e.emitBody(body); err != nil {
			return err
		}
		e.emit(nopStore, slot)
		endJumps = append(endJumps, e.emit(nopJump, 0))
		e.patch(skip, e.here())
	}
	for _, j := range endJumps {
		e.patch(j, e.here())
	}
	e.emit(nopLocal, slot)
	return nil
}

func (e *numEmitter) emitWhile(rest Value) error {
	cond := pairCar(rest)
	body := pairCdr(rest)
	slot := e.tempSlot()
	e.emit(nopConst, e.constIndex(0))
	e.emit(nopStore, slot)
	header := e.here()
	if err := e.emitExpr(cond); err != nil {
		return err
	}
	exit := e.emit(nopJumpIfZero, 0)
	if err := e.emitBody(body); err != nil {
		return err
	}
	e.emit(nopStore, slot)
	e.emit(nopJump, header)
	e.patch(exit, e.here())
	e.emit(nopLocal, slot)
	return nil
}

func (e *numEmitter) emitLet(rest Value) error {
	bindings := pairCar(rest)
	body := pairCdr(rest)
	if isPair(bindings) && isPair(pairCar(bindings)) {
		for b := bindings; !b.IsNil(); b = pairCdr(b) {
			pair := pairCar(b)
			name := pairCar(pair)
			if name.Tag() != VTSymbol {
				return errUnsupported
			}
			if err := e.emitExpr(pairCar(pairCdr(pair))); err != nil {
				return err
			}
			e.emit(nopStore, e.slotFor(name.Text()))
		}
	} else {
		for b := bindings; !b.IsNil(); {
			name := pairCar(b)
			if name.Tag() != VTSymbol {
				return errUnsupported
			}
			next := pairCdr(b)
			if next.IsNil() {
				return errUnsupported
			}
			if err := e.emitExpr(pairCar(next)); err != nil {
				return err
			}
			e.emit(nopStore, e.slotFor(name.Text()))
			b = pairCdr(next)
		}
	}
	return e.emitBody(body)
}
