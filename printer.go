// printer.go — human-readable rendering of values.
package vdlisp

import (
	"strconv"
	"strings"
)

// ToString renders v for print and the REPL. Strings render raw (no
// quotes), lists parenthesized with a dotted tail when improper, and
// callables as their bracketed kind, with <jit_func> marking a function
// whose native entry is installed.
func (s *State) ToString(v Value) string {
	switch v.Tag() {
	case VTNil:
		return "nil"
	case VTNumber:
		return formatNumber(v.Number())
	case VTString:
		return v.Text()
	case VTSymbol:
		return v.Text()
	case VTPair:
		var b strings.Builder
		b.WriteByte('(')
		pd := v.Pair()
		b.WriteString(s.ToString(pd.Car))
		cur := pd.Cdr
		for isPair(cur) {
			b.WriteByte(' ')
			b.WriteString(s.ToString(cur.Pair().Car))
			cur = cur.Pair().Cdr
		}
		if !cur.IsNil() {
			b.WriteString(" . ")
			b.WriteString(s.ToString(cur))
		}
		b.WriteByte(')')
		return b.String()
	case VTCFunc:
		return "<cfunc>"
	case VTMacro:
		return "<macro>"
	case VTPrim:
		return "<prim>"
	case VTFunc:
		if fd := v.Func(); fd != nil && fd.Compiled != nil {
			return "<jit_func>"
		}
		return "<function>"
	}
	return "<?>"
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}
