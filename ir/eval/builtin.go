package eval

import (
	"fortio.org/safecast"

	"github.com/gogpu/shaderir/ir"
)

func (fr *frame) builtin(inst *ir.Instruction) Value {
	in := fr.inv
	args := fr.values(inst.Operands)
	arg := func(i int) Value {
		if i >= len(args) {
			in.fail("eval: %s takes at least %d arguments", inst.Builtin, i+1)
		}
		return args[i]
	}
	kind := func() ir.ScalarKind { return fr.scalarKind(inst.Operands[0]) }

	switch inst.Builtin {
	case ir.BuiltinAbs:
		k := kind()
		return each(arg(0), func(x uint64) uint64 { return abs(k, x) })
	case ir.BuiltinSign:
		k := kind()
		return each(arg(0), func(x uint64) uint64 { return sign(k, x) })
	case ir.BuiltinMin:
		k := kind()
		return zip(arg(0), arg(1), func(x, y uint64) uint64 { return minScalar(k, x, y) })
	case ir.BuiltinMax:
		k := kind()
		return zip(arg(0), arg(1), func(x, y uint64) uint64 { return maxScalar(k, x, y) })
	case ir.BuiltinClamp:
		k := kind()
		low := zip(arg(0), arg(1), func(x, y uint64) uint64 { return maxScalar(k, x, y) })
		return zip(low, arg(2), func(x, y uint64) uint64 { return minScalar(k, x, y) })
	case ir.BuiltinSaturate:
		low := zip(arg(0), F32(0), func(x, y uint64) uint64 { return maxScalar(ir.ScalarFloat, x, y) })
		return zip(low, F32(1), func(x, y uint64) uint64 { return minScalar(ir.ScalarFloat, x, y) })
	case ir.BuiltinSelect:
		return selectValue(arg(0), arg(1), arg(2))
	case ir.BuiltinPow:
		return zip(arg(0), arg(1), func(x, y uint64) uint64 { return pow(x, y) })
	case ir.BuiltinCountLeadingZeros:
		return each(arg(0), func(x uint64) uint64 { return countLeadingZeros(x) })
	case ir.BuiltinCountTrailingZeros:
		return each(arg(0), func(x uint64) uint64 { return countTrailingZeros(x) })
	case ir.BuiltinFirstLeadingBit:
		k := kind()
		return each(arg(0), func(x uint64) uint64 { return firstLeadingBit(k, x) })
	case ir.BuiltinFirstTrailingBit:
		return each(arg(0), firstTrailingBit)
	case ir.BuiltinExtractBits:
		k := kind()
		offset, count := arg(1).Bits, arg(2).Bits
		return each(arg(0), func(x uint64) uint64 { return extractBits(k, x, offset, count) })
	case ir.BuiltinInsertBits:
		offset, count := arg(2).Bits, arg(3).Bits
		return zip(arg(0), arg(1), func(x, y uint64) uint64 { return insertBits(x, y, offset, count) })
	case ir.BuiltinArrayLength:
		n, err := safecast.Conv[uint32](len(in.deref(arg(0).Ref).Elems))
		if err != nil {
			in.fail("eval: arrayLength: %w", err)
		}
		return U32(n)
	case ir.BuiltinAtomicLoad:
		return in.load(arg(0))
	case ir.BuiltinAtomicStore:
		in.store(arg(0), nil, arg(1))
		return Value{}
	case ir.BuiltinAtomicAdd:
		old := in.load(arg(0))
		k := kind()
		sum, _ := binary(ir.OpAdd, k, old.Bits, arg(1).Bits)
		in.store(arg(0), nil, Value{Bits: sum})
		return old
	case ir.BuiltinWorkgroupBarrier, ir.BuiltinStorageBarrier:
		if in.barrier != nil {
			in.barrier()
		}
		return Value{}
	default:
		in.fail("%w: builtin %s", ErrUnsupported, inst.Builtin)
		return Value{}
	}
}

// selectValue returns t where cond holds and f elsewhere. A scalar
// condition selects whole values.
func selectValue(f, t, cond Value) Value {
	if cond.Elems == nil {
		if cond.Bool() {
			return t
		}
		return f
	}
	out := Value{Elems: make([]Value, len(cond.Elems))}
	for i, c := range cond.Elems {
		out.Elems[i] = selectValue(f.at(i), t.at(i), c)
	}
	return out
}
