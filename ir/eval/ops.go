package eval

import (
	"math"
	"math/bits"

	"github.com/gogpu/shaderir/ir"
)

func f32(x uint64) float32   { return math.Float32frombits(uint32(x)) }
func fbits(f float32) uint64 { return uint64(math.Float32bits(f)) }

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// binary evaluates a non-comparison operator on scalars of kind k.
// Integer arithmetic wraps. Division by zero yields the dividend and the
// remainder of a division by zero is zero.
func binary(op ir.BinaryOp, k ir.ScalarKind, x, y uint64) (uint64, bool) {
	a, b := uint32(x), uint32(y)
	switch k {
	case ir.ScalarFloat:
		fa, fb := f32(x), f32(y)
		switch op {
		case ir.OpAdd:
			return fbits(fa + fb), true
		case ir.OpSubtract:
			return fbits(fa - fb), true
		case ir.OpMultiply:
			return fbits(fa * fb), true
		case ir.OpDivide:
			return fbits(fa / fb), true
		case ir.OpModulo:
			return fbits(float32(math.Mod(float64(fa), float64(fb)))), true
		}
		return 0, false
	case ir.ScalarBool:
		switch op {
		case ir.OpAnd:
			return x & y & 1, true
		case ir.OpOr:
			return (x | y) & 1, true
		case ir.OpXor:
			return (x ^ y) & 1, true
		}
		return 0, false
	}

	signed := k == ir.ScalarSint
	switch op {
	case ir.OpAdd:
		return uint64(a + b), true
	case ir.OpSubtract:
		return uint64(a - b), true
	case ir.OpMultiply:
		return uint64(a * b), true
	case ir.OpDivide:
		if b == 0 || (signed && int32(a) == math.MinInt32 && int32(b) == -1) {
			return uint64(a), true
		}
		if signed {
			return uint64(uint32(int32(a) / int32(b))), true
		}
		return uint64(a / b), true
	case ir.OpModulo:
		if b == 0 || (signed && int32(a) == math.MinInt32 && int32(b) == -1) {
			return 0, true
		}
		if signed {
			return uint64(uint32(int32(a) % int32(b))), true
		}
		return uint64(a % b), true
	case ir.OpAnd:
		return uint64(a & b), true
	case ir.OpOr:
		return uint64(a | b), true
	case ir.OpXor:
		return uint64(a ^ b), true
	case ir.OpShiftLeft:
		return uint64(a << (b & 31)), true
	case ir.OpShiftRight:
		if signed {
			return uint64(uint32(int32(a) >> (b & 31))), true
		}
		return uint64(a >> (b & 31)), true
	}
	return 0, false
}

// compare evaluates a comparison on scalars of kind k.
func compare(op ir.BinaryOp, k ir.ScalarKind, x, y uint64) uint64 {
	var lt, eq bool
	switch k {
	case ir.ScalarFloat:
		fa, fb := f32(x), f32(y)
		switch op {
		case ir.OpEqual:
			return b2u(fa == fb)
		case ir.OpNotEqual:
			return b2u(fa != fb)
		case ir.OpLessThan:
			return b2u(fa < fb)
		case ir.OpGreaterThan:
			return b2u(fa > fb)
		case ir.OpLessThanEqual:
			return b2u(fa <= fb)
		default:
			return b2u(fa >= fb)
		}
	case ir.ScalarSint:
		lt, eq = int32(uint32(x)) < int32(uint32(y)), uint32(x) == uint32(y)
	default:
		lt, eq = uint32(x) < uint32(y), uint32(x) == uint32(y)
	}
	switch op {
	case ir.OpEqual:
		return b2u(eq)
	case ir.OpNotEqual:
		return b2u(!eq)
	case ir.OpLessThan:
		return b2u(lt)
	case ir.OpGreaterThan:
		return b2u(!lt && !eq)
	case ir.OpLessThanEqual:
		return b2u(lt || eq)
	default:
		return b2u(!lt)
	}
}

func unary(op ir.UnaryOp, k ir.ScalarKind, x uint64) uint64 {
	switch {
	case op == ir.OpComplement && k == ir.ScalarBool:
		return x ^ 1
	case op == ir.OpComplement:
		return uint64(^uint32(x))
	case k == ir.ScalarFloat:
		return fbits(-f32(x))
	default:
		return uint64(-uint32(x))
	}
}

// convert converts a scalar between kinds. Float to integer conversions
// truncate toward zero and saturate at the bounds of the destination.
func convert(x uint64, from, to ir.ScalarKind) uint64 {
	switch {
	case to == ir.ScalarBool:
		if from == ir.ScalarFloat {
			return b2u(f32(x) != 0)
		}
		return b2u(uint32(x) != 0)
	case from == ir.ScalarBool:
		if to == ir.ScalarFloat {
			return fbits(float32(x & 1))
		}
		return x & 1
	case from == ir.ScalarFloat && to == ir.ScalarFloat:
		return x
	case from == ir.ScalarFloat:
		f := float64(f32(x))
		if math.IsNaN(f) {
			return 0
		}
		f = math.Trunc(f)
		if to == ir.ScalarSint {
			switch {
			case f <= math.MinInt32:
				return 0x80000000
			case f >= math.MaxInt32:
				return math.MaxInt32
			}
			return uint64(uint32(int32(f)))
		}
		switch {
		case f <= 0:
			return 0
		case f >= math.MaxUint32:
			return math.MaxUint32
		}
		return uint64(uint32(f))
	case to == ir.ScalarFloat:
		if from == ir.ScalarSint {
			return fbits(float32(int32(uint32(x))))
		}
		return fbits(float32(uint32(x)))
	default:
		return uint64(uint32(x))
	}
}

func minScalar(k ir.ScalarKind, x, y uint64) uint64 {
	if compare(ir.OpLessThan, k, y, x) == 1 {
		return y
	}
	return x
}

func maxScalar(k ir.ScalarKind, x, y uint64) uint64 {
	if compare(ir.OpGreaterThan, k, y, x) == 1 {
		return y
	}
	return x
}

func abs(k ir.ScalarKind, x uint64) uint64 {
	switch k {
	case ir.ScalarFloat:
		return fbits(float32(math.Abs(float64(f32(x)))))
	case ir.ScalarSint:
		if int32(uint32(x)) < 0 {
			return uint64(-uint32(x))
		}
	}
	return x
}

func sign(k ir.ScalarKind, x uint64) uint64 {
	switch k {
	case ir.ScalarFloat:
		switch f := f32(x); {
		case f > 0:
			return fbits(1)
		case f < 0:
			return fbits(-1)
		}
		return fbits(0)
	case ir.ScalarSint:
		switch v := int32(uint32(x)); {
		case v > 0:
			return 1
		case v < 0:
			return uint64(uint32(0xffffffff))
		}
		return 0
	}
	return b2u(uint32(x) != 0)
}

func firstLeadingBit(k ir.ScalarKind, x uint64) uint64 {
	v := uint32(x)
	if k == ir.ScalarSint && int32(v) < 0 {
		v = ^v
	}
	if v == 0 {
		return math.MaxUint32
	}
	return uint64(31 - bits.LeadingZeros32(v))
}

func firstTrailingBit(x uint64) uint64 {
	if uint32(x) == 0 {
		return math.MaxUint32
	}
	return uint64(bits.TrailingZeros32(uint32(x)))
}

// bitRange returns the offset and count of a bit field of a 32-bit value,
// clamped as extractBits and insertBits define.
func bitRange(offset, count uint64) (o, c uint32) {
	o = min(uint32(offset), 32)
	c = min(uint32(count), 32-o)
	return o, c
}

func extractBits(k ir.ScalarKind, e, offset, count uint64) uint64 {
	o, c := bitRange(offset, count)
	if c == 0 {
		return 0
	}
	v := uint32(e)
	if k == ir.ScalarSint {
		shifted := int32(v<<(32-o-c)) >> (32 - c)
		return uint64(uint32(shifted))
	}
	return uint64((v >> o) & (uint32(math.MaxUint32) >> (32 - c)))
}

func insertBits(e, newbits, offset, count uint64) uint64 {
	o, c := bitRange(offset, count)
	if c == 0 {
		return uint64(uint32(e))
	}
	mask := (uint32(math.MaxUint32) >> (32 - c)) << o
	return uint64((uint32(e) &^ mask) | ((uint32(newbits) << o) & mask))
}

func pow(x, y uint64) uint64 {
	return fbits(float32(math.Pow(float64(f32(x)), float64(f32(y)))))
}

func countLeadingZeros(x uint64) uint64 { return uint64(bits.LeadingZeros32(uint32(x))) }

func countTrailingZeros(x uint64) uint64 { return uint64(bits.TrailingZeros32(uint32(x))) }
