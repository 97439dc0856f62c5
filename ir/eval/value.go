package eval

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/gogpu/shaderir/ir"
)

// Value is a runtime value: a scalar, a composite or a pointer.
//
// Scalars use the encoding of ir.ScalarValue: integers hold their 32-bit
// two's complement pattern, floats of both widths the IEEE binary32 pattern,
// and bools 0 or 1. Composites list their components in Elems, matrices as
// columns. Pointers carry a Ref.
type Value struct {
	Bits  uint64
	Elems []Value
	Ref   *Ref
}

// Ref is a pointer into a memory cell.
type Ref struct {
	Space ir.AddressSpace
	// Var is the variable the pointer was derived from.
	Var  ir.ValueID
	Path []uint32

	root *Value
}

// U32 returns the u32 scalar v.
func U32(v uint32) Value { return Value{Bits: uint64(v)} }

// I32 returns the i32 scalar v.
func I32(v int32) Value { return Value{Bits: uint64(uint32(v))} }

// F32 returns the f32 scalar v.
func F32(v float32) Value { return Value{Bits: uint64(math.Float32bits(v))} }

// Bool returns the bool scalar v.
func Bool(v bool) Value {
	if v {
		return Value{Bits: 1}
	}
	return Value{}
}

// Vector returns a composite of the given components.
func Vector(elems ...Value) Value { return Value{Elems: elems} }

// U32 returns the scalar as a u32.
func (v Value) U32() uint32 { return uint32(v.Bits) }

// I32 returns the scalar as an i32.
func (v Value) I32() int32 { return int32(uint32(v.Bits)) }

// F32 returns the scalar as an f32.
func (v Value) F32() float32 { return math.Float32frombits(uint32(v.Bits)) }

// Bool returns the scalar as a bool.
func (v Value) Bool() bool { return v.Bits != 0 }

// Equal reports whether v and o hold the same bits.
func (v Value) Equal(o Value) bool {
	if (v.Ref == nil) != (o.Ref == nil) || v.Bits != o.Bits || len(v.Elems) != len(o.Elems) {
		return false
	}
	if v.Ref != nil && (v.Ref.root != o.Ref.root || !slices.Equal(v.Ref.Path, o.Ref.Path)) {
		return false
	}
	for i := range v.Elems {
		if !v.Elems[i].Equal(o.Elems[i]) {
			return false
		}
	}
	return true
}

func (v Value) String() string {
	switch {
	case v.Ref != nil:
		return fmt.Sprintf("&%%%d%v", v.Ref.Var, v.Ref.Path)
	case v.Elems != nil:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return fmt.Sprintf("%#x", v.Bits)
	}
}

// clone returns a deep copy of v. Pointers are shared.
func (v Value) clone() Value {
	if v.Elems == nil {
		return v
	}
	out := Value{Elems: make([]Value, len(v.Elems))}
	for i, e := range v.Elems {
		out.Elems[i] = e.clone()
	}
	return out
}

// at returns component i of a composite, or v itself for a scalar so that
// scalars broadcast in component-wise operations.
func (v Value) at(i int) Value {
	if v.Elems == nil {
		return v
	}
	return v.Elems[i]
}

// zip applies fn to the scalars of a and b component-wise.
func zip(a, b Value, fn func(x, y uint64) uint64) Value {
	if a.Elems == nil && b.Elems == nil {
		return Value{Bits: fn(a.Bits, b.Bits)}
	}
	n := max(len(a.Elems), len(b.Elems))
	out := Value{Elems: make([]Value, n)}
	for i := range out.Elems {
		out.Elems[i] = zip(a.at(i), b.at(i), fn)
	}
	return out
}

// each applies fn to every scalar of v.
func each(v Value, fn func(x uint64) uint64) Value {
	if v.Elems == nil {
		return Value{Bits: fn(v.Bits)}
	}
	out := Value{Elems: make([]Value, len(v.Elems))}
	for i, e := range v.Elems {
		out.Elems[i] = each(e, fn)
	}
	return out
}

// fill builds a value of type ty whose scalars hold bits(kind).
func fill(types *ir.TypeManager, ty ir.TypeHandle, bits func(ir.ScalarKind) uint64) Value {
	switch t := types.Inner(ty).(type) {
	case ir.ScalarType:
		return Value{Bits: bits(t.Kind)}
	case ir.AtomicType:
		return Value{Bits: bits(t.Scalar.Kind)}
	case ir.VectorType, ir.MatrixType, ir.ArrayType:
		elem, _ := types.Element(ty)
		n := types.ElementCount(ty)
		out := Value{Elems: make([]Value, n)}
		for i := range out.Elems {
			out.Elems[i] = fill(types, elem, bits)
		}
		return out
	case ir.StructType:
		out := Value{Elems: make([]Value, len(t.Members))}
		for i, m := range t.Members {
			out.Elems[i] = fill(types, m.Type, bits)
		}
		return out
	default:
		return Value{}
	}
}

func zeroBits(k ir.ScalarKind) uint64 { return 0 }

// Poison is the pattern held by uninitialized workgroup memory.
const Poison = 0xdeadbeef

func poisonBits(k ir.ScalarKind) uint64 {
	if k == ir.ScalarBool {
		return 1
	}
	return Poison
}

// Zero returns the zero value of ty.
func Zero(types *ir.TypeManager, ty ir.TypeHandle) Value {
	return fill(types, ty, zeroBits)
}

// constant converts a constant of type ty to a runtime value.
func constant(types *ir.TypeManager, ty ir.TypeHandle, c ir.ConstantValue) Value {
	switch c := c.(type) {
	case ir.ScalarValue:
		return Value{Bits: c.Bits}
	case ir.SplatValue:
		out := Value{Elems: make([]Value, c.Count)}
		for i := range out.Elems {
			out.Elems[i] = constant(types, types.MemberType(ty, uint32(i)), c.Value)
		}
		return out
	case ir.CompositeValue:
		out := Value{Elems: make([]Value, len(c.Components))}
		for i, comp := range c.Components {
			out.Elems[i] = constant(types, types.MemberType(ty, uint32(i)), comp)
		}
		return out
	default:
		return Zero(types, ty)
	}
}
