package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ConstantValue represents constant values.
type ConstantValue interface {
	constantValue()
}

// ScalarValue represents a scalar constant.
//
// Integers hold their 32-bit two's complement pattern. Floats of both widths
// hold the IEEE binary32 pattern of their value.
type ScalarValue struct {
	Bits uint64 // Bit representation
	Kind ScalarKind
}

func (ScalarValue) constantValue() {}

// CompositeValue represents a composite constant.
type CompositeValue struct {
	Components []ConstantValue
}

func (CompositeValue) constantValue() {}

// SplatValue is a composite whose Count components are all Value.
type SplatValue struct {
	Value ConstantValue
	Count int
}

func (SplatValue) constantValue() {}

// ZeroValue requests the zero value of a type. Module.Constant expands it,
// so it never appears on a stored constant.
type ZeroValue struct{}

func (ZeroValue) constantValue() {}

// Component returns component i of a composite constant.
func Component(v ConstantValue, i int) ConstantValue {
	switch c := v.(type) {
	case CompositeValue:
		return c.Components[i]
	case SplatValue:
		return c.Value
	default:
		panic(fmt.Sprintf("ICE: constant %T has no components", v))
	}
}

// Constant returns the constant of the given type and value, creating it on
// first use. Constants are deduplicated, so equal constants share a ValueID.
func (m *Module) Constant(ty TypeHandle, v ConstantValue) ValueID {
	v = m.canonicalConst(ty, v)
	key := strconv.FormatUint(uint64(ty), 10) + "=" + m.constKey(v)
	if id, ok := m.consts[key]; ok {
		return id
	}
	id := m.newValue(&Value{Kind: ValueConstant, Type: ty, Const: v})
	m.consts[key] = id
	return id
}

// ConstU32 returns the u32 constant v.
func (m *Module) ConstU32(v uint32) ValueID {
	return m.Constant(m.Types.U32(), ScalarValue{Bits: uint64(v), Kind: ScalarUint})
}

// ConstI32 returns the i32 constant v.
func (m *Module) ConstI32(v int32) ValueID {
	return m.Constant(m.Types.I32(), ScalarValue{Bits: uint64(uint32(v)), Kind: ScalarSint})
}

// ConstF32 returns the f32 constant v.
func (m *Module) ConstF32(v float32) ValueID {
	return m.Constant(m.Types.F32(), ScalarValue{Bits: uint64(math.Float32bits(v)), Kind: ScalarFloat})
}

// ConstF16 returns the f16 constant v.
func (m *Module) ConstF16(v float32) ValueID {
	return m.Constant(m.Types.F16(), ScalarValue{Bits: uint64(math.Float32bits(v)), Kind: ScalarFloat})
}

// ConstBool returns the bool constant v.
func (m *Module) ConstBool(v bool) ValueID {
	var bits uint64
	if v {
		bits = 1
	}
	return m.Constant(m.Types.Bool(), ScalarValue{Bits: bits, Kind: ScalarBool})
}

// Splat returns a constant of composite type ty with every component equal
// to the constant elem.
func (m *Module) Splat(ty TypeHandle, elem ValueID) ValueID {
	ev := m.values[elem]
	if ev.Kind != ValueConstant {
		panic("ICE: splat of a non-constant value")
	}
	return m.Constant(ty, SplatValue{Value: ev.Const, Count: int(m.Types.ElementCount(ty))})
}

// Zero returns the zero constant of ty.
func (m *Module) Zero(ty TypeHandle) ValueID {
	return m.Constant(ty, ZeroValue{})
}

// MatchWidth splats the scalar constant elem to the vector width of like, or
// returns elem when like is a scalar.
func (m *Module) MatchWidth(elem ValueID, like TypeHandle) ValueID {
	if m.Types.Width(like) == 1 {
		return elem
	}
	return m.Splat(m.Types.MatchWidth(m.values[elem].Type, like), elem)
}

// IsConstant reports whether v is a constant.
func (m *Module) IsConstant(v ValueID) bool {
	return m.values[v].Kind == ValueConstant
}

// ConstScalar returns the scalar payload of a scalar constant.
func (m *Module) ConstScalar(v ValueID) (ScalarValue, bool) {
	val := m.values[v]
	if val.Kind != ValueConstant {
		return ScalarValue{}, false
	}
	s, ok := val.Const.(ScalarValue)
	return s, ok
}

func (m *Module) componentType(ty TypeHandle, i int) TypeHandle {
	if s, ok := m.Types.Inner(ty).(StructType); ok {
		return s.Members[i].Type
	}
	elem, ok := m.Types.Element(ty)
	if !ok {
		panic(fmt.Sprintf("ICE: constant of type %s has no components", m.Types.Name(ty)))
	}
	return elem
}

// canonicalConst expands zero values and folds composites with equal
// components into splats, so structurally equal constants compare equal.
func (m *Module) canonicalConst(ty TypeHandle, v ConstantValue) ConstantValue {
	switch c := v.(type) {
	case ZeroValue:
		return m.zeroOf(ty)
	case SplatValue:
		return SplatValue{Value: m.canonicalConst(m.componentType(ty, 0), c.Value), Count: c.Count}
	case CompositeValue:
		comps := make([]ConstantValue, len(c.Components))
		same := len(comps) > 0
		var first string
		for i, comp := range c.Components {
			ct := m.componentType(ty, i)
			comps[i] = m.canonicalConst(ct, comp)
			key := strconv.FormatUint(uint64(ct), 10) + "=" + m.constKey(comps[i])
			if i == 0 {
				first = key
			} else if key != first {
				same = false
			}
		}
		if same {
			return SplatValue{Value: comps[0], Count: len(comps)}
		}
		return CompositeValue{Components: comps}
	default:
		return v
	}
}

func (m *Module) zeroOf(ty TypeHandle) ConstantValue {
	switch t := m.Types.Inner(ty).(type) {
	case ScalarType:
		return ScalarValue{Kind: t.Kind}
	case VectorType, MatrixType, ArrayType:
		n := m.Types.ElementCount(ty)
		if n == 0 {
			panic("ICE: zero value of a runtime-sized array")
		}
		elem, _ := m.Types.Element(ty)
		return SplatValue{Value: m.zeroOf(elem), Count: int(n)}
	case StructType:
		comps := make([]ConstantValue, len(t.Members))
		for i, mem := range t.Members {
			comps[i] = m.zeroOf(mem.Type)
		}
		return m.canonicalConst(ty, CompositeValue{Components: comps})
	default:
		panic(fmt.Sprintf("ICE: type %s has no zero value", m.Types.Name(ty)))
	}
}

func (m *Module) constKey(v ConstantValue) string {
	switch c := v.(type) {
	case ScalarValue:
		return "b" + strconv.FormatUint(c.Bits, 16)
	case SplatValue:
		return "s" + strconv.Itoa(c.Count) + "(" + m.constKey(c.Value) + ")"
	case CompositeValue:
		parts := make([]string, len(c.Components))
		for i, comp := range c.Components {
			parts[i] = m.constKey(comp)
		}
		return "c(" + strings.Join(parts, ",") + ")"
	default:
		return fmt.Sprintf("%T", v)
	}
}
