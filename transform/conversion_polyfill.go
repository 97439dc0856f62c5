// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package transform

import (
	"fmt"
	"math"

	"github.com/gogpu/shaderir/ir"
)

// ConversionPolyfillConfig selects the conversions to polyfill.
type ConversionPolyfillConfig struct {
	// FtoI clamps float-to-integer conversions to the range of the
	// destination type.
	FtoI bool
}

// ConversionPolyfill replaces value conversions that have undefined
// behavior on some targets with calls to helper functions that define it.
//
// Float-to-integer conversions saturate: inputs below the destination
// range produce its minimum, inputs above produce its maximum.
func ConversionPolyfill(mod *ir.Module, cfg ConversionPolyfillConfig) error {
	const name = "ConversionPolyfill"
	if err := validateAndDumpIfNeeded(mod, name); err != nil {
		return err
	}
	if !cfg.FtoI {
		return nil
	}

	p := &conversionPolyfill{
		mod:     mod,
		b:       ir.NewBuilder(mod),
		ty:      mod.Types,
		helpers: make(map[conversionKey]ir.FuncID),
	}

	var worklist []ir.InstID
	for _, id := range mod.Instructions() {
		inst := mod.Inst(id)
		if inst.Kind != ir.InstConvert || inst.Block == 0 {
			continue
		}
		src := mod.TypeOf(inst.Operands[0])
		dst := mod.TypeOf(inst.Result())
		if p.ty.IsFloat(src) && p.ty.IsInteger(dst) {
			worklist = append(worklist, id)
		}
	}

	for _, conv := range worklist {
		p.ftoi(conv)
	}
	logApplied(name, "conversions", len(worklist), "helpers", len(p.helpers))
	return nil
}

type conversionKey struct {
	src, dst ir.TypeHandle
}

type conversionPolyfill struct {
	mod     *ir.Module
	b       *ir.Builder
	ty      *ir.TypeManager
	helpers map[conversionKey]ir.FuncID
}

func (p *conversionPolyfill) ftoi(conv ir.InstID) {
	inst := p.mod.Inst(conv)
	value := inst.Operands[0]
	result := inst.Result()
	helper := p.ftoiHelper(p.mod.TypeOf(value), p.mod.TypeOf(result))

	var call ir.ValueID
	p.b.InsertBefore(conv, func() {
		call = p.b.CallFunc(helper, value)
	})
	if name := p.mod.NameOf(result); name != "" {
		p.mod.SetName(call, name)
	}
	p.mod.ReplaceAllUsesWith(result, call)
	p.mod.Destroy(conv)
}

// ftoiHelper returns the function converting src to dst, creating it on
// first use:
//
//	fn tint_f32_to_i32(value: f32) -> i32 {
//	  let i = i32(value);
//	  let lo = select(i32_min, i, value >= low);
//	  return select(i32_max, lo, value <= high);
//	}
func (p *conversionPolyfill) ftoiHelper(src, dst ir.TypeHandle) ir.FuncID {
	key := conversionKey{src: src, dst: dst}
	if f, ok := p.helpers[key]; ok {
		return f
	}

	lowF, highF, lowI, highI := p.limits(src, dst)

	name := p.mod.Symbols.New("tint_" + p.tag(src) + "_to_" + p.tag(dst))
	value := p.b.FunctionParam("value", src)
	f := p.b.Function(name, dst, value)
	p.b.Append(p.mod.Func(f).Block, func() {
		converted := p.b.Convert(dst, value)
		lowCond := p.b.GreaterThanEqual(value, lowF)
		low := p.b.Call(dst, ir.BuiltinSelect, lowI, converted, lowCond)
		highCond := p.b.LessThanEqual(value, highF)
		high := p.b.Call(dst, ir.BuiltinSelect, highI, low, highCond)
		p.b.Return(high)
	})
	p.helpers[key] = f
	return f
}

// limits returns the float bounds of the representable range of dst, and
// the integers substituted outside them. The float bounds are the largest
// values of the source type that convert without overflow.
func (p *conversionPolyfill) limits(src, dst ir.TypeHandle) (lowF, highF, lowI, highI ir.ValueID) {
	srcScalar, _ := p.ty.ScalarOf(src)
	signed := p.ty.IsSignedInt(dst)

	var lo, hi float64
	var loInt, hiInt float64
	switch {
	case srcScalar.Width == 2 && signed:
		lo, hi = -65504, 65504
		loInt, hiInt = -65504, 65504
	case srcScalar.Width == 2:
		lo, hi = 0, 65504
		loInt, hiInt = 0, 65504
	case signed:
		lo, hi = math.MinInt32, 2147483520
		loInt, hiInt = math.MinInt32, math.MaxInt32
	default:
		lo, hi = 0, 4294967040
		loInt, hiInt = 0, math.MaxUint32
	}
	return p.b.ScalarLike(lo, src), p.b.ScalarLike(hi, src),
		p.b.ScalarLike(loInt, dst), p.b.ScalarLike(hiInt, dst)
}

// tag returns the short type name used in helper names, e.g. f32 or v2u32.
func (p *conversionPolyfill) tag(ty ir.TypeHandle) string {
	s, ok := p.ty.ScalarOf(ty)
	if !ok {
		ice("conversion of non-numeric type %s", p.ty.Name(ty))
	}
	if w := p.ty.Width(ty); w > 1 {
		return fmt.Sprintf("v%d%s", w, s)
	}
	return s.String()
}
