// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package transform

import "github.com/gogpu/shaderir/ir"

// BuiltinPolyfillLevel selects how a builtin with an undefined or
// target-dependent edge case is polyfilled.
type BuiltinPolyfillLevel uint8

const (
	// PolyfillNone leaves the builtin untouched.
	PolyfillNone BuiltinPolyfillLevel = iota
	// PolyfillClampOrRangeCheck clamps the arguments into their valid range.
	PolyfillClampOrRangeCheck
	// PolyfillFull replaces the builtin entirely. Not supported.
	PolyfillFull
)

// BuiltinPolyfillConfig selects the builtins to polyfill.
type BuiltinPolyfillConfig struct {
	ClampInt                          bool
	CountLeadingZeros                 bool
	CountTrailingZeros                bool
	ExtractBits                       BuiltinPolyfillLevel
	FirstLeadingBit                   bool
	FirstTrailingBit                  bool
	InsertBits                        BuiltinPolyfillLevel
	Saturate                          bool
	TextureSampleBaseClampToEdge2DF32 bool
}

// BuiltinPolyfill replaces calls to the configured builtins with equivalent
// sequences of more primitive instructions.
func BuiltinPolyfill(mod *ir.Module, cfg BuiltinPolyfillConfig) error {
	const name = "BuiltinPolyfill"
	if err := validateAndDumpIfNeeded(mod, name); err != nil {
		return err
	}
	if cfg.ExtractBits == PolyfillFull || cfg.InsertBits == PolyfillFull {
		return NewError(name, ErrUnsupportedConfig, "full extractBits/insertBits polyfill is not supported")
	}

	p := &builtinPolyfill{cfg: cfg, mod: mod, b: ir.NewBuilder(mod), ty: mod.Types}

	var worklist []ir.InstID
	for _, id := range mod.Instructions() {
		inst := mod.Inst(id)
		if inst.Kind != ir.InstBuiltinCall || inst.Block == 0 {
			continue
		}
		if p.wants(inst) {
			worklist = append(worklist, id)
		}
	}

	for _, call := range worklist {
		p.polyfill(call)
	}
	logApplied(name, "calls", len(worklist))
	return nil
}

type builtinPolyfill struct {
	cfg BuiltinPolyfillConfig
	mod *ir.Module
	b   *ir.Builder
	ty  *ir.TypeManager
}

func (p *builtinPolyfill) wants(inst *ir.Instruction) bool {
	switch inst.Builtin {
	case ir.BuiltinClamp:
		return p.cfg.ClampInt && p.ty.IsInteger(p.mod.TypeOf(inst.Result()))
	case ir.BuiltinCountLeadingZeros:
		return p.cfg.CountLeadingZeros
	case ir.BuiltinCountTrailingZeros:
		return p.cfg.CountTrailingZeros
	case ir.BuiltinExtractBits:
		return p.cfg.ExtractBits != PolyfillNone
	case ir.BuiltinFirstLeadingBit:
		return p.cfg.FirstLeadingBit
	case ir.BuiltinFirstTrailingBit:
		return p.cfg.FirstTrailingBit
	case ir.BuiltinInsertBits:
		return p.cfg.InsertBits != PolyfillNone
	case ir.BuiltinSaturate:
		return p.cfg.Saturate
	case ir.BuiltinTextureSampleBaseClampToEdge:
		if !p.cfg.TextureSampleBaseClampToEdge2DF32 {
			return false
		}
		img, ok := p.ty.Image(p.mod.TypeOf(inst.Operands[0]))
		return ok && img.Class == ir.ImageClassSampled && img.Dim == ir.Dim2D &&
			!img.Arrayed && !img.Multisampled && img.SampledKind == ir.ScalarFloat
	default:
		return false
	}
}

func (p *builtinPolyfill) polyfill(call ir.InstID) {
	inst := p.mod.Inst(call)
	var replacement ir.ValueID
	switch inst.Builtin {
	case ir.BuiltinClamp:
		replacement = p.clampInt(call)
	case ir.BuiltinCountLeadingZeros:
		replacement = p.countLeadingZeros(call)
	case ir.BuiltinCountTrailingZeros:
		replacement = p.countTrailingZeros(call)
	case ir.BuiltinExtractBits:
		replacement = p.clampBitRange(call, 1)
	case ir.BuiltinFirstLeadingBit:
		replacement = p.firstLeadingBit(call)
	case ir.BuiltinFirstTrailingBit:
		replacement = p.firstTrailingBit(call)
	case ir.BuiltinInsertBits:
		replacement = p.clampBitRange(call, 2)
	case ir.BuiltinSaturate:
		replacement = p.saturate(call)
	case ir.BuiltinTextureSampleBaseClampToEdge:
		replacement = p.textureSampleBaseClampToEdge(call)
	default:
		ice("no polyfill for builtin %s", inst.Builtin)
	}

	result := inst.Result()
	if replacement == result {
		return
	}
	if name := p.mod.NameOf(result); name != "" {
		p.mod.SetName(replacement, name)
	}
	p.mod.ReplaceAllUsesWith(result, replacement)
	p.mod.Destroy(call)
}

// v returns the u32 constant n splatted to the width of like.
func (p *builtinPolyfill) v(n uint32, like ir.TypeHandle) ir.ValueID {
	return p.b.MatchWidth(p.b.U32(n), like)
}

func (p *builtinPolyfill) clampInt(call ir.InstID) ir.ValueID {
	inst := p.mod.Inst(call)
	ty := p.mod.TypeOf(inst.Result())
	e, low, high := inst.Operands[0], inst.Operands[1], inst.Operands[2]
	var result ir.ValueID
	p.b.InsertBefore(call, func() {
		hi := p.b.Call(ty, ir.BuiltinMax, e, low)
		result = p.b.Call(ty, ir.BuiltinMin, hi, high)
	})
	return result
}

// countLeadingZeros expands to a branchless binary search:
//
//	b16 = select(0, 16, x <= 0x0000ffff); x <<= b16
//	b8  = select(0, 8,  x <= 0x00ffffff); x <<= b8
//	b4  = select(0, 4,  x <= 0x0fffffff); x <<= b4
//	b2  = select(0, 2,  x <= 0x3fffffff); x <<= b2
//	b1  = select(0, 1,  x <= 0x7fffffff)
//	b0  = select(0, 1,  x == 0)
//	result = (b16 | b8 | b4 | b2 | b1) + b0
func (p *builtinPolyfill) countLeadingZeros(call ir.InstID) ir.ValueID {
	inst := p.mod.Inst(call)
	x := inst.Operands[0]
	resultTy := p.mod.TypeOf(x)
	uintTy := p.ty.MatchWidth(p.ty.U32(), resultTy)
	signed := p.ty.IsSignedInt(resultTy)

	var result ir.ValueID
	p.b.InsertBefore(call, func() {
		if signed {
			x = p.b.Bitcast(uintTy, x)
		}
		step := func(n, limit uint32) ir.ValueID {
			cond := p.b.LessThanEqual(x, p.v(limit, resultTy))
			return p.b.Call(uintTy, ir.BuiltinSelect, p.v(0, resultTy), p.v(n, resultTy), cond)
		}
		b16 := step(16, 0x0000ffff)
		x = p.b.ShiftLeft(uintTy, x, b16)
		b8 := step(8, 0x00ffffff)
		x = p.b.ShiftLeft(uintTy, x, b8)
		b4 := step(4, 0x0fffffff)
		x = p.b.ShiftLeft(uintTy, x, b4)
		b2 := step(2, 0x3fffffff)
		x = p.b.ShiftLeft(uintTy, x, b2)
		b1 := step(1, 0x7fffffff)
		b0 := p.b.Call(uintTy, ir.BuiltinSelect, p.v(0, resultTy), p.v(1, resultTy),
			p.b.Equal(x, p.v(0, resultTy)))
		or := p.orChain(uintTy, b16, b8, b4, b2, b1)
		result = p.b.Add(uintTy, or, b0)
		if signed {
			result = p.b.Bitcast(resultTy, result)
		}
	})
	return result
}

// countTrailingZeros mirrors countLeadingZeros, testing the low bits and
// shifting right.
func (p *builtinPolyfill) countTrailingZeros(call ir.InstID) ir.ValueID {
	inst := p.mod.Inst(call)
	x := inst.Operands[0]
	resultTy := p.mod.TypeOf(x)
	uintTy := p.ty.MatchWidth(p.ty.U32(), resultTy)
	signed := p.ty.IsSignedInt(resultTy)

	var result ir.ValueID
	p.b.InsertBefore(call, func() {
		if signed {
			x = p.b.Bitcast(uintTy, x)
		}
		b16 := p.lowBitsZero(uintTy, resultTy, x, 0x0000ffff, 0, 16)
		x = p.b.ShiftRight(uintTy, x, b16)
		b8 := p.lowBitsZero(uintTy, resultTy, x, 0x000000ff, 0, 8)
		x = p.b.ShiftRight(uintTy, x, b8)
		b4 := p.lowBitsZero(uintTy, resultTy, x, 0x0000000f, 0, 4)
		x = p.b.ShiftRight(uintTy, x, b4)
		b2 := p.lowBitsZero(uintTy, resultTy, x, 0x00000003, 0, 2)
		x = p.b.ShiftRight(uintTy, x, b2)
		b1 := p.lowBitsZero(uintTy, resultTy, x, 0x00000001, 0, 1)
		b0 := p.b.Call(uintTy, ir.BuiltinSelect, p.v(0, resultTy), p.v(1, resultTy),
			p.b.Equal(x, p.v(0, resultTy)))
		or := p.orChain(uintTy, b16, b8, b4, b2, b1)
		result = p.b.Add(uintTy, or, b0)
		if signed {
			result = p.b.Bitcast(resultTy, result)
		}
	})
	return result
}

// firstLeadingBit finds the highest set bit. Signed inputs are complemented
// when negative so the scan finds the first bit differing from the sign.
//
//	b16 = select(16, 0, (x & 0xffff0000) == 0); x >>= b16
//	b8  = select(8, 0,  (x & 0x0000ff00) == 0); x >>= b8
//	b4  = select(4, 0,  (x & 0x000000f0) == 0); x >>= b4
//	b2  = select(2, 0,  (x & 0x0000000c) == 0); x >>= b2
//	b1  = select(1, 0,  (x & 0x00000002) == 0)
//	result = select(b16 | b8 | b4 | b2 | b1, 0xffffffff, x == 0)
func (p *builtinPolyfill) firstLeadingBit(call ir.InstID) ir.ValueID {
	inst := p.mod.Inst(call)
	x := inst.Operands[0]
	resultTy := p.mod.TypeOf(x)
	uintTy := p.ty.MatchWidth(p.ty.U32(), resultTy)
	signed := p.ty.IsSignedInt(resultTy)

	var result ir.ValueID
	p.b.InsertBefore(call, func() {
		if signed {
			x = p.b.Bitcast(uintTy, x)
			inverted := p.b.Complement(uintTy, x)
			x = p.b.Call(uintTy, ir.BuiltinSelect, inverted, x,
				p.b.LessThan(x, p.v(0x80000000, resultTy)))
		}
		b16 := p.lowBitsZero(uintTy, resultTy, x, 0xffff0000, 16, 0)
		x = p.b.ShiftRight(uintTy, x, b16)
		b8 := p.lowBitsZero(uintTy, resultTy, x, 0x0000ff00, 8, 0)
		x = p.b.ShiftRight(uintTy, x, b8)
		b4 := p.lowBitsZero(uintTy, resultTy, x, 0x000000f0, 4, 0)
		x = p.b.ShiftRight(uintTy, x, b4)
		b2 := p.lowBitsZero(uintTy, resultTy, x, 0x0000000c, 2, 0)
		x = p.b.ShiftRight(uintTy, x, b2)
		b1 := p.lowBitsZero(uintTy, resultTy, x, 0x00000002, 1, 0)
		result = p.orChain(uintTy, b16, b8, b4, b2, b1)
		result = p.b.Call(uintTy, ir.BuiltinSelect, result, p.v(0xffffffff, resultTy),
			p.b.Equal(x, p.v(0, resultTy)))
		if signed {
			result = p.b.Bitcast(resultTy, result)
		}
	})
	return result
}

// firstTrailingBit finds the lowest set bit, scanning from the low half up.
func (p *builtinPolyfill) firstTrailingBit(call ir.InstID) ir.ValueID {
	inst := p.mod.Inst(call)
	x := inst.Operands[0]
	resultTy := p.mod.TypeOf(x)
	uintTy := p.ty.MatchWidth(p.ty.U32(), resultTy)
	signed := p.ty.IsSignedInt(resultTy)

	var result ir.ValueID
	p.b.InsertBefore(call, func() {
		if signed {
			x = p.b.Bitcast(uintTy, x)
		}
		b16 := p.lowBitsZero(uintTy, resultTy, x, 0x0000ffff, 0, 16)
		x = p.b.ShiftRight(uintTy, x, b16)
		b8 := p.lowBitsZero(uintTy, resultTy, x, 0x000000ff, 0, 8)
		x = p.b.ShiftRight(uintTy, x, b8)
		b4 := p.lowBitsZero(uintTy, resultTy, x, 0x0000000f, 0, 4)
		x = p.b.ShiftRight(uintTy, x, b4)
		b2 := p.lowBitsZero(uintTy, resultTy, x, 0x00000003, 0, 2)
		x = p.b.ShiftRight(uintTy, x, b2)
		b1 := p.lowBitsZero(uintTy, resultTy, x, 0x00000001, 0, 1)
		result = p.orChain(uintTy, b16, b8, b4, b2, b1)
		result = p.b.Call(uintTy, ir.BuiltinSelect, result, p.v(0xffffffff, resultTy),
			p.b.Equal(x, p.v(0, resultTy)))
		if signed {
			result = p.b.Bitcast(resultTy, result)
		}
	})
	return result
}

// lowBitsZero emits select(f, t, (x & mask) == 0).
func (p *builtinPolyfill) lowBitsZero(uintTy, like ir.TypeHandle, x ir.ValueID, mask, f, t uint32) ir.ValueID {
	masked := p.b.And(uintTy, x, p.v(mask, like))
	cond := p.b.Equal(masked, p.v(0, like))
	return p.b.Call(uintTy, ir.BuiltinSelect, p.v(f, like), p.v(t, like), cond)
}

// orChain emits v0 | (v1 | (... | vn)), innermost first.
func (p *builtinPolyfill) orChain(ty ir.TypeHandle, vals ...ir.ValueID) ir.ValueID {
	acc := vals[len(vals)-1]
	for i := len(vals) - 2; i >= 0; i-- {
		acc = p.b.Or(ty, vals[i], acc)
	}
	return acc
}

// clampBitRange clamps the offset and count arguments of extractBits or
// insertBits in place. offsetArg is the operand index of the offset.
//
//	o = min(offset, 32)
//	c = min(count, 32 - o)
func (p *builtinPolyfill) clampBitRange(call ir.InstID, offsetArg int) ir.ValueID {
	inst := p.mod.Inst(call)
	offset, count := inst.Operands[offsetArg], inst.Operands[offsetArg+1]
	u32 := p.ty.U32()
	p.b.InsertBefore(call, func() {
		o := p.b.Call(u32, ir.BuiltinMin, offset, p.b.U32(32))
		c := p.b.Call(u32, ir.BuiltinMin, count, p.b.Sub(u32, p.b.U32(32), o))
		p.mod.SetOperand(call, offsetArg, o)
		p.mod.SetOperand(call, offsetArg+1, c)
	})
	return inst.Result()
}

// saturate replaces saturate(x) with clamp(x, 0.0, 1.0).
func (p *builtinPolyfill) saturate(call ir.InstID) ir.ValueID {
	inst := p.mod.Inst(call)
	ty := p.mod.TypeOf(inst.Result())
	var zero, one ir.ValueID
	if elem, _ := p.ty.ScalarOf(ty); elem.Width == 2 {
		zero = p.b.MatchWidth(p.b.F16(0), ty)
		one = p.b.MatchWidth(p.b.F16(1), ty)
	} else {
		zero = p.b.MatchWidth(p.b.F32(0), ty)
		one = p.b.MatchWidth(p.b.F32(1), ty)
	}
	var result ir.ValueID
	p.b.InsertBefore(call, func() {
		result = p.b.Call(ty, ir.BuiltinClamp, inst.Operands[0], zero, one)
	})
	return result
}

// textureSampleBaseClampToEdge samples at level 0 with coordinates kept half
// a texel away from the edges:
//
//	dims    = vec2<f32>(textureDimensions(t))
//	half    = vec2<f32>(0.5) / dims
//	clamped = clamp(coords, half, 1.0 - half)
//	result  = textureSampleLevel(t, s, clamped, 0.0)
func (p *builtinPolyfill) textureSampleBaseClampToEdge(call ir.InstID) ir.ValueID {
	inst := p.mod.Inst(call)
	texture, sampler, coords := inst.Operands[0], inst.Operands[1], inst.Operands[2]
	f32 := p.ty.F32()
	vec2f := p.ty.Vec(f32, 2)
	var result ir.ValueID
	p.b.InsertBefore(call, func() {
		dims := p.b.Call(p.ty.Vec(p.ty.U32(), 2), ir.BuiltinTextureDimensions, texture)
		fdims := p.b.Convert(vec2f, dims)
		half := p.b.Div(vec2f, p.b.Splat(vec2f, p.b.F32(0.5)), fdims)
		oneMinusHalf := p.b.Sub(vec2f, p.b.Splat(vec2f, p.b.F32(1)), half)
		clamped := p.b.Call(vec2f, ir.BuiltinClamp, coords, half, oneMinusHalf)
		result = p.b.Call(p.ty.Vec(f32, 4), ir.BuiltinTextureSampleLevel, texture, sampler, clamped, p.b.F32(0))
	})
	return result
}
