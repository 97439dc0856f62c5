// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package transform

import (
	"fmt"

	"github.com/gogpu/shaderir/ir"
)

// ExternalTextureBindings names the extra resources an external texture is
// split into. Plane 0 keeps the binding point of the original texture.
type ExternalTextureBindings struct {
	Plane1 ir.BindingPoint
	Params ir.BindingPoint
}

// ExternalTextureOptions configures MultiplanarExternalTexture.
type ExternalTextureOptions struct {
	// BindingsMap maps the binding point of each external texture to the
	// bindings of its second plane and its parameter buffer.
	BindingsMap map[ir.BindingPoint]ExternalTextureBindings
}

// MultiplanarExternalTexture lowers texture_external to two sampled 2D
// planes and a uniform block of conversion parameters.
//
// Every module-scope external texture becomes three variables. Function
// parameters of external texture type become three parameters and call
// sites pass the three pieces. textureLoad and
// textureSampleBaseClampToEdge are replaced with calls to generated
// functions that perform the YUV to RGB and gamma conversions;
// textureDimensions queries plane 0.
func MultiplanarExternalTexture(mod *ir.Module, opts ExternalTextureOptions) error {
	const name = "MultiplanarExternalTexture"
	if err := validateAndDumpIfNeeded(mod, name); err != nil {
		return err
	}

	m := &multiplanar{mod: mod, b: ir.NewBuilder(mod), ty: mod.Types, opts: opts}

	var vars []ir.InstID
	for _, id := range mod.RootVars() {
		if mod.Types.IsExternalTexture(mod.Types.UnwrapPtr(mod.TypeOf(mod.Inst(id).Result()))) {
			vars = append(vars, id)
		}
	}
	for _, id := range vars {
		bp := mod.Inst(id).BindingPoint
		if bp == nil {
			return NewError(name, ErrMissingBinding, "external texture has no binding point")
		}
		if _, ok := opts.BindingsMap[*bp]; !ok {
			return NewError(name, ErrMissingBinding,
				fmt.Sprintf("no bindings for external texture at (%d, %d)", bp.Group, bp.Binding))
		}
	}

	for _, id := range vars {
		m.replaceVar(id)
	}
	params := 0
	for _, f := range mod.Functions() {
		params += m.replaceParams(f)
	}

	logApplied(name, "textures", len(vars), "params", params)
	return nil
}

type multiplanar struct {
	mod  *ir.Module
	b    *ir.Builder
	ty   *ir.TypeManager
	opts ExternalTextureOptions

	gammaParams  ir.TypeHandle
	params       ir.TypeHandle
	loadHelper   ir.FuncID
	sampleHelper ir.FuncID
	gammaHelper  ir.FuncID
}

func (m *multiplanar) plane() ir.TypeHandle {
	return m.ty.SampledTexture(ir.Dim2D, false, ir.ScalarFloat)
}

// paramsType returns tint_ExternalTextureParams, declaring it and
// tint_GammaTransferParams on first use.
func (m *multiplanar) paramsType() ir.TypeHandle {
	if m.params != 0 {
		return m.params
	}
	f32, u32 := m.ty.F32(), m.ty.U32()
	m.gammaParams = m.ty.Struct("tint_GammaTransferParams", []ir.StructMember{
		{Name: "G", Type: f32},
		{Name: "A", Type: f32},
		{Name: "B", Type: f32},
		{Name: "C", Type: f32},
		{Name: "D", Type: f32},
		{Name: "E", Type: f32},
		{Name: "F", Type: f32},
		{Name: "padding", Type: u32},
	})
	m.params = m.ty.Struct("tint_ExternalTextureParams", []ir.StructMember{
		{Name: "numPlanes", Type: u32},
		{Name: "doYuvToRgbConversionOnly", Type: u32},
		{Name: "yuvToRgbConversionMatrix", Type: m.ty.Mat(f32, 3, 4)},
		{Name: "gammaDecodeParams", Type: m.gammaParams},
		{Name: "gammaEncodeParams", Type: m.gammaParams},
		{Name: "gamutConversionMatrix", Type: m.ty.Mat(f32, 3, 3)},
		{Name: "coordTransformationMatrix", Type: m.ty.Mat(f32, 3, 2)},
	})
	return m.params
}

func suffixed(name, suffix string) string {
	if name == "" {
		return ""
	}
	return name + suffix
}

// replaceVar splits a module-scope external texture into its planes and
// parameter block, and rewrites every load of it.
func (m *multiplanar) replaceVar(id ir.InstID) {
	inst := m.mod.Inst(id)
	old := inst.Result()
	ptr, _ := m.ty.Pointer(m.mod.TypeOf(old))
	bp := *inst.BindingPoint
	bindings := m.opts.BindingsMap[bp]
	name := m.mod.NameOf(old)
	paramsTy := m.paramsType()

	var plane0, plane1, params ir.ValueID
	m.b.InsertBefore(id, func() {
		plane0 = m.b.BindingVar(suffixed(name, "_plane0"), ir.SpaceHandle, m.plane(), ptr.Access, bp)
		plane1 = m.b.BindingVar(suffixed(name, "_plane1"), ir.SpaceHandle, m.plane(), ptr.Access, bindings.Plane1)
		params = m.b.BindingVar(suffixed(name, "_params"), ir.SpaceUniform, paramsTy, ptr.Access, bindings.Params)
	})

	for _, u := range m.mod.Uses(old) {
		load := m.mod.Inst(u.Inst)
		if load.Kind != ir.InstLoad {
			ice("unexpected %s of an external texture variable", load.Kind)
		}
		var p0, p1, p ir.ValueID
		m.b.InsertBefore(u.Inst, func() {
			p0 = m.b.Load(plane0)
			p1 = m.b.Load(plane1)
			p = m.b.Load(params)
		})
		m.replaceUses(load.Result(), p0, p1, p)
		m.mod.Destroy(u.Inst)
	}
	m.mod.Destroy(id)
}

// replaceParams splits the external texture parameters of f and returns
// how many it replaced.
func (m *multiplanar) replaceParams(f ir.FuncID) int {
	fn := m.mod.Func(f)
	var out []ir.ValueID
	n := 0
	for _, p := range fn.Params {
		if !m.ty.IsExternalTexture(m.mod.TypeOf(p)) {
			out = append(out, p)
			continue
		}
		name := m.mod.NameOf(p)
		p0 := m.b.FunctionParam(suffixed(name, "_plane0"), m.plane())
		p1 := m.b.FunctionParam(suffixed(name, "_plane1"), m.plane())
		pp := m.b.FunctionParam(suffixed(name, "_params"), m.paramsType())
		out = append(out, p0, p1, pp)
		m.replaceUses(p, p0, p1, pp)
		n++
	}
	if n > 0 {
		m.mod.SetParams(f, out...)
	}
	return n
}

// replaceUses rewrites every use of the external texture value tex in
// terms of its planes and parameters.
func (m *multiplanar) replaceUses(tex, plane0, plane1, params ir.ValueID) {
	for _, u := range m.mod.Uses(tex) {
		if !m.mod.Alive(u.Inst) {
			continue
		}
		inst := m.mod.Inst(u.Inst)
		switch inst.Kind {
		case ir.InstBuiltinCall:
			switch inst.Builtin {
			case ir.BuiltinTextureDimensions:
				m.mod.SetOperand(u.Inst, u.Operand, plane0)
			case ir.BuiltinTextureLoad:
				m.textureLoad(u.Inst, plane0, plane1, params)
			case ir.BuiltinTextureSampleBaseClampToEdge:
				m.textureSample(u.Inst, plane0, plane1, params)
			default:
				ice("unhandled external texture builtin %s", inst.Builtin)
			}
		case ir.InstUserCall:
			// Expand by value so that several texture arguments of one call
			// can be rewritten in turn.
			var args []ir.ValueID
			for _, op := range inst.Operands {
				if op == tex {
					args = append(args, plane0, plane1, params)
				} else {
					args = append(args, op)
				}
			}
			m.mod.SetOperands(u.Inst, args...)
		default:
			ice("unhandled use of an external texture in %s", inst.Kind)
		}
	}
}

func (m *multiplanar) replaceCall(call ir.InstID, helper ir.FuncID, args ...ir.ValueID) {
	result := m.mod.Inst(call).Result()
	var replacement ir.ValueID
	m.b.InsertBefore(call, func() {
		replacement = m.b.CallFunc(helper, args...)
	})
	m.mod.ReplaceAllUsesWith(result, replacement)
	m.mod.Destroy(call)
}

func (m *multiplanar) textureLoad(call ir.InstID, plane0, plane1, params ir.ValueID) {
	coords := m.mod.Inst(call).Operands[1]
	if m.ty.IsSignedInt(m.mod.TypeOf(coords)) {
		m.b.InsertBefore(call, func() {
			coords = m.b.Convert(m.ty.Vec(m.ty.U32(), 2), coords)
		})
	}
	m.replaceCall(call, m.textureLoadExternal(), plane0, plane1, params, coords)
}

func (m *multiplanar) textureSample(call ir.InstID, plane0, plane1, params ir.ValueID) {
	ops := m.mod.Inst(call).Operands
	sampler, coords := ops[1], ops[2]
	m.replaceCall(call, m.textureSampleExternal(), plane0, plane1, params, sampler, coords)
}

// textureLoadExternal returns tint_TextureLoadExternal, creating it on
// first use.
func (m *multiplanar) textureLoadExternal() ir.FuncID {
	if m.loadHelper != 0 {
		return m.loadHelper
	}
	vec2u := m.ty.Vec(m.ty.U32(), 2)
	plane0 := m.b.FunctionParam("plane_0", m.plane())
	plane1 := m.b.FunctionParam("plane_1", m.plane())
	params := m.b.FunctionParam("params", m.paramsType())
	coords := m.b.FunctionParam("coords", vec2u)
	f := m.b.Function(m.mod.Symbols.New("tint_TextureLoadExternal"), m.ty.Vec(m.ty.F32(), 4),
		plane0, plane1, params, coords)
	m.loadHelper = f

	m.b.Append(m.mod.Func(f).Block, func() {
		m.conversionBody(params, nil, func(plane ir.ValueID, second bool) ir.ValueID {
			at := coords
			if second {
				at = m.b.ShiftRight(vec2u, coords, m.b.Splat(vec2u, m.b.U32(1)))
			}
			return m.b.Call(m.ty.Vec(m.ty.F32(), 4), ir.BuiltinTextureLoad, plane, at, m.b.U32(0))
		}, plane0, plane1)
	})
	return f
}

// textureSampleExternal returns tint_TextureSampleExternal, creating it on
// first use.
func (m *multiplanar) textureSampleExternal() ir.FuncID {
	if m.sampleHelper != 0 {
		return m.sampleHelper
	}
	f32 := m.ty.F32()
	vec2f := m.ty.Vec(f32, 2)
	plane0 := m.b.FunctionParam("plane_0", m.plane())
	plane1 := m.b.FunctionParam("plane_1", m.plane())
	params := m.b.FunctionParam("params", m.paramsType())
	sampler := m.b.FunctionParam("sampler", m.ty.Sampler())
	coords := m.b.FunctionParam("coords", vec2f)
	f := m.b.Function(m.mod.Symbols.New("tint_TextureSampleExternal"), m.ty.Vec(f32, 4),
		plane0, plane1, params, sampler, coords)
	m.sampleHelper = f

	m.b.Append(m.mod.Func(f).Block, func() {
		var clamped [2]ir.ValueID
		prelude := func() {
			transform := m.b.Access(m.ty.Mat(f32, 3, 2), params, m.b.U32(6))
			uv := m.b.Construct(m.ty.Vec(f32, 3), coords, m.b.F32(1))
			modified := m.b.Mul(vec2f, transform, uv)
			for i, plane := range []ir.ValueID{plane0, plane1} {
				dims := m.b.Call(m.ty.Vec(m.ty.U32(), 2), ir.BuiltinTextureDimensions, plane)
				size := m.b.Convert(vec2f, dims)
				half := m.b.Div(vec2f, m.b.Splat(vec2f, m.b.F32(0.5)), size)
				upper := m.b.Sub(vec2f, m.b.F32(1), half)
				clamped[i] = m.b.Call(vec2f, ir.BuiltinClamp, modified, half, upper)
			}
		}
		m.conversionBody(params, prelude, func(plane ir.ValueID, second bool) ir.ValueID {
			at := clamped[0]
			if second {
				at = clamped[1]
			}
			return m.b.Call(m.ty.Vec(f32, 4), ir.BuiltinTextureSampleLevel, plane, sampler, at, m.b.F32(0))
		}, plane0, plane1)
	})
	return f
}

// conversionBody emits the shared body of the texture helpers at the
// builder's insertion point. fetch reads one texel of a plane; second is
// set for plane 1.
func (m *multiplanar) conversionBody(params ir.ValueID, prelude func(),
	fetch func(plane ir.ValueID, second bool) ir.ValueID, plane0, plane1 ir.ValueID) {
	f32, u32 := m.ty.F32(), m.ty.U32()
	vec3f, vec4f := m.ty.Vec(f32, 3), m.ty.Vec(f32, 4)

	yuvOnly := m.b.Access(u32, params, m.b.U32(1))
	yuvToRgb := m.b.Access(m.ty.Mat(f32, 3, 4), params, m.b.U32(2))
	if prelude != nil {
		prelude()
	}
	numPlanes := m.b.Access(u32, params, m.b.U32(0))

	single := m.b.If(m.b.Equal(numPlanes, m.b.U32(1)))
	rgb := m.mod.AddResult(single, vec3f)
	alpha := m.mod.AddResult(single, f32)
	m.b.Append(m.b.True(single), func() {
		texel := fetch(plane0, false)
		m.b.ExitIf(single, m.b.Swizzle(vec3f, texel, 0, 1, 2), m.b.Access(f32, texel, m.b.U32(3)))
	})
	m.b.Append(m.b.False(single), func() {
		y := m.b.Access(f32, fetch(plane0, false), m.b.U32(0))
		uv := m.b.Swizzle(m.ty.Vec(f32, 2), fetch(plane1, true), 0, 1)
		yuv := m.b.Construct(vec4f, y, uv, m.b.F32(1))
		m.b.ExitIf(single, m.b.Mul(vec3f, yuv, yuvToRgb), m.b.F32(1))
	})

	convert := m.b.If(m.b.Equal(yuvOnly, m.b.U32(0)))
	color := m.mod.AddResult(convert, vec3f)
	m.b.Append(m.b.True(convert), func() {
		decode := m.b.Access(m.gammaParams, params, m.b.U32(3))
		encode := m.b.Access(m.gammaParams, params, m.b.U32(4))
		gamut := m.b.Access(m.ty.Mat(f32, 3, 3), params, m.b.U32(5))
		linear := m.b.CallFunc(m.gammaCorrection(), rgb, decode)
		mapped := m.b.Mul(vec3f, gamut, linear)
		m.b.ExitIf(convert, m.b.CallFunc(m.gammaCorrection(), mapped, encode))
	})
	m.b.Append(m.b.False(convert), func() {
		m.b.ExitIf(convert, rgb)
	})

	m.b.Return(m.b.Construct(vec4f, color, alpha))
}

// gammaCorrection returns tint_GammaCorrection, creating it on first use:
//
//	cond = abs(v) < D
//	t = sign(v) * (C * abs(v) + F)
//	f = sign(v) * (pow(A * abs(v) + B, G) + E)
//	return select(f, t, cond)
func (m *multiplanar) gammaCorrection() ir.FuncID {
	if m.gammaHelper != 0 {
		return m.gammaHelper
	}
	f32 := m.ty.F32()
	vec3f := m.ty.Vec(f32, 3)
	v := m.b.FunctionParam("v", vec3f)
	params := m.b.FunctionParam("params", m.gammaParams)
	f := m.b.Function(m.mod.Symbols.New("tint_GammaCorrection"), vec3f, v, params)
	m.gammaHelper = f

	m.b.Append(m.mod.Func(f).Block, func() {
		var c [7]ir.ValueID
		for i := range c {
			c[i] = m.b.Access(f32, params, m.b.U32(uint32(i)))
		}
		G, A, B, C, D, E, F := c[0], c[1], c[2], c[3], c[4], c[5], c[6]

		gv := m.b.Construct(vec3f, G)
		dv := m.b.Construct(vec3f, D)
		abs := m.b.Call(vec3f, ir.BuiltinAbs, v)
		sign := m.b.Call(vec3f, ir.BuiltinSign, v)
		cond := m.b.LessThan(abs, dv)
		t := m.b.Mul(vec3f, sign, m.b.Add(vec3f, m.b.Mul(vec3f, C, abs), F))
		fv := m.b.Mul(vec3f, sign,
			m.b.Add(vec3f, m.b.Call(vec3f, ir.BuiltinPow, m.b.Add(vec3f, m.b.Mul(vec3f, A, abs), B), gv), E))
		m.b.Return(m.b.Call(vec3f, ir.BuiltinSelect, fv, t, cond))
	})
	return f
}
