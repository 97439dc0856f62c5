package shaderir

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gogpu/shaderir/ir"
)

var samples = map[string]func() *ir.Module{
	"workgroup": workgroupSample,
	"bits":      bitsSample,
	"external":  externalSample,
}

// Samples returns the names accepted by Sample, sorted.
func Samples() []string {
	return slices.Sorted(maps.Keys(samples))
}

// Sample builds a small, valid module that exercises the transforms:
//   - "workgroup": a compute shader transposing a tile in workgroup memory
//   - "bits": a compute shader using bit scans and float-to-int conversion
//   - "external": a compute shader reading a texture_external
func Sample(name string) (*ir.Module, error) {
	build, ok := samples[name]
	if !ok {
		return nil, fmt.Errorf("unknown sample %q (want one of %v)", name, Samples())
	}
	return build(), nil
}

func builtinParam(b *ir.Builder, name string, ty ir.TypeHandle, builtin ir.BuiltinValue) ir.ValueID {
	p := b.FunctionParam(name, ty)
	b.Mod.Value(p).Binding = ir.BuiltinBinding{Builtin: builtin}
	return p
}

func workgroupSample() *ir.Module {
	mod := ir.NewModule()
	b := ir.NewBuilder(mod)
	ty := mod.Types
	u32, f32 := ty.U32(), ty.F32()

	var tile, hits, data ir.ValueID
	b.Append(mod.Root, func() {
		tile = b.Var("tile", ir.SpaceWorkGroup, ty.Array(ty.Array(f32, 8), 8), ir.AccessReadWrite)
		hits = b.Var("hits", ir.SpaceWorkGroup, ty.Atomic(u32), ir.AccessReadWrite)
		data = b.BindingVar("data", ir.SpaceStorage, ty.RuntimeArray(f32), ir.AccessReadWrite, ir.BindingPoint{})
	})

	lid := builtinParam(b, "lid", ty.Vec(u32, 3), ir.BuiltinLocalInvocationID)
	idx := builtinParam(b, "idx", u32, ir.BuiltinLocalInvocationIndex)
	main := b.ComputeEntryPoint("main", 8, 8, 1)
	mod.SetParams(main, lid, idx)
	b.Append(mod.Func(main).Block, func() {
		x := b.Swizzle(u32, lid, 0)
		y := b.Swizzle(u32, lid, 1)
		elem := ty.Ptr(ir.SpaceStorage, f32, ir.AccessReadWrite)
		cell := ty.Ptr(ir.SpaceWorkGroup, f32, ir.AccessReadWrite)

		b.Store(b.Access(cell, tile, y, x), b.Load(b.Access(elem, data, idx)))
		b.Call(u32, ir.BuiltinAtomicAdd, hits, b.U32(1))
		b.Call(ty.Void(), ir.BuiltinWorkgroupBarrier)
		b.Store(b.Access(elem, data, idx), b.Load(b.Access(cell, tile, x, y)))
		b.Return()
	})
	return mod
}

func bitsSample() *ir.Module {
	mod := ir.NewModule()
	b := ir.NewBuilder(mod)
	ty := mod.Types
	u32, i32, f32 := ty.U32(), ty.I32(), ty.F32()

	var words, floats ir.ValueID
	b.Append(mod.Root, func() {
		words = b.BindingVar("words", ir.SpaceStorage, ty.RuntimeArray(u32), ir.AccessReadWrite, ir.BindingPoint{Binding: 0})
		floats = b.BindingVar("floats", ir.SpaceStorage, ty.RuntimeArray(f32), ir.AccessRead, ir.BindingPoint{Binding: 1})
	})

	idx := builtinParam(b, "idx", u32, ir.BuiltinLocalInvocationIndex)
	main := b.ComputeEntryPoint("main", 64, 1, 1)
	mod.SetParams(main, idx)
	b.Append(mod.Func(main).Block, func() {
		word := b.Access(ty.Ptr(ir.SpaceStorage, u32, ir.AccessReadWrite), words, idx)
		x := b.Load(word)
		lead := b.Call(u32, ir.BuiltinCountLeadingZeros, x)
		high := b.Call(u32, ir.BuiltinFirstLeadingBit, x)
		field := b.Call(u32, ir.BuiltinExtractBits, x, b.U32(4), b.U32(8))
		merged := b.Call(u32, ir.BuiltinInsertBits, lead, high, b.U32(8), b.U32(8))

		f := b.Load(b.Access(ty.Ptr(ir.SpaceStorage, f32, ir.AccessRead), floats, idx))
		asInt := b.Bitcast(u32, b.Convert(i32, f))

		sum := b.Add(u32, b.Add(u32, field, merged), asInt)
		b.Store(word, sum)
		b.Return()
	})
	return mod
}

func externalSample() *ir.Module {
	mod := ir.NewModule()
	b := ir.NewBuilder(mod)
	ty := mod.Types
	u32 := ty.U32()
	vec4f := ty.Vec(ty.F32(), 4)

	var tex, out ir.ValueID
	b.Append(mod.Root, func() {
		tex = b.BindingVar("frame", ir.SpaceHandle, ty.ExternalTexture(), ir.AccessReadWrite, ir.BindingPoint{Binding: 0})
		out = b.BindingVar("pixels", ir.SpaceStorage, ty.RuntimeArray(vec4f), ir.AccessReadWrite, ir.BindingPoint{Binding: 1})
	})

	gid := builtinParam(b, "gid", ty.Vec(u32, 3), ir.BuiltinGlobalInvocationID)
	main := b.ComputeEntryPoint("main", 8, 8, 1)
	mod.SetParams(main, gid)
	b.Append(mod.Func(main).Block, func() {
		coords := b.Swizzle(ty.Vec(u32, 2), gid, 0, 1)
		texel := b.Call(vec4f, ir.BuiltinTextureLoad, b.Load(tex), coords)
		row := b.Mul(u32, b.Swizzle(u32, gid, 1), b.U32(8))
		pixel := b.Add(u32, row, b.Swizzle(u32, gid, 0))
		b.Store(b.Access(ty.Ptr(ir.SpaceStorage, vec4f, ir.AccessReadWrite), out, pixel), texel)
		b.Return()
	})
	return mod
}
