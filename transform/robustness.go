// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package transform

import "github.com/gogpu/shaderir/ir"

// RobustnessConfig selects the accesses to clamp. Each address space is
// toggled independently. Handle and shader I/O accesses are never clamped.
type RobustnessConfig struct {
	ClampFunction     bool
	ClampPrivate      bool
	ClampPushConstant bool
	ClampStorage      bool
	ClampUniform      bool
	ClampWorkgroup    bool

	// ClampValue clamps indices into non-pointer composites.
	ClampValue bool

	// ClampTexture clamps texel coordinates, array layers and mip levels of
	// textureLoad, textureStore and textureDimensions.
	ClampTexture bool

	// DisableRuntimeSizedArrayIndexClamping skips indices into runtime-sized
	// arrays, for targets that bounds-check them natively.
	DisableRuntimeSizedArrayIndexClamping bool
}

// Robustness clamps indices so that every access stays in bounds.
//
// Constant indices into fixed-size containers are folded. Other indices
// are converted to u32 when signed and passed through min against the
// last valid index. Runtime-sized array limits come from arrayLength.
func Robustness(mod *ir.Module, cfg RobustnessConfig) error {
	const name = "Robustness"
	if err := validateAndDumpIfNeeded(mod, name); err != nil {
		return err
	}

	r := &robustness{cfg: cfg, mod: mod, b: ir.NewBuilder(mod), ty: mod.Types}

	var accesses, vectorElements, textureCalls []ir.InstID
	for _, id := range mod.Instructions() {
		inst := mod.Inst(id)
		if inst.Block == 0 {
			continue
		}
		switch inst.Kind {
		case ir.InstAccess:
			if r.shouldClamp(inst.Operands[0]) {
				accesses = append(accesses, id)
			}
		case ir.InstLoadVectorElement, ir.InstStoreVectorElement:
			if r.shouldClamp(inst.Operands[0]) {
				vectorElements = append(vectorElements, id)
			}
		case ir.InstBuiltinCall:
			if cfg.ClampTexture && r.isClampedTextureCall(inst) {
				textureCalls = append(textureCalls, id)
			}
		}
	}

	for _, id := range accesses {
		r.clampAccess(id)
	}
	for _, id := range vectorElements {
		r.clampVectorElement(id)
	}
	for _, id := range textureCalls {
		r.clampTextureCall(id)
	}

	logApplied(name,
		"accesses", len(accesses),
		"vector_elements", len(vectorElements),
		"texture_calls", len(textureCalls))
	return nil
}

type robustness struct {
	cfg RobustnessConfig
	mod *ir.Module
	b   *ir.Builder
	ty  *ir.TypeManager
}

// shouldClamp reports whether accesses rooted at obj are clamped under the
// configured policy.
func (r *robustness) shouldClamp(obj ir.ValueID) bool {
	ptr, ok := r.ty.Pointer(r.mod.TypeOf(obj))
	if !ok {
		return r.cfg.ClampValue
	}
	switch ptr.Space {
	case ir.SpaceFunction:
		return r.cfg.ClampFunction
	case ir.SpacePrivate:
		return r.cfg.ClampPrivate
	case ir.SpacePushConstant:
		return r.cfg.ClampPushConstant
	case ir.SpaceStorage:
		return r.cfg.ClampStorage
	case ir.SpaceUniform:
		return r.cfg.ClampUniform
	case ir.SpaceWorkGroup:
		return r.cfg.ClampWorkgroup
	default:
		return false
	}
}

func (r *robustness) isClampedTextureCall(inst *ir.Instruction) bool {
	switch inst.Builtin {
	case ir.BuiltinTextureDimensions:
		return len(inst.Operands) > 1
	case ir.BuiltinTextureLoad, ir.BuiltinTextureStore:
		return true
	default:
		return false
	}
}

// clamp returns idx limited to limit. Two constants fold to a constant;
// otherwise a signed idx is converted to unsigned and passed through min.
func (r *robustness) clamp(idx, limit ir.ValueID) ir.ValueID {
	if ci, ok := r.mod.ConstScalar(idx); ok {
		if cl, ok := r.mod.ConstScalar(limit); ok {
			return r.b.U32(min(uint32(ci.Bits), uint32(cl.Bits)))
		}
	}
	idxTy := r.mod.TypeOf(idx)
	uintTy := r.ty.MatchWidth(r.ty.U32(), idxTy)
	if r.ty.IsSignedInt(idxTy) {
		idx = r.b.Convert(uintTy, idx)
	}
	return r.b.Call(uintTy, ir.BuiltinMin, idx, limit)
}

// clampAccess walks the index chain of an access, clamping each index
// against the type it indexes into.
func (r *robustness) clampAccess(id ir.InstID) {
	inst := r.mod.Inst(id)
	obj := inst.Operands[0]
	objTy := r.mod.TypeOf(obj)
	cur := r.ty.UnwrapPtr(objTy)

	r.b.InsertBefore(id, func() {
		for i := 1; i < len(inst.Operands); i++ {
			idx := inst.Operands[i]
			next := cur
			var limit ir.ValueID

			switch t := r.ty.Inner(cur).(type) {
			case ir.VectorType:
				limit = r.b.U32(uint32(t.Size) - 1)
				next = r.ty.Scalar(t.Scalar)
			case ir.MatrixType:
				limit = r.b.U32(uint32(t.Columns) - 1)
				next, _ = r.ty.Element(cur)
			case ir.ArrayType:
				next = t.Base
				if t.Size.Constant != nil {
					limit = r.b.U32(*t.Size.Constant - 1)
				} else if !r.cfg.DisableRuntimeSizedArrayIndexClamping {
					limit = r.runtimeArrayLimit(id, i, cur)
				}
			case ir.StructType:
				c, ok := r.mod.ConstScalar(idx)
				if !ok {
					ice("non-constant struct member index")
				}
				next = t.Members[c.Bits].Type
			default:
				ice("access into non-composite type %s", r.ty.Name(cur))
			}

			if limit != 0 {
				r.mod.SetOperand(id, i, r.clamp(idx, limit))
			}
			cur = next
		}
	})
}

// runtimeArrayLimit emits arrayLength(arr) - 1 for the runtime-sized array
// reached by the first i-1 indices of access id. An intermediate access
// produces a pointer to the array when it is nested in the object.
func (r *robustness) runtimeArrayLimit(id ir.InstID, i int, arr ir.TypeHandle) ir.ValueID {
	inst := r.mod.Inst(id)
	obj := inst.Operands[0]
	arrPtr := obj
	if i > 1 {
		objPtr, _ := r.ty.Pointer(r.mod.TypeOf(obj))
		ptrTy := r.ty.Ptr(objPtr.Space, arr, objPtr.Access)
		prefix := append([]ir.ValueID(nil), inst.Operands[1:i]...)
		arrPtr = r.b.Access(ptrTy, obj, prefix...)
	}
	u32 := r.ty.U32()
	length := r.b.Call(u32, ir.BuiltinArrayLength, arrPtr)
	return r.b.Sub(u32, length, r.b.U32(1))
}

func (r *robustness) clampVectorElement(id ir.InstID) {
	inst := r.mod.Inst(id)
	vec, ok := r.ty.Inner(r.ty.UnwrapPtr(r.mod.TypeOf(inst.Operands[0]))).(ir.VectorType)
	if !ok {
		ice("vector element access on a non-vector")
	}
	r.b.InsertBefore(id, func() {
		limit := r.b.U32(uint32(vec.Size) - 1)
		r.mod.SetOperand(id, 1, r.clamp(inst.Operands[1], limit))
	})
}

// clampTextureCall clamps the coordinates, array layer and mip level of a
// texture builtin. Sample indices and store values are left alone.
func (r *robustness) clampTextureCall(id ir.InstID) {
	inst := r.mod.Inst(id)
	tex := inst.Operands[0]
	img, ok := r.ty.Image(r.mod.TypeOf(tex))
	if !ok {
		ice("texture builtin on a non-texture")
	}
	u32 := r.ty.U32()

	// limitOf emits fn(tex) - 1.
	limitOf := func(fn ir.BuiltinFn, ty ir.TypeHandle) ir.ValueID {
		n := r.b.Call(ty, fn, tex)
		return r.b.Sub(ty, n, r.b.MatchWidth(r.b.U32(1), ty))
	}

	r.b.InsertBefore(id, func() {
		if inst.Builtin == ir.BuiltinTextureDimensions {
			level := limitOf(ir.BuiltinTextureNumLevels, u32)
			r.mod.SetOperand(id, 1, r.clamp(inst.Operands[1], level))
			return
		}

		coordsTy := r.ty.MatchWidth(u32, r.mod.TypeOf(inst.Operands[1]))
		dims := limitOf(ir.BuiltinTextureDimensions, coordsTy)
		r.mod.SetOperand(id, 1, r.clamp(inst.Operands[1], dims))
		next := 2

		if img.Arrayed {
			layers := limitOf(ir.BuiltinTextureNumLayers, u32)
			r.mod.SetOperand(id, next, r.clamp(inst.Operands[next], layers))
			next++
		}

		if inst.Builtin == ir.BuiltinTextureLoad && hasMipLevels(img) {
			levels := limitOf(ir.BuiltinTextureNumLevels, u32)
			r.mod.SetOperand(id, next, r.clamp(inst.Operands[next], levels))
		}
	})
}

func hasMipLevels(img ir.ImageType) bool {
	switch img.Class {
	case ir.ImageClassSampled, ir.ImageClassDepth:
		return !img.Multisampled
	default:
		return false
	}
}
