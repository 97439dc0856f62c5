// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package transform

import (
	"fmt"
	"sort"

	"fortio.org/safecast"

	"github.com/gogpu/shaderir/ir"
)

// ZeroInitWorkgroupMemory zero-initializes the workgroup variables used by
// each compute entry point.
//
// The invocations of the workgroup share the stores between them, indexed
// by local_invocation_index, and a workgroupBarrier follows so that no
// invocation reads memory before it is initialized. Entry points without a
// local_invocation_index parameter gain one.
func ZeroInitWorkgroupMemory(mod *ir.Module) error {
	const name = "ZeroInitWorkgroupMemory"
	if err := validateAndDumpIfNeeded(mod, name); err != nil {
		return err
	}

	z := &zeroInit{
		mod:   mod,
		b:     ir.NewBuilder(mod),
		ty:    mod.Types,
		order: make(map[ir.ValueID]int),
		uses:  make(map[ir.FuncID]map[ir.ValueID]bool),
	}
	for i, inst := range mod.RootVars() {
		v := mod.Inst(inst).Result()
		if ptr, ok := z.ty.Pointer(mod.TypeOf(v)); ok && ptr.Space == ir.SpaceWorkGroup {
			z.order[v] = i
		}
	}
	if len(z.order) == 0 {
		return nil
	}

	initialized := 0
	for _, f := range mod.Functions() {
		fn := mod.Func(f)
		if fn.Stage != ir.StageCompute {
			continue
		}
		vars := z.varsUsedBy(f)
		if len(vars) == 0 {
			continue
		}
		if err := z.initialize(f, vars); err != nil {
			return err
		}
		initialized++
	}
	logApplied(name, "entry_points", initialized, "variables", len(z.order))
	return nil
}

type zeroInit struct {
	mod *ir.Module
	b   *ir.Builder
	ty  *ir.TypeManager

	// order maps each workgroup variable to its position in the root block.
	order map[ir.ValueID]int

	// uses memoizes the workgroup variables referenced by each function,
	// directly or through calls.
	uses map[ir.FuncID]map[ir.ValueID]bool
}

// indexKind distinguishes the two kinds of index in a store path.
type indexKind uint8

const (
	indexConstant indexKind = iota
	indexArray
)

// pathIndex is one step from a variable to the element being stored: a
// constant member or element index, or an array index derived from the
// iteration index.
type pathIndex struct {
	kind  indexKind
	value uint32 // member or element index for constants, element count for arrays
}

// zeroStore is a single zeroing store of a group.
type zeroStore struct {
	variable ir.ValueID
	storeTy  ir.TypeHandle
	path     []pathIndex
}

func (z *zeroInit) varsUsedBy(f ir.FuncID) map[ir.ValueID]bool {
	if vars, ok := z.uses[f]; ok {
		return vars
	}
	vars := make(map[ir.ValueID]bool)
	z.uses[f] = vars

	z.mod.ForEachInst(z.mod.Func(f).Block, func(id ir.InstID) {
		inst := z.mod.Inst(id)
		for _, op := range inst.Operands {
			if _, ok := z.order[op]; ok {
				vars[op] = true
			}
		}
		if inst.Kind == ir.InstUserCall {
			for v := range z.varsUsedBy(inst.Callee) {
				vars[v] = true
			}
		}
	})
	return vars
}

func (z *zeroInit) initialize(f ir.FuncID, used map[ir.ValueID]bool) error {
	fn := z.mod.Func(f)
	var total uint32
	var ok bool
	if fn.WorkgroupSize != nil {
		total, ok = fn.WorkgroupSize.Linear()
	}
	if !ok {
		return NewError("ZeroInitWorkgroupMemory", ErrUnknownWorkgroupSize,
			fmt.Sprintf("entry point %q has no constant workgroup size", fn.Name))
	}

	vars := make([]ir.ValueID, 0, len(used))
	for v := range used {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return z.order[vars[i]] < z.order[vars[j]] })

	groups := make(map[uint32][]zeroStore)
	for _, v := range vars {
		store := z.ty.UnwrapPtr(z.mod.TypeOf(v))
		z.prepareStores(groups, v, store, 1, nil)
	}
	counts := make([]uint32, 0, len(groups))
	for c := range groups {
		counts = append(counts, c)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i] < counts[j] })

	z.b.Prepend(fn.Block, func() {
		local := z.localIndex(f)
		for _, count := range counts {
			stores := groups[count]
			if count == 1 {
				z.emitSingle(local, stores)
			} else {
				z.emitLoop(local, count, total, stores)
			}
		}
		z.b.Call(z.ty.Void(), ir.BuiltinWorkgroupBarrier)
	})
	return nil
}

// prepareStores appends the stores needed to zero a value of type ty,
// reached from v through path, to the group for its iteration count.
func (z *zeroInit) prepareStores(groups map[uint32][]zeroStore, v ir.ValueID, ty ir.TypeHandle, count uint32, path []pathIndex) {
	if z.triviallyZeroable(ty) {
		groups[count] = append(groups[count], zeroStore{variable: v, storeTy: ty, path: path})
		return
	}

	switch t := z.ty.Inner(ty).(type) {
	case ir.AtomicType:
		groups[count] = append(groups[count], zeroStore{variable: v, storeTy: ty, path: path})
	case ir.ArrayType:
		if t.Size.Constant == nil {
			ice("runtime-sized array in workgroup memory")
		}
		n := *t.Size.Constant
		idx := pathIndex{kind: indexArray, value: n}
		if n == 1 {
			idx = pathIndex{kind: indexConstant, value: 0}
		}
		z.prepareStores(groups, v, t.Base, count*n, extend(path, idx))
	case ir.StructType:
		for i, m := range t.Members {
			z.prepareStores(groups, v, m.Type, count, extend(path, pathIndex{kind: indexConstant, value: memberIndex(i)}))
		}
	default:
		ice("unhandled type %s in workgroup memory", z.ty.Name(ty))
	}
}

func memberIndex(i int) uint32 {
	idx, err := safecast.Conv[uint32](i)
	if err != nil {
		ice("struct member index %d: %v", i, err)
	}
	return idx
}

func extend(path []pathIndex, idx pathIndex) []pathIndex {
	out := make([]pathIndex, len(path), len(path)+1)
	copy(out, path)
	return append(out, idx)
}

// triviallyZeroable reports whether a single store of a zero value can
// initialize ty. Arrays are split across invocations and atomics need
// atomicStore.
func (z *zeroInit) triviallyZeroable(ty ir.TypeHandle) bool {
	switch t := z.ty.Inner(ty).(type) {
	case ir.AtomicType, ir.ArrayType:
		return false
	case ir.StructType:
		for _, m := range t.Members {
			if !z.triviallyZeroable(m.Type) {
				return false
			}
		}
	}
	return true
}

// localIndex returns the local invocation index of entry point f, adding
// a parameter for it when f has none.
func (z *zeroInit) localIndex(f ir.FuncID) ir.ValueID {
	fn := z.mod.Func(f)
	for _, p := range fn.Params {
		if ir.HasBuiltin(z.mod.Value(p).Binding, ir.BuiltinLocalInvocationIndex) {
			return p
		}
		if st, ok := z.ty.Inner(z.mod.TypeOf(p)).(ir.StructType); ok {
			for i, m := range st.Members {
				if ir.HasBuiltin(m.Binding, ir.BuiltinLocalInvocationIndex) {
					return z.b.Access(m.Type, p, z.b.U32(memberIndex(i)))
				}
			}
		}
	}

	p := z.b.FunctionParam("tint_local_index", z.ty.U32())
	z.mod.Value(p).Binding = ir.BuiltinBinding{Builtin: ir.BuiltinLocalInvocationIndex}
	z.mod.AppendParam(f, p)
	return p
}

// emitSingle emits the stores of a group with one iteration, performed by
// the first invocation only.
func (z *zeroInit) emitSingle(local ir.ValueID, stores []zeroStore) {
	cond := z.b.Equal(local, z.b.U32(0))
	ifInst := z.b.If(cond)
	z.b.Append(z.b.True(ifInst), func() {
		for _, s := range stores {
			z.emitStore(s, 0, 1)
		}
		z.b.ExitIf(ifInst)
	})
}

// emitLoop emits a loop over [local, count) stepping by the workgroup size.
func (z *zeroInit) emitLoop(local ir.ValueID, count, wgSize uint32, stores []zeroStore) {
	u32 := z.ty.U32()
	loop := z.b.Loop()
	body := z.b.Body(loop)
	idx := z.b.BlockParam("idx", u32)
	z.mod.SetBlockParams(body, idx)

	z.b.Append(z.b.Initializer(loop), func() {
		z.b.NextIteration(loop, local)
	})
	z.b.Append(body, func() {
		done := z.b.GreaterThanEqual(idx, z.b.U32(count))
		exit := z.b.If(done)
		z.b.Append(z.b.True(exit), func() {
			z.b.ExitLoop(loop)
		})
		for _, s := range stores {
			z.emitStore(s, idx, count)
		}
		z.b.Continue(loop)
	})
	z.b.Append(z.b.Continuing(loop), func() {
		next := z.b.Add(u32, idx, z.b.U32(wgSize))
		z.b.NextIteration(loop, next)
	})
}

// emitStore zeroes one element. Array indices are derived from idx, where
// the innermost array varies fastest.
func (z *zeroInit) emitStore(s zeroStore, idx ir.ValueID, count uint32) {
	u32 := z.ty.U32()
	ptr := s.variable
	if len(s.path) > 0 {
		indices := make([]ir.ValueID, len(s.path))
		countSoFar := uint32(1)
		for i := len(s.path) - 1; i >= 0; i-- {
			step := s.path[i]
			if step.kind == indexConstant {
				indices[i] = z.b.U32(step.value)
				continue
			}
			v := idx
			if countSoFar > 1 {
				v = z.b.Div(u32, v, z.b.U32(countSoFar))
			}
			if countSoFar*step.value < count {
				v = z.b.Modulo(u32, v, z.b.U32(step.value))
			}
			countSoFar *= step.value
			indices[i] = v
		}
		ptr = z.b.Access(z.ty.Ptr(ir.SpaceWorkGroup, s.storeTy, ir.AccessReadWrite), s.variable, indices...)
	}

	if at, ok := z.ty.Inner(s.storeTy).(ir.AtomicType); ok {
		z.b.Call(z.ty.Void(), ir.BuiltinAtomicStore, ptr, z.b.Zero(z.ty.Scalar(at.Scalar)))
		return
	}
	z.b.Store(ptr, z.b.Zero(s.storeTy))
}
