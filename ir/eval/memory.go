package eval

import (
	"slices"

	"github.com/gogpu/shaderir/ir"
)

// Store records a write to workgroup memory.
type Store struct {
	// Invocation is the local invocation index of the writer.
	Invocation uint32
	// Phase counts the barriers the workgroup passed before the write.
	Phase int
	Var   ir.ValueID
	Path  []uint32
}

// local allocates a function-space variable.
func (fr *frame) local(inst *ir.Instruction) Value {
	var init *Value
	if len(inst.Operands) > 0 {
		v := fr.value(inst.Operands[0])
		init = &v
	}
	cell := fr.inv.newCell(inst, init)
	return Value{Ref: &Ref{Space: ir.SpaceFunction, Var: inst.Result(), root: cell}}
}

// newCell allocates the memory of a variable, holding init or zero.
func (in *invocation) newCell(inst *ir.Instruction, init *Value) *Value {
	m := in.m
	ptr, _ := m.types.Pointer(m.mod.TypeOf(inst.Result()))
	cell := Zero(m.types, ptr.Base)
	if init != nil {
		cell = init.clone()
	}
	return &cell
}

// global returns the pointer held by a module-scope variable, allocating
// its memory on first use.
func (in *invocation) global(v ir.ValueID) Value {
	m := in.m
	inst := m.mod.Inst(m.mod.Value(v).Inst)
	if inst.Kind != ir.InstVar {
		in.fail("%w: module-scope %s", ErrUnsupported, inst.Kind)
	}
	ptr, _ := m.types.Pointer(m.mod.TypeOf(v))
	ref := &Ref{Space: ptr.Space, Var: v}

	switch ptr.Space {
	case ir.SpacePrivate:
		cell, ok := in.private[v]
		if !ok {
			var init *Value
			if len(inst.Operands) > 0 {
				c := (&frame{inv: in}).value(inst.Operands[0])
				init = &c
			}
			cell = in.newCell(inst, init)
			in.private[v] = cell
		}
		ref.root = cell
	case ir.SpaceWorkGroup:
		cell, ok := m.shared[v]
		if !ok {
			c := fill(m.types, ptr.Base, poisonBits)
			cell = &c
			m.shared[v] = cell
		}
		ref.root = cell
	default:
		cell, ok := m.shared[v]
		if !ok {
			var init *Value
			if inst.BindingPoint != nil {
				if r, ok := m.opts.Resources[*inst.BindingPoint]; ok {
					init = &r
				}
			}
			cell = in.newCell(inst, init)
			m.shared[v] = cell
		}
		ref.root = cell
	}
	return Value{Ref: ref}
}

// deref returns the node addressed by ref.
func (in *invocation) deref(ref *Ref) *Value {
	if ref == nil || ref.root == nil {
		in.fail("%w: dereference of a non-pointer", ErrUnsupported)
	}
	node := ref.root
	for _, idx := range ref.Path {
		if int64(idx) >= int64(len(node.Elems)) {
			in.fail("%w: index %d of %d elements through %%%d", ErrOutOfBounds, idx, len(node.Elems), ref.Var)
		}
		node = &node.Elems[idx]
	}
	return node
}

func (in *invocation) load(ptr Value) Value {
	return in.deref(ptr.Ref).clone()
}

// store writes v through ptr extended by lanes.
func (in *invocation) store(ptr Value, lanes []uint32, v Value) {
	ref := ptr.Ref
	if len(lanes) > 0 && ref != nil {
		ext := *ref
		ext.Path = append(slices.Clone(ref.Path), lanes...)
		ref = &ext
	}
	*in.deref(ref) = v.clone()
	if ref.Space == ir.SpaceWorkGroup {
		in.m.stores = append(in.m.stores, Store{
			Invocation: in.index,
			Phase:      in.m.phase,
			Var:        ref.Var,
			Path:       slices.Clone(ref.Path),
		})
	}
}
