// Package binary encodes modules to a compact msgpack form and decodes
// them back.
//
// The encoding walks the module in program order. Values are numbered as
// they are defined, so decoding rebuilds the same graph through the ir
// package API. Destroyed instructions are not encoded.
package binary

import (
	"errors"
	"fmt"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/gogpu/shaderir/ir"
)

// SchemaVersion is the wire format version written by Encode.
const SchemaVersion uint16 = 1

var (
	// ErrSchema indicates data written with an unsupported schema version.
	ErrSchema = errors.New("binary: unsupported schema version")

	// ErrMalformed indicates data that does not describe a valid module.
	ErrMalformed = errors.New("binary: malformed module")
)

type encoder struct {
	mod    *ir.Module
	values map[ir.ValueID]uint32
	insts  map[ir.InstID]uint32
	funcs  map[ir.FuncID]uint32
	out    *wireModule
}

// Encode serializes mod.
func Encode(mod *ir.Module) ([]byte, error) {
	e := &encoder{
		mod:    mod,
		values: make(map[ir.ValueID]uint32),
		insts:  make(map[ir.InstID]uint32),
		funcs:  make(map[ir.FuncID]uint32),
		out:    &wireModule{Schema: SchemaVersion},
	}
	if err := e.encode(); err != nil {
		return nil, err
	}
	return msgpack.Marshal(e.out)
}

func (e *encoder) encode() error {
	for _, t := range e.mod.Types.GetTypes() {
		wt, err := encodeType(t.Inner)
		if err != nil {
			return err
		}
		e.out.Types = append(e.out.Types, wt)
	}

	funcs := e.mod.Functions()
	for i, f := range funcs {
		idx, err := safecast.Conv[uint32](i)
		if err != nil {
			return fmt.Errorf("binary: function count: %w", err)
		}
		e.funcs[f] = idx
	}

	root, err := e.block(e.mod.Root)
	if err != nil {
		return err
	}
	e.out.Root = root

	for _, f := range funcs {
		fn := e.mod.Func(f)
		wf := wireFunc{
			Name:          fn.Name,
			Stage:         uint8(fn.Stage),
			ReturnType:    uint32(fn.ReturnType),
			ReturnBinding: encodeBinding(fn.ReturnBinding),
		}
		if fn.WorkgroupSize != nil {
			for _, d := range fn.WorkgroupSize {
				wf.WorkgroupSize = append(wf.WorkgroupSize, wireDim{Value: d.Value, Override: d.Override})
			}
		}
		for _, p := range fn.Params {
			wf.Params = append(wf.Params, e.param(p))
		}
		body, err := e.block(fn.Block)
		if err != nil {
			return fmt.Errorf("function %s: %w", fn.Name, err)
		}
		wf.Body = body
		e.out.Funcs = append(e.out.Funcs, wf)
	}
	return nil
}

// define numbers a value at its definition. Index zero is reserved.
func (e *encoder) define(v ir.ValueID) uint32 {
	e.out.NumValues++
	e.values[v] = e.out.NumValues
	return e.out.NumValues
}

// ref returns the index of an operand, recording constants on first use.
func (e *encoder) ref(v ir.ValueID) (uint32, error) {
	if idx, ok := e.values[v]; ok {
		return idx, nil
	}
	val := e.mod.Value(v)
	if val.Kind != ir.ValueConstant {
		return 0, fmt.Errorf("%w: value %d used before its definition", ErrMalformed, v)
	}
	c, err := encodeConst(val.Const)
	if err != nil {
		return 0, err
	}
	idx := e.define(v)
	e.out.Consts = append(e.out.Consts, wireConstDecl{Index: idx, Type: uint32(val.Type), Value: c})
	return idx, nil
}

func (e *encoder) refs(vs []ir.ValueID) ([]uint32, error) {
	if len(vs) == 0 {
		return nil, nil
	}
	out := make([]uint32, len(vs))
	for i, v := range vs {
		idx, err := e.ref(v)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

func (e *encoder) param(p ir.ValueID) wireParam {
	return wireParam{
		Index:   e.define(p),
		Type:    uint32(e.mod.TypeOf(p)),
		Name:    e.mod.NameOf(p),
		Binding: encodeBinding(e.mod.Value(p).Binding),
	}
}

func (e *encoder) block(b ir.BlockID) (wireBlock, error) {
	var wb wireBlock
	blk := e.mod.Block(b)
	for _, p := range blk.Params {
		wb.Params = append(wb.Params, e.param(p))
	}
	for _, id := range blk.Insts {
		wi, err := e.inst(id)
		if err != nil {
			return wb, err
		}
		wb.Insts = append(wb.Insts, wi)
	}
	return wb, nil
}

func (e *encoder) inst(id ir.InstID) (wireInst, error) {
	inst := e.mod.Inst(id)
	ops, err := e.refs(inst.Operands)
	if err != nil {
		return wireInst{}, fmt.Errorf("%s: %w", inst.Kind, err)
	}

	idx, err := safecast.Conv[uint32](len(e.insts) + 1)
	if err != nil {
		return wireInst{}, fmt.Errorf("binary: instruction count: %w", err)
	}
	e.insts[id] = idx

	wi := wireInst{
		Kind:         uint8(inst.Kind),
		Operands:     ops,
		BinaryOp:     uint8(inst.BinaryOp),
		UnaryOp:      uint8(inst.UnaryOp),
		Builtin:      uint8(inst.Builtin),
		Indices:      inst.Indices,
		BindingPoint: inst.BindingPoint,
	}
	for _, r := range inst.Results {
		wi.Results = append(wi.Results, wireParam{
			Index: e.define(r),
			Type:  uint32(e.mod.TypeOf(r)),
			Name:  e.mod.NameOf(r),
		})
	}
	if inst.Kind == ir.InstUserCall {
		wi.Callee = e.funcs[inst.Callee]
	}
	if inst.Control != 0 {
		ctrl, ok := e.insts[inst.Control]
		if !ok {
			return wi, fmt.Errorf("%w: %s outside its control instruction", ErrMalformed, inst.Kind)
		}
		wi.Control = ctrl
	}
	for _, b := range inst.Blocks {
		wb, err := e.block(b)
		if err != nil {
			return wi, err
		}
		wi.Blocks = append(wi.Blocks, wb)
	}
	for _, c := range inst.Cases {
		wc := wireCase{}
		for _, s := range c.Selectors {
			ws := wireSelector{Default: s.Default}
			if !s.Default {
				if ws.Value, err = e.ref(s.Value); err != nil {
					return wi, err
				}
			}
			wc.Selectors = append(wc.Selectors, ws)
		}
		if wc.Block, err = e.block(c.Block); err != nil {
			return wi, err
		}
		wi.Cases = append(wi.Cases, wc)
	}
	return wi, nil
}

func encodeBinding(b ir.Binding) *wireBinding {
	switch b := b.(type) {
	case ir.BuiltinBinding:
		return &wireBinding{Builtin: true, Value: uint32(b.Builtin)}
	case ir.LocationBinding:
		return &wireBinding{Value: b.Location}
	default:
		return nil
	}
}

func encodeConst(c ir.ConstantValue) (wireConst, error) {
	switch c := c.(type) {
	case ir.ScalarValue:
		return wireConst{Kind: constScalar, Bits: c.Bits, Scalar: uint8(c.Kind)}, nil
	case ir.SplatValue:
		elem, err := encodeConst(c.Value)
		if err != nil {
			return wireConst{}, err
		}
		n, err := safecast.Conv[uint32](c.Count)
		if err != nil {
			return wireConst{}, fmt.Errorf("binary: splat count: %w", err)
		}
		return wireConst{Kind: constSplat, Count: n, Components: []wireConst{elem}}, nil
	case ir.CompositeValue:
		out := wireConst{Kind: constComposite}
		for _, comp := range c.Components {
			wc, err := encodeConst(comp)
			if err != nil {
				return wireConst{}, err
			}
			out.Components = append(out.Components, wc)
		}
		return out, nil
	default:
		return wireConst{}, fmt.Errorf("%w: constant %T", ErrMalformed, c)
	}
}

func encodeType(t ir.TypeInner) (wireType, error) {
	switch t := t.(type) {
	case ir.VoidType:
		return wireType{Kind: typeVoid}, nil
	case ir.ScalarType:
		return wireType{Kind: typeScalar, Scalar: encodeScalar(t)}, nil
	case ir.VectorType:
		return wireType{Kind: typeVector, Scalar: encodeScalar(t.Scalar), Size: uint8(t.Size)}, nil
	case ir.MatrixType:
		return wireType{Kind: typeMatrix, Scalar: encodeScalar(t.Scalar), Size: uint8(t.Columns), Rows: uint8(t.Rows)}, nil
	case ir.ArrayType:
		return wireType{Kind: typeArray, Base: uint32(t.Base), Count: t.Size.Constant, Stride: t.Stride}, nil
	case ir.StructType:
		wt := wireType{Kind: typeStruct, Name: t.Name, Span: t.Span, Align: t.Align}
		for _, m := range t.Members {
			wt.Members = append(wt.Members, wireMember{
				Name:    m.Name,
				Type:    uint32(m.Type),
				Binding: encodeBinding(m.Binding),
				Offset:  m.Offset,
			})
		}
		return wt, nil
	case ir.PointerType:
		return wireType{Kind: typePointer, Base: uint32(t.Base), Space: uint8(t.Space), Access: uint8(t.Access)}, nil
	case ir.AtomicType:
		return wireType{Kind: typeAtomic, Scalar: encodeScalar(t.Scalar)}, nil
	case ir.SamplerType:
		return wireType{Kind: typeSampler, Comparison: t.Comparison}, nil
	case ir.ImageType:
		return wireType{Kind: typeImage, Image: &wireImage{
			Dim:           uint8(t.Dim),
			Arrayed:       t.Arrayed,
			Class:         uint8(t.Class),
			Multisampled:  t.Multisampled,
			SampledKind:   uint8(t.SampledKind),
			Format:        uint8(t.Format),
			StorageAccess: uint8(t.StorageAccess),
		}}, nil
	default:
		return wireType{}, fmt.Errorf("%w: type %T", ErrMalformed, t)
	}
}

func encodeScalar(s ir.ScalarType) wireScalar {
	return wireScalar{Kind: uint8(s.Kind), Width: s.Width}
}
