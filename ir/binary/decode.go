package binary

import (
	"fmt"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/gogpu/shaderir/ir"
)

type decoder struct {
	mod    *ir.Module
	in     *wireModule
	values []ir.ValueID
	insts  []ir.InstID
	funcs  []ir.FuncID
}

// Decode rebuilds a module serialized by Encode.
func Decode(data []byte) (*ir.Module, error) {
	var in wireModule
	if err := msgpack.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("binary: %w", err)
	}
	if in.Schema != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrSchema, in.Schema)
	}

	n, err := safecast.Conv[int](in.NumValues)
	if err != nil {
		return nil, fmt.Errorf("%w: value count: %v", ErrMalformed, err)
	}
	d := &decoder{
		mod:    ir.NewModule(),
		in:     &in,
		values: make([]ir.ValueID, n+1),
		insts:  []ir.InstID{0},
	}
	if err := d.decode(); err != nil {
		return nil, err
	}
	return d.mod, nil
}

func (d *decoder) decode() error {
	for i, wt := range d.in.Types {
		inner, err := d.typeInner(wt)
		if err != nil {
			return err
		}
		if h := d.mod.Types.GetOrCreate(inner); int(h) != i {
			return fmt.Errorf("%w: type %d decoded as handle %d", ErrMalformed, i, h)
		}
	}

	for _, c := range d.in.Consts {
		ty, err := d.typeHandle(c.Type)
		if err != nil {
			return err
		}
		v, err := decodeConst(c.Value)
		if err != nil {
			return err
		}
		if err := d.setValue(c.Index, d.mod.Constant(ty, v)); err != nil {
			return err
		}
	}

	// Function headers come first so that calls can refer to any function.
	for _, wf := range d.in.Funcs {
		ret, err := d.typeHandle(wf.ReturnType)
		if err != nil {
			return err
		}
		f := d.mod.NewFunction(wf.Name, ret)
		fn := d.mod.Func(f)
		fn.Stage = ir.ShaderStage(wf.Stage)
		fn.ReturnBinding = decodeBinding(wf.ReturnBinding)
		if len(wf.WorkgroupSize) == 3 {
			var size ir.WorkgroupSize
			for i, dim := range wf.WorkgroupSize {
				size[i] = ir.WorkgroupDim{Value: dim.Value, Override: dim.Override}
			}
			fn.WorkgroupSize = &size
		}
		params, err := d.params(wf.Params, d.mod.NewFunctionParam)
		if err != nil {
			return fmt.Errorf("function %s: %w", wf.Name, err)
		}
		d.mod.SetParams(f, params...)
		d.funcs = append(d.funcs, f)
	}

	if err := d.block(d.mod.Root, d.in.Root); err != nil {
		return err
	}
	for i, wf := range d.in.Funcs {
		if err := d.block(d.mod.Func(d.funcs[i]).Block, wf.Body); err != nil {
			return fmt.Errorf("function %s: %w", wf.Name, err)
		}
	}
	return nil
}

func (d *decoder) setValue(idx uint32, v ir.ValueID) error {
	if idx == 0 || int(idx) >= len(d.values) {
		return fmt.Errorf("%w: value index %d out of range", ErrMalformed, idx)
	}
	d.values[idx] = v
	return nil
}

func (d *decoder) value(idx uint32) (ir.ValueID, error) {
	if idx == 0 || int(idx) >= len(d.values) || d.values[idx] == 0 {
		return 0, fmt.Errorf("%w: undefined value %d", ErrMalformed, idx)
	}
	return d.values[idx], nil
}

func (d *decoder) typeHandle(h uint32) (ir.TypeHandle, error) {
	if int(h) >= d.mod.Types.Count() {
		return 0, fmt.Errorf("%w: type handle %d out of range", ErrMalformed, h)
	}
	return ir.TypeHandle(h), nil
}

func (d *decoder) params(wps []wireParam, create func(string, ir.TypeHandle) ir.ValueID) ([]ir.ValueID, error) {
	out := make([]ir.ValueID, 0, len(wps))
	for _, wp := range wps {
		ty, err := d.typeHandle(wp.Type)
		if err != nil {
			return nil, err
		}
		p := create(wp.Name, ty)
		d.mod.Value(p).Binding = decodeBinding(wp.Binding)
		if err := d.setValue(wp.Index, p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (d *decoder) block(b ir.BlockID, wb wireBlock) error {
	params, err := d.params(wb.Params, d.mod.NewBlockParam)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		d.mod.SetBlockParams(b, params...)
	}
	for _, wi := range wb.Insts {
		if err := d.inst(b, wi); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) inst(b ir.BlockID, wi wireInst) error {
	kind := ir.InstKind(wi.Kind)
	ops := make([]ir.ValueID, len(wi.Operands))
	for i, idx := range wi.Operands {
		v, err := d.value(idx)
		if err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		ops[i] = v
	}
	resultTypes := make([]ir.TypeHandle, len(wi.Results))
	for i, r := range wi.Results {
		ty, err := d.typeHandle(r.Type)
		if err != nil {
			return err
		}
		resultTypes[i] = ty
	}

	id := d.mod.NewInst(kind, ops, resultTypes...)
	d.insts = append(d.insts, id)
	inst := d.mod.Inst(id)
	for i, r := range wi.Results {
		if r.Name != "" {
			d.mod.SetName(inst.Results[i], r.Name)
		}
		if err := d.setValue(r.Index, inst.Results[i]); err != nil {
			return err
		}
	}

	inst.BinaryOp = ir.BinaryOp(wi.BinaryOp)
	inst.UnaryOp = ir.UnaryOp(wi.UnaryOp)
	inst.Builtin = ir.BuiltinFn(wi.Builtin)
	inst.Indices = wi.Indices
	inst.BindingPoint = wi.BindingPoint
	if kind == ir.InstUserCall {
		callee, err := safecast.Conv[int](wi.Callee)
		if err != nil || callee >= len(d.funcs) {
			return fmt.Errorf("%w: callee %d out of range", ErrMalformed, wi.Callee)
		}
		inst.Callee = d.funcs[callee]
	}
	if wi.Control != 0 {
		ctrl, err := safecast.Conv[int](wi.Control)
		if err != nil || ctrl >= len(d.insts) {
			return fmt.Errorf("%w: %s refers to unknown instruction %d", ErrMalformed, kind, wi.Control)
		}
		inst.Control = d.insts[ctrl]
	}
	d.mod.Append(b, id)

	for _, wb := range wi.Blocks {
		blk := d.newChildBlock(id)
		inst.Blocks = append(inst.Blocks, blk)
		if err := d.block(blk, wb); err != nil {
			return err
		}
	}
	for _, wc := range wi.Cases {
		c := ir.SwitchCase{Block: d.newChildBlock(id)}
		for _, ws := range wc.Selectors {
			sel := ir.CaseSelector{Default: ws.Default}
			if !ws.Default {
				v, err := d.value(ws.Value)
				if err != nil {
					return err
				}
				sel.Value = v
			}
			c.Selectors = append(c.Selectors, sel)
		}
		inst.Cases = append(inst.Cases, c)
		if err := d.block(c.Block, wc.Block); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) newChildBlock(parent ir.InstID) ir.BlockID {
	blk := d.mod.NewBlock()
	d.mod.Block(blk).Parent = parent
	return blk
}

func decodeBinding(wb *wireBinding) ir.Binding {
	switch {
	case wb == nil:
		return nil
	case wb.Builtin:
		return ir.BuiltinBinding{Builtin: ir.BuiltinValue(wb.Value)}
	default:
		return ir.LocationBinding{Location: wb.Value}
	}
}

func decodeConst(wc wireConst) (ir.ConstantValue, error) {
	switch wc.Kind {
	case constScalar:
		return ir.ScalarValue{Bits: wc.Bits, Kind: ir.ScalarKind(wc.Scalar)}, nil
	case constSplat:
		if len(wc.Components) != 1 {
			return nil, fmt.Errorf("%w: splat without an element", ErrMalformed)
		}
		elem, err := decodeConst(wc.Components[0])
		if err != nil {
			return nil, err
		}
		n, err := safecast.Conv[int](wc.Count)
		if err != nil {
			return nil, fmt.Errorf("%w: splat count: %v", ErrMalformed, err)
		}
		return ir.SplatValue{Value: elem, Count: n}, nil
	case constComposite:
		out := ir.CompositeValue{Components: make([]ir.ConstantValue, len(wc.Components))}
		for i, comp := range wc.Components {
			c, err := decodeConst(comp)
			if err != nil {
				return nil, err
			}
			out.Components[i] = c
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: constant kind %d", ErrMalformed, wc.Kind)
	}
}

func (d *decoder) typeInner(wt wireType) (ir.TypeInner, error) {
	scalar := ir.ScalarType{Kind: ir.ScalarKind(wt.Scalar.Kind), Width: wt.Scalar.Width}
	switch wt.Kind {
	case typeVoid:
		return ir.VoidType{}, nil
	case typeScalar:
		return scalar, nil
	case typeVector:
		return ir.VectorType{Size: ir.VectorSize(wt.Size), Scalar: scalar}, nil
	case typeMatrix:
		return ir.MatrixType{Columns: ir.VectorSize(wt.Size), Rows: ir.VectorSize(wt.Rows), Scalar: scalar}, nil
	case typeArray:
		base, err := d.typeHandle(wt.Base)
		if err != nil {
			return nil, err
		}
		return ir.ArrayType{Base: base, Size: ir.ArraySize{Constant: wt.Count}, Stride: wt.Stride}, nil
	case typeStruct:
		st := ir.StructType{Name: wt.Name, Span: wt.Span, Align: wt.Align}
		for _, m := range wt.Members {
			ty, err := d.typeHandle(m.Type)
			if err != nil {
				return nil, err
			}
			st.Members = append(st.Members, ir.StructMember{
				Name:    m.Name,
				Type:    ty,
				Binding: decodeBinding(m.Binding),
				Offset:  m.Offset,
			})
		}
		return st, nil
	case typePointer:
		base, err := d.typeHandle(wt.Base)
		if err != nil {
			return nil, err
		}
		return ir.PointerType{Base: base, Space: ir.AddressSpace(wt.Space), Access: ir.Access(wt.Access)}, nil
	case typeAtomic:
		return ir.AtomicType{Scalar: scalar}, nil
	case typeSampler:
		return ir.SamplerType{Comparison: wt.Comparison}, nil
	case typeImage:
		if wt.Image == nil {
			return nil, fmt.Errorf("%w: image type without attributes", ErrMalformed)
		}
		return ir.ImageType{
			Dim:           ir.ImageDimension(wt.Image.Dim),
			Arrayed:       wt.Image.Arrayed,
			Class:         ir.ImageClass(wt.Image.Class),
			Multisampled:  wt.Image.Multisampled,
			SampledKind:   ir.ScalarKind(wt.Image.SampledKind),
			Format:        ir.TexelFormat(wt.Image.Format),
			StorageAccess: ir.Access(wt.Image.StorageAccess),
		}, nil
	default:
		return nil, fmt.Errorf("%w: type kind %d", ErrMalformed, wt.Kind)
	}
}
