package ir

import "fmt"

// Builder creates instructions and splices them into a module at the
// current insertion point.
//
// The insertion point is set for the duration of a closure:
//
//	b.Append(fn.Block, func() {
//		x := b.Add(u32, a, c)
//		b.Return(x)
//	})
//
// Outside any closure, created instructions are left detached.
type Builder struct {
	Mod *Module

	insert func(InstID)
}

// NewBuilder returns a builder for mod.
func NewBuilder(mod *Module) *Builder {
	return &Builder{Mod: mod}
}

func (b *Builder) scoped(insert func(InstID), fn func()) {
	saved := b.insert
	b.insert = insert
	defer func() { b.insert = saved }()
	fn()
}

// Append runs fn with instructions appended to the end of block.
func (b *Builder) Append(block BlockID, fn func()) {
	b.scoped(func(inst InstID) { b.Mod.Append(block, inst) }, fn)
}

// Prepend runs fn with instructions inserted, in creation order, at the
// start of block.
func (b *Builder) Prepend(block BlockID, fn func()) {
	var last InstID
	b.scoped(func(inst InstID) {
		if last == 0 {
			b.Mod.Prepend(block, inst)
		} else {
			b.Mod.InsertAfter(last, inst)
		}
		last = inst
	}, fn)
}

// InsertBefore runs fn with instructions inserted, in creation order,
// immediately before the attached instruction before.
func (b *Builder) InsertBefore(before InstID, fn func()) {
	b.scoped(func(inst InstID) { b.Mod.InsertBefore(before, inst) }, fn)
}

// InsertAfter runs fn with instructions inserted, in creation order,
// immediately after the attached instruction after.
func (b *Builder) InsertAfter(after InstID, fn func()) {
	last := after
	b.scoped(func(inst InstID) {
		b.Mod.InsertAfter(last, inst)
		last = inst
	}, fn)
}

func (b *Builder) emit(kind InstKind, operands []ValueID, results ...TypeHandle) InstID {
	id := b.Mod.NewInst(kind, operands, results...)
	if b.insert != nil {
		b.insert(id)
	}
	return id
}

func (b *Builder) emitValue(kind InstKind, ty TypeHandle, operands ...ValueID) (InstID, ValueID) {
	id := b.emit(kind, operands, ty)
	return id, b.Mod.insts[id].Results[0]
}

// Constants.

// U32 returns the u32 constant v.
func (b *Builder) U32(v uint32) ValueID { return b.Mod.ConstU32(v) }

// I32 returns the i32 constant v.
func (b *Builder) I32(v int32) ValueID { return b.Mod.ConstI32(v) }

// F32 returns the f32 constant v.
func (b *Builder) F32(v float32) ValueID { return b.Mod.ConstF32(v) }

// F16 returns the f16 constant v.
func (b *Builder) F16(v float32) ValueID { return b.Mod.ConstF16(v) }

// Bool returns the bool constant v.
func (b *Builder) Bool(v bool) ValueID { return b.Mod.ConstBool(v) }

// Zero returns the zero constant of ty.
func (b *Builder) Zero(ty TypeHandle) ValueID { return b.Mod.Zero(ty) }

// Splat returns a composite constant of ty with every component elem.
func (b *Builder) Splat(ty TypeHandle, elem ValueID) ValueID { return b.Mod.Splat(ty, elem) }

// Composite returns a composite constant of ty built from constant
// components.
func (b *Builder) Composite(ty TypeHandle, comps ...ValueID) ValueID {
	vals := make([]ConstantValue, len(comps))
	for i, c := range comps {
		v := b.Mod.values[c]
		if v.Kind != ValueConstant {
			panic("ICE: composite constant with a non-constant component")
		}
		vals[i] = v.Const
	}
	return b.Mod.Constant(ty, CompositeValue{Components: vals})
}

// MatchWidth splats the scalar constant elem to the vector width of like.
func (b *Builder) MatchWidth(elem ValueID, like TypeHandle) ValueID {
	return b.Mod.MatchWidth(elem, like)
}

// ScalarLike returns the constant v converted to the element type of like
// and splatted to its width. Integer element types take the integral part
// of v.
func (b *Builder) ScalarLike(v float64, like TypeHandle) ValueID {
	elem := b.Mod.Types.DeepestElement(like)
	s, ok := b.Mod.Types.Inner(elem).(ScalarType)
	if !ok {
		panic(fmt.Sprintf("ICE: %s has no scalar element", b.Mod.Types.Name(like)))
	}
	var c ValueID
	switch {
	case s.Kind == ScalarSint:
		c = b.I32(int32(v))
	case s.Kind == ScalarUint:
		c = b.U32(uint32(v))
	case s.Kind == ScalarFloat && s.Width == 2:
		c = b.F16(float32(v))
	case s.Kind == ScalarFloat:
		c = b.F32(float32(v))
	default:
		c = b.Bool(v != 0)
	}
	return b.MatchWidth(c, like)
}

// Module structure.

// Function creates a function returning ret and appends it to the module.
func (b *Builder) Function(name string, ret TypeHandle, params ...ValueID) FuncID {
	f := b.Mod.NewFunction(name, ret)
	b.Mod.SetParams(f, params...)
	return f
}

// ComputeEntryPoint creates a compute entry point with a constant
// workgroup size.
func (b *Builder) ComputeEntryPoint(name string, x, y, z uint32) FuncID {
	f := b.Mod.NewFunction(name, b.Mod.Types.Void())
	fn := b.Mod.funcs[f]
	fn.Stage = StageCompute
	fn.WorkgroupSize = &WorkgroupSize{{Value: x}, {Value: y}, {Value: z}}
	return f
}

// FunctionParam creates a named function parameter.
func (b *Builder) FunctionParam(name string, ty TypeHandle) ValueID {
	return b.Mod.NewFunctionParam(name, ty)
}

// BlockParam creates a named block parameter.
func (b *Builder) BlockParam(name string, ty TypeHandle) ValueID {
	return b.Mod.NewBlockParam(name, ty)
}

// Memory.

// Var declares a variable of store type ty in space and names its result.
func (b *Builder) Var(name string, space AddressSpace, ty TypeHandle, access Access) ValueID {
	_, v := b.emitValue(InstVar, b.Mod.Types.Ptr(space, ty, access))
	b.Mod.SetName(v, name)
	return v
}

// VarInit declares a function-space variable initialized with init.
func (b *Builder) VarInit(name string, init ValueID) ValueID {
	ty := b.Mod.TypeOf(init)
	_, v := b.emitValue(InstVar, b.Mod.Types.Ptr(SpaceFunction, ty, AccessReadWrite), init)
	b.Mod.SetName(v, name)
	return v
}

// BindingVar declares a resource variable at the given binding point.
func (b *Builder) BindingVar(name string, space AddressSpace, ty TypeHandle, access Access, bp BindingPoint) ValueID {
	v := b.Var(name, space, ty, access)
	b.Mod.insts[b.Mod.values[v].Inst].BindingPoint = &bp
	return v
}

// Let binds v to a name.
func (b *Builder) Let(name string, v ValueID) ValueID {
	_, r := b.emitValue(InstLet, b.Mod.TypeOf(v), v)
	b.Mod.SetName(r, name)
	return r
}

// Load reads through ptr.
func (b *Builder) Load(ptr ValueID) ValueID {
	_, v := b.emitValue(InstLoad, b.Mod.Types.UnwrapPtr(b.Mod.TypeOf(ptr)), ptr)
	return v
}

// Store writes v through ptr.
func (b *Builder) Store(ptr, v ValueID) InstID {
	return b.emit(InstStore, []ValueID{ptr, v})
}

// LoadVectorElement reads lane idx of the vector behind ptr.
func (b *Builder) LoadVectorElement(ptr, idx ValueID) ValueID {
	vec := b.Mod.Types.UnwrapPtr(b.Mod.TypeOf(ptr))
	elem, _ := b.Mod.Types.Element(vec)
	_, v := b.emitValue(InstLoadVectorElement, elem, ptr, idx)
	return v
}

// StoreVectorElement writes v to lane idx of the vector behind ptr.
func (b *Builder) StoreVectorElement(ptr, idx, v ValueID) InstID {
	return b.emit(InstStoreVectorElement, []ValueID{ptr, idx, v})
}

// Access indexes into obj, producing a value of type ty.
func (b *Builder) Access(ty TypeHandle, obj ValueID, indices ...ValueID) ValueID {
	_, v := b.emitValue(InstAccess, ty, append([]ValueID{obj}, indices...)...)
	return v
}

// Swizzle selects components of a vector.
func (b *Builder) Swizzle(ty TypeHandle, obj ValueID, indices ...uint32) ValueID {
	id, v := b.emitValue(InstSwizzle, ty, obj)
	b.Mod.insts[id].Indices = indices
	return v
}

// Construct builds a value of type ty from args.
func (b *Builder) Construct(ty TypeHandle, args ...ValueID) ValueID {
	_, v := b.emitValue(InstConstruct, ty, args...)
	return v
}

// Convert is a numeric value conversion to ty.
func (b *Builder) Convert(ty TypeHandle, v ValueID) ValueID {
	_, r := b.emitValue(InstConvert, ty, v)
	return r
}

// Bitcast reinterprets v as ty.
func (b *Builder) Bitcast(ty TypeHandle, v ValueID) ValueID {
	_, r := b.emitValue(InstBitcast, ty, v)
	return r
}

// Arithmetic.

// Binary emits lhs op rhs with result type ty.
func (b *Builder) Binary(op BinaryOp, ty TypeHandle, lhs, rhs ValueID) ValueID {
	id, v := b.emitValue(InstBinary, ty, lhs, rhs)
	b.Mod.insts[id].BinaryOp = op
	return v
}

func (b *Builder) Add(ty TypeHandle, l, r ValueID) ValueID { return b.Binary(OpAdd, ty, l, r) }
func (b *Builder) Sub(ty TypeHandle, l, r ValueID) ValueID { return b.Binary(OpSubtract, ty, l, r) }
func (b *Builder) Mul(ty TypeHandle, l, r ValueID) ValueID { return b.Binary(OpMultiply, ty, l, r) }
func (b *Builder) Div(ty TypeHandle, l, r ValueID) ValueID { return b.Binary(OpDivide, ty, l, r) }
func (b *Builder) Modulo(ty TypeHandle, l, r ValueID) ValueID { return b.Binary(OpModulo, ty, l, r) }
func (b *Builder) And(ty TypeHandle, l, r ValueID) ValueID { return b.Binary(OpAnd, ty, l, r) }
func (b *Builder) Or(ty TypeHandle, l, r ValueID) ValueID  { return b.Binary(OpOr, ty, l, r) }
func (b *Builder) Xor(ty TypeHandle, l, r ValueID) ValueID { return b.Binary(OpXor, ty, l, r) }

func (b *Builder) ShiftLeft(ty TypeHandle, l, r ValueID) ValueID {
	return b.Binary(OpShiftLeft, ty, l, r)
}

func (b *Builder) ShiftRight(ty TypeHandle, l, r ValueID) ValueID {
	return b.Binary(OpShiftRight, ty, l, r)
}

// Comparisons produce bool, or a vector of bool matching the operand width.
func (b *Builder) compare(op BinaryOp, l, r ValueID) ValueID {
	ty := b.Mod.Types.MatchWidth(b.Mod.Types.Bool(), b.Mod.TypeOf(l))
	return b.Binary(op, ty, l, r)
}

func (b *Builder) Equal(l, r ValueID) ValueID            { return b.compare(OpEqual, l, r) }
func (b *Builder) NotEqual(l, r ValueID) ValueID         { return b.compare(OpNotEqual, l, r) }
func (b *Builder) LessThan(l, r ValueID) ValueID         { return b.compare(OpLessThan, l, r) }
func (b *Builder) GreaterThan(l, r ValueID) ValueID      { return b.compare(OpGreaterThan, l, r) }
func (b *Builder) LessThanEqual(l, r ValueID) ValueID    { return b.compare(OpLessThanEqual, l, r) }
func (b *Builder) GreaterThanEqual(l, r ValueID) ValueID { return b.compare(OpGreaterThanEqual, l, r) }

// Complement emits ~v.
func (b *Builder) Complement(ty TypeHandle, v ValueID) ValueID {
	id, r := b.emitValue(InstUnary, ty, v)
	b.Mod.insts[id].UnaryOp = OpComplement
	return r
}

// Negation emits -v.
func (b *Builder) Negation(ty TypeHandle, v ValueID) ValueID {
	id, r := b.emitValue(InstUnary, ty, v)
	b.Mod.insts[id].UnaryOp = OpNegation
	return r
}

// Calls.

// Call emits a call to a core builtin with result type ty.
func (b *Builder) Call(ty TypeHandle, fn BuiltinFn, args ...ValueID) ValueID {
	id, v := b.emitValue(InstBuiltinCall, ty, args...)
	b.Mod.insts[id].Builtin = fn
	return v
}

// CallFunc emits a call to a function of the module.
func (b *Builder) CallFunc(f FuncID, args ...ValueID) ValueID {
	id, v := b.emitValue(InstUserCall, b.Mod.funcs[f].ReturnType, args...)
	b.Mod.insts[id].Callee = f
	return v
}

// Control flow.

// If creates an if with empty true and false blocks.
func (b *Builder) If(cond ValueID) InstID {
	id := b.Mod.NewInst(InstIf, []ValueID{cond})
	t, f := b.Mod.NewBlock(), b.Mod.NewBlock()
	b.Mod.insts[id].Blocks = []BlockID{t, f}
	b.Mod.blocks[t].Parent = id
	b.Mod.blocks[f].Parent = id
	if b.insert != nil {
		b.insert(id)
	}
	return id
}

// True returns the true block of an if.
func (b *Builder) True(ifInst InstID) BlockID { return b.Mod.insts[ifInst].Blocks[0] }

// False returns the false block of an if.
func (b *Builder) False(ifInst InstID) BlockID { return b.Mod.insts[ifInst].Blocks[1] }

// Loop creates a loop with empty initializer, body and continuing blocks.
func (b *Builder) Loop() InstID {
	id := b.Mod.NewInst(InstLoop, nil)
	blocks := []BlockID{b.Mod.NewBlock(), b.Mod.NewBlock(), b.Mod.NewBlock()}
	b.Mod.insts[id].Blocks = blocks
	for _, blk := range blocks {
		b.Mod.blocks[blk].Parent = id
	}
	if b.insert != nil {
		b.insert(id)
	}
	return id
}

// Initializer returns the initializer block of a loop.
func (b *Builder) Initializer(loop InstID) BlockID { return b.Mod.insts[loop].Blocks[0] }

// Body returns the body block of a loop.
func (b *Builder) Body(loop InstID) BlockID { return b.Mod.insts[loop].Blocks[1] }

// Continuing returns the continuing block of a loop.
func (b *Builder) Continuing(loop InstID) BlockID { return b.Mod.insts[loop].Blocks[2] }

// Switch creates a switch over cond with no cases.
func (b *Builder) Switch(cond ValueID) InstID {
	id := b.Mod.NewInst(InstSwitch, []ValueID{cond})
	if b.insert != nil {
		b.insert(id)
	}
	return id
}

// Case adds a case to a switch and returns its block.
func (b *Builder) Case(sw InstID, selectors ...CaseSelector) BlockID {
	blk := b.Mod.NewBlock()
	b.Mod.blocks[blk].Parent = sw
	in := b.Mod.insts[sw]
	in.Cases = append(in.Cases, SwitchCase{Selectors: selectors, Block: blk})
	return blk
}

// DefaultCase adds the default case to a switch.
func (b *Builder) DefaultCase(sw InstID) BlockID {
	return b.Case(sw, CaseSelector{Default: true})
}

// Terminators.

func (b *Builder) terminator(kind InstKind, control InstID, args []ValueID) InstID {
	id := b.Mod.NewInst(kind, args)
	b.Mod.insts[id].Control = control
	if b.insert != nil {
		b.insert(id)
	}
	return id
}

// Return emits ret with an optional value.
func (b *Builder) Return(vals ...ValueID) InstID {
	return b.terminator(InstReturn, 0, vals)
}

// ExitIf leaves ifInst, yielding vals as its results.
func (b *Builder) ExitIf(ifInst InstID, vals ...ValueID) InstID {
	return b.terminator(InstExitIf, ifInst, vals)
}

// ExitLoop leaves loop.
func (b *Builder) ExitLoop(loop InstID, vals ...ValueID) InstID {
	return b.terminator(InstExitLoop, loop, vals)
}

// ExitSwitch leaves sw.
func (b *Builder) ExitSwitch(sw InstID, vals ...ValueID) InstID {
	return b.terminator(InstExitSwitch, sw, vals)
}

// Continue branches to the continuing block of loop.
func (b *Builder) Continue(loop InstID, vals ...ValueID) InstID {
	return b.terminator(InstContinue, loop, vals)
}

// NextIteration branches to the body of loop, passing vals to its block
// parameters.
func (b *Builder) NextIteration(loop InstID, vals ...ValueID) InstID {
	return b.terminator(InstNextIteration, loop, vals)
}

// BreakIf ends the continuing block of loop, leaving the loop when cond
// holds.
func (b *Builder) BreakIf(loop InstID, cond ValueID, vals ...ValueID) InstID {
	return b.terminator(InstBreakIf, loop, append([]ValueID{cond}, vals...))
}

// Unreachable marks the end of a block as unreachable.
func (b *Builder) Unreachable() InstID {
	return b.terminator(InstUnreachable, 0, nil)
}

// InstOf returns the instruction producing v.
func (b *Builder) InstOf(v ValueID) InstID {
	return b.Mod.values[v].Inst
}
