// Package eval is a reference interpreter for ir modules.
//
// It executes functions directly on the IR so that a module can be
// compared against its transformed form. The interpreter favors
// simplicity over speed: f16 values are computed at f32 precision and
// texture builtins are not supported.
package eval

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/shaderir/ir"
)

var (
	// ErrUnsupported reports an instruction the interpreter cannot run.
	ErrUnsupported = errors.New("eval: unsupported operation")

	// ErrOutOfBounds reports an index outside the object it indexes.
	ErrOutOfBounds = errors.New("eval: index out of bounds")

	// ErrStepLimit reports an invocation exceeding Options.MaxSteps.
	ErrStepLimit = errors.New("eval: step limit exceeded")

	// ErrDivergentBarrier reports a barrier not reached by every invocation
	// of the workgroup.
	ErrDivergentBarrier = errors.New("eval: barrier not reached by every invocation")

	// ErrUnknownWorkgroupSize reports an entry point whose workgroup size
	// is neither declared nor given in Options.
	ErrUnknownWorkgroupSize = errors.New("eval: unknown workgroup size")
)

// DefaultMaxSteps bounds the instructions executed per invocation when
// Options.MaxSteps is zero.
const DefaultMaxSteps = 1 << 20

// Options configure an execution.
type Options struct {
	// Size is the workgroup size. A zero Size uses the size declared by
	// the entry point.
	Size [3]uint32

	// Resources holds the initial contents of resource variables by
	// binding point. Missing resources start zeroed, runtime-sized arrays
	// empty.
	Resources map[ir.BindingPoint]Value

	// MaxSteps bounds the instructions executed per invocation.
	MaxSteps int
}

// fault unwinds an invocation on error.
type fault struct{ err error }

func (in *invocation) fail(format string, args ...any) {
	panic(fault{fmt.Errorf(format, args...)})
}

// recoverFault turns a fault panic into *err.
func recoverFault(err *error) {
	if r := recover(); r != nil {
		f, ok := r.(fault)
		if !ok {
			panic(r)
		}
		*err = f.err
	}
}

// machine is the state shared by the invocations of one execution.
type machine struct {
	ctx   context.Context
	mod   *ir.Module
	types *ir.TypeManager
	opts  Options

	// shared holds workgroup and resource memory.
	shared map[ir.ValueID]*Value
	consts map[ir.ValueID]Value

	stores []Store
	phase  int
}

func newMachine(ctx context.Context, mod *ir.Module, opts Options) *machine {
	if opts.MaxSteps == 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	return &machine{
		ctx:    ctx,
		mod:    mod,
		types:  mod.Types,
		opts:   opts,
		shared: make(map[ir.ValueID]*Value),
		consts: make(map[ir.ValueID]Value),
	}
}

// invocation is one thread of execution.
type invocation struct {
	m       *machine
	index   uint32
	private map[ir.ValueID]*Value
	steps   int

	// barrier suspends the invocation until the workgroup reaches the
	// barrier. It is nil outside RunWorkgroup.
	barrier func()
}

func (m *machine) newInvocation(index uint32) *invocation {
	return &invocation{m: m, index: index, private: make(map[ir.ValueID]*Value)}
}

// Call runs function f of mod on a single invocation and returns its
// result, or the zero Value for void functions. Barriers do not wait.
func Call(ctx context.Context, mod *ir.Module, f ir.FuncID, opts Options, args ...Value) (result Value, err error) {
	fn := mod.Func(f)
	if len(args) != len(fn.Params) {
		return Value{}, fmt.Errorf("eval: %s takes %d arguments, got %d", fn.Name, len(fn.Params), len(args))
	}
	inv := newMachine(ctx, mod, opts).newInvocation(0)
	defer recoverFault(&err)
	return inv.call(f, args), nil
}

// branch is the terminator that ended a block.
type branch struct {
	kind    ir.InstKind
	control ir.InstID
	args    []Value
}

type frame struct {
	inv  *invocation
	vals map[ir.ValueID]Value
}

func (in *invocation) call(f ir.FuncID, args []Value) Value {
	fn := in.m.mod.Func(f)
	fr := &frame{inv: in, vals: make(map[ir.ValueID]Value)}
	for i, p := range fn.Params {
		fr.vals[p] = args[i]
	}
	br := fr.run(fn.Block)
	switch br.kind {
	case ir.InstReturn:
		if len(br.args) > 0 {
			return br.args[0]
		}
		return Value{}
	case 0:
		if fn.ReturnType != in.m.types.Void() {
			in.fail("eval: %s ends without returning", fn.Name)
		}
		return Value{}
	default:
		in.fail("eval: %s escapes function %s", br.kind, fn.Name)
		return Value{}
	}
}

func (in *invocation) step() {
	in.steps++
	if in.steps > in.m.opts.MaxSteps {
		in.fail("%w (%d)", ErrStepLimit, in.m.opts.MaxSteps)
	}
	if in.steps%1024 == 0 {
		if err := in.m.ctx.Err(); err != nil {
			in.fail("eval: %w", err)
		}
	}
}

// value returns the runtime value of v.
func (fr *frame) value(v ir.ValueID) Value {
	if val, ok := fr.vals[v]; ok {
		return val
	}
	m := fr.inv.m
	def := m.mod.Value(v)
	switch {
	case def.Kind == ir.ValueConstant:
		c, ok := m.consts[v]
		if !ok {
			c = constant(m.types, def.Type, def.Const)
			m.consts[v] = c
		}
		return c
	case def.Kind == ir.ValueResult && m.mod.Inst(def.Inst).Block == m.mod.Root:
		return fr.inv.global(v)
	default:
		fr.inv.fail("eval: value %%%d used before its definition", v)
		return Value{}
	}
}

func (fr *frame) values(vs []ir.ValueID) []Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = fr.value(v)
	}
	return out
}

func (fr *frame) bind(params []ir.ValueID, args []Value) {
	if len(args) < len(params) {
		fr.inv.fail("eval: block expects %d arguments, got %d", len(params), len(args))
	}
	for i, p := range params {
		fr.vals[p] = args[i]
	}
}

// setResults assigns the results of a control instruction. Missing values,
// from blocks that end without an exit, are zero.
func (fr *frame) setResults(inst *ir.Instruction, args []Value) {
	for i, r := range inst.Results {
		if i < len(args) {
			fr.vals[r] = args[i]
		} else {
			fr.vals[r] = Zero(fr.inv.m.types, fr.inv.m.mod.TypeOf(r))
		}
	}
}

// run executes block b and returns the branch that ended it. A block
// without a terminator yields the zero branch.
func (fr *frame) run(b ir.BlockID) branch {
	mod := fr.inv.m.mod
	for _, id := range mod.Block(b).Insts {
		fr.inv.step()
		inst := mod.Inst(id)
		if inst.Kind.IsTerminator() {
			if inst.Kind == ir.InstUnreachable {
				fr.inv.fail("eval: unreachable executed")
			}
			return branch{kind: inst.Kind, control: inst.Control, args: fr.values(inst.Operands)}
		}
		if br, exited := fr.exec(id, inst); exited {
			return br
		}
	}
	return branch{}
}

// exec executes a non-terminator. It reports a branch that leaves the
// current block, such as a return from inside a loop.
func (fr *frame) exec(id ir.InstID, inst *ir.Instruction) (branch, bool) {
	switch inst.Kind {
	case ir.InstIf:
		return fr.execIf(id, inst)
	case ir.InstLoop:
		return fr.execLoop(id, inst)
	case ir.InstSwitch:
		return fr.execSwitch(id, inst)
	}

	var r Value
	switch inst.Kind {
	case ir.InstVar:
		r = fr.local(inst)
	case ir.InstLet:
		r = fr.value(inst.Operands[0])
	case ir.InstLoad:
		r = fr.inv.load(fr.value(inst.Operands[0]))
	case ir.InstStore:
		fr.inv.store(fr.value(inst.Operands[0]), nil, fr.value(inst.Operands[1]))
		return branch{}, false
	case ir.InstLoadVectorElement:
		vec := fr.inv.load(fr.value(inst.Operands[0]))
		r = fr.inv.elemAt(vec, fr.value(inst.Operands[1]).U32())
	case ir.InstStoreVectorElement:
		lane := fr.value(inst.Operands[1]).U32()
		fr.inv.store(fr.value(inst.Operands[0]), []uint32{lane}, fr.value(inst.Operands[2]))
		return branch{}, false
	case ir.InstAccess:
		r = fr.access(inst)
	case ir.InstSwizzle:
		obj := fr.value(inst.Operands[0])
		if len(inst.Indices) == 1 {
			r = fr.inv.elemAt(obj, inst.Indices[0])
			break
		}
		r = Value{Elems: make([]Value, len(inst.Indices))}
		for i, idx := range inst.Indices {
			r.Elems[i] = fr.inv.elemAt(obj, idx)
		}
	case ir.InstConstruct:
		r = fr.construct(inst)
	case ir.InstConvert:
		from := fr.scalarKind(inst.Operands[0])
		to := fr.scalarKind(inst.Result())
		r = each(fr.value(inst.Operands[0]), func(x uint64) uint64 { return convert(x, from, to) })
	case ir.InstBitcast:
		r = fr.bitcast(inst)
	case ir.InstBinary:
		r = fr.binary(inst)
	case ir.InstUnary:
		k := fr.scalarKind(inst.Result())
		r = each(fr.value(inst.Operands[0]), func(x uint64) uint64 { return unary(inst.UnaryOp, k, x) })
	case ir.InstBuiltinCall:
		r = fr.builtin(inst)
	case ir.InstUserCall:
		r = fr.inv.call(inst.Callee, fr.values(inst.Operands))
	default:
		fr.inv.fail("%w: %s", ErrUnsupported, inst.Kind)
	}
	if res := inst.Result(); res != 0 {
		fr.vals[res] = r
	}
	return branch{}, false
}

func (fr *frame) execIf(id ir.InstID, inst *ir.Instruction) (branch, bool) {
	blk := inst.Blocks[1]
	if fr.value(inst.Operands[0]).Bool() {
		blk = inst.Blocks[0]
	}
	br := fr.run(blk)
	if br.kind == 0 || (br.kind == ir.InstExitIf && br.control == id) {
		fr.setResults(inst, br.args)
		return branch{}, false
	}
	return br, true
}

func (fr *frame) execLoop(id ir.InstID, inst *ir.Instruction) (branch, bool) {
	mod := fr.inv.m.mod
	init, body, cont := inst.Blocks[0], inst.Blocks[1], inst.Blocks[2]
	bodyParams := mod.Block(body).Params

	var args []Value
	if !mod.IsEmpty(init) {
		br := fr.run(init)
		if br.kind != ir.InstNextIteration || br.control != id {
			return br, true
		}
		args = br.args
	}
	for {
		fr.bind(bodyParams, args)
		br := fr.run(body)
		if br.kind == 0 {
			fr.inv.fail("eval: loop body ends without a terminator")
		}
		if br.control != id {
			return br, true
		}
		switch br.kind {
		case ir.InstExitLoop:
			fr.setResults(inst, br.args)
			return branch{}, false
		case ir.InstNextIteration:
			args = br.args
			continue
		}

		// continue
		if mod.IsEmpty(cont) {
			args = br.args
			continue
		}
		fr.bind(mod.Block(cont).Params, br.args)
		br = fr.run(cont)
		if br.control != id {
			return br, true
		}
		switch br.kind {
		case ir.InstNextIteration:
			args = br.args
		case ir.InstBreakIf:
			if br.args[0].Bool() {
				var exit []Value
				if n := 1 + len(bodyParams); len(br.args) > n {
					exit = br.args[n:]
				}
				fr.setResults(inst, exit)
				return branch{}, false
			}
			args = br.args[1:]
		default:
			fr.inv.fail("eval: continuing block ends with %s", br.kind)
		}
	}
}

func (fr *frame) execSwitch(id ir.InstID, inst *ir.Instruction) (branch, bool) {
	sel := fr.value(inst.Operands[0]).Bits
	var target, def ir.BlockID
	for _, c := range inst.Cases {
		for _, s := range c.Selectors {
			switch {
			case s.Default:
				def = c.Block
			case target == 0 && fr.value(s.Value).Bits == sel:
				target = c.Block
			}
		}
	}
	if target == 0 {
		target = def
	}
	if target == 0 {
		fr.inv.fail("eval: switch without a default case")
	}
	br := fr.run(target)
	if br.kind == 0 || (br.kind == ir.InstExitSwitch && br.control == id) {
		fr.setResults(inst, br.args)
		return branch{}, false
	}
	return br, true
}

func (fr *frame) scalarKind(v ir.ValueID) ir.ScalarKind {
	s, ok := fr.inv.m.types.ScalarOf(fr.inv.m.types.UnwrapPtr(fr.inv.m.mod.TypeOf(v)))
	if !ok {
		fr.inv.fail("%w: %s is not numeric", ErrUnsupported, fr.inv.m.types.Name(fr.inv.m.mod.TypeOf(v)))
	}
	return s.Kind
}

func (fr *frame) binary(inst *ir.Instruction) Value {
	lhs, rhs := inst.Operands[0], inst.Operands[1]
	k := fr.scalarKind(lhs)
	if inst.BinaryOp.IsComparison() {
		return zip(fr.value(lhs), fr.value(rhs), func(x, y uint64) uint64 {
			return compare(inst.BinaryOp, k, x, y)
		})
	}
	types := fr.inv.m.types
	if inst.BinaryOp == ir.OpMultiply {
		_, lm := types.Inner(fr.inv.m.mod.TypeOf(lhs)).(ir.MatrixType)
		_, rm := types.Inner(fr.inv.m.mod.TypeOf(rhs)).(ir.MatrixType)
		if lm || rm {
			fr.inv.fail("%w: matrix multiplication", ErrUnsupported)
		}
	}
	return zip(fr.value(lhs), fr.value(rhs), func(x, y uint64) uint64 {
		r, ok := binary(inst.BinaryOp, k, x, y)
		if !ok {
			fr.inv.fail("%w: %s on %s", ErrUnsupported, inst.BinaryOp, types.Name(fr.inv.m.mod.TypeOf(lhs)))
		}
		return r
	})
}

func (fr *frame) bitcast(inst *ir.Instruction) Value {
	types := fr.inv.m.types
	src, _ := types.ScalarOf(fr.inv.m.mod.TypeOf(inst.Operands[0]))
	dst, _ := types.ScalarOf(fr.inv.m.mod.TypeOf(inst.Result()))
	if src.Width != 4 || dst.Width != 4 {
		fr.inv.fail("%w: bitcast between %s and %s", ErrUnsupported, src, dst)
	}
	return fr.value(inst.Operands[0]).clone()
}

func (fr *frame) construct(inst *ir.Instruction) Value {
	types := fr.inv.m.types
	ty := fr.inv.m.mod.TypeOf(inst.Result())
	args := fr.values(inst.Operands)
	switch t := types.Inner(ty).(type) {
	case ir.VectorType:
		if len(args) == 1 && args[0].Elems == nil {
			return fill(types, ty, func(ir.ScalarKind) uint64 { return args[0].Bits })
		}
		out := Value{Elems: make([]Value, 0, t.Size)}
		for _, a := range args {
			if a.Elems != nil {
				out.Elems = append(out.Elems, a.Elems...)
			} else {
				out.Elems = append(out.Elems, a)
			}
		}
		return out
	case ir.MatrixType:
		if len(args) == int(t.Columns) {
			return Value{Elems: args}
		}
		out := Value{Elems: make([]Value, t.Columns)}
		for c := range out.Elems {
			out.Elems[c] = Value{Elems: args[c*int(t.Rows) : (c+1)*int(t.Rows)]}
		}
		return out
	default:
		if len(args) == 0 {
			return Zero(types, ty)
		}
		return Value{Elems: args}
	}
}

// access evaluates an access chain. Pointer accesses extend the pointer,
// value accesses extract the element.
func (fr *frame) access(inst *ir.Instruction) Value {
	obj := fr.value(inst.Operands[0])
	indices := fr.values(inst.Operands[1:])
	if obj.Ref != nil {
		ref := *obj.Ref
		ref.Path = make([]uint32, len(obj.Ref.Path), len(obj.Ref.Path)+len(indices))
		copy(ref.Path, obj.Ref.Path)
		for _, idx := range indices {
			ref.Path = append(ref.Path, idx.U32())
		}
		return Value{Ref: &ref}
	}
	for _, idx := range indices {
		obj = fr.inv.elemAt(obj, idx.U32())
	}
	return obj
}

func (in *invocation) elemAt(v Value, i uint32) Value {
	if int64(i) >= int64(len(v.Elems)) {
		in.fail("%w: index %d of %d elements", ErrOutOfBounds, i, len(v.Elems))
	}
	return v.Elems[i]
}
