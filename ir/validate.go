package ir

import (
	"errors"
	"fmt"
)

// ValidationError represents a validation error.
type ValidationError struct {
	Message string
	// Optional context
	Function string
	Inst     InstID
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Function != "" {
		if e.Inst != 0 {
			return fmt.Sprintf("in function %s, instruction %d: %s", e.Function, e.Inst, e.Message)
		}
		return fmt.Sprintf("in function %s: %s", e.Function, e.Message)
	}
	if e.Inst != 0 {
		return fmt.Sprintf("instruction %d: %s", e.Inst, e.Message)
	}
	return e.Message
}

// Validator validates IR modules.
type Validator struct {
	module *Module
	errors []ValidationError

	function string
	seen     map[InstID]bool
}

// Validate checks the IR module for correctness.
// Returns validation errors if any, or nil if module is valid.
func Validate(module *Module) ([]ValidationError, error) {
	if module == nil {
		return nil, fmt.Errorf("module is nil")
	}

	v := &Validator{
		module: module,
		errors: make([]ValidationError, 0),
		seen:   make(map[InstID]bool),
	}

	v.ValidateModule()

	if len(v.errors) > 0 {
		return v.errors, nil
	}
	return nil, nil
}

// ValidateErr is Validate with every finding joined into a single error.
func ValidateErr(module *Module) error {
	findings, err := Validate(module)
	if err != nil {
		return err
	}
	errs := make([]error, len(findings))
	for i, f := range findings {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// ValidateModule validates the complete module.
func (v *Validator) ValidateModule() {
	m := v.module

	v.validateRoot()

	names := make(map[string]bool)
	for _, f := range m.order {
		fn := m.funcs[f]
		if names[fn.Name] {
			v.addError(fmt.Sprintf("duplicate function name %q", fn.Name))
		}
		names[fn.Name] = true
		v.validateFunction(f)
	}

	v.validateUses()
}

func (v *Validator) validateRoot() {
	m := v.module
	v.function = ""
	for _, id := range m.blocks[m.Root].Insts {
		v.seen[id] = true
		inst := m.insts[id]
		if inst.Block != m.Root {
			v.addErrorAt(id, "instruction parent is not the root block")
		}
		if inst.Kind.IsTerminator() || inst.Kind.IsControl() {
			v.addErrorAt(id, fmt.Sprintf("%s is not allowed in the root block", inst.Kind))
			continue
		}
		v.validateInstruction(id)
		if inst.Kind != InstVar {
			continue
		}
		ptr, ok := m.Types.Pointer(m.TypeOf(inst.Result()))
		if !ok {
			continue
		}
		switch ptr.Space {
		case SpaceUniform, SpaceStorage, SpaceHandle:
			if inst.BindingPoint == nil {
				v.addErrorAt(id, fmt.Sprintf("resource variable in address space %s has no binding point", ptr.Space))
			}
		case SpaceFunction:
			v.addErrorAt(id, "module-scope variable in function address space")
		}
	}
}

func (v *Validator) validateFunction(f FuncID) {
	m := v.module
	fn := m.funcs[f]
	v.function = fn.Name

	if fn.Stage == StageCompute && fn.WorkgroupSize == nil {
		v.addError("compute entry point has no workgroup size")
	}
	if fn.Stage != StageCompute && fn.WorkgroupSize != nil {
		v.addError("workgroup size on a non-compute function")
	}
	for _, p := range fn.Params {
		val := m.values[p]
		if val.Kind != ValueFunctionParam || val.Func != f {
			v.addError(fmt.Sprintf("parameter %d does not belong to the function", p))
		}
		v.validateBuiltinType(val.Binding, val.Type)
		if s, ok := m.Types.Inner(val.Type).(StructType); ok {
			for _, mem := range s.Members {
				v.validateBuiltinType(mem.Binding, mem.Type)
			}
		}
	}
	if m.blocks[fn.Block].Func != f {
		v.addError("function body block does not point back to the function")
	}
	v.validateBlock(fn.Block, false)
}

func (v *Validator) validateBuiltinType(b Binding, ty TypeHandle) {
	bb, ok := b.(BuiltinBinding)
	if !ok {
		return
	}
	m := v.module
	var want TypeHandle
	switch bb.Builtin {
	case BuiltinLocalInvocationIndex, BuiltinVertexIndex, BuiltinInstanceIndex,
		BuiltinSampleIndex, BuiltinSampleMask:
		want = m.Types.U32()
	case BuiltinLocalInvocationID, BuiltinGlobalInvocationID, BuiltinWorkGroupID, BuiltinNumWorkGroups:
		want = m.Types.Vec(m.Types.U32(), 3)
	case BuiltinPosition:
		want = m.Types.Vec(m.Types.F32(), 4)
	case BuiltinFrontFacing:
		want = m.Types.Bool()
	case BuiltinFragDepth:
		want = m.Types.F32()
	default:
		return
	}
	if ty != want {
		v.addError(fmt.Sprintf("builtin %s must be %s, got %s", bb.Builtin, m.Types.Name(want), m.Types.Name(ty)))
	}
}

// validateBlock checks block structure. Blocks that may legitimately be
// empty pass mayBeEmpty.
func (v *Validator) validateBlock(b BlockID, mayBeEmpty bool) {
	m := v.module
	blk := m.blocks[b]
	if len(blk.Insts) == 0 {
		if !mayBeEmpty {
			v.addError(fmt.Sprintf("block %d is empty", b))
		}
		return
	}
	for i, id := range blk.Insts {
		inst := m.insts[id]
		if v.seen[id] {
			v.addErrorAt(id, "instruction appears in more than one block")
			continue
		}
		v.seen[id] = true
		if !inst.alive {
			v.addErrorAt(id, "destroyed instruction is still in a block")
			continue
		}
		if inst.Block != b {
			v.addErrorAt(id, "instruction parent does not match its block")
		}
		last := i == len(blk.Insts)-1
		if inst.Kind.IsTerminator() && !last {
			v.addErrorAt(id, fmt.Sprintf("%s is not at the end of its block", inst.Kind))
		}
		if last && !inst.Kind.IsTerminator() {
			v.addErrorAt(id, "block does not end in a terminator")
		}
		v.validateInstruction(id)

		switch inst.Kind {
		case InstIf:
			v.validateBlock(inst.Blocks[0], false)
			v.validateBlock(inst.Blocks[1], len(inst.Results) == 0)
		case InstLoop:
			v.validateBlock(inst.Blocks[0], true)
			v.validateBlock(inst.Blocks[1], false)
			v.validateBlock(inst.Blocks[2], true)
		case InstSwitch:
			for _, c := range inst.Cases {
				v.validateBlock(c.Block, false)
			}
		}
		for _, owned := range m.OwnedBlocks(id) {
			if m.blocks[owned].Parent != id {
				v.addErrorAt(id, fmt.Sprintf("owned block %d does not point back to its instruction", owned))
			}
		}
	}
}

func (v *Validator) validateInstruction(id InstID) {
	m := v.module
	inst := m.insts[id]

	for _, op := range inst.Operands {
		if op == 0 {
			if inst.Kind != InstVar {
				v.addErrorAt(id, "missing operand")
			}
			continue
		}
		if int(op) >= len(m.values) {
			v.addErrorAt(id, fmt.Sprintf("operand %d is out of range", op))
			continue
		}
		if val := m.values[op]; val.Kind == ValueResult && !m.insts[val.Inst].alive {
			v.addErrorAt(id, fmt.Sprintf("operand %d is the result of a destroyed instruction", op))
		}
	}
	for _, r := range inst.Results {
		if m.values[r].Kind != ValueResult || m.values[r].Inst != id {
			v.addErrorAt(id, fmt.Sprintf("result %d does not point back to its instruction", r))
		}
	}

	switch inst.Kind {
	case InstVar:
		v.validateVar(id)
	case InstLoad:
		if !v.operandCount(id, 1) {
			return
		}
		ptr, ok := m.Types.Pointer(m.TypeOf(inst.Operands[0]))
		if !ok {
			v.addErrorAt(id, "load from a non-pointer")
		} else if ptr.Base != m.TypeOf(inst.Result()) {
			v.addErrorAt(id, "load result type does not match the pointee type")
		}
	case InstStore:
		if !v.operandCount(id, 2) {
			return
		}
		ptr, ok := m.Types.Pointer(m.TypeOf(inst.Operands[0]))
		if !ok {
			v.addErrorAt(id, "store to a non-pointer")
		} else if ptr.Base != m.TypeOf(inst.Operands[1]) {
			v.addErrorAt(id, fmt.Sprintf("store of %s to %s", m.Types.Name(m.TypeOf(inst.Operands[1])), m.Types.Name(ptr.Base)))
		}
	case InstLoadVectorElement, InstStoreVectorElement:
		want := 2
		if inst.Kind == InstStoreVectorElement {
			want = 3
		}
		if !v.operandCount(id, want) {
			return
		}
		vec := m.Types.UnwrapPtr(m.TypeOf(inst.Operands[0]))
		if _, ok := m.Types.Inner(vec).(VectorType); !ok {
			v.addErrorAt(id, "vector element access on a non-vector")
		}
		v.validateIndexType(id, inst.Operands[1])
	case InstAccess:
		v.validateAccess(id)
	case InstLet, InstConvert, InstBitcast, InstUnary:
		v.operandCount(id, 1)
	case InstBinary:
		if !v.operandCount(id, 2) {
			return
		}
		if inst.BinaryOp.IsComparison() && !m.Types.IsBool(m.TypeOf(inst.Result())) {
			v.addErrorAt(id, "comparison result is not bool")
		}
	case InstSwizzle:
		if !v.operandCount(id, 1) {
			return
		}
		w := m.Types.Width(m.TypeOf(inst.Operands[0]))
		for _, idx := range inst.Indices {
			if int(idx) >= w {
				v.addErrorAt(id, fmt.Sprintf("swizzle index %d out of range", idx))
			}
		}
	case InstConstruct, InstBuiltinCall:
	case InstUserCall:
		if inst.Callee == 0 || int(inst.Callee) >= len(m.funcs) {
			v.addErrorAt(id, "call to an unknown function")
			return
		}
		callee := m.funcs[inst.Callee]
		if callee.IsEntryPoint() {
			v.addErrorAt(id, "call to an entry point")
		}
		if len(callee.Params) != len(inst.Operands) {
			v.addErrorAt(id, fmt.Sprintf("call to %s with %d arguments, want %d", callee.Name, len(inst.Operands), len(callee.Params)))
			return
		}
		for i, p := range callee.Params {
			if m.TypeOf(p) != m.TypeOf(inst.Operands[i]) {
				v.addErrorAt(id, fmt.Sprintf("argument %d of call to %s has the wrong type", i, callee.Name))
			}
		}
	case InstIf, InstSwitch:
		if !v.operandCount(id, 1) {
			return
		}
		if m.TypeOf(inst.Operands[0]) != m.Types.Bool() && inst.Kind == InstIf {
			v.addErrorAt(id, "if condition is not bool")
		}
	case InstLoop:
	case InstExitIf:
		v.validateExit(id, InstIf)
	case InstExitLoop, InstContinue, InstNextIteration, InstBreakIf:
		v.validateExit(id, InstLoop)
	case InstExitSwitch:
		v.validateExit(id, InstSwitch)
	case InstReturn:
		v.validateReturn(id)
	case InstUnreachable:
	default:
		panic(fmt.Sprintf("ICE: unhandled instruction kind %s", inst.Kind))
	}
}

func (v *Validator) operandCount(id InstID, want int) bool {
	if got := len(v.module.insts[id].Operands); got != want {
		v.addErrorAt(id, fmt.Sprintf("%s has %d operands, want %d", v.module.insts[id].Kind, got, want))
		return false
	}
	return true
}

func (v *Validator) validateVar(id InstID) {
	m := v.module
	inst := m.insts[id]
	ptr, ok := m.Types.Pointer(m.TypeOf(inst.Result()))
	if !ok {
		v.addErrorAt(id, "var result is not a pointer")
		return
	}
	if len(inst.Operands) > 0 && inst.Operands[0] != 0 && m.TypeOf(inst.Operands[0]) != ptr.Base {
		v.addErrorAt(id, "var initializer type does not match the store type")
	}
	if inst.Block != m.Root && inst.Block != 0 && ptr.Space != SpaceFunction {
		v.addErrorAt(id, fmt.Sprintf("function-scope variable in address space %s", ptr.Space))
	}
}

func (v *Validator) validateIndexType(id InstID, idx ValueID) {
	m := v.module
	ty := m.TypeOf(idx)
	if ty != m.Types.U32() && ty != m.Types.I32() {
		v.addErrorAt(id, fmt.Sprintf("index of type %s is not an integer scalar", m.Types.Name(ty)))
	}
}

// validateAccess walks the index chain and checks it produces the result
// type.
func (v *Validator) validateAccess(id InstID) {
	m := v.module
	inst := m.insts[id]
	if len(inst.Operands) < 2 {
		v.addErrorAt(id, "access without indices")
		return
	}
	objTy := m.TypeOf(inst.Operands[0])
	ptr, isPtr := m.Types.Pointer(objTy)
	cur := m.Types.UnwrapPtr(objTy)
	for _, idx := range inst.Operands[1:] {
		v.validateIndexType(id, idx)
		if s, ok := m.Types.Inner(cur).(StructType); ok {
			c, isConst := m.ConstScalar(idx)
			if !isConst {
				v.addErrorAt(id, "struct member index is not a constant")
				return
			}
			if int(c.Bits) >= len(s.Members) {
				v.addErrorAt(id, fmt.Sprintf("struct member index %d out of range", c.Bits))
				return
			}
			cur = s.Members[c.Bits].Type
			continue
		}
		elem, ok := m.Types.Element(cur)
		if !ok {
			v.addErrorAt(id, fmt.Sprintf("type %s cannot be indexed", m.Types.Name(cur)))
			return
		}
		cur = elem
	}
	want := cur
	if isPtr {
		want = m.Types.Ptr(ptr.Space, cur, ptr.Access)
	}
	if got := m.TypeOf(inst.Result()); got != want {
		v.addErrorAt(id, fmt.Sprintf("access result is %s, want %s", m.Types.Name(got), m.Types.Name(want)))
	}
}

// enclosing returns whether ctrl is an ancestor of the block containing id.
func (v *Validator) enclosing(id, ctrl InstID) bool {
	m := v.module
	b := m.insts[id].Block
	for b != 0 {
		p := m.blocks[b].Parent
		if p == 0 {
			return false
		}
		if p == ctrl {
			return true
		}
		b = m.insts[p].Block
	}
	return false
}

func (v *Validator) validateExit(id InstID, want InstKind) {
	m := v.module
	inst := m.insts[id]
	if inst.Control == 0 || int(inst.Control) >= len(m.insts) || m.insts[inst.Control].Kind != want {
		v.addErrorAt(id, fmt.Sprintf("%s does not refer to a %s", inst.Kind, want))
		return
	}
	if !v.enclosing(id, inst.Control) {
		v.addErrorAt(id, fmt.Sprintf("%s is not nested in the %s it exits", inst.Kind, want))
	}
	switch inst.Kind {
	case InstExitIf, InstExitLoop, InstExitSwitch:
		ctrl := m.insts[inst.Control]
		if len(inst.Operands) != len(ctrl.Results) {
			v.addErrorAt(id, fmt.Sprintf("%s passes %d values, want %d", inst.Kind, len(inst.Operands), len(ctrl.Results)))
			return
		}
		for i, r := range ctrl.Results {
			if m.TypeOf(r) != m.TypeOf(inst.Operands[i]) {
				v.addErrorAt(id, fmt.Sprintf("%s value %d has the wrong type", inst.Kind, i))
			}
		}
	case InstNextIteration:
		body := m.insts[inst.Control].Blocks[1]
		if len(inst.Operands) != len(m.blocks[body].Params) {
			v.addErrorAt(id, "next_iteration argument count does not match the body parameters")
		}
	}
}

func (v *Validator) validateReturn(id InstID) {
	m := v.module
	inst := m.insts[id]
	f := m.FuncOf(inst.Block)
	if f == 0 {
		v.addErrorAt(id, "return outside a function")
		return
	}
	ret := m.funcs[f].ReturnType
	if ret == m.Types.Void() {
		if len(inst.Operands) != 0 {
			v.addErrorAt(id, "return value in a void function")
		}
		return
	}
	if len(inst.Operands) != 1 || m.TypeOf(inst.Operands[0]) != ret {
		v.addErrorAt(id, fmt.Sprintf("return does not yield %s", m.Types.Name(ret)))
	}
}

// validateUses checks that use lists and operand slots mirror each other.
func (v *Validator) validateUses() {
	m := v.module
	v.function = ""
	for id := 1; id < len(m.insts); id++ {
		inst := m.insts[id]
		if !inst.alive {
			continue
		}
		for i, op := range inst.Operands {
			if op == 0 || int(op) >= len(m.values) {
				continue
			}
			if !hasUse(m.values[op].uses, Usage{Inst: InstID(id), Operand: i}) {
				v.addErrorAt(InstID(id), fmt.Sprintf("operand %d is missing from the use list of value %d", i, op))
			}
		}
	}
	for vid := 1; vid < len(m.values); vid++ {
		for _, u := range m.values[vid].uses {
			inst := m.insts[u.Inst]
			if !inst.alive {
				v.addError(fmt.Sprintf("value %d is used by destroyed instruction %d", vid, u.Inst))
				continue
			}
			if u.Operand >= len(inst.Operands) || inst.Operands[u.Operand] != ValueID(vid) {
				v.addError(fmt.Sprintf("value %d has a stale use %+v", vid, u))
			}
		}
	}
}

func hasUse(uses []Usage, u Usage) bool {
	for _, x := range uses {
		if x == u {
			return true
		}
	}
	return false
}

func (v *Validator) addError(msg string) {
	v.errors = append(v.errors, ValidationError{
		Message:  msg,
		Function: v.function,
	})
}

func (v *Validator) addErrorAt(id InstID, msg string) {
	v.errors = append(v.errors, ValidationError{
		Message:  msg,
		Function: v.function,
		Inst:     id,
	})
}
