package ir

import "fmt"

// InstKind enumerates instruction kinds.
type InstKind uint8

const (
	// InstVar declares a variable and yields a pointer to it.
	InstVar InstKind = iota + 1
	// InstLet binds a value to a name.
	InstLet
	// InstLoad reads through a pointer.
	InstLoad
	// InstStore writes through a pointer.
	InstStore
	// InstLoadVectorElement reads one lane of a vector through a pointer.
	InstLoadVectorElement
	// InstStoreVectorElement writes one lane of a vector through a pointer.
	InstStoreVectorElement
	// InstAccess indexes into a composite value or pointer.
	InstAccess
	// InstSwizzle selects vector components by constant indices.
	InstSwizzle
	// InstConstruct builds a composite value.
	InstConstruct
	// InstConvert is a numeric value conversion.
	InstConvert
	// InstBitcast reinterprets the bits of a value.
	InstBitcast
	// InstBinary is an arithmetic, bitwise or comparison operation.
	InstBinary
	// InstUnary is a complement or negation.
	InstUnary
	// InstBuiltinCall calls a core builtin function.
	InstBuiltinCall
	// InstUserCall calls a function of the module.
	InstUserCall
	// InstIf is a structured conditional with a true and a false block.
	InstIf
	// InstLoop is a structured loop with initializer, body and continuing
	// blocks.
	InstLoop
	// InstSwitch is a structured multi-way branch.
	InstSwitch
	// InstReturn returns from the function.
	InstReturn
	// InstExitIf leaves the enclosing if.
	InstExitIf
	// InstExitLoop leaves the enclosing loop.
	InstExitLoop
	// InstExitSwitch leaves the enclosing switch.
	InstExitSwitch
	// InstContinue branches to the continuing block of a loop.
	InstContinue
	// InstNextIteration branches to the loop body.
	InstNextIteration
	// InstBreakIf ends a continuing block, leaving the loop if the condition
	// holds.
	InstBreakIf
	// InstUnreachable marks unreachable code.
	InstUnreachable
)

var instKindNames = [...]string{
	InstVar:                "var",
	InstLet:                "let",
	InstLoad:               "load",
	InstStore:              "store",
	InstLoadVectorElement:  "load_vector_element",
	InstStoreVectorElement: "store_vector_element",
	InstAccess:             "access",
	InstSwizzle:            "swizzle",
	InstConstruct:          "construct",
	InstConvert:            "convert",
	InstBitcast:            "bitcast",
	InstBinary:             "binary",
	InstUnary:              "unary",
	InstBuiltinCall:        "builtin",
	InstUserCall:           "call",
	InstIf:                 "if",
	InstLoop:               "loop",
	InstSwitch:             "switch",
	InstReturn:             "ret",
	InstExitIf:             "exit_if",
	InstExitLoop:           "exit_loop",
	InstExitSwitch:         "exit_switch",
	InstContinue:           "continue",
	InstNextIteration:      "next_iteration",
	InstBreakIf:            "break_if",
	InstUnreachable:        "unreachable",
}

func (k InstKind) String() string {
	if int(k) < len(instKindNames) && instKindNames[k] != "" {
		return instKindNames[k]
	}
	return fmt.Sprintf("InstKind(%d)", k)
}

// IsTerminator reports whether instructions of this kind end a block.
func (k InstKind) IsTerminator() bool {
	switch k {
	case InstReturn, InstExitIf, InstExitLoop, InstExitSwitch, InstContinue,
		InstNextIteration, InstBreakIf, InstUnreachable:
		return true
	default:
		return false
	}
}

// IsControl reports whether instructions of this kind own blocks.
func (k InstKind) IsControl() bool {
	return k == InstIf || k == InstLoop || k == InstSwitch
}

// BinaryOp is the operator of an InstBinary.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpAnd
	OpOr
	OpXor
	OpEqual
	OpNotEqual
	OpLessThan
	OpGreaterThan
	OpLessThanEqual
	OpGreaterThanEqual
	OpShiftLeft
	OpShiftRight
)

var binaryOpNames = [...]string{
	OpAdd:              "add",
	OpSubtract:         "sub",
	OpMultiply:         "mul",
	OpDivide:           "div",
	OpModulo:           "mod",
	OpAnd:              "and",
	OpOr:               "or",
	OpXor:              "xor",
	OpEqual:            "eq",
	OpNotEqual:         "neq",
	OpLessThan:         "lt",
	OpGreaterThan:      "gt",
	OpLessThanEqual:    "lte",
	OpGreaterThanEqual: "gte",
	OpShiftLeft:        "shiftl",
	OpShiftRight:       "shiftr",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return "unknown"
}

// IsComparison reports whether the operator yields a bool.
func (op BinaryOp) IsComparison() bool {
	return op >= OpEqual && op <= OpGreaterThanEqual
}

// UnaryOp is the operator of an InstUnary.
type UnaryOp uint8

const (
	OpComplement UnaryOp = iota
	OpNegation
)

func (op UnaryOp) String() string {
	if op == OpNegation {
		return "negation"
	}
	return "complement"
}

// SwitchCase is one case of an InstSwitch. A selector with Default set
// matches any value not matched by another case.
type SwitchCase struct {
	Selectors []CaseSelector
	Block     BlockID
}

// CaseSelector is a constant case value or the default marker.
type CaseSelector struct {
	Default bool
	Value   ValueID
}

// Instruction is a typed operation node.
type Instruction struct {
	Kind     InstKind
	Operands []ValueID
	Results  []ValueID

	// Block is the parent block, zero while detached.
	Block BlockID

	// Payload, by kind.
	BinaryOp BinaryOp
	UnaryOp  UnaryOp
	Builtin  BuiltinFn
	Callee   FuncID
	// BindingPoint is set on resource variables.
	BindingPoint *BindingPoint
	// Indices are the swizzle component indices.
	Indices []uint32
	// Blocks are [true, false] for InstIf and [initializer, body,
	// continuing] for InstLoop.
	Blocks []BlockID
	// Cases are the cases of an InstSwitch.
	Cases []SwitchCase
	// Control is the if, loop or switch an exit, continue, next_iteration
	// or break_if refers to.
	Control InstID

	alive bool
}

// Result returns the single result of the instruction, or zero.
func (i *Instruction) Result() ValueID {
	if len(i.Results) == 0 {
		return 0
	}
	return i.Results[0]
}

// NewInst creates a detached instruction with fresh results of the given
// types and registers its operand uses.
func (m *Module) NewInst(kind InstKind, operands []ValueID, resultTypes ...TypeHandle) InstID {
	id := InstID(len(m.insts))
	inst := &Instruction{Kind: kind, alive: true}
	m.insts = append(m.insts, inst)
	inst.Operands = make([]ValueID, 0, len(operands))
	for _, op := range operands {
		m.addOperand(id, op)
	}
	for _, ty := range resultTypes {
		r := m.newValue(&Value{Kind: ValueResult, Type: ty, Inst: id})
		inst.Results = append(inst.Results, r)
	}
	return id
}

// AddResult appends a fresh result of type ty to a control instruction.
func (m *Module) AddResult(inst InstID, ty TypeHandle) ValueID {
	r := m.newValue(&Value{Kind: ValueResult, Type: ty, Inst: inst})
	m.insts[inst].Results = append(m.insts[inst].Results, r)
	return r
}

func (m *Module) addOperand(inst InstID, v ValueID) {
	in := m.insts[inst]
	idx := len(in.Operands)
	in.Operands = append(in.Operands, v)
	if v != 0 {
		m.values[v].uses = append(m.values[v].uses, Usage{Inst: inst, Operand: idx})
	}
}

// AppendOperand adds an operand to the end of an instruction's operand list.
func (m *Module) AppendOperand(inst InstID, v ValueID) { m.addOperand(inst, v) }

// SetOperand replaces operand i of inst, keeping both use lists in sync.
func (m *Module) SetOperand(inst InstID, i int, v ValueID) {
	in := m.insts[inst]
	old := in.Operands[i]
	if old == v {
		return
	}
	if old != 0 {
		m.removeUse(old, Usage{Inst: inst, Operand: i})
	}
	in.Operands[i] = v
	if v != 0 {
		m.values[v].uses = append(m.values[v].uses, Usage{Inst: inst, Operand: i})
	}
}

// SetOperands replaces the whole operand list of inst.
func (m *Module) SetOperands(inst InstID, operands ...ValueID) {
	in := m.insts[inst]
	for i, old := range in.Operands {
		if old != 0 {
			m.removeUse(old, Usage{Inst: inst, Operand: i})
		}
	}
	in.Operands = in.Operands[:0]
	for _, v := range operands {
		m.addOperand(inst, v)
	}
}

func (m *Module) removeUse(v ValueID, u Usage) {
	uses := m.values[v].uses
	for i, existing := range uses {
		if existing == u {
			m.values[v].uses = append(uses[:i], uses[i+1:]...)
			return
		}
	}
	panic(fmt.Sprintf("ICE: value %d has no use %+v", v, u))
}

// Uses returns a snapshot of the uses of a value.
func (m *Module) Uses(v ValueID) []Usage {
	uses := m.values[v].uses
	out := make([]Usage, len(uses))
	copy(out, uses)
	return out
}

// HasUses reports whether any operand refers to v.
func (m *Module) HasUses(v ValueID) bool { return len(m.values[v].uses) > 0 }

// ForEachUse calls fn for a snapshot of the uses of v, so fn may rewrite
// operands.
func (m *Module) ForEachUse(v ValueID, fn func(Usage)) {
	for _, u := range m.Uses(v) {
		fn(u)
	}
}

// ReplaceAllUsesWith rewires every operand referring to old to refer to
// replacement instead.
func (m *Module) ReplaceAllUsesWith(old, replacement ValueID) {
	m.ForEachUse(old, func(u Usage) {
		m.SetOperand(u.Inst, u.Operand, replacement)
	})
}

// Remove detaches an instruction from its block, keeping it alive.
func (m *Module) Remove(inst InstID) {
	in := m.insts[inst]
	if in.Block == 0 {
		return
	}
	blk := m.blocks[in.Block]
	for i, id := range blk.Insts {
		if id == inst {
			blk.Insts = append(blk.Insts[:i], blk.Insts[i+1:]...)
			break
		}
	}
	in.Block = 0
}

// Destroy removes an instruction from its block, drops its operand uses and
// marks it dead. Its results must have no remaining uses.
func (m *Module) Destroy(inst InstID) {
	in := m.insts[inst]
	if !in.alive {
		return
	}
	for _, r := range in.Results {
		if m.HasUses(r) {
			panic(fmt.Sprintf("ICE: destroying %s whose result %d is still used", in.Kind, r))
		}
	}
	m.Remove(inst)
	for i, op := range in.Operands {
		if op != 0 {
			m.removeUse(op, Usage{Inst: inst, Operand: i})
		}
	}
	in.Operands = nil
	in.alive = false
	for _, b := range m.OwnedBlocks(inst) {
		for _, child := range append([]InstID(nil), m.blocks[b].Insts...) {
			m.destroyTree(child)
		}
	}
}

// destroyTree destroys a nested instruction together with any uses its
// results have inside the same subtree.
func (m *Module) destroyTree(inst InstID) {
	in := m.insts[inst]
	for _, r := range in.Results {
		for _, u := range m.Uses(r) {
			m.SetOperand(u.Inst, u.Operand, 0)
		}
	}
	m.Destroy(inst)
}

// OwnedBlocks returns the blocks owned by a control instruction, in
// printing order.
func (m *Module) OwnedBlocks(inst InstID) []BlockID {
	in := m.insts[inst]
	switch in.Kind {
	case InstIf, InstLoop:
		return in.Blocks
	case InstSwitch:
		out := make([]BlockID, len(in.Cases))
		for i, c := range in.Cases {
			out[i] = c.Block
		}
		return out
	default:
		return nil
	}
}

func (m *Module) attach(b BlockID, inst InstID) {
	in := m.insts[inst]
	if in.Block != 0 {
		panic(fmt.Sprintf("ICE: %s is already in block %d", in.Kind, in.Block))
	}
	in.Block = b
	for _, owned := range m.OwnedBlocks(inst) {
		m.blocks[owned].Parent = inst
	}
}

// Append adds inst to the end of block b.
func (m *Module) Append(b BlockID, inst InstID) {
	m.attach(b, inst)
	m.blocks[b].Insts = append(m.blocks[b].Insts, inst)
}

// Prepend adds inst to the start of block b.
func (m *Module) Prepend(b BlockID, inst InstID) {
	m.attach(b, inst)
	blk := m.blocks[b]
	blk.Insts = append([]InstID{inst}, blk.Insts...)
}

// InsertBefore places inst immediately before the attached instruction
// before.
func (m *Module) InsertBefore(before, inst InstID) {
	b := m.insts[before].Block
	m.attach(b, inst)
	blk := m.blocks[b]
	i := m.indexIn(blk, before)
	blk.Insts = append(blk.Insts, 0)
	copy(blk.Insts[i+1:], blk.Insts[i:])
	blk.Insts[i] = inst
}

// InsertAfter places inst immediately after the attached instruction after.
func (m *Module) InsertAfter(after, inst InstID) {
	b := m.insts[after].Block
	m.attach(b, inst)
	blk := m.blocks[b]
	i := m.indexIn(blk, after) + 1
	blk.Insts = append(blk.Insts, 0)
	copy(blk.Insts[i+1:], blk.Insts[i:])
	blk.Insts[i] = inst
}

func (m *Module) indexIn(blk *Block, inst InstID) int {
	for i, id := range blk.Insts {
		if id == inst {
			return i
		}
	}
	panic(fmt.Sprintf("ICE: instruction %d is not in its parent block", inst))
}

// Terminator returns the terminator ending block b, or zero.
func (m *Module) Terminator(b BlockID) InstID {
	blk := m.blocks[b]
	if len(blk.Insts) == 0 {
		return 0
	}
	last := blk.Insts[len(blk.Insts)-1]
	if m.insts[last].Kind.IsTerminator() {
		return last
	}
	return 0
}

// IsEmpty reports whether a block has no instructions.
func (m *Module) IsEmpty(b BlockID) bool { return len(m.blocks[b].Insts) == 0 }

// ForEachBlock calls fn for b and then, depth first, for every block nested
// inside control instructions of b.
func (m *Module) ForEachBlock(b BlockID, fn func(BlockID)) {
	fn(b)
	for _, inst := range m.blocks[b].Insts {
		for _, owned := range m.OwnedBlocks(inst) {
			m.ForEachBlock(owned, fn)
		}
	}
}

// ForEachInst calls fn for a snapshot of every instruction of b and its
// nested blocks, in program order.
func (m *Module) ForEachInst(b BlockID, fn func(InstID)) {
	insts := append([]InstID(nil), m.blocks[b].Insts...)
	for _, inst := range insts {
		fn(inst)
		if !m.insts[inst].alive {
			continue
		}
		for _, owned := range m.OwnedBlocks(inst) {
			m.ForEachInst(owned, fn)
		}
	}
}

// RootVars returns the variable declarations of the root block.
func (m *Module) RootVars() []InstID {
	var out []InstID
	for _, inst := range m.blocks[m.Root].Insts {
		if m.insts[inst].Kind == InstVar {
			out = append(out, inst)
		}
	}
	return out
}
