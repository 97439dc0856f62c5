package ir

// Handle types for referencing IR objects.
//
// The zero ValueID, InstID, BlockID and FuncID never refer to a live object.
// TypeHandle zero is the void type.
type (
	TypeHandle uint32
	ValueID    uint32
	InstID     uint32
	BlockID    uint32
	FuncID     uint32
)

// Module represents a shader module in IR form.
type Module struct {
	// Types holds all type definitions
	Types *TypeManager

	// Symbols hands out unique names for generated declarations
	Symbols *SymbolTable

	// Root holds module-scope declarations, primarily variables
	Root BlockID

	values []*Value
	insts  []*Instruction
	blocks []*Block
	funcs  []*Function
	order  []FuncID
	names  map[ValueID]string
	consts map[string]ValueID
}

// NewModule creates an empty module with an empty root block.
func NewModule() *Module {
	m := &Module{
		Types:   NewTypeManager(),
		Symbols: NewSymbolTable(),
		values:  []*Value{nil},
		insts:   []*Instruction{nil},
		blocks:  []*Block{nil},
		funcs:   []*Function{nil},
		names:   make(map[ValueID]string),
		consts:  make(map[string]ValueID),
	}
	m.Root = m.NewBlock()
	return m
}

// ShaderStage represents a pipeline stage.
type ShaderStage uint8

const (
	StageNone ShaderStage = iota
	StageVertex
	StageFragment
	StageCompute
)

func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return "none"
	}
}

// WorkgroupDim is one component of a compute workgroup size.
type WorkgroupDim struct {
	Value uint32
	// Override names the pipeline-overridable constant that sets this
	// dimension. The value is unknown at compile time when it is set.
	Override string
}

// Known reports whether the dimension is a compile-time constant.
func (d WorkgroupDim) Known() bool { return d.Override == "" }

// WorkgroupSize is the (x, y, z) size of a compute workgroup.
type WorkgroupSize [3]WorkgroupDim

// Linear returns x*y*z, or false if any dimension is unknown.
func (w WorkgroupSize) Linear() (uint32, bool) {
	total := uint32(1)
	for _, d := range w {
		if !d.Known() {
			return 0, false
		}
		total *= d.Value
	}
	return total, true
}

// BindingPoint identifies a resource in the (group, binding) model.
type BindingPoint struct {
	Group   uint32
	Binding uint32
}

// Binding represents shader IO attributes on parameters, return values and
// struct members.
type Binding interface {
	binding()
}

// BuiltinBinding represents a built-in binding.
type BuiltinBinding struct {
	Builtin BuiltinValue
}

func (BuiltinBinding) binding() {}

// LocationBinding represents a location binding.
type LocationBinding struct {
	Location uint32
}

func (LocationBinding) binding() {}

// BuiltinValue represents built-in values.
type BuiltinValue uint8

const (
	BuiltinPosition BuiltinValue = iota
	BuiltinVertexIndex
	BuiltinInstanceIndex
	BuiltinFrontFacing
	BuiltinFragDepth
	BuiltinSampleIndex
	BuiltinSampleMask
	BuiltinLocalInvocationID
	BuiltinLocalInvocationIndex
	BuiltinGlobalInvocationID
	BuiltinWorkGroupID
	BuiltinNumWorkGroups
)

var builtinValueNames = [...]string{
	BuiltinPosition:             "position",
	BuiltinVertexIndex:          "vertex_index",
	BuiltinInstanceIndex:        "instance_index",
	BuiltinFrontFacing:          "front_facing",
	BuiltinFragDepth:            "frag_depth",
	BuiltinSampleIndex:          "sample_index",
	BuiltinSampleMask:           "sample_mask",
	BuiltinLocalInvocationID:    "local_invocation_id",
	BuiltinLocalInvocationIndex: "local_invocation_index",
	BuiltinGlobalInvocationID:   "global_invocation_id",
	BuiltinWorkGroupID:          "workgroup_id",
	BuiltinNumWorkGroups:        "num_workgroups",
}

func (b BuiltinValue) String() string {
	if int(b) < len(builtinValueNames) {
		return builtinValueNames[b]
	}
	return "unknown"
}

// HasBuiltin reports whether binding is the given builtin.
func HasBuiltin(binding Binding, builtin BuiltinValue) bool {
	bb, ok := binding.(BuiltinBinding)
	return ok && bb.Builtin == builtin
}

// Function represents a function definition.
type Function struct {
	Name          string
	Stage         ShaderStage
	WorkgroupSize *WorkgroupSize
	Params        []ValueID
	ReturnType    TypeHandle
	ReturnBinding Binding
	Block         BlockID
}

// IsEntryPoint reports whether the function is a pipeline entry point.
func (f *Function) IsEntryPoint() bool { return f.Stage != StageNone }

// Block is an ordered list of instructions, optionally with parameters.
type Block struct {
	Insts  []InstID
	Params []ValueID

	// Parent is the control instruction owning the block, zero for function
	// bodies and the root block.
	Parent InstID

	// Func is set on function body blocks only. Use Module.FuncOf to find
	// the function of a nested block.
	Func FuncID
}

// ValueKind distinguishes the producers of a value.
type ValueKind uint8

const (
	ValueConstant ValueKind = iota + 1
	ValueResult
	ValueFunctionParam
	ValueBlockParam
)

// Usage is one operand slot that refers to a value.
type Usage struct {
	Inst    InstID
	Operand int
}

// Value is an SSA definition with a type and a use list.
type Value struct {
	Kind ValueKind
	Type TypeHandle

	// Const is set for constants.
	Const ConstantValue

	// Inst is the producing instruction of a result.
	Inst InstID

	// Func owns a function parameter, Block owns a block parameter.
	Func  FuncID
	Block BlockID

	// Binding holds @builtin or @location attributes of function parameters.
	Binding Binding

	uses []Usage
}

// Value returns the value with the given handle.
func (m *Module) Value(id ValueID) *Value { return m.values[id] }

// Inst returns the instruction with the given handle.
func (m *Module) Inst(id InstID) *Instruction { return m.insts[id] }

// Block returns the block with the given handle.
func (m *Module) Block(id BlockID) *Block { return m.blocks[id] }

// Func returns the function with the given handle.
func (m *Module) Func(id FuncID) *Function { return m.funcs[id] }

// TypeOf returns the type of a value.
func (m *Module) TypeOf(id ValueID) TypeHandle { return m.values[id].Type }

// Functions returns the functions of the module in declaration order.
func (m *Module) Functions() []FuncID {
	out := make([]FuncID, len(m.order))
	copy(out, m.order)
	return out
}

// FunctionByName finds a function by name.
func (m *Module) FunctionByName(name string) (FuncID, bool) {
	for _, id := range m.order {
		if m.funcs[id].Name == name {
			return id, true
		}
	}
	return 0, false
}

// NameOf returns the name given to a value, or "".
func (m *Module) NameOf(id ValueID) string { return m.names[id] }

// SetName names a value. Names need not be unique; the disassembler
// disambiguates them.
func (m *Module) SetName(id ValueID, name string) {
	if name == "" {
		delete(m.names, id)
		return
	}
	m.names[id] = name
	m.Symbols.Register(name)
}

// NewBlock allocates a detached, empty block.
func (m *Module) NewBlock() BlockID {
	m.blocks = append(m.blocks, &Block{})
	return BlockID(len(m.blocks) - 1)
}

// NewFunction creates a function and appends it to the module.
func (m *Module) NewFunction(name string, ret TypeHandle) FuncID {
	id := FuncID(len(m.funcs))
	m.funcs = append(m.funcs, &Function{Name: name, ReturnType: ret})
	body := m.NewBlock()
	m.blocks[body].Func = id
	m.funcs[id].Block = body
	m.order = append(m.order, id)
	m.Symbols.Register(name)
	return id
}

// NewFunctionParam creates a parameter value. It is not attached to any
// function until passed to SetParams or AppendParam.
func (m *Module) NewFunctionParam(name string, ty TypeHandle) ValueID {
	id := m.newValue(&Value{Kind: ValueFunctionParam, Type: ty})
	m.SetName(id, name)
	return id
}

// NewBlockParam creates a block parameter value. It is not attached to any
// block until passed to SetBlockParams.
func (m *Module) NewBlockParam(name string, ty TypeHandle) ValueID {
	id := m.newValue(&Value{Kind: ValueBlockParam, Type: ty})
	m.SetName(id, name)
	return id
}

// SetParams replaces the parameter list of a function.
func (m *Module) SetParams(f FuncID, params ...ValueID) {
	for _, p := range params {
		m.values[p].Func = f
	}
	m.funcs[f].Params = append([]ValueID(nil), params...)
}

// AppendParam adds a parameter to the end of a function's parameter list.
func (m *Module) AppendParam(f FuncID, param ValueID) {
	m.values[param].Func = f
	m.funcs[f].Params = append(m.funcs[f].Params, param)
}

// SetBlockParams replaces the parameter list of a block.
func (m *Module) SetBlockParams(b BlockID, params ...ValueID) {
	for _, p := range params {
		m.values[p].Block = b
	}
	m.blocks[b].Params = append([]ValueID(nil), params...)
}

// FuncOf returns the function enclosing a block, or zero for the root block.
func (m *Module) FuncOf(b BlockID) FuncID {
	for {
		blk := m.blocks[b]
		if blk.Parent == 0 {
			return blk.Func
		}
		b = m.insts[blk.Parent].Block
		if b == 0 {
			return 0
		}
	}
}

// CallSites returns every live user call of f, in instruction creation
// order.
func (m *Module) CallSites(f FuncID) []InstID {
	var out []InstID
	for id := 1; id < len(m.insts); id++ {
		inst := m.insts[id]
		if inst.alive && inst.Kind == InstUserCall && inst.Callee == f {
			out = append(out, InstID(id))
		}
	}
	return out
}

// Instructions returns a snapshot of every live instruction in creation
// order. The snapshot is stable under mutation of the module.
func (m *Module) Instructions() []InstID {
	out := make([]InstID, 0, len(m.insts))
	for id := 1; id < len(m.insts); id++ {
		if m.insts[id].alive {
			out = append(out, InstID(id))
		}
	}
	return out
}

// Alive reports whether an instruction has not been destroyed.
func (m *Module) Alive(id InstID) bool { return m.insts[id].alive }

func (m *Module) newValue(v *Value) ValueID {
	m.values = append(m.values, v)
	return ValueID(len(m.values) - 1)
}
