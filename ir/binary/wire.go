package binary

import "github.com/gogpu/shaderir/ir"

// Wire form of a module. Types are written in handle order, so handles are
// stored as is. Values are referenced by their definition index, starting
// at one; constants are declared up front in Consts.

type wireModule struct {
	Schema    uint16
	Types     []wireType
	NumValues uint32
	Consts    []wireConstDecl
	Root      wireBlock
	Funcs     []wireFunc
}

const (
	typeVoid uint8 = iota
	typeScalar
	typeVector
	typeMatrix
	typeArray
	typeStruct
	typePointer
	typeAtomic
	typeSampler
	typeImage
)

type wireScalar struct {
	Kind  uint8
	Width uint8
}

type wireType struct {
	Kind       uint8
	Scalar     wireScalar   `msgpack:",omitempty"`
	Size       uint8        `msgpack:",omitempty"`
	Rows       uint8        `msgpack:",omitempty"`
	Base       uint32       `msgpack:",omitempty"`
	Count      *uint32      `msgpack:",omitempty"`
	Stride     uint32       `msgpack:",omitempty"`
	Name       string       `msgpack:",omitempty"`
	Members    []wireMember `msgpack:",omitempty"`
	Span       uint32       `msgpack:",omitempty"`
	Align      uint32       `msgpack:",omitempty"`
	Space      uint8        `msgpack:",omitempty"`
	Access     uint8        `msgpack:",omitempty"`
	Comparison bool         `msgpack:",omitempty"`
	Image      *wireImage   `msgpack:",omitempty"`
}

type wireMember struct {
	Name    string
	Type    uint32
	Binding *wireBinding `msgpack:",omitempty"`
	Offset  uint32
}

type wireImage struct {
	Dim           uint8
	Arrayed       bool
	Class         uint8
	Multisampled  bool
	SampledKind   uint8
	Format        uint8
	StorageAccess uint8
}

// wireBinding is a @builtin when Builtin is set, otherwise a @location.
type wireBinding struct {
	Builtin bool
	Value   uint32
}

const (
	constScalar uint8 = iota + 1
	constComposite
	constSplat
)

type wireConst struct {
	Kind       uint8
	Bits       uint64      `msgpack:",omitempty"`
	Scalar     uint8       `msgpack:",omitempty"`
	Count      uint32      `msgpack:",omitempty"`
	Components []wireConst `msgpack:",omitempty"`
}

type wireConstDecl struct {
	Index uint32
	Type  uint32
	Value wireConst
}

type wireParam struct {
	Index   uint32
	Type    uint32
	Name    string       `msgpack:",omitempty"`
	Binding *wireBinding `msgpack:",omitempty"`
}

type wireBlock struct {
	Params []wireParam `msgpack:",omitempty"`
	Insts  []wireInst  `msgpack:",omitempty"`
}

type wireSelector struct {
	Default bool
	Value   uint32 `msgpack:",omitempty"`
}

type wireCase struct {
	Selectors []wireSelector
	Block     wireBlock
}

type wireInst struct {
	Kind         uint8
	Operands     []uint32         `msgpack:",omitempty"`
	Results      []wireParam      `msgpack:",omitempty"`
	BinaryOp     uint8            `msgpack:",omitempty"`
	UnaryOp      uint8            `msgpack:",omitempty"`
	Builtin      uint8            `msgpack:",omitempty"`
	Callee       uint32           `msgpack:",omitempty"`
	BindingPoint *ir.BindingPoint `msgpack:",omitempty"`
	Indices      []uint32         `msgpack:",omitempty"`
	Blocks       []wireBlock      `msgpack:",omitempty"`
	Cases        []wireCase       `msgpack:",omitempty"`
	Control      uint32           `msgpack:",omitempty"`
}

type wireDim struct {
	Value    uint32
	Override string `msgpack:",omitempty"`
}

type wireFunc struct {
	Name          string
	Stage         uint8
	WorkgroupSize []wireDim `msgpack:",omitempty"`
	Params        []wireParam
	ReturnType    uint32
	ReturnBinding *wireBinding `msgpack:",omitempty"`
	Body          wireBlock
}
