package ir

// Type represents a type in the IR.
type Type struct {
	Name  string
	Inner TypeInner
}

// TypeInner represents the inner type kind.
type TypeInner interface {
	typeInner()
}

// VoidType is the result type of instructions and functions that produce
// no value.
type VoidType struct{}

func (VoidType) typeInner() {}

// ScalarType represents scalar types.
type ScalarType struct {
	Kind  ScalarKind
	Width uint8 // in bytes
}

func (ScalarType) typeInner() {}

// ScalarKind represents scalar type kinds.
type ScalarKind uint8

const (
	ScalarSint  ScalarKind = iota // Signed integer
	ScalarUint                    // Unsigned integer
	ScalarFloat                   // Floating point
	ScalarBool                    // Boolean
)

// Common scalars.
var (
	ScalarBoolType = ScalarType{Kind: ScalarBool, Width: 1}
	ScalarI32      = ScalarType{Kind: ScalarSint, Width: 4}
	ScalarU32      = ScalarType{Kind: ScalarUint, Width: 4}
	ScalarF32      = ScalarType{Kind: ScalarFloat, Width: 4}
	ScalarF16      = ScalarType{Kind: ScalarFloat, Width: 2}
)

func (s ScalarType) String() string {
	switch s.Kind {
	case ScalarBool:
		return "bool"
	case ScalarSint:
		return "i32"
	case ScalarUint:
		return "u32"
	case ScalarFloat:
		if s.Width == 2 {
			return "f16"
		}
		return "f32"
	default:
		return "unknown"
	}
}

// VectorType represents vector types.
type VectorType struct {
	Size   VectorSize
	Scalar ScalarType
}

func (VectorType) typeInner() {}

// VectorSize represents vector sizes.
type VectorSize uint8

const (
	Vec2 VectorSize = 2
	Vec3 VectorSize = 3
	Vec4 VectorSize = 4
)

// MatrixType represents matrix types. Columns are vectors of Rows elements.
type MatrixType struct {
	Columns VectorSize
	Rows    VectorSize
	Scalar  ScalarType
}

func (MatrixType) typeInner() {}

// ArrayType represents array types.
type ArrayType struct {
	Base   TypeHandle
	Size   ArraySize
	Stride uint32
}

func (ArrayType) typeInner() {}

// ArraySize represents array size.
type ArraySize struct {
	Constant *uint32 // nil for runtime-sized arrays
}

// StructType represents struct types. Structs are nominal.
type StructType struct {
	Name    string
	Members []StructMember
	Span    uint32 // Size in bytes
	Align   uint32
}

func (StructType) typeInner() {}

// StructMember represents a struct member.
type StructMember struct {
	Name    string
	Type    TypeHandle
	Binding Binding // @builtin(position), @location(0), etc.
	Offset  uint32
}

// PointerType represents pointer types.
type PointerType struct {
	Base   TypeHandle
	Space  AddressSpace
	Access Access
}

func (PointerType) typeInner() {}

// AtomicType represents atomic types for thread-safe operations.
type AtomicType struct {
	Scalar ScalarType
}

func (AtomicType) typeInner() {}

// AddressSpace represents memory address spaces.
type AddressSpace uint8

const (
	SpaceFunction AddressSpace = iota
	SpacePrivate
	SpaceWorkGroup
	SpaceUniform
	SpaceStorage
	SpacePushConstant
	SpaceHandle
	SpaceIn
	SpaceOut
)

func (s AddressSpace) String() string {
	switch s {
	case SpaceFunction:
		return "function"
	case SpacePrivate:
		return "private"
	case SpaceWorkGroup:
		return "workgroup"
	case SpaceUniform:
		return "uniform"
	case SpaceStorage:
		return "storage"
	case SpacePushConstant:
		return "push_constant"
	case SpaceHandle:
		return "handle"
	case SpaceIn:
		return "__in"
	case SpaceOut:
		return "__out"
	default:
		return "undefined"
	}
}

// Access is the access mode of a pointer or storage texture.
type Access uint8

const (
	AccessReadWrite Access = iota
	AccessRead
	AccessWrite
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	default:
		return "read_write"
	}
}

// SamplerType represents sampler types.
type SamplerType struct {
	Comparison bool
}

func (SamplerType) typeInner() {}

// ImageType represents image/texture types.
type ImageType struct {
	Dim          ImageDimension
	Arrayed      bool
	Class        ImageClass
	Multisampled bool

	// SampledKind is the texel scalar kind of sampled textures.
	SampledKind ScalarKind

	// Format and StorageAccess describe storage textures.
	Format        TexelFormat
	StorageAccess Access
}

func (ImageType) typeInner() {}

// ImageDimension represents image dimensions.
type ImageDimension uint8

const (
	Dim1D ImageDimension = iota
	Dim2D
	Dim3D
	DimCube
)

// ImageClass represents image classification.
type ImageClass uint8

const (
	ImageClassSampled ImageClass = iota
	ImageClassDepth
	ImageClassStorage
	ImageClassExternal
)

// TexelFormat is the texel format of a storage texture.
type TexelFormat uint8

const (
	FormatRGBA8Unorm TexelFormat = iota
	FormatRGBA8Snorm
	FormatRGBA8Uint
	FormatRGBA8Sint
	FormatRGBA16Float
	FormatRGBA32Float
	FormatRGBA32Uint
	FormatRGBA32Sint
	FormatR32Float
	FormatR32Uint
	FormatR32Sint
	FormatBGRA8Unorm
)

var texelFormatNames = [...]string{
	FormatRGBA8Unorm:  "rgba8unorm",
	FormatRGBA8Snorm:  "rgba8snorm",
	FormatRGBA8Uint:   "rgba8uint",
	FormatRGBA8Sint:   "rgba8sint",
	FormatRGBA16Float: "rgba16float",
	FormatRGBA32Float: "rgba32float",
	FormatRGBA32Uint:  "rgba32uint",
	FormatRGBA32Sint:  "rgba32sint",
	FormatR32Float:    "r32float",
	FormatR32Uint:     "r32uint",
	FormatR32Sint:     "r32sint",
	FormatBGRA8Unorm:  "bgra8unorm",
}

func (f TexelFormat) String() string {
	if int(f) < len(texelFormatNames) {
		return texelFormatNames[f]
	}
	return "unknown"
}

// CoordWidth returns the number of coordinate components used to address
// a texel of the image, excluding the array layer.
func (t ImageType) CoordWidth() int {
	switch t.Dim {
	case Dim1D:
		return 1
	case Dim3D, DimCube:
		return 3
	default:
		return 2
	}
}
