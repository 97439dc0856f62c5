package ir

import (
	"fmt"
	"strconv"

	"fortio.org/safecast"
)

// TypeManager owns the type arena of a module and deduplicates
// structurally identical types. Structs are nominal and deduplicated by name.
type TypeManager struct {
	types   []Type
	typeMap map[string]TypeHandle
	structs []TypeHandle
	keyBuf  []byte // reusable buffer for building type keys
}

// NewTypeManager creates a type manager holding only the void type, at
// handle zero.
func NewTypeManager() *TypeManager {
	r := &TypeManager{
		types:   make([]Type, 0, 16),
		typeMap: make(map[string]TypeHandle, 16),
		keyBuf:  make([]byte, 0, 64),
	}
	r.GetOrCreate(VoidType{})
	return r
}

// GetOrCreate returns an existing handle for the type if it exists,
// or creates a new one if it's unique.
func (r *TypeManager) GetOrCreate(inner TypeInner) TypeHandle {
	key := r.normalizeType(inner)

	if handle, exists := r.typeMap[key]; exists {
		return handle
	}

	handle := TypeHandle(len(r.types))
	r.types = append(r.types, Type{
		Name:  r.formatType(inner),
		Inner: inner,
	})
	r.typeMap[key] = handle
	if _, ok := inner.(StructType); ok {
		r.structs = append(r.structs, handle)
	}

	return handle
}

// GetTypes returns all registered types.
func (r *TypeManager) GetTypes() []Type {
	return r.types
}

// Lookup finds a type by its handle.
func (r *TypeManager) Lookup(handle TypeHandle) (Type, bool) {
	if int(handle) >= len(r.types) {
		return Type{}, false
	}
	return r.types[handle], true
}

// Count returns the number of unique types registered.
func (r *TypeManager) Count() int {
	return len(r.types)
}

// Inner returns the inner type of a handle.
func (r *TypeManager) Inner(h TypeHandle) TypeInner { return r.types[h].Inner }

// Name returns the printed name of a type, such as "vec4<f32>".
func (r *TypeManager) Name(h TypeHandle) string { return r.types[h].Name }

// Structs returns the struct types in declaration order.
func (r *TypeManager) Structs() []TypeHandle { return r.structs }

// normalizeType creates a unique key for a type based on its structure.
// Two structurally identical types will produce the same key.
func (r *TypeManager) normalizeType(inner TypeInner) string {
	b := r.keyBuf[:0]

	switch t := inner.(type) {
	case VoidType:
		return "void"

	case ScalarType:
		b = append(b, "scalar:"...)
		b = strconv.AppendInt(b, int64(t.Kind), 10)
		b = append(b, ':')
		b = strconv.AppendUint(b, uint64(t.Width), 10)
		r.keyBuf = b
		return string(b)

	case VectorType:
		// Recursive call clobbers keyBuf, so build with string concat.
		scalarKey := r.normalizeType(t.Scalar)
		return "vec:" + strconv.FormatUint(uint64(t.Size), 10) + ":" + scalarKey

	case MatrixType:
		scalarKey := r.normalizeType(t.Scalar)
		return "mat:" + strconv.FormatUint(uint64(t.Columns), 10) + "x" + strconv.FormatUint(uint64(t.Rows), 10) + ":" + scalarKey

	case ArrayType:
		var sizeKey string
		if t.Size.Constant != nil {
			sizeKey = strconv.FormatUint(uint64(*t.Size.Constant), 10)
		} else {
			sizeKey = "runtime"
		}
		return "array:" + strconv.FormatInt(int64(t.Base), 10) + ":" + sizeKey + ":" + strconv.FormatUint(uint64(t.Stride), 10)

	case StructType:
		return "struct:" + t.Name

	case PointerType:
		return "ptr:" + strconv.FormatInt(int64(t.Base), 10) + ":" + strconv.FormatInt(int64(t.Space), 10) + ":" + strconv.FormatInt(int64(t.Access), 10)

	case SamplerType:
		if t.Comparison {
			return "sampler:true"
		}
		return "sampler:false"

	case ImageType:
		return fmt.Sprintf("image:%d:%v:%d:%v:%d:%d:%d", t.Dim, t.Arrayed, t.Class, t.Multisampled, t.SampledKind, t.Format, t.StorageAccess)

	case AtomicType:
		b = append(b, "atomic:"...)
		b = strconv.AppendInt(b, int64(t.Scalar.Kind), 10)
		b = append(b, ':')
		b = strconv.AppendUint(b, uint64(t.Scalar.Width), 10)
		r.keyBuf = b
		return string(b)

	default:
		return fmt.Sprintf("unknown:%T", inner)
	}
}

func (r *TypeManager) formatType(inner TypeInner) string {
	switch t := inner.(type) {
	case VoidType:
		return "void"
	case ScalarType:
		return t.String()
	case VectorType:
		return fmt.Sprintf("vec%d<%s>", t.Size, t.Scalar)
	case MatrixType:
		return fmt.Sprintf("mat%dx%d<%s>", t.Columns, t.Rows, t.Scalar)
	case ArrayType:
		if t.Size.Constant == nil {
			return "array<" + r.Name(t.Base) + ">"
		}
		return fmt.Sprintf("array<%s, %d>", r.Name(t.Base), *t.Size.Constant)
	case StructType:
		return t.Name
	case PointerType:
		return fmt.Sprintf("ptr<%s, %s, %s>", t.Space, r.Name(t.Base), t.Access)
	case AtomicType:
		return "atomic<" + t.Scalar.String() + ">"
	case SamplerType:
		if t.Comparison {
			return "sampler_comparison"
		}
		return "sampler"
	case ImageType:
		return formatImage(t)
	default:
		return fmt.Sprintf("unknown<%T>", inner)
	}
}

func formatImage(t ImageType) string {
	dim := ""
	switch t.Dim {
	case Dim1D:
		dim = "1d"
	case Dim2D:
		dim = "2d"
	case Dim3D:
		dim = "3d"
	case DimCube:
		dim = "cube"
	}
	if t.Arrayed {
		dim += "_array"
	}
	texel := ScalarType{Kind: t.SampledKind, Width: 4}.String()

	switch t.Class {
	case ImageClassExternal:
		return "texture_external"
	case ImageClassStorage:
		return fmt.Sprintf("texture_storage_%s<%s, %s>", dim, t.Format, t.StorageAccess)
	case ImageClassDepth:
		if t.Multisampled {
			return "texture_depth_multisampled_" + dim
		}
		return "texture_depth_" + dim
	default:
		if t.Multisampled {
			return fmt.Sprintf("texture_multisampled_%s<%s>", dim, texel)
		}
		return fmt.Sprintf("texture_%s<%s>", dim, texel)
	}
}

// Void returns the void type.
func (r *TypeManager) Void() TypeHandle { return 0 }

// Bool returns the bool type.
func (r *TypeManager) Bool() TypeHandle { return r.GetOrCreate(ScalarBoolType) }

// I32 returns the i32 type.
func (r *TypeManager) I32() TypeHandle { return r.GetOrCreate(ScalarI32) }

// U32 returns the u32 type.
func (r *TypeManager) U32() TypeHandle { return r.GetOrCreate(ScalarU32) }

// F32 returns the f32 type.
func (r *TypeManager) F32() TypeHandle { return r.GetOrCreate(ScalarF32) }

// F16 returns the f16 type.
func (r *TypeManager) F16() TypeHandle { return r.GetOrCreate(ScalarF16) }

// Vec returns the vector of n elements of the scalar type elem.
func (r *TypeManager) Vec(elem TypeHandle, n int) TypeHandle {
	s, ok := r.Inner(elem).(ScalarType)
	if !ok {
		panic(fmt.Sprintf("ICE: vector element %s is not a scalar", r.Name(elem)))
	}
	return r.GetOrCreate(VectorType{Size: VectorSize(n), Scalar: s})
}

// Mat returns the matrix type with the given column and row counts.
func (r *TypeManager) Mat(elem TypeHandle, columns, rows int) TypeHandle {
	s, ok := r.Inner(elem).(ScalarType)
	if !ok {
		panic(fmt.Sprintf("ICE: matrix element %s is not a scalar", r.Name(elem)))
	}
	return r.GetOrCreate(MatrixType{Columns: VectorSize(columns), Rows: VectorSize(rows), Scalar: s})
}

// Array returns the fixed-size array type array<elem, count>.
func (r *TypeManager) Array(elem TypeHandle, count uint32) TypeHandle {
	n := count
	return r.GetOrCreate(ArrayType{Base: elem, Size: ArraySize{Constant: &n}, Stride: r.stride(elem)})
}

// RuntimeArray returns the runtime-sized array type array<elem>.
func (r *TypeManager) RuntimeArray(elem TypeHandle) TypeHandle {
	return r.GetOrCreate(ArrayType{Base: elem, Stride: r.stride(elem)})
}

// Ptr returns the pointer type ptr<space, store, access>.
func (r *TypeManager) Ptr(space AddressSpace, store TypeHandle, access Access) TypeHandle {
	return r.GetOrCreate(PointerType{Base: store, Space: space, Access: access})
}

// Atomic returns atomic<elem>.
func (r *TypeManager) Atomic(elem TypeHandle) TypeHandle {
	s, ok := r.Inner(elem).(ScalarType)
	if !ok {
		panic(fmt.Sprintf("ICE: atomic element %s is not a scalar", r.Name(elem)))
	}
	return r.GetOrCreate(AtomicType{Scalar: s})
}

// Sampler returns the sampler type.
func (r *TypeManager) Sampler() TypeHandle { return r.GetOrCreate(SamplerType{}) }

// SampledTexture returns a sampled texture type such as texture_2d<f32>.
func (r *TypeManager) SampledTexture(dim ImageDimension, arrayed bool, kind ScalarKind) TypeHandle {
	return r.GetOrCreate(ImageType{Dim: dim, Arrayed: arrayed, Class: ImageClassSampled, SampledKind: kind})
}

// MultisampledTexture returns texture_multisampled_2d<kind>.
func (r *TypeManager) MultisampledTexture(kind ScalarKind) TypeHandle {
	return r.GetOrCreate(ImageType{Dim: Dim2D, Class: ImageClassSampled, Multisampled: true, SampledKind: kind})
}

// DepthTexture returns a depth texture type.
func (r *TypeManager) DepthTexture(dim ImageDimension, arrayed bool) TypeHandle {
	return r.GetOrCreate(ImageType{Dim: dim, Arrayed: arrayed, Class: ImageClassDepth, SampledKind: ScalarFloat})
}

// DepthMultisampledTexture returns texture_depth_multisampled_2d.
func (r *TypeManager) DepthMultisampledTexture() TypeHandle {
	return r.GetOrCreate(ImageType{Dim: Dim2D, Class: ImageClassDepth, Multisampled: true, SampledKind: ScalarFloat})
}

// StorageTexture returns a storage texture type.
func (r *TypeManager) StorageTexture(dim ImageDimension, arrayed bool, format TexelFormat, access Access) TypeHandle {
	return r.GetOrCreate(ImageType{Dim: dim, Arrayed: arrayed, Class: ImageClassStorage, Format: format, StorageAccess: access})
}

// ExternalTexture returns texture_external.
func (r *TypeManager) ExternalTexture() TypeHandle {
	return r.GetOrCreate(ImageType{Dim: Dim2D, Class: ImageClassExternal, SampledKind: ScalarFloat})
}

// Struct declares a struct with host-shareable layout computed from the
// member types. Member offsets supplied by the caller are ignored.
func (r *TypeManager) Struct(name string, members []StructMember) TypeHandle {
	out := make([]StructMember, len(members))
	offset, align := uint32(0), uint32(1)
	for i, m := range members {
		a := r.Align(m.Type)
		offset = roundUp(a, offset)
		out[i] = m
		out[i].Offset = offset
		offset += r.Size(m.Type)
		align = max(align, a)
	}
	return r.GetOrCreate(StructType{
		Name:    name,
		Members: out,
		Span:    roundUp(align, offset),
		Align:   align,
	})
}

// Size returns the host-shareable size of a type in bytes.
func (r *TypeManager) Size(h TypeHandle) uint32 {
	switch t := r.Inner(h).(type) {
	case ScalarType:
		return scalarSize(t)
	case AtomicType:
		return scalarSize(t.Scalar)
	case VectorType:
		return uint32(t.Size) * scalarSize(t.Scalar)
	case MatrixType:
		col := VectorType{Size: t.Rows, Scalar: t.Scalar}
		return uint32(t.Columns) * roundUp(vectorAlign(col), uint32(t.Rows)*scalarSize(t.Scalar))
	case ArrayType:
		if t.Size.Constant == nil {
			return t.Stride
		}
		return *t.Size.Constant * t.Stride
	case StructType:
		return t.Span
	default:
		return 0
	}
}

// Align returns the host-shareable alignment of a type in bytes.
func (r *TypeManager) Align(h TypeHandle) uint32 {
	switch t := r.Inner(h).(type) {
	case ScalarType:
		return scalarSize(t)
	case AtomicType:
		return scalarSize(t.Scalar)
	case VectorType:
		return vectorAlign(t)
	case MatrixType:
		return vectorAlign(VectorType{Size: t.Rows, Scalar: t.Scalar})
	case ArrayType:
		return r.Align(t.Base)
	case StructType:
		return t.Align
	default:
		return 1
	}
}

func (r *TypeManager) stride(elem TypeHandle) uint32 {
	return roundUp(r.Align(elem), r.Size(elem))
}

func scalarSize(s ScalarType) uint32 {
	if s.Kind == ScalarFloat && s.Width == 2 {
		return 2
	}
	return 4
}

func vectorAlign(v VectorType) uint32 {
	if v.Size == Vec2 {
		return 2 * scalarSize(v.Scalar)
	}
	return 4 * scalarSize(v.Scalar)
}

func roundUp(align, n uint32) uint32 {
	if align == 0 {
		return n
	}
	return (n + align - 1) / align * align
}

// Scalar returns the handle of a scalar type.
func (r *TypeManager) Scalar(s ScalarType) TypeHandle { return r.GetOrCreate(s) }

// ScalarOf returns the deepest scalar of a scalar, vector, matrix or atomic
// type.
func (r *TypeManager) ScalarOf(h TypeHandle) (ScalarType, bool) {
	switch t := r.Inner(h).(type) {
	case ScalarType:
		return t, true
	case VectorType:
		return t.Scalar, true
	case MatrixType:
		return t.Scalar, true
	case AtomicType:
		return t.Scalar, true
	default:
		return ScalarType{}, false
	}
}

// DeepestElement returns the scalar handle of a scalar or composite numeric
// type, walking through arrays.
func (r *TypeManager) DeepestElement(h TypeHandle) TypeHandle {
	if a, ok := r.Inner(h).(ArrayType); ok {
		return r.DeepestElement(a.Base)
	}
	if s, ok := r.ScalarOf(h); ok {
		return r.Scalar(s)
	}
	return h
}

// Width returns the component count of a vector, or 1 for anything else.
func (r *TypeManager) Width(h TypeHandle) int {
	if v, ok := r.Inner(h).(VectorType); ok {
		return int(v.Size)
	}
	return 1
}

// MatchWidth returns elem if like is a scalar, or a vector of elem with the
// width of like.
func (r *TypeManager) MatchWidth(elem, like TypeHandle) TypeHandle {
	if v, ok := r.Inner(like).(VectorType); ok {
		return r.Vec(elem, int(v.Size))
	}
	return elem
}

// Element returns the type produced by indexing into h: the scalar of a
// vector, the column of a matrix, the base of an array. It returns false for
// types that cannot be indexed by a dynamic index.
func (r *TypeManager) Element(h TypeHandle) (TypeHandle, bool) {
	switch t := r.Inner(h).(type) {
	case VectorType:
		return r.Scalar(t.Scalar), true
	case MatrixType:
		return r.GetOrCreate(VectorType{Size: t.Rows, Scalar: t.Scalar}), true
	case ArrayType:
		return t.Base, true
	default:
		return 0, false
	}
}

// ElementCount returns the vector width, matrix column count or array
// length of h. Runtime-sized arrays report zero.
func (r *TypeManager) ElementCount(h TypeHandle) uint32 {
	switch t := r.Inner(h).(type) {
	case VectorType:
		return uint32(t.Size)
	case MatrixType:
		return uint32(t.Columns)
	case ArrayType:
		if t.Size.Constant != nil {
			return *t.Size.Constant
		}
	case StructType:
		n, err := safecast.Conv[uint32](len(t.Members))
		if err != nil {
			panic("ICE: " + err.Error())
		}
		return n
	}
	return 0
}

// MemberType returns the type of member i of a struct, or the element type
// for other indexable types.
func (r *TypeManager) MemberType(h TypeHandle, i uint32) TypeHandle {
	if s, ok := r.Inner(h).(StructType); ok {
		return s.Members[i].Type
	}
	elem, ok := r.Element(h)
	if !ok {
		panic(fmt.Sprintf("ICE: type %s cannot be indexed", r.Name(h)))
	}
	return elem
}

// IsRuntimeArray reports whether h is a runtime-sized array.
func (r *TypeManager) IsRuntimeArray(h TypeHandle) bool {
	a, ok := r.Inner(h).(ArrayType)
	return ok && a.Size.Constant == nil
}

// Pointer returns the pointer payload of h.
func (r *TypeManager) Pointer(h TypeHandle) (PointerType, bool) {
	p, ok := r.Inner(h).(PointerType)
	return p, ok
}

// UnwrapPtr returns the store type of a pointer, or h itself.
func (r *TypeManager) UnwrapPtr(h TypeHandle) TypeHandle {
	if p, ok := r.Inner(h).(PointerType); ok {
		return p.Base
	}
	return h
}

// Image returns the image payload of h.
func (r *TypeManager) Image(h TypeHandle) (ImageType, bool) {
	t, ok := r.Inner(h).(ImageType)
	return t, ok
}

// IsExternalTexture reports whether h is texture_external.
func (r *TypeManager) IsExternalTexture(h TypeHandle) bool {
	t, ok := r.Image(h)
	return ok && t.Class == ImageClassExternal
}

func (r *TypeManager) scalarOrVector(h TypeHandle) (ScalarType, bool) {
	switch t := r.Inner(h).(type) {
	case ScalarType:
		return t, true
	case VectorType:
		return t.Scalar, true
	default:
		return ScalarType{}, false
	}
}

// IsFloat reports whether h is a float scalar or vector.
func (r *TypeManager) IsFloat(h TypeHandle) bool {
	s, ok := r.scalarOrVector(h)
	return ok && s.Kind == ScalarFloat
}

// IsSignedInt reports whether h is an i32 scalar or vector.
func (r *TypeManager) IsSignedInt(h TypeHandle) bool {
	s, ok := r.scalarOrVector(h)
	return ok && s.Kind == ScalarSint
}

// IsUnsignedInt reports whether h is a u32 scalar or vector.
func (r *TypeManager) IsUnsignedInt(h TypeHandle) bool {
	s, ok := r.scalarOrVector(h)
	return ok && s.Kind == ScalarUint
}

// IsInteger reports whether h is an integer scalar or vector.
func (r *TypeManager) IsInteger(h TypeHandle) bool {
	return r.IsSignedInt(h) || r.IsUnsignedInt(h)
}

// IsBool reports whether h is a bool scalar or vector.
func (r *TypeManager) IsBool(h TypeHandle) bool {
	s, ok := r.scalarOrVector(h)
	return ok && s.Kind == ScalarBool
}
