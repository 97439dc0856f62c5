package ir

import "fmt"

// BuiltinFn identifies a core builtin function called by InstBuiltinCall.
type BuiltinFn uint8

const (
	BuiltinNone BuiltinFn = iota
	BuiltinAbs
	BuiltinSign
	BuiltinMin
	BuiltinMax
	BuiltinClamp
	BuiltinSelect
	BuiltinPow
	BuiltinSaturate
	BuiltinCountLeadingZeros
	BuiltinCountTrailingZeros
	BuiltinFirstLeadingBit
	BuiltinFirstTrailingBit
	BuiltinExtractBits
	BuiltinInsertBits
	BuiltinArrayLength
	BuiltinTextureDimensions
	BuiltinTextureNumLayers
	BuiltinTextureNumLevels
	BuiltinTextureNumSamples
	BuiltinTextureLoad
	BuiltinTextureStore
	BuiltinTextureSample
	BuiltinTextureSampleLevel
	BuiltinTextureSampleBaseClampToEdge
	BuiltinAtomicLoad
	BuiltinAtomicStore
	BuiltinAtomicAdd
	BuiltinWorkgroupBarrier
	BuiltinStorageBarrier
)

var builtinFnNames = [...]string{
	BuiltinNone:                         "none",
	BuiltinAbs:                          "abs",
	BuiltinSign:                         "sign",
	BuiltinMin:                          "min",
	BuiltinMax:                          "max",
	BuiltinClamp:                        "clamp",
	BuiltinSelect:                       "select",
	BuiltinPow:                          "pow",
	BuiltinSaturate:                     "saturate",
	BuiltinCountLeadingZeros:            "countLeadingZeros",
	BuiltinCountTrailingZeros:           "countTrailingZeros",
	BuiltinFirstLeadingBit:              "firstLeadingBit",
	BuiltinFirstTrailingBit:             "firstTrailingBit",
	BuiltinExtractBits:                  "extractBits",
	BuiltinInsertBits:                   "insertBits",
	BuiltinArrayLength:                  "arrayLength",
	BuiltinTextureDimensions:            "textureDimensions",
	BuiltinTextureNumLayers:             "textureNumLayers",
	BuiltinTextureNumLevels:             "textureNumLevels",
	BuiltinTextureNumSamples:            "textureNumSamples",
	BuiltinTextureLoad:                  "textureLoad",
	BuiltinTextureStore:                 "textureStore",
	BuiltinTextureSample:                "textureSample",
	BuiltinTextureSampleLevel:           "textureSampleLevel",
	BuiltinTextureSampleBaseClampToEdge: "textureSampleBaseClampToEdge",
	BuiltinAtomicLoad:                   "atomicLoad",
	BuiltinAtomicStore:                  "atomicStore",
	BuiltinAtomicAdd:                    "atomicAdd",
	BuiltinWorkgroupBarrier:             "workgroupBarrier",
	BuiltinStorageBarrier:               "storageBarrier",
}

func (f BuiltinFn) String() string {
	if int(f) < len(builtinFnNames) {
		return builtinFnNames[f]
	}
	return fmt.Sprintf("BuiltinFn(%d)", f)
}

// ParseBuiltinFn looks a builtin up by its WGSL name.
func ParseBuiltinFn(name string) (BuiltinFn, bool) {
	for i, n := range builtinFnNames {
		if n == name && i != int(BuiltinNone) {
			return BuiltinFn(i), true
		}
	}
	return BuiltinNone, false
}

// IsTexture reports whether the builtin takes a texture as its first
// argument.
func (f BuiltinFn) IsTexture() bool {
	return f >= BuiltinTextureDimensions && f <= BuiltinTextureSampleBaseClampToEdge
}

// IsAtomic reports whether the builtin operates on an atomic pointer.
func (f BuiltinFn) IsAtomic() bool {
	return f >= BuiltinAtomicLoad && f <= BuiltinAtomicAdd
}
