package raise

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"

	"github.com/gogpu/shaderir/ir"
	"github.com/gogpu/shaderir/transform"
)

// Config selects the transforms Run applies and configures each of them.
// A nil transform config disables that transform.
type Config struct {
	BindingRemapper    *transform.BindingRemapperOptions
	BuiltinPolyfill    *transform.BuiltinPolyfillConfig
	ConversionPolyfill *transform.ConversionPolyfillConfig
	Robustness         *transform.RobustnessConfig
	ExternalTexture    *transform.ExternalTextureOptions

	// ZeroInitWorkgroupMemory enables zero initialization of workgroup
	// variables in compute entry points.
	ZeroInitWorkgroupMemory bool
}

// DefaultConfig returns the configuration of a backend that needs every
// polyfill and full robustness. Binding changes are left to the caller.
func DefaultConfig() Config {
	return Config{
		BuiltinPolyfill: &transform.BuiltinPolyfillConfig{
			ClampInt:                          true,
			CountLeadingZeros:                 true,
			CountTrailingZeros:                true,
			ExtractBits:                       transform.PolyfillClampOrRangeCheck,
			FirstLeadingBit:                   true,
			FirstTrailingBit:                  true,
			InsertBits:                        transform.PolyfillClampOrRangeCheck,
			Saturate:                          true,
			TextureSampleBaseClampToEdge2DF32: true,
		},
		ConversionPolyfill: &transform.ConversionPolyfillConfig{FtoI: true},
		Robustness: &transform.RobustnessConfig{
			ClampFunction:     true,
			ClampPrivate:      true,
			ClampPushConstant: true,
			ClampStorage:      true,
			ClampUniform:      true,
			ClampWorkgroup:    true,
			ClampValue:        true,
			ClampTexture:      true,
		},
		ZeroInitWorkgroupMemory: true,
	}
}

// fileConfig is the TOML layout of a Config. Binding points are written
// as "group:binding" strings.
type fileConfig struct {
	ZeroInitWorkgroupMemory bool `toml:"zero_init_workgroup_memory"`

	BindingRemapper *struct {
		BindingPoints map[string]string `toml:"binding_points"`
	} `toml:"binding_remapper"`

	BuiltinPolyfill *struct {
		ClampInt                          bool          `toml:"clamp_int"`
		CountLeadingZeros                 bool          `toml:"count_leading_zeros"`
		CountTrailingZeros                bool          `toml:"count_trailing_zeros"`
		ExtractBits                       polyfillLevel `toml:"extract_bits"`
		FirstLeadingBit                   bool          `toml:"first_leading_bit"`
		FirstTrailingBit                  bool          `toml:"first_trailing_bit"`
		InsertBits                        polyfillLevel `toml:"insert_bits"`
		Saturate                          bool          `toml:"saturate"`
		TextureSampleBaseClampToEdge2DF32 bool          `toml:"texture_sample_base_clamp_to_edge_2d_f32"`
	} `toml:"builtin_polyfill"`

	ConversionPolyfill *struct {
		FtoI bool `toml:"ftoi"`
	} `toml:"conversion_polyfill"`

	Robustness *struct {
		ClampFunction                         bool `toml:"clamp_function"`
		ClampPrivate                          bool `toml:"clamp_private"`
		ClampPushConstant                     bool `toml:"clamp_push_constant"`
		ClampStorage                          bool `toml:"clamp_storage"`
		ClampUniform                          bool `toml:"clamp_uniform"`
		ClampWorkgroup                        bool `toml:"clamp_workgroup"`
		ClampValue                            bool `toml:"clamp_value"`
		ClampTexture                          bool `toml:"clamp_texture"`
		DisableRuntimeSizedArrayIndexClamping bool `toml:"disable_runtime_sized_array_index_clamping"`
	} `toml:"robustness"`

	ExternalTexture *struct {
		Bindings map[string]struct {
			Plane1 string `toml:"plane1"`
			Params string `toml:"params"`
		} `toml:"bindings"`
	} `toml:"external_texture"`
}

// polyfillLevel decodes a BuiltinPolyfillLevel from "none", "clamp" or
// "full".
type polyfillLevel transform.BuiltinPolyfillLevel

func (l *polyfillLevel) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none", "":
		*l = polyfillLevel(transform.PolyfillNone)
	case "clamp":
		*l = polyfillLevel(transform.PolyfillClampOrRangeCheck)
	case "full":
		*l = polyfillLevel(transform.PolyfillFull)
	default:
		return fmt.Errorf("unknown polyfill level %q", text)
	}
	return nil
}

// LoadConfig reads a Config from the TOML file at path. Keys that do not
// belong to any setting are an error.
func LoadConfig(path string) (Config, error) {
	var fc fileConfig
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg, err := fc.config()
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (fc *fileConfig) config() (Config, error) {
	cfg := Config{ZeroInitWorkgroupMemory: fc.ZeroInitWorkgroupMemory}
	var errs []error

	if br := fc.BindingRemapper; br != nil {
		opts := &transform.BindingRemapperOptions{BindingPoints: make(map[ir.BindingPoint]ir.BindingPoint)}
		for from, to := range br.BindingPoints {
			src, err := ParseBindingPoint(from)
			errs = append(errs, err)
			dst, err := ParseBindingPoint(to)
			errs = append(errs, err)
			opts.BindingPoints[src] = dst
		}
		cfg.BindingRemapper = opts
	}

	if bp := fc.BuiltinPolyfill; bp != nil {
		cfg.BuiltinPolyfill = &transform.BuiltinPolyfillConfig{
			ClampInt:                          bp.ClampInt,
			CountLeadingZeros:                 bp.CountLeadingZeros,
			CountTrailingZeros:                bp.CountTrailingZeros,
			ExtractBits:                       transform.BuiltinPolyfillLevel(bp.ExtractBits),
			FirstLeadingBit:                   bp.FirstLeadingBit,
			FirstTrailingBit:                  bp.FirstTrailingBit,
			InsertBits:                        transform.BuiltinPolyfillLevel(bp.InsertBits),
			Saturate:                          bp.Saturate,
			TextureSampleBaseClampToEdge2DF32: bp.TextureSampleBaseClampToEdge2DF32,
		}
	}

	if cp := fc.ConversionPolyfill; cp != nil {
		cfg.ConversionPolyfill = &transform.ConversionPolyfillConfig{FtoI: cp.FtoI}
	}

	if r := fc.Robustness; r != nil {
		cfg.Robustness = &transform.RobustnessConfig{
			ClampFunction:                         r.ClampFunction,
			ClampPrivate:                          r.ClampPrivate,
			ClampPushConstant:                     r.ClampPushConstant,
			ClampStorage:                          r.ClampStorage,
			ClampUniform:                          r.ClampUniform,
			ClampWorkgroup:                        r.ClampWorkgroup,
			ClampValue:                            r.ClampValue,
			ClampTexture:                          r.ClampTexture,
			DisableRuntimeSizedArrayIndexClamping: r.DisableRuntimeSizedArrayIndexClamping,
		}
	}

	if et := fc.ExternalTexture; et != nil {
		opts := &transform.ExternalTextureOptions{BindingsMap: make(map[ir.BindingPoint]transform.ExternalTextureBindings)}
		for tex, b := range et.Bindings {
			plane0, err := ParseBindingPoint(tex)
			errs = append(errs, err)
			plane1, err := ParseBindingPoint(b.Plane1)
			errs = append(errs, err)
			params, err := ParseBindingPoint(b.Params)
			errs = append(errs, err)
			opts.BindingsMap[plane0] = transform.ExternalTextureBindings{Plane1: plane1, Params: params}
		}
		cfg.ExternalTexture = opts
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseBindingPoint parses a binding point written as "group:binding".
func ParseBindingPoint(s string) (ir.BindingPoint, error) {
	group, binding, ok := strings.Cut(s, ":")
	if !ok {
		return ir.BindingPoint{}, fmt.Errorf("binding point %q: want group:binding", s)
	}
	g, err := parseIndex(group)
	if err != nil {
		return ir.BindingPoint{}, fmt.Errorf("binding point %q: group: %w", s, err)
	}
	b, err := parseIndex(binding)
	if err != nil {
		return ir.BindingPoint{}, fmt.Errorf("binding point %q: binding: %w", s, err)
	}
	return ir.BindingPoint{Group: g, Binding: b}, nil
}

func parseIndex(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return safecast.Conv[uint32](n)
}
