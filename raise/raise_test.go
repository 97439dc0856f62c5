package raise_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/gogpu/shaderir/ir"
	"github.com/gogpu/shaderir/ir/eval"
	"github.com/gogpu/shaderir/raise"
	"github.com/gogpu/shaderir/transform"
)

// counts builds a compute entry point in which each invocation stores
// countLeadingZeros of its index into a workgroup array.
func counts(override bool) (*ir.Module, ir.FuncID, ir.ValueID) {
	mod := ir.NewModule()
	b := ir.NewBuilder(mod)
	ty := mod.Types
	u32 := ty.U32()
	var arr ir.ValueID
	b.Append(mod.Root, func() {
		arr = b.Var("arr", ir.SpaceWorkGroup, ty.Array(u32, 4), ir.AccessReadWrite)
	})
	idx := b.FunctionParam("idx", u32)
	mod.Value(idx).Binding = ir.BuiltinBinding{Builtin: ir.BuiltinLocalInvocationIndex}
	main := b.ComputeEntryPoint("main", 4, 1, 1)
	mod.SetParams(main, idx)
	b.Append(mod.Func(main).Block, func() {
		ptr := b.Access(ty.Ptr(ir.SpaceWorkGroup, u32, ir.AccessReadWrite), arr, idx)
		b.Store(ptr, b.Call(u32, ir.BuiltinCountLeadingZeros, idx))
		b.Return()
	})
	if override {
		mod.Func(main).WorkgroupSize[0] = ir.WorkgroupDim{Override: "n"}
	}
	return mod, main, arr
}

func TestSteps(t *testing.T) {
	cfg := raise.DefaultConfig()
	cfg.BindingRemapper = &transform.BindingRemapperOptions{}
	cfg.ExternalTexture = &transform.ExternalTextureOptions{}

	var got []string
	for _, s := range raise.Steps(cfg) {
		got = append(got, s.Name)
	}
	want := []string{
		"BindingRemapper",
		"BuiltinPolyfill",
		"ConversionPolyfill",
		"Robustness",
		"MultiplanarExternalTexture",
		"ZeroInitWorkgroupMemory",
	}
	if !slices.Equal(got, want) {
		t.Errorf("Steps() = %v, want %v", got, want)
	}

	if steps := raise.Steps(raise.Config{}); len(steps) != 0 {
		t.Errorf("Steps(Config{}) has %d steps, want 0", len(steps))
	}
}

func TestRun(t *testing.T) {
	mod, main, arr := counts(false)
	if err := raise.Run(context.Background(), mod, raise.DefaultConfig()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := ir.ValidateErr(mod); err != nil {
		t.Fatalf("raised module is invalid: %v\n%s", err, ir.Disassemble(mod))
	}
	dis := ir.Disassemble(mod)
	if strings.Contains(dis, " countLeadingZeros ") {
		t.Errorf("countLeadingZeros survived the polyfill:\n%s", dis)
	}
	if !strings.Contains(dis, " workgroupBarrier") {
		t.Errorf("workgroup memory is not zero-initialized:\n%s", dis)
	}

	wg, err := eval.RunWorkgroup(context.Background(), mod, main, eval.Options{})
	if err != nil {
		t.Fatalf("RunWorkgroup() error = %v", err)
	}
	want := []uint32{32, 31, 30, 30}
	for i, e := range wg.Memory[arr].Elems {
		if e.U32() != want[i] {
			t.Errorf("arr[%d] = %d, want %d", i, e.U32(), want[i])
		}
	}
}

func TestRun_Errors(t *testing.T) {
	t.Run("failing transform", func(t *testing.T) {
		mod, _, _ := counts(false)
		cfg := raise.Config{BindingRemapper: &transform.BindingRemapperOptions{
			AccessControls: map[ir.BindingPoint]ir.Access{{}: ir.AccessRead},
		}}
		err := raise.Run(context.Background(), mod, cfg)
		if err == nil {
			t.Fatal("Run() error = nil")
		}
		if !strings.Contains(err.Error(), "raise: BindingRemapper:") {
			t.Errorf("Run() error = %q, want it to name BindingRemapper", err)
		}
		if kind, ok := transform.KindOf(err); !ok || kind != transform.ErrUnsupportedConfig {
			t.Errorf("KindOf() = %v, %v, want %v", kind, ok, transform.ErrUnsupportedConfig)
		}
	})

	t.Run("override workgroup size", func(t *testing.T) {
		mod, _, _ := counts(true)
		err := raise.Run(context.Background(), mod, raise.DefaultConfig())
		if kind, ok := transform.KindOf(err); !ok || kind != transform.ErrUnknownWorkgroupSize {
			t.Errorf("Run() error = %v, want %v", err, transform.ErrUnknownWorkgroupSize)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		mod, _, _ := counts(false)
		before := ir.Disassemble(mod)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := raise.Run(ctx, mod, raise.DefaultConfig()); !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want %v", err, context.Canceled)
		}
		if after := ir.Disassemble(mod); after != before {
			t.Errorf("canceled Run modified the module:\n%s", after)
		}
	})
}

func TestRunAll(t *testing.T) {
	mods := make([]*ir.Module, 9)
	for i := range mods {
		mods[i], _, _ = counts(false)
	}
	if err := raise.RunAll(context.Background(), mods, raise.DefaultConfig(), 3); err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	want := ir.Disassemble(mods[0])
	for i, mod := range mods[1:] {
		if got := ir.Disassemble(mod); got != want {
			t.Errorf("module %d raised differently:\n%s", i+1, got)
		}
	}

	for i := range mods {
		mods[i], _, _ = counts(i == 5)
	}
	err := raise.RunAll(context.Background(), mods, raise.DefaultConfig(), 0)
	if err == nil || !strings.Contains(err.Error(), "module 5:") {
		t.Errorf("RunAll() error = %v, want a failure in module 5", err)
	}
}

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raise.toml")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
zero_init_workgroup_memory = true

[binding_remapper.binding_points]
"0:1" = "2:3"
"1:0" = "1:4"

[builtin_polyfill]
count_leading_zeros = true
extract_bits = "clamp"
insert_bits = "full"

[conversion_polyfill]
ftoi = true

[robustness]
clamp_storage = true
disable_runtime_sized_array_index_clamping = true

[external_texture.bindings]
"0:0" = { plane1 = "0:5", params = "0:6" }
`)
	cfg, err := raise.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if !cfg.ZeroInitWorkgroupMemory {
		t.Error("ZeroInitWorkgroupMemory = false, want true")
	}
	if cfg.BindingRemapper == nil {
		t.Fatal("BindingRemapper = nil")
	}
	wantRemap := map[ir.BindingPoint]ir.BindingPoint{
		{Group: 0, Binding: 1}: {Group: 2, Binding: 3},
		{Group: 1, Binding: 0}: {Group: 1, Binding: 4},
	}
	if len(cfg.BindingRemapper.BindingPoints) != len(wantRemap) {
		t.Errorf("BindingPoints = %v, want %v", cfg.BindingRemapper.BindingPoints, wantRemap)
	}
	for from, to := range wantRemap {
		if got := cfg.BindingRemapper.BindingPoints[from]; got != to {
			t.Errorf("BindingPoints[%v] = %v, want %v", from, got, to)
		}
	}

	wantPolyfill := transform.BuiltinPolyfillConfig{
		CountLeadingZeros: true,
		ExtractBits:       transform.PolyfillClampOrRangeCheck,
		InsertBits:        transform.PolyfillFull,
	}
	if cfg.BuiltinPolyfill == nil || *cfg.BuiltinPolyfill != wantPolyfill {
		t.Errorf("BuiltinPolyfill = %+v, want %+v", cfg.BuiltinPolyfill, wantPolyfill)
	}
	if cfg.ConversionPolyfill == nil || !cfg.ConversionPolyfill.FtoI {
		t.Errorf("ConversionPolyfill = %+v, want FtoI", cfg.ConversionPolyfill)
	}
	wantRobustness := transform.RobustnessConfig{ClampStorage: true, DisableRuntimeSizedArrayIndexClamping: true}
	if cfg.Robustness == nil || *cfg.Robustness != wantRobustness {
		t.Errorf("Robustness = %+v, want %+v", cfg.Robustness, wantRobustness)
	}

	if cfg.ExternalTexture == nil {
		t.Fatal("ExternalTexture = nil")
	}
	wantTex := transform.ExternalTextureBindings{
		Plane1: ir.BindingPoint{Group: 0, Binding: 5},
		Params: ir.BindingPoint{Group: 0, Binding: 6},
	}
	if got := cfg.ExternalTexture.BindingsMap[ir.BindingPoint{}]; got != wantTex {
		t.Errorf("BindingsMap[0:0] = %+v, want %+v", got, wantTex)
	}
}

func TestLoadConfig_Empty(t *testing.T) {
	cfg, err := raise.LoadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if steps := raise.Steps(cfg); len(steps) != 0 {
		t.Errorf("empty config enables %d transforms, want 0", len(steps))
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "unknown key",
			text: "[robustness]\nclamp_everything = true\n",
			want: "unknown keys: robustness.clamp_everything",
		},
		{
			name: "unknown table",
			text: "[vertex_pulling]\nenabled = true\n",
			want: "unknown keys",
		},
		{
			name: "malformed binding point",
			text: "[binding_remapper.binding_points]\n\"0\" = \"1:1\"\n",
			want: "want group:binding",
		},
		{
			name: "binding out of range",
			text: "[binding_remapper.binding_points]\n\"0:4294967296\" = \"1:1\"\n",
			want: "binding",
		},
		{
			name: "bad polyfill level",
			text: "[builtin_polyfill]\nextract_bits = \"sometimes\"\n",
			want: "unknown polyfill level",
		},
		{
			name: "syntax",
			text: "[robustness\n",
			want: "failed to parse TOML",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := raise.LoadConfig(writeConfig(t, tt.text))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfig() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestParseBindingPoint(t *testing.T) {
	tests := []struct {
		in      string
		want    ir.BindingPoint
		wantErr bool
	}{
		{in: "0:0", want: ir.BindingPoint{}},
		{in: "3:17", want: ir.BindingPoint{Group: 3, Binding: 17}},
		{in: " 1 : 2 ", want: ir.BindingPoint{Group: 1, Binding: 2}},
		{in: "4294967295:0", want: ir.BindingPoint{Group: 4294967295}},
		{in: "1", wantErr: true},
		{in: "a:1", wantErr: true},
		{in: "1:-1", wantErr: true},
		{in: "1:4294967296", wantErr: true},
	}
	for _, tt := range tests {
		got, err := raise.ParseBindingPoint(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBindingPoint(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBindingPoint(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
