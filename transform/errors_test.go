// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package transform

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{ErrUnsupportedConfig, "UnsupportedConfig"},
		{ErrMissingBinding, "MissingBinding"},
		{ErrUnknownWorkgroupSize, "UnknownWorkgroupSize"},
		{ErrInvalidModule, "InvalidModule"},
		{ErrorKind(255), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("ErrorKind.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	cause := errors.New("bad block")
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  NewError("Robustness", ErrUnsupportedConfig, "no clamping policy"),
			want: "Robustness UnsupportedConfig: no clamping policy",
		},
		{
			name: "with cause",
			err:  &Error{Kind: ErrInvalidModule, Transform: "BindingRemapper", Message: "input module failed validation", Err: cause},
			want: "BindingRemapper InvalidModule: input module failed validation: bad block",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	withCause := tests[1].err
	if !errors.Is(withCause, cause) {
		t.Error("errors.Is did not reach the cause")
	}
}

func TestError_KindPredicates(t *testing.T) {
	tests := []struct {
		kind                                   ErrorKind
		config, binding, workgroupSize, module bool
	}{
		{ErrUnsupportedConfig, true, false, false, false},
		{ErrMissingBinding, false, true, false, false},
		{ErrUnknownWorkgroupSize, false, false, true, false},
		{ErrInvalidModule, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			e := NewError("T", tt.kind, "msg")
			if e.IsUnsupportedConfig() != tt.config {
				t.Errorf("IsUnsupportedConfig() = %v", e.IsUnsupportedConfig())
			}
			if e.IsMissingBinding() != tt.binding {
				t.Errorf("IsMissingBinding() = %v", e.IsMissingBinding())
			}
			if e.IsUnknownWorkgroupSize() != tt.workgroupSize {
				t.Errorf("IsUnknownWorkgroupSize() = %v", e.IsUnknownWorkgroupSize())
			}
			if e.IsInvalidModule() != tt.module {
				t.Errorf("IsInvalidModule() = %v", e.IsInvalidModule())
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("raise: %w", NewError("ZeroInitWorkgroupMemory", ErrUnknownWorkgroupSize, "override"))
	if kind, ok := KindOf(wrapped); !ok || kind != ErrUnknownWorkgroupSize {
		t.Errorf("KindOf(wrapped) = %v, %v, want %v, true", kind, ok, ErrUnknownWorkgroupSize)
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("KindOf(plain error) reported a transform error")
	}
	if _, ok := KindOf(nil); ok {
		t.Error("KindOf(nil) reported a transform error")
	}
}

func TestInvalidModule_DebugLogging(t *testing.T) {
	// A function with an empty body fails validation.
	f := newFixture()
	f.b.Function("foo", f.ty.Void())

	if err := BindingRemapper(f.mod, BindingRemapperOptions{}); err != nil {
		t.Fatalf("BindingRemapper() without debug logging = %v, want nil", err)
	}

	var out strings.Builder
	SetLogger(slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(nil) })

	err := BindingRemapper(f.mod, BindingRemapperOptions{})
	var te *Error
	if !errors.As(err, &te) || !te.IsInvalidModule() {
		t.Fatalf("BindingRemapper() error = %v, want %v", err, ErrInvalidModule)
	}
	if te.Transform != "BindingRemapper" || te.Unwrap() == nil {
		t.Errorf("error = %+v, want BindingRemapper with a validation cause", te)
	}
	if !strings.Contains(out.String(), "module failed validation") {
		t.Errorf("log output does not report the failure:\n%s", out.String())
	}
}

func TestSetLogger_NilRestoresSilentDefault(t *testing.T) {
	SetLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
	SetLogger(nil)
	if Logger().Enabled(t.Context(), slog.LevelError) {
		t.Error("default logger is enabled")
	}
}
