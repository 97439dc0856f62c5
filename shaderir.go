// Package shaderir provides a typed shader IR and the transforms that
// prepare it for code generation.
//
// A front end builds an [ir.Module] with an [ir.Builder]. Raise then
// applies the backend-independent lowerings a code generator expects:
// binding remapping, builtin and conversion polyfills, bounds clamping,
// external texture lowering and workgroup memory zero-initialization.
//
// Example usage:
//
//	mod, _ := shaderir.Sample("workgroup")
//	if err := shaderir.Raise(ctx, mod, raise.DefaultConfig()); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(shaderir.Disassemble(mod))
//
// Modules can be stored in a compact binary form with Encode and Decode.
// The individual transforms live in the transform package.
package shaderir

import (
	"context"
	"fmt"

	"github.com/gogpu/shaderir/ir"
	"github.com/gogpu/shaderir/ir/binary"
	"github.com/gogpu/shaderir/raise"
)

// Raise applies the transforms enabled by cfg to mod in place.
//
// The pipeline is:
//  1. Validate the input module
//  2. Remap bindings
//  3. Polyfill builtins and conversions
//  4. Clamp indices
//  5. Lower external textures
//  6. Zero-initialize workgroup memory
func Raise(ctx context.Context, mod *ir.Module, cfg raise.Config) error {
	if err := ir.ValidateErr(mod); err != nil {
		return fmt.Errorf("invalid input module: %w", err)
	}
	if err := raise.Run(ctx, mod, cfg); err != nil {
		return err
	}
	Logger().Debug("module raised", "functions", len(mod.Functions()))
	return nil
}

// RaiseAll raises independent modules concurrently, at most jobs at a time.
func RaiseAll(ctx context.Context, mods []*ir.Module, cfg raise.Config, jobs int) error {
	for i, mod := range mods {
		if err := ir.ValidateErr(mod); err != nil {
			return fmt.Errorf("module %d: invalid input module: %w", i, err)
		}
	}
	return raise.RunAll(ctx, mods, cfg, jobs)
}

// Validate validates an IR module for correctness.
//
// Returns a slice of validation errors. If the slice is empty, validation passed.
func Validate(mod *ir.Module) ([]ir.ValidationError, error) {
	return ir.Validate(mod)
}

// Disassemble renders mod in its textual form.
func Disassemble(mod *ir.Module) string {
	return ir.Disassemble(mod)
}

// Encode serializes mod to the binary IR format.
func Encode(mod *ir.Module) ([]byte, error) {
	data, err := binary.Encode(mod)
	if err != nil {
		return nil, fmt.Errorf("encode error: %w", err)
	}
	return data, nil
}

// Decode rebuilds a module from the binary IR format and validates it.
func Decode(data []byte) (*ir.Module, error) {
	mod, err := binary.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode error: %w", err)
	}
	if err := ir.ValidateErr(mod); err != nil {
		Logger().Warn("decoded module failed validation", "error", err)
		return nil, fmt.Errorf("decoded module is invalid: %w", err)
	}
	return mod, nil
}
