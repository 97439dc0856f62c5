// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package transform

import "github.com/gogpu/shaderir/ir"

// BindingRemapperOptions maps resource binding points to new ones.
type BindingRemapperOptions struct {
	// BindingPoints maps an original (group, binding) to its replacement.
	BindingPoints map[ir.BindingPoint]ir.BindingPoint

	// AccessControls would override the access mode of a resource. It is
	// not supported and must be empty.
	AccessControls map[ir.BindingPoint]ir.Access
}

// BindingRemapper rewrites the binding points of module-scope resource
// variables in place.
//
// Remapping two resources onto the same binding point is not detected; the
// caller owns the uniqueness of the resulting assignment.
func BindingRemapper(mod *ir.Module, opts BindingRemapperOptions) error {
	const name = "BindingRemapper"
	if err := validateAndDumpIfNeeded(mod, name); err != nil {
		return err
	}
	if len(opts.AccessControls) > 0 {
		return NewError(name, ErrUnsupportedConfig, "remapping access controls is not supported")
	}
	if len(opts.BindingPoints) == 0 {
		return nil
	}

	remapped := 0
	for _, v := range mod.RootVars() {
		inst := mod.Inst(v)
		if inst.BindingPoint == nil {
			continue
		}
		to, ok := opts.BindingPoints[*inst.BindingPoint]
		if !ok {
			continue
		}
		bp := to
		inst.BindingPoint = &bp
		remapped++
	}
	logApplied(name, "remapped", remapped)
	return nil
}
