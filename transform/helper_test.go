// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package transform

import (
	"strings"
	"testing"

	"github.com/gogpu/shaderir/ir"
)

// fixture bundles a module with a builder for constructing test input.
type fixture struct {
	mod *ir.Module
	b   *ir.Builder
	ty  *ir.TypeManager
}

func newFixture() *fixture {
	mod := ir.NewModule()
	return &fixture{mod: mod, b: ir.NewBuilder(mod), ty: mod.Types}
}

// str returns the disassembly of the fixture's module with a leading
// newline, so expectations can be written as raw string literals.
func (f *fixture) str() string {
	return "\n" + ir.Disassemble(f.mod)
}

// expect compares the disassembly against want and fails with both texts
// on mismatch.
func (f *fixture) expect(t *testing.T, want string) {
	t.Helper()
	got := f.str()
	if got != want {
		t.Errorf("disassembly mismatch\n--- got ---%s\n--- want ---%s", got, want)
	}
}

// valid fails the test if the fixture's module does not validate.
func (f *fixture) valid(t *testing.T) {
	t.Helper()
	errs, err := ir.Validate(f.mod)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		t.Fatalf("module is invalid:\n%s\n%s", strings.Join(msgs, "\n"), f.str())
	}
}
