// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package transform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gogpu/shaderir/ir"
)

// validateAndDumpIfNeeded validates mod before a transform runs and dumps
// it when debug logging is enabled. Validation is a debugging aid here;
// callers are expected to hand over valid modules.
func validateAndDumpIfNeeded(mod *ir.Module, name string) error {
	log := Logger()
	if !log.Enabled(context.Background(), slog.LevelDebug) {
		return nil
	}
	log.Debug("running transform", "transform", name, "module", ir.Disassemble(mod))
	if err := ir.ValidateErr(mod); err != nil {
		log.Warn("module failed validation", "transform", name, "error", err)
		return &Error{
			Kind:      ErrInvalidModule,
			Transform: name,
			Message:   "input module failed validation",
			Err:       err,
		}
	}
	return nil
}

func logApplied(name string, attrs ...any) {
	Logger().Debug("transform applied", append([]any{"transform", name}, attrs...)...)
}

// ice reports a broken internal invariant.
func ice(format string, args ...any) {
	panic("ICE: " + fmt.Sprintf(format, args...))
}
