// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package transform

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes transform failures.
type ErrorKind uint8

const (
	// ErrUnsupportedConfig indicates the configuration requests something the
	// transform does not implement.
	ErrUnsupportedConfig ErrorKind = iota

	// ErrMissingBinding indicates a resource has no entry in a binding map.
	ErrMissingBinding

	// ErrUnknownWorkgroupSize indicates an entry point whose workgroup size
	// is not known at compile time.
	ErrUnknownWorkgroupSize

	// ErrInvalidModule indicates the input module failed validation.
	ErrInvalidModule
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrUnsupportedConfig:
		return "UnsupportedConfig"
	case ErrMissingBinding:
		return "MissingBinding"
	case ErrUnknownWorkgroupSize:
		return "UnknownWorkgroupSize"
	case ErrInvalidModule:
		return "InvalidModule"
	default:
		return "Unknown"
	}
}

// Error is a failure reported by a transform.
type Error struct {
	// Kind categorizes the error.
	Kind ErrorKind

	// Transform names the transform that failed.
	Transform string

	// Message provides details about the error.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Transform, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Transform, e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a transform error.
func NewError(transform string, kind ErrorKind, message string) *Error {
	return &Error{
		Kind:      kind,
		Transform: transform,
		Message:   message,
	}
}

// IsUnsupportedConfig returns true if the error is ErrUnsupportedConfig.
func (e *Error) IsUnsupportedConfig() bool {
	return e.Kind == ErrUnsupportedConfig
}

// IsMissingBinding returns true if the error is ErrMissingBinding.
func (e *Error) IsMissingBinding() bool {
	return e.Kind == ErrMissingBinding
}

// IsUnknownWorkgroupSize returns true if the error is ErrUnknownWorkgroupSize.
func (e *Error) IsUnknownWorkgroupSize() bool {
	return e.Kind == ErrUnknownWorkgroupSize
}

// IsInvalidModule returns true if the error is ErrInvalidModule.
func (e *Error) IsInvalidModule() bool {
	return e.Kind == ErrInvalidModule
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}
