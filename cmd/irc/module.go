package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/shaderir"
	"github.com/gogpu/shaderir/ir"
)

// readModule loads and validates the module stored at path.
func readModule(path string) (*ir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mod, err := shaderir.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mod, nil
}

func writeModule(path string, mod *ir.Module) error {
	data, err := shaderir.Encode(mod)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// raisedPath returns the output path of the raised form of input: the
// input name with ".raised.irb" in place of its extension, placed in dir
// or next to the input when dir is empty.
func raisedPath(input, dir string) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".raised.irb"
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, name)
}
