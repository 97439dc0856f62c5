// Package raise lowers a module to what a backend can consume by running
// the transforms in a fixed order.
//
// The order is BindingRemapper, BuiltinPolyfill, ConversionPolyfill,
// Robustness, MultiplanarExternalTexture and ZeroInitWorkgroupMemory.
// Polyfills run before Robustness so that the index clamps cover the
// accesses they introduce, and zero initialization runs last so that its
// stores are not clamped.
package raise

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/shaderir/ir"
	"github.com/gogpu/shaderir/transform"
)

// Step is one transform of the pipeline.
type Step struct {
	Name string
	Run  func(*ir.Module) error
}

// Steps returns the transforms cfg enables, in the order Run applies them.
func Steps(cfg Config) []Step {
	var steps []Step
	add := func(name string, run func(*ir.Module) error) {
		steps = append(steps, Step{Name: name, Run: run})
	}
	if opts := cfg.BindingRemapper; opts != nil {
		add("BindingRemapper", func(m *ir.Module) error { return transform.BindingRemapper(m, *opts) })
	}
	if c := cfg.BuiltinPolyfill; c != nil {
		add("BuiltinPolyfill", func(m *ir.Module) error { return transform.BuiltinPolyfill(m, *c) })
	}
	if c := cfg.ConversionPolyfill; c != nil {
		add("ConversionPolyfill", func(m *ir.Module) error { return transform.ConversionPolyfill(m, *c) })
	}
	if c := cfg.Robustness; c != nil {
		add("Robustness", func(m *ir.Module) error { return transform.Robustness(m, *c) })
	}
	if opts := cfg.ExternalTexture; opts != nil {
		add("MultiplanarExternalTexture", func(m *ir.Module) error { return transform.MultiplanarExternalTexture(m, *opts) })
	}
	if cfg.ZeroInitWorkgroupMemory {
		add("ZeroInitWorkgroupMemory", transform.ZeroInitWorkgroupMemory)
	}
	return steps
}

// Run applies the transforms enabled by cfg to mod, stopping at the first
// failure. The module is modified in place; after an error it may be
// partially transformed.
func Run(ctx context.Context, mod *ir.Module, cfg Config) error {
	log := Logger()
	for _, s := range Steps(cfg) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("raise: %w", err)
		}
		if err := s.Run(mod); err != nil {
			log.Warn("transform failed", "transform", s.Name, "error", err)
			return fmt.Errorf("raise: %s: %w", s.Name, err)
		}
		log.Debug("transform done", "transform", s.Name, "functions", len(mod.Functions()))
	}
	return nil
}

// RunAll raises independent modules concurrently, at most jobs at a time.
// A jobs value of zero or less uses GOMAXPROCS. The first failure cancels
// the modules not yet started.
func RunAll(ctx context.Context, mods []*ir.Module, cfg Config, jobs int) error {
	if len(mods) == 0 {
		return nil
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(mods)))
	for i, mod := range mods {
		g.Go(func() error {
			if err := Run(gctx, mod, cfg); err != nil {
				return fmt.Errorf("module %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}
