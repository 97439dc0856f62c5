package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/shaderir"
	"github.com/gogpu/shaderir/ir"
	"github.com/gogpu/shaderir/ir/binary"
	"github.com/gogpu/shaderir/raise"
)

var errInvalid = errors.New("validation failed")

func newDisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dis file.irb...",
		Short: "Print the disassembly of modules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			styled := false
			if f, ok := out.(*os.File); ok {
				styled = useColor(cmd, f)
			}
			for _, path := range args {
				mod, err := readModule(path)
				if err != nil {
					return err
				}
				if len(args) > 1 {
					fmt.Fprintf(out, "; %s\n", path)
				}
				if err := disassemble(out, mod, styled); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func disassemble(w io.Writer, mod *ir.Module, styled bool) error {
	if styled {
		return ir.DisassembleColor(mod, w)
	}
	_, err := io.WriteString(w, shaderir.Disassemble(mod))
	return err
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate file.irb...",
		Short: "Report validator findings",
		Long:  `Validate decodes each module and prints every validator finding. The exit status is 1 when any module is invalid.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			bad := color.New(color.FgRed, color.Bold)
			good := color.New(color.FgGreen)
			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				// shaderir.Decode rejects invalid modules; findings are wanted here.
				mod, err := binary.Decode(data)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				findings, err := shaderir.Validate(mod)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if len(findings) == 0 {
					good.Fprintf(out, "%s: ok\n", path)
					continue
				}
				failed++
				for _, f := range findings {
					bad.Fprintf(out, "%s: ", path)
					fmt.Fprintln(out, f.Error())
				}
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d modules", errInvalid, failed, len(args))
			}
			return nil
		},
	}
}

func newRaiseCmd() *cobra.Command {
	var (
		configPath string
		outDir     string
		jobs       int
		dis        bool
	)
	cmd := &cobra.Command{
		Use:   "raise [flags] file.irb...",
		Short: "Run the transform pipeline over modules",
		Long: `Raise applies the configured transforms to each module and writes
<name>.raised.irb. Without --config every polyfill, robustness and
zero-initialization is enabled.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := raise.DefaultConfig()
			if configPath != "" {
				var err error
				if cfg, err = raise.LoadConfig(configPath); err != nil {
					return err
				}
			}

			mods := make([]*ir.Module, len(args))
			var g errgroup.Group
			g.SetLimit(workers(jobs))
			for i, path := range args {
				g.Go(func() error {
					mod, err := readModule(path)
					mods[i] = mod
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if err := shaderir.RaiseAll(cmd.Context(), mods, cfg, jobs); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, path := range args {
				if dis {
					fmt.Fprintf(out, "; %s\n", path)
					if err := disassemble(out, mods[i], false); err != nil {
						return err
					}
					continue
				}
				dst := raisedPath(path, outDir)
				if err := writeModule(dst, mods[i]); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s -> %s\n", path, dst)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "TOML file selecting and configuring the transforms")
	cmd.Flags().StringVarP(&outDir, "output-dir", "o", "", "directory for raised modules (default: next to the input)")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "modules raised in parallel (default: GOMAXPROCS)")
	cmd.Flags().BoolVar(&dis, "dis", false, "print the disassembly instead of writing files")
	return cmd
}

// workers resolves the --jobs flag; zero or less means GOMAXPROCS.
func workers(jobs int) int {
	if jobs <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return jobs
}

func newSampleCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:       "sample name -o file.irb",
		Short:     "Write a built-in sample module",
		Args:      cobra.ExactArgs(1),
		ValidArgs: shaderir.Samples(),
		RunE: func(cmd *cobra.Command, args []string) error {
			mod, err := shaderir.Sample(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				return errors.New("no output file given (use -o)")
			}
			if err := writeModule(output, mod); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s sample to %s\n", args[0], output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	return cmd
}
