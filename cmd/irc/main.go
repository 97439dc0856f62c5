// Command irc inspects and raises binary shader IR modules.
//
// Usage:
//
//	irc <command> [flags] <input>...
//
// Examples:
//
//	irc sample workgroup -o wg.irb          # Write a built-in sample module
//	irc dis wg.irb                          # Print the disassembly
//	irc validate wg.irb                     # Report validation findings
//	irc raise --config raise.toml wg.irb    # Write wg.raised.irb
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gogpu/shaderir"
)

const ircVersion = "0.1.0-dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "irc",
		Short:         "Shader IR inspection and raising tool",
		Long:          `irc disassembles, validates and raises shader IR modules stored in the binary .irb format`,
		Version:       ircVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			colorFlag, err := cmd.Root().PersistentFlags().GetString("color")
			if err != nil {
				return err
			}
			switch colorFlag {
			case "auto", "on", "off":
			default:
				return fmt.Errorf("invalid --color %q (want auto|on|off)", colorFlag)
			}
			color.NoColor = !useColor(cmd, os.Stderr)

			levelFlag, err := cmd.Root().PersistentFlags().GetString("log-level")
			if err != nil {
				return err
			}
			if levelFlag == "" {
				return nil
			}
			var level slog.Level
			if err := level.UnmarshalText([]byte(levelFlag)); err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			shaderir.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	root.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	root.PersistentFlags().String("log-level", "", "log to stderr at this level (debug|info|warn|error)")

	root.AddCommand(newDisCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newRaiseCmd())
	root.AddCommand(newSampleCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprint(os.Stderr, "error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// useColor reports whether output to f is colorized under --color.
func useColor(cmd *cobra.Command, f *os.File) bool {
	colorFlag, _ := cmd.Root().PersistentFlags().GetString("color")
	switch colorFlag {
	case "on":
		return true
	case "off":
		return false
	}
	return f != nil && term.IsTerminal(int(f.Fd()))
}
