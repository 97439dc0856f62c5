package ir

import (
	"io"

	"github.com/fatih/color"
)

// ColorStyle returns a Style that paints tokens with ANSI colours.
// Colours are emitted regardless of the terminal the output ends up on.
func ColorStyle() *Style {
	paint := func(attrs ...color.Attribute) func(string) string {
		c := color.New(attrs...)
		c.EnableColor()
		return func(s string) string { return c.Sprint(s) }
	}
	return &Style{
		Keyword:     paint(color.FgMagenta),
		Type:        paint(color.FgCyan),
		Literal:     paint(color.FgYellow),
		Comment:     paint(color.FgHiBlack),
		Label:       paint(color.FgBlue, color.Bold),
		Variable:    paint(color.FgWhite),
		Function:    paint(color.FgGreen, color.Bold),
		Instruction: paint(color.FgHiBlue),
		Attribute:   paint(color.FgRed),
	}
}

// DisassembleColor writes the coloured disassembly of mod to w.
func DisassembleColor(mod *Module, w io.Writer) error {
	_, err := io.WriteString(w, DisassembleStyled(mod, ColorStyle()))
	return err
}
