package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	colorOK    = color.New(color.FgGreen)
	colorWarn  = color.New(color.FgYellow)
	colorError = color.New(color.FgRed, color.Bold)
	colorMuted = color.New(color.FgWhite, color.Faint)
	colorBold  = color.New(color.Bold)
)

// outMu serializes status lines written from render goroutines.
var outMu sync.Mutex

func printLine(cmd *cobra.Command, c *color.Color, format string, args ...any) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintln(cmd.ErrOrStderr(), c.Sprintf(format, args...))
}

// DisableColor disables all color output.
func DisableColor() {
	color.NoColor = true
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// statusf prints a status line to stderr unless --quiet is set.
func statusf(cmd *cobra.Command, format string, args ...any) {
	if quiet {
		return
	}
	printLine(cmd, colorOK, format, args...)
}

// debugf prints a status line to stderr when --verbose is set.
func debugf(cmd *cobra.Command, format string, args ...any) {
	if !verbose || quiet {
		return
	}
	printLine(cmd, colorMuted, format, args...)
}

// warnf prints a warning to stderr, even with --quiet.
func warnf(cmd *cobra.Command, format string, args ...any) {
	printLine(cmd, colorWarn, format, args...)
}

func errorf(cmd *cobra.Command, format string, args ...any) {
	printLine(cmd, colorError, format, args...)
}
