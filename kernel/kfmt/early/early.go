// Package early provides a minimal Printf-style logger with no heap
// allocation requirements beyond what fmt itself needs, modeled on
// gopher-os's kernel/kfmt/early package used for pre-memory-manager boot
// diagnostics. Unlike gopher-os's version, which writes directly to a VGA
// text-mode framebuffer because no other output exists yet at boot, this
// kernel always has an io.Writer available (a real console driver is out
// of scope), so Writer defaults to os.Stderr and tests can swap it out.
package early

import (
	"fmt"
	"io"
	"os"
)

// Writer is where Printf/Println send output. Tests may replace it with a
// bytes.Buffer to assert on logged output.
var Writer io.Writer = os.Stderr

// Printf formats according to format and writes to Writer, the same
// signature as fmt.Printf but routed through the swappable Writer.
func Printf(format string, args ...interface{}) {
	fmt.Fprintf(Writer, format, args...)
}

// Println writes args to Writer, space-separated, with a trailing newline.
func Println(args ...interface{}) {
	fmt.Fprintln(Writer, args...)
}
