package logging

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI color codes.
const (
	reset = "\033[0m"
	bold  = "\033[1m"
	cyan  = "\033[36m"
	dim   = "\033[2m"
)

// PrintBanner prints the router's version and listen address to
// stderr at startup. Colors are used only when stderr is a TTY.
func PrintBanner(ver, addr string) {
	color := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if color {
		fmt.Fprintf(os.Stderr, "%s%srouter%s  %sversion%s %s   %saddr%s %s\n\n",
			bold, cyan, reset, dim, reset, ver, dim, reset, addr)
	} else {
		fmt.Fprintf(os.Stderr, "router  version %s   addr %s\n\n", ver, addr)
	}
}
