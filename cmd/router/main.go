package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/webordinary/router/internal/logging"
)

var version = "dev"

func main() {
	logging.Setup()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: router [serve|reap-once|version] [flags]")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "reap-once":
		if err := runReapOnce(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		fmt.Fprintln(os.Stderr, "usage: router [serve|reap-once|version] [flags]")
		os.Exit(1)
	}
}
