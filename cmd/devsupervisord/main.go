// Command devsupervisord is a thin CLI front-end over internal/supervisor,
// demonstrating the Supervisor described in spec.md §4.9. All matching,
// lifecycle, and persistence logic lives in internal/*; this binary only
// parses flags, loads configuration, and prints NDJSON events.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/vedranburojevic/devsupervisor/internal/cli"
	"github.com/vedranburojevic/devsupervisor/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI
	ctx := kong.Parse(&c,
		kong.Name("devsupervisord"),
		kong.Description("Supervise a development-server child process: capture output, detect errors, auto-restart on crash."),
		kong.UsageOnError(),
	)

	globals := cli.NewGlobals(&c, cfg)
	if err := ctx.Run(globals); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
