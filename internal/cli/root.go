// Package cli is the thin kong-based front-end over internal/supervisor,
// generalized from the teacher's internal/cli.CLI root-command struct (one
// small Cmd type per verb holding a *Globals) down to the two verbs a
// process supervisor's CLI actually needs: running one child to completion
// under supervision, and a doctor-style environment check.
package cli

import (
	"io"
	"os"

	"github.com/vedranburojevic/devsupervisor/internal/config"
)

// CLI is the root command structure.
type CLI struct {
	DataDir string `help:"Directory for rolling-log files and the default error store." default:".devsupervisor"`

	Run    RunCmd    `cmd:"" default:"withargs" help:"Run a command under supervision until it exits or is interrupted"`
	Doctor DoctorCmd `cmd:"" help:"Check that the supervised command and data directory are usable"`
}

// Globals holds shared state threaded into every command.
type Globals struct {
	DataDir string
	Stdout  io.Writer
	Stderr  io.Writer
	Config  *config.Config
}

// NewGlobals builds Globals from parsed CLI flags and loaded configuration.
func NewGlobals(c *CLI, cfg *config.Config) *Globals {
	return &Globals{
		DataDir: c.DataDir,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Config:  cfg,
	}
}
