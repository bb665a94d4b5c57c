package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/vedranburojevic/devsupervisor/internal/config"
)

// DoctorCmd checks that the supervised command and data directory are
// usable, grounded on the teacher's internal/cli.DoctorCmd (one small check
// per concern, aggregated into a single pass/warn/fail report).
type DoctorCmd struct {
	Command string `arg:"" optional:"" help:"Command to check is resolvable via PATH"`
}

type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type doctorReport struct {
	Type      string        `json:"type"`
	Timestamp string        `json:"timestamp"`
	Checks    []checkResult `json:"checks"`
	AllPassed bool          `json:"allPassed"`
}

// Run executes the doctor command.
func (c *DoctorCmd) Run(globals *Globals) error {
	var checks []checkResult

	if c.Command != "" {
		checks = append(checks, c.checkCommand())
	}
	checks = append(checks, c.checkDataDir(globals.DataDir))
	checks = append(checks, c.checkConfig(globals.Config))

	allPassed := true
	for _, r := range checks {
		if r.Status != "ok" {
			allPassed = false
		}
	}

	report := doctorReport{
		Type:      "doctor",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		AllPassed: allPassed,
	}
	return json.NewEncoder(globals.Stdout).Encode(report)
}

func (c *DoctorCmd) checkCommand() checkResult {
	path, err := exec.LookPath(c.Command)
	if err != nil {
		return checkResult{Name: "command", Status: "error", Message: fmt.Sprintf("%q not found on PATH", c.Command)}
	}
	return checkResult{Name: "command", Status: "ok", Message: path}
}

func (c *DoctorCmd) checkDataDir(dir string) checkResult {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return checkResult{Name: "data_dir", Status: "error", Message: err.Error()}
	}
	testFile := dir + "/.devsupervisor_write_test"
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{Name: "data_dir", Status: "error", Message: "directory not writable: " + err.Error()}
	}
	f.Close()
	os.Remove(testFile)
	return checkResult{Name: "data_dir", Status: "ok", Message: dir}
}

func (c *DoctorCmd) checkConfig(cfg *config.Config) checkResult {
	if cfg == nil {
		return checkResult{Name: "config", Status: "warning", Message: "using built-in defaults (no config loaded)"}
	}
	if err := cfg.Validate(); err != nil {
		return checkResult{Name: "config", Status: "error", Message: err.Error()}
	}
	return checkResult{Name: "config", Status: "ok", Message: "valid"}
}
