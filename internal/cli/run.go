package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vedranburojevic/devsupervisor/internal/domain"
	"github.com/vedranburojevic/devsupervisor/internal/store/badgerstore"
	"github.com/vedranburojevic/devsupervisor/internal/supervisor"
)

// RunCmd runs a command under supervision until it exits (subject to
// restart policy) or the process receives an interrupt.
type RunCmd struct {
	Command    string   `arg:"" help:"Command to run under supervision"`
	Args       []string `arg:"" optional:"" help:"Arguments to the command"`
	InstanceID string   `help:"Identifier for this supervised instance (generated if omitted)"`
	Cwd        string   `help:"Working directory for the child process" default:"."`
}

// ndjsonEvent mirrors domain.Event for stable wire field names, grounded on
// the teacher's internal/output NDJSON envelopes.
type ndjsonEvent struct {
	Type       string      `json:"type"`
	ProcessID  string      `json:"processId"`
	InstanceID string      `json:"instanceId"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       interface{} `json:"data,omitempty"`
}

// Run executes the run command.
func (c *RunCmd) Run(globals *Globals) error {
	instanceID := c.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	processID := uuid.NewString()

	db, err := badgerstore.Open(globals.DataDir + "/errors")
	if err != nil {
		return fmt.Errorf("open error store: %w", err)
	}
	defer db.Close()

	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	sup := supervisor.New(supervisor.Options{
		ProcessID:  processID,
		InstanceID: instanceID,
		Command:    c.Command,
		Args:       c.Args,
		Cwd:        c.Cwd,
		DataDir:    globals.DataDir,
		Cfg:        globals.Config,
		ErrorStore: db,
		Logger:     logger,
	})

	exited := make(chan struct{})
	var exitedOnce sync.Once
	enc := json.NewEncoder(globals.Stdout)
	sup.AddListener(func(ev domain.Event) {
		_ = enc.Encode(ndjsonEvent{
			Type:       string(ev.Kind),
			ProcessID:  ev.ProcessID,
			InstanceID: ev.InstanceID,
			Timestamp:  ev.Timestamp,
			Data:       eventPayload(ev),
		})
		if ev.Stopped != nil || (ev.Crashed != nil && !ev.Crashed.WillRestart) {
			exitedOnce.Do(func() { close(exited) })
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := sup.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	select {
	case <-ctx.Done():
		if _, err := sup.Stop(false); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("run: stop failed", zap.Error(err))
		}
	case <-exited:
	}
	sup.Cleanup()
	return nil
}

func eventPayload(ev domain.Event) interface{} {
	switch {
	case ev.Started != nil:
		return ev.Started
	case ev.Stopped != nil:
		return ev.Stopped
	case ev.Crashed != nil:
		return ev.Crashed
	case ev.Error != nil:
		return ev.Error
	default:
		return nil
	}
}
