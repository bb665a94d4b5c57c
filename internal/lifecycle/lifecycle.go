// Package lifecycle implements LifecycleController (spec.md §4.8, C8): the
// process state machine, soft-then-hard stop, bounded auto-restart with
// backoff, periodic health watch, and event emission. Grounded on the
// teacher's internal/cli.LaunchCmd (errgroup-driven concurrent stdout/stderr
// pipe readers over an *exec.Cmd under a cancellable context) and on the
// pack's janhuddel-metrics-agent supervisor (run-loop-per-process restart
// policy, soft-interrupt-then-timeout-kill stop sequencing) — generalized
// from ad hoc module supervision to the spec's explicit state machine.
package lifecycle

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vedranburojevic/devsupervisor/internal/domain"
)

// Sentinel errors returned by Controller operations (spec.md §7's
// Result-flavored error handling, generalized from the teacher's plain
// fmt.Errorf call sites into named, matchable errors).
var (
	ErrAlreadyRunning = errors.New("lifecycle: process already running")
	ErrNotRunning     = errors.New("lifecycle: process not running")
	ErrSpawnFailed    = errors.New("lifecycle: spawn failed")
	ErrStopFailed     = errors.New("lifecycle: stop failed")
)

// Config holds the tunables of spec.md §4.8, each with the spec's default
// zero-value behaviour.
type Config struct {
	Command              string
	Args                 []string
	Cwd                  string
	MaxRestarts          int
	RestartOnCrash       bool
	RestartDelay         time.Duration
	KillTimeout          time.Duration // default 10s
	HealthCheckInterval  time.Duration // 0 disables the health watch
}

func (c Config) withDefaults() Config {
	if c.KillTimeout <= 0 {
		c.KillTimeout = 10 * time.Second
	}
	return c
}

// LineHandler receives one captured, raw (unfiltered) line from the child's
// output, tagged by stream.
type LineHandler func(stream domain.Stream, line string)

// A fatal-severity error detected elsewhere in the pipeline (ChunkAssembler
// -> ErrorDetector) reaches the Controller through NotifyFatalError, which
// triggers the same crash-restart path as an actual exit (spec.md §4.8).
// Supervisor makes that call; Controller never inspects error content itself.

// Controller drives a single child process through the spec.md §4.8 state
// machine.
type Controller struct {
	cfg        Config
	clk        clock.Clock
	logger     *zap.Logger
	onLine     LineHandler
	onEvent    func(domain.Event)
	processID  string
	instanceID string

	mu           sync.Mutex
	descriptor   domain.ProcessDescriptor
	cmd          *exec.Cmd
	cancel       context.CancelFunc
	waitDone     chan struct{}
	stopping     bool
	restartTimer *clock.Timer
	healthTimer  *clock.Timer
	lastActivity time.Time
}

// New creates a Controller for one supervised child. processID/instanceID
// identify it in emitted events and ProcessDescriptor.
func New(processID, instanceID string, cfg Config, clk clock.Clock, logger *zap.Logger, onLine LineHandler, onEvent func(domain.Event)) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		cfg:        cfg.withDefaults(),
		clk:        clk,
		logger:     logger,
		onLine:     onLine,
		onEvent:    onEvent,
		processID:  processID,
		instanceID: instanceID,
	}
	c.descriptor = domain.ProcessDescriptor{
		ProcessID:  processID,
		InstanceID: instanceID,
		Command:    cfg.Command,
		Args:       append([]string(nil), cfg.Args...),
		Cwd:        cfg.Cwd,
		CreatedAt:  clk.Now(),
		State:      domain.StateStopped,
	}
	c.lastActivity = clk.Now()
	return c
}

// Describe returns a snapshot of the current ProcessDescriptor.
func (c *Controller) Describe() *domain.ProcessDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.descriptor.Clone()
}

// LastActivity returns the timestamp of the most recent non-empty read from
// either output stream.
func (c *Controller) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Start spawns the child process. Only valid from Stopped.
func (c *Controller) Start(ctx context.Context) (*domain.ProcessDescriptor, error) {
	c.mu.Lock()
	if c.descriptor.State != domain.StateStopped {
		state := c.descriptor.State
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: current state %q", ErrAlreadyRunning, state)
	}
	c.descriptor.State = domain.StateStarting
	c.mu.Unlock()

	if err := c.spawn(ctx); err != nil {
		c.mu.Lock()
		c.descriptor.State = domain.StateStopped
		c.descriptor.LastError = err.Error()
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	c.mu.Lock()
	c.descriptor.State = domain.StateRunning
	desc := c.descriptor.Clone()
	c.mu.Unlock()

	c.emit(domain.EventProcessStarted, &domain.ProcessStartedPayload{PID: desc.PID, Command: desc.Command}, nil, nil, nil)
	c.startHealthWatch()
	return desc, nil
}

// spawn starts the *exec.Cmd, wires the errgroup-driven stream readers, and
// arranges for onExit to run once the process exits.
func (c *Controller) spawn(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	_ = ctx // caller's context only bounds the Start() call itself

	cmd := exec.CommandContext(runCtx, c.cfg.Command, c.cfg.Args...)
	cmd.Dir = c.cfg.Cwd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start: %w", err)
	}

	c.mu.Lock()
	c.cmd = cmd
	c.cancel = cancel
	c.descriptor.PID = cmd.Process.Pid
	c.descriptor.StartTime = c.clk.Now()
	c.waitDone = make(chan struct{})
	waitDone := c.waitDone
	c.mu.Unlock()

	group, _ := errgroup.WithContext(runCtx)
	group.Go(func() error { return c.pump(domain.StreamStdout, stdout) })
	group.Go(func() error { return c.pump(domain.StreamStderr, stderr) })

	go func() {
		waitErr := cmd.Wait()
		if scanErr := group.Wait(); scanErr != nil {
			c.logger.Warn("lifecycle: stream reader error", zap.Error(scanErr))
		}
		close(waitDone)
		c.onExit(waitErr)
	}()

	return nil
}

func (c *Controller) pump(stream domain.Stream, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		c.mu.Lock()
		c.lastActivity = c.clk.Now()
		c.mu.Unlock()
		if c.onLine != nil {
			c.onLine(stream, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s read: %w", stream, err)
	}
	return nil
}

// onExit handles a child process exit while Running, per spec.md §4.8.
func (c *Controller) onExit(waitErr error) {
	c.mu.Lock()
	if c.descriptor.State != domain.StateRunning {
		// Exit observed after an explicit Stop() or NotifyFatalError(); those
		// paths already handle the state change.
		c.mu.Unlock()
		return
	}
	exitCode := exitCodeOf(waitErr)
	c.descriptor.ExitCode = exitCode
	c.descriptor.EndTime = c.clk.Now()

	if exitCode == 0 {
		c.descriptor.State = domain.StateStopped
		c.mu.Unlock()
		c.emit(domain.EventProcessStopped, nil, &domain.ProcessStoppedPayload{ExitCode: 0, Reason: "exited"}, nil, nil)
		return
	}

	c.descriptor.State = domain.StateCrashed
	restart := c.cfg.RestartOnCrash && c.descriptor.RestartCount < c.cfg.MaxRestarts
	c.mu.Unlock()

	c.emit(domain.EventProcessCrashed, nil, nil, &domain.ProcessCrashedPayload{ExitCode: exitCode, WillRestart: restart}, nil)
	c.handleCrashPolicy(restart)
}

// handleCrashPolicy schedules a restart or transitions to the terminal
// Failed state, per spec.md §4.8's crash-restart path. It is also entered
// directly by NotifyFatalError for a fatal detection with no process exit.
func (c *Controller) handleCrashPolicy(restart bool) {
	if !restart {
		c.mu.Lock()
		c.descriptor.State = domain.StateFailed
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.descriptor.RestartCount++
	c.descriptor.State = domain.StateStopped // the crashed child has already exited
	delay := c.cfg.RestartDelay
	c.mu.Unlock()

	if delay <= 0 {
		go func() { _, _ = c.Start(context.Background()) }()
		return
	}
	c.mu.Lock()
	c.restartTimer = c.clk.AfterFunc(delay, func() { _, _ = c.Start(context.Background()) })
	c.mu.Unlock()
}

// NotifyFatalError drives the crash-restart path for a fatal-severity
// detection even though the child has not exited (spec.md §4.8).
func (c *Controller) NotifyFatalError() {
	c.mu.Lock()
	if c.descriptor.State != domain.StateRunning {
		c.mu.Unlock()
		return
	}
	c.descriptor.State = domain.StateCrashed
	restart := c.cfg.RestartOnCrash && c.descriptor.RestartCount < c.cfg.MaxRestarts
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.emit(domain.EventProcessCrashed, nil, nil, &domain.ProcessCrashedPayload{ExitCode: -1, Signal: "fatal-error", WillRestart: restart}, nil)
	c.handleCrashPolicy(restart)
}

// Stop transitions to Stopping and terminates the child: soft signal first,
// then a hard kill if it has not exited within KillTimeout, unless force is
// set (which kills immediately).
func (c *Controller) Stop(force bool) (bool, error) {
	c.mu.Lock()
	if c.descriptor.State == domain.StateStopped {
		c.mu.Unlock()
		return false, fmt.Errorf("%w", ErrNotRunning)
	}
	c.descriptor.State = domain.StateStopping
	c.stopping = true
	cmd := c.cmd
	waitDone := c.waitDone
	if c.restartTimer != nil {
		c.restartTimer.Stop()
	}
	c.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		c.mu.Lock()
		c.descriptor.State = domain.StateStopped
		c.mu.Unlock()
		return true, nil
	}

	if force {
		_ = cmd.Process.Kill()
	} else {
		if err := cmd.Process.Signal(softSignal()); err != nil {
			_ = cmd.Process.Kill()
		}
	}

	select {
	case <-waitDone:
	case <-c.clk.After(c.cfg.KillTimeout):
		if err := cmd.Process.Kill(); err != nil {
			c.mu.Lock()
			c.descriptor.State = domain.StateStopped
			c.mu.Unlock()
			return false, fmt.Errorf("%w: %v", ErrStopFailed, err)
		}
		<-waitDone
	}

	c.mu.Lock()
	c.descriptor.State = domain.StateStopped
	c.stopping = false
	c.mu.Unlock()

	c.emit(domain.EventProcessStopped, nil, &domain.ProcessStoppedPayload{ExitCode: exitCodeOf(cmd.ProcessState.ExitCode()), Reason: "stopped"}, nil, nil)
	c.stopHealthWatch()
	return true, nil
}

func exitCodeOf(v interface{}) int {
	switch t := v.(type) {
	case nil:
		return 0
	case int:
		return t
	case error:
		var exitErr *exec.ExitError
		if errors.As(t, &exitErr) {
			return exitErr.ExitCode()
		}
		return 1
	default:
		return 1
	}
}

// Restart stops the child (if running) and starts it again after
// RestartDelay, incrementing RestartCount.
func (c *Controller) Restart() (*domain.ProcessDescriptor, error) {
	c.mu.Lock()
	running := c.descriptor.State != domain.StateStopped
	delay := c.cfg.RestartDelay
	c.mu.Unlock()

	if running {
		if _, err := c.Stop(false); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	c.descriptor.RestartCount++
	c.mu.Unlock()

	if delay > 0 {
		<-c.clk.After(delay)
	}
	return c.Start(context.Background())
}

// startHealthWatch begins the periodic liveness check of spec.md §4.8. A
// no-op when HealthCheckInterval <= 0.
func (c *Controller) startHealthWatch() {
	if c.cfg.HealthCheckInterval <= 0 {
		return
	}
	c.mu.Lock()
	c.healthTimer = c.clk.AfterFunc(c.cfg.HealthCheckInterval, c.checkHealth)
	c.mu.Unlock()
}

func (c *Controller) checkHealth() {
	c.mu.Lock()
	if c.descriptor.State != domain.StateRunning {
		c.mu.Unlock()
		return
	}
	idle := c.clk.Now().Sub(c.lastActivity)
	threshold := 2 * c.cfg.HealthCheckInterval
	c.mu.Unlock()

	if idle > threshold {
		c.logger.Warn("lifecycle: process unresponsive", zap.String("processId", c.processID), zap.Duration("idle", idle))
	}

	c.mu.Lock()
	if c.descriptor.State == domain.StateRunning {
		c.healthTimer = c.clk.AfterFunc(c.cfg.HealthCheckInterval, c.checkHealth)
	}
	c.mu.Unlock()
}

func (c *Controller) stopHealthWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.healthTimer != nil {
		c.healthTimer.Stop()
		c.healthTimer = nil
	}
}

// Cleanup cancels all pending timers. Safe to call regardless of state.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restartTimer != nil {
		c.restartTimer.Stop()
	}
	if c.healthTimer != nil {
		c.healthTimer.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Controller) emit(kind domain.EventKind, started *domain.ProcessStartedPayload, stopped *domain.ProcessStoppedPayload, crashed *domain.ProcessCrashedPayload, errPayload *domain.ErrorDetectedPayload) {
	if c.onEvent == nil {
		return
	}
	c.onEvent(domain.Event{
		Kind:       kind,
		ProcessID:  c.processID,
		InstanceID: c.instanceID,
		Timestamp:  c.clk.Now(),
		Started:    started,
		Stopped:    stopped,
		Crashed:    crashed,
		Error:      errPayload,
	})
}

// softSignal is the soft termination signal sent on a non-forced Stop(),
// matching the teacher's choice of SIGTERM/SIGINT for graceful shutdown.
func softSignal() syscall.Signal {
	return syscall.SIGTERM
}

// ErrorHash computes the normative event error hash: SHA-256 of
// "<message>|<sourceFile>", first 16 hex characters (spec.md §4.8).
func ErrorHash(message, sourceFile string) string {
	sum := sha256.Sum256([]byte(message + "|" + sourceFile))
	return hex.EncodeToString(sum[:])[:16]
}
