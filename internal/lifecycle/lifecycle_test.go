package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vedranburojevic/devsupervisor/internal/domain"
)

// eventRecorder collects emitted events for assertions without racing the
// Controller's background goroutines.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) record(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) countOf(kind domain.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (c *Controller) stateLocked() domain.ProcessState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.descriptor.State
}

func (c *Controller) restartCountLocked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.descriptor.RestartCount
}

func (c *Controller) hasRestartTimerLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restartTimer != nil
}

func TestStartTransitionsStoppedToRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &eventRecorder{}
	c := New("proc-1", "inst-1", Config{Command: "sh", Args: []string{"-c", "sleep 5"}}, clock.New(), nil, nil, rec.record)

	desc, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateRunning, desc.State)
	assert.Greater(t, desc.PID, 0)

	ok, err := c.Stop(true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.StateStopped, c.stateLocked())
	c.Cleanup()
}

func TestStartWhileRunningReturnsErrAlreadyRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New("proc-1", "inst-1", Config{Command: "sh", Args: []string{"-c", "sleep 5"}}, clock.New(), nil, nil, nil)
	_, err := c.Start(context.Background())
	require.NoError(t, err)
	defer func() {
		_, _ = c.Stop(true)
		c.Cleanup()
	}()

	_, err = c.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStopWhenNotRunningReturnsErrNotRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New("proc-1", "inst-1", Config{Command: "sh", Args: []string{"-c", "sleep 5"}}, clock.New(), nil, nil, nil)
	_, err := c.Stop(false)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestStopForceKillsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New("proc-1", "inst-1", Config{Command: "sh", Args: []string{"-c", "trap '' TERM; sleep 5"}}, clock.New(), nil, nil, nil)
	_, err := c.Start(context.Background())
	require.NoError(t, err)

	ok, err := c.Stop(true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.StateStopped, c.stateLocked())
	c.Cleanup()
}

func TestStopSoftEscalatesToHardKillAfterTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := clock.NewMock()
	c := New("proc-1", "inst-1", Config{
		Command: "sh", Args: []string{"-c", "trap '' TERM; sleep 30"},
		KillTimeout: 50 * time.Millisecond,
	}, clk, nil, nil, nil)

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	var stopErr error
	go func() {
		_, stopErr = c.Stop(false)
		close(done)
	}()

	// Give the Stop goroutine time to send the soft signal and register its
	// wait on c.clk.After before advancing the mock clock past KillTimeout.
	time.Sleep(50 * time.Millisecond)
	clk.Add(50 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the kill timeout elapsed")
	}
	require.NoError(t, stopErr)
	assert.Equal(t, domain.StateStopped, c.stateLocked())
	c.Cleanup()
}

func TestProcessExitZeroTransitionsToStopped(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &eventRecorder{}
	c := New("proc-1", "inst-1", Config{Command: "sh", Args: []string{"-c", "exit 0"}}, clock.New(), nil, nil, rec.record)

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return c.stateLocked() == domain.StateStopped }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.countOf(domain.EventProcessStopped))
	c.Cleanup()
}

func TestProcessCrashWithRestartDisabledGoesToFailed(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &eventRecorder{}
	c := New("proc-1", "inst-1", Config{
		Command: "sh", Args: []string{"-c", "exit 1"}, RestartOnCrash: false,
	}, clock.New(), nil, nil, rec.record)

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return c.stateLocked() == domain.StateFailed }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.countOf(domain.EventProcessCrashed))
	c.Cleanup()
}

func TestProcessCrashRestartsUntilBudgetExhausted(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := clock.NewMock()
	rec := &eventRecorder{}
	c := New("proc-1", "inst-1", Config{
		Command: "sh", Args: []string{"-c", "exit 1"},
		RestartOnCrash: true, MaxRestarts: 2, RestartDelay: 10 * time.Millisecond,
	}, clk, nil, nil, rec.record)

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	for want := 1; want <= 2; want++ {
		require.Eventually(t, func() bool {
			return c.restartCountLocked() == want && c.hasRestartTimerLocked()
		}, 2*time.Second, 5*time.Millisecond, "waiting for restart #%d to be scheduled", want)
		clk.Add(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return c.stateLocked() == domain.StateFailed }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, c.restartCountLocked())
	assert.Equal(t, 3, rec.countOf(domain.EventProcessCrashed))
	c.Cleanup()
}

func TestNotifyFatalErrorTriggersCrashPolicy(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &eventRecorder{}
	c := New("proc-1", "inst-1", Config{
		Command: "sh", Args: []string{"-c", "sleep 5"}, RestartOnCrash: false,
	}, clock.New(), nil, nil, rec.record)

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	c.NotifyFatalError()

	require.Eventually(t, func() bool { return c.stateLocked() == domain.StateFailed }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, rec.countOf(domain.EventProcessCrashed))

	crashedPayload := findCrashedPayload(rec)
	require.NotNil(t, crashedPayload)
	assert.Equal(t, "fatal-error", crashedPayload.Signal)
	assert.Equal(t, -1, crashedPayload.ExitCode)

	c.Cleanup()
}

func findCrashedPayload(rec *eventRecorder) *domain.ProcessCrashedPayload {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, ev := range rec.events {
		if ev.Kind == domain.EventProcessCrashed {
			return ev.Crashed
		}
	}
	return nil
}

func TestRestartStopsThenStartsAndIncrementsCount(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New("proc-1", "inst-1", Config{Command: "sh", Args: []string{"-c", "sleep 5"}}, clock.New(), nil, nil, nil)
	_, err := c.Start(context.Background())
	require.NoError(t, err)
	defer func() {
		_, _ = c.Stop(true)
		c.Cleanup()
	}()

	desc, err := c.Restart()
	require.NoError(t, err)
	assert.Equal(t, domain.StateRunning, desc.State)
	assert.Equal(t, 1, c.restartCountLocked())
}

func TestErrorHashIsDeterministicAndSensitiveToSourceFile(t *testing.T) {
	h1 := ErrorHash("boom", "a.js")
	h2 := ErrorHash("boom", "a.js")
	h3 := ErrorHash("boom", "b.js")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 16)
}

func TestConfigWithDefaultsAppliesKillTimeout(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 10*time.Second, cfg.KillTimeout)

	cfg2 := Config{KillTimeout: 2 * time.Second}.withDefaults()
	assert.Equal(t, 2*time.Second, cfg2.KillTimeout)
}

func TestExitCodeOf(t *testing.T) {
	assert.Equal(t, 0, exitCodeOf(nil))
	assert.Equal(t, 3, exitCodeOf(3))
	assert.Equal(t, 1, exitCodeOf(errors.New("boom")))
}
