// Package chunk implements ChunkAssembler (spec.md §4.6, C6): coalescing
// stderr fragments into multi-line blocks via a short idle timeout, timed
// with a benbjohnson/clock.Clock so tests can drive it deterministically
// instead of sleeping, the same discipline the teacher applies to its
// summary/heartbeat/cutoff/idle timers in internal/cli/tail.go.
package chunk

import (
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const defaultIdle = 100 * time.Millisecond

// Assembler coalesces stderr writes into a single buffer, flushing it to
// emit after a short idle period with no further writes.
type Assembler struct {
	mu      sync.Mutex
	clk     clock.Clock
	idle    time.Duration
	emit    func(string)
	buf     strings.Builder
	timer   *clock.Timer
	stopped bool
}

// New creates an Assembler that calls emit with the accumulated, trimmed
// buffer once idle has elapsed since the last write. idle <= 0 uses the
// spec default of 100ms.
func New(clk clock.Clock, idle time.Duration, emit func(string)) *Assembler {
	if clk == nil {
		clk = clock.New()
	}
	if idle <= 0 {
		idle = defaultIdle
	}
	return &Assembler{clk: clk, idle: idle, emit: emit}
}

// Write appends text to the pending buffer (newline-prefixed when the
// buffer is already non-empty) and resets the idle timer.
func (a *Assembler) Write(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}

	if a.buf.Len() > 0 {
		a.buf.WriteByte('\n')
	}
	a.buf.WriteString(text)

	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = a.clk.AfterFunc(a.idle, a.flush)
}

// flush emits the accumulated buffer, trimmed, and clears it.
func (a *Assembler) flush() {
	a.mu.Lock()
	content := strings.TrimSpace(a.buf.String())
	a.buf.Reset()
	emit := a.emit
	a.mu.Unlock()

	if content != "" && emit != nil {
		emit(content)
	}
}

// Stop cancels any pending timer and discards buffered content without
// emitting it, per spec.md §5 ("outstanding pending content is discarded on
// cleanup; it need not be emitted").
func (a *Assembler) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.buf.Reset()
}
