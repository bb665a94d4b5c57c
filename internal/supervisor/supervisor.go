// Package supervisor implements Supervisor (spec.md §4.9, C9): the public
// facade wiring ChunkAssembler, ErrorDetector, Deduplicator, ErrorStore,
// LineBuffer, RollingLog and LifecycleController into the single data flow
// of spec.md §2. Grounded on the teacher's internal/cli command structs
// (one small struct per verb holding its collaborators, a Globals-style
// shared context) generalized into one long-lived facade per supervised
// process.
package supervisor

import (
	"context"
	"strings"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/vedranburojevic/devsupervisor/internal/chunk"
	"github.com/vedranburojevic/devsupervisor/internal/classify"
	"github.com/vedranburojevic/devsupervisor/internal/config"
	"github.com/vedranburojevic/devsupervisor/internal/dedup"
	"github.com/vedranburojevic/devsupervisor/internal/detector"
	"github.com/vedranburojevic/devsupervisor/internal/domain"
	"github.com/vedranburojevic/devsupervisor/internal/lifecycle"
	"github.com/vedranburojevic/devsupervisor/internal/linebuffer"
	"github.com/vedranburojevic/devsupervisor/internal/pattern"
	"github.com/vedranburojevic/devsupervisor/internal/rollinglog"
	"github.com/vedranburojevic/devsupervisor/internal/store"
)

// Supervisor is the facade described in spec.md §4.9.
type Supervisor struct {
	processID  string
	instanceID string
	cfg        *config.Config
	logger     *zap.Logger
	clk        clock.Clock

	controller *lifecycle.Controller
	assembler  *chunk.Assembler
	detector   *detector.Detector
	dedup      *dedup.Deduplicator
	errStore   store.ErrorStore
	lines      *linebuffer.Buffer
	rlog       *rollinglog.Log

	listeners []domain.Listener
}

// Options configures a new Supervisor.
type Options struct {
	ProcessID  string
	InstanceID string
	Command    string
	Args       []string
	Cwd        string
	DataDir    string
	Cfg        *config.Config
	ErrorStore store.ErrorStore
	Catalogue  *pattern.Catalogue
	Logger     *zap.Logger
	Clock      clock.Clock
}

// New wires up one Supervisor for a single supervised child, per spec.md
// §2's data flow: ChunkAssembler -> ErrorDetector -> Deduplicator ->
// ErrorStore -> events, with LineBuffer/RollingLog fed per line.
func New(opts Options) *Supervisor {
	cfg := opts.Cfg
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	catalogue := opts.Catalogue
	if catalogue == nil {
		catalogue = pattern.Default()
	}

	s := &Supervisor{
		processID:  opts.ProcessID,
		instanceID: opts.InstanceID,
		cfg:        cfg,
		logger:     logger,
		clk:        clk,
		detector:   detector.New(catalogue),
		errStore:   opts.ErrorStore,
		dedup:      dedup.New(opts.ErrorStore, cfg.DedupCacheSize),
		lines:      linebuffer.New(cfg.LineBufferSize),
		rlog: rollinglog.New(opts.DataDir, opts.InstanceID, rollinglog.Options{
			MaxBytes: cfg.RollingLogMaxBytes,
			MaxLines: cfg.RollingLogMaxLines,
			Logger:   logger,
		}),
	}

	s.assembler = chunk.New(clk, cfg.ChunkAssemblyIdle, func(text string) {
		s.onChunk(domain.StreamStderr, text)
	})

	s.controller = lifecycle.New(opts.ProcessID, opts.InstanceID, lifecycle.Config{
		Command:             opts.Command,
		Args:                opts.Args,
		Cwd:                 opts.Cwd,
		MaxRestarts:         cfg.MaxRestarts,
		RestartOnCrash:      cfg.RestartOnCrash,
		RestartDelay:        cfg.RestartDelay,
		KillTimeout:         cfg.KillTimeout,
		HealthCheckInterval: cfg.HealthCheckInterval,
	}, clk, logger, s.onLine, s.onEvent)

	return s
}

// AddListener registers a listener for emitted events (spec.md §4.8).
func (s *Supervisor) AddListener(l domain.Listener) {
	s.listeners = append(s.listeners, l)
}

func (s *Supervisor) onEvent(ev domain.Event) {
	for _, l := range s.listeners {
		l(ev)
	}
}

// onLine is the LineHandler wired into the LifecycleController: every
// storable line (classify.IsStorable) from either stream is delivered,
// trimmed, to LineBuffer/RollingLog individually, while stderr is
// additionally routed untrimmed through ChunkAssembler for multi-line block
// detection (spec.md §4.6). Lines that are not storable are dropped here and
// never reach the detector.
func (s *Supervisor) onLine(stream domain.Stream, line string) {
	if !classify.IsStorable(line) {
		return
	}
	content := strings.TrimSpace(line)

	s.lines.Add(domain.LogLine{
		Content:   content,
		Timestamp: s.clk.Now(),
		Stream:    stream,
		ProcessID: s.processID,
	})
	s.rlog.Append(content, string(stream))

	switch stream {
	case domain.StreamStderr:
		s.assembler.Write(line)
	case domain.StreamStdout:
		s.onChunk(domain.StreamStdout, line)
	}
}

// onChunk runs a fully assembled (or pass-through stdout) chunk through
// ErrorDetector -> Deduplicator -> ErrorStore -> error_detected event,
// triggering the lifecycle crash-restart path on a fatal detection.
func (s *Supervisor) onChunk(stream domain.Stream, chunkText string) {
	detected, ok := s.detector.Detect(chunkText, map[string]any{"stream": string(stream)})
	if !ok || !detected.Valid() {
		return
	}

	ctx := context.Background()
	if dup, err := s.dedup.IsDuplicate(ctx, s.instanceID, *detected); err != nil {
		s.logger.Warn("supervisor: dedup check failed", zap.Error(err))
	} else if dup {
		return
	}

	rec, err := s.errStore.StoreError(ctx, s.instanceID, s.processID, *detected)
	if err != nil {
		s.logger.Warn("supervisor: store error failed", zap.Error(err))
		return
	}
	s.dedup.Remember(s.instanceID, rec)

	s.onEvent(domain.Event{
		Kind:       domain.EventErrorDetected,
		ProcessID:  s.processID,
		InstanceID: s.instanceID,
		Timestamp:  s.clk.Now(),
		Error: &domain.ErrorDetectedPayload{
			Category:   detected.Category,
			Severity:   detected.Severity,
			Message:    detected.Message,
			Hash:       lifecycle.ErrorHash(detected.Message, detected.SourceFile),
			IsNewError: rec.OccurrenceCount == 1,
		},
	})

	if detected.Severity == domain.SeverityFatal {
		s.controller.NotifyFatalError()
	}
}

// Start spawns the child process.
func (s *Supervisor) Start(ctx context.Context) (*domain.ProcessDescriptor, error) {
	return s.controller.Start(ctx)
}

// Stop terminates the child process, soft-then-hard unless force is set.
func (s *Supervisor) Stop(force bool) (bool, error) {
	return s.controller.Stop(force)
}

// Restart stops then starts the child process, honouring restartDelay.
func (s *Supervisor) Restart() (*domain.ProcessDescriptor, error) {
	return s.controller.Restart()
}

// Describe returns the current ProcessDescriptor snapshot.
func (s *Supervisor) Describe() *domain.ProcessDescriptor {
	return s.controller.Describe()
}

// RecentLines returns up to n buffered lines (spec.md §4.5).
func (s *Supervisor) RecentLines(n int) []domain.LogLine {
	return s.lines.Recent(n)
}

// DrainLogFile atomically drains and resets the rolling log file.
func (s *Supervisor) DrainLogFile() string {
	return s.rlog.DrainAndReset()
}

// Stats returns the snapshot described in spec.md §4.9.
func (s *Supervisor) Stats() domain.Stats {
	desc := s.Describe()
	return domain.Stats{
		Descriptor:   desc,
		BufferSize:   s.lines.Size(),
		RestartCount: desc.RestartCount,
		LastActivity: s.controller.LastActivity(),
	}
}

// Cleanup cancels all timers, clears the line buffer, and deletes the
// rolling-log file (spec.md §4.9).
func (s *Supervisor) Cleanup() {
	s.controller.Cleanup()
	s.assembler.Stop()
	s.lines.Clear()
	s.rlog.Cleanup()
	s.dedup.Forget(s.instanceID)
}
