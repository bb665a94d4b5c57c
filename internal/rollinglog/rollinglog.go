// Package rollinglog implements RollingLog (spec.md §4.4, C4): a single
// append-only file per instanceId with size/line-bound trimming and an
// atomic drain-and-reset. Grounded on the teacher's internal/cli.rotation
// (bufio.Writer over an *os.File, directory creation, explicit Flush/Close)
// generalized from per-session output rotation to a single rolling file per
// instance with a rename-based drain protocol.
package rollinglog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxBytes = 1 << 20 // 1 MiB
	defaultMaxLines = 1000
	trimByteFloor   = 50_000
	trimFraction    = 0.7
)

// Log is a single rolling log file keyed by instanceId.
type Log struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	maxLines int
	logger   *zap.Logger
}

// Options configures trimming thresholds; zero values take spec defaults.
type Options struct {
	MaxBytes int64
	MaxLines int
	Logger   *zap.Logger
}

// New creates (or opens) the rolling log file for instanceId under dataDir.
func New(dataDir, instanceID string, opts Options) *Log {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.MaxLines <= 0 {
		opts.MaxLines = defaultMaxLines
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Log{
		path:     filepath.Join(dataDir, fmt.Sprintf("%s-process.log", instanceID)),
		maxBytes: opts.MaxBytes,
		maxLines: opts.MaxLines,
		logger:   opts.Logger,
	}
}

// Path returns the backing file path.
func (l *Log) Path() string { return l.path }

// Append writes one line "[<ISO-8601>] [<stream>] <content>\n", then
// re-evaluates trimming. Failures are swallowed (logged at warn), per
// spec.md §4.4/§7 — they never propagate to the caller.
func (l *Log) Append(content, stream string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		l.logger.Warn("rollinglog: mkdir failed", zap.Error(err))
		return
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Warn("rollinglog: open for append failed", zap.Error(err))
		return
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] [%s] %s\n", time.Now().UTC().Format(time.RFC3339Nano), stream, content)
	if _, err := f.WriteString(line); err != nil {
		l.logger.Warn("rollinglog: write failed", zap.Error(err))
		return
	}

	l.trimLocked()
}

// trimLocked rewrites the file to its last ⌊trimFraction·maxLines⌋ lines when
// its size exceeds maxBytes, or when it is over trimByteFloor bytes and its
// line count exceeds maxLines, per spec.md §4.4. Caller holds l.mu.
func (l *Log) trimLocked() {
	info, err := os.Stat(l.path)
	if err != nil {
		return
	}
	size := info.Size()

	overBytes := size > l.maxBytes
	lineCount := -1
	if size > trimByteFloor {
		lineCount = l.countLinesLocked()
		overBytes = overBytes || lineCount > l.maxLines
	}
	if !overBytes {
		return
	}

	keep := int(float64(l.maxLines) * trimFraction)
	tail, err := l.tailLinesLocked(keep)
	if err != nil {
		l.logger.Warn("rollinglog: trim read failed", zap.Error(err))
		return
	}

	tmp := l.path + ".trim.tmp"
	if err := os.WriteFile(tmp, []byte(tail), 0o644); err != nil {
		l.logger.Warn("rollinglog: trim write failed", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, l.path); err != nil {
		l.logger.Warn("rollinglog: trim rename failed", zap.Error(err))
		_ = os.Remove(tmp)
	}
}

func (l *Log) countLinesLocked() int {
	f, err := os.Open(l.path)
	if err != nil {
		return 0
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		n++
	}
	return n
}

func (l *Log) tailLinesLocked(n int) (string, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var all []string
	for sc.Scan() {
		all = append(all, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	out := ""
	for _, line := range all {
		out += line + "\n"
	}
	return out, nil
}

// DrainAndReset atomically returns the entire current contents and leaves an
// empty file in place, via rename-to-temp then create-empty (spec.md §4.4).
// A missing file is not an error; it returns "".
func (l *Log) DrainAndReset() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	tmp := l.path + ".drain.tmp"
	if err := os.Rename(l.path, tmp); err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		l.logger.Warn("rollinglog: drain rename failed", zap.Error(err))
		return ""
	}

	// Recreate an empty file immediately so concurrent appenders never
	// observe a missing target for longer than this critical section.
	if f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644); err == nil {
		f.Close()
	} else {
		l.logger.Warn("rollinglog: recreate after drain failed", zap.Error(err))
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		l.logger.Warn("rollinglog: drain read failed", zap.Error(err))
		data = nil
	}
	_ = os.Remove(tmp)
	return string(data)
}

// Cleanup best-effort deletes the backing file.
func (l *Log) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = os.Remove(l.path)
}
