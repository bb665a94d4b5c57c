// Package dedup implements the Deduplicator (spec.md §4.7, C7): exact,
// rapid-repeat, and semantic duplicate checks against previously stored
// errors, plus a bounded recent-window cache per instanceId so the common
// case never has to list the entire ErrorStore. The cache is the
// supplemented answer to spec.md §9's deduplication open question, built
// in the shape of the teacher's internal/simulator.RingBuffer (bounded,
// overwrite-oldest) generalized from log lines to recent StoredError
// snapshots.
package dedup

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/vedranburojevic/devsupervisor/internal/domain"
	"github.com/vedranburojevic/devsupervisor/internal/store"
)

const (
	rapidRepeatWindow  = 5 * time.Second
	rapidJaccardMin    = 0.80
	semanticJaccardMin = 0.85
	defaultCacheSize   = 200
)

// Deduplicator decides whether a freshly detected error duplicates a
// recently persisted one, per spec.md §4.7.
type Deduplicator struct {
	st store.ErrorStore

	mu        sync.Mutex
	cacheSize int
	recent    map[string][]domain.StoredError // instanceId -> bounded recent window
}

// New creates a Deduplicator backed by st, caching up to cacheSize recent
// records per instanceId (0 uses the default of 200).
func New(st store.ErrorStore, cacheSize int) *Deduplicator {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	return &Deduplicator{st: st, cacheSize: cacheSize, recent: make(map[string][]domain.StoredError)}
}

// IsDuplicate reports whether e duplicates any error already stored for
// instanceId, per the three rules of spec.md §4.7. It prefers the bounded
// in-process cache and falls back to ErrorStore.ListErrors when the cache
// is empty (e.g. after a process restart with a persistent store).
func (d *Deduplicator) IsDuplicate(ctx context.Context, instanceID string, e domain.DetectedError) (bool, error) {
	existing, err := d.candidates(ctx, instanceID)
	if err != nil {
		return false, err
	}

	trimmedMsg := strings.TrimSpace(e.Message)
	now := time.Now()
	sig := signature(e.Message)

	for _, prev := range existing {
		if strings.TrimSpace(prev.Message) == trimmedMsg && prev.SourceFile == e.SourceFile {
			return true, nil
		}

		if prev.SourceFile == e.SourceFile && prev.LineNumber == e.LineNumber &&
			now.Sub(prev.LastOccurrence) <= rapidRepeatWindow &&
			jaccard(prev.Message, e.Message) > rapidJaccardMin {
			return true, nil
		}

		if prev.Category == e.Category && prev.Severity == e.Severity {
			prevSig := signature(prev.Message)
			if (sig != "" && sig == prevSig) || jaccard(prev.Message, e.Message) > semanticJaccardMin {
				return true, nil
			}
		}
	}
	return false, nil
}

// Remember updates the bounded recent-window cache after a non-duplicate
// error has been persisted, so subsequent lookups for the same instanceId
// stay O(1) amortised instead of re-listing the store.
func (d *Deduplicator) Remember(instanceID string, rec domain.StoredError) {
	d.mu.Lock()
	defer d.mu.Unlock()

	window := d.recent[instanceID]
	window = append(window, rec)
	if len(window) > d.cacheSize {
		window = window[len(window)-d.cacheSize:]
	}
	d.recent[instanceID] = window
}

// Forget drops the cached window for instanceId (used on cleanup/restart).
func (d *Deduplicator) Forget(instanceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.recent, instanceID)
}

func (d *Deduplicator) candidates(ctx context.Context, instanceID string) ([]domain.StoredError, error) {
	d.mu.Lock()
	cached := d.recent[instanceID]
	d.mu.Unlock()
	if len(cached) > 0 {
		return cached, nil
	}
	return d.st.ListErrors(ctx, instanceID)
}

// signatureRules are evaluated in order; the first match wins (spec.md
// §4.7).
var signatureRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\w+Error):\s*\S+\s+(is not defined|is not a function|cannot read|cannot access)`),
	regexp.MustCompile(`\d{3}\s+\S+`),
	regexp.MustCompile(`(?i)cannot resolve|module not found|failed to resolve`),
	regexp.MustCompile(`(?i)econnrefused|enotfound|etimedout|network error`),
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// signature extracts a normalised error signature from message, or "" if
// none of the catalogued signature rules match.
func signature(message string) string {
	for _, re := range signatureRules {
		if m := re.FindString(message); m != "" {
			return nonAlphanumeric.ReplaceAllString(strings.ToLower(m), "_")
		}
	}
	return ""
}

// jaccard computes word-overlap similarity between two messages: split on
// whitespace, lowercased, per spec.md §4.7.
func jaccard(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}

	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
