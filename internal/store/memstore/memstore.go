// Package memstore is an in-memory ErrorStore, used as the fast unit-test
// path and grounded on the teacher's output.PatternStore — a mutex-guarded
// map keyed by identity, generalized from persisted pattern counts to
// persisted StoredError records keyed by instanceId.
package memstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/vedranburojevic/devsupervisor/internal/domain"
)

// Store is a process-local, mutex-guarded ErrorStore.
type Store struct {
	mu   sync.RWMutex
	byID map[string]map[string]*domain.StoredError // instanceID -> hash -> record
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{byID: make(map[string]map[string]*domain.StoredError)}
}

// Hash computes the normative error hash: SHA-256 of "<message>|<sourceFile>",
// first 16 hex characters (spec.md §4.8).
func Hash(message, sourceFile string) string {
	sum := sha256.Sum256([]byte(message + "|" + sourceFile))
	return hex.EncodeToString(sum[:])[:16]
}

func (s *Store) StoreError(_ context.Context, instanceID, _ string, e domain.DetectedError) (domain.StoredError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := Hash(e.Message, e.SourceFile)
	bucket, ok := s.byID[instanceID]
	if !ok {
		bucket = make(map[string]*domain.StoredError)
		s.byID[instanceID] = bucket
	}

	now := time.Now()
	if existing, ok := bucket[hash]; ok {
		existing.LastOccurrence = now
		existing.OccurrenceCount++
		existing.DetectedError = e
		cp := *existing
		return cp, nil
	}

	rec := &domain.StoredError{
		DetectedError:   e,
		Hash:            hash,
		FirstOccurrence: now,
		LastOccurrence:  now,
		OccurrenceCount: 1,
	}
	bucket[hash] = rec
	return *rec, nil
}

func (s *Store) ListErrors(_ context.Context, instanceID string) ([]domain.StoredError, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.byID[instanceID]
	out := make([]domain.StoredError, 0, len(bucket))
	for _, rec := range bucket {
		out = append(out, *rec)
	}
	return out, nil
}

func (s *Store) ClearErrors(_ context.Context, instanceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.byID[instanceID])
	delete(s.byID, instanceID)
	return n, nil
}
