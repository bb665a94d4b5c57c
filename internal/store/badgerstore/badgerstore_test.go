package badgerstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedranburojevic/devsupervisor/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreErrorFirstOccurrence(t *testing.T) {
	s := openTestStore(t)
	rec, err := s.StoreError(context.Background(), "inst-1", "proc-1", domain.DetectedError{
		Message: "boom", SourceFile: "a.js",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.OccurrenceCount)
	assert.Equal(t, rec.FirstOccurrence, rec.LastOccurrence)
}

func TestStoreErrorIncrementsOccurrenceCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := domain.DetectedError{Message: "boom", SourceFile: "a.js"}

	_, err := s.StoreError(ctx, "inst-1", "proc-1", e)
	require.NoError(t, err)
	rec, err := s.StoreError(ctx, "inst-1", "proc-1", e)
	require.NoError(t, err)

	assert.Equal(t, 2, rec.OccurrenceCount)
}

func TestListErrorsReturnsAllForInstance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.StoreError(ctx, "inst-1", "proc-1", domain.DetectedError{Message: "a", SourceFile: "x.js"})
	require.NoError(t, err)
	_, err = s.StoreError(ctx, "inst-1", "proc-1", domain.DetectedError{Message: "b", SourceFile: "y.js"})
	require.NoError(t, err)
	_, err = s.StoreError(ctx, "inst-2", "proc-1", domain.DetectedError{Message: "c", SourceFile: "z.js"})
	require.NoError(t, err)

	list, err := s.ListErrors(ctx, "inst-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestClearErrorsRemovesOnlyThatInstance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.StoreError(ctx, "inst-1", "proc-1", domain.DetectedError{Message: "a", SourceFile: "x.js"})
	require.NoError(t, err)
	_, err = s.StoreError(ctx, "inst-2", "proc-1", domain.DetectedError{Message: "b", SourceFile: "y.js"})
	require.NoError(t, err)

	n, err := s.ClearErrors(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := s.ListErrors(ctx, "inst-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	list2, err := s.ListErrors(ctx, "inst-2")
	require.NoError(t, err)
	assert.Len(t, list2, 1)
}

func TestStoreErrorSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.StoreError(context.Background(), "inst-1", "proc-1", domain.DetectedError{Message: "persisted", SourceFile: "a.js"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	list, err := s2.ListErrors(context.Background(), "inst-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "persisted", list[0].Message)
}
