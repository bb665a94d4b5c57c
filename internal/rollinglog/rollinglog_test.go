package rollinglog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendWritesLine(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "inst-1", Options{})

	l.Append("hello world", "stdout")

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[stdout] hello world")
}

func TestAppendIsFIFO(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "inst-1", Options{})

	l.Append("first", "stdout")
	l.Append("second", "stdout")
	l.Append("third", "stdout")

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "first")
	assert.Contains(t, lines[1], "second")
	assert.Contains(t, lines[2], "third")
}

func TestDrainAndResetAtomicity(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "inst-1", Options{})

	l.Append("before drain", "stdout")
	drained := l.DrainAndReset()
	assert.Contains(t, drained, "before drain")

	l.Append("after drain", "stdout")
	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "after drain")
	assert.NotContains(t, string(data), "before drain")
}

func TestDrainAndResetMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "inst-1", Options{})
	assert.Equal(t, "", l.DrainAndReset())
}

func TestTrimRewritesToTailFraction(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "inst-1", Options{MaxBytes: 100, MaxLines: 10})

	// Each appended line is about 63 bytes, so any two exceed the 100-byte
	// bound, forcing a trim to at most floor(0.7*10) = 7 lines on every
	// append past the threshold.
	for i := 0; i < 20; i++ {
		l.Append(strings.Repeat("x", 20), "stdout")
	}

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.LessOrEqual(t, len(lines), 7)
}

func TestCleanupRemovesFile(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "inst-1", Options{})
	l.Append("x", "stdout")

	l.Cleanup()
	_, err := os.Stat(l.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestPathNaming(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "my-instance", Options{})
	assert.Equal(t, filepath.Join(dir, "my-instance-process.log"), l.Path())
}
