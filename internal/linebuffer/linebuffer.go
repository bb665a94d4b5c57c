// Package linebuffer implements a fixed-capacity circular buffer of recent
// log lines (spec.md §4.5, C5). Grounded on the teacher's
// internal/simulator.RingBuffer, generalized from domain.LogEntry to
// domain.LogLine and shrunk to single-Supervisor-owner semantics (no
// internal locking — callers serialize access, as the teacher's
// Streamer serializes access to its own buffer via the outer mutex).
package linebuffer

import "github.com/vedranburojevic/devsupervisor/internal/domain"

const defaultCapacity = 100

// Buffer is a fixed-capacity circular buffer of domain.LogLine.
type Buffer struct {
	lines []domain.LogLine
	cap   int
	head  int
	count int
}

// New creates a buffer with the given capacity (100 if size <= 0).
func New(size int) *Buffer {
	if size <= 0 {
		size = defaultCapacity
	}
	return &Buffer{lines: make([]domain.LogLine, size), cap: size}
}

// Add appends a line, overwriting the oldest entry once the buffer is full.
func (b *Buffer) Add(line domain.LogLine) {
	b.lines[b.head] = line
	b.head = (b.head + 1) % b.cap
	if b.count < b.cap {
		b.count++
	}
}

// Recent returns up to n lines in insertion order (oldest of the requested
// window first). n <= 0 or n > Size() returns everything currently held.
func (b *Buffer) Recent(n int) []domain.LogLine {
	if n <= 0 || n > b.count {
		n = b.count
	}
	result := make([]domain.LogLine, n)
	start := (b.head - n + b.cap) % b.cap
	for i := 0; i < n; i++ {
		result[i] = b.lines[(start+i)%b.cap]
	}
	return result
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.head = 0
	b.count = 0
}

// Size returns the number of lines currently held.
func (b *Buffer) Size() int { return b.count }
