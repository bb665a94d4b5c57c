package linebuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedranburojevic/devsupervisor/internal/domain"
)

func TestNew(t *testing.T) {
	t.Run("uses default size for zero", func(t *testing.T) {
		b := New(0)
		require.NotNil(t, b)
		for i := 0; i < 150; i++ {
			b.Add(domain.LogLine{Content: "x"})
		}
		assert.Equal(t, 100, b.Size())
	})

	t.Run("uses default size for negative", func(t *testing.T) {
		b := New(-5)
		for i := 0; i < 150; i++ {
			b.Add(domain.LogLine{Content: "x"})
		}
		assert.Equal(t, 100, b.Size())
	})
}

func TestAddOverwritesOldest(t *testing.T) {
	b := New(3)
	b.Add(domain.LogLine{Content: "1"})
	b.Add(domain.LogLine{Content: "2"})
	b.Add(domain.LogLine{Content: "3"})
	assert.Equal(t, 3, b.Size())

	b.Add(domain.LogLine{Content: "4"})
	assert.Equal(t, 3, b.Size())

	lines := b.Recent(0)
	require.Len(t, lines, 3)
	assert.Equal(t, "2", lines[0].Content)
	assert.Equal(t, "3", lines[1].Content)
	assert.Equal(t, "4", lines[2].Content)
}

func TestRecent(t *testing.T) {
	b := New(10)
	for _, c := range []string{"a", "b", "c", "d", "e"} {
		b.Add(domain.LogLine{Content: c})
	}

	t.Run("n greater than size returns all", func(t *testing.T) {
		lines := b.Recent(100)
		assert.Len(t, lines, 5)
	})

	t.Run("n within size returns last n in order", func(t *testing.T) {
		lines := b.Recent(3)
		require.Len(t, lines, 3)
		assert.Equal(t, "c", lines[0].Content)
		assert.Equal(t, "d", lines[1].Content)
		assert.Equal(t, "e", lines[2].Content)
	})

	t.Run("n <= 0 returns everything", func(t *testing.T) {
		lines := b.Recent(0)
		assert.Len(t, lines, 5)
	})
}

func TestRecentAfterWrap(t *testing.T) {
	b := New(3)
	for _, c := range []string{"1", "2", "3", "4", "5"} {
		b.Add(domain.LogLine{Content: c})
	}
	lines := b.Recent(2)
	require.Len(t, lines, 2)
	assert.Equal(t, "4", lines[0].Content)
	assert.Equal(t, "5", lines[1].Content)
}

func TestClear(t *testing.T) {
	b := New(10)
	b.Add(domain.LogLine{Content: "x"})
	b.Add(domain.LogLine{Content: "y"})
	assert.Equal(t, 2, b.Size())

	b.Clear()
	assert.Equal(t, 0, b.Size())
	assert.Empty(t, b.Recent(0))
}
