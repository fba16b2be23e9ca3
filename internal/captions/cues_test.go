package captions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromNarrationsBoundaries(t *testing.T) {
	texts := []string{
		"The deep sea hides most of the planet's living space.",
		"Anglerfish lure prey with a glowing fishing rod.",
		"Whale falls feed entire ecosystems for decades.",
		"We have mapped less of the seafloor than of Mars.",
	}
	durations := []time.Duration{
		3500 * time.Millisecond,
		4 * time.Second,
		2250 * time.Millisecond,
		5 * time.Second,
	}

	f, err := FromNarrations(texts, durations, "en")
	require.NoError(t, err)
	require.Len(t, f.Lines, 4)
	assert.Equal(t, "SRT", f.Format)
	assert.Equal(t, "en", f.Language)

	// Each cue starts where the previous one ended.
	assert.Equal(t, time.Duration(0), f.Lines[0].StartTime)
	for i := 1; i < len(f.Lines); i++ {
		assert.Equal(t, f.Lines[i-1].EndTime, f.Lines[i].StartTime, "cue %d", i+1)
	}
	assert.Equal(t, 14750*time.Millisecond, f.Lines[3].EndTime)

	for i, line := range f.Lines {
		assert.Equal(t, i+1, line.Index)
		assert.Equal(t, texts[i], line.Text)
	}
}

func TestFromNarrationsLengthMismatch(t *testing.T) {
	_, err := FromNarrations([]string{"a", "b"}, []time.Duration{time.Second}, "en")
	require.Error(t, err)
}

func TestFromNarrationsRejectsZeroDuration(t *testing.T) {
	_, err := FromNarrations([]string{"a"}, []time.Duration{0}, "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-positive duration")
}
