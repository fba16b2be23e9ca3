package captions

import (
	"fmt"
	"time"
)

// FromNarrations lays one cue per narration back to back, so every cue
// boundary is a cumulative narration duration. This matches the final
// video, whose pacing is driven by the narration clips.
func FromNarrations(texts []string, durations []time.Duration, language string) (*File, error) {
	if len(texts) != len(durations) {
		return nil, fmt.Errorf("got %d texts but %d durations", len(texts), len(durations))
	}

	f := &File{Language: language, Format: "SRT"}
	var at time.Duration
	for i, text := range texts {
		if durations[i] <= 0 {
			return nil, fmt.Errorf("narration %d has non-positive duration %s", i+1, durations[i])
		}
		end := at + durations[i]
		f.Lines = append(f.Lines, Line{
			Index:     i + 1,
			StartTime: at,
			EndTime:   end,
			Text:      text,
		})
		at = end
	}
	return f, nil
}
