package library

import "time"

// Run is one run directory as the library sees it. Topic, theme and
// durations come from the manifest; directories without one (failed or
// still-running runs) list with directory facts only.
type Run struct {
	ID           string    `json:"id"`
	Topic        string    `json:"topic,omitempty"`
	Theme        string    `json:"theme,omitempty"`
	Dir          string    `json:"dir"`
	FinalPath    string    `json:"final_path,omitempty"`
	HasFinal     bool      `json:"has_final"`
	SizeBytes    int64     `json:"size_bytes"`
	DurationMS   int64     `json:"duration_ms,omitempty"`
	Beats        int       `json:"beats,omitempty"`
	Placeholders int       `json:"placeholders,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
