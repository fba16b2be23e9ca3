package captions

import "time"

// Writer is the interface for writing caption files
type Writer interface {
	Write(path string, captions *File) error
}

// Line represents a single caption cue
type Line struct {
	Index     int           // cue index
	StartTime time.Duration // start time
	EndTime   time.Duration // end time
	Text      string        // cue text
}

// File represents a caption file
type File struct {
	Lines    []Line
	Language string
	Format   string // e.g. SRT, VTT etc
}
