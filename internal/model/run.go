package model

import "time"

// RunStatus represents the current state of an archive run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	RunStatusSkipped  RunStatus = "skipped"
)

// Run is one pass of the pipeline over a single archive.
type Run struct {
	ID         string           `json:"id"`
	Archive    string           `json:"archive"`
	Status     RunStatus        `json:"status"`
	Stats      map[string]int64 `json:"stats,omitempty"`
	Error      string           `json:"error,omitempty"`
	Candidates int              `json:"candidates"`
	Matched    int              `json:"matched"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// RunSummary holds the counts reported when a run finishes.
type RunSummary struct {
	Status     RunStatus
	Stats      map[string]int64
	Candidates int
	Matched    int
	Error      string
}
