package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the run-history store.
//
// Driver values:
//   - "file": dependency-free file backend (append-only jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one completed harness run.
// Keep it compact and schema-stable.
type RunRecord struct {
	ID           string
	StartedAt    time.Time
	DurationMS   int64
	PlanDigest   string
	SnapshotMode string
	Total        int
	Passed       int
	Failed       int
	// FailuresJSON carries the failed test names and channels, already
	// marshalled, so both backends store it opaquely.
	FailuresJSON string
}
