package model

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type RunID string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// FileState is a step of the per-file synchronization state machine.
type FileState int

const (
	FileStateDiscovered FileState = iota
	FileStateSkipped
	FileStateFetching
	FileStateExtracting
	FileStateEmbedding
	FileStatePersisting
	FileStateDone
	FileStateFailed
)

var fileStateNames = [...]string{
	"DISCOVERED",
	"SKIPPED",
	"FETCHING",
	"EXTRACTING",
	"EMBEDDING",
	"PERSISTING",
	"DONE",
	"FAILED",
}

func (s FileState) String() string {
	if int(s) < 0 || int(s) >= len(fileStateNames) {
		return "UNKNOWN"
	}
	return fileStateNames[s]
}

// Terminal reports whether no further transition follows s.
func (s FileState) Terminal() bool {
	return s == FileStateSkipped || s == FileStateDone || s == FileStateFailed
}

// FileResult is the outcome of one file in a run.
type FileResult struct {
	FileName string    `json:"file_name"`
	State    FileState `json:"state"`
	// Reached is the last non-terminal state entered before the terminal one.
	Reached FileState `json:"reached"`
	Err     error     `json:"-"`
}

// SyncStats accumulates counts for a single run. Safe for concurrent use by workers.
type SyncStats struct {
	RunID     RunID
	StartTime time.Time
	EndTime   time.Time

	processed atomic.Int64
	skipped   atomic.Int64
	errors    atomic.Int64

	mu      sync.Mutex
	results []FileResult
}

func NewSyncStats() *SyncStats {
	return &SyncStats{
		RunID:     NewRunID(),
		StartTime: time.Now(),
	}
}

// Record counts a terminal file result.
func (s *SyncStats) Record(r FileResult) {
	switch r.State {
	case FileStateDone:
		s.processed.Add(1)
	case FileStateSkipped:
		s.skipped.Add(1)
	case FileStateFailed:
		s.errors.Add(1)
	}

	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
}

func (s *SyncStats) Results() []FileResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FileResult(nil), s.results...)
}

// Finish stamps the end time and returns the terminal summary.
func (s *SyncStats) Finish() *SyncSummary {
	s.EndTime = time.Now()
	return s.Summary()
}

func (s *SyncStats) Summary() *SyncSummary {
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	processed := int(s.processed.Load())
	skipped := int(s.skipped.Load())

	summary := &SyncSummary{
		RunID:      s.RunID,
		Processed:  processed,
		Skipped:    skipped,
		Errors:     int(s.errors.Load()),
		DurationMs: end.Sub(s.StartTime).Milliseconds(),
		StartTime:  s.StartTime,
		EndTime:    end,
	}
	summary.Total = summary.Processed + summary.Skipped + summary.Errors
	if processed+skipped > 0 {
		summary.SkipRatio = float64(skipped) / float64(processed+skipped)
	}
	return summary
}

// SyncSummary is the terminal report of a run.
type SyncSummary struct {
	RunID      RunID     `json:"run_id" bigquery:"run_id"`
	Root       string    `json:"root,omitempty" bigquery:"root"`
	Processed  int       `json:"processed" bigquery:"processed"`
	Skipped    int       `json:"skipped" bigquery:"skipped"`
	Errors     int       `json:"errors" bigquery:"errors"`
	Total      int       `json:"total" bigquery:"total"`
	DurationMs int64     `json:"durationMs" bigquery:"duration_ms"`
	SkipRatio  float64   `json:"skipRatio" bigquery:"skip_ratio"`
	StartTime  time.Time `json:"startTime" bigquery:"start_time"`
	EndTime    time.Time `json:"endTime" bigquery:"end_time"`
}
