// Package procpool executes CPU-bound parse work across OS worker
// processes. Process isolation contains a crashing grammar without taking
// the orchestrator down; results correlate by job id, never by submission
// order.
package procpool

import (
	"time"

	"github.com/codeatlas-dev/codeatlas/internal/extract"
)

// JobStatus is the lifecycle state of one parse job. Transitions are
// monotonic: Pending -> Running -> Completed or Failed.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// JobSpec describes the work: which file to parse and as what language.
type JobSpec struct {
	Path     string `json:"path"`     // absolute path on disk
	RelPath  string `json:"rel_path"` // repo-relative path for records
	Language string `json:"language"`
}

// ParseJob tracks one submitted job through its lifecycle.
type ParseJob struct {
	ID          string
	Spec        JobSpec
	Status      JobStatus
	Result      *extract.FileResult
	Err         string
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Progress is a live snapshot of the pool's job counts.
type Progress struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
}

// WaitResult summarizes a WaitAll call.
type WaitResult struct {
	Total      int
	Completed  int
	Failed     int
	Throughput float64 // completed jobs per second
	TimedOut   bool
}

// Statistics extends Progress with timing data.
type Statistics struct {
	Progress
	Workers    int
	Elapsed    time.Duration
	Throughput float64
}
