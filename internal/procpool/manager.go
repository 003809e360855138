package procpool

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager owns the worker goroutines and the job table. Submission never
// blocks; the queue grows until workers drain it. One failing job never
// aborts the pool or its siblings.
type Manager struct {
	runner  Runner
	workers int

	mu       sync.Mutex
	cond     *sync.Cond
	jobs     map[string]*ParseJob
	queue    []string
	nextID   int
	running  int
	finished int
	failed   int
	shutdown bool
	started  time.Time

	wg sync.WaitGroup
}

// NewManager starts workers goroutines pulling from the shared queue.
func NewManager(workers int, runner Runner) *Manager {
	if workers < 1 {
		workers = 1
	}
	m := &Manager{
		runner:  runner,
		workers: workers,
		jobs:    make(map[string]*ParseJob),
		started: time.Now(),
	}
	m.cond = sync.NewCond(&m.mu)
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.work()
	}
	slog.Debug("procpool.start", "workers", workers)
	return m
}

// SubmitJob queues one file for parsing and returns its job id.
func (m *Manager) SubmitJob(spec JobSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return "", fmt.Errorf("submit %s: pool is shut down", spec.RelPath)
	}
	m.nextID++
	id := fmt.Sprintf("job-%d", m.nextID)
	m.jobs[id] = &ParseJob{
		ID:          id,
		Spec:        spec,
		Status:      StatusPending,
		SubmittedAt: time.Now(),
	}
	m.queue = append(m.queue, id)
	m.cond.Signal()
	return id, nil
}

// SubmitBatch queues many files and returns their ids in input order.
func (m *Manager) SubmitBatch(specs []JobSpec) ([]string, error) {
	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		id, err := m.SubmitJob(spec)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Manager) work() {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.shutdown {
			m.cond.Wait()
		}
		if m.shutdown && len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		id := m.queue[0]
		m.queue = m.queue[1:]
		job := m.jobs[id]
		job.Status = StatusRunning
		job.StartedAt = time.Now()
		m.running++
		spec := job.Spec
		m.mu.Unlock()

		result, err := m.runner.Run(spec)

		m.mu.Lock()
		m.running--
		job.FinishedAt = time.Now()
		if err != nil {
			job.Status = StatusFailed
			job.Err = err.Error()
			m.failed++
			slog.Warn("procpool.job.failed", "id", id, "path", spec.RelPath, "error", err)
		} else {
			job.Status = StatusCompleted
			job.Result = result
			m.finished++
		}
		m.cond.Broadcast()
		m.mu.Unlock()
	}
}

// GetJobStatus returns a copy of the tracked job, or ok=false for an
// unknown id.
func (m *Manager) GetJobStatus(id string) (ParseJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ParseJob{}, false
	}
	return *job, true
}

// Results returns the extraction output of every completed job.
func (m *Manager) Results() map[string]*ParseJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*ParseJob, len(m.jobs))
	for id, job := range m.jobs {
		copied := *job
		out[id] = &copied
	}
	return out
}

// GetProgress snapshots the pool's counters.
func (m *Manager) GetProgress() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progressLocked()
}

func (m *Manager) progressLocked() Progress {
	total := len(m.jobs)
	return Progress{
		Total:     total,
		Pending:   total - m.running - m.finished - m.failed,
		Running:   m.running,
		Completed: m.finished,
		Failed:    m.failed,
	}
}

// GetStatistics reports progress plus elapsed time and throughput.
func (m *Manager) GetStatistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	elapsed := time.Since(m.started)
	stats := Statistics{
		Progress: m.progressLocked(),
		Workers:  m.workers,
		Elapsed:  elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		stats.Throughput = float64(m.finished) / secs
	}
	return stats
}

// WaitAll blocks until every submitted job reaches a terminal state or the
// timeout elapses. A timeout leaves unfinished jobs tracked and running; it
// never cancels them.
func (m *Manager) WaitAll(timeout time.Duration) WaitResult {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		p := m.progressLocked()
		m.mu.Unlock()
		if p.Pending == 0 && p.Running == 0 {
			return m.waitResult(p, false)
		}
		if timeout > 0 && time.Now().After(deadline) {
			slog.Warn("procpool.wait.timeout",
				"pending", p.Pending, "running", p.Running, "timeout", timeout)
			return m.waitResult(p, true)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (m *Manager) waitResult(p Progress, timedOut bool) WaitResult {
	r := WaitResult{
		Total:     p.Total,
		Completed: p.Completed,
		Failed:    p.Failed,
		TimedOut:  timedOut,
	}
	if secs := time.Since(m.started).Seconds(); secs > 0 {
		r.Throughput = float64(p.Completed) / secs
	}
	return r
}

// Shutdown stops the pool. With wait it first drains outstanding jobs up to
// the timeout. Jobs still queued at shutdown stay tracked as pending; jobs
// already running finish.
func (m *Manager) Shutdown(wait bool, timeout time.Duration) error {
	if wait {
		m.WaitAll(timeout)
	}
	m.mu.Lock()
	m.shutdown = true
	m.queue = nil
	m.cond.Broadcast()
	m.mu.Unlock()
	m.wg.Wait()
	return m.runner.Close()
}
