package queue

import (
	"context"

	"github.com/coderoomhq/coderoom/internal/executor"
	"github.com/coderoomhq/coderoom/internal/metrics"
	"github.com/coderoomhq/coderoom/internal/proc"
)

type Job struct {
	ID      string
	Options executor.Options
	Result  chan proc.Result
	Ctx     context.Context
}

// Manager is a bounded in-memory job queue drained by the worker pool. The
// bound is the admission control on concurrent subprocess spawning.
type Manager struct {
	jobQueue chan *Job
}

func NewManager(capacity int) *Manager {
	return &Manager{
		jobQueue: make(chan *Job, capacity),
	}
}

// TrySubmit enqueues without blocking. A false return means the queue is full
// and the caller should report the request as rejected.
func (m *Manager) TrySubmit(job *Job) bool {
	select {
	case m.jobQueue <- job:
		metrics.QueueDepth.Set(float64(len(m.jobQueue)))
		return true
	default:
		return false
	}
}

// Dequeue blocks until a job is available or ctx is cancelled, keeping the
// depth gauge in step as the pool drains.
func (m *Manager) Dequeue(ctx context.Context) (*Job, bool) {
	select {
	case job := <-m.jobQueue:
		metrics.QueueDepth.Set(float64(len(m.jobQueue)))
		return job, true
	case <-ctx.Done():
		return nil, false
	}
}
