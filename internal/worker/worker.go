package worker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/coderoomhq/coderoom/internal/executor"
	"github.com/coderoomhq/coderoom/internal/metrics"
	"github.com/coderoomhq/coderoom/internal/proc"
	"github.com/coderoomhq/coderoom/internal/queue"
)

type Worker struct {
	id       int
	executor *executor.Executor
	manager  *queue.Manager
	logger   *zerolog.Logger
}

func NewWorker(id int, exec *executor.Executor, manager *queue.Manager, logger *zerolog.Logger) *Worker {
	return &Worker{
		id:       id,
		executor: exec,
		manager:  manager,
		logger:   logger,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Int("worker_id", w.id).Msg("worker started")
	for {
		job, ok := w.manager.Dequeue(ctx)
		if !ok {
			w.logger.Info().Int("worker_id", w.id).Msg("worker stopping")
			return
		}
		metrics.ActiveWorkers.Inc()
		w.processJob(job)
		metrics.ActiveWorkers.Dec()
	}
}

func (w *Worker) processJob(job *queue.Job) {
	// A panic anywhere in the execution pipeline is confined to this job: the
	// submitter still gets a result and the pool keeps draining.
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().
				Interface("panic", r).
				Int("worker_id", w.id).
				Str("job_id", job.ID).
				Msg("execution panicked")
			job.Result <- proc.Result{Stderr: "internal error: execution failed"}
		}
	}()

	w.logger.Debug().
		Int("worker_id", w.id).
		Str("job_id", job.ID).
		Str("room_id", job.Options.RoomID).
		Str("language", job.Options.Language.String()).
		Msg("processing execution")

	res := w.executor.Execute(job.Ctx, job.Options)

	// Result channel is buffered by the submitter; this never blocks the pool.
	job.Result <- res
}
