package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/grimoire-app/app-library/internal/logging"
	"github.com/grimoire-app/app-library/internal/models"
	"github.com/grimoire-app/app-library/internal/queue"
)

// Pool runs a bounded set of workers, each executing a blocking
// lease-process-complete loop. A worker handles one job at a time; the pool
// size caps CPU and memory pressure from large documents.
type Pool struct {
	queue        *queue.Queue
	pipeline     *Pipeline
	count        int
	pollInterval time.Duration
	logger       *logging.SafeLogger
}

// NewPool creates a worker pool of count workers over the queue.
func NewPool(q *queue.Queue, pipeline *Pipeline, count int, pollInterval time.Duration, logger *logging.SafeLogger) *Pool {
	if count < 1 {
		count = 1
	}
	return &Pool{
		queue:        q,
		pipeline:     pipeline,
		count:        count,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run starts the workers and blocks until ctx is cancelled and all workers
// have drained their current job.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.count; i++ {
		worker := i
		g.Go(func() error {
			p.loop(ctx, worker)
			return nil
		})
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.count))
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context, worker int) {
	log := p.logger.With(zap.Int("worker", worker))
	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopping")
			return
		default:
		}

		job, err := p.queue.Lease(ctx)
		if err != nil {
			// Backing store unavailable; back off and retry.
			log.Warn("lease failed", zap.Error(err))
			p.sleep(ctx, p.pollInterval*4)
			continue
		}
		if job == nil {
			p.sleep(ctx, p.pollInterval)
			continue
		}

		p.process(ctx, log, job)
	}
}

// process runs the pipeline for one leased job and records its outcome. The
// job runs to completion or failure; there is no mid-pipeline abort.
func (p *Pool) process(ctx context.Context, log *logging.SafeLogger, job *models.Job) {
	log.Info("processing job",
		zap.String("job_id", job.ID),
		zap.String("document_id", job.DocumentID),
		zap.Int("attempt", job.Attempts+1))

	err := p.pipeline.Run(ctx, job)
	if err == nil {
		if err := p.queue.Complete(ctx, job.ID); err != nil {
			log.Error("failed to mark job completed", zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	kind := models.ClassifyError(err)
	var pe *models.PipelineError
	if errors.As(err, &pe) {
		log.Warn("pipeline stage failed",
			zap.String("job_id", job.ID),
			zap.String("stage", pe.Stage),
			zap.String("error_kind", string(kind)),
			zap.Error(pe.Err))
	} else {
		log.Warn("pipeline failed", zap.String("job_id", job.ID), zap.Error(err))
	}

	if failErr := p.queue.Fail(ctx, job.ID, err.Error(), kind); failErr != nil {
		log.Error("failed to record job failure", zap.String("job_id", job.ID), zap.Error(failErr))
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
