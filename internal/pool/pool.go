package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/internal/config"
	"github.com/joeflack4/genonaut/internal/engine"
	"github.com/joeflack4/genonaut/internal/events"
	"github.com/joeflack4/genonaut/internal/files"
	"github.com/joeflack4/genonaut/internal/models"
	"github.com/joeflack4/genonaut/internal/storage/postgres"
	"github.com/joeflack4/genonaut/internal/worker"
	"github.com/rs/zerolog"
)

type WorkerPool struct {
	workers      []*worker.Worker
	jobRepo      *postgres.JobRepository
	broadcaster  *events.Broadcaster
	lockDuration time.Duration
	abandonAfter time.Duration
	log          zerolog.Logger
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
}

func NewWorkerPool(
	count int,
	jobRepo *postgres.JobRepository,
	contentRepo *postgres.ContentRepository,
	eng engine.Client,
	organizer *files.Organizer,
	broadcaster *events.Broadcaster,
	cfg *config.Config,
	log zerolog.Logger,
) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		jobRepo:      jobRepo,
		broadcaster:  broadcaster,
		lockDuration: cfg.LockDuration,
		abandonAfter: cfg.PollTimeout + cfg.LockDuration,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
	}

	for i := 1; i <= count; i++ {
		id := fmt.Sprintf("worker-%d", i)
		p.workers = append(p.workers, worker.NewWorker(
			id, jobRepo, contentRepo, eng, organizer, broadcaster, cfg, log,
		))
	}
	return p
}

func (p *WorkerPool) Start() {
	for _, w := range p.workers {
		w.Start(p.ctx)
	}

	p.wg.Add(1)
	go p.janitor()
}

// janitor periodically recovers jobs orphaned by a worker crash.
func (p *WorkerPool) janitor() {
	defer p.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.recoverOrphans()
		case <-p.ctx.Done():
			return
		}
	}
}

// recoverOrphans re-queues running jobs whose claim went stale and fails
// processing jobs abandoned mid-generation. A running job never reached the
// engine, so redelivery is safe; a processing job did, so re-queuing would
// duplicate the run and it goes terminal with a timeout instead.
func (p *WorkerPool) recoverOrphans() {
	stuck, err := p.jobRepo.ListStuckJobs(p.ctx, p.lockDuration*2)
	if err != nil {
		p.log.Warn().Err(err).Msg("stuck-job scan failed")
	}
	for i := range stuck {
		p.log.Info().Str("job_id", stuck[i].ID.String()).Msg("recovering stuck job")
		if err := p.jobRepo.Release(p.ctx, stuck[i].ID); err != nil {
			p.log.Warn().Str("job_id", stuck[i].ID.String()).Err(err).Msg("release failed")
		}
	}

	abandoned, err := p.jobRepo.ListAbandonedProcessing(p.ctx, p.abandonAfter)
	if err != nil {
		p.log.Warn().Err(err).Msg("abandoned-job scan failed")
		return
	}
	for i := range abandoned {
		job := &abandoned[i]
		cause := engine.Timeoutf("worker %s made no progress within %s", job.ClaimedBy, p.abandonAfter)
		_, suggestions := worker.Classify(cause)
		if err := p.jobRepo.MarkFailed(p.ctx, job.ID, cause.Error(), suggestions); err != nil {
			if !errors.Is(err, postgres.ErrStaleTransition) {
				p.log.Warn().Str("job_id", job.ID.String()).Err(err).Msg("abandoned-job flip failed")
			}
			continue
		}
		p.log.Warn().Str("job_id", job.ID.String()).Str("worker", job.ClaimedBy).
			Msg("failing abandoned job")
		p.publishCurrent(job.ID)
	}
}

// publishCurrent broadcasts the job's persisted state so subscribers see the
// janitor's terminal flip and their streams can close.
func (p *WorkerPool) publishCurrent(id uuid.UUID) {
	job, err := p.jobRepo.Get(p.ctx, id)
	if err != nil {
		p.log.Warn().Str("job_id", id.String()).Err(err).Msg("publish skipped")
		return
	}
	p.broadcaster.Publish(models.EventFromJob(job))
}

func (p *WorkerPool) Stop() {
	p.cancel()
	for _, w := range p.workers {
		w.Stop()
	}
	p.wg.Wait()
}
