package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/internal/config"
	"github.com/joeflack4/genonaut/internal/engine"
	"github.com/joeflack4/genonaut/internal/events"
	"github.com/joeflack4/genonaut/internal/files"
	"github.com/joeflack4/genonaut/internal/models"
	"github.com/joeflack4/genonaut/internal/storage/postgres"
	"github.com/rs/zerolog"
)

// Worker claims queued generation jobs and drives each through the state
// machine to a terminal outcome. The job row is the only state shared with
// other workers; every transition is a guarded update, so redelivery of an
// already-claimed or already-terminal job is a no-op.
type Worker struct {
	ID          string
	jobRepo     *postgres.JobRepository
	contentRepo *postgres.ContentRepository
	engine      engine.Client
	organizer   *files.Organizer
	broadcaster *events.Broadcaster
	cfg         *config.Config
	log         zerolog.Logger
	quit        chan struct{}
}

func NewWorker(
	id string,
	jobRepo *postgres.JobRepository,
	contentRepo *postgres.ContentRepository,
	eng engine.Client,
	organizer *files.Organizer,
	broadcaster *events.Broadcaster,
	cfg *config.Config,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		ID:          id,
		jobRepo:     jobRepo,
		contentRepo: contentRepo,
		engine:      eng,
		organizer:   organizer,
		broadcaster: broadcaster,
		cfg:         cfg,
		log:         log.With().Str("worker", id).Logger(),
		quit:        make(chan struct{}),
	}
}

// Start runs the claim loop until Stop or ctx cancellation. Idle polling
// backs off from one second up to a minute.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		currentDelay := 1 * time.Second
		maxDelay := 60 * time.Second

		for {
			job, err := w.jobRepo.ClaimNextQueued(ctx, w.ID)
			if err != nil {
				w.log.Error().Err(err).Msg("claim failed")
			}

			if job != nil {
				w.Process(ctx, job)
				currentDelay = 1 * time.Second
			} else {
				currentDelay = min(currentDelay*2, maxDelay)
			}

			select {
			case <-time.After(currentDelay):
			case <-w.quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Worker) Stop() { close(w.quit) }

// Process drives one claimed job (already flipped to running) to a terminal
// state. Exported so tests can exercise the state machine synchronously.
func (w *Worker) Process(ctx context.Context, job *models.GenerationJob) {
	w.log.Info().Str("job_id", job.ID.String()).Msg("processing job")
	w.publishCurrent(ctx, job.ID)

	ref, err := w.submitWithRetry(ctx, job)
	if err != nil {
		w.fail(ctx, job.ID, err)
		return
	}
	if ref == "" {
		// Cancelled while submitting; nothing more to do.
		return
	}

	if err := w.jobRepo.MarkProcessing(ctx, job.ID, ref); err != nil {
		if errors.Is(err, postgres.ErrStaleTransition) {
			// Cancel won the race after submission; tell the engine.
			w.cancelEngine(ctx, ref)
			return
		}
		w.fail(ctx, job.ID, err)
		return
	}
	w.publishCurrent(ctx, job.ID)

	outputs, cancelled, err := w.pollUntilDone(ctx, job.ID, ref)
	if err != nil {
		w.fail(ctx, job.ID, err)
		return
	}
	if cancelled {
		w.cancelEngine(ctx, ref)
		return
	}

	w.finalize(ctx, job.ID, outputs)
}

// submitWithRetry submits the job's workflow, retrying transient failures
// with bounded exponential backoff. Returns ("", nil) when cancellation was
// observed between attempts.
func (w *Worker) submitWithRetry(ctx context.Context, job *models.GenerationJob) (string, error) {
	wf := workflowFromJob(job)
	delay := w.cfg.SubmitRetryDelay

	var lastErr error
	for attempt := 1; attempt <= w.cfg.SubmitMaxAttempts; attempt++ {
		current, err := w.jobRepo.Get(ctx, job.ID)
		if err != nil {
			return "", err
		}
		if current.Status.IsTerminal() {
			return "", nil
		}

		ref, err := w.engine.Submit(ctx, wf)
		if err == nil {
			return ref, nil
		}
		lastErr = err

		if !engine.IsTransient(err) {
			return "", err
		}
		w.log.Warn().Str("job_id", job.ID.String()).Int("attempt", attempt).Err(err).
			Msg("engine submission failed")

		if attempt == w.cfg.SubmitMaxAttempts {
			break
		}
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("submission failed after %d attempts: %w", w.cfg.SubmitMaxAttempts, lastErr)
}

// pollUntilDone waits for the engine to finish ref, bounded by the
// configured poll timeout. The cancelled result reports that the job row
// went terminal underneath us, which only a cancel can cause here.
func (w *Worker) pollUntilDone(ctx context.Context, jobID uuid.UUID, ref string) (outputs []engine.Output, cancelled bool, err error) {
	deadline := time.Now().Add(w.cfg.PollTimeout)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-ticker.C:
		}

		current, err := w.jobRepo.Get(ctx, jobID)
		if err != nil {
			return nil, false, err
		}
		if current.Status.IsTerminal() {
			return nil, true, nil
		}

		res, err := w.engine.Poll(ctx, ref)
		if err != nil {
			if engine.IsTransient(err) {
				// Connectivity blip; the deadline bounds how long we wait.
				if time.Now().After(deadline) {
					return nil, false, engine.Timeoutf("engine did not complete within %s", w.cfg.PollTimeout)
				}
				continue
			}
			return nil, false, err
		}

		switch res.Status {
		case engine.PollCompleted:
			return res.Outputs, false, nil
		case engine.PollFailed:
			return nil, false, engine.Fatalf("engine reported failure: %s", res.Error)
		}

		if time.Now().After(deadline) {
			return nil, false, engine.Timeoutf("engine did not complete within %s", w.cfg.PollTimeout)
		}
	}
}

// finalize organizes artifacts, creates the content record, and performs the
// guarded completed flip. A cancel racing the flip unwinds everything: the
// content record and the organized files are discarded, never surfaced.
func (w *Worker) finalize(ctx context.Context, jobID uuid.UUID, outputs []engine.Output) {
	job, err := w.jobRepo.Get(ctx, jobID)
	if err != nil {
		w.fail(ctx, jobID, err)
		return
	}
	if job.Status.IsTerminal() {
		return
	}

	res, err := w.organizer.Organize(ctx, job, outputs)
	if err != nil {
		// A raw artifact exists, but failing beats exposing unlinked content.
		w.fail(ctx, jobID, err)
		return
	}

	content := &models.ContentRecord{
		ID:     uuid.New(),
		UserID: job.UserID,
		JobID:  job.ID,
		Title:  titleFromPrompt(job.Prompt),
		Paths:  res.OutputPaths,
	}
	if err := w.contentRepo.Create(ctx, content); err != nil {
		w.fail(ctx, jobID, fmt.Errorf("store content record: %w", err))
		return
	}

	err = w.jobRepo.MarkCompleted(ctx, jobID, content.ID, res.OutputPaths, res.ThumbnailPaths)
	if err != nil {
		if errors.Is(err, postgres.ErrStaleTransition) {
			if delErr := w.contentRepo.Delete(ctx, content.ID); delErr != nil {
				w.log.Error().Str("job_id", jobID.String()).Err(delErr).Msg("orphaned content record")
			}
			if delErr := w.organizer.Discard(job); delErr != nil {
				w.log.Error().Str("job_id", jobID.String()).Err(delErr).Msg("discard failed")
			}
			return
		}
		w.fail(ctx, jobID, err)
		return
	}

	w.log.Info().Str("job_id", jobID.String()).Str("content_id", content.ID.String()).
		Int("outputs", len(res.OutputPaths)).Msg("job completed")
	w.publishCurrent(ctx, jobID)
}

// fail performs the guarded failed flip with a classified error. A job that
// already reached a terminal state is left untouched.
func (w *Worker) fail(ctx context.Context, jobID uuid.UUID, cause error) {
	class, suggestions := Classify(cause)
	err := w.jobRepo.MarkFailed(ctx, jobID, cause.Error(), suggestions)
	if err != nil {
		if !errors.Is(err, postgres.ErrStaleTransition) {
			w.log.Error().Str("job_id", jobID.String()).Err(err).Msg("failed flip rejected")
		}
		return
	}
	w.log.Warn().Str("job_id", jobID.String()).Str("class", string(class)).Err(cause).
		Msg("job failed")
	w.publishCurrent(ctx, jobID)
}

func (w *Worker) cancelEngine(ctx context.Context, ref string) {
	if err := w.engine.Cancel(ctx, ref); err != nil {
		w.log.Warn().Str("ref", ref).Err(err).Msg("engine cancel failed")
	}
}

// publishCurrent broadcasts the job's persisted state, keeping the row the
// single source of truth for event contents.
func (w *Worker) publishCurrent(ctx context.Context, jobID uuid.UUID) {
	job, err := w.jobRepo.Get(ctx, jobID)
	if err != nil {
		w.log.Warn().Str("job_id", jobID.String()).Err(err).Msg("publish skipped")
		return
	}
	w.broadcaster.Publish(models.EventFromJob(job))
}

func workflowFromJob(job *models.GenerationJob) engine.WorkflowDefinition {
	return engine.WorkflowDefinition{
		Prompt:          job.Prompt,
		NegativePrompt:  job.NegativePrompt,
		CheckpointModel: job.CheckpointModel,
		LoraModels:      job.LoraModels,
		Width:           job.Width,
		Height:          job.Height,
		BatchSize:       job.BatchSize,
		SamplerParams:   job.SamplerParams,
	}
}

func titleFromPrompt(prompt string) string {
	const limit = 80
	if len(prompt) <= limit {
		return prompt
	}
	return prompt[:limit]
}
