package job

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/common"
	"github.com/joeflack4/genonaut/internal/config"
	"github.com/joeflack4/genonaut/internal/dto"
	"github.com/joeflack4/genonaut/internal/engine"
	"github.com/joeflack4/genonaut/internal/events"
	"github.com/joeflack4/genonaut/internal/models"
	"github.com/joeflack4/genonaut/internal/storage/postgres"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

type JobService struct {
	repo        JobRepoInterface
	engine      engine.Client
	broadcaster *events.Broadcaster
	cfg         *config.Config
	log         zerolog.Logger
}

func NewJobService(
	repo JobRepoInterface,
	eng engine.Client,
	broadcaster *events.Broadcaster,
	cfg *config.Config,
	log zerolog.Logger,
) *JobService {
	return &JobService{repo: repo, engine: eng, broadcaster: broadcaster, cfg: cfg, log: log}
}

var _ JobServiceInterface = (*JobService)(nil)

// CreateJob validates a generation request, persists a pending row, moves it
// onto the queue, and returns the created job. Requests are not deduplicated:
// identical submissions produce distinct jobs.
func (s *JobService) CreateJob(ctx context.Context, req *dto.JobCreateDTO) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	if strings.TrimSpace(req.Prompt) == "" {
		return nil, common.Errf(http.StatusBadRequest, "prompt must not be empty")
	}

	if err := s.validateDimensions(req.Width, req.Height); err != nil {
		return nil, err
	}

	batchSize := req.BatchSize
	if batchSize == 0 {
		batchSize = 1
	}
	if batchSize > s.cfg.MaxBatchSize {
		return nil, common.NewAPIError(
			http.StatusBadRequest,
			"batch size too large",
			map[string]any{"provided": batchSize, "max": s.cfg.MaxBatchSize},
		)
	}

	if !slices.Contains(s.cfg.CheckpointModels, req.CheckpointModel) {
		return nil, common.NewAPIError(
			http.StatusBadRequest,
			"unknown checkpoint model",
			map[string]any{"provided": req.CheckpointModel, "available": s.cfg.CheckpointModels},
		)
	}
	for _, lora := range req.LoraModels {
		if !slices.Contains(s.cfg.LoraModels, lora) {
			return nil, common.NewAPIError(
				http.StatusBadRequest,
				"unknown lora model",
				map[string]any{"provided": lora, "available": s.cfg.LoraModels},
			)
		}
	}

	job := &models.GenerationJob{
		ID:              uuid.New(),
		UserID:          req.UserID,
		Prompt:          req.Prompt,
		NegativePrompt:  req.NegativePrompt,
		CheckpointModel: req.CheckpointModel,
		LoraModels:      datatypes.NewJSONSlice(req.LoraModels),
		Width:           req.Width,
		Height:          req.Height,
		BatchSize:       batchSize,
		SamplerParams:   datatypes.JSONMap(req.SamplerParams),
		Status:          config.JobStatusPending,
	}

	if err := s.repo.Create(ctx, job); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return nil, common.Errf(http.StatusRequestTimeout, "request was canceled")
		case errors.Is(err, context.DeadlineExceeded):
			return nil, common.Errf(http.StatusRequestTimeout, "request timeout")
		default:
			return nil, common.Errf(http.StatusInternalServerError, "failed to create job")
		}
	}
	s.publish(job, config.JobStatusPending)

	if err := s.repo.MarkQueued(ctx, job.ID); err != nil {
		// The pending row exists; surface the enqueue failure.
		return nil, common.Errf(http.StatusInternalServerError, "failed to enqueue job")
	}
	job.Status = config.JobStatusQueued
	s.publish(job, config.JobStatusQueued)

	return toResponseDTO(job), nil
}

func (s *JobService) validateDimensions(width, height int) error {
	bounds := map[string]any{
		"min": s.cfg.MinDimension,
		"max": s.cfg.MaxDimension,
	}
	if width < s.cfg.MinDimension || width > s.cfg.MaxDimension {
		bounds["provided"] = width
		return common.NewAPIError(http.StatusBadRequest, "width out of bounds", bounds)
	}
	if height < s.cfg.MinDimension || height > s.cfg.MaxDimension {
		bounds["provided"] = height
		return common.NewAPIError(http.StatusBadRequest, "height out of bounds", bounds)
	}
	if width%8 != 0 || height%8 != 0 {
		return common.Errf(http.StatusBadRequest, "width and height must be multiples of 8")
	}
	return nil
}

// GetJob retrieves a job by id, for clients reconciling after a missed push
// event or a failed cancel.
func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return toResponseDTO(job), nil
}

// CancelJob flips a non-terminal job to cancelled and sends a best-effort
// cancel to the engine when the job was already submitted. Cancelling a
// terminal job is a conflict.
func (s *JobService) CancelJob(ctx context.Context, id uuid.UUID) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if job.Status.IsTerminal() {
		return nil, common.Errf(http.StatusConflict, "job is already %s", job.Status)
	}

	if err := s.repo.MarkCancelled(ctx, id); err != nil {
		if errors.Is(err, postgres.ErrStaleTransition) {
			// Raced a worker into a terminal state between read and flip.
			return nil, common.Errf(http.StatusConflict, "job already reached a terminal state")
		}
		return nil, mapRepoError(err)
	}

	if job.ExternalJobRef != "" {
		// Best effort: the guard on the row already discards any late
		// completion for this ref.
		if err := s.engine.Cancel(ctx, job.ExternalJobRef); err != nil {
			s.log.Warn().Str("job_id", id.String()).Err(err).Msg("engine cancel failed")
		}
	}

	job, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	s.publish(job, job.Status)

	return toResponseDTO(job), nil
}

// ListJobs retrieves all jobs belonging to a user, newest first.
func (s *JobService) ListJobs(ctx context.Context, userID uuid.UUID) ([]dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	jobs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to list jobs")
	}

	dtos := make([]dto.JobResponseDTO, len(jobs))
	for i := range jobs {
		dtos[i] = *toResponseDTO(&jobs[i])
	}
	return dtos, nil
}

func (s *JobService) publish(job *models.GenerationJob, status config.JobStatus) {
	ev := models.EventFromJob(job)
	ev.Status = status
	s.broadcaster.Publish(ev)
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, postgres.ErrNotFound):
		return common.Errf(http.StatusNotFound, "job not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	default:
		return common.Errf(http.StatusInternalServerError, "failed to access job")
	}
}

func toResponseDTO(job *models.GenerationJob) *dto.JobResponseDTO {
	return &dto.JobResponseDTO{
		ID:                  job.ID,
		UserID:              job.UserID,
		Prompt:              job.Prompt,
		NegativePrompt:      job.NegativePrompt,
		CheckpointModel:     job.CheckpointModel,
		LoraModels:          job.LoraModels,
		Width:               job.Width,
		Height:              job.Height,
		BatchSize:           job.BatchSize,
		SamplerParams:       job.SamplerParams,
		Status:              job.Status,
		ContentID:           job.ContentID,
		OutputPaths:         job.OutputPaths,
		ThumbnailPaths:      job.ThumbnailPaths,
		ErrorMessage:        job.ErrorMessage,
		RecoverySuggestions: job.RecoverySuggestions,
		CreatedAt:           job.CreatedAt,
		StartedAt:           job.StartedAt,
		CompletedAt:         job.CompletedAt,
	}
}
