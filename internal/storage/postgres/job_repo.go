package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/internal/config"
	"github.com/joeflack4/genonaut/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotFound reports a lookup for a job that does not exist.
var ErrNotFound = errors.New("job not found")

// ErrStaleTransition reports a guarded update that matched zero rows because
// the job was no longer in an admissible from-state. Terminal statuses are
// absorbing, so callers treat this as "somebody else won" and move on.
var ErrStaleTransition = errors.New("stale status transition")

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job row. The caller is responsible for the initial
// pending status and the generated id.
func (r *JobRepository) Create(ctx context.Context, job *models.GenerationJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get retrieves a single job row by id.
func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	var job models.GenerationJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// ListByUser retrieves all jobs belonging to a user, newest first.
func (r *JobRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.GenerationJob, error) {
	var jobs []models.GenerationJob
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// transition performs the guarded compare-and-set every state change uses:
// the update applies only while the job sits in one of the from statuses.
// Zero matched rows means either the job is gone or someone else moved it
// first; the two are distinguished for the caller.
func (r *JobRepository) transition(
	ctx context.Context,
	id uuid.UUID,
	from []config.JobStatus,
	updates map[string]any,
) error {
	res := r.db.WithContext(ctx).Model(&models.GenerationJob{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update status: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var current models.GenerationJob
	if err := r.db.WithContext(ctx).Select("status").First(&current, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("reload job: %w", err)
	}
	return fmt.Errorf("%w: job %s is %s", ErrStaleTransition, id, current.Status)
}

// MarkQueued moves a freshly created pending job onto the queue.
func (r *JobRepository) MarkQueued(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, []config.JobStatus{config.JobStatusPending}, map[string]any{
		"status": config.JobStatusQueued,
	})
}

// ClaimNextQueued claims the oldest queued job for workerID by flipping it
// to running. Returns (nil, nil) when the queue is empty. The guarded update
// makes redelivery and worker races safe: only one claimant ever wins a row.
func (r *JobRepository) ClaimNextQueued(ctx context.Context, workerID string) (*models.GenerationJob, error) {
	for attempt := 0; attempt < 3; attempt++ {
		var candidate models.GenerationJob
		err := r.db.WithContext(ctx).
			Where("status = ?", config.JobStatusQueued).
			Order("created_at ASC").
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find queued job: %w", err)
		}

		now := time.Now().UTC()
		res := r.db.WithContext(ctx).Model(&models.GenerationJob{}).
			Where("id = ? AND status = ?", candidate.ID, config.JobStatusQueued).
			Updates(map[string]any{
				"status":     config.JobStatusRunning,
				"claimed_by": workerID,
				"claimed_at": now,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("claim job: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return r.Get(ctx, candidate.ID)
		}
		// Lost the claim race; try the next candidate.
	}
	return nil, nil
}

// MarkProcessing records a successful engine submission.
func (r *JobRepository) MarkProcessing(ctx context.Context, id uuid.UUID, externalRef string) error {
	now := time.Now().UTC()
	return r.transition(ctx, id, []config.JobStatus{config.JobStatusRunning}, map[string]any{
		"status":           config.JobStatusProcessing,
		"external_job_ref": externalRef,
		"started_at":       now,
	})
}

// MarkCompleted finalizes a successful job with its content back-reference
// and organized artifact paths.
func (r *JobRepository) MarkCompleted(
	ctx context.Context,
	id uuid.UUID,
	contentID uuid.UUID,
	outputPaths, thumbnailPaths []string,
) error {
	now := time.Now().UTC()
	return r.transition(ctx, id, []config.JobStatus{config.JobStatusProcessing}, map[string]any{
		"status":          config.JobStatusCompleted,
		"content_id":      contentID,
		"output_paths":    datatypes.NewJSONSlice(outputPaths),
		"thumbnail_paths": datatypes.NewJSONSlice(thumbnailPaths),
		"completed_at":    now,
	})
}

// MarkFailed flips any non-terminal job to failed with its error message and
// recovery suggestions.
func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, msg string, suggestions []string) error {
	now := time.Now().UTC()
	return r.transition(ctx, id, config.NonTerminalStatuses, map[string]any{
		"status":               config.JobStatusFailed,
		"error_message":        msg,
		"recovery_suggestions": datatypes.NewJSONSlice(suggestions),
		"completed_at":         now,
	})
}

// MarkCancelled flips any non-terminal job to cancelled. A late engine
// completion for the same ref finds the guard closed and is discarded.
func (r *JobRepository) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.transition(ctx, id, config.NonTerminalStatuses, map[string]any{
		"status":       config.JobStatusCancelled,
		"completed_at": now,
	})
}

// ListStuckJobs finds running jobs whose claim went stale, for the janitor.
func (r *JobRepository) ListStuckJobs(ctx context.Context, staleDuration time.Duration) ([]models.GenerationJob, error) {
	cutoff := time.Now().UTC().Add(-staleDuration)
	var jobs []models.GenerationJob
	if err := r.db.WithContext(ctx).
		Where("status = ? AND claimed_at < ?", config.JobStatusRunning, cutoff).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list stuck jobs: %w", err)
	}
	return jobs, nil
}

// ListAbandonedProcessing finds processing jobs whose worker stopped making
// progress, typically after a crash mid-generation. These are never
// re-queued: the engine run already started, so redelivery would duplicate
// it. The janitor fails them terminally instead.
func (r *JobRepository) ListAbandonedProcessing(ctx context.Context, staleDuration time.Duration) ([]models.GenerationJob, error) {
	cutoff := time.Now().UTC().Add(-staleDuration)
	var jobs []models.GenerationJob
	if err := r.db.WithContext(ctx).
		Where("status = ? AND claimed_at < ?", config.JobStatusProcessing, cutoff).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list abandoned jobs: %w", err)
	}
	return jobs, nil
}

// Release puts a stuck running job back on the queue for redelivery.
func (r *JobRepository) Release(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, []config.JobStatus{config.JobStatusRunning}, map[string]any{
		"status":     config.JobStatusQueued,
		"claimed_by": "",
		"claimed_at": nil,
	})
}
