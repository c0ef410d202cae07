package job

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/internal/dto"
	"github.com/joeflack4/genonaut/internal/models"
)

// JobRepoInterface defines the contract for job persistence, including the
// guarded state transitions the worker relies on.
type JobRepoInterface interface {
	Create(ctx context.Context, job *models.GenerationJob) error
	Get(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.GenerationJob, error)
	MarkQueued(ctx context.Context, id uuid.UUID) error
	ClaimNextQueued(ctx context.Context, workerID string) (*models.GenerationJob, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, externalRef string) error
	MarkCompleted(ctx context.Context, id uuid.UUID, contentID uuid.UUID, outputPaths, thumbnailPaths []string) error
	MarkFailed(ctx context.Context, id uuid.UUID, msg string, suggestions []string) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error
	ListStuckJobs(ctx context.Context, staleDuration time.Duration) ([]models.GenerationJob, error)
	Release(ctx context.Context, id uuid.UUID) error
}

// ContentRepoInterface defines the contract for content record persistence.
type ContentRepoInterface interface {
	Create(ctx context.Context, content *models.ContentRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// JobServiceInterface defines the contract for job lifecycle operations.
type JobServiceInterface interface {
	CreateJob(ctx context.Context, req *dto.JobCreateDTO) (*dto.JobResponseDTO, error)
	GetJob(ctx context.Context, id uuid.UUID) (*dto.JobResponseDTO, error)
	CancelJob(ctx context.Context, id uuid.UUID) (*dto.JobResponseDTO, error)
	ListJobs(ctx context.Context, userID uuid.UUID) ([]dto.JobResponseDTO, error)
}

// JobHandlerInterface defines the contract for HTTP request handlers.
type JobHandlerInterface interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Cancel(c *gin.Context)
	List(c *gin.Context)
	Events(c *gin.Context)
}
