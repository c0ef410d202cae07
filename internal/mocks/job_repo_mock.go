package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/internal/models"
	"github.com/stretchr/testify/mock"
)

type JobRepoMock struct {
	mock.Mock
}

func (m *JobRepoMock) Create(ctx context.Context, job *models.GenerationJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *JobRepoMock) Get(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*models.GenerationJob)
	return job, args.Error(1)
}

func (m *JobRepoMock) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.GenerationJob, error) {
	args := m.Called(ctx, userID)

	jobs, _ := args.Get(0).([]models.GenerationJob)
	return jobs, args.Error(1)
}

func (m *JobRepoMock) MarkQueued(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *JobRepoMock) ClaimNextQueued(ctx context.Context, workerID string) (*models.GenerationJob, error) {
	args := m.Called(ctx, workerID)

	job, _ := args.Get(0).(*models.GenerationJob)
	return job, args.Error(1)
}

func (m *JobRepoMock) MarkProcessing(ctx context.Context, id uuid.UUID, externalRef string) error {
	args := m.Called(ctx, id, externalRef)
	return args.Error(0)
}

func (m *JobRepoMock) MarkCompleted(
	ctx context.Context,
	id uuid.UUID,
	contentID uuid.UUID,
	outputPaths, thumbnailPaths []string,
) error {
	args := m.Called(ctx, id, contentID, outputPaths, thumbnailPaths)
	return args.Error(0)
}

func (m *JobRepoMock) MarkFailed(ctx context.Context, id uuid.UUID, msg string, suggestions []string) error {
	args := m.Called(ctx, id, msg, suggestions)
	return args.Error(0)
}

func (m *JobRepoMock) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *JobRepoMock) ListStuckJobs(ctx context.Context, staleDuration time.Duration) ([]models.GenerationJob, error) {
	args := m.Called(ctx, staleDuration)

	jobs, _ := args.Get(0).([]models.GenerationJob)
	return jobs, args.Error(1)
}

func (m *JobRepoMock) Release(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
