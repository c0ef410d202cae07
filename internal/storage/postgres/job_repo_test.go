package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/internal/config"
	"github.com/joeflack4/genonaut/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestJob(status config.JobStatus) *models.GenerationJob {
	return &models.GenerationJob{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Prompt:          "A scenic landscape",
		CheckpointModel: "m1",
		Width:           512,
		Height:          512,
		BatchSize:       1,
		Status:          status,
	}
}

func seedJob(t *testing.T, db *gorm.DB, status config.JobStatus) *models.GenerationJob {
	t.Helper()
	job := newTestJob(status)
	require.NoError(t, db.Create(job).Error)
	return job
}

func TestJobRepository_CreateAndGet(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := newTestJob(config.JobStatusPending)
	require.NoError(t, repo.Create(ctx, job))

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Prompt, got.Prompt)
	assert.Equal(t, config.JobStatusPending, got.Status)
	assert.Nil(t, got.ContentID)
	assert.Empty(t, got.OutputPaths)
}

func TestJobRepository_GetNotFound(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewJobRepository(db)

	_, err := repo.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobRepository_MarkQueued(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := seedJob(t, db, config.JobStatusPending)
	require.NoError(t, repo.MarkQueued(ctx, job.ID))

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusQueued, got.Status)

	// Second enqueue must miss the guard.
	err = repo.MarkQueued(ctx, job.ID)
	assert.ErrorIs(t, err, ErrStaleTransition)
}

func TestJobRepository_ClaimNextQueued(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	t.Run("empty queue yields nothing", func(t *testing.T) {
		job, err := repo.ClaimNextQueued(ctx, "worker-1")
		require.NoError(t, err)
		assert.Nil(t, job)
	})

	t.Run("claims oldest queued job and stamps ownership", func(t *testing.T) {
		older := seedJob(t, db, config.JobStatusQueued)
		db.Model(older).Update("created_at", time.Now().Add(-time.Hour))
		seedJob(t, db, config.JobStatusQueued)

		claimed, err := repo.ClaimNextQueued(ctx, "worker-1")
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, older.ID, claimed.ID)
		assert.Equal(t, config.JobStatusRunning, claimed.Status)
		assert.Equal(t, "worker-1", claimed.ClaimedBy)
		require.NotNil(t, claimed.ClaimedAt)
	})

	t.Run("claimed job is not redelivered", func(t *testing.T) {
		db := SetupTestDB(t)
		repo := NewJobRepository(db)

		job := seedJob(t, db, config.JobStatusQueued)

		first, err := repo.ClaimNextQueued(ctx, "worker-1")
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, job.ID, first.ID)

		second, err := repo.ClaimNextQueued(ctx, "worker-2")
		require.NoError(t, err)
		assert.Nil(t, second)
	})
}

func TestJobRepository_MarkProcessing(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := seedJob(t, db, config.JobStatusRunning)
	require.NoError(t, repo.MarkProcessing(ctx, job.ID, "engine-ref-1"))

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusProcessing, got.Status)
	assert.Equal(t, "engine-ref-1", got.ExternalJobRef)
	require.NotNil(t, got.StartedAt)

	// Only running jobs can move to processing.
	queued := seedJob(t, db, config.JobStatusQueued)
	err = repo.MarkProcessing(ctx, queued.ID, "engine-ref-2")
	assert.ErrorIs(t, err, ErrStaleTransition)
}

func TestJobRepository_MarkCompleted(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := seedJob(t, db, config.JobStatusProcessing)
	contentID := uuid.New()
	outputs := []string{"/out/a.png"}
	thumbs := []string{"/out/thumbnails/a.png"}

	require.NoError(t, repo.MarkCompleted(ctx, job.ID, contentID, outputs, thumbs))

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusCompleted, got.Status)
	require.NotNil(t, got.ContentID)
	assert.Equal(t, contentID, *got.ContentID)
	assert.Equal(t, outputs, []string(got.OutputPaths))
	assert.Equal(t, thumbs, []string(got.ThumbnailPaths))
	require.NotNil(t, got.CompletedAt)
}

func TestJobRepository_TerminalIsAbsorbing(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	for _, terminal := range config.TerminalStatuses {
		t.Run(string(terminal), func(t *testing.T) {
			job := seedJob(t, db, terminal)

			assert.ErrorIs(t, repo.MarkQueued(ctx, job.ID), ErrStaleTransition)
			assert.ErrorIs(t, repo.MarkProcessing(ctx, job.ID, "ref"), ErrStaleTransition)
			assert.ErrorIs(t, repo.MarkCompleted(ctx, job.ID, uuid.New(), []string{"p"}, []string{"t"}), ErrStaleTransition)
			assert.ErrorIs(t, repo.MarkFailed(ctx, job.ID, "boom", nil), ErrStaleTransition)
			assert.ErrorIs(t, repo.MarkCancelled(ctx, job.ID), ErrStaleTransition)

			got, err := repo.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, terminal, got.Status)
		})
	}
}

func TestJobRepository_MarkFailed(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	for _, from := range config.NonTerminalStatuses {
		t.Run(string(from), func(t *testing.T) {
			job := seedJob(t, db, from)
			require.NoError(t, repo.MarkFailed(ctx, job.ID, "engine exploded", []string{"retry the job"}))

			got, err := repo.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, config.JobStatusFailed, got.Status)
			assert.Equal(t, "engine exploded", got.ErrorMessage)
			assert.NotEmpty(t, got.RecoverySuggestions)
			assert.Nil(t, got.ContentID)
		})
	}
}

func TestJobRepository_MarkCancelled(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := seedJob(t, db, config.JobStatusProcessing)
	require.NoError(t, repo.MarkCancelled(ctx, job.ID))

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusCancelled, got.Status)
	assert.Nil(t, got.ContentID)

	// The late completion from the engine finds the guard closed.
	err = repo.MarkCompleted(ctx, job.ID, uuid.New(), []string{"p"}, []string{"t"})
	assert.ErrorIs(t, err, ErrStaleTransition)

	got, err = repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusCancelled, got.Status)
	assert.Nil(t, got.ContentID)
}

func TestJobRepository_ListByUser(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	for i := 0; i < 3; i++ {
		job := newTestJob(config.JobStatusPending)
		job.UserID = userID
		require.NoError(t, repo.Create(ctx, job))
	}
	seedJob(t, db, config.JobStatusPending) // other user

	jobs, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestJobRepository_StuckJobs(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	stale := time.Now().UTC().Add(-10 * time.Minute)
	stuck := newTestJob(config.JobStatusRunning)
	stuck.ClaimedBy = "worker-1"
	stuck.ClaimedAt = &stale
	require.NoError(t, db.Create(stuck).Error)

	fresh := time.Now().UTC()
	healthy := newTestJob(config.JobStatusRunning)
	healthy.ClaimedBy = "worker-2"
	healthy.ClaimedAt = &fresh
	require.NoError(t, db.Create(healthy).Error)

	found, err := repo.ListStuckJobs(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stuck.ID, found[0].ID)

	require.NoError(t, repo.Release(ctx, stuck.ID))

	got, err := repo.Get(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusQueued, got.Status)
	assert.Empty(t, got.ClaimedBy)
}

func TestJobRepository_AbandonedProcessing(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	stale := time.Now().UTC().Add(-time.Hour)
	abandoned := newTestJob(config.JobStatusProcessing)
	abandoned.ClaimedBy = "worker-1"
	abandoned.ClaimedAt = &stale
	require.NoError(t, db.Create(abandoned).Error)

	fresh := time.Now().UTC()
	active := newTestJob(config.JobStatusProcessing)
	active.ClaimedBy = "worker-2"
	active.ClaimedAt = &fresh
	require.NoError(t, db.Create(active).Error)

	staleRunning := newTestJob(config.JobStatusRunning)
	staleRunning.ClaimedBy = "worker-3"
	staleRunning.ClaimedAt = &stale
	require.NoError(t, db.Create(staleRunning).Error)

	found, err := repo.ListAbandonedProcessing(ctx, 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, abandoned.ID, found[0].ID)

	// Stale running claims belong to the re-queue path, not this one.
	running, err := repo.ListStuckJobs(ctx, 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, staleRunning.ID, running[0].ID)

	require.NoError(t, repo.MarkFailed(ctx, abandoned.ID, "no progress", []string{"retry the job"}))

	got, err := repo.Get(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestContentRepository(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewContentRepository(db)
	ctx := context.Background()

	content := &models.ContentRecord{
		ID:     uuid.New(),
		UserID: uuid.New(),
		JobID:  uuid.New(),
		Title:  "A scenic landscape",
		Paths:  []string{"/out/a.png"},
	}
	require.NoError(t, repo.Create(ctx, content))

	got, err := repo.Get(ctx, content.ID)
	require.NoError(t, err)
	assert.Equal(t, content.Title, got.Title)

	require.NoError(t, repo.Delete(ctx, content.ID))
	_, err = repo.Get(ctx, content.ID)
	require.Error(t, err)
}
