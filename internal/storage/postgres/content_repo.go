package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/internal/models"
	"gorm.io/gorm"
)

// ContentRepository persists the content records handed over to the gallery
// subsystem when a job completes.
type ContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

func (r *ContentRepository) Create(ctx context.Context, content *models.ContentRecord) error {
	if err := r.db.WithContext(ctx).Create(content).Error; err != nil {
		return fmt.Errorf("create content record: %w", err)
	}
	return nil
}

func (r *ContentRepository) Get(ctx context.Context, id uuid.UUID) (*models.ContentRecord, error) {
	var content models.ContentRecord
	if err := r.db.WithContext(ctx).First(&content, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("content record not found: %w", err)
		}
		return nil, fmt.Errorf("get content record: %w", err)
	}
	return &content, nil
}

// Delete removes a record that must not surface, for the completion-versus-
// cancellation race where the job row refused the completed flip.
func (r *ContentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Delete(&models.ContentRecord{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete content record: %w", err)
	}
	return nil
}
