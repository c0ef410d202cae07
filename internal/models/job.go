package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/internal/config"
	"gorm.io/datatypes"
)

// GenerationJob is the authoritative, persisted record of one generation
// request. Rows persist indefinitely after reaching a terminal status.
type GenerationJob struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Prompt          string                     `gorm:"type:text;not null" json:"prompt"`
	NegativePrompt  string                     `gorm:"type:text" json:"negative_prompt,omitempty"`
	CheckpointModel string                     `gorm:"type:varchar(255);not null" json:"checkpoint_model"`
	LoraModels      datatypes.JSONSlice[string] `json:"lora_models"`
	Width           int                        `gorm:"not null" json:"width"`
	Height          int                        `gorm:"not null" json:"height"`
	BatchSize       int                        `gorm:"not null;default:1" json:"batch_size"`
	SamplerParams   datatypes.JSONMap          `json:"sampler_params"`

	// Opaque handle returned by the engine on submission.
	ExternalJobRef string `gorm:"type:varchar(255);index" json:"external_job_ref,omitempty"`

	Status              config.JobStatus            `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ContentID           *uuid.UUID                  `gorm:"type:uuid" json:"content_id,omitempty"`
	OutputPaths         datatypes.JSONSlice[string] `json:"output_paths"`
	ThumbnailPaths      datatypes.JSONSlice[string] `json:"thumbnail_paths"`
	ErrorMessage        string                      `gorm:"type:text" json:"error_message,omitempty"`
	RecoverySuggestions datatypes.JSONSlice[string] `json:"recovery_suggestions"`

	// Claim bookkeeping for at-least-once queue delivery.
	ClaimedBy string     `gorm:"type:varchar(64)" json:"-"`
	ClaimedAt *time.Time `json:"-"`

	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
