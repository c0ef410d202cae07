package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/internal/config"
)

type JobCreateDTO struct {
	UserID          uuid.UUID      `json:"user_id" validate:"required"`
	Prompt          string         `json:"prompt" validate:"required"`
	NegativePrompt  string         `json:"negative_prompt,omitempty"`
	CheckpointModel string         `json:"checkpoint_model" validate:"required"`
	LoraModels      []string       `json:"lora_models,omitempty"`
	Width           int            `json:"width" validate:"required,gt=0"`
	Height          int            `json:"height" validate:"required,gt=0"`
	BatchSize       int            `json:"batch_size" validate:"gte=0,lte=64"`
	SamplerParams   map[string]any `json:"sampler_params,omitempty"`
}

type JobResponseDTO struct {
	ID                  uuid.UUID        `json:"id"`
	UserID              uuid.UUID        `json:"user_id"`
	Prompt              string           `json:"prompt"`
	NegativePrompt      string           `json:"negative_prompt,omitempty"`
	CheckpointModel     string           `json:"checkpoint_model"`
	LoraModels          []string         `json:"lora_models,omitempty"`
	Width               int              `json:"width"`
	Height              int              `json:"height"`
	BatchSize           int              `json:"batch_size"`
	SamplerParams       map[string]any   `json:"sampler_params,omitempty"`
	Status              config.JobStatus `json:"status"`
	ContentID           *uuid.UUID       `json:"content_id,omitempty"`
	OutputPaths         []string         `json:"output_paths,omitempty"`
	ThumbnailPaths      []string         `json:"thumbnail_paths,omitempty"`
	ErrorMessage        string           `json:"error_message,omitempty"`
	RecoverySuggestions []string         `json:"recovery_suggestions,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	StartedAt           *time.Time       `json:"started_at,omitempty"`
	CompletedAt         *time.Time       `json:"completed_at,omitempty"`
}
