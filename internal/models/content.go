package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ContentRecord is created exactly once when a job completes. Ownership
// passes to the gallery subsystem; the job keeps only the back-reference.
type ContentRecord struct {
	ID        uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID                   `gorm:"type:uuid;not null;index" json:"user_id"`
	JobID     uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex" json:"job_id"`
	Title     string                      `gorm:"type:varchar(255)" json:"title"`
	Paths     datatypes.JSONSlice[string] `json:"paths"`
	CreatedAt time.Time                   `json:"created_at"`
}
