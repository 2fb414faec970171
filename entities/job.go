package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"renderqueue/constant"
)

// RenderJob is the single source of truth for one unit of artifact
// generation. Workers coordinate purely through the row's status and
// timestamp columns.
type RenderJob struct {
	ID           uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	Type         constant.JobType   `json:"type"`
	Payload      datatypes.JSON     `json:"payload" gorm:"type:jsonb"`
	ImageURL     string             `json:"image_url"`
	Priority     int                `json:"priority"`
	Status       constant.JobStatus `json:"status"`
	Attempts     int                `json:"attempts"`
	MaxAttempts  int                `json:"max_attempts"`
	RetryCount   int                `json:"retry_count"`
	WorkerID     *string            `json:"worker_id"`
	StartedAt    *time.Time         `json:"started_at"`
	LockedAt     *time.Time         `json:"locked_at"`
	CompletedAt  *time.Time         `json:"completed_at"`
	ErrorMessage *string            `json:"error_message"`
	Result       datatypes.JSON     `json:"result" gorm:"type:jsonb"`
	OutputURL    *string            `json:"output_url"`
	SourceType   string             `json:"source_type"`
	SourceID     string             `json:"source_id"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (RenderJob) TableName() string {
	return "render_jobs"
}
