package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusWaiting   = "waiting"
	StatusDelayed   = "delayed"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// OpenStatuses are statuses in which a job still holds its dedup key.
var OpenStatuses = []string{StatusWaiting, StatusDelayed, StatusActive}

// WebhookJob is one durable unit of webhook work.
//
// OpenDedupKey mirrors DedupKey while the job is open and is NULL once it
// completes or is dead-lettered, so the unique index enforces a single open
// job per provider payment id. PendingPayload holds a delivery that arrived
// while the job was active; it is re-queued when the active run finishes.
type WebhookJob struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobType        string         `gorm:"column:job_type;not null;index" json:"job_type"`
	DedupKey       string         `gorm:"column:dedup_key;not null;index" json:"dedup_key"`
	OpenDedupKey   *string        `gorm:"column:open_dedup_key;uniqueIndex" json:"-"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	Priority       int            `gorm:"column:priority;not null;default:0" json:"priority"`
	Attempts       int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	MaxAttempts    int            `gorm:"column:max_attempts;not null" json:"max_attempts"`
	RunAt          time.Time      `gorm:"column:run_at;not null;index" json:"run_at"`
	LockedAt       *time.Time     `gorm:"column:locked_at" json:"locked_at,omitempty"`
	HeartbeatAt    *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastError      string         `gorm:"column:last_error" json:"last_error,omitempty"`
	LastErrorAt    *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	FinishedAt     *time.Time     `gorm:"column:finished_at;index" json:"finished_at,omitempty"`
	Payload        datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	PendingPayload datatypes.JSON `gorm:"column:pending_payload;type:jsonb" json:"pending_payload,omitempty"`
	Result         datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (WebhookJob) TableName() string { return "webhook_job" }

func (j *WebhookJob) BeforeCreate(*gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

func (j *WebhookJob) IsOpen() bool {
	switch j.Status {
	case StatusWaiting, StatusDelayed, StatusActive:
		return true
	default:
		return false
	}
}
