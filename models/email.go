package models

import (
	"time"

	"gorm.io/gorm"
)

// EmailJob statuses. A job is terminal once sent, failed or revoked.
const (
	JobPending = "pending"
	JobQueued  = "queued"
	JobSending = "sending"
	JobSent    = "sent"
	JobFailed  = "failed"
	JobBounced = "bounced"
	JobRevoked = "revoked"
)

// EmailTemplate holds the subject/body templates a campaign sends
type EmailTemplate struct {
	gorm.Model
	DefaultLandingPageID *uint `json:"default_landing_page_id"`

	Name      string `gorm:"not null" json:"name"`
	Subject   string `gorm:"not null" json:"subject"`
	BodyHTML  string `gorm:"type:text;not null" json:"body_html"`
	BodyText  string `gorm:"type:text" json:"body_text"` // plain text fallback
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email"`

	// Relations
	DefaultLandingPage *LandingPage `json:"-"`
	Campaigns          []Campaign   `gorm:"foreignKey:EmailTemplateID" json:"-"`
}

// EmailJob is a single delivery attempt record with its own lifecycle.
// One row is created per dispatch attempt at launch time.
type EmailJob struct {
	gorm.Model
	CampaignTargetID uint `gorm:"not null;index" json:"campaign_target_id"`

	// Queue task ID, kept on the row so the scheduler can revoke the
	// task later without holding any in-memory state.
	TaskID string `gorm:"index" json:"task_id"`

	Status       string     `gorm:"default:'pending';not null" json:"status"` // pending, queued, sending, sent, failed, bounced, revoked
	ScheduledAt  *time.Time `json:"scheduled_at"`
	SentAt       *time.Time `json:"sent_at"`
	DelaySeconds int        `json:"delay_seconds"`
	ErrorMessage string     `gorm:"type:text" json:"error_message"`
	RetryCount   int        `gorm:"default:0" json:"retry_count"`

	CampaignTarget CampaignTarget `json:"-"`
}
