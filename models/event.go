package models

import (
	"gorm.io/gorm"
)

// Event type names logged by the worker and the tracking server
const (
	EventEmailSent           = "email_sent"
	EventEmailOpened         = "email_opened"
	EventLinkClicked         = "link_clicked"
	EventFormSubmitted       = "form_submitted"
	EventCredentialsCaptured = "credentials_captured"
	EventAnonymousVisit      = "anonymous_visit"
	EventAnonymousSubmission = "anonymous_submission"
)

// EventType is a lookup row for a named interaction type
type EventType struct {
	gorm.Model
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`

	Events []Event `gorm:"foreignKey:EventTypeID" json:"-"`
}

// Event is one timestamped interaction. Events are append-only, they
// are never mutated or deleted.
type Event struct {
	gorm.Model
	CampaignTargetID *uint `gorm:"index" json:"campaign_target_id"` // nil for anonymous traffic
	EventTypeID      uint  `gorm:"not null;index" json:"event_type_id"`

	IPAddress  string `json:"ip_address"`
	UserAgent  string `gorm:"type:text" json:"user_agent"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"` // mobile, desktop, tablet

	CampaignTarget *CampaignTarget `json:"-"`
	EventType      EventType       `json:"-"`
}

// FormSubmission records that a landing page form was posted by a
// known campaign target. Captured field values are deliberately not
// stored, only the fact of submission.
type FormSubmission struct {
	gorm.Model
	CampaignTargetID uint   `gorm:"not null;index" json:"campaign_target_id"`
	IPAddress        string `json:"ip_address"`
	UserAgent        string `gorm:"type:text" json:"user_agent"`

	CampaignTarget CampaignTarget `json:"-"`
}
