package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign statuses
const (
	CampaignDraft     = "draft"
	CampaignScheduled = "scheduled"
	CampaignActive    = "active"
	CampaignPaused    = "paused"
	CampaignCompleted = "completed"
)

// CampaignTarget statuses, ordered. A target's status only ever moves
// forward along this order, never back.
const (
	TargetPending   = "pending"
	TargetSent      = "sent"
	TargetOpened    = "opened"
	TargetClicked   = "clicked"
	TargetSubmitted = "submitted"
)

var statusOrder = map[string]int{
	TargetPending:   0,
	TargetSent:      1,
	TargetOpened:    2,
	TargetClicked:   3,
	TargetSubmitted: 4,
}

// StatusRank returns the position of a campaign-target status in the
// interaction order. Unknown statuses rank lowest.
func StatusRank(status string) int {
	return statusOrder[status]
}

// Campaign represents one phishing simulation run
type Campaign struct {
	gorm.Model
	EmailTemplateID uint  `gorm:"index" json:"email_template_id"`
	LandingPageID   *uint `gorm:"index" json:"landing_page_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Status      string `gorm:"default:'draft';not null" json:"status"` // draft, scheduled, active, paused, completed

	// Delay between consecutive emails, in seconds. min == max means a
	// fixed delay, both zero means send everything at once.
	MinEmailDelay int `gorm:"default:30" json:"min_email_delay"`
	MaxEmailDelay int `gorm:"default:180" json:"max_email_delay"`

	ScheduledLaunch *time.Time `json:"scheduled_launch"`
	StartDate       *time.Time `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`

	// Relations
	EmailTemplate *EmailTemplate       `json:"email_template,omitempty"`
	LandingPage   *LandingPage         `json:"landing_page,omitempty"`
	TargetLists   []CampaignTargetList `gorm:"foreignKey:CampaignID" json:"-"`
	Targets       []CampaignTarget     `gorm:"foreignKey:CampaignID" json:"-"`
}

// CampaignTargetList links a target list into a campaign
type CampaignTargetList struct {
	gorm.Model
	CampaignID   uint `gorm:"not null;uniqueIndex:idx_campaign_list" json:"campaign_id"`
	TargetListID uint `gorm:"not null;uniqueIndex:idx_campaign_list" json:"target_list_id"`

	Campaign   Campaign   `json:"-"`
	TargetList TargetList `json:"-"`
}

// CampaignTarget pairs a campaign with one recipient and carries the
// recipient's interaction status and tracking token
type CampaignTarget struct {
	gorm.Model
	CampaignID    uint   `gorm:"not null;uniqueIndex:idx_campaign_target" json:"campaign_id"`
	TargetID      uint   `gorm:"not null;uniqueIndex:idx_campaign_target" json:"target_id"`
	TrackingToken string `gorm:"uniqueIndex" json:"tracking_token"`
	Status        string `gorm:"default:'pending';not null" json:"status"` // pending, sent, opened, clicked, submitted

	// Relations
	Campaign  Campaign   `json:"-"`
	Target    Target     `json:"-"`
	EmailJobs []EmailJob `gorm:"foreignKey:CampaignTargetID" json:"-"`
	Events    []Event    `gorm:"foreignKey:CampaignTargetID" json:"-"`
}
