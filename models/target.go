package models

import (
	"gorm.io/gorm"
)

// Target represents one recipient of simulated phishing emails
type Target struct {
	gorm.Model
	Email      string `gorm:"uniqueIndex;not null" json:"email"`
	Salutation string `json:"salutation"` // Mr., Ms., Mrs., Dr., Prof., Mx.
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Position   string `json:"position"`
	Department string `json:"department"`
	Phone      string `json:"phone"`

	// Relations
	ListMemberships []TargetListMember `gorm:"foreignKey:TargetID" json:"-"`
	CampaignTargets []CampaignTarget   `gorm:"foreignKey:TargetID" json:"-"`
}

// TargetList is a named group of targets assembled by the admin UI
type TargetList struct {
	gorm.Model
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	Members []TargetListMember `gorm:"foreignKey:TargetListID" json:"members,omitempty"`
}

// TargetListMember links a target into a list, unique per (list, target)
type TargetListMember struct {
	gorm.Model
	TargetListID uint `gorm:"not null;uniqueIndex:idx_list_target" json:"target_list_id"`
	TargetID     uint `gorm:"not null;uniqueIndex:idx_list_target" json:"target_id"`

	TargetList TargetList `json:"-"`
	Target     Target     `json:"-"`
}
