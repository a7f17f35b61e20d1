package models

import (
	"time"

	"gorm.io/gorm"
)

// LandingPage is the content served when a tracking link is followed
type LandingPage struct {
	gorm.Model
	Name    string `gorm:"not null" json:"name"`
	URLPath string `gorm:"uniqueIndex;not null" json:"url_path"` // e.g. /login-portal
	Domain  string `json:"domain"`

	// Legacy inline content, kept for pages created before bundles
	// moved to the filesystem. New pages use TemplatePath.
	HTMLContent string `gorm:"type:text" json:"html_content"`
	CSSContent  string `gorm:"type:text" json:"css_content"`
	JSContent   string `gorm:"type:text" json:"js_content"`

	// Bundle directory name under the template library
	TemplatePath string `json:"template_path"`

	CaptureCredentials bool   `gorm:"default:false" json:"capture_credentials"`
	CaptureFormData    bool   `gorm:"default:true" json:"capture_form_data"`
	RedirectURL        string `json:"redirect_url"` // where to send the browser after submission

	Campaigns []Campaign `gorm:"foreignKey:LandingPageID" json:"-"`
}

// ActiveConfiguration is the singleton row (id=1) naming which landing
// page is currently publicly live. Activate/Deactivate are the only
// mutators.
type ActiveConfiguration struct {
	ID                  uint       `gorm:"primaryKey" json:"id"` // always 1
	ActiveLandingPageID *uint      `json:"active_landing_page_id"`
	ActivatedAt         *time.Time `json:"activated_at"`
	ActivatedBy         string     `json:"activated_by"`
	DNSZoneFilePath     string     `json:"dns_zone_file_path"`
	PhishingDomain      string     `json:"phishing_domain"`
	PublicIP            string     `json:"public_ip"` // for the DNS A record
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	ActiveLandingPage *LandingPage `json:"-"`
}
