// Package store is the single relational source of truth for campaigns,
// targets, jobs, tokens and events. Every other component reads and
// writes through the Store interface; the backing implementation is
// chosen once at composition time.
package store

import (
	"errors"
	"time"

	"github.com/Ev0rain/Phishly/models"
)

var (
	ErrNotFound = errors.New("record not found")
)

// EventMeta carries the request attributes logged with every event.
type EventMeta struct {
	IPAddress  string
	UserAgent  string
	Browser    string
	OS         string
	DeviceType string
}

// Store is the state-store contract the scheduler, delivery worker and
// tracking server are written against.
type Store interface {
	// Campaigns
	CreateCampaign(c *models.Campaign) error
	GetCampaign(id uint) (*models.Campaign, error)
	UpdateCampaign(c *models.Campaign) error
	DeleteCampaign(id uint) error
	// FindCampaignUsingPage returns the first campaign referencing the
	// landing page whose status is one of the given statuses.
	FindCampaignUsingPage(landingPageID uint, statuses ...string) (*models.Campaign, error)
	ListDueScheduledCampaigns(now time.Time) ([]models.Campaign, error)

	// Targets and lists
	GetTarget(id uint) (*models.Target, error)
	ListTargetListMembers(targetListID uint) ([]models.TargetListMember, error)
	CreateCampaignTargetList(link *models.CampaignTargetList) error

	// Campaign targets
	CreateCampaignTarget(ct *models.CampaignTarget) error
	GetCampaignTarget(campaignID, targetID uint) (*models.CampaignTarget, error)
	GetCampaignTargetByToken(token string) (*models.CampaignTarget, error)
	ListCampaignTargets(campaignID uint) ([]models.CampaignTarget, error)
	SetCampaignTargetToken(id uint, token string) error
	// AdvanceCampaignTargetStatus applies newStatus only when it does
	// not regress along pending < sent < opened < clicked < submitted.
	// It reports whether the row changed.
	AdvanceCampaignTargetStatus(id uint, newStatus string) (bool, error)

	// Templates and landing pages
	GetEmailTemplate(id uint) (*models.EmailTemplate, error)
	GetLandingPage(id uint) (*models.LandingPage, error)
	GetLandingPageByURLPath(urlPath string) (*models.LandingPage, error)

	// Email jobs
	CreateEmailJob(job *models.EmailJob) error
	UpdateEmailJob(job *models.EmailJob) error
	GetLatestEmailJob(campaignTargetID uint) (*models.EmailJob, error)
	// ListRevocableJobs returns jobs for the campaign still in pending
	// or queued state.
	ListRevocableJobs(campaignID uint) ([]models.EmailJob, error)

	// Events
	LogEvent(campaignTargetID *uint, eventName string, meta EventMeta) error
	CreateFormSubmission(fs *models.FormSubmission) error
	CountEventsByType(eventName string) (int64, error)
	CountDistinctTargetsByEventType(eventName string) (int64, error)
	CountCampaigns(status string) (int64, error)

	// Active configuration (singleton, id=1)
	GetActiveConfiguration() (*models.ActiveConfiguration, error)
	SaveActiveConfiguration(cfg *models.ActiveConfiguration) error
}
