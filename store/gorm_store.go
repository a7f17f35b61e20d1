package store

import (
	"errors"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/Ev0rain/Phishly/models"
)

// GormStore is the Postgres-backed Store used in real deployments.
type GormStore struct {
	DB *gorm.DB

	mu           sync.Mutex
	eventTypeIDs map[string]uint
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		DB:           db,
		eventTypeIDs: make(map[string]uint),
	}
}

func translateErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) CreateCampaign(c *models.Campaign) error {
	return s.DB.Create(c).Error
}

func (s *GormStore) GetCampaign(id uint) (*models.Campaign, error) {
	var campaign models.Campaign
	err := s.DB.Preload("EmailTemplate").Preload("LandingPage").First(&campaign, id).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &campaign, nil
}

func (s *GormStore) UpdateCampaign(c *models.Campaign) error {
	return s.DB.Save(c).Error
}

func (s *GormStore) DeleteCampaign(id uint) error {
	return s.DB.Delete(&models.Campaign{}, id).Error
}

func (s *GormStore) FindCampaignUsingPage(landingPageID uint, statuses ...string) (*models.Campaign, error) {
	var campaign models.Campaign
	err := s.DB.Where("landing_page_id = ? AND status IN ?", landingPageID, statuses).
		First(&campaign).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &campaign, nil
}

func (s *GormStore) ListDueScheduledCampaigns(now time.Time) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := s.DB.Where("status = ? AND scheduled_launch IS NOT NULL AND scheduled_launch <= ?",
		models.CampaignScheduled, now).Find(&campaigns).Error
	return campaigns, err
}

func (s *GormStore) GetTarget(id uint) (*models.Target, error) {
	var target models.Target
	if err := s.DB.First(&target, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &target, nil
}

func (s *GormStore) ListTargetListMembers(targetListID uint) ([]models.TargetListMember, error) {
	var members []models.TargetListMember
	err := s.DB.Where("target_list_id = ?", targetListID).Find(&members).Error
	return members, err
}

func (s *GormStore) CreateCampaignTargetList(link *models.CampaignTargetList) error {
	return s.DB.Create(link).Error
}

func (s *GormStore) CreateCampaignTarget(ct *models.CampaignTarget) error {
	return s.DB.Create(ct).Error
}

func (s *GormStore) GetCampaignTarget(campaignID, targetID uint) (*models.CampaignTarget, error) {
	var ct models.CampaignTarget
	err := s.DB.Where("campaign_id = ? AND target_id = ?", campaignID, targetID).
		First(&ct).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &ct, nil
}

func (s *GormStore) GetCampaignTargetByToken(token string) (*models.CampaignTarget, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	var ct models.CampaignTarget
	err := s.DB.Where("tracking_token = ?", token).First(&ct).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &ct, nil
}

func (s *GormStore) ListCampaignTargets(campaignID uint) ([]models.CampaignTarget, error) {
	var cts []models.CampaignTarget
	err := s.DB.Where("campaign_id = ?", campaignID).Order("id").Find(&cts).Error
	return cts, err
}

func (s *GormStore) SetCampaignTargetToken(id uint, token string) error {
	return s.DB.Model(&models.CampaignTarget{}).
		Where("id = ?", id).
		Update("tracking_token", token).Error
}

func (s *GormStore) AdvanceCampaignTargetStatus(id uint, newStatus string) (bool, error) {
	changed := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var ct models.CampaignTarget
		if err := tx.First(&ct, id).Error; err != nil {
			return translateErr(err)
		}
		if models.StatusRank(newStatus) <= models.StatusRank(ct.Status) {
			return nil
		}
		if err := tx.Model(&models.CampaignTarget{}).
			Where("id = ?", id).
			Update("status", newStatus).Error; err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

func (s *GormStore) GetEmailTemplate(id uint) (*models.EmailTemplate, error) {
	var tmpl models.EmailTemplate
	if err := s.DB.First(&tmpl, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &tmpl, nil
}

func (s *GormStore) GetLandingPage(id uint) (*models.LandingPage, error) {
	var page models.LandingPage
	if err := s.DB.First(&page, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &page, nil
}

func (s *GormStore) GetLandingPageByURLPath(urlPath string) (*models.LandingPage, error) {
	trimmed := strings.Trim(urlPath, "/")
	var page models.LandingPage
	err := s.DB.Where("url_path = ? OR url_path = ?", "/"+trimmed, trimmed).
		First(&page).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &page, nil
}

func (s *GormStore) CreateEmailJob(job *models.EmailJob) error {
	return s.DB.Create(job).Error
}

func (s *GormStore) UpdateEmailJob(job *models.EmailJob) error {
	return s.DB.Save(job).Error
}

func (s *GormStore) GetLatestEmailJob(campaignTargetID uint) (*models.EmailJob, error) {
	var job models.EmailJob
	err := s.DB.Where("campaign_target_id = ?", campaignTargetID).
		Order("id DESC").First(&job).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &job, nil
}

func (s *GormStore) ListRevocableJobs(campaignID uint) ([]models.EmailJob, error) {
	var jobs []models.EmailJob
	err := s.DB.Joins("JOIN campaign_targets ON campaign_targets.id = email_jobs.campaign_target_id").
		Where("campaign_targets.campaign_id = ? AND email_jobs.status IN ?",
			campaignID, []string{models.JobPending, models.JobQueued}).
		Find(&jobs).Error
	return jobs, err
}

// eventTypeID resolves an event type name to its row, creating the row
// on first use. IDs are cached per process.
func (s *GormStore) eventTypeID(name string) (uint, error) {
	s.mu.Lock()
	if id, ok := s.eventTypeIDs[name]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	var et models.EventType
	err := s.DB.Where("name = ?", name).First(&et).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		et = models.EventType{Name: name}
		err = s.DB.Create(&et).Error
	}
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.eventTypeIDs[name] = et.ID
	s.mu.Unlock()
	return et.ID, nil
}

func (s *GormStore) LogEvent(campaignTargetID *uint, eventName string, meta EventMeta) error {
	typeID, err := s.eventTypeID(eventName)
	if err != nil {
		return err
	}
	event := models.Event{
		CampaignTargetID: campaignTargetID,
		EventTypeID:      typeID,
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
		Browser:          meta.Browser,
		OS:               meta.OS,
		DeviceType:       meta.DeviceType,
	}
	return s.DB.Create(&event).Error
}

func (s *GormStore) CreateFormSubmission(fs *models.FormSubmission) error {
	return s.DB.Create(fs).Error
}

func (s *GormStore) CountEventsByType(eventName string) (int64, error) {
	typeID, err := s.eventTypeID(eventName)
	if err != nil {
		return 0, err
	}
	var count int64
	err = s.DB.Model(&models.Event{}).Where("event_type_id = ?", typeID).Count(&count).Error
	return count, err
}

func (s *GormStore) CountDistinctTargetsByEventType(eventName string) (int64, error) {
	typeID, err := s.eventTypeID(eventName)
	if err != nil {
		return 0, err
	}
	var count int64
	err = s.DB.Model(&models.Event{}).
		Where("event_type_id = ? AND campaign_target_id IS NOT NULL", typeID).
		Distinct("campaign_target_id").Count(&count).Error
	return count, err
}

func (s *GormStore) CountCampaigns(status string) (int64, error) {
	var count int64
	q := s.DB.Model(&models.Campaign{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Count(&count).Error
	return count, err
}

func (s *GormStore) GetActiveConfiguration() (*models.ActiveConfiguration, error) {
	var cfg models.ActiveConfiguration
	err := s.DB.First(&cfg, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = models.ActiveConfiguration{ID: 1}
		if err := s.DB.Create(&cfg).Error; err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *GormStore) SaveActiveConfiguration(cfg *models.ActiveConfiguration) error {
	cfg.ID = 1
	return s.DB.Save(cfg).Error
}
