package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ev0rain/Phishly/models"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and
// the STORE_BACKEND=memory development mode.
type MemoryStore struct {
	mu sync.Mutex

	nextID uint

	campaigns       map[uint]*models.Campaign
	targets         map[uint]*models.Target
	listMembers     []models.TargetListMember
	campaignLists   []models.CampaignTargetList
	campaignTargets map[uint]*models.CampaignTarget
	templates       map[uint]*models.EmailTemplate
	landingPages    map[uint]*models.LandingPage
	jobs            map[uint]*models.EmailJob
	events          []memoryEvent
	submissions     []models.FormSubmission
	activeConfig    *models.ActiveConfiguration
}

type memoryEvent struct {
	CampaignTargetID *uint
	EventName        string
	Meta             EventMeta
	At               time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:          1,
		campaigns:       make(map[uint]*models.Campaign),
		targets:         make(map[uint]*models.Target),
		campaignTargets: make(map[uint]*models.CampaignTarget),
		templates:       make(map[uint]*models.EmailTemplate),
		landingPages:    make(map[uint]*models.LandingPage),
		jobs:            make(map[uint]*models.EmailJob),
	}
}

func (s *MemoryStore) allocID() uint {
	id := s.nextID
	s.nextID++
	return id
}

// Seed helpers used by composition code and tests.

func (s *MemoryStore) AddTarget(t *models.Target) *models.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.allocID()
	}
	s.targets[t.ID] = t
	return t
}

func (s *MemoryStore) AddTargetListMember(listID, targetID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listMembers = append(s.listMembers, models.TargetListMember{
		TargetListID: listID,
		TargetID:     targetID,
	})
}

func (s *MemoryStore) AddEmailTemplate(t *models.EmailTemplate) *models.EmailTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.allocID()
	}
	s.templates[t.ID] = t
	return t
}

func (s *MemoryStore) AddLandingPage(p *models.LandingPage) *models.LandingPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.allocID()
	}
	s.landingPages[p.ID] = p
	return p
}

// Store implementation

func (s *MemoryStore) CreateCampaign(c *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.allocID()
	}
	c.CreatedAt = time.Now()
	s.campaigns[c.ID] = c
	return nil
}

func (s *MemoryStore) GetCampaign(id uint) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	if tmpl, ok := s.templates[c.EmailTemplateID]; ok {
		cp := *tmpl
		out.EmailTemplate = &cp
	}
	if c.LandingPageID != nil {
		if page, ok := s.landingPages[*c.LandingPageID]; ok {
			cp := *page
			out.LandingPage = &cp
		}
	}
	return &out, nil
}

func (s *MemoryStore) UpdateCampaign(c *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	cp.EmailTemplate = nil
	cp.LandingPage = nil
	s.campaigns[c.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteCampaign(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.campaigns, id)
	return nil
}

func (s *MemoryStore) FindCampaignUsingPage(landingPageID uint, statuses ...string) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint, 0, len(s.campaigns))
	for id := range s.campaigns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		c := s.campaigns[id]
		if c.LandingPageID == nil || *c.LandingPageID != landingPageID {
			continue
		}
		for _, st := range statuses {
			if c.Status == st {
				out := *c
				return &out, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListDueScheduledCampaigns(now time.Time) ([]models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Campaign
	for _, c := range s.campaigns {
		if c.Status == models.CampaignScheduled && c.ScheduledLaunch != nil && !c.ScheduledLaunch.After(now) {
			due = append(due, *c)
		}
	}
	return due, nil
}

func (s *MemoryStore) GetTarget(id uint) (*models.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *t
	return &out, nil
}

func (s *MemoryStore) ListTargetListMembers(targetListID uint) ([]models.TargetListMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var members []models.TargetListMember
	for _, m := range s.listMembers {
		if m.TargetListID == targetListID {
			members = append(members, m)
		}
	}
	return members, nil
}

func (s *MemoryStore) CreateCampaignTargetList(link *models.CampaignTargetList) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if link.ID == 0 {
		link.ID = s.allocID()
	}
	s.campaignLists = append(s.campaignLists, *link)
	return nil
}

func (s *MemoryStore) CreateCampaignTarget(ct *models.CampaignTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ct.ID == 0 {
		ct.ID = s.allocID()
	}
	if ct.Status == "" {
		ct.Status = models.TargetPending
	}
	cp := *ct
	s.campaignTargets[ct.ID] = &cp
	return nil
}

func (s *MemoryStore) GetCampaignTarget(campaignID, targetID uint) (*models.CampaignTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ct := range s.campaignTargets {
		if ct.CampaignID == campaignID && ct.TargetID == targetID {
			out := *ct
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetCampaignTargetByToken(token string) (*models.CampaignTarget, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ct := range s.campaignTargets {
		if ct.TrackingToken == token {
			out := *ct
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListCampaignTargets(campaignID uint) ([]models.CampaignTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cts []models.CampaignTarget
	for _, ct := range s.campaignTargets {
		if ct.CampaignID == campaignID {
			cts = append(cts, *ct)
		}
	}
	sort.Slice(cts, func(i, j int) bool { return cts[i].ID < cts[j].ID })
	return cts, nil
}

func (s *MemoryStore) SetCampaignTargetToken(id uint, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ct, ok := s.campaignTargets[id]
	if !ok {
		return ErrNotFound
	}
	ct.TrackingToken = token
	return nil
}

func (s *MemoryStore) AdvanceCampaignTargetStatus(id uint, newStatus string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ct, ok := s.campaignTargets[id]
	if !ok {
		return false, ErrNotFound
	}
	if models.StatusRank(newStatus) <= models.StatusRank(ct.Status) {
		return false, nil
	}
	ct.Status = newStatus
	return true, nil
}

func (s *MemoryStore) GetEmailTemplate(id uint) (*models.EmailTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *t
	return &out, nil
}

func (s *MemoryStore) GetLandingPage(id uint) (*models.LandingPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.landingPages[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *MemoryStore) GetLandingPageByURLPath(urlPath string) (*models.LandingPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trimmed := strings.Trim(urlPath, "/")
	for _, p := range s.landingPages {
		if strings.Trim(p.URLPath, "/") == trimmed {
			out := *p
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateEmailJob(job *models.EmailJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == 0 {
		job.ID = s.allocID()
	}
	job.CreatedAt = time.Now()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateEmailJob(job *models.EmailJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) GetLatestEmailJob(campaignTargetID uint) (*models.EmailJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.EmailJob
	for _, job := range s.jobs {
		if job.CampaignTargetID != campaignTargetID {
			continue
		}
		if latest == nil || job.ID > latest.ID {
			latest = job
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	out := *latest
	return &out, nil
}

func (s *MemoryStore) ListRevocableJobs(campaignID uint) ([]models.EmailJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []models.EmailJob
	for _, job := range s.jobs {
		ct, ok := s.campaignTargets[job.CampaignTargetID]
		if !ok || ct.CampaignID != campaignID {
			continue
		}
		if job.Status == models.JobPending || job.Status == models.JobQueued {
			jobs = append(jobs, *job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

func (s *MemoryStore) LogEvent(campaignTargetID *uint, eventName string, meta EventMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, memoryEvent{
		CampaignTargetID: campaignTargetID,
		EventName:        eventName,
		Meta:             meta,
		At:               time.Now(),
	})
	return nil
}

func (s *MemoryStore) CreateFormSubmission(fs *models.FormSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fs.ID == 0 {
		fs.ID = s.allocID()
	}
	s.submissions = append(s.submissions, *fs)
	return nil
}

func (s *MemoryStore) CountEventsByType(eventName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, e := range s.events {
		if e.EventName == eventName {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CountDistinctTargetsByEventType(eventName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[uint]bool)
	for _, e := range s.events {
		if e.EventName == eventName && e.CampaignTargetID != nil {
			seen[*e.CampaignTargetID] = true
		}
	}
	return int64(len(seen)), nil
}

func (s *MemoryStore) CountCampaigns(status string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, c := range s.campaigns {
		if status == "" || c.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) GetActiveConfiguration() (*models.ActiveConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeConfig == nil {
		s.activeConfig = &models.ActiveConfiguration{ID: 1, CreatedAt: time.Now()}
	}
	out := *s.activeConfig
	return &out, nil
}

func (s *MemoryStore) SaveActiveConfiguration(cfg *models.ActiveConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	cp.ID = 1
	cp.UpdatedAt = time.Now()
	s.activeConfig = &cp
	return nil
}

// Events returns the raw event log. Test helper.
func (s *MemoryStore) Events() []struct {
	CampaignTargetID *uint
	EventName        string
} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]struct {
		CampaignTargetID *uint
		EventName        string
	}, len(s.events))
	for i, e := range s.events {
		out[i].CampaignTargetID = e.CampaignTargetID
		out[i].EventName = e.EventName
	}
	return out
}

// Submissions returns recorded form submissions. Test helper.
func (s *MemoryStore) Submissions() []models.FormSubmission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FormSubmission(nil), s.submissions...)
}

// Jobs returns all email jobs sorted by ID. Test helper.
func (s *MemoryStore) Jobs() []models.EmailJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]models.EmailJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs
}
