package store

import (
	"testing"
	"time"

	"github.com/Ev0rain/Phishly/models"
)

func seedCampaignTarget(t *testing.T, s *MemoryStore) *models.CampaignTarget {
	t.Helper()
	campaign := &models.Campaign{Name: "c", Status: models.CampaignActive}
	if err := s.CreateCampaign(campaign); err != nil {
		t.Fatal(err)
	}
	target := s.AddTarget(&models.Target{Email: "a@example.com"})
	ct := &models.CampaignTarget{CampaignID: campaign.ID, TargetID: target.ID}
	if err := s.CreateCampaignTarget(ct); err != nil {
		t.Fatal(err)
	}
	return ct
}

func TestAdvanceCampaignTargetStatusMonotonic(t *testing.T) {
	s := NewMemoryStore()
	ct := seedCampaignTarget(t, s)

	changed, err := s.AdvanceCampaignTargetStatus(ct.ID, models.TargetClicked)
	if err != nil || !changed {
		t.Fatalf("Expected pending -> clicked to apply, changed=%v err=%v", changed, err)
	}

	// a later email-open must not regress a target that already clicked
	changed, err = s.AdvanceCampaignTargetStatus(ct.ID, models.TargetOpened)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("clicked -> opened should be a no-op")
	}
	got, _ := s.GetCampaignTarget(ct.CampaignID, ct.TargetID)
	if got.Status != models.TargetClicked {
		t.Errorf("Status = %q, want clicked", got.Status)
	}

	changed, _ = s.AdvanceCampaignTargetStatus(ct.ID, models.TargetSubmitted)
	if !changed {
		t.Error("clicked -> submitted should apply")
	}

	// same status twice is a no-op
	changed, _ = s.AdvanceCampaignTargetStatus(ct.ID, models.TargetSubmitted)
	if changed {
		t.Error("submitted -> submitted should be a no-op")
	}
}

func TestGetCampaignTargetByToken(t *testing.T) {
	s := NewMemoryStore()
	ct := seedCampaignTarget(t, s)

	if _, err := s.GetCampaignTargetByToken(""); err != ErrNotFound {
		t.Error("Empty token must never resolve")
	}
	if err := s.SetCampaignTargetToken(ct.ID, "tok-abc"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetCampaignTargetByToken("tok-abc")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.ID != ct.ID {
		t.Errorf("Resolved wrong target: %d", got.ID)
	}
	if _, err := s.GetCampaignTargetByToken("unknown"); err != ErrNotFound {
		t.Error("Unknown token should not resolve")
	}
}

func TestFindCampaignUsingPage(t *testing.T) {
	s := NewMemoryStore()
	page := s.AddLandingPage(&models.LandingPage{Name: "p", URLPath: "/p"})

	active := &models.Campaign{Name: "running", Status: models.CampaignActive, LandingPageID: &page.ID}
	if err := s.CreateCampaign(active); err != nil {
		t.Fatal(err)
	}
	paused := &models.Campaign{Name: "paused", Status: models.CampaignPaused, LandingPageID: &page.ID}
	if err := s.CreateCampaign(paused); err != nil {
		t.Fatal(err)
	}

	got, err := s.FindCampaignUsingPage(page.ID, models.CampaignActive)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.ID != active.ID {
		t.Errorf("Found campaign %d, want %d", got.ID, active.ID)
	}

	if _, err := s.FindCampaignUsingPage(page.ID, models.CampaignScheduled); err != ErrNotFound {
		t.Error("No scheduled campaign uses the page")
	}
}

func TestListDueScheduledCampaigns(t *testing.T) {
	s := NewMemoryStore()
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	due := &models.Campaign{Name: "due", Status: models.CampaignScheduled, ScheduledLaunch: &past}
	notYet := &models.Campaign{Name: "later", Status: models.CampaignScheduled, ScheduledLaunch: &future}
	drafted := &models.Campaign{Name: "draft", Status: models.CampaignDraft, ScheduledLaunch: &past}
	for _, c := range []*models.Campaign{due, notYet, drafted} {
		if err := s.CreateCampaign(c); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListDueScheduledCampaigns(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Errorf("Expected only the overdue scheduled campaign, got %v", got)
	}
}

func TestListRevocableJobs(t *testing.T) {
	s := NewMemoryStore()
	ct := seedCampaignTarget(t, s)

	statuses := []string{models.JobQueued, models.JobPending, models.JobSent, models.JobSending, models.JobRevoked}
	for _, status := range statuses {
		if err := s.CreateEmailJob(&models.EmailJob{CampaignTargetID: ct.ID, Status: status}); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := s.ListRevocableJobs(ct.CampaignID)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 revocable jobs, got %d", len(jobs))
	}
	for _, job := range jobs {
		if job.Status != models.JobQueued && job.Status != models.JobPending {
			t.Errorf("Job %d status %q should not be revocable", job.ID, job.Status)
		}
	}
}

func TestEventCounts(t *testing.T) {
	s := NewMemoryStore()
	a := seedCampaignTarget(t, s)
	b := seedCampaignTarget(t, s)

	// target a opened twice, target b once, plus one anonymous visit
	s.LogEvent(&a.ID, models.EventEmailOpened, EventMeta{})
	s.LogEvent(&a.ID, models.EventEmailOpened, EventMeta{})
	s.LogEvent(&b.ID, models.EventEmailOpened, EventMeta{})
	s.LogEvent(nil, models.EventAnonymousVisit, EventMeta{})

	total, _ := s.CountEventsByType(models.EventEmailOpened)
	if total != 3 {
		t.Errorf("CountEventsByType = %d, want 3", total)
	}
	distinct, _ := s.CountDistinctTargetsByEventType(models.EventEmailOpened)
	if distinct != 2 {
		t.Errorf("CountDistinctTargetsByEventType = %d, want 2", distinct)
	}
	anon, _ := s.CountEventsByType(models.EventAnonymousVisit)
	if anon != 1 {
		t.Errorf("Anonymous visits = %d, want 1", anon)
	}
}

func TestActiveConfigurationSingleton(t *testing.T) {
	s := NewMemoryStore()

	cfg, err := s.GetActiveConfiguration()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ID != 1 || cfg.ActiveLandingPageID != nil {
		t.Errorf("Fresh config should be empty with ID 1, got %+v", cfg)
	}

	pageID := uint(7)
	cfg.ActiveLandingPageID = &pageID
	cfg.ActivatedBy = "admin"
	cfg.ID = 42 // must be forced back to the singleton row
	if err := s.SaveActiveConfiguration(cfg); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetActiveConfiguration()
	if got.ID != 1 {
		t.Errorf("Config ID = %d, want 1", got.ID)
	}
	if got.ActiveLandingPageID == nil || *got.ActiveLandingPageID != 7 {
		t.Error("Active landing page not persisted")
	}
	if got.ActivatedBy != "admin" {
		t.Errorf("ActivatedBy = %q", got.ActivatedBy)
	}
}
