package utils

import (
	"context"
	"io"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/Ev0rain/Phishly/models"
	"github.com/Ev0rain/Phishly/store"
)

func newTestActivator(t *testing.T) (*Activator, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	logger := log.New(io.Discard, "", 0)
	deployer := NewDeployer(t.TempDir(), t.TempDir(), t.TempDir(), logger)
	return NewActivator(st, deployer, t.TempDir(), logger), st
}

func TestActivateSetsConfiguration(t *testing.T) {
	a, st := newTestActivator(t)
	page := st.AddLandingPage(&models.LandingPage{Name: "Portal", URLPath: "/portal", Domain: "portal.example.com"})

	result, err := a.Activate(context.Background(), page.ID, "admin", "", "198.51.100.7")
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if !result.NewlyActive {
		t.Error("First activation should be newly active")
	}
	if result.DNSZonePath == "" {
		t.Fatal("Expected a DNS zone file to be generated")
	}

	content, err := os.ReadFile(result.DNSZonePath)
	if err != nil {
		t.Fatalf("Failed to read zone file: %v", err)
	}
	if !strings.Contains(string(content), "portal.example.com.    IN    A    198.51.100.7") {
		t.Errorf("Zone file missing A record:\n%s", content)
	}

	cfg, _ := st.GetActiveConfiguration()
	if cfg.ActiveLandingPageID == nil || *cfg.ActiveLandingPageID != page.ID {
		t.Error("Active page not recorded")
	}
	if cfg.ActivatedBy != "admin" || cfg.ActivatedAt == nil {
		t.Errorf("Activation metadata incomplete: %+v", cfg)
	}
}

func TestActivateSamePageIsIdempotent(t *testing.T) {
	a, st := newTestActivator(t)
	page := st.AddLandingPage(&models.LandingPage{Name: "p", URLPath: "/p"})

	if _, err := a.Activate(context.Background(), page.ID, "admin", "", ""); err != nil {
		t.Fatal(err)
	}
	result, err := a.Activate(context.Background(), page.ID, "admin", "", "")
	if err != nil {
		t.Fatalf("Re-activation failed: %v", err)
	}
	if result.NewlyActive {
		t.Error("Re-activating the same page should not count as newly active")
	}
}

func TestActivateRefusedWhileCampaignUsesCurrentPage(t *testing.T) {
	a, st := newTestActivator(t)
	current := st.AddLandingPage(&models.LandingPage{Name: "current", URLPath: "/c"})
	next := st.AddLandingPage(&models.LandingPage{Name: "next", URLPath: "/n"})

	if _, err := a.Activate(context.Background(), current.ID, "admin", "", ""); err != nil {
		t.Fatal(err)
	}
	campaign := &models.Campaign{Name: "Drill", Status: models.CampaignActive, LandingPageID: &current.ID}
	if err := st.CreateCampaign(campaign); err != nil {
		t.Fatal(err)
	}

	if _, err := a.Activate(context.Background(), next.ID, "admin", "", ""); err == nil {
		t.Error("Expected activation refusal while a running campaign uses the current page")
	}
}

func TestDeactivate(t *testing.T) {
	a, st := newTestActivator(t)

	// deactivating with nothing active is a no-op
	if err := a.Deactivate(context.Background()); err != nil {
		t.Errorf("Deactivate with no active page should succeed: %v", err)
	}

	page := st.AddLandingPage(&models.LandingPage{Name: "p", URLPath: "/p"})
	if _, err := a.Activate(context.Background(), page.ID, "admin", "", ""); err != nil {
		t.Fatal(err)
	}

	campaign := &models.Campaign{Name: "Drill", Status: models.CampaignActive, LandingPageID: &page.ID}
	if err := st.CreateCampaign(campaign); err != nil {
		t.Fatal(err)
	}
	if err := a.Deactivate(context.Background()); err == nil {
		t.Error("Expected refusal while a campaign is running")
	}

	campaign.Status = models.CampaignScheduled
	if err := st.UpdateCampaign(campaign); err != nil {
		t.Fatal(err)
	}
	if err := a.Deactivate(context.Background()); err == nil {
		t.Error("Expected refusal while a campaign is scheduled")
	}

	// a paused campaign no longer blocks deactivation
	campaign.Status = models.CampaignPaused
	if err := st.UpdateCampaign(campaign); err != nil {
		t.Fatal(err)
	}
	if err := a.Deactivate(context.Background()); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	cfg, _ := st.GetActiveConfiguration()
	if cfg.ActiveLandingPageID != nil {
		t.Error("Active page should be cleared")
	}
}
