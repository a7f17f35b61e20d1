package worker

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/Ev0rain/Phishly/models"
	"github.com/Ev0rain/Phishly/queue"
	"github.com/Ev0rain/Phishly/store"
	"github.com/Ev0rain/Phishly/utils"
)

func TestLaunchSchedulerLaunchesDueCampaign(t *testing.T) {
	st := store.NewMemoryStore()
	logger := log.New(io.Discard, "", 0)
	deployer := utils.NewDeployer(t.TempDir(), t.TempDir(), t.TempDir(), logger)
	activator := utils.NewActivator(st, deployer, t.TempDir(), logger)
	dispatcher := utils.NewDispatcher(st, queue.NewMemoryBroker(), deployer, activator, logger)

	tmpl := st.AddEmailTemplate(&models.EmailTemplate{Name: "t", Subject: "s", BodyHTML: "b"})
	page := st.AddLandingPage(&models.LandingPage{Name: "p", URLPath: "/p"})
	target := st.AddTarget(&models.Target{Email: "a@example.com"})

	past := time.Now().Add(-time.Minute)
	campaign := &models.Campaign{
		Name:            "Overdue",
		EmailTemplateID: tmpl.ID,
		LandingPageID:   &page.ID,
		Status:          models.CampaignScheduled,
		ScheduledLaunch: &past,
	}
	if err := st.CreateCampaign(campaign); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateCampaignTarget(&models.CampaignTarget{CampaignID: campaign.ID, TargetID: target.ID}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewLaunchScheduler(dispatcher, 10*time.Millisecond, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for {
		got, _ := st.GetCampaign(campaign.ID)
		if got.Status == models.CampaignActive {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Scheduler never launched the due campaign")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Scheduler did not stop after cancel")
	}
}
