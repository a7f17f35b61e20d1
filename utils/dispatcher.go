package utils

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/Ev0rain/Phishly/models"
	"github.com/Ev0rain/Phishly/queue"
	"github.com/Ev0rain/Phishly/store"
)

// Dispatcher turns campaign lifecycle actions into job records and
// queued delivery tasks. Launch spaces sends out with cumulative
// per-target delays; pause and delete revoke whatever has not started
// sending yet.
type Dispatcher struct {
	Store     store.Store
	Broker    queue.Broker
	Deployer  *Deployer
	Activator *Activator
	Logger    *log.Logger
}

func NewDispatcher(st store.Store, broker queue.Broker, deployer *Deployer, activator *Activator, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		Store:     st,
		Broker:    broker,
		Deployer:  deployer,
		Activator: activator,
		Logger:    logger,
	}
}

// CampaignDraft is the input for creating a campaign.
type CampaignDraft struct {
	Name            string
	Description     string
	EmailTemplateID uint
	LandingPageID   *uint
	TargetListIDs   []uint
	MinEmailDelay   int
	MaxEmailDelay   int
	ScheduledLaunch *time.Time
}

// LaunchResult reports what a launch produced.
type LaunchResult struct {
	JobsCreated int
	TasksQueued int
}

// CreateCampaign creates a campaign and materializes its target set
// from the given target lists, de-duplicated by target id. A scheduled
// launch time puts the campaign in scheduled status, otherwise draft.
func (d *Dispatcher) CreateCampaign(ctx context.Context, draft CampaignDraft) (*models.Campaign, error) {
	if _, err := d.Store.GetEmailTemplate(draft.EmailTemplateID); err != nil {
		return nil, fmt.Errorf("email template %d not found: %w", draft.EmailTemplateID, err)
	}
	if draft.LandingPageID != nil {
		if _, err := d.Store.GetLandingPage(*draft.LandingPageID); err != nil {
			return nil, fmt.Errorf("landing page %d not found: %w", *draft.LandingPageID, err)
		}
	}

	status := models.CampaignDraft
	if draft.ScheduledLaunch != nil {
		status = models.CampaignScheduled
	}

	campaign := &models.Campaign{
		Name:            draft.Name,
		Description:     draft.Description,
		EmailTemplateID: draft.EmailTemplateID,
		LandingPageID:   draft.LandingPageID,
		Status:          status,
		MinEmailDelay:   draft.MinEmailDelay,
		MaxEmailDelay:   draft.MaxEmailDelay,
		ScheduledLaunch: draft.ScheduledLaunch,
	}
	if err := d.Store.CreateCampaign(campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	seen := make(map[uint]bool)
	for _, listID := range draft.TargetListIDs {
		if err := d.Store.CreateCampaignTargetList(&models.CampaignTargetList{
			CampaignID:   campaign.ID,
			TargetListID: listID,
		}); err != nil {
			return nil, fmt.Errorf("failed to attach target list %d: %w", listID, err)
		}
		members, err := d.Store.ListTargetListMembers(listID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve target list %d: %w", listID, err)
		}
		for _, m := range members {
			if seen[m.TargetID] {
				continue
			}
			seen[m.TargetID] = true
			if err := d.Store.CreateCampaignTarget(&models.CampaignTarget{
				CampaignID: campaign.ID,
				TargetID:   m.TargetID,
				Status:     models.TargetPending,
			}); err != nil {
				return nil, fmt.Errorf("failed to add target %d: %w", m.TargetID, err)
			}
		}
	}

	d.Logger.Printf("Campaign %q (#%d) created with %d targets", campaign.Name, campaign.ID, len(seen))
	return campaign, nil
}

// Launch activates the campaign, deploys its landing page, and creates
// one EmailJob plus one queued delivery task per target. Delays
// accumulate sequentially so a 3-target campaign with a fixed 10s delay
// sends at offsets 0s, 10s and 20s.
func (d *Dispatcher) Launch(ctx context.Context, campaignID uint) (*LaunchResult, error) {
	campaign, err := d.Store.GetCampaign(campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign %d not found: %w", campaignID, err)
	}
	if campaign.Status == models.CampaignActive {
		return nil, fmt.Errorf("campaign %q is already active", campaign.Name)
	}
	if campaign.LandingPageID == nil {
		return nil, fmt.Errorf("campaign %q has no landing page assigned", campaign.Name)
	}

	targets, err := d.Store.ListCampaignTargets(campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("campaign %q has no targets", campaign.Name)
	}

	// Refuse when another page is live and a different running campaign
	// depends on it.
	cfg, err := d.Store.GetActiveConfiguration()
	if err != nil {
		return nil, fmt.Errorf("failed to load active configuration: %w", err)
	}
	if cfg.ActiveLandingPageID != nil && *cfg.ActiveLandingPageID != *campaign.LandingPageID {
		other, err := d.Store.FindCampaignUsingPage(*cfg.ActiveLandingPageID, models.CampaignActive)
		if err != nil && err != store.ErrNotFound {
			return nil, fmt.Errorf("failed to check running campaigns: %w", err)
		}
		if other != nil && other.ID != campaignID {
			return nil, fmt.Errorf("cannot launch: landing page in use by running campaign %q", other.Name)
		}
	}

	page, err := d.Store.GetLandingPage(*campaign.LandingPageID)
	if err != nil {
		return nil, fmt.Errorf("landing page %d not found: %w", *campaign.LandingPageID, err)
	}

	if page.TemplatePath != "" {
		if _, err := d.Deployer.DeployCampaign(campaignID, page.TemplatePath); err != nil {
			d.Logger.Printf("WARNING: failed to deploy landing page bundle: %v", err)
		}
	} else if page.HTMLContent != "" {
		if err := d.Deployer.WriteLegacyCache(campaignID, page.URLPath, page.HTMLContent, page.CSSContent, page.JSContent); err != nil {
			d.Logger.Printf("WARNING: failed to cache landing page: %v", err)
		}
	}
	if _, err := d.Activator.Activate(ctx, page.ID, "dispatcher", "", ""); err != nil {
		return nil, fmt.Errorf("failed to activate landing page: %w", err)
	}

	now := time.Now().UTC()
	campaign.Status = models.CampaignActive
	campaign.StartDate = &now
	if err := d.Store.UpdateCampaign(campaign); err != nil {
		return nil, fmt.Errorf("failed to mark campaign active: %w", err)
	}

	result := &LaunchResult{}
	cumulative := 0
	for _, ct := range targets {
		delay := computeDelay(campaign.MinEmailDelay, campaign.MaxEmailDelay)
		offset := cumulative
		cumulative += delay

		job := &models.EmailJob{
			CampaignTargetID: ct.ID,
			Status:           models.JobQueued,
			ScheduledAt:      Pointer(now.Add(time.Duration(offset) * time.Second)),
			DelaySeconds:     delay,
		}

		if _, err := d.Store.GetTarget(ct.TargetID); err != nil {
			job.Status = models.JobFailed
			job.ErrorMessage = "Target not found"
			if err := d.Store.CreateEmailJob(job); err != nil {
				return nil, fmt.Errorf("failed to create email job: %w", err)
			}
			result.JobsCreated++
			d.Logger.Printf("Target %d not found, job marked failed", ct.TargetID)
			continue
		}

		task := queue.Task{
			ID:         queue.GenerateTaskID(campaignID, ct.TargetID),
			Name:       queue.TaskSendEmail,
			CampaignID: campaignID,
			TargetID:   ct.TargetID,
			EnqueuedAt: now,
		}
		job.TaskID = task.ID
		if err := d.Store.CreateEmailJob(job); err != nil {
			return nil, fmt.Errorf("failed to create email job: %w", err)
		}
		result.JobsCreated++

		if err := d.Broker.Enqueue(ctx, task, time.Duration(offset)*time.Second); err != nil {
			job.Status = models.JobFailed
			job.ErrorMessage = err.Error()
			if uerr := d.Store.UpdateEmailJob(job); uerr != nil {
				d.Logger.Printf("WARNING: failed to record enqueue failure: %v", uerr)
			}
			d.Logger.Printf("Failed to queue task %s: %v", task.ID, err)
			continue
		}
		result.TasksQueued++
		d.Logger.Printf("Queued task %s for campaign %d, target %d (delay: %ds)", task.ID, campaignID, ct.TargetID, offset)
	}

	d.Logger.Printf("Campaign %q launched: %d jobs created, %d tasks queued", campaign.Name, result.JobsCreated, result.TasksQueued)
	return result, nil
}

// Pause revokes every job that has not started sending and marks the
// campaign paused. Jobs already sending or sent are left alone, the
// in-flight send wins the race.
func (d *Dispatcher) Pause(ctx context.Context, campaignID uint) error {
	campaign, err := d.Store.GetCampaign(campaignID)
	if err != nil {
		return fmt.Errorf("campaign %d not found: %w", campaignID, err)
	}
	if campaign.Status != models.CampaignActive {
		return fmt.Errorf("only active campaigns can be paused")
	}

	revoked, err := d.revokeOutstanding(ctx, campaignID)
	if err != nil {
		return err
	}

	campaign.Status = models.CampaignPaused
	campaign.EndDate = Pointer(time.Now().UTC())
	if err := d.Store.UpdateCampaign(campaign); err != nil {
		return fmt.Errorf("failed to mark campaign paused: %w", err)
	}

	d.Logger.Printf("Campaign %q paused, %d jobs revoked", campaign.Name, revoked)
	return nil
}

// Complete marks the campaign completed, revokes anything still queued
// and deactivates its landing page when no other active campaign uses
// it.
func (d *Dispatcher) Complete(ctx context.Context, campaignID uint) error {
	campaign, err := d.Store.GetCampaign(campaignID)
	if err != nil {
		return fmt.Errorf("campaign %d not found: %w", campaignID, err)
	}
	if campaign.Status == models.CampaignCompleted {
		return fmt.Errorf("campaign %q is already completed", campaign.Name)
	}

	revoked, err := d.revokeOutstanding(ctx, campaignID)
	if err != nil {
		return err
	}

	campaign.Status = models.CampaignCompleted
	campaign.EndDate = Pointer(time.Now().UTC())
	if err := d.Store.UpdateCampaign(campaign); err != nil {
		return fmt.Errorf("failed to mark campaign completed: %w", err)
	}

	d.deactivateIfUnused(ctx, campaign)
	d.Logger.Printf("Campaign %q completed, %d jobs revoked", campaign.Name, revoked)
	return nil
}

// Delete removes a campaign along with its deployed assets. Active
// campaigns must be paused first. Remaining queued jobs are revoked so
// the queue never delivers for a campaign that no longer exists.
func (d *Dispatcher) Delete(ctx context.Context, campaignID uint) error {
	campaign, err := d.Store.GetCampaign(campaignID)
	if err != nil {
		return fmt.Errorf("campaign %d not found: %w", campaignID, err)
	}
	if campaign.Status == models.CampaignActive {
		return fmt.Errorf("cannot delete active campaign, pause it first")
	}

	if _, err := d.revokeOutstanding(ctx, campaignID); err != nil {
		return err
	}

	if err := d.Deployer.CleanupCampaign(campaignID); err != nil {
		d.Logger.Printf("WARNING: failed to clean up deployment: %v", err)
	}
	if err := d.Deployer.ClearLegacyCache(campaignID); err != nil {
		d.Logger.Printf("WARNING: failed to clear cache: %v", err)
	}

	d.deactivateIfUnused(ctx, campaign)

	if err := d.Store.DeleteCampaign(campaignID); err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}

	d.Logger.Printf("Campaign %q deleted", campaign.Name)
	return nil
}

// LaunchDueScheduled launches every scheduled campaign whose launch
// time has arrived. Called periodically by the scheduler sweep.
func (d *Dispatcher) LaunchDueScheduled(ctx context.Context) {
	due, err := d.Store.ListDueScheduledCampaigns(time.Now().UTC())
	if err != nil {
		d.Logger.Printf("Failed to list scheduled campaigns: %v", err)
		return
	}
	for _, campaign := range due {
		d.Logger.Printf("Launching scheduled campaign %q (#%d)", campaign.Name, campaign.ID)
		if _, err := d.Launch(ctx, campaign.ID); err != nil {
			d.Logger.Printf("Failed to launch scheduled campaign %d: %v", campaign.ID, err)
		}
	}
}

// revokeOutstanding cancels queued work against the broker and marks
// the jobs revoked. Broker failures are logged, the store-side revoked
// status is what makes redelivered tasks no-ops.
func (d *Dispatcher) revokeOutstanding(ctx context.Context, campaignID uint) (int, error) {
	jobs, err := d.Store.ListRevocableJobs(campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to list revocable jobs: %w", err)
	}
	revoked := 0
	for i := range jobs {
		job := &jobs[i]
		if job.TaskID != "" {
			if err := d.Broker.Revoke(ctx, job.TaskID); err != nil {
				d.Logger.Printf("WARNING: failed to revoke task %s: %v", job.TaskID, err)
			}
		}
		job.Status = models.JobRevoked
		if err := d.Store.UpdateEmailJob(job); err != nil {
			return revoked, fmt.Errorf("failed to mark job %d revoked: %w", job.ID, err)
		}
		revoked++
	}
	return revoked, nil
}

func (d *Dispatcher) deactivateIfUnused(ctx context.Context, campaign *models.Campaign) {
	if campaign.LandingPageID == nil {
		return
	}
	cfg, err := d.Store.GetActiveConfiguration()
	if err != nil || cfg.ActiveLandingPageID == nil || *cfg.ActiveLandingPageID != *campaign.LandingPageID {
		return
	}
	other, err := d.Store.FindCampaignUsingPage(*campaign.LandingPageID, models.CampaignActive)
	if err != nil && err != store.ErrNotFound {
		d.Logger.Printf("WARNING: failed to check campaigns for page %d: %v", *campaign.LandingPageID, err)
		return
	}
	if other != nil && other.ID != campaign.ID {
		return
	}
	if err := d.Activator.Deactivate(ctx); err != nil {
		d.Logger.Printf("WARNING: failed to deactivate landing page: %v", err)
	}
}

// computeDelay picks this email's delay. Both bounds zero means send
// immediately, equal bounds a fixed delay, otherwise uniform random in
// [min, max].
func computeDelay(minDelay, maxDelay int) int {
	switch {
	case minDelay <= 0 && maxDelay <= 0:
		return 0
	case minDelay >= maxDelay:
		return minDelay
	default:
		return minDelay + rand.Intn(maxDelay-minDelay+1)
	}
}
