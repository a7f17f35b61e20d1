package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/badoux/checkmail"

	"github.com/Ev0rain/Phishly/models"
	"github.com/Ev0rain/Phishly/queue"
	"github.com/Ev0rain/Phishly/store"
	"github.com/Ev0rain/Phishly/utils"
)

// DeliveryWorker consumes queued send tasks and delivers phishing
// emails. Every task is processed at-most-once from the target's point
// of view: redelivered tasks for an already-sent target are skipped,
// and once the transport reports success the job is never retried.
type DeliveryWorker struct {
	Store          store.Store
	Broker         queue.Broker
	Mailer         utils.Mailer
	Renderer       *utils.EmailRenderer
	TrackingSecret string
	Concurrency    int
	MaxRetries     int
	RetryDelay     time.Duration
	TaskTimeLimit  time.Duration
	SoftTimeLimit  time.Duration
	Logger         *log.Logger
}

func NewDeliveryWorker(st store.Store, broker queue.Broker, mailer utils.Mailer, renderer *utils.EmailRenderer, trackingSecret string, logger *log.Logger) *DeliveryWorker {
	return &DeliveryWorker{
		Store:          st,
		Broker:         broker,
		Mailer:         mailer,
		Renderer:       renderer,
		TrackingSecret: trackingSecret,
		Concurrency:    4,
		MaxRetries:     3,
		RetryDelay:     30 * time.Second,
		TaskTimeLimit:  300 * time.Second,
		SoftTimeLimit:  270 * time.Second,
		Logger:         logger,
	}
}

// Start runs the worker pool until the context is cancelled.
func (w *DeliveryWorker) Start(ctx context.Context) error {
	tasks, err := w.Broker.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	w.Logger.Printf("Delivery worker started with %d workers", w.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-tasks:
					if !ok {
						return
					}
					w.handleTask(ctx, id, task)
				}
			}
		}(i)
	}
	wg.Wait()
	w.Logger.Println("Delivery worker shutting down...")
	return nil
}

func (w *DeliveryWorker) handleTask(ctx context.Context, workerID int, task queue.Task) {
	taskCtx, cancel := context.WithTimeout(ctx, w.TaskTimeLimit)
	defer cancel()

	soft := time.AfterFunc(w.SoftTimeLimit, func() {
		w.Logger.Printf("[worker %d] task %s exceeded soft time limit", workerID, task.ID)
	})
	defer soft.Stop()

	result := w.ProcessTask(taskCtx, task)
	result.TaskID = task.ID
	result.CompletedAt = time.Now().UTC()

	if err := w.Broker.StoreResult(ctx, result); err != nil {
		w.Logger.Printf("[worker %d] failed to store result for %s: %v", workerID, task.ID, err)
	}
	if err := w.Broker.Ack(ctx, task.ID); err != nil {
		w.Logger.Printf("[worker %d] failed to ack task %s: %v", workerID, task.ID, err)
	}
}

// ProcessTask executes one send task end to end and reports its result.
func (w *DeliveryWorker) ProcessTask(ctx context.Context, task queue.Task) queue.Result {
	w.Logger.Printf("Processing task %s (campaign %d, target %d)", task.ID, task.CampaignID, task.TargetID)

	ct, err := w.Store.GetCampaignTarget(task.CampaignID, task.TargetID)
	if err != nil {
		w.Logger.Printf("Campaign target not found for task %s: %v", task.ID, err)
		return queue.Result{Status: queue.ResultFailed, Message: "campaign target not found"}
	}

	// Idempotency guard: a redelivered task for a target that already
	// got its email is a no-op.
	if models.StatusRank(ct.Status) >= models.StatusRank(models.TargetSent) {
		w.Logger.Printf("Target %d already %s, skipping task %s", task.TargetID, ct.Status, task.ID)
		w.closeStaleJob(ct.ID)
		return queue.Result{Status: queue.ResultSkipped, Message: "email already sent"}
	}

	job, err := w.Store.GetLatestEmailJob(ct.ID)
	if err == store.ErrNotFound {
		job = &models.EmailJob{CampaignTargetID: ct.ID, TaskID: task.ID, Status: models.JobPending}
		if err := w.Store.CreateEmailJob(job); err != nil {
			return queue.Result{Status: queue.ResultFailed, Message: fmt.Sprintf("failed to create job record: %v", err)}
		}
	} else if err != nil {
		return queue.Result{Status: queue.ResultFailed, Message: fmt.Sprintf("failed to load job record: %v", err)}
	}

	// Jobs the scheduler already finished with are never reprocessed.
	// Covers queue redelivery racing a pause: the revoked row wins.
	switch job.Status {
	case models.JobSent:
		return queue.Result{Status: queue.ResultSkipped, Message: "job already sent"}
	case models.JobRevoked:
		w.Logger.Printf("Job %d revoked, dropping task %s", job.ID, task.ID)
		return queue.Result{Status: queue.ResultRevoked, Message: "job revoked"}
	case models.JobFailed:
		return queue.Result{Status: queue.ResultSkipped, Message: "job already failed"}
	}

	campaign, target, tmpl, page, fatal := w.loadReferences(ctx, task)
	if fatal != "" {
		w.failJob(ctx, job, fatal)
		return queue.Result{Status: queue.ResultFailed, Message: fatal}
	}

	if err := checkmail.ValidateFormat(target.Email); err != nil {
		msg := fmt.Sprintf("invalid recipient address %q: %v", target.Email, err)
		w.failJob(ctx, job, msg)
		return queue.Result{Status: queue.ResultFailed, Message: msg}
	}

	token := ct.TrackingToken
	if token == "" {
		token = utils.GenerateTrackingToken(w.TrackingSecret, task.CampaignID, task.TargetID)
		if err := w.Store.SetCampaignTargetToken(ct.ID, token); err != nil {
			msg := fmt.Sprintf("failed to persist tracking token: %v", err)
			w.failJob(ctx, job, msg)
			return queue.Result{Status: queue.ResultFailed, Message: msg}
		}
	}

	variables := w.Renderer.BuildVariables(target, campaign, tmpl)
	subject := w.Renderer.RenderSubject(tmpl.Subject, variables)
	htmlBody, textBody := w.Renderer.RenderEmail(tmpl.BodyHTML, tmpl.BodyText, variables, token, page.URLPath)

	fromName := tmpl.FromName
	fromEmail := tmpl.FromEmail
	email := utils.OutgoingEmail{
		To:        target.Email,
		FromName:  fromName,
		FromEmail: fromEmail,
		Subject:   subject,
		HTMLBody:  htmlBody,
		TextBody:  textBody,
	}

	job.Status = models.JobSending
	if err := w.Store.UpdateEmailJob(job); err != nil {
		msg := fmt.Sprintf("failed to mark job sending: %v", err)
		return queue.Result{Status: queue.ResultFailed, Message: msg}
	}

	// Transport happens outside any store transaction. Retries cover
	// transport failures only; once a send succeeds we are past the
	// point of no return.
	var sendErr error
	for attempt := 1; attempt <= w.MaxRetries; attempt++ {
		sendErr = w.Mailer.Send(email)
		if sendErr == nil {
			break
		}
		w.Logger.Printf("Send attempt %d/%d for task %s failed: %v", attempt, w.MaxRetries, task.ID, sendErr)
		job.RetryCount = attempt
		if attempt < w.MaxRetries {
			select {
			case <-ctx.Done():
				sendErr = fmt.Errorf("task deadline exceeded: %w", ctx.Err())
				attempt = w.MaxRetries
			case <-time.After(w.RetryDelay):
			}
		}
	}
	if sendErr != nil {
		msg := fmt.Sprintf("transport failed after %d attempts: %v", w.MaxRetries, sendErr)
		w.failJob(ctx, job, msg)
		return queue.Result{Status: queue.ResultFailed, Message: msg}
	}

	// Past this point delivery happened. Bookkeeping failures must not
	// trigger a retry, a duplicate email is worse than a stale row.
	warning := ""
	now := time.Now().UTC()
	job.Status = models.JobSent
	job.SentAt = &now
	job.ErrorMessage = ""
	if err := w.Store.UpdateEmailJob(job); err != nil {
		warning = fmt.Sprintf("sent but failed to update job: %v", err)
		w.Logger.Printf("WARNING: %s", warning)
		// best-effort recovery write
		if rerr := w.Store.UpdateEmailJob(job); rerr == nil {
			warning = ""
		}
	}
	if _, err := w.Store.AdvanceCampaignTargetStatus(ct.ID, models.TargetSent); err != nil {
		warning = fmt.Sprintf("sent but failed to advance target status: %v", err)
		w.Logger.Printf("WARNING: %s", warning)
	}
	if err := w.Store.LogEvent(&ct.ID, models.EventEmailSent, store.EventMeta{}); err != nil {
		w.Logger.Printf("WARNING: failed to log email_sent event: %v", err)
	}

	msg := fmt.Sprintf("email sent to %s", target.Email)
	if warning != "" {
		msg = fmt.Sprintf("%s (warning: %s)", msg, warning)
	}
	w.Logger.Printf("Task %s completed: %s", task.ID, msg)
	return queue.Result{Status: queue.ResultSent, Message: msg}
}

// closeStaleJob marks a still-open job for an already-sent target as
// sent. A relaunch after a pause queues fresh job rows for every
// target, and the rows belonging to already-sent targets would
// otherwise sit in queued forever.
func (w *DeliveryWorker) closeStaleJob(campaignTargetID uint) {
	job, err := w.Store.GetLatestEmailJob(campaignTargetID)
	if err != nil {
		return
	}
	switch job.Status {
	case models.JobSent, models.JobFailed, models.JobBounced, models.JobRevoked:
		return
	}
	job.Status = models.JobSent
	if err := w.Store.UpdateEmailJob(job); err != nil {
		w.Logger.Printf("WARNING: failed to close stale job %d: %v", job.ID, err)
	}
}

// loadReferences resolves everything the send needs. A missing
// reference is fatal for the job, retrying cannot fix it.
func (w *DeliveryWorker) loadReferences(ctx context.Context, task queue.Task) (*models.Campaign, *models.Target, *models.EmailTemplate, *models.LandingPage, string) {
	campaign, err := w.Store.GetCampaign(task.CampaignID)
	if err != nil {
		return nil, nil, nil, nil, fmt.Sprintf("campaign %d not found", task.CampaignID)
	}
	target, err := w.Store.GetTarget(task.TargetID)
	if err != nil {
		return nil, nil, nil, nil, fmt.Sprintf("target %d not found", task.TargetID)
	}
	tmpl, err := w.Store.GetEmailTemplate(campaign.EmailTemplateID)
	if err != nil {
		return nil, nil, nil, nil, fmt.Sprintf("email template %d not found", campaign.EmailTemplateID)
	}

	pageID := campaign.LandingPageID
	if pageID == nil {
		pageID = tmpl.DefaultLandingPageID
	}
	if pageID == nil {
		return nil, nil, nil, nil, fmt.Sprintf("campaign %d has no landing page", campaign.ID)
	}
	page, err := w.Store.GetLandingPage(*pageID)
	if err != nil {
		return nil, nil, nil, nil, fmt.Sprintf("landing page %d not found", *pageID)
	}
	return campaign, target, tmpl, page, ""
}

func (w *DeliveryWorker) failJob(ctx context.Context, job *models.EmailJob, msg string) {
	job.Status = models.JobFailed
	job.ErrorMessage = msg
	if err := w.Store.UpdateEmailJob(job); err != nil {
		w.Logger.Printf("WARNING: failed to mark job %d failed: %v", job.ID, err)
	}
}
