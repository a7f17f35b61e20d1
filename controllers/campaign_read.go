package controller

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ev0rain/Phishly/models"
	"github.com/Ev0rain/Phishly/store"
	"github.com/Ev0rain/Phishly/utils"
)

func (cc *CampaignController) GetCampaignDetails(c *fiber.Ctx) error {
	campaignID := utils.ParseUint(c.Params("id"))
	if campaignID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid campaign ID"})
	}

	campaign, err := cc.Store.GetCampaign(campaignID)
	if err != nil {
		if err == store.ErrNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Campaign not found"})
		}
		cc.Logger.Printf("Error loading campaign %d: %v", campaignID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load campaign"})
	}

	var templateInfo fiber.Map
	if tmpl, err := cc.Store.GetEmailTemplate(campaign.EmailTemplateID); err == nil {
		templateInfo = fiber.Map{
			"id":         tmpl.ID,
			"name":       tmpl.Name,
			"subject":    tmpl.Subject,
			"from_name":  tmpl.FromName,
			"from_email": tmpl.FromEmail,
		}
	}

	cts, err := cc.Store.ListCampaignTargets(campaignID)
	if err != nil {
		cc.Logger.Printf("Error loading campaign targets: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load targets"})
	}

	targets := make([]fiber.Map, 0, len(cts))
	emailsSent := 0
	for _, ct := range cts {
		target, err := cc.Store.GetTarget(ct.TargetID)
		if err != nil {
			continue
		}

		emailStatus := models.JobPending
		var sentAt interface{}
		if job, err := cc.Store.GetLatestEmailJob(ct.ID); err == nil {
			emailStatus = job.Status
			if job.SentAt != nil {
				sentAt = job.SentAt
			}
		}
		if emailStatus == models.JobSent {
			emailsSent++
		}

		targets = append(targets, fiber.Map{
			"id":            target.ID,
			"email":         target.Email,
			"first_name":    target.FirstName,
			"last_name":     target.LastName,
			"position":      target.Position,
			"email_status":  emailStatus,
			"sent_at":       sentAt,
			"target_status": ct.Status,
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"campaign": fiber.Map{
			"id":               campaign.ID,
			"name":             campaign.Name,
			"description":      campaign.Description,
			"status":           campaign.Status,
			"created_at":       campaign.CreatedAt,
			"start_date":       campaign.StartDate,
			"scheduled_launch": campaign.ScheduledLaunch,
			"min_email_delay":  campaign.MinEmailDelay,
			"max_email_delay":  campaign.MaxEmailDelay,
		},
		"template":      templateInfo,
		"targets":       targets,
		"total_targets": len(targets),
		"emails_sent":   emailsSent,
	})
}
