package controller

import (
	"math"

	"github.com/gofiber/fiber/v2"

	"github.com/Ev0rain/Phishly/models"
)

// GetDashboardStats returns the campaign KPIs shown on the dashboard.
// Open/click/submission counts are distinct targets, not raw event
// counts, so a target refreshing the page five times counts once.
func (cc *CampaignController) GetDashboardStats(c *fiber.Ctx) error {
	totalCampaigns, err := cc.Store.CountCampaigns("")
	if err != nil {
		cc.Logger.Printf("Error counting campaigns: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load stats"})
	}
	activeCampaigns, _ := cc.Store.CountCampaigns(models.CampaignActive)

	emailsSent, _ := cc.Store.CountEventsByType(models.EventEmailSent)
	emailsOpened, _ := cc.Store.CountDistinctTargetsByEventType(models.EventEmailOpened)
	linksClicked, _ := cc.Store.CountDistinctTargetsByEventType(models.EventLinkClicked)
	credentialsSubmitted, _ := cc.Store.CountDistinctTargetsByEventType(models.EventFormSubmitted)

	return c.JSON(fiber.Map{
		"success": true,
		"stats": fiber.Map{
			"total_campaigns":       totalCampaigns,
			"active_campaigns":      activeCampaigns,
			"emails_sent":           emailsSent,
			"emails_opened":         emailsOpened,
			"links_clicked":         linksClicked,
			"credentials_submitted": credentialsSubmitted,
			"open_rate":             rate(emailsOpened, emailsSent),
			"click_rate":            rate(linksClicked, emailsSent),
			"submission_rate":       rate(credentialsSubmitted, emailsSent),
		},
	})
}

func rate(part, whole int64) float64 {
	if whole == 0 {
		return 0.0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}
