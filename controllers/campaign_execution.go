package controller

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/Ev0rain/Phishly/utils"
)

func (cc *CampaignController) LaunchCampaign(c *fiber.Ctx) error {
	campaignID := utils.ParseUint(c.Params("id"))
	if campaignID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid campaign ID"})
	}

	result, err := cc.Dispatcher.Launch(c.Context(), campaignID)
	if err != nil {
		cc.Logger.Printf("Error launching campaign %d: %v", campaignID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Campaign launched! %d email jobs created, %d tasks queued for sending.",
			result.JobsCreated, result.TasksQueued),
		"jobs_created": result.JobsCreated,
		"tasks_queued": result.TasksQueued,
	})
}

func (cc *CampaignController) PauseCampaign(c *fiber.Ctx) error {
	campaignID := utils.ParseUint(c.Params("id"))
	if campaignID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid campaign ID"})
	}

	if err := cc.Dispatcher.Pause(c.Context(), campaignID); err != nil {
		cc.Logger.Printf("Error pausing campaign %d: %v", campaignID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"success": true, "message": "Campaign paused successfully"})
}

func (cc *CampaignController) CompleteCampaign(c *fiber.Ctx) error {
	campaignID := utils.ParseUint(c.Params("id"))
	if campaignID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid campaign ID"})
	}

	if err := cc.Dispatcher.Complete(c.Context(), campaignID); err != nil {
		cc.Logger.Printf("Error completing campaign %d: %v", campaignID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"success": true, "message": "Campaign completed successfully"})
}

func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
	campaignID := utils.ParseUint(c.Params("id"))
	if campaignID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid campaign ID"})
	}

	if err := cc.Dispatcher.Delete(c.Context(), campaignID); err != nil {
		cc.Logger.Printf("Error deleting campaign %d: %v", campaignID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"success": true, "message": "Campaign deleted successfully"})
}
