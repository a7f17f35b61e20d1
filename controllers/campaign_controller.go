package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ev0rain/Phishly/store"
	"github.com/Ev0rain/Phishly/utils"
)

type CampaignController struct {
	Store      store.Store
	Dispatcher *utils.Dispatcher
	Logger     *log.Logger
}

func NewCampaignController(st store.Store, dispatcher *utils.Dispatcher, logger *log.Logger) *CampaignController {
	return &CampaignController{
		Store:      st,
		Dispatcher: dispatcher,
		Logger:     logger,
	}
}

type createCampaignInput struct {
	Name            string `json:"name" validate:"required,min=1,max=255"`
	Description     string `json:"description"`
	EmailTemplateID uint   `json:"email_template_id" validate:"required"`
	LandingPageID   *uint  `json:"landing_page_id"`
	TargetListIDs   []uint `json:"target_list_ids" validate:"required,min=1"`
	MinEmailDelay   int    `json:"min_email_delay" validate:"min=0"`
	MaxEmailDelay   int    `json:"max_email_delay" validate:"min=0"`
	ScheduledLaunch string `json:"scheduled_launch"` // RFC 3339, optional
}

func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	var input createCampaignInput
	if err := c.BodyParser(&input); err != nil {
		cc.Logger.Printf("Error parsing request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if input.MaxEmailDelay < input.MinEmailDelay {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "max_email_delay must not be less than min_email_delay",
		})
	}

	var scheduledLaunch *time.Time
	if input.ScheduledLaunch != "" {
		t, err := time.Parse(time.RFC3339, input.ScheduledLaunch)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "scheduled_launch must be RFC 3339",
			})
		}
		scheduledLaunch = &t
	}

	campaign, err := cc.Dispatcher.CreateCampaign(c.Context(), utils.CampaignDraft{
		Name:            input.Name,
		Description:     input.Description,
		EmailTemplateID: input.EmailTemplateID,
		LandingPageID:   input.LandingPageID,
		TargetListIDs:   input.TargetListIDs,
		MinEmailDelay:   input.MinEmailDelay,
		MaxEmailDelay:   input.MaxEmailDelay,
		ScheduledLaunch: scheduledLaunch,
	})
	if err != nil {
		cc.Logger.Printf("Error creating campaign: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"campaign": campaign,
	})
}
