package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/Ev0rain/Phishly/store"
	"github.com/Ev0rain/Phishly/utils"
)

type LandingPageController struct {
	Store     store.Store
	Activator *utils.Activator
	Deployer  *utils.Deployer
	Logger    *log.Logger
}

func NewLandingPageController(st store.Store, activator *utils.Activator, deployer *utils.Deployer, logger *log.Logger) *LandingPageController {
	return &LandingPageController{
		Store:     st,
		Activator: activator,
		Deployer:  deployer,
		Logger:    logger,
	}
}

type activateInput struct {
	ActivatedBy    string `json:"activated_by"`
	PhishingDomain string `json:"phishing_domain"`
	PublicIP       string `json:"public_ip"`
}

func (lc *LandingPageController) ActivateLandingPage(c *fiber.Ctx) error {
	pageID := utils.ParseUint(c.Params("id"))
	if pageID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid landing page ID"})
	}

	var input activateInput
	if err := c.BodyParser(&input); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if input.ActivatedBy == "" {
		input.ActivatedBy = "admin"
	}

	result, err := lc.Activator.Activate(c.Context(), pageID, input.ActivatedBy, input.PhishingDomain, input.PublicIP)
	if err != nil {
		lc.Logger.Printf("Error activating landing page %d: %v", pageID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	resp := fiber.Map{
		"success": true,
		"message": "Landing page '" + result.LandingPage.Name + "' activated successfully",
	}
	if result.DNSZonePath != "" {
		resp["dns_zone_path"] = result.DNSZonePath
	}
	return c.JSON(resp)
}

func (lc *LandingPageController) DeactivateLandingPage(c *fiber.Ctx) error {
	if err := lc.Activator.Deactivate(c.Context()); err != nil {
		lc.Logger.Printf("Error deactivating landing page: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "message": "Landing page deactivated successfully"})
}

func (lc *LandingPageController) GetActiveConfiguration(c *fiber.Ctx) error {
	cfg, err := lc.Store.GetActiveConfiguration()
	if err != nil {
		lc.Logger.Printf("Error loading active configuration: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load configuration"})
	}
	return c.JSON(fiber.Map{"success": true, "configuration": cfg})
}

type previewInput struct {
	TemplatePath string `json:"template_path" validate:"required"`
}

// DeployPreview deploys a template bundle to the preview path so it
// can be checked without touching any campaign.
func (lc *LandingPageController) DeployPreview(c *fiber.Ctx) error {
	var input previewInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if _, err := lc.Deployer.DeployPreview(input.TemplatePath); err != nil {
		lc.Logger.Printf("Error deploying preview: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"message":     "Preview deployed successfully for template '" + input.TemplatePath + "'",
		"preview_url": "/preview/",
	})
}

func (lc *LandingPageController) CleanupPreview(c *fiber.Ctx) error {
	if err := lc.Deployer.CleanupPreview(); err != nil {
		lc.Logger.Printf("Error cleaning up preview: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "message": "Preview deployment cleaned up successfully"})
}
