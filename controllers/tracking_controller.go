package controller

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/Ev0rain/Phishly/models"
	"github.com/Ev0rain/Phishly/store"
	"github.com/Ev0rain/Phishly/utils"
)

// 1x1 transparent GIF returned by the open-tracking endpoint
var trackingPixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0xff, 0xff, 0xff,
	0x00, 0x00, 0x00, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// field names that mark a submission as credential capture
var credentialFieldNames = map[string]bool{
	"password": true,
	"pwd":      true,
	"pass":     true,
	"secret":   true,
}

// TrackingController is the public, unauthenticated surface targets
// hit from their inbox. Every handler degrades gracefully: tracking
// failures never break content serving.
type TrackingController struct {
	Store    store.Store
	Deployer *utils.Deployer
	Logger   *logrus.Logger
}

func NewTrackingController(st store.Store, deployer *utils.Deployer, logger *logrus.Logger) *TrackingController {
	return &TrackingController{Store: st, Deployer: deployer, Logger: logger}
}

// HealthCheck reports server and store health for container probes.
func (tc *TrackingController) HealthCheck(c *fiber.Ctx) error {
	if _, err := tc.Store.CountCampaigns(""); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"status":   "healthy",
		"database": "connected",
	})
}

// TrackOpen serves the tracking pixel. The image always comes back
// regardless of token validity, only the logging side effect differs.
func (tc *TrackingController) TrackOpen(c *fiber.Ctx) error {
	token := c.Query("t")
	meta := tc.requestMeta(c)

	if token != "" {
		ct, err := tc.Store.GetCampaignTargetByToken(token)
		if err == nil {
			if err := tc.Store.LogEvent(&ct.ID, models.EventEmailOpened, meta); err != nil {
				tc.Logger.WithError(err).Error("Failed to log email open")
			}
			if _, err := tc.Store.AdvanceCampaignTargetStatus(ct.ID, models.TargetOpened); err != nil {
				tc.Logger.WithError(err).Error("Failed to advance target status")
			}
			tc.Logger.WithFields(logrus.Fields{
				"token":     truncateToken(token),
				"target_id": ct.TargetID,
			}).Info("Email opened")
		} else {
			tc.Logger.WithField("token", truncateToken(token)).Warn("Invalid tracking token for email open")
		}
	}

	c.Set(fiber.HeaderContentType, "image/gif")
	c.Set(fiber.HeaderCacheControl, "no-store, no-cache, must-revalidate")
	return c.Send(trackingPixelGIF)
}

// HandleFormSubmission receives landing page form posts. The tracking
// token is stripped from the captured payload; field values are never
// stored, only field names are inspected for credential capture.
func (tc *TrackingController) HandleFormSubmission(c *fiber.Ctx) error {
	meta := tc.requestMeta(c)

	formData := map[string]string{}
	if strings.Contains(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		var body map[string]interface{}
		if err := json.Unmarshal(c.Body(), &body); err == nil {
			for k, v := range body {
				if s, ok := v.(string); ok {
					formData[k] = s
				}
			}
		}
	} else {
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			formData[string(key)] = string(value)
		})
	}

	token := c.Query("t")
	if token == "" {
		token = formData["t"]
	}
	if token == "" {
		token = formData["_token"]
	}
	delete(formData, "t")
	delete(formData, "_token")

	var redirectURL string

	ct := tc.resolveToken(token)
	if ct != nil {
		eventName := models.EventFormSubmitted
		for key := range formData {
			if credentialFieldNames[strings.ToLower(key)] {
				eventName = models.EventCredentialsCaptured
				break
			}
		}

		if err := tc.Store.LogEvent(&ct.ID, eventName, meta); err != nil {
			tc.Logger.WithError(err).Error("Failed to log form submission")
		}
		if err := tc.Store.CreateFormSubmission(&models.FormSubmission{
			CampaignTargetID: ct.ID,
			IPAddress:        meta.IPAddress,
			UserAgent:        meta.UserAgent,
		}); err != nil {
			tc.Logger.WithError(err).Error("Failed to record form submission")
		}
		if _, err := tc.Store.AdvanceCampaignTargetStatus(ct.ID, models.TargetSubmitted); err != nil {
			tc.Logger.WithError(err).Error("Failed to advance target status")
		}

		redirectURL = tc.campaignRedirectURL(ct)

		tc.Logger.WithFields(logrus.Fields{
			"token": truncateToken(token),
			"event": eventName,
		}).Info("Form submitted")
	} else {
		if err := tc.Store.LogEvent(nil, models.EventAnonymousSubmission, meta); err != nil {
			tc.Logger.WithError(err).Error("Failed to log anonymous submission")
		}
		tc.Logger.WithField("token", truncateToken(token)).Warn("Anonymous form submission")
	}

	if redirectURL != "" {
		return c.Redirect(redirectURL, fiber.StatusFound)
	}
	return c.JSON(fiber.Map{"status": "success", "message": "Form received"})
}

// requestMeta extracts client attributes, honoring proxy headers.
func (tc *TrackingController) requestMeta(c *fiber.Ctx) store.EventMeta {
	ip := c.Get("X-Forwarded-For")
	if ip != "" {
		ip = strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip == "" {
		ip = c.Get("X-Real-IP")
	}
	if ip == "" {
		ip = c.IP()
	}

	ua := c.Get(fiber.HeaderUserAgent)
	info := utils.ParseUserAgent(ua)
	return store.EventMeta{
		IPAddress:  ip,
		UserAgent:  ua,
		Browser:    info.Browser,
		OS:         info.OS,
		DeviceType: info.DeviceType,
	}
}

// resolveToken maps a token to its campaign target, nil when absent or
// unknown.
func (tc *TrackingController) resolveToken(token string) *models.CampaignTarget {
	if token == "" {
		return nil
	}
	ct, err := tc.Store.GetCampaignTargetByToken(token)
	if err != nil {
		return nil
	}
	return ct
}

// campaignRedirectURL finds the post-submission redirect configured on
// the target's campaign landing page.
func (tc *TrackingController) campaignRedirectURL(ct *models.CampaignTarget) string {
	campaign, err := tc.Store.GetCampaign(ct.CampaignID)
	if err != nil || campaign.LandingPageID == nil {
		return ""
	}
	page, err := tc.Store.GetLandingPage(*campaign.LandingPageID)
	if err != nil {
		return ""
	}
	return page.RedirectURL
}

func truncateToken(token string) string {
	if len(token) > 8 {
		return token[:8] + "..."
	}
	return token
}
