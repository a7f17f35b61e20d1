package controller

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/Ev0rain/Phishly/models"
	"github.com/Ev0rain/Phishly/store"
)

const notFoundPage = "<html><body><h1>Page Not Found</h1></body></html>"
const serverErrorPage = "<html><body><h1>Server Error</h1></body></html>"

var staticAssetExtensions = map[string]bool{
	".css": true, ".js": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".svg": true, ".avif": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

// TrackingErrorHandler keeps error detail off the public surface.
// Routing 404s, including SendFile on a file that vanished after
// resolution, get the generic not-found page; everything else collapses
// to the generic server error page.
func TrackingErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		if code == fiber.StatusNotFound {
			logger.WithError(err).Warn("Tracking request for missing content")
			return c.Status(fiber.StatusNotFound).SendString(notFoundPage)
		}
		logger.WithError(err).Error("Unhandled tracking request error")
		return c.Status(fiber.StatusInternalServerError).SendString(serverErrorPage)
	}
}

// resolvedContent is where the cascade landed for a request.
type resolvedContent struct {
	dir    string
	file   string // relative to dir
	direct bool   // request named the file itself
}

// ServeLandingPage is the catch-all handler. It resolves content via a
// strict precedence order (preview, campaign deployment, legacy caches,
// database page) and logs interaction events for HTML traffic carrying
// a token.
func (tc *TrackingController) ServeLandingPage(c *fiber.Ctx) error {
	urlPath := strings.TrimPrefix(c.Path(), "/")
	token := c.Query("t")
	meta := tc.requestMeta(c)

	// Awareness tracking runs before content resolution on purpose:
	// the awareness page may not exist as servable content at all, and
	// the submission still has to be recorded.
	normalized := strings.ToLower(strings.Trim(urlPath, "/"))
	isAwareness := normalized == "awareness" || strings.HasPrefix(normalized, "awareness/")
	if isAwareness {
		if ct := tc.resolveToken(token); ct != nil {
			if err := tc.Store.LogEvent(&ct.ID, models.EventFormSubmitted, meta); err != nil {
				tc.Logger.WithError(err).Error("Failed to log awareness submission")
			}
			if _, err := tc.Store.AdvanceCampaignTargetStatus(ct.ID, models.TargetSubmitted); err != nil {
				tc.Logger.WithError(err).Error("Failed to advance target status")
			}
			tc.Logger.WithFields(logrus.Fields{
				"token":     truncateToken(token),
				"target_id": ct.TargetID,
			}).Info("Credentials submitted (awareness page)")
		}
	}

	if resolved := tc.resolveContent(normalized); resolved != nil {
		fileToServe := "index.html"
		isHTML := true
		switch {
		case resolved.direct:
			fileToServe = resolved.file
			isHTML = strings.HasSuffix(resolved.file, ".html")
		case staticAssetExtensions[strings.ToLower(filepath.Ext(urlPath))]:
			isHTML = false
			fileToServe = filepath.Base(urlPath)
		case strings.HasSuffix(urlPath, ".html"):
			fileToServe = filepath.Base(urlPath)
		}

		// Static assets are served without logging
		if isHTML && !isAwareness {
			tc.logPageVisit(token, urlPath, meta)
		}

		return c.SendFile(filepath.Join(resolved.dir, fileToServe))
	}

	// Last resort: HTML stored in the database
	page, err := tc.Store.GetLandingPageByURLPath(urlPath)
	if err == nil {
		if !isAwareness {
			tc.logPageVisit(token, urlPath, meta)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(page.HTMLContent)
	}

	tc.Logger.WithField("path", urlPath).Warn("Landing page not found")
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(fiber.StatusNotFound).SendString(notFoundPage)
}

// logPageVisit records link_clicked for a resolvable token, otherwise
// an anonymous visit with no target reference.
func (tc *TrackingController) logPageVisit(token, urlPath string, meta store.EventMeta) {
	if ct := tc.resolveToken(token); ct != nil {
		if err := tc.Store.LogEvent(&ct.ID, models.EventLinkClicked, meta); err != nil {
			tc.Logger.WithError(err).Error("Failed to log link click")
		}
		if _, err := tc.Store.AdvanceCampaignTargetStatus(ct.ID, models.TargetClicked); err != nil {
			tc.Logger.WithError(err).Error("Failed to advance target status")
		}
		tc.Logger.WithFields(logrus.Fields{
			"token":     truncateToken(token),
			"path":      urlPath,
			"target_id": ct.TargetID,
		}).Info("Link clicked")
		return
	}
	if err := tc.Store.LogEvent(nil, models.EventAnonymousVisit, meta); err != nil {
		tc.Logger.WithError(err).Error("Failed to log anonymous visit")
	}
	tc.Logger.WithField("path", urlPath).Warn("Anonymous visit")
}

// resolveContent walks the precedence cascade for a normalized path.
func (tc *TrackingController) resolveContent(normalized string) *resolvedContent {
	// Preview deployment bypasses campaign logic
	if normalized == "preview" || strings.HasPrefix(normalized, "preview/") {
		previewDir := tc.Deployer.PreviewDir()
		if dirExists(previewDir) {
			previewPath := strings.TrimPrefix(strings.TrimPrefix(normalized, "preview"), "/")
			if previewPath == "" {
				if fileExists(filepath.Join(previewDir, "index.html")) {
					return &resolvedContent{dir: previewDir}
				}
			} else {
				if fileExists(filepath.Join(previewDir, previewPath)) {
					return &resolvedContent{dir: previewDir, file: previewPath, direct: true}
				}
				if fileExists(filepath.Join(previewDir, previewPath, "index.html")) {
					return &resolvedContent{dir: filepath.Join(previewDir, previewPath)}
				}
			}
		}
	}

	// Active campaign deployment, or the shared "active" deployment
	// when no campaign is running
	deployDir := ""
	if campaignID := tc.activeCampaignID(); campaignID != 0 {
		deployDir = tc.Deployer.CampaignDeploymentDir(campaignID)
	} else {
		deployDir = filepath.Join(tc.Deployer.DeploymentsDir, "active")
	}
	if dirExists(deployDir) {
		if normalized != "" && fileExists(filepath.Join(deployDir, normalized)) {
			return &resolvedContent{dir: deployDir, file: normalized, direct: true}
		}
		if fileExists(filepath.Join(deployDir, normalized, "index.html")) {
			return &resolvedContent{dir: filepath.Join(deployDir, normalized)}
		}
		// Unmatched paths fall back to the bundle root index, covering
		// pages configured as "/en/home" while files sit at the root
		if fileExists(filepath.Join(deployDir, "index.html")) {
			tc.Logger.WithField("path", normalized).Info("Path not found in deployment, falling back to bundle root")
			return &resolvedContent{dir: deployDir}
		}
	}

	// Legacy flat caches
	activeCacheDir := filepath.Join(tc.Deployer.LegacyCacheDir, "active", normalized)
	if fileExists(filepath.Join(activeCacheDir, "index.html")) {
		return &resolvedContent{dir: activeCacheDir}
	}
	if entries, err := os.ReadDir(tc.Deployer.LegacyCacheDir); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() || entry.Name() == "active" {
				continue
			}
			pageDir := filepath.Join(tc.Deployer.LegacyCacheDir, entry.Name(), normalized)
			if fileExists(filepath.Join(pageDir, "index.html")) {
				return &resolvedContent{dir: pageDir}
			}
		}
	}

	return nil
}

// activeCampaignID resolves the campaign actively using the active
// landing page, zero when there is none.
func (tc *TrackingController) activeCampaignID() uint {
	cfg, err := tc.Store.GetActiveConfiguration()
	if err != nil || cfg.ActiveLandingPageID == nil {
		return 0
	}
	campaign, err := tc.Store.FindCampaignUsingPage(*cfg.ActiveLandingPageID, models.CampaignActive)
	if err != nil || campaign == nil {
		return 0
	}
	return campaign.ID
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
