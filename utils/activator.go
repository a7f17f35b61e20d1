package utils

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ev0rain/Phishly/models"
	"github.com/Ev0rain/Phishly/store"
)

// Activator manages the single active landing page configuration. Only
// one page serves live traffic at a time, and switching pages while a
// campaign depends on the current one is refused.
type Activator struct {
	Store      store.Store
	Deployer   *Deployer
	DNSZoneDir string
	Logger     *log.Logger
}

func NewActivator(st store.Store, deployer *Deployer, dnsZoneDir string, logger *log.Logger) *Activator {
	return &Activator{
		Store:      st,
		Deployer:   deployer,
		DNSZoneDir: dnsZoneDir,
		Logger:     logger,
	}
}

// ActivateResult reports what an activation did.
type ActivateResult struct {
	LandingPage *models.LandingPage
	DNSZonePath string
	NewlyActive bool
}

// Activate makes pageID the active landing page. When another page is
// currently active and in use by an active or scheduled campaign, the
// switch is refused. A genuine change regenerates the DNS zone entry
// file and deploys the page's bundle to the shared active directory.
func (a *Activator) Activate(ctx context.Context, pageID uint, actor, phishingDomain, publicIP string) (*ActivateResult, error) {
	page, err := a.Store.GetLandingPage(pageID)
	if err != nil {
		return nil, fmt.Errorf("landing page %d not found: %w", pageID, err)
	}

	cfg, err := a.Store.GetActiveConfiguration()
	if err != nil {
		return nil, fmt.Errorf("failed to load active configuration: %w", err)
	}

	if cfg.ActiveLandingPageID != nil && *cfg.ActiveLandingPageID != pageID {
		campaign, err := a.Store.FindCampaignUsingPage(*cfg.ActiveLandingPageID,
			models.CampaignActive, models.CampaignScheduled)
		if err != nil && err != store.ErrNotFound {
			return nil, fmt.Errorf("failed to check campaigns for active page: %w", err)
		}
		if campaign != nil {
			return nil, fmt.Errorf("cannot activate: campaign %q (%s) is using the current page", campaign.Name, campaign.Status)
		}
	}

	newlyActive := cfg.ActiveLandingPageID == nil || *cfg.ActiveLandingPageID != pageID

	cfg.ActiveLandingPageID = &pageID
	cfg.ActivatedAt = Pointer(time.Now().UTC())
	cfg.ActivatedBy = actor
	if phishingDomain != "" {
		cfg.PhishingDomain = phishingDomain
	}
	if publicIP != "" {
		cfg.PublicIP = publicIP
	}

	result := &ActivateResult{LandingPage: page, NewlyActive: newlyActive}

	if newlyActive {
		zonePath, err := a.generateDNSZoneFile(cfg, page)
		if err != nil {
			a.Logger.Printf("WARNING: failed to generate DNS zone file: %v", err)
		} else {
			cfg.DNSZoneFilePath = zonePath
			result.DNSZonePath = zonePath
		}
		if page.TemplatePath != "" {
			if _, err := a.Deployer.DeployActive(page.TemplatePath); err != nil {
				a.Logger.Printf("WARNING: failed to deploy active bundle: %v", err)
			}
		}
	}

	if err := a.Store.SaveActiveConfiguration(cfg); err != nil {
		return nil, fmt.Errorf("failed to save active configuration: %w", err)
	}

	a.Logger.Printf("Landing page %q (#%d) activated by %s", page.Name, page.ID, actor)
	return result, nil
}

// Deactivate clears the active landing page. Refused while a campaign
// using the page is active or scheduled; a paused or completed campaign
// does not block it.
func (a *Activator) Deactivate(ctx context.Context) error {
	cfg, err := a.Store.GetActiveConfiguration()
	if err != nil {
		return fmt.Errorf("failed to load active configuration: %w", err)
	}
	if cfg.ActiveLandingPageID == nil {
		return nil
	}

	campaign, err := a.Store.FindCampaignUsingPage(*cfg.ActiveLandingPageID,
		models.CampaignActive, models.CampaignScheduled)
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("failed to check campaigns for active page: %w", err)
	}
	if campaign != nil {
		if campaign.Status == models.CampaignActive {
			return fmt.Errorf("cannot deactivate: campaign %q is currently running", campaign.Name)
		}
		return fmt.Errorf("cannot deactivate: campaign %q is scheduled to launch", campaign.Name)
	}

	pageID := *cfg.ActiveLandingPageID
	cfg.ActiveLandingPageID = nil
	if err := a.Store.SaveActiveConfiguration(cfg); err != nil {
		return fmt.Errorf("failed to save active configuration: %w", err)
	}

	a.Logger.Printf("Landing page %d deactivated", pageID)
	return nil
}

func (a *Activator) generateDNSZoneFile(cfg *models.ActiveConfiguration, page *models.LandingPage) (string, error) {
	if err := os.MkdirAll(a.DNSZoneDir, 0o755); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	filename := fmt.Sprintf("dns-zone-entry_%s.txt", now.Format("20060102_150405"))
	path := filepath.Join(a.DNSZoneDir, filename)

	domain := page.Domain
	if domain == "" {
		domain = cfg.PhishingDomain
	}
	if domain == "" {
		domain = "phishing.example.com"
	}
	// Strip protocol and path when a full URL slipped into the field
	if idx := strings.Index(domain, "://"); idx != -1 {
		domain = domain[idx+3:]
	}
	if idx := strings.Index(domain, "/"); idx != -1 {
		domain = domain[:idx]
	}

	ip := cfg.PublicIP
	if ip == "" {
		ip = "YOUR_SERVER_IP"
	}

	content := fmt.Sprintf(`; Phishly DNS Zone Entry
; Generated: %s
; Landing Page: %s
; URL Path: %s
; Domain: %s

; ==============================================
; ADD THE FOLLOWING TO YOUR DNS ZONE FILE
; ==============================================

; A Record - Point phishing domain to your server IP
%s.    IN    A    %s

; If using a subdomain, you may also need:
; *.%s.    IN    A    %s

; ==============================================
; NOTES
; ==============================================
; 1. Replace %s with your actual server IP if not set
; 2. TTL is typically 300-3600 seconds
; 3. Ensure SSL certificates are configured for HTTPS
`,
		now.Format("2006-01-02 15:04:05 UTC"), page.Name, page.URLPath, domain,
		domain, ip, domain, ip, ip)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	a.Logger.Printf("Generated DNS zone file: %s", path)
	return path, nil
}
