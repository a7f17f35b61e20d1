package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

const previewMarkerFile = ".preview_mode"

// Deployer copies landing page bundles from the template library into
// per-campaign deployment directories, so edits to the library never
// affect a running campaign and cleanup is a single directory removal.
// It also maintains the legacy flat cache that older stored pages are
// served from.
type Deployer struct {
	TemplatesDir   string
	DeploymentsDir string
	LegacyCacheDir string
	Logger         *log.Logger
}

func NewDeployer(templatesDir, deploymentsDir, legacyCacheDir string, logger *log.Logger) *Deployer {
	return &Deployer{
		TemplatesDir:   templatesDir,
		DeploymentsDir: deploymentsDir,
		LegacyCacheDir: legacyCacheDir,
		Logger:         logger,
	}
}

// DeployCampaign copies the named template bundle into the campaign's
// deployment directory, replacing any previous deployment.
func (d *Deployer) DeployCampaign(campaignID uint, templatePath string) (string, error) {
	return d.deployBundle(strconv.FormatUint(uint64(campaignID), 10), templatePath)
}

// DeployActive copies the bundle into the shared "active" directory,
// used when a landing page is activated without a campaign.
func (d *Deployer) DeployActive(templatePath string) (string, error) {
	return d.deployBundle("active", templatePath)
}

// DeployPreview copies the bundle into the preview directory and drops
// the preview marker so the tracking server knows not to log real
// campaign events against it.
func (d *Deployer) DeployPreview(templatePath string) (string, error) {
	dest, err := d.deployBundle("preview", templatePath)
	if err != nil {
		return "", err
	}
	marker := filepath.Join(dest, previewMarkerFile)
	if err := os.WriteFile(marker, []byte(templatePath), 0o644); err != nil {
		return "", fmt.Errorf("failed to write preview marker: %w", err)
	}
	return dest, nil
}

func (d *Deployer) deployBundle(name, templatePath string) (string, error) {
	source := filepath.Join(d.TemplatesDir, templatePath)
	info, err := os.Stat(source)
	if err != nil {
		return "", fmt.Errorf("template %q not found at %s: %w", templatePath, source, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("template path %q is not a directory", templatePath)
	}

	dest := filepath.Join(d.DeploymentsDir, name)
	if _, err := os.Stat(dest); err == nil {
		d.Logger.Printf("Removing existing deployment at %s", dest)
		if err := os.RemoveAll(dest); err != nil {
			return "", fmt.Errorf("failed to remove existing deployment: %w", err)
		}
	}
	if err := os.MkdirAll(d.DeploymentsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create deployments directory: %w", err)
	}

	d.Logger.Printf("Deploying template %q to %s", templatePath, dest)
	if err := copyDir(source, dest); err != nil {
		os.RemoveAll(dest)
		return "", fmt.Errorf("failed to copy template %q: %w", templatePath, err)
	}
	return dest, nil
}

// CleanupCampaign removes a campaign's deployment. A missing
// deployment is not an error, the campaign may never have launched.
func (d *Deployer) CleanupCampaign(campaignID uint) error {
	return d.removeDeployment(strconv.FormatUint(uint64(campaignID), 10))
}

// CleanupPreview removes the preview deployment if present.
func (d *Deployer) CleanupPreview() error {
	return d.removeDeployment("preview")
}

func (d *Deployer) removeDeployment(name string) error {
	dest := filepath.Join(d.DeploymentsDir, name)
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return nil
	}
	d.Logger.Printf("Cleaning up deployment at %s", dest)
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to remove deployment %s: %w", dest, err)
	}
	return nil
}

// CampaignDeploymentDir returns the deployment path for a campaign.
func (d *Deployer) CampaignDeploymentDir(campaignID uint) string {
	return filepath.Join(d.DeploymentsDir, strconv.FormatUint(uint64(campaignID), 10))
}

// PreviewDir returns the preview deployment path.
func (d *Deployer) PreviewDir() string {
	return filepath.Join(d.DeploymentsDir, "preview")
}

// IsPreviewDeployed reports whether a preview deployment exists.
func (d *Deployer) IsPreviewDeployed() bool {
	_, err := os.Stat(d.PreviewDir())
	return err == nil
}

// WriteLegacyCache writes a stored page's inline content into the flat
// cache layout older pages are served from.
func (d *Deployer) WriteLegacyCache(campaignID uint, urlPath, htmlContent, cssContent, jsContent string) error {
	dir := filepath.Join(d.LegacyCacheDir, strconv.FormatUint(uint64(campaignID), 10), urlPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	files := map[string]string{
		"index.html": htmlContent,
		"style.css":  cssContent,
		"script.js":  jsContent,
	}
	for name, content := range files {
		if content == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write cache file %s: %w", name, err)
		}
	}
	return nil
}

// ClearLegacyCache removes a campaign's legacy cache entries.
func (d *Deployer) ClearLegacyCache(campaignID uint) error {
	dir := filepath.Join(d.LegacyCacheDir, strconv.FormatUint(uint64(campaignID), 10))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(dir)
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
