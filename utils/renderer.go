package utils

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/Ev0rain/Phishly/models"
)

// templates use {{ variable }} placeholders
var templateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// EmailRenderer substitutes template variables and injects tracking
// URLs into outbound email content.
type EmailRenderer struct {
	PhishingDomain string
}

func NewEmailRenderer(phishingDomain string) *EmailRenderer {
	return &EmailRenderer{PhishingDomain: phishingDomain}
}

// BuildVariables assembles the substitution map for a target. Auto
// generated variables (tracking number, delivery date, year) vary per
// render, which is fine since they exist only to make content plausible.
func (r *EmailRenderer) BuildVariables(target *models.Target, campaign *models.Campaign, tmpl *models.EmailTemplate) map[string]string {
	return map[string]string{
		"salutation":      target.Salutation,
		"first_name":      target.FirstName,
		"last_name":       target.LastName,
		"email":           target.Email,
		"position":        target.Position,
		"department":      target.Department,
		"campaign_name":   campaign.Name,
		"sender_name":     tmpl.FromName,
		"sender_email":    tmpl.FromEmail,
		"year":            fmt.Sprintf("%d", time.Now().Year()),
		"tracking_number": GenerateTrackingNumber(),
		"delivery_date":   GenerateDeliveryDate(0),
	}
}

// RenderEmail renders the HTML and text bodies, adding tracking URLs to
// the variable set and injecting the open-tracking pixel into the HTML.
func (r *EmailRenderer) RenderEmail(htmlTemplate, textTemplate string, variables map[string]string, trackingToken, landingPagePath string) (string, string) {
	pixelURL := GenerateTrackingPixelURL(r.PhishingDomain, trackingToken)
	linkURL := GeneratePhishingLinkURL(r.PhishingDomain, landingPagePath, trackingToken)
	unsubURL := GenerateUnsubscribeURL(r.PhishingDomain, trackingToken)

	renderVars := make(map[string]string, len(variables)+4)
	for k, v := range variables {
		renderVars[k] = v
	}
	renderVars["tracking_pixel_url"] = pixelURL
	renderVars["phishing_link"] = linkURL
	renderVars["landing_page_url"] = linkURL
	renderVars["unsubscribe_url"] = unsubURL

	htmlContent := substituteVariables(htmlTemplate, renderVars)
	textContent := substituteVariables(textTemplate, renderVars)

	htmlContent = InjectTrackingPixel(htmlContent, pixelURL)
	return htmlContent, textContent
}

// RenderSubject renders the subject line and collapses any whitespace
// runs, since header values must be a single line.
func (r *EmailRenderer) RenderSubject(subjectTemplate string, variables map[string]string) string {
	subject := substituteVariables(subjectTemplate, variables)
	return strings.Join(strings.Fields(subject), " ")
}

// substituteVariables replaces {{ name }} placeholders from the map.
// Unknown placeholders render as empty strings rather than failing the
// send.
func substituteVariables(template string, variables map[string]string) string {
	return templateVarPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := templateVarPattern.FindStringSubmatch(match)[1]
		return variables[name]
	})
}

// GenerateTrackingNumber produces a UPS-style package tracking number
// for shipping-themed templates.
func GenerateTrackingNumber() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// Nothing here needs to be secret, clock bits keep the format valid
		binary.BigEndian.PutUint32(buf, uint32(time.Now().UnixNano()))
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(10000000000))
	return fmt.Sprintf("1Z%s%010d", strings.ToUpper(hex.EncodeToString(buf)), n)
}

// GenerateDeliveryDate produces a delivery date daysAhead days out, or
// a random 3-5 days when daysAhead is zero.
func GenerateDeliveryDate(daysAhead int) string {
	if daysAhead <= 0 {
		n, _ := rand.Int(rand.Reader, big.NewInt(3))
		daysAhead = int(n.Int64()) + 3
	}
	date := time.Now().AddDate(0, 0, daysAhead)
	return date.Format("Monday, January 02, 2006")
}
