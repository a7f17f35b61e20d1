package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// GenerateTrackingToken derives the opaque per-(campaign, target) token
// embedded in outbound links and pixels. The token is an HMAC over the
// pair, so a retried send always produces the same token and different
// pairs never collide in practice.
func GenerateTrackingToken(secret string, campaignID, targetID uint) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "c%dt%d", campaignID, targetID)
	token := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if len(token) > 32 {
		token = token[:32]
	}
	return token
}

// GenerateTrackingPixelURL builds the open-tracking pixel URL
func GenerateTrackingPixelURL(domain, token string) string {
	return fmt.Sprintf("https://%s/track/open?%s", domain, url.Values{"t": {token}}.Encode())
}

// GeneratePhishingLinkURL builds the landing page link carrying the tracking token
func GeneratePhishingLinkURL(domain, landingPagePath, token string) string {
	landingPagePath = strings.TrimLeft(landingPagePath, "/")
	return fmt.Sprintf("https://%s/%s?%s", domain, landingPagePath, url.Values{"t": {token}}.Encode())
}

// GenerateUnsubscribeURL builds the unsubscribe link
func GenerateUnsubscribeURL(domain, token string) string {
	return fmt.Sprintf("https://%s/unsubscribe?%s", domain, url.Values{"t": {token}}.Encode())
}

// InjectTrackingPixel inserts the 1x1 pixel image into HTML content,
// just before the closing body tag when one exists.
func InjectTrackingPixel(htmlContent, pixelURL string) string {
	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none;" />`, pixelURL)

	lower := strings.ToLower(htmlContent)
	idx := strings.LastIndex(lower, "</body>")
	if idx == -1 {
		return htmlContent + pixel
	}
	return htmlContent[:idx] + pixel + htmlContent[idx:]
}
