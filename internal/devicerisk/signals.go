// Package devicerisk builds device fingerprints from client signals and
// scores submission risk from network and behavioral indicators.
package devicerisk

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// ClientSignals carries the per-request client attributes available to the
// risk scorer. Every field except UserID and ObservedAt is optional; absent
// signals are simply omitted from the fingerprint.
type ClientSignals struct {
	UserID        string    `json:"user_id"`
	IP            string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
	AcceptHeaders string    `json:"accept_headers"` // Accept + Accept-Language + Accept-Encoding, joined
	ScreenRes     string    `json:"screen_resolution,omitempty"`
	Timezone      string    `json:"timezone,omitempty"`
	Language      string    `json:"language,omitempty"`
	Platform      string    `json:"platform,omitempty"`
	CanvasHash    string    `json:"canvas_hash,omitempty"`
	WebGLHash     string    `json:"webgl_hash,omitempty"`
	ObservedAt    time.Time `json:"observed_at"`
}

// ComputeFingerprint generates a SHA256 hash over the ordered, filtered set
// of available signals. Signals are normalized first so that volatile parts
// (browser patch versions, OS build numbers) do not churn the hash.
func ComputeFingerprint(sig ClientSignals) string {
	parts := []string{
		normalizeUserAgent(sig.UserAgent),
		strings.ToLower(strings.TrimSpace(sig.AcceptHeaders)),
		normalizeScreenRes(sig.ScreenRes),
		normalizeTimezone(sig.Timezone),
		strings.ToLower(strings.TrimSpace(sig.Language)),
		strings.TrimSpace(sig.Platform),
		sig.CanvasHash,
		sig.WebGLHash,
		strings.TrimSpace(sig.IP),
	}

	filtered := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			filtered = append(filtered, p)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(filtered, "|")))
	return hex.EncodeToString(hash[:])
}

var (
	browserVersionRe = regexp.MustCompile(`(chrome|firefox|safari|edge|edg|opera|opr)/\d+\.\d+\.\d+\.\d+`)
	windowsVersionRe = regexp.MustCompile(`windows nt \d+\.\d+`)
	macosVersionRe   = regexp.MustCompile(`mac os x \d+_[\d_]+`)
	androidVersionRe = regexp.MustCompile(`android \d+\.\d+(\.\d+)?`)
)

// normalizeUserAgent strips frequently-changing version components so the
// same browser on the same machine keeps a stable fingerprint across updates.
func normalizeUserAgent(ua string) string {
	ua = strings.ToLower(strings.TrimSpace(ua))
	ua = browserVersionRe.ReplaceAllString(ua, "$1")
	ua = windowsVersionRe.ReplaceAllString(ua, "windows nt")
	ua = macosVersionRe.ReplaceAllString(ua, "mac os x")
	ua = androidVersionRe.ReplaceAllString(ua, "android")
	return ua
}

// normalizeScreenRes buckets resolutions into coarse categories.
func normalizeScreenRes(res string) string {
	res = strings.ToLower(strings.TrimSpace(res))

	switch {
	case res == "" || res == "unknown":
		return ""
	case strings.HasPrefix(res, "1920x1080"):
		return "fhd"
	case strings.HasPrefix(res, "2560x1440"):
		return "qhd"
	case strings.HasPrefix(res, "3840x2160"):
		return "4k"
	case strings.HasPrefix(res, "1366x768"):
		return "laptop-hd"
	case strings.HasPrefix(res, "1280x720"):
		return "hd"
	case strings.HasPrefix(res, "mobile-"):
		return "mobile"
	default:
		parts := strings.Split(res, "x")
		if len(parts) == 2 {
			width := strings.TrimSpace(parts[0])
			if len(width) >= 4 {
				return width[:3] + "xxx"
			}
		}
		return "other"
	}
}

// normalizeTimezone reduces a timezone to its region component.
func normalizeTimezone(tz string) string {
	tz = strings.TrimSpace(tz)

	if tz == "" {
		return ""
	}
	if tz == "UTC" || tz == "GMT" {
		return "utc"
	}
	if parts := strings.Split(tz, "/"); len(parts) > 1 {
		return strings.ToLower(parts[0])
	}
	return strings.ToLower(tz)
}
