package devicerisk

import "strings"

// Shortest user agent a mainstream browser or mobile app client realistically
// sends. Anything shorter is treated as a stripped or spoofed client.
const minUserAgentLength = 16

// botSignatures are substrings that identify automation tooling outright.
var botSignatures = []string{
	"bot",
	"crawler",
	"spider",
	"scrapy",
	"curl/",
	"wget/",
	"python-requests",
	"python-urllib",
	"go-http-client",
	"okhttp",
	"java/",
	"httpclient",
	"headless",
	"phantomjs",
	"selenium",
	"puppeteer",
	"playwright",
}

// classifyUserAgent inspects the raw user agent and returns a risk
// contribution plus a warning message. A zero contribution means the agent
// looks like a normal interactive client.
func classifyUserAgent(ua string) (int, string) {
	trimmed := strings.TrimSpace(ua)
	if trimmed == "" {
		return weakUserAgentScore, "empty user agent"
	}

	lower := strings.ToLower(trimmed)
	for _, sig := range botSignatures {
		if strings.Contains(lower, sig) {
			return botUserAgentScore, "automation signature in user agent: " + sig
		}
	}

	if len(trimmed) < minUserAgentLength {
		return weakUserAgentScore, "user agent too short to be a real client"
	}

	return 0, ""
}
