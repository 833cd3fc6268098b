package browser

import (
	"fmt"
	"strings"
	"unicode"
)

const defaultChromeVersion = "133.0.0.0"

// stealthScript runs before any page script in every isolated context.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'platform', { get: () => 'MacIntel' });
if (!window.chrome) { window.chrome = { runtime: {} }; }
`

// UserAgent builds a macOS Chrome user agent for the launched version so
// the UA string and the client hints agree.
func UserAgent(version string) string {
	return fmt.Sprintf(
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
		cleanVersion(version),
	)
}

// FingerprintHeaders returns the extra request headers sent by every context.
func FingerprintHeaders(version, acceptLanguage string) map[string]string {
	major := MajorVersion(version)
	if acceptLanguage == "" {
		acceptLanguage = "en-US,en;q=0.9"
	}
	return map[string]string{
		"sec-ch-ua":                 fmt.Sprintf(`"Chromium";v="%s", "Google Chrome";v="%s", "Not=A?Brand";v="99"`, major, major),
		"sec-ch-ua-mobile":          "?0",
		"sec-ch-ua-platform":        `"macOS"`,
		"Accept-Language":           acceptLanguage,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Upgrade-Insecure-Requests": "1",
		"referer":                   "https://www.google.com/",
	}
}

// MajorVersion extracts the leading numeric component, "133" for
// "HeadlessChrome/133.0.6943.16".
func MajorVersion(version string) string {
	first := strings.SplitN(cleanVersion(version), ".", 2)[0]
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, first)
	if digits == "" {
		return strings.SplitN(defaultChromeVersion, ".", 2)[0]
	}
	return digits
}

func cleanVersion(version string) string {
	if version == "" {
		return defaultChromeVersion
	}
	parts := strings.Split(version, "/")
	return parts[len(parts)-1]
}
