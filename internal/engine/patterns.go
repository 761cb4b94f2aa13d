package engine

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// knownBadDomains is the fixed demo/test corpus. Matching is a lowercase
// substring check against the whole URL string, not a host comparison.
var knownBadDomains = []string{
	// Suspicious TLDs with brand/account bait
	"secure-paypal-verify.tk",
	"account-login-verify.ml",
	"google-security-alert.ga",
	"apple-id-unlock.cf",
	"amazon-account-suspended.xyz",
	"bank-security-update.online",
	"microsoft-account-verify.top",
	"netflix-payment-update.site",
	"paypal-resolution-center.tk",
	"facebook-security-check.ml",

	// Typosquats
	"goog1e.com",
	"amaz0n.com",
	"paypa1.com",
	"app1e.com",

	// Urgency lures
	"verify-your-account-now.tk",
	"update-payment-info.ml",
	"confirm-identity-urgent.ga",
	"account-will-be-closed.xyz",
}

const (
	knownBadSafetyScore  = 5
	knownBadProbability  = 99.9
	knownBadKeywordCount = 5
	knownBadVibe         = "major red flags - this is a test phishing site"
	knownBadEmoji        = "🚨"
)

var knownBadExplanations = []string{
	"🚨 Known phishing domain pattern",
	"⚠️ Suspicious domain extension (.tk, .ml, .ga)",
	"⚠️ Domain impersonating legitimate brand",
	"🔓 High-risk phishing indicators detected",
}

// KnownBadPatterns returns a copy of the fixed pattern list.
func KnownBadPatterns() []string {
	out := make([]string, len(knownBadDomains))
	copy(out, knownBadDomains)
	return out
}

// MatchKnownBad tests rawURL against the known-bad list and returns a
// synthetic phishing verdict on a hit, or nil. rawURL need not be a valid URL.
func MatchKnownBad(rawURL string) *Verdict {
	lower := strings.ToLower(rawURL)
	for _, d := range knownBadDomains {
		if strings.Contains(lower, d) {
			return syntheticVerdict(rawURL)
		}
	}
	return nil
}

func syntheticVerdict(rawURL string) *Verdict {
	explanations := make([]string, len(knownBadExplanations))
	copy(explanations, knownBadExplanations)

	details := Details{
		URLLength:              utf8.RuneCountInString(rawURL),
		IsHTTPS:                strings.HasPrefix(rawURL, "https"),
		SuspiciousKeywordCount: knownBadKeywordCount,
	}
	if domain, ok := RegisteredDomain(rawURL); ok {
		details.Extra = map[string]any{"registered_domain": domain}
	}

	return &Verdict{
		URL:          rawURL,
		SafetyScore:  knownBadSafetyScore,
		RiskLevel:    RiskPhishing,
		Probability:  knownBadProbability,
		Explanations: explanations,
		Details:      details,
		Vibe:         knownBadVibe,
		Emoji:        knownBadEmoji,
	}
}

// RegisteredDomain returns the eTLD+1 of rawURL's host.
// e.g. "http://login.secure-paypal-verify.tk/x" -> "secure-paypal-verify.tk", true
func RegisteredDomain(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := u.Hostname()
	if !strings.Contains(host, ".") {
		return "", false
	}
	domain, err := publicsuffix.Domain(host)
	if err != nil {
		return "", false
	}
	return domain, true
}
