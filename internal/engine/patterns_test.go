package engine

import (
	"strings"
	"testing"
)

func TestMatchKnownBad_AllPatternsMatch(t *testing.T) {
	for _, d := range KnownBadPatterns() {
		for _, u := range []string{
			"http://" + d,
			"https://" + strings.ToUpper(d) + "/login?next=/",
			"http://login." + d + "/verify",
		} {
			v := MatchKnownBad(u)
			if v == nil {
				t.Errorf("MatchKnownBad(%q) = nil, want phishing verdict", u)
				continue
			}
			if v.RiskLevel != RiskPhishing {
				t.Errorf("MatchKnownBad(%q).RiskLevel = %q, want phishing", u, v.RiskLevel)
			}
		}
	}
}

func TestMatchKnownBad_NoMatch(t *testing.T) {
	tests := []string{
		"https://example.com",
		"https://paypal.com/signin",
		"https://google.com",
		"not a url at all",
		"",
	}
	for _, u := range tests {
		if v := MatchKnownBad(u); v != nil {
			t.Errorf("MatchKnownBad(%q) = %+v, want nil", u, v)
		}
	}
}

func TestMatchKnownBad_SyntheticVerdict(t *testing.T) {
	const u = "http://secure-paypal-verify.tk/login"
	v := MatchKnownBad(u)
	if v == nil {
		t.Fatal("expected verdict")
	}
	if v.URL != u {
		t.Errorf("URL = %q, want %q", v.URL, u)
	}
	if v.SafetyScore > 15 {
		t.Errorf("SafetyScore = %d, want <= 15", v.SafetyScore)
	}
	if v.Probability < 95 {
		t.Errorf("Probability = %v, want >= 95", v.Probability)
	}
	if len(v.Explanations) == 0 {
		t.Error("expected explanations")
	}
	if v.Details.URLLength != len(u) {
		t.Errorf("URLLength = %d, want %d", v.Details.URLLength, len(u))
	}
	if v.Details.IsHTTPS {
		t.Error("IsHTTPS = true for http URL")
	}
	if v.Details.SuspiciousKeywordCount != knownBadKeywordCount {
		t.Errorf("SuspiciousKeywordCount = %d, want %d", v.Details.SuspiciousKeywordCount, knownBadKeywordCount)
	}
	if got := v.Details.Extra["registered_domain"]; got != "secure-paypal-verify.tk" {
		t.Errorf("registered_domain = %v, want secure-paypal-verify.tk", got)
	}
}

func TestMatchKnownBad_ExplanationsNotShared(t *testing.T) {
	a := MatchKnownBad("http://goog1e.com")
	a.Explanations[0] = "mutated"
	b := MatchKnownBad("http://goog1e.com")
	if b.Explanations[0] == "mutated" {
		t.Fatal("synthetic verdicts share explanation storage")
	}
}

func TestMatchKnownBad_HTTPSDetail(t *testing.T) {
	v := MatchKnownBad("https://amaz0n.com")
	if v == nil || !v.Details.IsHTTPS {
		t.Fatalf("expected https detail, got %+v", v)
	}
}

func TestRegisteredDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://sub.example.co.uk/path", "example.co.uk", true},
		{"http://example.com", "example.com", true},
		{"http://localhost:5000/api", "", false},
		{"about:blank", "", false},
	}
	for _, tt := range tests {
		got, ok := RegisteredDomain(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("RegisteredDomain(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
