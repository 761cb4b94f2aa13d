package engine

import (
	"encoding/json"
	"fmt"
)

// RiskLevel is the classification bucket reported for a URL.
type RiskLevel string

const (
	RiskSafe       RiskLevel = "safe"
	RiskSuspicious RiskLevel = "suspicious"
	RiskPhishing   RiskLevel = "phishing"
)

// Valid reports whether r is one of the three known levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskSafe, RiskSuspicious, RiskPhishing:
		return true
	default:
		return false
	}
}

// Details carries the per-URL features the classifier exposes.
// Extra holds any fields beyond the three required ones; they are encoded
// alongside them in the same JSON object.
type Details struct {
	URLLength              int
	IsHTTPS                bool
	SuspiciousKeywordCount int
	Extra                  map[string]any
}

// MarshalJSON writes the required fields and every Extra key at the top
// level. A required field wins over an Extra key of the same name.
func (d Details) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.Extra)+3)
	for k, v := range d.Extra {
		m[k] = v
	}
	m["url_length"] = d.URLLength
	m["https"] = d.IsHTTPS
	m["sus_keywords"] = d.SuspiciousKeywordCount
	return json.Marshal(m)
}

// UnmarshalJSON reads the required fields and collects the rest into Extra.
func (d *Details) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var out Details
	for k, v := range raw {
		var err error
		switch k {
		case "url_length":
			err = json.Unmarshal(v, &out.URLLength)
		case "https":
			err = json.Unmarshal(v, &out.IsHTTPS)
		case "sus_keywords":
			err = json.Unmarshal(v, &out.SuspiciousKeywordCount)
		default:
			var x any
			if err = json.Unmarshal(v, &x); err == nil {
				if out.Extra == nil {
					out.Extra = make(map[string]any)
				}
				out.Extra[k] = x
			}
		}
		if err != nil {
			return fmt.Errorf("details %s: %w", k, err)
		}
	}
	*d = out
	return nil
}

// Verdict is the outcome of scanning one URL.
//
// SafetyScore and RiskLevel are populated independently. A verdict may say
// "safe" with a low score; callers that need a single signal must reconcile
// the two themselves.
type Verdict struct {
	URL          string    `json:"url"`
	SafetyScore  int       `json:"safety_score"`
	RiskLevel    RiskLevel `json:"risk_level"`
	Probability  float64   `json:"phishing_probability"`
	Explanations []string  `json:"explanations"`
	Details      Details   `json:"details"`
	Vibe         string    `json:"vibe,omitempty"`
	Emoji        string    `json:"emoji,omitempty"`
}

// IsPhishing reports whether v is non-nil and classified as phishing.
func (v *Verdict) IsPhishing() bool {
	return v != nil && v.RiskLevel == RiskPhishing
}

// Source identifies which stage of the pipeline produced a verdict.
type Source int

const (
	SourceNone Source = iota
	SourcePattern
	SourceCache
	SourceNetwork
)

// String returns the lowercase source name (used for event storage).
func (s Source) String() string {
	switch s {
	case SourcePattern:
		return "pattern"
	case SourceCache:
		return "cache"
	case SourceNetwork:
		return "network"
	default:
		return "none"
	}
}
