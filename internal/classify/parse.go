package classify

import (
	"github.com/tidwall/gjson"
	"github.com/triage-ai/phishguard/internal/engine"
)

// knownDetailKeys are mapped onto engine.Details fields; everything else in
// "details" is carried through in Details.Extra.
var knownDetailKeys = map[string]bool{
	"url_length":   true,
	"https":        true,
	"sus_keywords": true,
}

// parseVerdict maps an already validated response body onto a Verdict.
// requestedURL is used when the service omits the url field.
func parseVerdict(body []byte, requestedURL string) *engine.Verdict {
	doc := gjson.ParseBytes(body)

	v := &engine.Verdict{
		URL:         requestedURL,
		SafetyScore: int(doc.Get("safety_score").Int()),
		RiskLevel:   engine.RiskLevel(doc.Get("risk_level").String()),
		Probability: doc.Get("phishing_probability").Float(),
		Vibe:        doc.Get("vibe").String(),
		Emoji:       doc.Get("emoji").String(),
	}
	if u := doc.Get("url"); u.Exists() && u.String() != "" {
		v.URL = u.String()
	}

	explanations := doc.Get("explanations").Array()
	v.Explanations = make([]string, 0, len(explanations))
	for _, e := range explanations {
		v.Explanations = append(v.Explanations, e.String())
	}

	details := doc.Get("details")
	v.Details = engine.Details{
		URLLength:              int(details.Get("url_length").Int()),
		IsHTTPS:                details.Get("https").Bool(),
		SuspiciousKeywordCount: int(details.Get("sus_keywords").Int()),
	}
	details.ForEach(func(key, value gjson.Result) bool {
		if knownDetailKeys[key.String()] {
			return true
		}
		if v.Details.Extra == nil {
			v.Details.Extra = make(map[string]any)
		}
		v.Details.Extra[key.String()] = value.Value()
		return true
	})

	return v
}
