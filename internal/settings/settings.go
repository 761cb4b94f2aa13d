package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// Persisted keys.
const (
	KeyAPIURL           = "apiUrl"
	KeyAutoBlock        = "autoBlock"
	KeyStats            = "stats"
	KeyCurrentPageScore = "currentPageScore"
	KeyTheme            = "theme"
)

// DefaultAPIURL is the classification service base used until configured.
const DefaultAPIURL = "http://localhost:5000"

var (
	ErrUnknownKey    = errors.New("unknown settings key")
	ErrInvalidAPIURL = errors.New("apiUrl must be an absolute http(s) URL")
	ErrInvalidTheme  = errors.New("theme must be light or dark")
)

// Theme is the UI color scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Stats are the lifetime counters shown in the popup.
type Stats struct {
	Blocked int `json:"blocked"`
	Scanned int `json:"scanned"`
	Reports int `json:"reports"`
}

// Counter names one of the Stats fields.
type Counter int

const (
	CounterScanned Counter = iota + 1
	CounterBlocked
	CounterReports
)

// String returns the JSON field name of the counter.
func (c Counter) String() string {
	switch c {
	case CounterScanned:
		return "scanned"
	case CounterBlocked:
		return "blocked"
	case CounterReports:
		return "reports"
	default:
		return "unknown"
	}
}

func (s *Stats) increment(c Counter) error {
	switch c {
	case CounterScanned:
		s.Scanned++
	case CounterBlocked:
		s.Blocked++
	case CounterReports:
		s.Reports++
	default:
		return fmt.Errorf("increment: unknown counter %d", c)
	}
	return nil
}

// Snapshot is an immutable copy of every setting.
type Snapshot struct {
	APIURL           string `json:"apiUrl"`
	AutoBlock        bool   `json:"autoBlock"`
	Stats            Stats  `json:"stats"`
	CurrentPageScore int    `json:"currentPageScore"`
	Theme            Theme  `json:"theme"`
}

// Defaults returns the settings of a fresh install.
func Defaults() Snapshot {
	return Snapshot{
		APIURL:    DefaultAPIURL,
		AutoBlock: true,
		Theme:     ThemeLight,
	}
}

// encodeKey marshals the field of snap that is stored under key.
func encodeKey(snap Snapshot, key string) ([]byte, error) {
	switch key {
	case KeyAPIURL:
		return json.Marshal(snap.APIURL)
	case KeyAutoBlock:
		return json.Marshal(snap.AutoBlock)
	case KeyStats:
		return json.Marshal(snap.Stats)
	case KeyCurrentPageScore:
		return json.Marshal(snap.CurrentPageScore)
	case KeyTheme:
		return json.Marshal(snap.Theme)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
}

// decodeKey unmarshals raw into the field of snap stored under key.
func decodeKey(snap *Snapshot, key string, raw []byte) error {
	var err error
	switch key {
	case KeyAPIURL:
		var v string
		if err = json.Unmarshal(raw, &v); err == nil {
			if err = validateAPIURL(v); err == nil {
				snap.APIURL = v
			}
		}
	case KeyAutoBlock:
		err = json.Unmarshal(raw, &snap.AutoBlock)
	case KeyStats:
		err = json.Unmarshal(raw, &snap.Stats)
	case KeyCurrentPageScore:
		err = json.Unmarshal(raw, &snap.CurrentPageScore)
	case KeyTheme:
		var v Theme
		if err = json.Unmarshal(raw, &v); err == nil {
			if err = validateTheme(v); err == nil {
				snap.Theme = v
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func validateAPIURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidAPIURL
	}
	return nil
}

func validateTheme(t Theme) error {
	if t != ThemeLight && t != ThemeDark {
		return ErrInvalidTheme
	}
	return nil
}
