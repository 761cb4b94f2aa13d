package storage

import "time"

// EventWriter is the interface for writing scan events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *ScanEvent)
	Close()
}

// ScanEvent represents one completed scan trigger to be persisted.
type ScanEvent struct {
	RequestID    string
	Timestamp    time.Time
	Trigger      string // "navigation", "hover", "manual" or "report"
	URL          string // truncated to URLMaxLength
	Domain       string // registered domain (eTLD+1), empty if unparseable
	Source       string // "pattern", "cache", "network" or "none"
	RiskLevel    string // empty when no verdict was available
	SafetyScore  int32
	Probability  float32
	Explanations []string
	Action       string // "blocked", "marked", "displayed", "error", "reported" or "none"
	TabID        int64
	LatencyMs    float32
}

// URLMaxLength is the max chars stored in the url column.
const URLMaxLength = 2048

// Truncate returns the first maxLen characters (runes) of s.
// It never splits a multi-byte UTF-8 character.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
