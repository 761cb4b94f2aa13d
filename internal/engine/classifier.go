package engine

import (
	"context"
)

// Classifier is the remote scoring service as seen by the scanner.
// Implementations must absorb every failure (timeout, transport, bad body)
// and report it as a nil verdict; Classify never returns an error.
type Classifier interface {
	Classify(ctx context.Context, url string) *Verdict
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, url string) *Verdict

// Classify calls f(ctx, url).
func (f ClassifierFunc) Classify(ctx context.Context, url string) *Verdict {
	return f(ctx, url)
}
