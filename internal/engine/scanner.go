package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scanner is the single entry point for assessing a URL. Navigation hooks,
// link hovers and manual scans all go through Scan; nothing else may consult
// the cache or the classifier directly.
type Scanner struct {
	cache      *ResultCache
	classifier Classifier
	logger     *zap.Logger
}

// NewScanner creates a scanner backed by the given cache and classifier.
func NewScanner(cache *ResultCache, classifier Classifier, logger *zap.Logger) *Scanner {
	return &Scanner{
		cache:      cache,
		classifier: classifier,
		logger:     logger,
	}
}

// Outcome is a verdict plus the pipeline stage that produced it.
type Outcome struct {
	Verdict *Verdict // nil when no stage produced a verdict
	Source  Source
	Latency time.Duration
}

// Scan assesses url and returns its verdict, or nil when the classifier is
// unavailable and no known-bad pattern matched.
func (s *Scanner) Scan(ctx context.Context, url string) *Verdict {
	return s.Lookup(ctx, url).Verdict
}

// Lookup runs the pipeline, in order:
//  1. known-bad pattern -> synthetic verdict (cache untouched)
//  2. fresh cache entry -> cached verdict (no network)
//  3. classifier -> verdict is cached on success; failures are not cached
func (s *Scanner) Lookup(ctx context.Context, url string) Outcome {
	start := time.Now()

	if v := MatchKnownBad(url); v != nil {
		return Outcome{Verdict: v, Source: SourcePattern, Latency: time.Since(start)}
	}

	if v := s.cache.Get(url); v != nil {
		return Outcome{Verdict: v, Source: SourceCache, Latency: time.Since(start)}
	}

	v := s.classifier.Classify(ctx, url)
	if v == nil {
		s.logger.Debug("no verdict available", zap.String("url", url))
		return Outcome{Source: SourceNone, Latency: time.Since(start)}
	}

	s.cache.Put(url, v)
	return Outcome{Verdict: v, Source: SourceNetwork, Latency: time.Since(start)}
}
