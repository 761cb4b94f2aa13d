package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// countingClassifier returns verdict (possibly nil) and counts calls.
type countingClassifier struct {
	calls   atomic.Int32
	verdict func(url string) *Verdict
}

func (c *countingClassifier) Classify(_ context.Context, url string) *Verdict {
	c.calls.Add(1)
	if c.verdict == nil {
		return nil
	}
	return c.verdict(url)
}

func safeVerdict(url string) *Verdict {
	return &Verdict{
		URL:          url,
		SafetyScore:  92,
		RiskLevel:    RiskSafe,
		Probability:  3.1,
		Explanations: []string{"✅ looks clean to me"},
	}
}

func newTestScanner(cls Classifier, clock *fakeClock) *Scanner {
	cache := newTestCache(DefaultCacheCapacity, DefaultCacheTTL, clock)
	return NewScanner(cache, cls, zap.NewNop())
}

func TestScan_KnownBadSkipsNetworkAndCache(t *testing.T) {
	cls := &countingClassifier{verdict: safeVerdict}
	clock := newFakeClock()
	s := newTestScanner(cls, clock)

	out := s.Lookup(context.Background(), "http://secure-paypal-verify.tk/login")
	if out.Source != SourcePattern {
		t.Fatalf("Source = %v, want pattern", out.Source)
	}
	v := out.Verdict
	if v == nil || v.RiskLevel != RiskPhishing {
		t.Fatalf("verdict = %+v, want phishing", v)
	}
	if v.SafetyScore > 15 {
		t.Errorf("SafetyScore = %d, want <= 15", v.SafetyScore)
	}
	if len(v.Explanations) == 0 {
		t.Error("expected explanations")
	}
	if n := cls.calls.Load(); n != 0 {
		t.Errorf("classifier called %d times, want 0", n)
	}
	if s.cache.Len() != 0 {
		t.Errorf("cache Len = %d, pattern hits must not be cached", s.cache.Len())
	}
}

func TestScan_CachesNetworkVerdict(t *testing.T) {
	cls := &countingClassifier{verdict: safeVerdict}
	clock := newFakeClock()
	s := newTestScanner(cls, clock)
	ctx := context.Background()

	first := s.Lookup(ctx, "https://example.com")
	if first.Source != SourceNetwork || first.Verdict == nil {
		t.Fatalf("first lookup = %+v, want network verdict", first)
	}
	if first.Verdict.SafetyScore != 92 || first.Verdict.RiskLevel != RiskSafe {
		t.Fatalf("unexpected verdict %+v", first.Verdict)
	}

	clock.Advance(4 * time.Minute)
	second := s.Lookup(ctx, "https://example.com")
	if second.Source != SourceCache {
		t.Fatalf("second Source = %v, want cache", second.Source)
	}
	if second.Verdict != first.Verdict {
		t.Fatal("second scan returned a different verdict object")
	}
	if n := cls.calls.Load(); n != 1 {
		t.Fatalf("classifier called %d times, want 1", n)
	}
}

func TestScan_StaleCacheHitsNetworkAgain(t *testing.T) {
	cls := &countingClassifier{verdict: safeVerdict}
	clock := newFakeClock()
	s := newTestScanner(cls, clock)
	ctx := context.Background()

	s.Scan(ctx, "https://example.com")
	s.Scan(ctx, "https://example.com")
	clock.Advance(DefaultCacheTTL)
	s.Scan(ctx, "https://example.com")

	if n := cls.calls.Load(); n != 2 {
		t.Fatalf("classifier called %d times, want 2", n)
	}
}

func TestScan_FailureIsNotCached(t *testing.T) {
	cls := &countingClassifier{}
	clock := newFakeClock()
	s := newTestScanner(cls, clock)
	ctx := context.Background()

	if v := s.Scan(ctx, "https://example.com"); v != nil {
		t.Fatalf("Scan = %+v, want nil", v)
	}
	if v := s.Scan(ctx, "https://example.com"); v != nil {
		t.Fatalf("Scan = %+v, want nil", v)
	}
	if n := cls.calls.Load(); n != 2 {
		t.Fatalf("classifier called %d times, want 2 (failures must not be cached)", n)
	}
	if s.cache.Len() != 0 {
		t.Fatalf("cache Len = %d, want 0", s.cache.Len())
	}
}

func TestScan_PreservesScoreRiskDecoupling(t *testing.T) {
	cls := ClassifierFunc(func(_ context.Context, url string) *Verdict {
		return &Verdict{URL: url, SafetyScore: 12, RiskLevel: RiskSafe}
	})
	s := NewScanner(NewResultCache(DefaultCacheCapacity, DefaultCacheTTL), cls, zap.NewNop())

	v := s.Scan(context.Background(), "https://odd.example")
	if v.RiskLevel != RiskSafe || v.SafetyScore != 12 {
		t.Fatalf("verdict was normalized: %+v", v)
	}
}
