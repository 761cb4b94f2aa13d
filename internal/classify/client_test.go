package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/triage-ai/phishguard/internal/engine"
	"go.uber.org/zap"
)

const safeBody = `{
	"url": "https://example.com",
	"safety_score": 92,
	"risk_level": "safe",
	"emoji": "✅",
	"vibe": "all good fam",
	"phishing_probability": 7.42,
	"explanations": ["✅ looks clean to me"],
	"details": {"url_length": 19, "https": true, "sus_keywords": 0, "num_dots": 1}
}`

func newTestClient(t *testing.T, baseURL string, timeout time.Duration) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL: func() string { return baseURL },
		Timeout: timeout,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestClassify_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/check" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req["url"] != "https://example.com" {
			t.Errorf("payload url = %q", req["url"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(safeBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", time.Second)
	v := c.Classify(context.Background(), "https://example.com")
	if v == nil {
		t.Fatal("expected verdict")
	}
	if v.SafetyScore != 92 || v.RiskLevel != engine.RiskSafe {
		t.Errorf("score/risk = %d/%s", v.SafetyScore, v.RiskLevel)
	}
	if v.Probability != 7.42 {
		t.Errorf("Probability = %v", v.Probability)
	}
	if len(v.Explanations) != 1 || v.Explanations[0] != "✅ looks clean to me" {
		t.Errorf("Explanations = %v", v.Explanations)
	}
	if v.Details.URLLength != 19 || !v.Details.IsHTTPS || v.Details.SuspiciousKeywordCount != 0 {
		t.Errorf("Details = %+v", v.Details)
	}
	if got, ok := v.Details.Extra["num_dots"].(float64); !ok || got != 1 {
		t.Errorf("Extra[num_dots] = %v", v.Details.Extra["num_dots"])
	}
	if v.Vibe != "all good fam" || v.Emoji != "✅" {
		t.Errorf("vibe/emoji = %q/%q", v.Vibe, v.Emoji)
	}
}

func TestClassify_MinimalBodyUsesRequestedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"safety_score": 40, "risk_level": "phishing"}`))
	}))
	defer srv.Close()

	v := newTestClient(t, srv.URL, time.Second).Classify(context.Background(), "https://x.example")
	if v == nil {
		t.Fatal("expected verdict")
	}
	if v.URL != "https://x.example" {
		t.Errorf("URL = %q", v.URL)
	}
	if v.Explanations == nil || len(v.Explanations) != 0 {
		t.Errorf("Explanations = %#v, want empty non-nil", v.Explanations)
	}
}

func TestClassify_FailuresReturnNil(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error": "something broke"}`},
		{"model not trained", http.StatusServiceUnavailable, `{"error": "model not trained yet lol"}`},
		{"not json", http.StatusOK, `<html>oops</html>`},
		{"truncated json", http.StatusOK, `{"safety_score": 9`},
		{"unknown risk level", http.StatusOK, `{"safety_score": 50, "risk_level": "meh"}`},
		{"score out of range", http.StatusOK, `{"safety_score": 150, "risk_level": "safe"}`},
		{"missing risk level", http.StatusOK, `{"safety_score": 50}`},
		{"array body", http.StatusOK, `[1,2,3]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			if v := newTestClient(t, srv.URL, time.Second).Classify(context.Background(), "https://example.com"); v != nil {
				t.Fatalf("Classify = %+v, want nil", v)
			}
		})
	}
}

func TestClassify_TimeoutReturnsNil(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, 50*time.Millisecond)
	start := time.Now()
	v := c.Classify(context.Background(), "https://example.com")
	if v != nil {
		t.Fatalf("Classify = %+v, want nil", v)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Classify took %v, timeout not enforced", elapsed)
	}
}

func TestClassify_UnreachableReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	if v := newTestClient(t, addr, time.Second).Classify(context.Background(), "https://example.com"); v != nil {
		t.Fatalf("Classify = %+v, want nil", v)
	}
}

func TestClassify_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	newTestClient(t, srv.URL, time.Second).Classify(context.Background(), "https://example.com")
	if n := calls.Load(); n != 1 {
		t.Fatalf("server saw %d requests, want 1", n)
	}
}

func TestClassify_BaseURLReadPerCall(t *testing.T) {
	var hitsA, hitsB atomic.Int32
	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitsA.Add(1)
		_, _ = w.Write([]byte(safeBody))
	}))
	defer a.Close()
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitsB.Add(1)
		_, _ = w.Write([]byte(safeBody))
	}))
	defer b.Close()

	var current atomic.Value
	current.Store(a.URL)
	c, err := NewClient(Config{BaseURL: func() string { return current.Load().(string) }}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	c.Classify(context.Background(), "https://example.com")
	current.Store(b.URL)
	c.Classify(context.Background(), "https://example.com")

	if hitsA.Load() != 1 || hitsB.Load() != 1 {
		t.Fatalf("hits a=%d b=%d, want 1/1", hitsA.Load(), hitsB.Load())
	}
}

func TestHealth(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status": "online", "model_trained": true}`))
	}))
	defer up.Close()
	if !newTestClient(t, up.URL, time.Second).Health(context.Background()) {
		t.Error("Health = false for healthy service")
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	if newTestClient(t, down.URL, time.Second).Health(context.Background()) {
		t.Error("Health = true for 503")
	}

	gone := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := gone.URL
	gone.Close()
	if newTestClient(t, addr, time.Second).Health(context.Background()) {
		t.Error("Health = true for unreachable service")
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}, zap.NewNop()); err == nil {
		t.Fatal("expected error without BaseURL")
	}
}

func TestNewClient_DefaultTimeout(t *testing.T) {
	c := newTestClient(t, "http://localhost:5000", 0)
	if c.timeout != DefaultTimeout {
		t.Fatalf("timeout = %v, want %v", c.timeout, DefaultTimeout)
	}
}
