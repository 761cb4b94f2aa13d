package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/triage-ai/phishguard/internal/engine"
	"go.uber.org/zap"
)

func echoHandler() Handler {
	return HandlerFunc(func(_ context.Context, req Request) Response {
		switch req.Action {
		case KindScanURL:
			return Response{Result: &engine.Verdict{URL: req.URL, RiskLevel: engine.RiskSafe}, Success: true}
		case KindReportPhishing:
			return Response{Success: true}
		default:
			return Response{Error: ErrUnknownKind.Error()}
		}
	})
}

func startServe(t *testing.T, b *Bridge, h Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Serve(ctx, h)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestCall_RoundTrip(t *testing.T) {
	b := New(8, zap.NewNop())
	startServe(t, b, echoHandler())

	resp, err := b.Call(context.Background(), KindScanURL, "https://a.example")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !resp.Success || resp.Result == nil || resp.Result.URL != "https://a.example" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.ID == "" {
		t.Fatal("response ID not set")
	}
}

// Responses completing out of order still reach the right caller.
func TestCall_ConcurrentCorrelation(t *testing.T) {
	b := New(64, zap.NewNop())
	startServe(t, b, HandlerFunc(func(_ context.Context, req Request) Response {
		if req.URL == "slow" {
			time.Sleep(30 * time.Millisecond)
		}
		return Response{Result: &engine.Verdict{URL: req.URL}, Success: true}
	}))

	urls := []string{"slow", "a", "b", "c", "d"}
	var wg sync.WaitGroup
	errs := make(chan error, len(urls))
	for _, u := range urls {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			resp, err := b.Call(context.Background(), KindScanURL, u)
			if err != nil {
				errs <- err
				return
			}
			if resp.Result == nil || resp.Result.URL != u {
				errs <- errors.New("mismatched response for " + u)
			}
		}(u)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCall_ContextCancelled(t *testing.T) {
	b := New(1, zap.NewNop())
	block := make(chan struct{})
	startServe(t, b, HandlerFunc(func(context.Context, Request) Response {
		<-block
		return Response{Success: true}
	}))
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Call(ctx, KindScanURL, "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	b.mu.Lock()
	n := len(b.pending)
	b.mu.Unlock()
	if n != 0 {
		t.Fatalf("pending = %d, want 0 after abandoned call", n)
	}
}

func TestCall_Closed(t *testing.T) {
	b := New(0, zap.NewNop())
	b.Close()
	b.Close()
	if _, err := b.Call(context.Background(), KindReportPhishing, "x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if err := b.Serve(context.Background(), echoHandler()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Serve err = %v, want ErrClosed", err)
	}
}
