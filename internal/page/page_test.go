package page

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/triage-ai/phishguard/internal/action"
	"github.com/triage-ai/phishguard/internal/bridge"
	"github.com/triage-ai/phishguard/internal/engine"
	"go.uber.org/zap"
)

const loginPage = `<!doctype html>
<html><head><title>Sign in</title>
<script>var brand = "microsoft";</script></head>
<body>
  <h1>Sign in to your PayPal account</h1>
  <form action="/collect" method="post">
    <input type="email" name="email">
    <input type="password" name="pw">
  </form>
  <a href="/help">Help</a>
  <a href="https://paypa1.com/reset#top">Reset</a>
  <a href="https://paypa1.com/reset">Reset again</a>
  <a href="mailto:support@example.com">Mail</a>
  <a href="javascript:void(0)">Nothing</a>
</body></html>`

func mustParse(t *testing.T, pageURL, body string) *Document {
	t.Helper()
	d, err := Parse(pageURL, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return d
}

func TestDetectFakeLoginForm(t *testing.T) {
	tests := []struct {
		name      string
		pageURL   string
		body      string
		wantBrand string
	}{
		{"brand off its domain", "https://account-check.example/login", loginPage, "paypal"},
		{"brand on its own domain", "https://www.paypal.com/signin", loginPage, ""},
		{"no credential form", "https://blog.example", `<body><p>I love my paypal account</p><form><input name="q"></form></body>`, ""},
		{"username input counts", "https://x.example", `<body>Amazon deals<form><input name="username"></form></body>`, "amazon"},
		{"script text ignored", "https://x.example", `<body><script>google</script><form><input type="password"></form></body>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustParse(t, tt.pageURL, tt.body).DetectFakeLoginForm()
			if tt.wantBrand == "" {
				if b != nil {
					t.Fatalf("unexpected banner: %+v", b)
				}
				return
			}
			if b == nil {
				t.Fatal("expected banner")
			}
			if b.Severity != SeverityDanger {
				t.Errorf("Severity = %q", b.Severity)
			}
			if !strings.Contains(b.Message, "contains a "+tt.wantBrand+" login form") {
				t.Errorf("Message = %q", b.Message)
			}
		})
	}
}

func TestLinks(t *testing.T) {
	got := mustParse(t, "https://account-check.example/login", loginPage).Links()
	want := []string{"https://account-check.example/help", "https://paypa1.com/reset"}
	if len(got) != len(want) {
		t.Fatalf("Links = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Links[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

type fakeCaller struct {
	calls atomic.Int32
	resp  bridge.Response
	err   error
	kinds []bridge.Kind
}

func (c *fakeCaller) Call(_ context.Context, kind bridge.Kind, _ string) (bridge.Response, error) {
	c.calls.Add(1)
	c.kinds = append(c.kinds, kind)
	return c.resp, c.err
}

type fakeHoverer struct {
	outcomes []engine.Outcome
}

func (h *fakeHoverer) OnHover(_ context.Context, _ string, out engine.Outcome) action.Action {
	h.outcomes = append(h.outcomes, out)
	if out.Verdict.IsPhishing() {
		return action.ActionMarked
	}
	return action.ActionNone
}

func TestHover_DeduplicatesPerPage(t *testing.T) {
	caller := &fakeCaller{resp: bridge.Response{
		Result:  &engine.Verdict{RiskLevel: engine.RiskPhishing, SafetyScore: 5},
		Source:  engine.SourcePattern,
		Success: true,
	}}
	hov := &fakeHoverer{}
	p := New("https://news.example", caller, hov, zap.NewNop())
	ctx := context.Background()

	act, err := p.Hover(ctx, "http://paypa1.com")
	if err != nil || act != action.ActionMarked {
		t.Fatalf("first hover: act=%q err=%v", act, err)
	}
	act, err = p.Hover(ctx, "http://paypa1.com")
	if err != nil || act != action.ActionNone {
		t.Fatalf("second hover: act=%q err=%v", act, err)
	}
	if n := caller.calls.Load(); n != 1 {
		t.Fatalf("bridge calls = %d, want 1", n)
	}
	if len(hov.outcomes) != 1 || hov.outcomes[0].Source != engine.SourcePattern {
		t.Fatalf("outcomes = %+v", hov.outcomes)
	}
	if !p.Scanned("http://paypa1.com") || p.Scanned("http://other.example") {
		t.Fatal("Scanned bookkeeping wrong")
	}
}

func TestHover_BridgeFailureNotRetried(t *testing.T) {
	caller := &fakeCaller{err: bridge.ErrClosed}
	p := New("https://news.example", caller, &fakeHoverer{}, zap.NewNop())
	ctx := context.Background()

	if _, err := p.Hover(ctx, "https://a.example"); !errors.Is(err, bridge.ErrClosed) {
		t.Fatalf("err = %v", err)
	}
	if _, err := p.Hover(ctx, "https://a.example"); err != nil {
		t.Fatalf("second hover err = %v", err)
	}
	if n := caller.calls.Load(); n != 1 {
		t.Fatalf("bridge calls = %d, want 1", n)
	}
}

func TestReport(t *testing.T) {
	caller := &fakeCaller{resp: bridge.Response{Success: true}}
	p := New("https://login.example", caller, &fakeHoverer{}, zap.NewNop())
	if err := p.Report(context.Background()); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(caller.kinds) != 1 || caller.kinds[0] != bridge.KindReportPhishing {
		t.Fatalf("kinds = %v", caller.kinds)
	}

	caller.resp = bridge.Response{Error: "nope"}
	if err := p.Report(context.Background()); err == nil {
		t.Fatal("expected error for unsuccessful report")
	}
}
