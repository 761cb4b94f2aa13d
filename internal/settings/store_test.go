package settings

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/triage-ai/phishguard/internal/store"
	"go.uber.org/zap"
)

// failingBackend rejects every write.
type failingBackend struct{ *MemoryBackend }

func (failingBackend) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func (failingBackend) Update(context.Context, string, func([]byte, bool) ([]byte, error)) ([]byte, error) {
	return nil, errors.New("disk full")
}

func TestStore_Defaults(t *testing.T) {
	s := NewStore(NewMemoryBackend(), zap.NewNop())
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := s.Snapshot()
	if snap.APIURL != "http://localhost:5000" {
		t.Errorf("APIURL = %q", snap.APIURL)
	}
	if !snap.AutoBlock {
		t.Error("AutoBlock default should be true")
	}
	if snap.Stats != (Stats{}) {
		t.Errorf("Stats = %+v, want zero", snap.Stats)
	}
	if snap.Theme != ThemeLight {
		t.Errorf("Theme = %q", snap.Theme)
	}
}

func TestStore_LoadPersistedValues(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	_ = b.Put(ctx, KeyAPIURL, []byte(`"https://scorer.internal:8443"`))
	_ = b.Put(ctx, KeyAutoBlock, []byte(`false`))
	_ = b.Put(ctx, KeyStats, []byte(`{"blocked":3,"scanned":10,"reports":1}`))
	_ = b.Put(ctx, KeyTheme, []byte(`"dark"`))
	_ = b.Put(ctx, "legacyKey", []byte(`1`))           // ignored
	_ = b.Put(ctx, KeyCurrentPageScore, []byte(`"x"`)) // undecodable, ignored

	s := NewStore(b, zap.NewNop())
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := s.Snapshot()
	if snap.APIURL != "https://scorer.internal:8443" || snap.AutoBlock || snap.Theme != ThemeDark {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Stats != (Stats{Blocked: 3, Scanned: 10, Reports: 1}) {
		t.Errorf("Stats = %+v", snap.Stats)
	}
	if snap.CurrentPageScore != 0 {
		t.Errorf("CurrentPageScore = %d, want default 0", snap.CurrentPageScore)
	}
}

func TestStore_IncrementPersists(t *testing.T) {
	b := NewMemoryBackend()
	s := NewStore(b, zap.NewNop())
	ctx := context.Background()

	for _, c := range []Counter{CounterScanned, CounterScanned, CounterBlocked, CounterReports} {
		if err := s.Increment(ctx, c); err != nil {
			t.Fatalf("Increment(%v): %v", c, err)
		}
	}
	want := Stats{Scanned: 2, Blocked: 1, Reports: 1}
	if got := s.Stats(); got != want {
		t.Fatalf("Stats = %+v, want %+v", got, want)
	}

	reloaded := NewStore(b, zap.NewNop())
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := reloaded.Stats(); got != want {
		t.Fatalf("reloaded Stats = %+v, want %+v", got, want)
	}
}

func TestStore_IncrementConcurrent(t *testing.T) {
	s := NewStore(NewMemoryBackend(), zap.NewNop())
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Increment(ctx, CounterScanned)
		}()
	}
	wg.Wait()
	if got := s.Stats().Scanned; got != 100 {
		t.Fatalf("Scanned = %d, want 100", got)
	}
}

func TestStore_UnknownCounter(t *testing.T) {
	s := NewStore(NewMemoryBackend(), zap.NewNop())
	if err := s.Increment(context.Background(), Counter(42)); err == nil {
		t.Fatal("expected error for unknown counter")
	}
}

func TestStore_Validation(t *testing.T) {
	s := NewStore(NewMemoryBackend(), zap.NewNop())
	ctx := context.Background()

	for _, bad := range []string{"", "localhost:5000", "ftp://x.example", "http://"} {
		if err := s.SetAPIURL(ctx, bad); !errors.Is(err, ErrInvalidAPIURL) {
			t.Errorf("SetAPIURL(%q) = %v, want ErrInvalidAPIURL", bad, err)
		}
	}
	if err := s.SetTheme(ctx, "solarized"); !errors.Is(err, ErrInvalidTheme) {
		t.Errorf("SetTheme = %v, want ErrInvalidTheme", err)
	}
	if s.APIURL() != DefaultAPIURL {
		t.Errorf("APIURL changed after rejected update: %q", s.APIURL())
	}
}

func TestStore_FailedWriteKeepsCache(t *testing.T) {
	s := NewStore(failingBackend{NewMemoryBackend()}, zap.NewNop())
	if err := s.SetAutoBlock(context.Background(), false); err == nil {
		t.Fatal("expected persist error")
	}
	if !s.AutoBlock() {
		t.Fatal("cached copy updated despite failed write")
	}
	if err := s.Increment(context.Background(), CounterScanned); err == nil {
		t.Fatal("expected persist error from Increment")
	}
	if s.Stats() != (Stats{}) {
		t.Fatalf("Stats = %+v after failed increment", s.Stats())
	}
}

func TestStore_SubscribeReceivesChanges(t *testing.T) {
	s := NewStore(NewMemoryBackend(), zap.NewNop())
	ctx := context.Background()

	var got []Change
	unsubscribe := s.Subscribe(func(c Change) { got = append(got, c) })

	if err := s.SetAPIURL(ctx, "http://10.0.0.5:5000"); err != nil {
		t.Fatalf("SetAPIURL: %v", err)
	}
	if len(got) != 1 || got[0].Key != KeyAPIURL {
		t.Fatalf("changes = %+v", got)
	}
	if got[0].Old.APIURL != DefaultAPIURL || got[0].New.APIURL != "http://10.0.0.5:5000" {
		t.Fatalf("change = %+v", got[0])
	}

	unsubscribe()
	_ = s.SetAutoBlock(ctx, false)
	if len(got) != 1 {
		t.Fatalf("received change after unsubscribe: %+v", got)
	}
}

func TestStore_ApplyExternalChange(t *testing.T) {
	b := NewMemoryBackend()
	s := NewStore(b, zap.NewNop())

	notified := false
	s.Subscribe(func(c Change) { notified = c.Key == KeyAutoBlock && !c.New.AutoBlock })

	if err := s.Apply(KeyAutoBlock, []byte(`false`)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if s.AutoBlock() {
		t.Fatal("cached copy not updated")
	}
	if !notified {
		t.Fatal("subscriber not notified")
	}
	if _, ok, _ := b.Get(context.Background(), KeyAutoBlock); ok {
		t.Fatal("Apply must not write back to the backend")
	}

	if err := s.Apply("bogus", []byte(`1`)); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("Apply(bogus) = %v, want ErrUnknownKey", err)
	}
}

func TestStore_Install(t *testing.T) {
	s := NewStore(NewMemoryBackend(), zap.NewNop())
	ctx := context.Background()
	_ = s.Increment(ctx, CounterBlocked)
	_ = s.SetAutoBlock(ctx, false)

	if err := s.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if s.Stats() != (Stats{}) || !s.AutoBlock() {
		t.Fatalf("after Install: %+v", s.Snapshot())
	}
}

func TestStore_SQLBackend(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "phishguard.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer db.Close()

	s := NewStore(db, zap.NewNop())
	if err := s.SetCurrentPageScore(ctx, 92); err != nil {
		t.Fatalf("SetCurrentPageScore: %v", err)
	}
	if err := s.Increment(ctx, CounterReports); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	fresh := NewStore(db, zap.NewNop())
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap := fresh.Snapshot(); snap.CurrentPageScore != 92 || snap.Stats.Reports != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

// openSharedStores opens n independent stores on the sqlite file at path, as
// the CLI and a running agent would.
func openSharedStores(t *testing.T, path string, n int) []*Store {
	t.Helper()
	ctx := context.Background()
	var out []*Store
	for i := 0; i < n; i++ {
		db, err := store.Open(ctx, store.DriverSQLite, path)
		if err != nil {
			t.Fatalf("store.Open: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		s := NewStore(db, zap.NewNop())
		if err := s.Load(ctx); err != nil {
			t.Fatalf("Load: %v", err)
		}
		out = append(out, s)
	}
	return out
}

func TestStore_IncrementAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "phishguard.db")
	stores := openSharedStores(t, path, 2)
	cli, agent := stores[0], stores[1]

	if err := cli.Increment(ctx, CounterReports); err != nil {
		t.Fatalf("cli Increment: %v", err)
	}
	if err := agent.Increment(ctx, CounterScanned); err != nil {
		t.Fatalf("agent Increment: %v", err)
	}
	if got := agent.Stats(); got != (Stats{Scanned: 1, Reports: 1}) {
		t.Fatalf("agent Stats = %+v", got)
	}

	if got := openSharedStores(t, path, 1)[0].Stats(); got != (Stats{Scanned: 1, Reports: 1}) {
		t.Fatalf("persisted Stats = %+v, want Scanned 1 and Reports 1", got)
	}
}

func TestStore_RefreshAppliesExternalWrites(t *testing.T) {
	ctx := context.Background()
	stores := openSharedStores(t, filepath.Join(t.TempDir(), "phishguard.db"), 2)
	cli, agent := stores[0], stores[1]

	var changed []string
	agent.Subscribe(func(c Change) { changed = append(changed, c.Key) })

	if err := agent.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(changed) != 0 {
		t.Fatalf("changes without external writes: %v", changed)
	}

	if err := cli.SetAutoBlock(ctx, false); err != nil {
		t.Fatalf("SetAutoBlock: %v", err)
	}
	if err := cli.Increment(ctx, CounterBlocked); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if err := agent.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if agent.AutoBlock() {
		t.Fatal("autoBlock written by another store not applied")
	}
	if agent.Stats().Blocked != 1 {
		t.Fatalf("Stats = %+v", agent.Stats())
	}
	if len(changed) != 2 || changed[0] != KeyAutoBlock || changed[1] != KeyStats {
		t.Fatalf("changes = %v, want [autoBlock stats]", changed)
	}

	if err := agent.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(changed) != 2 {
		t.Fatalf("unchanged backend produced notifications: %v", changed)
	}
}

func TestStore_WatchPicksUpChanges(t *testing.T) {
	b := NewMemoryBackend()
	s := NewStore(b, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan Change, 1)
	s.Subscribe(func(c Change) {
		select {
		case seen <- c:
		default:
		}
	})
	go s.Watch(ctx, 5*time.Millisecond)

	_ = b.Put(ctx, KeyTheme, []byte(`"dark"`))
	select {
	case c := <-seen:
		if c.Key != KeyTheme || c.New.Theme != ThemeDark {
			t.Fatalf("change = %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not apply the backend change")
	}
}
