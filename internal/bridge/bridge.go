package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/triage-ai/phishguard/internal/engine"
	"go.uber.org/zap"
)

// Kind names a message type exchanged between the page and background contexts.
type Kind string

const (
	KindScanURL        Kind = "scanUrl"
	KindReportPhishing Kind = "reportPhishing"
)

// Request is sent from the in-page context (or the popup) to the background.
type Request struct {
	ID     string `json:"id"`
	Action Kind   `json:"action"`
	URL    string `json:"url"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID      string          `json:"id"`
	Result  *engine.Verdict `json:"result"`
	Source  engine.Source   `json:"-"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
}

var (
	ErrClosed      = errors.New("bridge closed")
	ErrUnknownKind = errors.New("unknown message kind")
)

// Handler serves requests in the background context.
type Handler interface {
	HandleMessage(ctx context.Context, req Request) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) Response

func (f HandlerFunc) HandleMessage(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Bridge carries request/response messages between contexts. Responses are
// matched to their caller by ID, so any number of calls may be in flight.
type Bridge struct {
	requests chan Request
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]chan Response
	closed  chan struct{}
	once    sync.Once
}

// New creates a bridge with the given request queue depth.
func New(queue int, logger *zap.Logger) *Bridge {
	return &Bridge{
		requests: make(chan Request, queue),
		logger:   logger,
		pending:  make(map[string]chan Response),
		closed:   make(chan struct{}),
	}
}

// Call sends req and waits for its response. The ID is assigned here.
func (b *Bridge) Call(ctx context.Context, kind Kind, rawURL string) (Response, error) {
	req := Request{ID: uuid.NewString(), Action: kind, URL: rawURL}
	reply := make(chan Response, 1)

	b.mu.Lock()
	b.pending[req.ID] = reply
	b.mu.Unlock()
	defer b.forget(req.ID)

	select {
	case b.requests <- req:
	case <-b.closed:
		return Response{}, ErrClosed
	case <-ctx.Done():
		return Response{}, fmt.Errorf("Call %s: %w", kind, ctx.Err())
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-b.closed:
		return Response{}, ErrClosed
	case <-ctx.Done():
		return Response{}, fmt.Errorf("Call %s: %w", kind, ctx.Err())
	}
}

// Serve runs h for every request until ctx is done or the bridge is closed.
// Each request is handled on its own goroutine.
func (b *Bridge) Serve(ctx context.Context, h Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case req := <-b.requests:
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp := h.HandleMessage(ctx, req)
				resp.ID = req.ID
				b.deliver(resp)
			}()
		case <-b.closed:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close fails all pending and future calls.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.closed) })
}

func (b *Bridge) deliver(resp Response) {
	b.mu.Lock()
	reply, ok := b.pending[resp.ID]
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("dropping response for abandoned call", zap.String("id", resp.ID))
		return
	}
	reply <- resp
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}
