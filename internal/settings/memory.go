package settings

import (
	"context"
	"sync"
)

// MemoryBackend is a process-local Backend for tests and ephemeral agents.
type MemoryBackend struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{m: make(map[string][]byte)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (b *MemoryBackend) Put(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[key] = append([]byte(nil), value...)
	return nil
}

func (b *MemoryBackend) All(_ context.Context) (map[string][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]byte, len(b.m))
	for k, v := range b.m {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

// Update runs fn under the backend lock.
func (b *MemoryBackend) Update(_ context.Context, key string, fn func(raw []byte, ok bool) ([]byte, error)) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.m[key]
	next, err := fn(append([]byte(nil), v...), ok)
	if err != nil {
		return nil, err
	}
	b.m[key] = append([]byte(nil), next...)
	return append([]byte(nil), next...), nil
}
