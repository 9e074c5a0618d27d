package remote

import (
	"context"
	"sync"

	"github.com/illarion/dekvault/internal/storage"
)

// Memory keeps bundles in process memory. It backs the interactive shell
// and tests.
type Memory struct {
	mu      sync.RWMutex
	bundles map[string][]byte
}

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{bundles: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, identity string) (*storage.KeyBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := bundleKey(identity)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.bundles[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

func (m *Memory) Put(ctx context.Context, identity string, bundle *storage.KeyBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := bundleKey(identity)
	if err != nil {
		return err
	}
	data, err := bundle.Marshal()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.bundles[key] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, identity string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := bundleKey(identity)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.bundles, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close(context.Context) error {
	return nil
}

// Len returns the number of stored bundles
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bundles)
}
