package core

import (
	"context"
	"sync"
	"testing"

	"github.com/illarion/dekvault/internal/crypto"
	"github.com/illarion/dekvault/internal/remote"
	"github.com/illarion/dekvault/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const testSecret = "s3cr3t"

// memLocal is an in-memory KeyStore and ModeStore with fault injection
type memLocal struct {
	mu      sync.Mutex
	bundles map[string]*storage.KeyBundle
	mode    storage.PersistenceMode

	getErr  error
	putErr  error
	modeErr error

	// When set, Put signals putEntered and blocks until putGate is closed
	putGate    chan struct{}
	putEntered chan struct{}
}

func newMemLocal() *memLocal {
	return &memLocal{bundles: make(map[string]*storage.KeyBundle)}
}

func (m *memLocal) Get(ctx context.Context, id string) (*storage.KeyBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	b, ok := m.bundles[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return b.Clone(), nil
}

func (m *memLocal) Put(ctx context.Context, id string, bundle *storage.KeyBundle) error {
	m.mu.Lock()
	gate, entered := m.putGate, m.putEntered
	m.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.bundles[id] = bundle.Clone()
	return nil
}

func (m *memLocal) Clear(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bundles, id)
	return nil
}

func (m *memLocal) GetMode(ctx context.Context) (storage.PersistenceMode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modeErr != nil {
		return "", m.modeErr
	}
	if m.mode == "" {
		return storage.DefaultMode, nil
	}
	return m.mode, nil
}

func (m *memLocal) SetMode(ctx context.Context, mode storage.PersistenceMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modeErr != nil {
		return m.modeErr
	}
	m.mode = mode
	return nil
}

func (m *memLocal) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bundles)
}

func (m *memLocal) set(fn func(m *memLocal)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// flakyRemote wraps the in-memory remote store with fault injection
type flakyRemote struct {
	*remote.Memory

	mu     sync.Mutex
	getErr error
	putErr error

	// When set, Get signals getEntered and blocks until getGate is closed
	getGate    chan struct{}
	getEntered chan struct{}
}

func newFlakyRemote() *flakyRemote {
	return &flakyRemote{Memory: remote.NewMemory()}
}

func (f *flakyRemote) Get(ctx context.Context, identity string) (*storage.KeyBundle, error) {
	f.mu.Lock()
	gate, entered, err := f.getGate, f.getEntered, f.getErr
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return f.Memory.Get(ctx, identity)
}

func (f *flakyRemote) Put(ctx context.Context, identity string, bundle *storage.KeyBundle) error {
	f.mu.Lock()
	err := f.putErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Memory.Put(ctx, identity, bundle)
}

func (f *flakyRemote) set(fn func(f *flakyRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// Cheap KDF so tests stay fast
func testWrapOptions() crypto.WrapOptions {
	return crypto.WrapOptions{KDF: crypto.PBKDF2Params(1000), Cipher: crypto.CipherAESGCM}
}

func testOptions(t *testing.T) Options {
	return Options{
		Logger:  zaptest.NewLogger(t),
		Metrics: NewMetrics(),
		Wrap:    testWrapOptions(),
	}
}

func newTestVault(t *testing.T, local *memLocal, rem RemoteStore, deviceID string, opts Options) *Vault {
	t.Helper()
	v := New(local, local, rem, deviceID, opts)
	t.Cleanup(func() { v.Close() })
	return v
}

// fixture is a vault on device "dev-1" with its own local store
type fixture struct {
	v      *Vault
	local  *memLocal
	remote *flakyRemote
	opts   Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	local := newMemLocal()
	rem := newFlakyRemote()
	opts := testOptions(t)
	return &fixture{
		v:      newTestVault(t, local, rem, "dev-1", opts),
		local:  local,
		remote: rem,
		opts:   opts,
	}
}

// newDevice returns a vault sharing the remote store but with empty local
// state, as on a second device
func (f *fixture) newDevice(t *testing.T, deviceID string) (*Vault, *memLocal) {
	t.Helper()
	local := newMemLocal()
	return newTestVault(t, local, f.remote, deviceID, f.opts), local
}

func mustInitialize(t *testing.T, v *Vault, identity string, want State) {
	t.Helper()
	got, err := v.Initialize(context.Background(), identity)
	if err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}
	if got != want {
		t.Fatalf("Initialize(%q) = %s, want %s", identity, got, want)
	}
}

func mustSetup(t *testing.T, v *Vault, secret string) string {
	t.Helper()
	phrase, err := v.Setup(context.Background(), []byte(secret))
	if err != nil {
		t.Fatalf("Failed to set up: %v", err)
	}
	return phrase
}

func mustDEK(t *testing.T, v *Vault) []byte {
	t.Helper()
	dek, err := v.DEK()
	if err != nil {
		t.Fatalf("Failed to get DEK: %v", err)
	}
	return dek
}

// checkInvariant fails if the session holds a key outside StateUnlocked or
// lacks one inside it
type invariantT interface {
	Helper()
	Fatalf(format string, args ...any)
}

func checkInvariant(t invariantT, v *Vault) {
	t.Helper()
	v.mu.RLock()
	defer v.mu.RUnlock()
	hasKey := v.cache.Has(v.identity)
	if hasKey != (v.state == StateUnlocked) {
		t.Fatalf("session holds key = %v in state %s", hasKey, v.state)
	}
}

func nopOptions() Options {
	return Options{Logger: zap.NewNop(), Wrap: testWrapOptions()}
}
