// Package session holds the unwrapped DEK in protected memory for the
// lifetime of one process.
//
// The key is sealed in a memguard Enclave while idle and only decrypted
// into a locked buffer for the duration of a read. Nothing here is ever
// written to disk.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

var ErrEmpty = errors.New("no key in session")

// Cache holds at most one DEK, tagged with the identity it belongs to
type Cache struct {
	mu       sync.RWMutex
	enclave  *memguard.Enclave
	identity string
}

// New returns an empty cache
func New() *Cache {
	return &Cache{}
}

// Set stores a copy of dek for identity, replacing any previous key.
// The caller keeps ownership of dek.
func (c *Cache) Set(identity string, dek []byte) error {
	if len(dek) == 0 {
		return fmt.Errorf("refusing to cache an empty key")
	}

	// NewEnclave wipes its argument
	buf := make([]byte, len(dek))
	copy(buf, dek)
	enclave := memguard.NewEnclave(buf)
	if enclave == nil {
		return fmt.Errorf("failed to seal key in enclave")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.enclave = enclave
	c.identity = identity
	return nil
}

// Get returns a copy of the cached key. The caller must clear it.
func (c *Cache) Get(identity string) ([]byte, error) {
	var out []byte
	err := c.With(identity, func(dek []byte) error {
		out = make([]byte, len(dek))
		copy(out, dek)
		return nil
	})
	return out, err
}

// With opens the cached key for the duration of fn. The slice passed to fn
// is wiped when fn returns and must not be retained.
func (c *Cache) With(identity string, fn func(dek []byte) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.enclave == nil || c.identity != identity {
		return ErrEmpty
	}

	buffer, err := c.enclave.Open()
	if err != nil {
		return fmt.Errorf("failed to open key enclave: %w", err)
	}
	defer buffer.Destroy()

	return fn(buffer.Bytes())
}

// Has reports whether a key for identity is cached
func (c *Cache) Has(identity string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enclave != nil && c.identity == identity
}

// Clear drops the cached key. Clearing an empty cache is a no-op.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Enclave contents are encrypted; dropping the reference is enough
	c.enclave = nil
	c.identity = ""
}

// Purge wipes all memguard-protected memory in the process. Call it once
// on shutdown.
func Purge() {
	memguard.Purge()
}
