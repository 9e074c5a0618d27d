package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/illarion/dekvault/internal/crypto"
)

// BundleVersion is the current KeyBundle format version
const BundleVersion = 1

var ErrInvalidBundle = errors.New("invalid key bundle")

// KeyBundle is the unit persisted locally and remotely: the DEK wrapped
// under the recovery phrase and, optionally, under an unlock passphrase.
// Bundles are replaced whole, never edited in place.
type KeyBundle struct {
	Version    int                `json:"version"`
	Created    time.Time          `json:"created"`
	Modified   time.Time          `json:"modified"`
	Recovery   *crypto.WrappedDEK `json:"recovery"`
	Passphrase *crypto.WrappedDEK `json:"passphrase,omitempty"`
}

// NewKeyBundle creates a bundle from freshly wrapped keys
func NewKeyBundle(recovery, passphrase *crypto.WrappedDEK) *KeyBundle {
	now := time.Now().UTC()
	return &KeyBundle{
		Version:    BundleVersion,
		Created:    now,
		Modified:   now,
		Recovery:   recovery,
		Passphrase: passphrase,
	}
}

// Validate checks that the bundle can be used for recovery
func (b *KeyBundle) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: empty", ErrInvalidBundle)
	}
	if b.Version != BundleVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidBundle, b.Version)
	}
	if b.Recovery == nil {
		return fmt.Errorf("%w: missing recovery key", ErrInvalidBundle)
	}
	return nil
}

// HasPassphrase reports whether a passphrase slot exists
func (b *KeyBundle) HasPassphrase() bool {
	return b != nil && b.Passphrase != nil
}

// Clone returns a deep copy
func (b *KeyBundle) Clone() *KeyBundle {
	if b == nil {
		return nil
	}
	c := *b
	c.Recovery = b.Recovery.Clone()
	c.Passphrase = b.Passphrase.Clone()
	return &c
}

// WithPassphrase returns a copy of the bundle whose passphrase slot is
// replaced by w
func (b *KeyBundle) WithPassphrase(w *crypto.WrappedDEK) *KeyBundle {
	c := b.Clone()
	c.Passphrase = w
	c.Modified = time.Now().UTC()
	return c
}

// WithRecovery returns a copy of the bundle whose recovery slot is
// replaced by w
func (b *KeyBundle) WithRecovery(w *crypto.WrappedDEK) *KeyBundle {
	c := b.Clone()
	c.Recovery = w
	c.Modified = time.Now().UTC()
	return c
}

// Marshal encodes the bundle as JSON
func (b *KeyBundle) Marshal() ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(b)
}

// ParseKeyBundle decodes and validates a JSON bundle
func ParseKeyBundle(data []byte) (*KeyBundle, error) {
	var b KeyBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}
