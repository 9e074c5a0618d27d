// Package keyring keeps wrapped key bundles in the OS keyring instead of
// the local database.
package keyring

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/illarion/dekvault/internal/storage"
	"github.com/zalando/go-keyring"
)

const serviceName = "dekvault"

// Store implements the local key store on top of the OS keyring.
// Bundles are stored base64-encoded since some backends mangle raw JSON.
type Store struct {
	service string
}

// New returns a keyring-backed store
func New() *Store {
	return &Store{service: serviceName}
}

// Get returns the bundle stored under id, or storage.ErrNotFound
func (s *Store) Get(ctx context.Context, id string) (*storage.KeyBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoded, err := keyring.Get(s.service, id)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: keyring: %v", storage.ErrUnavailable, err)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidBundle, err)
	}
	return storage.ParseKeyBundle(data)
}

// Put stores the bundle under id
func (s *Store) Put(ctx context.Context, id string, bundle *storage.KeyBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := bundle.Marshal()
	if err != nil {
		return err
	}
	if err := keyring.Set(s.service, id, base64.StdEncoding.EncodeToString(data)); err != nil {
		return fmt.Errorf("%w: keyring: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Clear removes the bundle stored under id. A missing entry is not an error.
func (s *Store) Clear(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := keyring.Delete(s.service, id)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: keyring: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Has checks if a bundle is stored under id
func (s *Store) Has(id string) bool {
	_, err := keyring.Get(s.service, id)
	return err == nil
}
