// Package remote provides the remote key bundle stores a vault recovers
// from: a local directory, MongoDB, S3, and an in-memory store.
//
// Remote stores only ever see wrapped bundles. Bundles are addressed by a
// hash of the identity so the store does not learn user names either.
package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/illarion/dekvault/internal/storage"
)

// Backend names accepted by Open
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendMongo  = "mongo"
	BackendS3     = "s3"
)

// maxBundleSize caps how much is read back from a remote store
const maxBundleSize = 64 << 10

var (
	ErrNotFound    = errors.New("no key bundle for identity")
	ErrUnavailable = errors.New("remote storage unavailable")
	ErrNoIdentity  = errors.New("empty identity")
)

// Backend is a remote key bundle store
type Backend interface {
	Get(ctx context.Context, identity string) (*storage.KeyBundle, error)
	Put(ctx context.Context, identity string, bundle *storage.KeyBundle) error
	Delete(ctx context.Context, identity string) error
	Close(ctx context.Context) error
}

// Config selects and configures a backend
type Config struct {
	Backend string

	Dir string // file

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	S3Bucket   string
	S3Prefix   string
	S3Region   string
	S3Endpoint string
}

// Open connects to the configured backend
func Open(ctx context.Context, cfg Config) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		b = NewMemory()
	case BackendFile, "":
		b, err = NewFile(cfg.Dir)
	case BackendMongo:
		b, err = NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	case BackendS3:
		b, err = NewS3FromConfig(cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, cfg.S3Endpoint)
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// bundleKey maps an identity to its storage key
func bundleKey(identity string) (string, error) {
	if identity == "" {
		return "", ErrNoIdentity
	}
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:]), nil
}

func decode(data []byte) (*storage.KeyBundle, error) {
	bundle, err := storage.ParseKeyBundle(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return bundle, nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
