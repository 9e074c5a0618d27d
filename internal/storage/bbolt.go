package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	DBFile        = "vault.db"
	DirPermSecure = 0700 // Directory: owner rwx only
	openTimeout   = 2 * time.Second
)

// Bucket names
var (
	ConfigBucket = []byte("config") // version, timestamps, device id, persistence mode
	KeysBucket   = []byte("keys")   // wrapped key bundles keyed by user+device
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigDeviceID = []byte("device_id")
	ConfigMode     = []byte("persistence_mode")
)

var (
	ErrNotFound    = errors.New("key bundle not found")
	ErrUnavailable = errors.New("local storage unavailable")
)

// PersistenceMode controls whether wrapped keys survive the session on
// this device
type PersistenceMode string

const (
	ModeSession PersistenceMode = "session"
	ModeDevice  PersistenceMode = "device"
)

// DefaultMode applies when no mode has been recorded
const DefaultMode = ModeDevice

// ParseMode parses a persistence mode name
func ParseMode(s string) (PersistenceMode, error) {
	switch PersistenceMode(s) {
	case ModeSession, ModeDevice:
		return PersistenceMode(s), nil
	default:
		return "", fmt.Errorf("unknown persistence mode %q (want session or device)", s)
	}
}

// KeyID scopes a stored bundle to one user on one device
func KeyID(identity, deviceID string) string {
	return identity + "@" + deviceID
}

// Storage provides BBolt-based storage for dekvault
type Storage struct {
	db *bolt.DB
}

// Open opens or creates a dekvault database
func Open(path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), DirPermSecure); err != nil {
		return nil, fmt.Errorf("%w: failed to create data directory: %v", ErrUnavailable, err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrUnavailable, err)
	}

	s := &Storage{db: db}
	if err := s.Initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.db.Path()
}

// Initialize creates the bucket structure. It is idempotent.
func (s *Storage) Initialize() error {
	return s.update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, KeysBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if config.Get(ConfigVersion) != nil {
			return nil
		}
		if err := config.Put(ConfigVersion, []byte("1")); err != nil {
			return err
		}

		created, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

func (s *Storage) update(fn func(tx *bolt.Tx) error) error {
	if err := s.db.Update(fn); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Storage) view(fn func(tx *bolt.Tx) error) error {
	if err := s.db.View(fn); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func touch(tx *bolt.Tx) error {
	modified, _ := time.Now().MarshalBinary()
	return tx.Bucket(ConfigBucket).Put(ConfigModified, modified)
}

// GetModified retrieves the last modified timestamp
func (s *Storage) GetModified() (time.Time, error) {
	var modified time.Time
	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(ConfigBucket).Get(ConfigModified)
		if data == nil {
			return fmt.Errorf("modified time not found")
		}
		return modified.UnmarshalBinary(data)
	})
	return modified, err
}

// GetOrCreateDeviceID retrieves the device id or generates a new one
func (s *Storage) GetOrCreateDeviceID() (string, error) {
	var deviceID string
	err := s.update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if data := config.Get(ConfigDeviceID); data != nil {
			deviceID = string(data)
			return nil
		}
		deviceID = uuid.NewString()
		return config.Put(ConfigDeviceID, []byte(deviceID))
	})
	return deviceID, err
}

// GetMode returns the recorded persistence mode, or DefaultMode
func (s *Storage) GetMode(ctx context.Context) (PersistenceMode, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mode := DefaultMode
	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(ConfigBucket).Get(ConfigMode)
		if data == nil {
			return nil
		}
		parsed, err := ParseMode(string(data))
		if err != nil {
			return err
		}
		mode = parsed
		return nil
	})
	return mode, err
}

// SetMode records the persistence mode
func (s *Storage) SetMode(ctx context.Context, mode PersistenceMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	return s.update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(ConfigBucket).Put(ConfigMode, []byte(mode)); err != nil {
			return err
		}
		return touch(tx)
	})
}

// Get returns the bundle stored under id, or ErrNotFound
func (s *Storage) Get(ctx context.Context, id string) (*KeyBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.view(func(tx *bolt.Tx) error {
		data = tx.Bucket(KeysBucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		// Make a copy since the slice is only valid during the transaction
		data = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ParseKeyBundle(data)
}

// Put stores the bundle under id, replacing any previous one
func (s *Storage) Put(ctx context.Context, id string, bundle *KeyBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := bundle.Marshal()
	if err != nil {
		return err
	}

	return s.update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(KeysBucket).Put([]byte(id), data); err != nil {
			return err
		}
		return touch(tx)
	})
}

// Clear removes the bundle stored under id. Clearing an absent id is not
// an error.
func (s *Storage) Clear(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(KeysBucket).Delete([]byte(id)); err != nil {
			return err
		}
		return touch(tx)
	})
}

// Keys returns the ids of all stored bundles
func (s *Storage) Keys() ([]string, error) {
	var ids []string
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(KeysBucket).ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// Compact creates a compacted copy of the database, removing unused space.
// Deleted bundles stay on free pages until the file is compacted.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	// Create new database
	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	// Copy all buckets
	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// Atomic replace
	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	// Reopen database
	s.db, err = bolt.Open(srcPath, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}
