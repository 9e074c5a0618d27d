package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/illarion/dekvault/internal/crypto"
)

func openTestDB(t *testing.T) *Storage {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), DBFile))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testBundle(t *testing.T, withPassphrase bool) *KeyBundle {
	t.Helper()
	dek, err := crypto.GenerateDEK()
	if err != nil {
		t.Fatalf("Failed to generate DEK: %v", err)
	}
	opts := crypto.WrapOptions{KDF: crypto.PBKDF2Params(1000), Cipher: crypto.CipherAESGCM}

	recovery, err := crypto.WrapDEK(dek, []byte("recovery words"), opts)
	if err != nil {
		t.Fatalf("Failed to wrap recovery: %v", err)
	}
	var passphrase *crypto.WrappedDEK
	if withPassphrase {
		passphrase, err = crypto.WrapDEK(dek, []byte("s3cr3t"), opts)
		if err != nil {
			t.Fatalf("Failed to wrap passphrase: %v", err)
		}
	}
	return NewKeyBundle(recovery, passphrase)
}

func TestOpenAndInitialize(t *testing.T) {
	db := openTestDB(t)

	// Initialize again must be harmless
	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to re-initialize: %v", err)
	}

	if _, err := db.GetModified(); err != nil {
		t.Errorf("Failed to read modified time: %v", err)
	}
	if filepath.Base(db.Path()) != DBFile {
		t.Errorf("unexpected path %s", db.Path())
	}
}

func TestDeviceIDStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), DBFile)

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	id1, err := db.GetOrCreateDeviceID()
	if err != nil {
		t.Fatalf("Failed to get device id: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()
	id2, err := db.GetOrCreateDeviceID()
	if err != nil {
		t.Fatalf("Failed to get device id: %v", err)
	}

	if id1 == "" || id1 != id2 {
		t.Errorf("device id not stable: %q vs %q", id1, id2)
	}
}

func TestPersistenceMode(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	mode, err := db.GetMode(ctx)
	if err != nil {
		t.Fatalf("Failed to get mode: %v", err)
	}
	if mode != DefaultMode {
		t.Errorf("default mode = %s, want %s", mode, DefaultMode)
	}

	if err := db.SetMode(ctx, ModeSession); err != nil {
		t.Fatalf("Failed to set mode: %v", err)
	}
	mode, err = db.GetMode(ctx)
	if err != nil {
		t.Fatalf("Failed to get mode: %v", err)
	}
	if mode != ModeSession {
		t.Errorf("mode = %s, want %s", mode, ModeSession)
	}

	if err := db.SetMode(ctx, PersistenceMode("forever")); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    PersistenceMode
		wantErr bool
	}{
		{"session", ModeSession, false},
		{"device", ModeDevice, false},
		{"", "", true},
		{"Device", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBundleRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id := KeyID("alice", "device-1")

	if _, err := db.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	bundle := testBundle(t, true)
	if err := db.Put(ctx, id, bundle); err != nil {
		t.Fatalf("Failed to put bundle: %v", err)
	}

	got, err := db.Get(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get bundle: %v", err)
	}
	if !got.HasPassphrase() {
		t.Error("passphrase slot lost")
	}
	if string(got.Recovery.Ciphertext) != string(bundle.Recovery.Ciphertext) {
		t.Error("recovery slot mismatch")
	}

	// Other users on the same device are isolated
	if _, err := db.Get(ctx, KeyID("bob", "device-1")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other identity, got %v", err)
	}

	ids, err := db.Keys()
	if err != nil {
		t.Fatalf("Failed to list keys: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("Keys() = %v, want [%s]", ids, id)
	}
}

func TestClear(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id := KeyID("alice", "device-1")

	if err := db.Put(ctx, id, testBundle(t, false)); err != nil {
		t.Fatalf("Failed to put bundle: %v", err)
	}
	if err := db.Clear(ctx, id); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	if _, err := db.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after clear, got %v", err)
	}

	// Clearing twice is fine
	if err := db.Clear(ctx, id); err != nil {
		t.Errorf("second clear failed: %v", err)
	}
}

func TestPutRejectsInvalidBundle(t *testing.T) {
	db := openTestDB(t)
	err := db.Put(context.Background(), "x", &KeyBundle{Version: BundleVersion})
	if !errors.Is(err, ErrInvalidBundle) {
		t.Errorf("expected ErrInvalidBundle, got %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := db.Get(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get: expected context.Canceled, got %v", err)
	}
	if err := db.Clear(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Clear: expected context.Canceled, got %v", err)
	}
}

func TestUnavailableAfterClose(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), DBFile))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	db.Close()

	if _, err := db.Get(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestCompact(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, user := range []string{"alice", "bob", "carol"} {
		if err := db.Put(ctx, KeyID(user, "d"), testBundle(t, false)); err != nil {
			t.Fatalf("Failed to put bundle: %v", err)
		}
	}
	if err := db.Clear(ctx, KeyID("bob", "d")); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}

	if err := db.Compact(); err != nil {
		t.Fatalf("Failed to compact: %v", err)
	}

	ids, err := db.Keys()
	if err != nil {
		t.Fatalf("Failed to list keys: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 bundles after compact, got %v", ids)
	}
	if _, err := db.Get(ctx, KeyID("carol", "d")); err != nil {
		t.Errorf("bundle lost in compact: %v", err)
	}
}
