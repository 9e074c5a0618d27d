package session

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/illarion/dekvault/internal/crypto"
)

func TestSetGet(t *testing.T) {
	c := New()
	dek, err := crypto.GenerateDEK()
	if err != nil {
		t.Fatalf("Failed to generate DEK: %v", err)
	}
	orig := append([]byte(nil), dek...)

	if err := c.Set("alice", dek); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	if !bytes.Equal(dek, orig) {
		t.Fatal("Set must not modify the caller's slice")
	}

	got, err := c.Get("alice")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if !bytes.Equal(got, orig) {
		t.Error("cached key mismatch")
	}

	// Returned slice is a copy
	crypto.ClearBytes(got)
	again, err := c.Get("alice")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if !bytes.Equal(again, orig) {
		t.Error("clearing a returned copy affected the cache")
	}
}

func TestEmptyAndOtherIdentity(t *testing.T) {
	c := New()
	if _, err := c.Get("alice"); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
	if c.Has("alice") {
		t.Error("new cache should be empty")
	}

	if err := c.Set("alice", []byte("0123456789abcdef0123456789abcdef")); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	if _, err := c.Get("bob"); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty for another identity, got %v", err)
	}
	if !c.Has("alice") || c.Has("bob") {
		t.Error("cache should hold the key for alice only")
	}

	if err := c.Set("alice", nil); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestClear(t *testing.T) {
	c := New()
	if err := c.Set("alice", []byte("0123456789abcdef0123456789abcdef")); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	c.Clear()
	c.Clear()

	if c.Has("alice") {
		t.Error("key still cached after Clear")
	}
	if err := c.With("alice", func([]byte) error { return nil }); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestWithPropagatesError(t *testing.T) {
	c := New()
	if err := c.Set("alice", []byte("0123456789abcdef0123456789abcdef")); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	sentinel := errors.New("boom")
	if err := c.With("alice", func([]byte) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("expected callback error, got %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	key := []byte("0123456789abcdef0123456789abcdef")
	if err := c.Set("alice", key); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got, err := c.Get("alice")
				if err != nil {
					t.Errorf("Get: %v", err)
					return
				}
				if !bytes.Equal(got, key) {
					t.Error("torn read")
					return
				}
			}
		}()
	}
	wg.Wait()
}
