package remote

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// mongoURIEnv names a MongoDB server to run the backend tests against
const mongoURIEnv = "DEKVAULT_TEST_MONGO_URI"

func openTestMongo(t *testing.T) *Mongo {
	t.Helper()
	uri := os.Getenv(mongoURIEnv)
	if uri == "" {
		t.Skipf("%s not set", mongoURIEnv)
	}

	ctx := context.Background()
	coll := fmt.Sprintf("key_bundles_test_%d", time.Now().UnixNano())
	m, err := NewMongo(ctx, uri, DefaultMongoDatabase, coll)
	if err != nil {
		t.Fatalf("Failed to connect to mongo: %v", err)
	}
	t.Cleanup(func() {
		_ = m.coll.Drop(ctx)
		_ = m.Close(ctx)
	})
	return m
}

func TestMongoBackend(t *testing.T) {
	exerciseBackend(t, openTestMongo(t))
}

func TestMongoBackendViaOpen(t *testing.T) {
	m := openTestMongo(t)

	b, err := Open(context.Background(), Config{
		Backend:         BackendMongo,
		MongoURI:        os.Getenv(mongoURIEnv),
		MongoDatabase:   DefaultMongoDatabase,
		MongoCollection: m.coll.Name(),
	})
	if err != nil {
		t.Fatalf("Failed to open mongo backend: %v", err)
	}
	defer b.Close(context.Background())

	// Both handles see the same collection
	if err := m.Put(context.Background(), "alice", newBundle(t)); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if _, err := b.Get(context.Background(), "alice"); err != nil {
		t.Errorf("Failed to get through Open: %v", err)
	}
}

func TestNewMongoRequiresURI(t *testing.T) {
	if _, err := NewMongo(context.Background(), "", "", ""); err == nil {
		t.Fatal("expected error for empty uri")
	}
}
