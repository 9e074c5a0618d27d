package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illarion/dekvault/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultMongoDatabase   = "dekvault"
	DefaultMongoCollection = "key_bundles"
	mongoPingTimeout       = 5 * time.Second
)

// Mongo stores one document per identity:
// {_id: key, bundle: <json>, createdAt, updatedAt}
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoDoc struct {
	Bundle []byte `bson:"bundle"`
}

// NewMongo connects to MongoDB and verifies the connection
func NewMongo(ctx context.Context, uri, dbName, collName string) (*Mongo, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	if dbName == "" {
		dbName = DefaultMongoDatabase
	}
	if collName == "" {
		collName = DefaultMongoCollection
	}

	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, unavailable("connect", err)
	}
	pctx, cancel := context.WithTimeout(ctx, mongoPingTimeout)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, unavailable("ping", err)
	}

	return &Mongo{client: cli, coll: cli.Database(dbName).Collection(collName)}, nil
}

func (m *Mongo) Get(ctx context.Context, identity string) (*storage.KeyBundle, error) {
	key, err := bundleKey(identity)
	if err != nil {
		return nil, err
	}

	var doc mongoDoc
	err = m.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find", err)
	}
	if len(doc.Bundle) > maxBundleSize {
		return nil, fmt.Errorf("%w: bundle too large", ErrUnavailable)
	}
	return decode(doc.Bundle)
}

func (m *Mongo) Put(ctx context.Context, identity string, bundle *storage.KeyBundle) error {
	key, err := bundleKey(identity)
	if err != nil {
		return err
	}
	data, err := bundle.Marshal()
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = m.coll.UpdateByID(
		ctx,
		key,
		bson.M{
			"$set": bson.M{
				"bundle":    data,
				"updatedAt": now,
			},
			"$setOnInsert": bson.M{
				"createdAt": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return unavailable("upsert", err)
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, identity string) error {
	key, err := bundleKey(identity)
	if err != nil {
		return err
	}
	if _, err := m.coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
