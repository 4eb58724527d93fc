package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andrej220/routerconfig/pkg/config/configstore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Ensure MongoStore implements the ConfigStore interface
var _ configstore.ConfigStore = (*MongoStore)(nil)

const opTimeout = 10 * time.Second

type MongoStore struct {
	Client     *mongo.Client
	Collection *mongo.Collection
	ID         string // document id, e.g. "routerconfig"
}

func New(uri, dbName, collName, id string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoStore{
		Client:     client,
		Collection: client.Database(dbName).Collection(collName),
		ID:         id,
	}, nil
}

func (m *MongoStore) Load(out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res := m.Collection.FindOne(ctx, bson.M{"_id": m.ID})
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("document with ID %q not found", m.ID)
		}
		return fmt.Errorf("MongoDB FindOne failed: %w", err)
	}
	if err := res.Decode(out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

func (m *MongoStore) Save(in any) error {
	if in == nil {
		return fmt.Errorf("Save: input parameter must not be nil")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := m.Collection.ReplaceOne(ctx, bson.M{"_id": m.ID}, in, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("Save: MongoDB ReplaceOne failed: %w", err)
	}
	return nil
}

func (m *MongoStore) Close() error {
	return m.Client.Disconnect(context.Background())
}
