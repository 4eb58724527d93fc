package factstore

import (
	"context"
	"fmt"
	"time"

	"github.com/andrej220/routerconfig/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoOpTimeout = 30 * time.Second

// MongoStore upserts one document per device per run, keyed
// <device>_<run id>.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
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
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (m *MongoStore) Save(ctx context.Context, f models.Facts) error {
	doc, err := mongoDocument(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	_, err = m.collection.ReplaceOne(ctx, bson.M{"_id": doc["_id"]}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save facts for %s: MongoDB ReplaceOne failed: %w", f.Name, err)
	}
	return nil
}

func (m *MongoStore) Close() error {
	return m.client.Disconnect(context.Background())
}

func mongoDocument(f models.Facts) (bson.M, error) {
	data, err := bson.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal facts for %s: %w", f.Name, err)
	}
	doc := bson.M{}
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal facts for %s: %w", f.Name, err)
	}
	doc["_id"] = docID(f)
	doc["runId"] = f.RunID.String()
	return doc, nil
}
