package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCloseTimeout = 5 * time.Second

type mongoCheckpoint struct {
	ThreadID  string    `bson:"_id"`
	Messages  string    `bson:"messages"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps one document per thread in the "checkpoints" collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		database = "lattice_discord"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{client: client, collection: client.Database(database).Collection("checkpoints")}, nil
}

func (ms *MongoStore) Load(ctx context.Context, threadID string) (Checkpoint, bool, error) {
	var doc mongoCheckpoint
	err := ms.collection.FindOne(ctx, bson.M{"_id": threadID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Checkpoint{ThreadID: threadID}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	msgs, err := decodeMessages([]byte(doc.Messages))
	if err != nil {
		return Checkpoint{}, false, err
	}
	return Checkpoint{ThreadID: threadID, Messages: msgs, UpdatedAt: doc.UpdatedAt}, true, nil
}

func (ms *MongoStore) Save(ctx context.Context, cp Checkpoint) error {
	stamp(&cp)
	raw, err := encodeMessages(cp.Messages)
	if err != nil {
		return err
	}
	doc := mongoCheckpoint{ThreadID: cp.ThreadID, Messages: string(raw), UpdatedAt: cp.UpdatedAt}
	_, err = ms.collection.ReplaceOne(ctx, bson.M{"_id": cp.ThreadID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.ThreadID, err)
	}
	return nil
}

func (ms *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}
