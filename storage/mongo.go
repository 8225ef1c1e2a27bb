package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"Examiner/lib/sl"
)

const (
	collectionName = "sessions"
	opTimeout      = 5 * time.Second
)

type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *slog.Logger
}

func NewMongoStorage(uri, database string, log *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	collection := client.Database(database).Collection(collectionName)

	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		log.Warn("creating index", sl.Err(err))
	}

	store := newMongoCollectionStorage(collection, log)
	store.client = client
	return store, nil
}

func newMongoCollectionStorage(collection *mongo.Collection, log *slog.Logger) *MongoStorage {
	return &MongoStorage{
		collection: collection,
		log:        log.With(sl.Module("mongo-sessions")),
	}
}

func (m *MongoStorage) Get(ctx context.Context, userId int64) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var session Session
	err := m.collection.FindOne(ctx, bson.M{"user_id": userId}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding session: %w", err)
	}
	if session.Fields == nil {
		session.Fields = make(map[Field]string)
	}
	return &session, nil
}

func (m *MongoStorage) Save(ctx context.Context, session *Session) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	stored := session.Clone()
	stored.UpdatedAt = time.Now()

	opts := options.Replace().SetUpsert(true)
	_, err := m.collection.ReplaceOne(ctx, bson.M{"user_id": session.UserId}, stored, opts)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (m *MongoStorage) Delete(ctx context.Context, userId int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := m.collection.DeleteOne(ctx, bson.M{"user_id": userId}); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (m *MongoStorage) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
