package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoStorage(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get existing session", func(mt *mtest.T) {
		store := newMongoCollectionStorage(mt.Coll, testLogger())
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "user_id", Value: int64(42)},
			{Key: "mode", Value: int32(ModeTypingReply)},
			{Key: "fields", Value: bson.D{{Key: "Topic", Value: "Climate change"}}},
			{Key: "pending", Value: "Answer"},
		}))

		s, err := store.Get(context.Background(), 42)
		require.NoError(mt, err)
		require.NotNil(mt, s)
		require.Equal(mt, int64(42), s.UserId)
		require.Equal(mt, ModeTypingReply, s.Mode)
		require.Equal(mt, FieldAnswer, s.Pending)
		require.Equal(mt, "Climate change", s.Fields[FieldTopic])
	})

	mt.Run("get missing session", func(mt *mtest.T) {
		store := newMongoCollectionStorage(mt.Coll, testLogger())
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		s, err := store.Get(context.Background(), 42)
		require.NoError(mt, err)
		require.Nil(mt, s)
	})

	mt.Run("save and delete", func(mt *mtest.T) {
		store := newMongoCollectionStorage(mt.Coll, testLogger())

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		s := NewSession(42)
		s.Fields[FieldTopic] = "Climate change"
		require.NoError(mt, store.Save(context.Background(), s))

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		require.NoError(mt, store.Delete(context.Background(), 42))
	})

	mt.Run("server error", func(mt *mtest.T) {
		store := newMongoCollectionStorage(mt.Coll, testLogger())

		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad value",
		}))
		_, err := store.Get(context.Background(), 42)
		require.Error(mt, err)
		require.Contains(mt, err.Error(), "finding session")
	})
}
