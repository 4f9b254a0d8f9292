package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	sequenceConversation = "conversation_id"
	sequenceQuestion     = "quiz_question_id"
	sequenceAnswer       = "quiz_answer_id"
)

// Sequence hands out monotonically increasing ids from a counters collection
type Sequence struct {
	collection *mongo.Collection
}

// NewSequence creates a new Sequence backed by the counters collection
func NewSequence(db *mongo.Database) *Sequence {
	return &Sequence{
		collection: db.Collection("counters"),
	}
}

// Next atomically increments and returns the named counter, starting at 1
func (s *Sequence) Next(ctx context.Context, name string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Value int64 `bson:"value"`
	}

	// Two first-time upserts can race on the same _id; the loser retries as a plain update
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.collection.FindOneAndUpdate(
			ctx,
			bson.M{"_id": name},
			bson.M{"$inc": bson.M{"value": int64(1)}},
			opts,
		).Decode(&counter)
		if err == nil {
			return counter.Value, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
}
