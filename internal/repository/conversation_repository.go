package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"forum-bot-service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ConversationMongoRepository stores each conversation as one document with its messages embedded,
// so appending a message and bumping activity is a single-document update.
type ConversationMongoRepository struct {
	collection *mongo.Collection
	sequence   *Sequence
}

// NewConversationMongoRepository creates a new ConversationMongoRepository
func NewConversationMongoRepository(db *mongo.Database, sequence *Sequence) *ConversationMongoRepository {
	return &ConversationMongoRepository{
		collection: db.Collection("conversations"),
		sequence:   sequence,
	}
}

// CreateIndexes creates the indexes used by session lookup and dedup
func (r *ConversationMongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "topic_id", Value: 1},
				{Key: "username", Value: 1},
				{Key: "is_active", Value: 1},
				{Key: "last_activity", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "topic_id", Value: 1},
				{Key: "messages.content", Value: 1},
			},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}
	return nil
}

// FindActive returns the active conversation of a user in a topic touched after since
func (r *ConversationMongoRepository) FindActive(ctx context.Context, topicID, username string, since time.Time) (*models.Conversation, error) {
	filter := bson.M{
		"topic_id":      topicID,
		"username":      username,
		"is_active":     true,
		"last_activity": bson.M{"$gte": since.UTC()},
	}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "last_activity", Value: -1}}).
		SetProjection(bson.M{"messages": 0})

	var conversation models.Conversation
	err := r.collection.FindOne(ctx, filter, opts).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active conversation: %w", err)
	}
	return &conversation, nil
}

// Create inserts a new active conversation and returns its id
func (r *ConversationMongoRepository) Create(ctx context.Context, topicID, username string, now time.Time) (string, error) {
	next, err := r.sequence.Next(ctx, sequenceConversation)
	if err != nil {
		return "", err
	}

	conversation := &models.Conversation{
		ID:           strconv.FormatInt(next, 10),
		TopicID:      topicID,
		Username:     username,
		LastActivity: now.UTC(),
		IsActive:     true,
	}
	if _, err := r.collection.InsertOne(ctx, conversation); err != nil {
		return "", fmt.Errorf("failed to insert conversation: %w", err)
	}
	return conversation.ID, nil
}

// AppendMessage stores msg and raises the conversation's last activity with $max
func (r *ConversationMongoRepository) AppendMessage(ctx context.Context, msg models.Message) error {
	msg.Timestamp = msg.Timestamp.UTC()
	update := bson.M{
		"$push": bson.M{"messages": msg},
		"$max":  bson.M{"last_activity": msg.Timestamp},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": msg.ConversationID}, update)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, models.ErrNotFound)
	}
	return nil
}

// History returns the messages of a conversation oldest first
func (r *ConversationMongoRepository) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	opts := options.FindOne().SetProjection(bson.M{"messages": 1})

	var conversation models.Conversation
	err := r.collection.FindOne(ctx, bson.M{"_id": conversationID}, opts).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	// Array order is insertion order
	history := conversation.Messages
	for i := range history {
		history[i].Seq = int64(i)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	return history, nil
}

// ExpireIfStale deactivates the conversation when its last activity is before cutoff
func (r *ConversationMongoRepository) ExpireIfStale(ctx context.Context, conversationID string, cutoff time.Time) (bool, error) {
	filter := bson.M{
		"_id":           conversationID,
		"last_activity": bson.M{"$lt": cutoff.UTC()},
	}
	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"is_active": false}})
	if err != nil {
		return false, fmt.Errorf("failed to expire conversation: %w", err)
	}
	return result.MatchedCount > 0, nil
}

// MarkInactive deactivates a conversation
func (r *ConversationMongoRepository) MarkInactive(ctx context.Context, conversationID string) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": conversationID}, bson.M{"$set": bson.M{"is_active": false}})
	if err != nil {
		return fmt.Errorf("failed to mark conversation inactive: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
	}
	return nil
}

// HasUserMessage reports whether content was already recorded as a user message in topicID
func (r *ConversationMongoRepository) HasUserMessage(ctx context.Context, topicID, content string) (bool, error) {
	filter := bson.M{
		"topic_id": topicID,
		"messages": bson.M{"$elemMatch": bson.M{
			"author":  models.AuthorUser,
			"content": content,
		}},
	}
	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check answered mentions: %w", err)
	}
	return count > 0, nil
}
