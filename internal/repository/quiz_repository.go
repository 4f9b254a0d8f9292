package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"forum-bot-service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const maxHintOrderAttempts = 5

// QuizMongoRepository keeps hints embedded in their question document
type QuizMongoRepository struct {
	questions *mongo.Collection
	scores    *mongo.Collection
	answers   *mongo.Collection
	sequence  *Sequence
}

// NewQuizMongoRepository creates a new QuizMongoRepository
func NewQuizMongoRepository(db *mongo.Database, sequence *Sequence) *QuizMongoRepository {
	return &QuizMongoRepository{
		questions: db.Collection("quiz_questions"),
		scores:    db.Collection("quiz_scores"),
		answers:   db.Collection("quiz_answer_queue"),
		sequence:  sequence,
	}
}

// CreateIndexes ensures the lookup and uniqueness indexes of the quiz collections
func (r *QuizMongoRepository) CreateIndexes(ctx context.Context) error {
	_, err := r.questions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "topic_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create quiz question indexes: %w", err)
	}

	_, err = r.scores.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "score", Value: -1},
				{Key: "_id", Value: 1},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create quiz score indexes: %w", err)
	}

	_, err = r.answers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "question_id", Value: 1},
				{Key: "processed", Value: 1},
				{Key: "timestamp", Value: 1},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create quiz answer queue indexes: %w", err)
	}
	return nil
}

// CreateGame writes the question with its hints in a single insert
func (r *QuizMongoRepository) CreateGame(ctx context.Context, q *models.QuizQuestion, hints []string) (int64, error) {
	id, err := r.sequence.Next(ctx, sequenceQuestion)
	if err != nil {
		return 0, err
	}

	stored := *q
	stored.ID = id
	stored.CreatedAt = stored.CreatedAt.UTC()
	stored.Hints = buildHints(hints)

	if _, err := r.questions.InsertOne(ctx, &stored); err != nil {
		return 0, fmt.Errorf("failed to insert quiz question: %w", err)
	}
	return id, nil
}

// CurrentQuestion returns the newest question of a topic with its hints
func (r *QuizMongoRepository) CurrentQuestion(ctx context.Context, topicID string) (*models.QuizQuestion, error) {
	opts := options.FindOne().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})

	var question models.QuizQuestion
	err := r.questions.FindOne(ctx, bson.M{"topic_id": topicID}, opts).Decode(&question)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get current question: %w", err)
	}
	return &question, nil
}

// AddHint claims the next order with a conditional push and retries when another writer took it
func (r *QuizMongoRepository) AddHint(ctx context.Context, questionID int64, text string) (int, error) {
	for attempt := 0; attempt < maxHintOrderAttempts; attempt++ {
		var question models.QuizQuestion
		opts := options.FindOne().SetProjection(bson.M{"hints": 1})
		if err := r.questions.FindOne(ctx, bson.M{"_id": questionID}, opts).Decode(&question); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return 0, fmt.Errorf("question %d: %w", questionID, models.ErrNotFound)
			}
			return 0, fmt.Errorf("failed to load hints: %w", err)
		}

		order := 1
		for _, h := range question.Hints {
			if h.HintOrder >= order {
				order = h.HintOrder + 1
			}
		}

		filter := bson.M{"_id": questionID, "hints.hint_order": bson.M{"$ne": order}}
		update := bson.M{"$push": bson.M{"hints": models.QuizHint{HintOrder: order, HintText: text}}}
		result, err := r.questions.UpdateOne(ctx, filter, update)
		if err != nil {
			return 0, fmt.Errorf("failed to add hint: %w", err)
		}
		if result.MatchedCount == 1 {
			return order, nil
		}
	}
	return 0, fmt.Errorf("failed to add hint to question %d: order contention", questionID)
}

// MarkHintServed flags a pre-generated hint as posted
func (r *QuizMongoRepository) MarkHintServed(ctx context.Context, questionID int64, order int) error {
	result, err := r.questions.UpdateOne(ctx, bson.M{"_id": questionID}, bson.M{"$max": bson.M{"last_hint_served": order}})
	if err != nil {
		return fmt.Errorf("failed to mark hint served: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("question %d: %w", questionID, models.ErrNotFound)
	}
	return nil
}

// MarkSolved records the winner of a question
func (r *QuizMongoRepository) MarkSolved(ctx context.Context, questionID int64, userName string, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"solved":    true,
		"solved_by": userName,
		"solved_at": at.UTC(),
	}}
	result, err := r.questions.UpdateOne(ctx, bson.M{"_id": questionID}, update)
	if err != nil {
		return fmt.Errorf("failed to mark question solved: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("question %d: %w", questionID, models.ErrNotFound)
	}
	return nil
}

// UpdateScore adds delta to a user's score, creating the entry if needed
func (r *QuizMongoRepository) UpdateScore(ctx context.Context, userName string, delta int) error {
	update := bson.M{
		"$inc": bson.M{"score": delta},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.UpdateOne().SetUpsert(true)

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		_, err = r.scores.UpdateOne(ctx, bson.M{"_id": userName}, update, opts)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	return fmt.Errorf("failed to update score for %s: %w", userName, err)
}

// Leaderboard returns all scores, highest first
func (r *QuizMongoRepository) Leaderboard(ctx context.Context) ([]models.QuizScore, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "score", Value: -1},
		{Key: "_id", Value: 1},
	})

	cursor, err := r.scores.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer cursor.Close(ctx)

	var scores []models.QuizScore
	if err := cursor.All(ctx, &scores); err != nil {
		return nil, fmt.Errorf("failed to decode leaderboard: %w", err)
	}
	return scores, nil
}

// EnqueueAnswer stores an answer for batch evaluation
func (r *QuizMongoRepository) EnqueueAnswer(ctx context.Context, answer *models.PendingAnswer) (int64, error) {
	id, err := r.sequence.Next(ctx, sequenceAnswer)
	if err != nil {
		return 0, err
	}

	stored := *answer
	stored.ID = id
	stored.Timestamp = stored.Timestamp.UTC()
	stored.Processed = false
	if _, err := r.answers.InsertOne(ctx, &stored); err != nil {
		return 0, fmt.Errorf("failed to enqueue answer: %w", err)
	}
	return id, nil
}

// ListUnprocessed returns the pending answers of a question in arrival order
func (r *QuizMongoRepository) ListUnprocessed(ctx context.Context, questionID int64) ([]models.PendingAnswer, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "timestamp", Value: 1},
		{Key: "_id", Value: 1},
	})

	cursor, err := r.answers.Find(ctx, bson.M{"question_id": questionID, "processed": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending answers: %w", err)
	}
	defer cursor.Close(ctx)

	var pending []models.PendingAnswer
	if err := cursor.All(ctx, &pending); err != nil {
		return nil, fmt.Errorf("failed to decode pending answers: %w", err)
	}
	return pending, nil
}

// MarkProcessed flags answers as evaluated
func (r *QuizMongoRepository) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.answers.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, bson.M{"$set": bson.M{"processed": true}})
	if err != nil {
		return fmt.Errorf("failed to mark answers processed: %w", err)
	}
	return nil
}
