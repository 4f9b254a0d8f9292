package repository

import (
	"context"
	"time"

	"forum-bot-service/internal/models"
)

// ConversationRepository persists conversations and their message history.
// Implementations must be safe for concurrent use.
type ConversationRepository interface {
	// FindActive returns the most recent active conversation for the pair whose
	// last activity is at or after since. Returns models.ErrNotFound otherwise.
	FindActive(ctx context.Context, topicID, username string, since time.Time) (*models.Conversation, error)
	// Create allocates the next id from an atomic sequence and stores an active conversation
	Create(ctx context.Context, topicID, username string, now time.Time) (string, error)
	// AppendMessage stores the message and bumps last activity to its timestamp as one unit
	AppendMessage(ctx context.Context, msg models.Message) error
	History(ctx context.Context, conversationID string) ([]models.Message, error)
	// ExpireIfStale deactivates the conversation when its last activity is before cutoff.
	// Reports whether the conversation was stale.
	ExpireIfStale(ctx context.Context, conversationID string, cutoff time.Time) (bool, error)
	MarkInactive(ctx context.Context, conversationID string) error
	// HasUserMessage reports whether content was already recorded as a user message in the topic
	HasUserMessage(ctx context.Context, topicID, content string) (bool, error)
}

// QuizRepository persists quiz questions, hints, scores and the pending-answer queue.
// Implementations must be safe for concurrent use.
type QuizRepository interface {
	// CreateGame stores the question and its non-empty hints at 1-based order atomically
	CreateGame(ctx context.Context, q *models.QuizQuestion, hints []string) (int64, error)
	// CurrentQuestion returns the latest question created for the topic, or models.ErrNotFound
	CurrentQuestion(ctx context.Context, topicID string) (*models.QuizQuestion, error)
	// AddHint appends a hint at the next order and returns that order
	AddHint(ctx context.Context, questionID int64, text string) (int, error)
	MarkHintServed(ctx context.Context, questionID int64, order int) error
	MarkSolved(ctx context.Context, questionID int64, userName string, at time.Time) error

	// UpdateScore creates the user at delta points or adds delta to the existing score
	UpdateScore(ctx context.Context, userName string, delta int) error
	// Leaderboard orders by score descending, ties by user name
	Leaderboard(ctx context.Context) ([]models.QuizScore, error)

	EnqueueAnswer(ctx context.Context, answer *models.PendingAnswer) (int64, error)
	// ListUnprocessed returns queued answers for the question, oldest first
	ListUnprocessed(ctx context.Context, questionID int64) ([]models.PendingAnswer, error)
	MarkProcessed(ctx context.Context, ids []int64) error
}
