package service

import (
	"context"
	"fmt"
	"time"

	"forum-bot-service/internal/models"
	"forum-bot-service/internal/repository"
)

const (
	flushAge   = time.Minute
	flushCount = 3
)

// AnswerQueue holds wrong guesses for a question until they are folded into a hint
type AnswerQueue struct {
	Repo repository.QuizRepository
	now  func() time.Time
}

// NewAnswerQueue creates a new AnswerQueue
func NewAnswerQueue(repo repository.QuizRepository, now func() time.Time) *AnswerQueue {
	if now == nil {
		now = time.Now
	}
	return &AnswerQueue{Repo: repo, now: now}
}

// Enqueue stores an answer stamped with the current time
func (q *AnswerQueue) Enqueue(ctx context.Context, questionID int64, userName, answer string) (int64, error) {
	id, err := q.Repo.EnqueueAnswer(ctx, &models.PendingAnswer{
		QuestionID: questionID,
		UserName:   userName,
		Answer:     answer,
		Timestamp:  q.now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue answer: %w", err)
	}
	return id, nil
}

// ListUnprocessed returns the answers waiting for evaluation
func (q *AnswerQueue) ListUnprocessed(ctx context.Context, questionID int64) ([]models.PendingAnswer, error) {
	pending, err := q.Repo.ListUnprocessed(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending answers: %w", err)
	}
	return pending, nil
}

// MarkProcessed flags answers as evaluated
func (q *AnswerQueue) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := q.Repo.MarkProcessed(ctx, ids); err != nil {
		return fmt.Errorf("failed to mark answers processed: %w", err)
	}
	return nil
}

// ShouldFlush is true once the oldest unprocessed answer is a minute old or three are waiting
func (q *AnswerQueue) ShouldFlush(ctx context.Context, questionID int64) (bool, error) {
	pending, err := q.ListUnprocessed(ctx, questionID)
	if err != nil {
		return false, err
	}
	return shouldFlush(pending, q.now()), nil
}

func shouldFlush(pending []models.PendingAnswer, now time.Time) bool {
	if len(pending) == 0 {
		return false
	}
	if len(pending) >= flushCount {
		return true
	}
	return now.Sub(pending[0].Timestamp) >= flushAge
}

// Close marks every open answer for the question processed
func (q *AnswerQueue) Close(ctx context.Context, questionID int64) error {
	pending, err := q.ListUnprocessed(ctx, questionID)
	if err != nil {
		return err
	}
	return q.MarkProcessed(ctx, answerIDs(pending))
}

func answerIDs(pending []models.PendingAnswer) []int64 {
	ids := make([]int64, 0, len(pending))
	for _, a := range pending {
		ids = append(ids, a.ID)
	}
	return ids
}
