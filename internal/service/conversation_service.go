package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"forum-bot-service/internal/models"
	"forum-bot-service/internal/repository"
)

// DefaultInactivityTimeout is how long a conversation stays active without messages
const DefaultInactivityTimeout = 15 * time.Minute

// ConversationService applies the inactivity rules on top of a conversation repository
type ConversationService struct {
	Repo    repository.ConversationRepository
	timeout time.Duration
	now     func() time.Time
}

// NewConversationService creates a new ConversationService. A nil now uses time.Now.
func NewConversationService(repo repository.ConversationRepository, timeout time.Duration, now func() time.Time) *ConversationService {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &ConversationService{
		Repo:    repo,
		timeout: timeout,
		now:     now,
	}
}

// ActiveConversation returns the id of the pair's active conversation.
// A conversation idle for exactly the timeout still counts as active.
func (s *ConversationService) ActiveConversation(ctx context.Context, topicID, username string) (string, bool, error) {
	since := s.now().UTC().Add(-s.timeout)
	c, err := s.Repo.FindActive(ctx, topicID, username, since)
	if errors.Is(err, models.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up conversation: %w", err)
	}
	return c.ID, true, nil
}

// CreateConversation opens a new conversation for a user in a topic
func (s *ConversationService) CreateConversation(ctx context.Context, topicID, username string) (string, error) {
	id, err := s.Repo.Create(ctx, topicID, username, s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return id, nil
}

// AppendMessage records a message stamped with the current time
func (s *ConversationService) AppendMessage(ctx context.Context, conversationID string, author models.Author, content, username string) error {
	msg := models.Message{
		ConversationID: conversationID,
		Author:         author,
		Timestamp:      s.now().UTC(),
		Content:        content,
		Username:       username,
	}
	if err := s.Repo.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// History returns the messages of a conversation oldest first
func (s *ConversationService) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	history, err := s.Repo.History(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return history, nil
}

// CheckAndExpire deactivates the conversation once it has been idle longer than the timeout
func (s *ConversationService) CheckAndExpire(ctx context.Context, conversationID string) (bool, error) {
	cutoff := s.now().UTC().Add(-s.timeout)
	expired, err := s.Repo.ExpireIfStale(ctx, conversationID, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to check expiry: %w", err)
	}
	return expired, nil
}

// MarkInactive closes a conversation
func (s *ConversationService) MarkInactive(ctx context.Context, conversationID string) error {
	if err := s.Repo.MarkInactive(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to mark conversation inactive: %w", err)
	}
	return nil
}

// HasUserMessage reports whether a post was already handled
func (s *ConversationService) HasUserMessage(ctx context.Context, topicID, content string) (bool, error) {
	return s.Repo.HasUserMessage(ctx, topicID, content)
}
