package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeReplyPosted   EventType = "bot.reply.posted"
	EventTypeQuizStarted   EventType = "quiz.game.started"
	EventTypeHintPosted    EventType = "quiz.hint.posted"
	EventTypeAnswerCorrect EventType = "quiz.answer.correct"

	// Inbound command
	EventTypeQuizStartRequested EventType = "quiz.start.requested"
)

// BaseEvent represents the common fields for all events
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Version   string    `json:"version"`
}

type ReplyEvent struct {
	BaseEvent
	TopicID        string `json:"topicId"`
	ConversationID string `json:"conversationId"`
	Username       string `json:"username"`
	ImageQuery     bool   `json:"imageQuery,omitempty"`
}

type QuizEvent struct {
	BaseEvent
	TopicID    string `json:"topicId"`
	QuestionID int64  `json:"questionId"`
	Category   string `json:"category,omitempty"`
	UserName   string `json:"userName,omitempty"`
	HintOrder  int    `json:"hintOrder,omitempty"`
}

// QuizStartRequest asks the bot to open a new quiz topic
type QuizStartRequest struct {
	BaseEvent
	Title    string `json:"title"`
	Category string `json:"category"`
}

func newBaseEvent(t EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().Unix(),
		Version:   "1.0",
	}
}

// NewReplyPostedEvent creates a new reply posted event
func NewReplyPostedEvent(topicID, conversationID, username string, imageQuery bool) *ReplyEvent {
	return &ReplyEvent{
		BaseEvent:      newBaseEvent(EventTypeReplyPosted),
		TopicID:        topicID,
		ConversationID: conversationID,
		Username:       username,
		ImageQuery:     imageQuery,
	}
}

// NewQuizStartedEvent creates a new quiz started event
func NewQuizStartedEvent(topicID string, questionID int64, category string) *QuizEvent {
	return &QuizEvent{
		BaseEvent:  newBaseEvent(EventTypeQuizStarted),
		TopicID:    topicID,
		QuestionID: questionID,
		Category:   category,
	}
}

// NewHintPostedEvent creates a new hint posted event
func NewHintPostedEvent(topicID string, questionID int64, hintOrder int) *QuizEvent {
	return &QuizEvent{
		BaseEvent:  newBaseEvent(EventTypeHintPosted),
		TopicID:    topicID,
		QuestionID: questionID,
		HintOrder:  hintOrder,
	}
}

// NewAnswerCorrectEvent creates a new answer correct event
func NewAnswerCorrectEvent(topicID string, questionID int64, userName string) *QuizEvent {
	return &QuizEvent{
		BaseEvent:  newBaseEvent(EventTypeAnswerCorrect),
		TopicID:    topicID,
		QuestionID: questionID,
		UserName:   userName,
	}
}
