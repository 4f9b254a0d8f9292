package models

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

type Author string

const (
	AuthorUser Author = "user"
	AuthorAI   Author = "ai"
)

// Conversation is a bounded-lifetime exchange between one user and the bot in one topic
type Conversation struct {
	ID           string    `bson:"_id" json:"id"`
	TopicID      string    `bson:"topic_id" json:"topicId"`
	Username     string    `bson:"username" json:"username"`
	LastActivity time.Time `bson:"last_activity" json:"lastActivity"`
	IsActive     bool      `bson:"is_active" json:"isActive"`
	Messages     []Message `bson:"messages,omitempty" json:"messages,omitempty"`
}

type Message struct {
	ConversationID string    `bson:"conversation_id" json:"conversationId"`
	TopicID        string    `bson:"topic_id" json:"topicId"`
	Author         Author    `bson:"author" json:"author"`
	Timestamp      time.Time `bson:"timestamp" json:"timestamp"`
	Content        string    `bson:"content" json:"content"`
	Username       string    `bson:"username" json:"username"`
	// Seq orders messages with equal timestamps by insertion
	Seq int64 `bson:"seq" json:"-"`
}
