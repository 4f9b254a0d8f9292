package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher defines the interface for event publishing
type Publisher interface {
	PublishReplyPosted(ctx context.Context, topicID, conversationID, username string, imageQuery bool) error
	PublishQuizStarted(ctx context.Context, topicID string, questionID int64, category string) error
	PublishHintPosted(ctx context.Context, topicID string, questionID int64, hintOrder int) error
	PublishAnswerCorrect(ctx context.Context, topicID string, questionID int64, userName string) error

	// Close closes the publisher connection
	Close() error
}

// EventPublisher implements the Publisher interface using RabbitMQ
type EventPublisher struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	enabled      bool
	logger       *log.Logger
	// amqp channels are not safe for concurrent publishing
	mu sync.Mutex
}

// NewEventPublisher creates a new event publisher. An empty URI yields a disabled publisher.
func NewEventPublisher(rabbitURI, exchangeName string, logger *log.Logger) (*EventPublisher, error) {
	if rabbitURI == "" {
		logger.Println("Warning: RabbitMQ URI is empty, event publishing is disabled")
		return &EventPublisher{
			enabled: false,
			logger:  logger,
		}, nil
	}

	conn, err := amqp091.Dial(rabbitURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &EventPublisher{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		enabled:      true,
		logger:       logger,
	}, nil
}

func (p *EventPublisher) publishEvent(ctx context.Context, routingKey string, event any) error {
	if !p.enabled {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(
		pubCtx,
		p.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Printf("Published event: %s", routingKey)
	return nil
}

// PublishReplyPosted publishes a reply.posted event
func (p *EventPublisher) PublishReplyPosted(ctx context.Context, topicID, conversationID, username string, imageQuery bool) error {
	event := NewReplyPostedEvent(topicID, conversationID, username, imageQuery)
	return p.publishEvent(ctx, string(EventTypeReplyPosted), event)
}

// PublishQuizStarted publishes a quiz.started event
func (p *EventPublisher) PublishQuizStarted(ctx context.Context, topicID string, questionID int64, category string) error {
	event := NewQuizStartedEvent(topicID, questionID, category)
	return p.publishEvent(ctx, string(EventTypeQuizStarted), event)
}

// PublishHintPosted publishes a quiz.hint_posted event
func (p *EventPublisher) PublishHintPosted(ctx context.Context, topicID string, questionID int64, hintOrder int) error {
	event := NewHintPostedEvent(topicID, questionID, hintOrder)
	return p.publishEvent(ctx, string(EventTypeHintPosted), event)
}

// PublishAnswerCorrect publishes a quiz.answer_correct event
func (p *EventPublisher) PublishAnswerCorrect(ctx context.Context, topicID string, questionID int64, userName string) error {
	event := NewAnswerCorrectEvent(topicID, questionID, userName)
	return p.publishEvent(ctx, string(EventTypeAnswerCorrect), event)
}

// Close closes the connection to RabbitMQ
func (p *EventPublisher) Close() error {
	if !p.enabled {
		return nil
	}

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Printf("Error closing RabbitMQ channel: %v", err)
		}
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}

	return nil
}

// MockPublisher records published events
type MockPublisher struct {
	mu     sync.Mutex
	Events []any
}

// NewMockPublisher creates a new MockPublisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Events: make([]any, 0),
	}
}

func (m *MockPublisher) record(event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockPublisher) PublishReplyPosted(ctx context.Context, topicID, conversationID, username string, imageQuery bool) error {
	return m.record(NewReplyPostedEvent(topicID, conversationID, username, imageQuery))
}

func (m *MockPublisher) PublishQuizStarted(ctx context.Context, topicID string, questionID int64, category string) error {
	return m.record(NewQuizStartedEvent(topicID, questionID, category))
}

func (m *MockPublisher) PublishHintPosted(ctx context.Context, topicID string, questionID int64, hintOrder int) error {
	return m.record(NewHintPostedEvent(topicID, questionID, hintOrder))
}

func (m *MockPublisher) PublishAnswerCorrect(ctx context.Context, topicID string, questionID int64, userName string) error {
	return m.record(NewAnswerCorrectEvent(topicID, questionID, userName))
}

func (m *MockPublisher) Close() error {
	return nil
}

// GetEvents returns the recorded event types in publish order
func (m *MockPublisher) GetEvents() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()

	types := make([]EventType, 0, len(m.Events))
	for _, e := range m.Events {
		switch ev := e.(type) {
		case *ReplyEvent:
			types = append(types, ev.Type)
		case *QuizEvent:
			types = append(types, ev.Type)
		}
	}
	return types
}

func (m *MockPublisher) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = make([]any, 0)
}
