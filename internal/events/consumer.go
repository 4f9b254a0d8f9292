package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// QuizStarter opens a new quiz topic
type QuizStarter interface {
	StartQuiz(ctx context.Context, title, category string) (string, error)
}

// Consumer defines the interface for event consumption
type Consumer interface {
	// Start starts the consumer
	Start() error

	// Close closes the consumer
	Close() error
}

// EventConsumer implements the Consumer interface using RabbitMQ
type EventConsumer struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	queueName    string
	exchangeName string
	starter      QuizStarter
	timeout      time.Duration
	logger       *log.Logger
	shutdown     chan struct{}
	wg           sync.WaitGroup
	enabled      bool
}

// NewEventConsumer creates a new event consumer. An empty URI yields a disabled consumer.
func NewEventConsumer(rabbitURI, exchangeName, queueName string, starter QuizStarter, timeout time.Duration, logger *log.Logger) (*EventConsumer, error) {
	consumer := &EventConsumer{
		queueName:    queueName,
		exchangeName: exchangeName,
		starter:      starter,
		timeout:      timeout,
		logger:       logger,
		shutdown:     make(chan struct{}),
	}
	if rabbitURI == "" {
		logger.Println("Warning: RabbitMQ URI is empty, event consumption is disabled")
		return consumer, nil
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

	// Quiz generation is slow, take one command at a time
	if err := channel.Qos(1, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
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

	_, err = channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	consumer.conn = conn
	consumer.channel = channel
	consumer.enabled = true
	return consumer, nil
}

// Start starts consuming events
func (c *EventConsumer) Start() error {
	if !c.enabled {
		c.logger.Println("Event consumption is disabled, not starting consumer")
		return nil
	}

	err := c.channel.QueueBind(
		c.queueName,                         // queue name
		string(EventTypeQuizStartRequested), // routing key
		c.exchangeName,                      // exchange
		false,                               // no-wait
		nil,                                 // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue to exchange: %w", err)
	}

	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(msgs)
	}()

	c.logger.Println("Event consumer started")
	return nil
}

func (c *EventConsumer) consume(msgs <-chan amqp091.Delivery) {
	for {
		select {
		case <-c.shutdown:
			c.logger.Println("Stopping event consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Println("Message channel closed, stopping consumer")
				return
			}

			err := c.processMessage(msg.RoutingKey, msg.Body)
			if err == nil {
				if err := msg.Ack(false); err != nil {
					c.logger.Printf("Error ACKing message: %v", err)
				}
				continue
			}

			requeue := shouldRequeue(err, msg.Redelivered)
			c.logger.Printf("Error processing message (requeue=%v): %v", requeue, err)
			if err := msg.Nack(false, requeue); err != nil {
				c.logger.Printf("Error NACKing message: %v", err)
			}
		}
	}
}

// shouldRequeue retries a failed command once. Malformed commands and commands
// whose quiz topic already exists on the forum are never retried.
func shouldRequeue(err error, redelivered bool) bool {
	if errors.Is(err, errBadCommand) || errors.Is(err, errTopicCreated) {
		return false
	}
	return !redelivered
}

var (
	errBadCommand   = errors.New("malformed command")
	errTopicCreated = errors.New("quiz topic already created")
)

func (c *EventConsumer) processMessage(routingKey string, body []byte) error {
	c.logger.Printf("Processing message with routing key: %s", routingKey)

	switch routingKey {
	case string(EventTypeQuizStartRequested):
		return c.handleQuizStartRequested(body)
	default:
		c.logger.Printf("Unknown routing key: %s", routingKey)
		return nil
	}
}

func (c *EventConsumer) handleQuizStartRequested(body []byte) error {
	var request QuizStartRequest
	if err := json.Unmarshal(body, &request); err != nil {
		return fmt.Errorf("%w: %v", errBadCommand, err)
	}
	if strings.TrimSpace(request.Title) == "" {
		return fmt.Errorf("%w: empty quiz title", errBadCommand)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	topicID, err := c.starter.StartQuiz(ctx, request.Title, request.Category)
	if err != nil && topicID != "" {
		return fmt.Errorf("%w: topic %s: %v", errTopicCreated, topicID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to start quiz: %w", err)
	}

	c.logger.Printf("Quiz started from command %s in topic %s", request.ID, topicID)
	return nil
}

// Close closes the consumer
func (c *EventConsumer) Close() error {
	if !c.enabled {
		return nil
	}

	close(c.shutdown)
	c.wg.Wait()

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Printf("Error closing RabbitMQ channel: %v", err)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}

	return nil
}
