// Command startquiz opens a new quiz topic as the bot and posts its first question.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"forum-bot-service/internal/client/forum"
	"forum-bot-service/internal/client/llm"
	"forum-bot-service/internal/config"
	"forum-bot-service/internal/database/mongo"
	"forum-bot-service/internal/database/mysql"
	"forum-bot-service/internal/events"
	"forum-bot-service/internal/repository"
	"forum-bot-service/internal/service"
)

func quizRepository(ctx context.Context, cfg *config.Config, logger *log.Logger) (repository.QuizRepository, func()) {
	switch cfg.Store.Driver {
	case "mongo":
		client, db, err := mongo.Connect(ctx, &cfg.MongoDB)
		if err != nil {
			logger.Fatalf("Failed to initialize MongoDB: %v", err)
		}
		return repository.NewQuizMongoRepository(db, repository.NewSequence(db)), func() { mongo.Disconnect(client) }
	case "mysql":
		db, err := mysql.Open(ctx, &cfg.MySQL)
		if err != nil {
			logger.Fatalf("Failed to initialize MySQL: %v", err)
		}
		return repository.NewQuizSQLRepository(db), func() { db.Close() }
	default:
		logger.Fatalf("STORE_DRIVER %q keeps no state between processes, the running bot would not see this game", cfg.Store.Driver)
		return nil, nil
	}
}

func main() {
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	cfg := config.Load()
	logger := log.New(os.Stdout, "[startquiz] ", log.Ldate|log.Ltime)

	title := flag.String("title", cfg.Bot.QuizTopicTitle, "title of the new quiz topic")
	category := flag.String("category", cfg.Bot.DefaultCategory, "question category")
	timeout := flag.Duration("timeout", 3*time.Minute, "overall deadline")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	repo, closeRepo := quizRepository(ctx, cfg, logger)
	defer closeRepo()

	publisher, err := events.NewEventPublisher(cfg.RabbitMQ.URI, cfg.RabbitMQ.ExchangeName, logger)
	if err != nil {
		logger.Printf("Warning: Failed to initialize event publisher: %v", err)
		publisher, _ = events.NewEventPublisher("", cfg.RabbitMQ.ExchangeName, logger)
	}
	defer publisher.Close()

	quiz := service.NewQuizService(
		repo,
		forum.NewClient(&cfg.Forum, cfg.Bot.UserID, logger),
		llm.NewClient(&cfg.LLM, logger),
		publisher,
		&cfg.Bot,
		logger,
		nil,
	)

	topicID, err := quiz.StartQuiz(ctx, *title, *category)
	if err != nil {
		if topicID != "" {
			logger.Printf("Topic %s was created but the game could not be started", topicID)
		}
		logger.Printf("Failed to start quiz: %v", err)
		exitCode = 1
		return
	}
	logger.Printf("Quiz started in topic %s", topicID)
}
