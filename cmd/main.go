package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"forum-bot-service/internal/api/handlers"
	"forum-bot-service/internal/client"
	"forum-bot-service/internal/client/forum"
	"forum-bot-service/internal/client/llm"
	"forum-bot-service/internal/config"
	"forum-bot-service/internal/database/minio"
	"forum-bot-service/internal/database/mongo"
	"forum-bot-service/internal/database/mysql"
	"forum-bot-service/internal/database/redis"
	"forum-bot-service/internal/events"
	"forum-bot-service/internal/middleware"
	"forum-bot-service/internal/repository"
	"forum-bot-service/internal/service"
	"forum-bot-service/internal/storage"
	"forum-bot-service/pkg/discovery"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupLogging sends the standard logger and the returned service logger to a dated file
func setupLogging(logDir string) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFileName := fmt.Sprintf("log_%s.log", time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(logDir, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	out := io.MultiWriter(os.Stdout, file)
	log.SetOutput(out)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	return log.New(out, "[forum-bot] ", log.Ldate|log.Ltime|log.Lshortfile), file, nil
}

// stores holds the persistence chosen by STORE_DRIVER
type stores struct {
	conversations repository.ConversationRepository
	quiz          repository.QuizRepository
	close         func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Store.Driver {
	case "mongo":
		client, db, err := mongo.Connect(ctx, &cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MongoDB: %w", err)
		}
		sequence := repository.NewSequence(db)
		return &stores{
			conversations: repository.NewConversationMongoRepository(db, sequence),
			quiz:          repository.NewQuizMongoRepository(db, sequence),
			close:         func() { mongo.Disconnect(client) },
		}, nil
	case "mysql":
		db, err := mysql.Open(ctx, &cfg.MySQL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MySQL: %w", err)
		}
		return &stores{
			conversations: repository.NewConversationSQLRepository(db),
			quiz:          repository.NewQuizSQLRepository(db),
			close:         func() { closeSQL(db) },
		}, nil
	default:
		log.Println("Warning: using in-memory stores, state is lost on restart")
		return &stores{
			conversations: repository.NewMemoryConversationRepository(),
			quiz:          repository.NewMemoryQuizRepository(),
			close:         func() {},
		}, nil
	}
}

func closeSQL(db *sql.DB) {
	if err := db.Close(); err != nil {
		log.Printf("Error closing MySQL: %v", err)
	}
}

func replyGuard(ctx context.Context, cfg *config.Config, logger *log.Logger) repository.ReplyGuard {
	if cfg.Redis.Address == "" {
		logger.Println("Redis not configured, reply claims are kept in memory")
		return repository.NewMemoryReplyGuard(cfg.Bot.ReplyClaimTTL)
	}
	rdb, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Printf("Warning: Failed to connect to Redis, reply claims are kept in memory: %v", err)
		return repository.NewMemoryReplyGuard(cfg.Bot.ReplyClaimTTL)
	}
	return repository.NewRedisReplyGuard(rdb, cfg.Bot.ReplyClaimTTL)
}

func imageMirror(ctx context.Context, cfg *config.Config, logger *log.Logger) service.ImageMirror {
	if cfg.MinIO.Endpoint == "" {
		logger.Println("MinIO not configured, images are passed to the model by their forum URL")
		return nil
	}
	mc, err := minio.NewClient(ctx, &cfg.MinIO)
	if err != nil {
		logger.Printf("Warning: Failed to initialize MinIO client: %v", err)
		return nil
	}
	httpClient := client.NewRetryClient(cfg.Forum.Timeout, cfg.Forum.RetryMax, cfg.Forum.RetryDelay, logger)
	return storage.NewImageMirror(mc, httpClient, cfg.MinIO.ImageBucket, cfg.MinIO.PresignExpiry, logger)
}

func main() {
	cfg := config.Load()

	logger, logFile, err := setupLogging(cfg.Log.Dir)
	if err != nil {
		log.Printf("Warning: Failed to set up logging: %v", err)
		logger = log.New(os.Stdout, "[forum-bot] ", log.Ldate|log.Ltime|log.Lshortfile)
	} else {
		defer logFile.Close()
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	st, err := openStores(initCtx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open stores: %v", err)
	}
	defer st.close()

	guard := replyGuard(initCtx, cfg, logger)
	images := imageMirror(initCtx, cfg, logger)

	forumClient := forum.NewClient(&cfg.Forum, cfg.Bot.UserID, logger)
	llmClient := llm.NewClient(&cfg.LLM, logger)

	publisher, err := events.NewEventPublisher(cfg.RabbitMQ.URI, cfg.RabbitMQ.ExchangeName, logger)
	if err != nil {
		logger.Printf("Warning: Failed to initialize event publisher: %v", err)
		publisher, _ = events.NewEventPublisher("", cfg.RabbitMQ.ExchangeName, logger)
	}
	defer publisher.Close()

	conversations := service.NewConversationService(st.conversations, cfg.Bot.InactivityTimeout, nil)
	quiz := service.NewQuizService(st.quiz, forumClient, llmClient, publisher, &cfg.Bot, logger, nil)
	mentions := service.NewMentionService(conversations, quiz, guard, forumClient, llmClient, images, publisher, &cfg.Bot, logger)

	eventConsumer, err := events.NewEventConsumer(
		cfg.RabbitMQ.URI,
		cfg.RabbitMQ.ExchangeName,
		cfg.RabbitMQ.QueueName,
		quiz,
		cfg.Server.HandlerTimeout,
		logger,
	)
	if err != nil {
		logger.Printf("Warning: Failed to initialize event consumer: %v", err)
	} else if err := eventConsumer.Start(); err != nil {
		logger.Printf("Warning: Failed to start event consumer: %v", err)
		eventConsumer.Close()
	} else {
		defer eventConsumer.Close()
	}

	if cfg.Consul.Address != "" {
		serviceRegistry, err := discovery.NewServiceRegistry(
			cfg.Consul.Address,
			cfg.Server.ServiceName,
			cfg.Server.ServiceID,
			cfg.Server.ServiceAddress,
			cfg.Server.Port,
			logger,
		)
		if err != nil {
			logger.Printf("Warning: Failed to initialize service discovery: %v", err)
		} else if err := serviceRegistry.Register(); err != nil {
			logger.Printf("Warning: Failed to register with Consul: %v", err)
		} else {
			defer serviceRegistry.Deregister()
		}
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
	app.Use(recover.New())

	app.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).SendString("Forum Bot Service is healthy")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.NewWebhookHandler(mentions, cfg.Server.HandlerTimeout, logger).RegisterRoutes(app)
	if cfg.Admin.JWTSecret != "" {
		handlers.NewAdminHandler(quiz, forumClient, middleware.NewJWTVerifier(cfg.Admin.JWTSecret), logger).RegisterRoutes(app)
	} else {
		logger.Println("ADMIN_JWT_SECRET not set, admin routes are disabled")
	}

	shutdownChan := make(chan os.Signal, 1)
	doneChan := make(chan bool, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("Starting server on port %s", cfg.Server.Port)
		if err := app.Listen(fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)); err != nil {
			logger.Printf("Error starting server: %v", err)
		}
		doneChan <- true
	}()

	select {
	case <-shutdownChan:
	case <-doneChan:
		logger.Println("Server stopped")
		return
	}
	logger.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Printf("Error shutting down HTTP server: %v", err)
	}

	<-doneChan
	logger.Println("Server exited, goodbye!")
}
