package handlers

import (
	"context"
	"log"

	"forum-bot-service/internal/client/forum"
	"forum-bot-service/internal/middleware"
	"forum-bot-service/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type QuizAdmin interface {
	StartQuiz(ctx context.Context, title, category string) (string, error)
	Leaderboard(ctx context.Context) ([]models.QuizScore, error)
}

type NotificationSource interface {
	FetchNotifications(ctx context.Context) (*forum.NotificationPage, error)
}

type StartQuizRequest struct {
	Title    string `json:"title" validate:"max=255"`
	Category string `json:"category" validate:"max=100"`
}

type AdminHandler struct {
	quiz          QuizAdmin
	notifications NotificationSource
	verifier      *middleware.JWTVerifier
	validate      *validator.Validate
	logger        *log.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(quiz QuizAdmin, notifications NotificationSource, verifier *middleware.JWTVerifier, logger *log.Logger) *AdminHandler {
	return &AdminHandler{
		quiz:          quiz,
		notifications: notifications,
		verifier:      verifier,
		validate:      validator.New(),
		logger:        logger,
	}
}

// RegisterRoutes registers the admin routes behind RequireAdmin
func (h *AdminHandler) RegisterRoutes(app *fiber.App) {
	admin := app.Group("/admin", middleware.RequireAdmin(h.verifier))
	admin.Post("/quiz/start", h.StartQuiz)
	admin.Get("/quiz/leaderboard", h.GetLeaderboard)
	admin.Get("/notifications", h.GetNotifications)
}

// StartQuiz opens a new quiz topic
func (h *AdminHandler) StartQuiz(c fiber.Ctx) error {
	var req StartQuizRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	topicID, err := h.quiz.StartQuiz(c.Context(), req.Title, req.Category)
	if err != nil {
		h.logger.Printf("Error starting quiz: %v", err)
		status := fiber.StatusBadGateway
		if topicID != "" {
			// The topic exists but the game could not be set up in it
			status = fiber.StatusInternalServerError
		}
		return c.Status(status).JSON(fiber.Map{
			"error":   "Failed to start quiz",
			"topicId": topicID,
		})
	}

	h.logger.Printf("Quiz started in topic %s by %v", topicID, c.Locals(middleware.UsernameKey))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Quiz started successfully",
		"topicId": topicID,
	})
}

// GetLeaderboard returns the quiz scores
func (h *AdminHandler) GetLeaderboard(c fiber.Ctx) error {
	scores, err := h.quiz.Leaderboard(c.Context())
	if err != nil {
		h.logger.Printf("Error loading leaderboard: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load leaderboard",
		})
	}

	return c.JSON(fiber.Map{
		"data": scores,
	})
}

// GetNotifications proxies the bot member's latest forum notifications
func (h *AdminHandler) GetNotifications(c fiber.Ctx) error {
	page, err := h.notifications.FetchNotifications(c.Context())
	if err != nil {
		h.logger.Printf("Error fetching notifications: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to fetch notifications",
		})
	}

	return c.JSON(fiber.Map{
		"data": page,
	})
}
