package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"forum-bot-service/internal/client/llm"
	"forum-bot-service/internal/config"
	"forum-bot-service/internal/events"
	"forum-bot-service/internal/metrics"
	"forum-bot-service/internal/models"
	"forum-bot-service/internal/render"
	"forum-bot-service/internal/repository"

	"github.com/go-playground/validator/v10"
)

// ErrNoActiveGame is returned for posts in a topic without an unsolved question
var ErrNoActiveGame = errors.New("no active quiz question")

const (
	jokePrompt = "Opowiedz śmieszny żart o pro wrestlingu."
	// Posted when the model cannot produce a joke either
	fallbackJoke = "Dlaczego wrestler zabrał drabinę na galę? Bo słyszał, że pas wisi wysoko!"
)

var quizDraftSchema = &llm.JSONSchema{
	Name: "quiz_question",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{"type": "string"},
			"answer":   map[string]any{"type": "string"},
			"variants": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"hints":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required":             []string{"question", "answer", "variants", "hints"},
		"additionalProperties": false,
	},
	Strict: true,
}

var hintSchema = &llm.JSONSchema{
	Name: "quiz_hint",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hint": map[string]any{"type": "string"},
		},
		"required":             []string{"hint"},
		"additionalProperties": false,
	},
	Strict: true,
}

type generatedHint struct {
	Hint string `json:"hint" validate:"required"`
}

// QuizService runs the quiz game: one open question per topic, hints for wrong guesses,
// a point and the leaderboard for the first correct one.
type QuizService struct {
	Repo     repository.QuizRepository
	Queue    *AnswerQueue
	forum    ForumClient
	llm      LLMClient
	events   events.Publisher
	validate *validator.Validate
	bot      *config.BotConfig
	logger   *log.Logger
	now      func() time.Time
}

// NewQuizService creates a new QuizService. A nil now uses time.Now.
func NewQuizService(
	repo repository.QuizRepository,
	forumClient ForumClient,
	llmClient LLMClient,
	publisher events.Publisher,
	bot *config.BotConfig,
	logger *log.Logger,
	now func() time.Time,
) *QuizService {
	if now == nil {
		now = time.Now
	}
	return &QuizService{
		Repo:     repo,
		Queue:    NewAnswerQueue(repo, now),
		forum:    forumClient,
		llm:      llmClient,
		events:   publisher,
		validate: validator.New(),
		bot:      bot,
		logger:   logger,
		now:      now,
	}
}

// HandleTopicCreate starts a game in the default category when the opening post asks for one
func (s *QuizService) HandleTopicCreate(ctx context.Context, topicID, body string) (bool, error) {
	return s.startGame(ctx, topicID, body, s.bot.DefaultCategory)
}

// StartQuiz generates a question, then opens a new quiz topic as the bot and starts the game in it.
// A failed generation creates no topic. When the topic was created but the game could not be
// set up, its id is returned together with the error.
func (s *QuizService) StartQuiz(ctx context.Context, title, category string) (string, error) {
	if strings.TrimSpace(title) == "" {
		title = s.bot.QuizTopicTitle
	}
	if strings.TrimSpace(category) == "" {
		category = s.bot.DefaultCategory
	}

	draft, err := s.generateQuestion(ctx, category)
	if err != nil {
		return "", err
	}

	body := "<p>" + s.bot.QuizStartPhrase + "</p>"
	topicID, err := s.forum.CreateTopic(ctx, title, body, s.bot.UserID, s.bot.QuizForumID)
	if err != nil {
		return "", fmt.Errorf("failed to create quiz topic: %w", err)
	}
	s.logger.Printf("Created new quiz topic with ID: %s", topicID)

	if err := s.openGame(ctx, topicID, category, draft); err != nil {
		return topicID, err
	}
	return topicID, nil
}

func (s *QuizService) startGame(ctx context.Context, topicID, body, category string) (bool, error) {
	if !strings.Contains(strings.ToLower(plainText(body)), strings.ToLower(s.bot.QuizStartPhrase)) {
		s.logger.Printf("Topic %s is not a quiz start post", topicID)
		return false, nil
	}

	draft, err := s.generateQuestion(ctx, category)
	if err != nil {
		return false, err
	}
	if err := s.openGame(ctx, topicID, category, draft); err != nil {
		return false, err
	}
	return true, nil
}

// openGame stores the drafted question in the topic and posts its first hint
func (s *QuizService) openGame(ctx context.Context, topicID, category string, draft *models.QuizDraft) error {
	question := &models.QuizQuestion{
		TopicID:   topicID,
		Question:  draft.Question,
		Answer:    draft.Answer,
		Variants:  strings.Join(draft.Variants, ","),
		Category:  category,
		CreatedAt: s.now().UTC(),
	}
	id, err := s.Repo.CreateGame(ctx, question, draft.Hints)
	if err != nil {
		return fmt.Errorf("failed to create quiz game: %w", err)
	}
	s.logger.Printf("Created new quiz question with ID: %d", id)

	stored, err := s.Repo.CurrentQuestion(ctx, topicID)
	if err != nil {
		return fmt.Errorf("failed to load new question: %w", err)
	}

	hint, order, err := s.nextHint(ctx, stored, nil)
	if err != nil {
		return fmt.Errorf("failed to produce initial hint: %w", err)
	}
	if err := s.Repo.MarkHintServed(ctx, stored.ID, order); err != nil {
		s.logger.Printf("Error marking hint %d served: %v", order, err)
	}

	html, err := render.Hint(hint)
	if err != nil {
		return err
	}
	if err := postReply(ctx, s.forum, s.logger, topicID, html, "quiz"); err == nil {
		s.publish(s.events.PublishQuizStarted(ctx, topicID, stored.ID, category))
		s.publish(s.events.PublishHintPosted(ctx, topicID, stored.ID, order))
	}
	metrics.QuizEvents.WithLabelValues("started").Inc()
	return nil
}

// HandlePost checks a post in a quiz topic as a guess. Every handled guess gets exactly one reply.
func (s *QuizService) HandlePost(ctx context.Context, topicID, body, username string) (bool, error) {
	question, err := s.Repo.CurrentQuestion(ctx, topicID)
	if errors.Is(err, models.ErrNotFound) {
		return false, ErrNoActiveGame
	}
	if err != nil {
		return false, fmt.Errorf("failed to load current question: %w", err)
	}
	if question.Solved {
		return false, ErrNoActiveGame
	}

	guess := plainText(body)
	s.logger.Printf("Quiz answer attempt in topic %s by %s", topicID, username)

	if question.Accepts(guess) {
		return s.handleCorrect(ctx, question, username)
	}
	return s.handleIncorrect(ctx, question, username, guess)
}

// Leaderboard returns all scores, best first
func (s *QuizService) Leaderboard(ctx context.Context) ([]models.QuizScore, error) {
	scores, err := s.Repo.Leaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return scores, nil
}

func (s *QuizService) handleCorrect(ctx context.Context, question *models.QuizQuestion, username string) (bool, error) {
	s.logger.Printf("Correct answer from user %s for question %d", username, question.ID)

	if err := s.Repo.UpdateScore(ctx, username, 1); err != nil {
		return false, fmt.Errorf("failed to update score: %w", err)
	}
	if err := s.Repo.MarkSolved(ctx, question.ID, username, s.now()); err != nil {
		return false, fmt.Errorf("failed to mark question solved: %w", err)
	}
	if err := s.Queue.Close(ctx, question.ID); err != nil {
		s.logger.Printf("Error closing answer queue for question %d: %v", question.ID, err)
	}

	scores, err := s.Leaderboard(ctx)
	if err != nil {
		return false, err
	}
	html, err := render.CorrectAnswer(username, question.Question, scores)
	if err != nil {
		return false, err
	}

	if err := postReply(ctx, s.forum, s.logger, question.TopicID, html, "quiz"); err == nil {
		s.publish(s.events.PublishAnswerCorrect(ctx, question.TopicID, question.ID, username))
	}
	metrics.QuizEvents.WithLabelValues("correct").Inc()
	return true, nil
}

func (s *QuizService) handleIncorrect(ctx context.Context, question *models.QuizQuestion, username, guess string) (bool, error) {
	if _, err := s.Queue.Enqueue(ctx, question.ID, username, guess); err != nil {
		s.logger.Printf("Error queueing answer: %v", err)
	}
	pending, err := s.Queue.ListUnprocessed(ctx, question.ID)
	if err != nil {
		s.logger.Printf("Error listing pending answers: %v", err)
	}

	hint, order, err := s.nextHint(ctx, question, pending)
	if err != nil {
		s.logger.Printf("No hint for question %d, posting a joke: %v", question.ID, err)
		return s.postJoke(ctx, question.TopicID)
	}
	if err := s.Repo.MarkHintServed(ctx, question.ID, order); err != nil {
		s.logger.Printf("Error marking hint %d served: %v", order, err)
	}

	if shouldFlush(pending, s.now()) {
		if err := s.Queue.MarkProcessed(ctx, answerIDs(pending)); err != nil {
			s.logger.Printf("Error flushing answer queue: %v", err)
		}
	}

	html, err := render.Hint(hint)
	if err != nil {
		return false, err
	}
	if err := postReply(ctx, s.forum, s.logger, question.TopicID, html, "quiz"); err == nil {
		s.publish(s.events.PublishHintPosted(ctx, question.TopicID, question.ID, order))
	}
	metrics.QuizEvents.WithLabelValues("hint").Inc()
	return true, nil
}

// nextHint serves the next stored hint, or generates and stores a new one
func (s *QuizService) nextHint(ctx context.Context, question *models.QuizQuestion, pending []models.PendingAnswer) (string, int, error) {
	if h, ok := question.NextStoredHint(); ok {
		return h.HintText, h.HintOrder, nil
	}

	hint, err := s.generateHint(ctx, question, pending)
	if err != nil {
		return "", 0, err
	}
	order, err := s.Repo.AddHint(ctx, question.ID, hint)
	if err != nil {
		return "", 0, fmt.Errorf("failed to store hint: %w", err)
	}
	return hint, order, nil
}

func (s *QuizService) generateQuestion(ctx context.Context, category string) (*models.QuizDraft, error) {
	prompt := fmt.Sprintf(
		"Wygeneruj jedno pytanie quizowe o wrestlingu z kategorii: %s. Odpowiedz WYŁĄCZNIE w formacie JSON:\n"+
			"{\n"+
			"  \"question\": \"Pytanie tekstowe tutaj.\",\n"+
			"  \"answer\": \"Odpowiedź tekstowa tutaj.\",\n"+
			"  \"variants\": [\"Inne akceptowane formy odpowiedzi\"],\n"+
			"  \"hints\": []\n"+
			"}\n"+
			"Nie dodawaj żadnego komentarza, nie dodawaj tekstu przed ani po JSON.",
		category,
	)

	var draft models.QuizDraft
	start := time.Now()
	err := s.llm.CompleteJSON(ctx, prompt, quizDraftSchema, &draft)
	observeLLM("quiz_question", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to generate quiz question: %w", err)
	}

	draft.Question = strings.TrimSpace(draft.Question)
	draft.Answer = strings.TrimSpace(draft.Answer)
	if err := s.validate.Struct(&draft); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrMalformedOutput, err)
	}
	return &draft, nil
}

// generateHint asks for a hint that builds on the hints and guesses so far
func (s *QuizService) generateHint(ctx context.Context, question *models.QuizQuestion, pending []models.PendingAnswer) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Na podstawie tej rozmowy o pytaniu \"%s\" wygeneruj jedną kreatywną podpowiedź w formacie JSON:\n", question.Question)
	b.WriteString("{ \"hint\": \"Twoja podpowiedź tutaj.\" }\n")
	b.WriteString("Nie zdradzaj odpowiedzi i nie powtarzaj wcześniejszych podpowiedzi. ")
	b.WriteString("Nie dodawaj żadnego komentarza, nie dodawaj tekstu przed ani po JSON.\n")

	if len(question.Hints) > 0 {
		b.WriteString("\nDotychczasowe podpowiedzi:\n")
		for _, h := range question.Hints {
			fmt.Fprintf(&b, "- %s\n", h.HintText)
		}
	}

	posts, err := s.forum.PostsSince(ctx, question.TopicID, question.CreatedAt)
	if err != nil {
		s.logger.Printf("Error fetching posts for topic %s: %v", question.TopicID, err)
	}
	var conversation []string
	for _, p := range posts {
		if strings.EqualFold(p.Author.Name, s.bot.UserName) {
			continue
		}
		conversation = append(conversation, fmt.Sprintf("%s: %s", p.Author.Name, plainText(p.Content)))
	}
	if len(conversation) > 0 {
		b.WriteString("\nRozmowa:\n")
		b.WriteString(strings.Join(conversation, "\n"))
		b.WriteString("\n")
	}

	if len(pending) > 0 {
		b.WriteString("\nBłędne odpowiedzi:\n")
		for _, a := range pending {
			fmt.Fprintf(&b, "- %s: %s\n", a.UserName, a.Answer)
		}
	}

	var result generatedHint
	start := time.Now()
	err = s.llm.CompleteJSON(ctx, b.String(), hintSchema, &result)
	observeLLM("quiz_hint", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to generate hint: %w", err)
	}
	result.Hint = strings.TrimSpace(result.Hint)
	if err := s.validate.Struct(&result); err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrMalformedOutput, err)
	}
	if question.Reveals(result.Hint) {
		return "", fmt.Errorf("%w: hint reveals the answer", llm.ErrMalformedOutput)
	}
	return result.Hint, nil
}

func (s *QuizService) postJoke(ctx context.Context, topicID string) (bool, error) {
	start := time.Now()
	joke, err := s.llm.Ask(ctx, jokePrompt)
	observeLLM("joke", start, err)
	if err != nil || strings.TrimSpace(joke) == "" {
		if err != nil {
			s.logger.Printf("Error generating joke: %v", err)
		}
		joke = fallbackJoke
	}

	html, err := render.Joke(joke)
	if err != nil {
		return false, err
	}
	_ = postReply(ctx, s.forum, s.logger, topicID, html, "quiz")
	metrics.QuizEvents.WithLabelValues("joke").Inc()
	return true, nil
}

func (s *QuizService) publish(err error) {
	if err != nil {
		s.logger.Printf("Error publishing quiz event: %v", err)
	}
}
