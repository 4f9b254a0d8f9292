package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"forum-bot-service/internal/models"
)

// MemoryConversationRepository keeps conversations in process memory
type MemoryConversationRepository struct {
	mu            sync.Mutex
	nextID        int64
	seq           int64
	conversations map[string]*models.Conversation
}

// NewMemoryConversationRepository creates an empty in-memory conversation store
func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		conversations: make(map[string]*models.Conversation),
	}
}

// FindActive returns the active conversation of a user in a topic touched after since
func (r *MemoryConversationRepository) FindActive(ctx context.Context, topicID, username string, since time.Time) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *models.Conversation
	for _, c := range r.conversations {
		if c.TopicID != topicID || c.Username != username || !c.IsActive {
			continue
		}
		if c.LastActivity.Before(since) {
			continue
		}
		if found == nil || c.LastActivity.After(found.LastActivity) {
			found = c
		}
	}
	if found == nil {
		return nil, models.ErrNotFound
	}
	copied := *found
	copied.Messages = nil
	return &copied, nil
}

// Create opens a new active conversation
func (r *MemoryConversationRepository) Create(ctx context.Context, topicID, username string, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := strconv.FormatInt(r.nextID, 10)
	r.conversations[id] = &models.Conversation{
		ID:           id,
		TopicID:      topicID,
		Username:     username,
		LastActivity: now.UTC(),
		IsActive:     true,
	}
	return id, nil
}

// AppendMessage stores msg and bumps the conversation's last activity
func (r *MemoryConversationRepository) AppendMessage(ctx context.Context, msg models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[msg.ConversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, models.ErrNotFound)
	}
	r.seq++
	msg.Seq = r.seq
	msg.TopicID = c.TopicID
	c.Messages = append(c.Messages, msg)
	if msg.Timestamp.After(c.LastActivity) {
		c.LastActivity = msg.Timestamp.UTC()
	}
	return nil
}

// History returns the messages of a conversation oldest first
func (r *MemoryConversationRepository) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
	}
	history := make([]models.Message, len(c.Messages))
	copy(history, c.Messages)
	sortMessages(history)
	return history, nil
}

// ExpireIfStale deactivates the conversation when its last activity is before cutoff
func (r *MemoryConversationRepository) ExpireIfStale(ctx context.Context, conversationID string, cutoff time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return false, fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
	}
	if !c.LastActivity.Before(cutoff) {
		return false, nil
	}
	c.IsActive = false
	return true, nil
}

// MarkInactive deactivates a conversation
func (r *MemoryConversationRepository) MarkInactive(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
	}
	c.IsActive = false
	return nil
}

// HasUserMessage reports whether content was already recorded as a user message in topicID
func (r *MemoryConversationRepository) HasUserMessage(ctx context.Context, topicID, content string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.conversations {
		if c.TopicID != topicID {
			continue
		}
		for _, m := range c.Messages {
			if m.Author == models.AuthorUser && m.Content == content {
				return true, nil
			}
		}
	}
	return false, nil
}

// Get returns a copy of the conversation including its messages
func (r *MemoryConversationRepository) Get(conversationID string) (*models.Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return nil, false
	}
	copied := *c
	copied.Messages = append([]models.Message(nil), c.Messages...)
	return &copied, true
}

// sortMessages orders by timestamp, ties by insertion
func sortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].Seq < msgs[j].Seq
	})
}

// MemoryQuizRepository keeps quiz state in process memory
type MemoryQuizRepository struct {
	mu             sync.Mutex
	nextQuestionID int64
	nextAnswerID   int64
	questions      map[int64]*models.QuizQuestion
	scores         map[string]int
	answers        map[int64]*models.PendingAnswer
}

// NewMemoryQuizRepository creates an empty in-memory quiz store
func NewMemoryQuizRepository() *MemoryQuizRepository {
	return &MemoryQuizRepository{
		questions: make(map[int64]*models.QuizQuestion),
		scores:    make(map[string]int),
		answers:   make(map[int64]*models.PendingAnswer),
	}
}

// CreateGame stores a question with its pre-generated hints
func (r *MemoryQuizRepository) CreateGame(ctx context.Context, q *models.QuizQuestion, hints []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextQuestionID++
	stored := *q
	stored.ID = r.nextQuestionID
	stored.Hints = buildHints(hints)
	r.questions[stored.ID] = &stored
	return stored.ID, nil
}

// CurrentQuestion returns the newest question of a topic with its hints
func (r *MemoryQuizRepository) CurrentQuestion(ctx context.Context, topicID string) (*models.QuizQuestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var current *models.QuizQuestion
	for _, q := range r.questions {
		if q.TopicID != topicID {
			continue
		}
		if current == nil || q.CreatedAt.After(current.CreatedAt) ||
			(q.CreatedAt.Equal(current.CreatedAt) && q.ID > current.ID) {
			current = q
		}
	}
	if current == nil {
		return nil, models.ErrNotFound
	}
	copied := *current
	copied.Hints = append([]models.QuizHint(nil), current.Hints...)
	return &copied, nil
}

// AddHint appends a served hint and returns its order
func (r *MemoryQuizRepository) AddHint(ctx context.Context, questionID int64, text string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.questions[questionID]
	if !ok {
		return 0, fmt.Errorf("question %d: %w", questionID, models.ErrNotFound)
	}
	order := len(q.Hints) + 1
	if n := len(q.Hints); n > 0 && q.Hints[n-1].HintOrder >= order {
		order = q.Hints[n-1].HintOrder + 1
	}
	q.Hints = append(q.Hints, models.QuizHint{HintOrder: order, HintText: text})
	return order, nil
}

// MarkHintServed flags a pre-generated hint as posted
func (r *MemoryQuizRepository) MarkHintServed(ctx context.Context, questionID int64, order int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.questions[questionID]
	if !ok {
		return fmt.Errorf("question %d: %w", questionID, models.ErrNotFound)
	}
	if order > q.LastHintServed {
		q.LastHintServed = order
	}
	return nil
}

// MarkSolved records the winner of a question
func (r *MemoryQuizRepository) MarkSolved(ctx context.Context, questionID int64, userName string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.questions[questionID]
	if !ok {
		return fmt.Errorf("question %d: %w", questionID, models.ErrNotFound)
	}
	solvedAt := at.UTC()
	q.Solved = true
	q.SolvedBy = userName
	q.SolvedAt = &solvedAt
	return nil
}

// UpdateScore adds delta to a user's score
func (r *MemoryQuizRepository) UpdateScore(ctx context.Context, userName string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scores[userName] += delta
	return nil
}

// Leaderboard returns all scores, highest first
func (r *MemoryQuizRepository) Leaderboard(ctx context.Context) ([]models.QuizScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	scores := make([]models.QuizScore, 0, len(r.scores))
	for name, score := range r.scores {
		scores = append(scores, models.QuizScore{UserName: name, Score: score})
	}
	sortScores(scores)
	return scores, nil
}

// EnqueueAnswer stores an answer for batch evaluation
func (r *MemoryQuizRepository) EnqueueAnswer(ctx context.Context, answer *models.PendingAnswer) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextAnswerID++
	stored := *answer
	stored.ID = r.nextAnswerID
	stored.Processed = false
	r.answers[stored.ID] = &stored
	return stored.ID, nil
}

// ListUnprocessed returns the pending answers of a question in arrival order
func (r *MemoryQuizRepository) ListUnprocessed(ctx context.Context, questionID int64) ([]models.PendingAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []models.PendingAnswer
	for _, a := range r.answers {
		if a.QuestionID == questionID && !a.Processed {
			pending = append(pending, *a)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].Timestamp.Equal(pending[j].Timestamp) {
			return pending[i].Timestamp.Before(pending[j].Timestamp)
		}
		return pending[i].ID < pending[j].ID
	})
	return pending, nil
}

// MarkProcessed flags answers as evaluated
func (r *MemoryQuizRepository) MarkProcessed(ctx context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if a, ok := r.answers[id]; ok {
			a.Processed = true
		}
	}
	return nil
}

// Question returns a copy of a stored question
func (r *MemoryQuizRepository) Question(questionID int64) (*models.QuizQuestion, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.questions[questionID]
	if !ok {
		return nil, false
	}
	copied := *q
	copied.Hints = append([]models.QuizHint(nil), q.Hints...)
	return &copied, true
}

// QuestionCount returns the number of stored questions
func (r *MemoryQuizRepository) QuestionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.questions)
}

// buildHints keeps non-empty hints at sequential 1-based order
func buildHints(hints []string) []models.QuizHint {
	stored := make([]models.QuizHint, 0, len(hints))
	for _, h := range hints {
		if h == "" {
			continue
		}
		stored = append(stored, models.QuizHint{HintOrder: len(stored) + 1, HintText: h})
	}
	return stored
}

func sortScores(scores []models.QuizScore) {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].UserName < scores[j].UserName
	})
}
