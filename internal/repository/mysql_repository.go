package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"forum-bot-service/internal/models"
)

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ConversationSQLRepository stores conversations in the conversations and messages tables
type ConversationSQLRepository struct {
	db *sql.DB
}

// NewConversationSQLRepository creates a new ConversationSQLRepository
func NewConversationSQLRepository(db *sql.DB) *ConversationSQLRepository {
	return &ConversationSQLRepository{db: db}
}

// FindActive returns the active conversation of a user in a topic touched after since
func (r *ConversationSQLRepository) FindActive(ctx context.Context, topicID, username string, since time.Time) (*models.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, topic_id, username, last_activity, is_active
		FROM conversations
		WHERE topic_id = ? AND username = ? AND is_active = TRUE AND last_activity >= ?
		ORDER BY last_activity DESC, id DESC
		LIMIT 1`, topicID, username, since.UTC())

	var (
		c  models.Conversation
		id int64
	)
	if err := row.Scan(&id, &c.TopicID, &c.Username, &c.LastActivity, &c.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active conversation: %w", err)
	}
	c.ID = strconv.FormatInt(id, 10)
	return &c, nil
}

// Create inserts a new active conversation and returns its id
func (r *ConversationSQLRepository) Create(ctx context.Context, topicID, username string, now time.Time) (string, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (topic_id, username, last_activity, is_active)
		VALUES (?, ?, ?, TRUE)`, topicID, username, now.UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert conversation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read conversation id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// AppendMessage locks the conversation row so concurrent appends serialize on it
func (r *ConversationSQLRepository) AppendMessage(ctx context.Context, msg models.Message) error {
	id, err := strconv.ParseInt(msg.ConversationID, 10, 64)
	if err != nil {
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, models.ErrNotFound)
	}
	ts := msg.Timestamp.UTC()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var locked int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM conversations WHERE id = ? FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("conversation %s: %w", msg.ConversationID, models.ErrNotFound)
			}
			return fmt.Errorf("failed to lock conversation: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, author, timestamp, content, username)
			VALUES (?, ?, ?, ?, ?)`, id, string(msg.Author), ts, msg.Content, msg.Username); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET last_activity = GREATEST(last_activity, ?) WHERE id = ?`, ts, id); err != nil {
			return fmt.Errorf("failed to bump conversation activity: %w", err)
		}
		return nil
	})
}

// History returns the messages of a conversation oldest first
func (r *ConversationSQLRepository) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.author, m.timestamp, m.content, m.username, c.topic_id
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.conversation_id = ?
		ORDER BY m.timestamp ASC, m.id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []models.Message
	for rows.Next() {
		var (
			m      models.Message
			author string
		)
		if err := rows.Scan(&m.Seq, &author, &m.Timestamp, &m.Content, &m.Username, &m.TopicID); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.ConversationID = conversationID
		m.Author = models.Author(author)
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return history, nil
}

// ExpireIfStale deactivates the conversation when its last activity is before cutoff.
// The update is conditional so a concurrent append keeps the conversation alive.
func (r *ConversationSQLRepository) ExpireIfStale(ctx context.Context, conversationID string, cutoff time.Time) (bool, error) {
	var lastActivity time.Time
	err := r.db.QueryRowContext(ctx, `SELECT last_activity FROM conversations WHERE id = ?`, conversationID).Scan(&lastActivity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
		}
		return false, fmt.Errorf("failed to read conversation activity: %w", err)
	}
	if !lastActivity.Before(cutoff) {
		return false, nil
	}

	// Conditional so that an append racing in between keeps the conversation active
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET is_active = FALSE
		WHERE id = ? AND last_activity < ?`, conversationID, cutoff.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to expire conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to expire conversation: %w", err)
	}
	return n > 0, nil
}

// MarkInactive deactivates a conversation
func (r *ConversationSQLRepository) MarkInactive(ctx context.Context, conversationID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conversations SET is_active = FALSE WHERE id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("failed to mark conversation inactive: %w", err)
	}
	return nil
}

// HasUserMessage reports whether content was already recorded as a user message in topicID
func (r *ConversationSQLRepository) HasUserMessage(ctx context.Context, topicID, content string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.topic_id = ? AND m.author = 'user' AND m.content = ?
		LIMIT 1`, topicID, content).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check answered mentions: %w", err)
	}
	return true, nil
}

// QuizSQLRepository stores quiz state in the quiz_* tables
type QuizSQLRepository struct {
	db *sql.DB
}

// NewQuizSQLRepository creates a new QuizSQLRepository
func NewQuizSQLRepository(db *sql.DB) *QuizSQLRepository {
	return &QuizSQLRepository{db: db}
}

// CreateGame inserts a question and its hints in one transaction
func (r *QuizSQLRepository) CreateGame(ctx context.Context, q *models.QuizQuestion, hints []string) (int64, error) {
	var id int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO quiz_questions (topic_id, question, answer, variants, category, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			q.TopicID, q.Question, q.Answer, q.Variants, q.Category, q.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert quiz question: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read quiz question id: %w", err)
		}

		for _, h := range buildHints(hints) {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO quiz_hints (question_id, hint_order, hint_text)
				VALUES (?, ?, ?)`, id, h.HintOrder, h.HintText); err != nil {
				return fmt.Errorf("failed to insert quiz hint: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CurrentQuestion returns the newest question of a topic with its hints
func (r *QuizSQLRepository) CurrentQuestion(ctx context.Context, topicID string) (*models.QuizQuestion, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, topic_id, question, answer, COALESCE(variants, ''), category, created_at,
		       last_hint_served, solved, COALESCE(solved_by, ''), solved_at
		FROM quiz_questions
		WHERE topic_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, topicID)

	var (
		q        models.QuizQuestion
		solvedAt sql.NullTime
	)
	err := row.Scan(&q.ID, &q.TopicID, &q.Question, &q.Answer, &q.Variants, &q.Category, &q.CreatedAt,
		&q.LastHintServed, &q.Solved, &q.SolvedBy, &solvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get current question: %w", err)
	}
	if solvedAt.Valid {
		q.SolvedAt = &solvedAt.Time
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT hint_order, hint_text FROM quiz_hints
		WHERE question_id = ?
		ORDER BY hint_order ASC`, q.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query hints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h models.QuizHint
		if err := rows.Scan(&h.HintOrder, &h.HintText); err != nil {
			return nil, fmt.Errorf("failed to scan hint: %w", err)
		}
		q.Hints = append(q.Hints, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hints: %w", err)
	}
	return &q, nil
}

// AddHint appends a served hint and returns its order
func (r *QuizSQLRepository) AddHint(ctx context.Context, questionID int64, text string) (int, error) {
	var order int
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var locked int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM quiz_questions WHERE id = ? FOR UPDATE`, questionID).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("question %d: %w", questionID, models.ErrNotFound)
			}
			return fmt.Errorf("failed to lock question: %w", err)
		}

		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(hint_order), 0) + 1 FROM quiz_hints WHERE question_id = ?`, questionID).Scan(&order); err != nil {
			return fmt.Errorf("failed to compute hint order: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quiz_hints (question_id, hint_order, hint_text)
			VALUES (?, ?, ?)`, questionID, order, text); err != nil {
			return fmt.Errorf("failed to insert hint: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return order, nil
}

// MarkHintServed flags a pre-generated hint as posted
func (r *QuizSQLRepository) MarkHintServed(ctx context.Context, questionID int64, order int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE quiz_questions SET last_hint_served = GREATEST(last_hint_served, ?) WHERE id = ?`, order, questionID)
	if err != nil {
		return fmt.Errorf("failed to mark hint served: %w", err)
	}
	return nil
}

// MarkSolved records the winner of a question
func (r *QuizSQLRepository) MarkSolved(ctx context.Context, questionID int64, userName string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE quiz_questions SET solved = TRUE, solved_by = ?, solved_at = ? WHERE id = ?`,
		userName, at.UTC(), questionID)
	if err != nil {
		return fmt.Errorf("failed to mark question solved: %w", err)
	}
	return nil
}

// UpdateScore adds delta to a user's score with an upsert
func (r *QuizSQLRepository) UpdateScore(ctx context.Context, userName string, delta int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quiz_scores (user_name, score) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE score = score + ?`, userName, delta, delta)
	if err != nil {
		return fmt.Errorf("failed to update score for %s: %w", userName, err)
	}
	return nil
}

// Leaderboard returns all scores, highest first
func (r *QuizSQLRepository) Leaderboard(ctx context.Context) ([]models.QuizScore, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_name, score FROM quiz_scores
		ORDER BY score DESC, user_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var scores []models.QuizScore
	for rows.Next() {
		var s models.QuizScore
		if err := rows.Scan(&s.UserName, &s.Score); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	return scores, nil
}

// EnqueueAnswer stores an answer for batch evaluation
func (r *QuizSQLRepository) EnqueueAnswer(ctx context.Context, answer *models.PendingAnswer) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO quiz_answer_queue (question_id, user_name, answer, timestamp, processed)
		VALUES (?, ?, ?, ?, FALSE)`,
		answer.QuestionID, answer.UserName, answer.Answer, answer.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue answer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read answer id: %w", err)
	}
	return id, nil
}

// ListUnprocessed returns the pending answers of a question in arrival order
func (r *QuizSQLRepository) ListUnprocessed(ctx context.Context, questionID int64) ([]models.PendingAnswer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, question_id, user_name, answer, timestamp, processed
		FROM quiz_answer_queue
		WHERE question_id = ? AND processed = FALSE
		ORDER BY timestamp ASC, id ASC`, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending answers: %w", err)
	}
	defer rows.Close()

	var pending []models.PendingAnswer
	for rows.Next() {
		var a models.PendingAnswer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.UserName, &a.Answer, &a.Timestamp, &a.Processed); err != nil {
			return nil, fmt.Errorf("failed to scan pending answer: %w", err)
		}
		pending = append(pending, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending answers: %w", err)
	}
	return pending, nil
}

// MarkProcessed flags answers as evaluated
func (r *QuizSQLRepository) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := r.db.ExecContext(ctx, `UPDATE quiz_answer_queue SET processed = TRUE WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark answers processed: %w", err)
	}
	return nil
}
