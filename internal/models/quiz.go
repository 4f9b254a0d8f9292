package models

import (
	"strings"
	"time"
)

type QuizQuestion struct {
	ID             int64      `bson:"_id" json:"id"`
	TopicID        string     `bson:"topic_id" json:"topicId"`
	Question       string     `bson:"question" json:"question"`
	Answer         string     `bson:"answer" json:"answer"`
	Variants       string     `bson:"variants,omitempty" json:"variants,omitempty"`
	Category       string     `bson:"category" json:"category"`
	CreatedAt      time.Time  `bson:"created_at" json:"createdAt"`
	Hints          []QuizHint `bson:"hints" json:"hints"`
	LastHintServed int        `bson:"last_hint_served" json:"lastHintServed"`
	Solved         bool       `bson:"solved" json:"solved"`
	SolvedBy       string     `bson:"solved_by,omitempty" json:"solvedBy,omitempty"`
	SolvedAt       *time.Time `bson:"solved_at,omitempty" json:"solvedAt,omitempty"`
}

type QuizHint struct {
	HintOrder int    `bson:"hint_order" json:"hintOrder"`
	HintText  string `bson:"hint_text" json:"hintText"`
}

type QuizScore struct {
	UserName  string    `bson:"_id" json:"userName"`
	Score     int       `bson:"score" json:"score"`
	UpdatedAt time.Time `bson:"updated_at" json:"-"`
}

type PendingAnswer struct {
	ID         int64     `bson:"_id" json:"id"`
	QuestionID int64     `bson:"question_id" json:"questionId"`
	UserName   string    `bson:"user_name" json:"userName"`
	Answer     string    `bson:"answer" json:"answer"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
	Processed  bool      `bson:"processed" json:"processed"`
}

// QuizDraft is a question as produced by the language model, before it is stored
type QuizDraft struct {
	Question string   `json:"question" validate:"required"`
	Answer   string   `json:"answer" validate:"required"`
	Variants []string `json:"variants,omitempty"`
	Hints    []string `json:"hints" validate:"required"`
}

// NextStoredHint returns the first stored hint after the last one served
func (q *QuizQuestion) NextStoredHint() (QuizHint, bool) {
	var next QuizHint
	found := false
	for _, h := range q.Hints {
		if h.HintOrder <= q.LastHintServed {
			continue
		}
		if !found || h.HintOrder < next.HintOrder {
			next = h
			found = true
		}
	}
	return next, found
}

// Accepts reports whether a guess matches the answer or one of the comma-separated variants.
// Both sides are trimmed and lowercased; no fuzzy matching.
func (q *QuizQuestion) Accepts(guess string) bool {
	g := normalizeAnswer(guess)
	if g == "" {
		return false
	}
	if g == normalizeAnswer(q.Answer) {
		return true
	}
	for _, v := range strings.Split(q.Variants, ",") {
		if nv := normalizeAnswer(v); nv != "" && nv == g {
			return true
		}
	}
	return false
}

// Reveals reports whether text contains the answer or any variant, ignoring case
func (q *QuizQuestion) Reveals(text string) bool {
	t := normalizeAnswer(text)
	if a := normalizeAnswer(q.Answer); a != "" && strings.Contains(t, a) {
		return true
	}
	for _, v := range strings.Split(q.Variants, ",") {
		if nv := normalizeAnswer(v); nv != "" && strings.Contains(t, nv) {
			return true
		}
	}
	return false
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
