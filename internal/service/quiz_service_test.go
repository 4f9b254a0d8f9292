package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"forum-bot-service/internal/client/forum"
	"forum-bot-service/internal/client/llm"
	"forum-bot-service/internal/events"
	"forum-bot-service/internal/models"
)

const questionJSON = `{"question":"Kto wygrał walkę wieczoru WrestleMania III?","answer":"Hulk Hogan","variants":["Hogan","Hulkster"],"hints":["Blond wąsy","Hulkamania"]}`

func seedGame(t *testing.T, h *harness, topicID, answer, variants string, hints ...string) *models.QuizQuestion {
	t.Helper()
	id, err := h.quizRepo.CreateGame(context.Background(), &models.QuizQuestion{
		TopicID:   topicID,
		Question:  "Kto wygrał walkę wieczoru WrestleMania III?",
		Answer:    answer,
		Variants:  variants,
		Category:  "wrestling",
		CreatedAt: h.clock.Now(),
	}, hints)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	q, _ := h.quizRepo.Question(id)
	return q
}

func guessPost(topicID, author, guess string) *models.PostCreated {
	return &models.PostCreated{
		ID:      "1",
		ItemID:  models.ID(topicID),
		Content: "<p>" + guess + "</p>",
		Author:  models.Member{ID: "7", Name: author},
	}
}

func quizTopic(topicID, forumID, author, body string) *models.TopicCreated {
	return &models.TopicCreated{
		ID:      models.ID(topicID),
		Title:   "Nowy Quiz Wrestlingowy",
		Content: body,
		Author:  models.Member{ID: "7", Name: author},
		Forum:   models.Forum{ID: models.ID(forumID), Name: "Quizy"},
	}
}

func scoreOf(t *testing.T, h *harness, user string) int {
	t.Helper()
	scores, err := h.quiz.Leaderboard(context.Background())
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	for _, s := range scores {
		if s.UserName == user {
			return s.Score
		}
	}
	return 0
}

func TestQuizTopicWithoutStartPhrase(t *testing.T) {
	h := newHarness(t)
	h.llm.json = []string{questionJSON}

	handled, err := h.mentions.Handle(context.Background(), quizTopic("300", "233", "alice", "<p>Regulamin działu</p>"))
	if handled || err != nil {
		t.Errorf("Handle() = %v, %v; expected no action", handled, err)
	}
	if h.quizRepo.QuestionCount() != 0 {
		t.Errorf("Expected nothing persisted")
	}
	if len(h.llm.jsonPrompts) != 0 {
		t.Errorf("Expected no question generation")
	}
}

func TestQuizTopicStartsGame(t *testing.T) {
	h := newHarness(t)
	h.llm.json = []string{questionJSON}

	handled, err := h.mentions.Handle(context.Background(), quizTopic("300", "233", "alice", "<p>START QUIZ</p>"))
	if err != nil || !handled {
		t.Fatalf("Handle() = %v, %v", handled, err)
	}

	q, err := h.quizRepo.CurrentQuestion(context.Background(), "300")
	if err != nil {
		t.Fatalf("Expected a current question: %v", err)
	}
	if q.Answer != "Hulk Hogan" || q.Variants != "Hogan,Hulkster" || q.Category != "wrestling" {
		t.Errorf("Unexpected question %+v", q)
	}
	if len(q.Hints) != 2 || q.Hints[0].HintOrder != 1 || q.Hints[1].HintOrder != 2 {
		t.Errorf("Expected hints at order 1 and 2, got %+v", q.Hints)
	}
	if q.LastHintServed != 1 {
		t.Errorf("Expected first hint served, got %d", q.LastHintServed)
	}

	replies := h.forum.Replies()
	if len(replies) != 1 || !strings.Contains(replies[0].html, "Blond wąsy") || !strings.Contains(replies[0].html, "Podpowiedź") {
		t.Errorf("Expected the first hint posted, got %+v", replies)
	}

	expected := []events.EventType{events.EventTypeQuizStarted, events.EventTypeHintPosted}
	got := h.events.GetEvents()
	if len(got) != 2 || got[0] != expected[0] || got[1] != expected[1] {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestQuizTopicOutsideQuizForumIsNotAGame(t *testing.T) {
	h := newHarness(t)
	h.llm.json = []string{questionJSON}

	handled, _ := h.mentions.Handle(context.Background(), quizTopic("300", "12", "alice", "<p>start quiz</p>"))
	if handled || h.quizRepo.QuestionCount() != 0 {
		t.Errorf("Expected no game outside the quiz forum")
	}
}

func TestQuizStartGeneratesFirstHintWhenNoneStored(t *testing.T) {
	h := newHarness(t)
	h.llm.json = []string{
		`{"question":"Kto był pierwszym mistrzem WWF?","answer":"Buddy Rogers","variants":[],"hints":[]}`,
		`{"hint":"Nazywano go Nature Boy przed Flairem."}`,
	}

	handled, err := h.quiz.HandleTopicCreate(context.Background(), "300", "<p>start quiz</p>")
	if err != nil || !handled {
		t.Fatalf("HandleTopicCreate() = %v, %v", handled, err)
	}
	q, _ := h.quizRepo.CurrentQuestion(context.Background(), "300")
	if len(q.Hints) != 1 || q.Hints[0].HintOrder != 1 || q.LastHintServed != 1 {
		t.Errorf("Expected generated hint stored at order 1 and served, got %+v", q)
	}
	if replies := h.forum.Replies(); len(replies) != 1 || !strings.Contains(replies[0].html, "Nature Boy") {
		t.Errorf("Unexpected replies %+v", replies)
	}
}

func TestQuizDraftValidation(t *testing.T) {
	testCases := []struct {
		name  string
		draft string
	}{
		{"malformed", ""},
		{"missing answer", `{"question":"Kto?","answer":"","variants":[],"hints":[]}`},
		{"blank answer", `{"question":"Kto?","answer":"   ","variants":[],"hints":[]}`},
		{"missing question", `{"answer":"Sting","hints":[]}`},
		{"missing hints", `{"question":"Kto?","answer":"Sting"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.llm.json = []string{tc.draft}

			handled, err := h.quiz.HandleTopicCreate(context.Background(), "300", "<p>start quiz</p>")
			if handled || !errors.Is(err, llm.ErrMalformedOutput) {
				t.Errorf("Expected malformed output error, got %v (%v)", handled, err)
			}
			if h.quizRepo.QuestionCount() != 0 || len(h.forum.Replies()) != 0 {
				t.Errorf("Expected nothing persisted or posted")
			}
		})
	}
}

func TestCorrectAnswerEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := seedGame(t, h, "300", "Hulk Hogan", "", "Blond wąsy")
	_ = h.quizRepo.UpdateScore(ctx, "bob", 3)
	_, _ = h.quiz.Queue.Enqueue(ctx, q.ID, "bob", "Andre")

	handled, err := h.mentions.Handle(ctx, guessPost("300", "alice", "  HULK HOGAN "))
	if err != nil || !handled {
		t.Fatalf("Handle() = %v, %v", handled, err)
	}

	replies := h.forum.Replies()
	if len(replies) != 1 {
		t.Fatalf("Expected exactly one reply, got %d", len(replies))
	}
	html := replies[0].html
	for _, want := range []string{"Gratulacje alice", "<table>", "Liczba punktów 3", "Liczba punktów 1", "Podaj kategorię następnego pytania"} {
		if !strings.Contains(html, want) {
			t.Errorf("Expected reply to contain %q", want)
		}
	}
	if strings.Index(html, "bob") > strings.Index(html, ">alice<") {
		t.Errorf("Expected bob ranked above alice")
	}

	if got := scoreOf(t, h, "alice"); got != 1 {
		t.Errorf("Expected alice to have 1 point, got %d", got)
	}
	if got := scoreOf(t, h, "bob"); got != 3 {
		t.Errorf("Expected bob's score untouched, got %d", got)
	}

	solved, _ := h.quizRepo.Question(q.ID)
	if !solved.Solved || solved.SolvedBy != "alice" {
		t.Errorf("Expected question solved by alice, got %+v", solved)
	}
	if pending, _ := h.quiz.Queue.ListUnprocessed(ctx, q.ID); len(pending) != 0 {
		t.Errorf("Expected the answer window closed, got %d pending", len(pending))
	}

	// The game is over; later posts are ordinary posts
	if _, err := h.quiz.HandlePost(ctx, "300", "<p>Hulk Hogan</p>", "carol"); !errors.Is(err, ErrNoActiveGame) {
		t.Errorf("Expected ErrNoActiveGame after solve, got %v", err)
	}
	if scoreOf(t, h, "carol") != 0 || len(h.forum.Replies()) != 1 {
		t.Errorf("Expected no further points or replies")
	}
}

func TestAnswerMatching(t *testing.T) {
	testCases := []struct {
		guess    string
		expected bool
	}{
		{"ScSA", true},
		{"  steve AUSTIN ", true},
		{"stone cold", true},
		{"Stone", false},
		{"Stone Cold Steve Austin", false},
	}

	for _, tc := range testCases {
		t.Run(tc.guess, func(t *testing.T) {
			h := newHarness(t)
			h.llm.json = []string{`{"hint":"Pije piwo w ringu."}`}
			seedGame(t, h, "300", "Stone Cold", "steve austin, scsa")

			if _, err := h.quiz.HandlePost(context.Background(), "300", "<p>"+tc.guess+"</p>", "alice"); err != nil {
				t.Fatalf("HandlePost failed: %v", err)
			}
			if got := scoreOf(t, h, "alice") == 1; got != tc.expected {
				t.Errorf("Guess %q accepted = %v, expected %v", tc.guess, got, tc.expected)
			}
			if len(h.forum.Replies()) != 1 {
				t.Errorf("Expected exactly one reply, got %d", len(h.forum.Replies()))
			}
		})
	}
}

func TestNoActiveGame(t *testing.T) {
	h := newHarness(t)
	handled, err := h.quiz.HandlePost(context.Background(), "404", "<p>Sting</p>", "alice")
	if handled || !errors.Is(err, ErrNoActiveGame) {
		t.Errorf("Expected ErrNoActiveGame, got %v (%v)", handled, err)
	}
}

func TestIncorrectAnswerServesNextStoredHint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := seedGame(t, h, "300", "Hulk Hogan", "", "Blond wąsy", "Hulkamania")
	_ = h.quizRepo.MarkHintServed(ctx, q.ID, 1)

	handled, err := h.mentions.Handle(ctx, guessPost("300", "alice", "Andre the Giant"))
	if err != nil || !handled {
		t.Fatalf("Handle() = %v, %v", handled, err)
	}

	replies := h.forum.Replies()
	if len(replies) != 1 || !strings.Contains(replies[0].html, "Hulkamania") {
		t.Errorf("Expected the second stored hint, got %+v", replies)
	}
	stored, _ := h.quizRepo.Question(q.ID)
	if stored.LastHintServed != 2 {
		t.Errorf("Expected hint 2 served, got %d", stored.LastHintServed)
	}
	if pending, _ := h.quiz.Queue.ListUnprocessed(ctx, q.ID); len(pending) != 1 || pending[0].Answer != "Andre the Giant" {
		t.Errorf("Expected the guess queued, got %+v", pending)
	}
	if len(h.llm.jsonPrompts) != 0 {
		t.Errorf("Expected no hint generation while stored hints remain")
	}
}

func TestIncorrectAnswerGeneratesHint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := seedGame(t, h, "300", "Hulk Hogan", "", "Blond wąsy")
	_ = h.quizRepo.MarkHintServed(ctx, q.ID, 1)
	h.forum.posts = []forum.Post{
		{ID: "1", Author: models.Member{Name: "xAttitude"}, Content: "<p>Podpowiedź</p>"},
		{ID: "2", Author: models.Member{Name: "bob"}, Content: "<p>Andre?</p>"},
	}
	h.llm.json = []string{`{"hint":"Jego finisher to noga w locie."}`}

	handled, err := h.quiz.HandlePost(ctx, "300", "<p>Sting</p>", "alice")
	if err != nil || !handled {
		t.Fatalf("HandlePost() = %v, %v", handled, err)
	}

	if len(h.llm.jsonPrompts) != 1 {
		t.Fatalf("Expected one hint prompt, got %d", len(h.llm.jsonPrompts))
	}
	prompt := h.llm.jsonPrompts[0]
	for _, want := range []string{q.Question, "- Blond wąsy", "bob: Andre?", "- alice: Sting"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected hint prompt to contain %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "xAttitude:") {
		t.Errorf("Expected the bot's own posts left out of the prompt")
	}
	if strings.Contains(prompt, q.Answer) {
		t.Errorf("Expected the answer kept out of the hint prompt:\n%s", prompt)
	}

	stored, _ := h.quizRepo.Question(q.ID)
	if len(stored.Hints) != 2 || stored.Hints[1].HintOrder != 2 || stored.LastHintServed != 2 {
		t.Errorf("Expected generated hint stored and served at order 2, got %+v", stored)
	}
	if replies := h.forum.Replies(); len(replies) != 1 || !strings.Contains(replies[0].html, "noga w locie") {
		t.Errorf("Unexpected replies %+v", replies)
	}
}

func TestHintFailurePostsJoke(t *testing.T) {
	testCases := []struct {
		name   string
		askErr error
		want   string
	}{
		{"model joke", nil, "Bret Hart"},
		{"static joke", errModelDown, fallbackJoke},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.llm.askErr = tc.askErr
			h.llm.json = []string{""}
			seedGame(t, h, "300", "Hulk Hogan", "")

			handled, err := h.quiz.HandlePost(context.Background(), "300", "<p>Sting</p>", "alice")
			if err != nil || !handled {
				t.Fatalf("HandlePost() = %v, %v", handled, err)
			}
			replies := h.forum.Replies()
			if len(replies) != 1 {
				t.Fatalf("Expected exactly one reply, got %d", len(replies))
			}
			if !strings.Contains(replies[0].html, "Na pocieszenie") || !strings.Contains(replies[0].html, tc.want) {
				t.Errorf("Expected a joke containing %q, got %s", tc.want, replies[0].html)
			}
			if prompts := h.llm.Prompts(); len(prompts) != 1 || prompts[0] != jokePrompt {
				t.Errorf("Expected the joke prompt, got %q", prompts)
			}
		})
	}
}

func TestWrongGuessesFlushAfterThree(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := seedGame(t, h, "300", "Hulk Hogan", "")
	h.llm.json = []string{`{"hint":"pierwsza"}`, `{"hint":"druga"}`, `{"hint":"trzecia"}`}

	for i, guess := range []string{"Sting", "Goldberg", "Edge"} {
		h.clock.Advance(time.Second)
		if _, err := h.quiz.HandlePost(ctx, "300", "<p>"+guess+"</p>", "alice"); err != nil {
			t.Fatalf("Guess %d failed: %v", i+1, err)
		}
		pending, _ := h.quiz.Queue.ListUnprocessed(ctx, q.ID)
		if i < 2 && len(pending) != i+1 {
			t.Errorf("After guess %d expected %d pending, got %d", i+1, i+1, len(pending))
		}
		if i == 2 && len(pending) != 0 {
			t.Errorf("Expected the window flushed after three guesses, got %d", len(pending))
		}
	}

	// The third hint was generated with all three guesses in view
	if last := h.llm.jsonPrompts[2]; !strings.Contains(last, "alice: Sting") || !strings.Contains(last, "alice: Edge") {
		t.Errorf("Expected all guesses in the last hint prompt:\n%s", last)
	}
}

func TestStartQuiz(t *testing.T) {
	h := newHarness(t)
	h.llm.json = []string{questionJSON}

	topicID, err := h.quiz.StartQuiz(context.Background(), "", "Era Attitude")
	if err != nil {
		t.Fatalf("StartQuiz failed: %v", err)
	}
	if topicID != "5001" {
		t.Errorf("Expected the created topic id, got %s", topicID)
	}

	topic := h.forum.topics[0]
	if topic.title != "Nowy Quiz Wrestlingowy" || topic.html != "<p>start quiz</p>" || topic.authorID != "23055" || topic.forumID != "233" {
		t.Errorf("Unexpected topic %+v", topic)
	}
	if !strings.Contains(h.llm.jsonPrompts[0], "Era Attitude") {
		t.Errorf("Expected the category in the question prompt")
	}

	q, err := h.quizRepo.CurrentQuestion(context.Background(), "5001")
	if err != nil || q.Category != "Era Attitude" {
		t.Errorf("Expected a game in the new topic, got %+v (%v)", q, err)
	}

	// The forum echoes the bot's topic back as a notification; it must not start a second game
	echo := quizTopic("5001", "233", "xAttitude", "<p>start quiz</p>")
	if handled, _ := h.mentions.Handle(context.Background(), echo); handled || h.quizRepo.QuestionCount() != 1 {
		t.Errorf("Expected the echoed topic ignored")
	}
}

func TestHintRevealingAnswerIsNotPosted(t *testing.T) {
	h := newHarness(t)
	q := seedGame(t, h, "300", "Hulk Hogan", "Hogan,Hulkster")
	h.llm.json = []string{`{"hint":"To oczywiście Hulkster we własnej osobie."}`}

	handled, err := h.quiz.HandlePost(context.Background(), "300", "<p>Sting</p>", "alice")
	if err != nil || !handled {
		t.Fatalf("HandlePost() = %v, %v", handled, err)
	}

	replies := h.forum.Replies()
	if len(replies) != 1 {
		t.Fatalf("Expected exactly one reply, got %d", len(replies))
	}
	if q.Reveals(replies[0].html) {
		t.Errorf("Expected the answer kept out of the reply, got %s", replies[0].html)
	}
	if !strings.Contains(replies[0].html, "Na pocieszenie") {
		t.Errorf("Expected the joke fallback, got %s", replies[0].html)
	}
	if stored, _ := h.quizRepo.Question(q.ID); len(stored.Hints) != 0 {
		t.Errorf("Expected the revealing hint not stored, got %+v", stored.Hints)
	}
}

func TestStartQuizMalformedQuestionCreatesNoTopic(t *testing.T) {
	h := newHarness(t)
	h.llm.json = []string{""}

	topicID, err := h.quiz.StartQuiz(context.Background(), "Quiz", "WCW")
	if !errors.Is(err, llm.ErrMalformedOutput) {
		t.Fatalf("Expected malformed output error, got %v", err)
	}
	if topicID != "" {
		t.Errorf("Expected no topic id, got %s", topicID)
	}
	if len(h.forum.topics) != 0 || h.quizRepo.QuestionCount() != 0 || len(h.forum.Replies()) != 0 {
		t.Errorf("Expected no topic, question or reply, got %d topics", len(h.forum.topics))
	}
}

func TestStartQuizReturnsTopicWhenGameSetupFails(t *testing.T) {
	h := newHarness(t)
	// Question without stored hints, then a malformed first hint
	h.llm.json = []string{
		`{"question":"Kto był pierwszym mistrzem WWF?","answer":"Buddy Rogers","variants":[],"hints":[]}`,
		"",
	}

	topicID, err := h.quiz.StartQuiz(context.Background(), "Quiz", "WWF")
	if err == nil {
		t.Fatalf("Expected an error")
	}
	if topicID != "5001" || len(h.forum.topics) != 1 {
		t.Errorf("Expected the created topic reported, got %q and %d topics", topicID, len(h.forum.topics))
	}
}
