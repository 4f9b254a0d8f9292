package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strconv"
	"sync"
	"testing"
	"time"

	"forum-bot-service/internal/client/forum"
	"forum-bot-service/internal/client/llm"
	"forum-bot-service/internal/config"
	"forum-bot-service/internal/events"
	"forum-bot-service/internal/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type postedReply struct {
	topicID string
	html    string
}

type createdTopic struct {
	title, html, authorID, forumID string
}

// recordingForum records every write and serves canned topic posts
type recordingForum struct {
	mu      sync.Mutex
	replies []postedReply
	topics  []createdTopic
	posts   []forum.Post
	postErr error
}

func (f *recordingForum) PostReply(ctx context.Context, topicID, html string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, postedReply{topicID, html})
	if f.postErr != nil {
		return "", f.postErr
	}
	return strconv.Itoa(len(f.replies)), nil
}

func (f *recordingForum) CreateTopic(ctx context.Context, title, html, authorID, forumID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, createdTopic{title, html, authorID, forumID})
	return strconv.Itoa(5000 + len(f.topics)), nil
}

func (f *recordingForum) PostsSince(ctx context.Context, topicID string, since time.Time) ([]forum.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]forum.Post(nil), f.posts...), nil
}

func (f *recordingForum) Replies() []postedReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]postedReply(nil), f.replies...)
}

var errModelDown = errors.New("model unavailable")

// scriptedLLM answers from canned responses and records prompts
type scriptedLLM struct {
	mu          sync.Mutex
	answer      string
	askErr      error
	isImage     bool
	classifyErr error
	// JSON documents returned by CompleteJSON in order; "" means malformed output
	json        []string
	vision      string
	prompts     []string
	jsonPrompts []string
	images      []llm.ImageSource
}

func (l *scriptedLLM) Ask(ctx context.Context, prompt string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts = append(l.prompts, prompt)
	return l.answer, l.askErr
}

func (l *scriptedLLM) CompleteJSON(ctx context.Context, prompt string, schema *llm.JSONSchema, out any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jsonPrompts = append(l.jsonPrompts, prompt)
	if len(l.json) == 0 {
		return llm.ErrMalformedOutput
	}
	doc := l.json[0]
	l.json = l.json[1:]
	if doc == "" {
		return llm.ErrMalformedOutput
	}
	return json.Unmarshal([]byte(doc), out)
}

func (l *scriptedLLM) IsImageRequest(ctx context.Context, query string) (bool, error) {
	return l.isImage, l.classifyErr
}

func (l *scriptedLLM) AnalyzeImage(ctx context.Context, image llm.ImageSource, query string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.images = append(l.images, image)
	return l.vision, nil
}

func (l *scriptedLLM) Prompts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.prompts...)
}

type fixedMirror struct {
	url string
	err error
}

func (m fixedMirror) Mirror(ctx context.Context, imageURL string) (string, error) {
	return m.url, m.err
}

type harness struct {
	clock    *fakeClock
	convRepo *repository.MemoryConversationRepository
	quizRepo *repository.MemoryQuizRepository
	forum    *recordingForum
	llm      *scriptedLLM
	events   *events.MockPublisher
	bot      *config.BotConfig
	convs    *ConversationService
	quiz     *QuizService
	mentions *MentionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:    newFakeClock(),
		convRepo: repository.NewMemoryConversationRepository(),
		quizRepo: repository.NewMemoryQuizRepository(),
		forum:    &recordingForum{},
		llm:      &scriptedLLM{answer: "Bret Hart wygrał pas w walce wieczoru."},
		events:   events.NewMockPublisher(),
		bot: &config.BotConfig{
			UserID:            "23055",
			UserName:          "xAttitude",
			QuizForumID:       "233",
			QuizStartPhrase:   "start quiz",
			QuizTopicTitle:    "Nowy Quiz Wrestlingowy",
			DefaultCategory:   "wrestling",
			InactivityTimeout: 15 * time.Minute,
			ReplyClaimTTL:     24 * time.Hour,
		},
	}
	logger := log.New(io.Discard, "", 0)
	h.convs = NewConversationService(h.convRepo, h.bot.InactivityTimeout, h.clock.Now)
	h.quiz = NewQuizService(h.quizRepo, h.forum, h.llm, h.events, h.bot, logger, h.clock.Now)
	h.mentions = NewMentionService(h.convs, h.quiz, repository.NewMemoryReplyGuard(h.bot.ReplyClaimTTL),
		h.forum, h.llm, nil, h.events, h.bot, logger)
	return h
}
