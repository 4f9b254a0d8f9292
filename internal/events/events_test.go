package events

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"
)

type recordingStarter struct {
	titles     []string
	categories []string
	topicID    string
	err        error
}

func (s *recordingStarter) StartQuiz(ctx context.Context, title, category string) (string, error) {
	s.titles = append(s.titles, title)
	s.categories = append(s.categories, category)
	return s.topicID, s.err
}

func newTestConsumer(t *testing.T, starter QuizStarter) *EventConsumer {
	t.Helper()
	c, err := NewEventConsumer("", "forumbot.events", "forum-bot-commands", starter, time.Second, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewEventConsumer failed: %v", err)
	}
	return c
}

func TestDisabledConsumer(t *testing.T) {
	c := newTestConsumer(t, &recordingStarter{})
	if err := c.Start(); err != nil {
		t.Errorf("Start on disabled consumer returned %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on disabled consumer returned %v", err)
	}
}

func TestProcessQuizStartRequested(t *testing.T) {
	testCases := []struct {
		name       string
		body       string
		topicID    string
		starterErr error
		wantCalls  int
		wantBad    bool
		wantErr    bool
	}{
		{"valid", `{"title":"Quiz o WCW","category":"WCW"}`, "9001", nil, 1, false, false},
		{"empty title", `{"title":"  ","category":"WCW"}`, "", nil, 0, true, true},
		{"malformed", `{"title":`, "", nil, 0, true, true},
		{"starter failure", `{"title":"Quiz","category":""}`, "", errors.New("forum down"), 1, false, true},
		{"game setup failure", `{"title":"Quiz","category":""}`, "9001", errors.New("malformed output"), 1, false, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			starter := &recordingStarter{topicID: tc.topicID, err: tc.starterErr}
			c := newTestConsumer(t, starter)

			err := c.processMessage(string(EventTypeQuizStartRequested), []byte(tc.body))
			if (err != nil) != tc.wantErr {
				t.Fatalf("processMessage() error = %v, wantErr %v", err, tc.wantErr)
			}
			if errors.Is(err, errBadCommand) != tc.wantBad {
				t.Errorf("Expected bad command = %v, got %v", tc.wantBad, err)
			}
			if len(starter.titles) != tc.wantCalls {
				t.Errorf("Expected %d StartQuiz calls, got %d", tc.wantCalls, len(starter.titles))
			}
		})
	}
}

func TestFailedCommandRequeue(t *testing.T) {
	testCases := []struct {
		name        string
		topicID     string
		starterErr  error
		redelivered bool
		wantRequeue bool
	}{
		{"forum down first delivery", "", errors.New("forum down"), false, true},
		{"forum down redelivered", "", errors.New("forum down"), true, false},
		{"topic created but game failed", "9001", errors.New("malformed output"), false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestConsumer(t, &recordingStarter{topicID: tc.topicID, err: tc.starterErr})
			err := c.processMessage(string(EventTypeQuizStartRequested), []byte(`{"title":"Quiz"}`))
			if err == nil {
				t.Fatalf("Expected an error")
			}
			if got := shouldRequeue(err, tc.redelivered); got != tc.wantRequeue {
				t.Errorf("shouldRequeue() = %v, want %v (%v)", got, tc.wantRequeue, err)
			}
		})
	}

	if shouldRequeue(errBadCommand, false) {
		t.Errorf("Expected a malformed command never requeued")
	}
}

func TestUnknownRoutingKeyIsAcked(t *testing.T) {
	starter := &recordingStarter{}
	c := newTestConsumer(t, starter)
	if err := c.processMessage("profile.deleted", []byte(`{}`)); err != nil {
		t.Errorf("Expected unknown routing key to be ignored, got %v", err)
	}
	if len(starter.titles) != 0 {
		t.Errorf("Expected no quiz start")
	}
}

func TestMockPublisherRecordsInOrder(t *testing.T) {
	m := NewMockPublisher()
	ctx := context.Background()
	_ = m.PublishQuizStarted(ctx, "10", 1, "wrestling")
	_ = m.PublishHintPosted(ctx, "10", 1, 1)
	_ = m.PublishAnswerCorrect(ctx, "10", 1, "Bob")
	_ = m.PublishReplyPosted(ctx, "11", "3", "alice", false)

	expected := []EventType{EventTypeQuizStarted, EventTypeHintPosted, EventTypeAnswerCorrect, EventTypeReplyPosted}
	got := m.GetEvents()
	if len(got) != len(expected) {
		t.Fatalf("Expected %d events, got %d", len(expected), len(got))
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Event %d: expected %s, got %s", i, expected[i], got[i])
		}
	}

	m.ClearEvents()
	if len(m.GetEvents()) != 0 {
		t.Errorf("Expected no events after clear")
	}
}

func TestEventsCarryUniqueIDs(t *testing.T) {
	a := NewReplyPostedEvent("1", "2", "u", false)
	b := NewReplyPostedEvent("1", "2", "u", false)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("Expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
	if a.Version != "1.0" || a.Type != EventTypeReplyPosted {
		t.Errorf("Unexpected base event %+v", a.BaseEvent)
	}
}
