package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook deliveries by event type and outcome (handled, ignored, error)
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forumbot_webhook_events_total",
			Help: "Total number of webhook notifications received",
		},
		[]string{"event", "outcome"},
	)

	WebhookDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forumbot_webhook_duration_seconds",
			Help:    "Time spent handling a webhook notification",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"event"},
	)

	// Replies posted to the forum, kind: text/image/quiz
	RepliesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forumbot_replies_total",
			Help: "Total number of replies produced",
		},
		[]string{"kind", "status"},
	)

	DuplicateMentions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forumbot_duplicate_mentions_total",
			Help: "Mentions skipped because a reply already exists",
		},
	)

	QuizEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forumbot_quiz_events_total",
			Help: "Quiz state machine transitions",
		},
		[]string{"event"}, // started, correct, hint, joke
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forumbot_llm_request_duration_seconds",
			Help:    "Latency of language model calls",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"operation", "status"},
	)
)

// Status maps an error to a metric label
func Status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
