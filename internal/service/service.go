package service

import (
	"context"
	"log"
	"time"

	"forum-bot-service/internal/client/forum"
	"forum-bot-service/internal/client/llm"
	"forum-bot-service/internal/content"
	"forum-bot-service/internal/metrics"
)

// ForumClient is the part of the forum API the bot writes to
type ForumClient interface {
	PostReply(ctx context.Context, topicID, html string) (string, error)
	CreateTopic(ctx context.Context, title, html, authorID, forumID string) (string, error)
	PostsSince(ctx context.Context, topicID string, since time.Time) ([]forum.Post, error)
}

// LLMClient is the language model surface used by the bot
type LLMClient interface {
	Ask(ctx context.Context, prompt string) (string, error)
	CompleteJSON(ctx context.Context, prompt string, schema *llm.JSONSchema, out any) error
	IsImageRequest(ctx context.Context, query string) (bool, error)
	AnalyzeImage(ctx context.Context, image llm.ImageSource, query string) (string, error)
}

// ImageMirror copies a remote image somewhere the vision model can reach and returns that URL
type ImageMirror interface {
	Mirror(ctx context.Context, imageURL string) (string, error)
}

// postReply posts html and logs a failure. Posting is never retried beyond the client policy.
func postReply(ctx context.Context, client ForumClient, logger *log.Logger, topicID, html, kind string) error {
	postID, err := client.PostReply(ctx, topicID, html)
	metrics.RepliesPosted.WithLabelValues(kind, metrics.Status(err)).Inc()
	if err != nil {
		logger.Printf("Error posting reply to topic %s: %v", topicID, err)
		return err
	}
	logger.Printf("Replied to topic %s with post %s", topicID, postID)
	return nil
}

func observeLLM(operation string, start time.Time, err error) {
	metrics.LLMRequestDuration.WithLabelValues(operation, metrics.Status(err)).Observe(time.Since(start).Seconds())
}

// plainText returns the visible text of an HTML fragment, or the input when it cannot be parsed
func plainText(html string) string {
	frag, err := content.Parse(html)
	if err != nil {
		return html
	}
	return frag.Text()
}
