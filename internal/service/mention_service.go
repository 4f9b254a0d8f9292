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
	"forum-bot-service/internal/content"
	"forum-bot-service/internal/events"
	"forum-bot-service/internal/metrics"
	"forum-bot-service/internal/models"
	"forum-bot-service/internal/render"
	"forum-bot-service/internal/repository"
)

// NoImageMessage is the answer to an image query whose post carries no image
const NoImageMessage = "Nie znaleziono obrazu w treści zapytania."

// MentionService routes forum notifications and answers @mentions of the bot
type MentionService struct {
	conversations *ConversationService
	quiz          *QuizService
	guard         repository.ReplyGuard
	forum         ForumClient
	llm           LLMClient
	images        ImageMirror
	events        events.Publisher
	bot           *config.BotConfig
	logger        *log.Logger
}

// NewMentionService creates a new MentionService
func NewMentionService(
	conversations *ConversationService,
	quiz *QuizService,
	guard repository.ReplyGuard,
	forumClient ForumClient,
	llmClient LLMClient,
	images ImageMirror,
	publisher events.Publisher,
	bot *config.BotConfig,
	logger *log.Logger,
) *MentionService {
	return &MentionService{
		conversations: conversations,
		quiz:          quiz,
		guard:         guard,
		forum:         forumClient,
		llm:           llmClient,
		images:        images,
		events:        publisher,
		bot:           bot,
		logger:        logger,
	}
}

// Handle processes one notification and reports whether the bot replied.
// A panic while handling is logged and reported as no action.
func (s *MentionService) Handle(ctx context.Context, n models.Notification) (handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("Recovered from panic while handling %s notification: %v", n.Kind(), r)
			handled, err = false, nil
		}
	}()

	env := n.Envelope()
	if strings.EqualFold(env.Username, s.bot.UserName) || (env.AuthorID != "" && env.AuthorID == s.bot.UserID) {
		s.logger.Printf("Skipping own %s in topic %s", n.Kind(), env.TopicID)
		return false, nil
	}

	if s.quiz != nil {
		switch ev := n.(type) {
		case *models.TopicCreated:
			if s.bot.QuizForumID != "" && string(ev.Forum.ID) == s.bot.QuizForumID {
				handled, err := s.quiz.HandleTopicCreate(ctx, env.TopicID, env.Content)
				if handled || err != nil {
					return handled, err
				}
			}
		case *models.PostCreated:
			handled, err := s.quiz.HandlePost(ctx, env.TopicID, env.Content, env.Username)
			if !errors.Is(err, ErrNoActiveGame) {
				return handled, err
			}
		}
	}

	return s.handleMention(ctx, env)
}

func (s *MentionService) handleMention(ctx context.Context, env models.Envelope) (bool, error) {
	frag, err := content.Parse(env.Content)
	if err != nil {
		return false, err
	}
	if !frag.MentionsUser(s.bot.UserID, s.bot.UserName) {
		s.logger.Printf("No mention found in topic %s, skipping", env.TopicID)
		return false, nil
	}

	question := content.SanitizeQuestion(frag.Text())
	if question == "" {
		return false, nil
	}

	answered, err := s.conversations.HasUserMessage(ctx, env.TopicID, question)
	if err != nil {
		return false, fmt.Errorf("failed to check previous replies: %w", err)
	}
	if answered {
		metrics.DuplicateMentions.Inc()
		s.logger.Printf("Topic %s already has a reply for this mention, skipping", env.TopicID)
		return false, nil
	}

	claimed, err := s.guard.Claim(ctx, env.TopicID, env.Content)
	if err != nil {
		// The history check above still applies
		s.logger.Printf("Reply guard unavailable, continuing: %v", err)
		claimed = true
	}
	if !claimed {
		metrics.DuplicateMentions.Inc()
		s.logger.Printf("Mention in topic %s is already being answered, skipping", env.TopicID)
		return false, nil
	}

	replied := false
	defer func() {
		if replied {
			return
		}
		if err := s.guard.Release(context.WithoutCancel(ctx), env.TopicID, env.Content); err != nil {
			s.logger.Printf("Error releasing reply claim: %v", err)
		}
	}()

	conversationID, ok, err := s.conversations.ActiveConversation(ctx, env.TopicID, env.Username)
	if err != nil {
		return false, err
	}
	if !ok {
		s.logger.Printf("No active conversation in topic %s for %s, creating one", env.TopicID, env.Username)
		if conversationID, err = s.conversations.CreateConversation(ctx, env.TopicID, env.Username); err != nil {
			return false, err
		}
	}

	start := time.Now()
	isImage, err := s.llm.IsImageRequest(ctx, question)
	observeLLM("classify", start, err)
	if err != nil {
		s.logger.Printf("Image classification failed, treating as text: %v", err)
		isImage = false
	}

	var answer string
	if isImage {
		answer, err = s.answerImage(ctx, frag, question)
	} else {
		answer, err = s.answerText(ctx, conversationID, question, env.Username)
	}
	if err != nil {
		return false, err
	}

	if err := s.conversations.AppendMessage(ctx, conversationID, models.AuthorAI, answer, s.bot.UserName); err != nil {
		return false, err
	}

	if err := postReply(ctx, s.forum, s.logger, env.TopicID, render.Reply(answer), replyKind(isImage)); err == nil {
		if err := s.events.PublishReplyPosted(ctx, env.TopicID, conversationID, env.Username, isImage); err != nil {
			s.logger.Printf("Error publishing reply event: %v", err)
		}
	}
	replied = true

	expired, err := s.conversations.CheckAndExpire(ctx, conversationID)
	if err != nil {
		s.logger.Printf("Error checking conversation %s expiry: %v", conversationID, err)
	} else if expired {
		s.logger.Printf("Conversation %s has been marked as inactive", conversationID)
	}

	return true, nil
}

// answerText replays prior turns as context. The user turn is stored only once the model has
// answered so a failed call leaves nothing behind that would block a retry.
func (s *MentionService) answerText(ctx context.Context, conversationID, question, username string) (string, error) {
	history, err := s.conversations.History(ctx, conversationID)
	if err != nil {
		return "", err
	}

	prompt := question
	if len(history) > 0 {
		lines := make([]string, 0, len(history))
		for _, m := range history {
			lines = append(lines, fmt.Sprintf("%s: %s", m.Author, m.Content))
		}
		prompt = strings.Join(lines, "\n") + "\n" + question
	}

	start := time.Now()
	answer, err := s.llm.Ask(ctx, prompt)
	observeLLM("chat", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to get model answer: %w", err)
	}

	if err := s.conversations.AppendMessage(ctx, conversationID, models.AuthorUser, question, username); err != nil {
		return "", err
	}
	return answer, nil
}

// answerImage sends the post's first image to the vision model. Image queries stay out of history.
func (s *MentionService) answerImage(ctx context.Context, frag *content.Fragment, question string) (string, error) {
	imageURL, ok := frag.FirstImageURL()
	if !ok {
		s.logger.Println("No image found in the content")
		return NoImageMessage, nil
	}

	source := llm.ImageSource{URL: imageURL}
	if s.images != nil {
		mirrored, err := s.images.Mirror(ctx, imageURL)
		if err != nil {
			s.logger.Printf("Error mirroring image %s, using original url: %v", imageURL, err)
		} else {
			source.URL = mirrored
		}
	}

	start := time.Now()
	answer, err := s.llm.AnalyzeImage(ctx, source, question)
	observeLLM("vision", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to analyze image: %w", err)
	}
	return answer, nil
}

func replyKind(image bool) string {
	if image {
		return "image"
	}
	return "text"
}
