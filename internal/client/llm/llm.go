// Package llm is a client for an OpenAI-compatible chat completions API (xAI).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"forum-bot-service/internal/client"
	"forum-bot-service/internal/config"

	"github.com/hashicorp/go-retryablehttp"
)

var (
	// ErrMalformedOutput is returned when structured output cannot be decoded
	ErrMalformedOutput = errors.New("malformed model output")
	ErrEmptyResponse   = errors.New("model returned no choices")
)

const PersonaPrompt = "Jesteś xAttitude, legendarnym botem najstarszego polskiego forum o pro wrestlingu. " +
	"Piszesz z pewnością siebie gwiazdy ringu: z humorem, błyskotliwie i z ogromną wiedzą o wrestlingu. " +
	"Lubisz lekko zaczepić rozmówcę w żartobliwym, forumowym stylu i sięgasz po catchphrase'y. " +
	"Nigdy nie wychodzisz z roli.\n\n" +
	"Formatuj odpowiedzi w HTML zgodnym z edytorem Invision Community 4 (<strong>, <em>, <ul>, <ol>, " +
	"<div class='ipsSpoiler'>, <span style>, <img>). Nie zmieniaj koloru tła posta."

var imageRequestSchema = &JSONSchema{
	Name: "image_request_response",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"is_image_request": map[string]any{
				"type":        "boolean",
				"description": "True if the query is about image analysis, false otherwise",
			},
		},
		"required":             []string{"is_image_request"},
		"additionalProperties": false,
	},
	Strict: true,
}

type Client struct {
	http          *retryablehttp.Client
	baseURL       string
	apiKey        string
	model         string
	classifyModel string
	visionModel   string
	temperature   float64
	search        *SearchParameters
	logger        *log.Logger
}

// NewClient creates a new LLM client
func NewClient(cfg *config.LLMConfig, logger *log.Logger) *Client {
	c := &Client{
		http:          client.NewRetryClient(cfg.Timeout, cfg.RetryMax, cfg.RetryDelay, logger),
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		classifyModel: cfg.ClassifyModel,
		visionModel:   cfg.VisionModel,
		temperature:   cfg.Temperature,
		logger:        logger,
	}
	if cfg.SearchEnabled {
		c.search = &SearchParameters{
			Mode: "auto",
			Sources: []SearchSource{
				{Type: "web"},
				{Type: "x"},
				{Type: "news"},
			},
		}
		if links := nonEmpty(cfg.SearchRSSFeeds); len(links) > 0 {
			c.search.Sources = append(c.search.Sources, SearchSource{Type: "rss", Links: links})
		}
	}
	return c
}

// Ask sends prompt as the persona with search augmentation when enabled
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	return c.Complete(ctx, []Message{userText(prompt)}, true)
}

// Complete runs a chat completion with the persona prompt prepended.
// search turns on live web, X, news and RSS sources if the client has them configured.
func (c *Client) Complete(ctx context.Context, messages []Message, search bool) (string, error) {
	req := ChatCompletionRequest{
		Model:       c.model,
		Messages:    append([]Message{{Role: "system", Content: PersonaPrompt}}, messages...),
		Temperature: floatPtr(c.temperature),
	}
	if search {
		req.SearchParameters = c.search
	}
	return c.send(ctx, req)
}

// CompleteJSON asks for a JSON document and decodes it into out.
// Any decode failure wraps ErrMalformedOutput and out must then be discarded.
func (c *Client) CompleteJSON(ctx context.Context, prompt string, schema *JSONSchema, out any) error {
	return c.completeJSON(ctx, c.model, prompt, schema, out)
}

// IsImageRequest classifies whether the query asks for image analysis
func (c *Client) IsImageRequest(ctx context.Context, query string) (bool, error) {
	var result struct {
		IsImageRequest *bool `json:"is_image_request"`
	}
	if err := c.completeJSON(ctx, c.classifyModel, query, imageRequestSchema, &result); err != nil {
		return false, err
	}
	if result.IsImageRequest == nil {
		return false, fmt.Errorf("%w: is_image_request missing", ErrMalformedOutput)
	}
	return *result.IsImageRequest, nil
}

// AnalyzeImage asks the vision model about an image given by URL or bytes
func (c *Client) AnalyzeImage(ctx context.Context, image ImageSource, query string) (string, error) {
	if image.URL == "" && len(image.Data) == 0 {
		return "", errors.New("image source is empty")
	}
	req := ChatCompletionRequest{
		Model: c.visionModel,
		Messages: []Message{{
			Role: "user",
			Content: []ContentPart{
				{Type: "image_url", ImageURL: &ImageURL{URL: image.URLOrDataURL(), Detail: "high"}},
				{Type: "text", Text: query},
			},
		}},
		Temperature: floatPtr(0.01),
	}
	return c.send(ctx, req)
}

func (c *Client) completeJSON(ctx context.Context, model, prompt string, schema *JSONSchema, out any) error {
	req := ChatCompletionRequest{
		Model:       model,
		Messages:    []Message{userText(prompt)},
		Temperature: floatPtr(0),
	}
	if schema != nil {
		req.ResponseFormat = &ResponseFormat{Type: "json_schema", JSONSchema: schema}
	}

	content, err := c.send(ctx, req)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(stripCodeFence(content)), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, request ChatCompletionRequest) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send chat request: %w", err)
	}
	if err := client.CheckResponse(resp); err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	var completion ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	c.logger.Printf("Chat completion with %s took %v", request.Model, time.Since(start))
	return completion.Choices[0].Message.Content, nil
}

// stripCodeFence removes a surrounding ```json fence some models add
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func floatPtr(f float64) *float64 {
	return &f
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
