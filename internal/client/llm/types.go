package llm

import (
	"encoding/base64"
	"net/http"
)

type ChatCompletionRequest struct {
	Model            string            `json:"model"`
	Messages         []Message         `json:"messages"`
	Stream           bool              `json:"stream"`
	Temperature      *float64          `json:"temperature,omitempty"`
	SearchParameters *SearchParameters `json:"search_parameters,omitempty"`
	ResponseFormat   *ResponseFormat   `json:"response_format,omitempty"`
}

// Message content is either a string or a list of ContentPart
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type SearchParameters struct {
	Mode    string         `json:"mode"`
	Sources []SearchSource `json:"sources"`
}

type SearchSource struct {
	Type  string   `json:"type"`
	Links []string `json:"links,omitempty"`
}

type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

type JSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ImageSource is either a remote URL or raw image bytes
type ImageSource struct {
	URL      string
	Data     []byte
	MIMEType string
}

// URLOrDataURL returns the URL, or the bytes encoded as a base64 data URL
func (s ImageSource) URLOrDataURL() string {
	if s.URL != "" {
		return s.URL
	}
	mime := s.MIMEType
	if mime == "" {
		mime = http.DetectContentType(s.Data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(s.Data)
}

func userText(text string) Message {
	return Message{Role: "user", Content: text}
}
