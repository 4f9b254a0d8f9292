// Package forum is a client for the Invision Community REST API.
package forum

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"forum-bot-service/internal/client"
	"forum-bot-service/internal/config"
	"forum-bot-service/internal/models"

	"github.com/hashicorp/go-retryablehttp"
)

// Client talks to the forum as the bot member
type Client struct {
	http      *retryablehttp.Client
	baseURL   string
	apiKey    string
	userAgent string
	botID     string
	logger    *log.Logger
}

// NewClient creates a new forum client posting as botID
func NewClient(cfg *config.ForumConfig, botID string, logger *log.Logger) *Client {
	return &Client{
		http:      client.NewRetryClient(cfg.Timeout, cfg.RetryMax, cfg.RetryDelay, logger),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		userAgent: cfg.UserAgent,
		botID:     botID,
		logger:    logger,
	}
}

// NotificationPage is one page of the bot member's notifications
type NotificationPage struct {
	Page         int               `json:"page"`
	PerPage      int               `json:"perPage"`
	TotalResults int               `json:"totalResults"`
	TotalPages   int               `json:"totalPages"`
	Results      []json.RawMessage `json:"results"`
}

// Post is a forum post as returned by the topic posts endpoint
type Post struct {
	ID      models.ID     `json:"id"`
	ItemID  models.ID     `json:"item_id"`
	Author  models.Member `json:"author"`
	Date    time.Time     `json:"date"`
	Content string        `json:"content"`
}

type postsPage struct {
	Page       int    `json:"page"`
	TotalPages int    `json:"totalPages"`
	Results    []Post `json:"results"`
}

type createdItem struct {
	ID      models.ID `json:"id"`
	TopicID models.ID `json:"topic_id"`
}

// FetchNotifications returns the latest notifications of the bot member
func (c *Client) FetchNotifications(ctx context.Context) (*NotificationPage, error) {
	var page NotificationPage
	if err := c.do(ctx, http.MethodGet, "/core/members/"+url.PathEscape(c.botID)+"/notifications", nil, &page); err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	return &page, nil
}

// PostReply posts html into the topic as the bot and returns the new post id
func (c *Client) PostReply(ctx context.Context, topicID, html string) (string, error) {
	form := url.Values{}
	form.Set("topic", topicID)
	form.Set("author", c.botID)
	form.Set("post", html)

	var created createdItem
	if err := c.do(ctx, http.MethodPost, "/forums/posts", form, &created); err != nil {
		return "", fmt.Errorf("failed to post reply to topic %s: %w", topicID, err)
	}
	c.logger.Printf("Posted reply %s to topic %s", created.ID, topicID)
	return string(created.ID), nil
}

// CreateTopic opens a topic in the forum and returns its id
func (c *Client) CreateTopic(ctx context.Context, title, html, authorID, forumID string) (string, error) {
	form := url.Values{}
	form.Set("forum", forumID)
	form.Set("title", title)
	form.Set("post", html)
	form.Set("author", authorID)

	var created createdItem
	if err := c.do(ctx, http.MethodPost, "/forums/topics", form, &created); err != nil {
		return "", fmt.Errorf("failed to create topic in forum %s: %w", forumID, err)
	}

	id := created.ID
	if id == "" {
		id = created.TopicID
	}
	if id == "" {
		return "", fmt.Errorf("create topic response carried no topic id")
	}
	return string(id), nil
}

// PostsSince returns the posts of a topic made at or after since, oldest first
func (c *Client) PostsSince(ctx context.Context, topicID string, since time.Time) ([]Post, error) {
	query := url.Values{}
	query.Set("sortDir", "desc")
	query.Set("perPage", "100")

	var page postsPage
	path := "/forums/topics/" + url.PathEscape(topicID) + "/posts?" + query.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, fmt.Errorf("failed to fetch posts of topic %s: %w", topicID, err)
	}

	posts := make([]Post, 0, len(page.Results))
	for _, p := range page.Results {
		if !p.Date.Before(since) {
			posts = append(posts, p)
		}
	}
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Date.Before(posts[j].Date)
	})
	return posts, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body any
	if form != nil {
		body = []byte(form.Encode())
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	if err := client.CheckResponse(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
