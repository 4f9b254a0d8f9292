package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownEvent = errors.New("unknown notification event")

type EventKind string

const (
	EventTopicCreate EventKind = "topic-create"
	EventPostCreate  EventKind = "post-create"
)

// Header values sent by the forum alongside the short names
var eventAliases = map[string]EventKind{
	"topic-create":           EventTopicCreate,
	"forumsTopic_create":     EventTopicCreate,
	"post-create":            EventPostCreate,
	"forumsTopicPost_create": EventPostCreate,
}

// Notification is one inbound forum event. Implemented by *TopicCreated and *PostCreated.
type Notification interface {
	Kind() EventKind
	Envelope() Envelope
}

// Envelope holds the fields every notification kind carries
type Envelope struct {
	TopicID  string
	AuthorID string
	Username string
	Content  string
	URL      string
}

// ID accepts both JSON numbers and strings
type ID string

// UnmarshalJSON accepts both numeric and string ids
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

type Member struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

type Forum struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

type TopicCreated struct {
	ID      ID     `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
	Author  Member `json:"author"`
	Forum   Forum  `json:"forum"`
}

func (t *TopicCreated) Kind() EventKind { return EventTopicCreate }

func (t *TopicCreated) Envelope() Envelope {
	return Envelope{
		TopicID:  string(t.ID),
		AuthorID: string(t.Author.ID),
		Username: t.Author.Name,
		Content:  t.Content,
		URL:      t.URL,
	}
}

type PostCreated struct {
	ID      ID     `json:"id"`
	ItemID  ID     `json:"item_id"`
	Content string `json:"content"`
	URL     string `json:"url"`
	Author  Member `json:"author"`
}

func (p *PostCreated) Kind() EventKind { return EventPostCreate }

func (p *PostCreated) Envelope() Envelope {
	return Envelope{
		TopicID:  string(p.ItemID),
		AuthorID: string(p.Author.ID),
		Username: p.Author.Name,
		Content:  p.Content,
		URL:      p.URL,
	}
}

// ParseNotification decodes body according to the event type header
func ParseNotification(eventType string, body []byte) (Notification, error) {
	kind, ok := eventAliases[strings.TrimSpace(eventType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}

	var n Notification
	switch kind {
	case EventTopicCreate:
		n = &TopicCreated{}
	case EventPostCreate:
		n = &PostCreated{}
	}

	if err := json.Unmarshal(body, n); err != nil {
		return nil, fmt.Errorf("failed to decode %s notification: %w", kind, err)
	}
	if n.Envelope().TopicID == "" {
		return nil, fmt.Errorf("%s notification has no topic id", kind)
	}
	return n, nil
}
