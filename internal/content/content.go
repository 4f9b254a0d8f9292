// Package content extracts mentions, text and images from forum post HTML.
package content

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MaxHostLength is the longest hostname kept in a sanitized question
const MaxHostLength = 253

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// Fragment is a parsed post body
type Fragment struct {
	doc *goquery.Document
}

// Parse builds a Fragment from a post body
func Parse(html string) (*Fragment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse post html: %w", err)
	}
	return &Fragment{doc: doc}, nil
}

// MentionsUser reports whether the post mentions the user by mention markup or a plain @name token
func (f *Fragment) MentionsUser(userID, userName string) bool {
	if userID != "" {
		found := false
		f.doc.Find("a[data-mentionid]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if id, _ := s.Attr("data-mentionid"); id == userID {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	}
	return userName != "" && strings.Contains(f.doc.Text(), "@"+userName)
}

// Text returns the trimmed visible text of the post
func (f *Fragment) Text() string {
	return strings.TrimSpace(f.doc.Text())
}

// FirstImageURL returns the first image source in document order, else the first link
// whose path has an image extension, else the first image-shaped URL in the plain text.
func (f *Fragment) FirstImageURL() (string, bool) {
	if src, ok := f.doc.Find("img[src]").First().Attr("src"); ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src), true
	}

	var link string
	f.doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if isImageURL(href) {
			link = href
			return false
		}
		return true
	})
	if link != "" {
		return link, true
	}

	for _, token := range strings.Fields(f.doc.Text()) {
		if isImageURL(token) {
			return token, true
		}
	}
	return "", false
}

func isImageURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Path == "" {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// SanitizeQuestion percent-decodes the text and truncates any URL host longer than MaxHostLength
func SanitizeQuestion(text string) string {
	if decoded, err := url.PathUnescape(text); err == nil {
		text = decoded
	}

	parts := strings.Fields(text)
	for i, part := range parts {
		u, err := url.Parse(part)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		if len(u.Host) > MaxHostLength {
			u.Host = u.Host[:MaxHostLength]
			parts[i] = u.String()
		}
	}
	return strings.Join(parts, " ")
}
