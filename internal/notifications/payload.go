package notifications

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/juntavecinos/notifier/internal/domain"
)

const (
	summaryMaxRunes       = 280
	templateParamMaxRunes = 120
)

// Payload contains data for rendering a content notification.
type Payload struct {
	Kind           domain.ContentKind
	ID             string
	Title          string
	Body           string
	Summary        string
	Category       string
	Priority       string
	Urgent         bool
	PublishedAt    time.Time
	URL            string
	SiteName       string
	PreferencesURL string
}

// Links builds public URLs pointing back to the junta site.
type Links struct {
	BaseURL         string
	SiteName        string
	PreferencesPath string
}

// ContentURL returns the public page of a content item, e.g. https://junta.cl/avisos/<id>.
func (l Links) ContentURL(kind domain.ContentKind, id string) string {
	return strings.TrimRight(l.BaseURL, "/") + "/" + kind.Plural() + "/" + url.PathEscape(id)
}

// PreferencesURL returns the page where residents change their channels.
func (l Links) PreferencesURL() string {
	if l.PreferencesPath == "" {
		return strings.TrimRight(l.BaseURL, "/")
	}
	return strings.TrimRight(l.BaseURL, "/") + "/" + strings.TrimLeft(l.PreferencesPath, "/")
}

// NewPayload builds the template data for c.
func NewPayload(c *domain.Content, links Links) Payload {
	return Payload{
		Kind:           c.Kind,
		ID:             c.ID,
		Title:          strings.TrimSpace(c.Title),
		Body:           strings.TrimSpace(c.Body),
		Summary:        truncate(strings.TrimSpace(c.Body), summaryMaxRunes),
		Category:       c.Category,
		Priority:       c.Priority,
		Urgent:         c.IsUrgent(),
		PublishedAt:    c.PublishedAt,
		URL:            links.ContentURL(c.Kind, c.ID),
		SiteName:       links.SiteName,
		PreferencesURL: links.PreferencesURL(),
	}
}

// truncate cuts s to at most n runes, ending with an ellipsis when shortened.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	cut := strings.TrimRightFunc(string(runes[:n-1]), func(r rune) bool {
		return r == ' ' || r == '\n' || r == '\t'
	})
	return cut + "…"
}

// oneLine collapses all whitespace runs to single spaces.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
