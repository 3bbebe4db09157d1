package domain

import (
	"strings"
	"time"
)

type ContentKind string

const (
	ContentKindAviso   ContentKind = "aviso"
	ContentKindNoticia ContentKind = "noticia"
)

// ParseContentKind accepts both the singular kind and the plural route segment.
func ParseContentKind(s string) (ContentKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aviso", "avisos":
		return ContentKindAviso, true
	case "noticia", "noticias":
		return ContentKindNoticia, true
	}
	return "", false
}

// Plural returns the route segment used by the public site, e.g. "avisos".
func (k ContentKind) Plural() string {
	return string(k) + "s"
}

// Content is a published aviso or noticia.
type Content struct {
	Kind        ContentKind
	ID          string
	Title       string
	Body        string
	Category    string
	Priority    string
	PublishedAt time.Time
}

// IsUrgent reports whether an aviso is flagged for immediate attention.
func (c *Content) IsUrgent() bool {
	if c.Kind != ContentKindAviso {
		return false
	}
	switch strings.ToLower(c.Priority) {
	case "alta", "urgente":
		return true
	}
	return strings.EqualFold(c.Category, "urgente")
}
