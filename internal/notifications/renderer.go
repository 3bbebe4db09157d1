package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"strings"
	"text/template"
	"time"

	"github.com/juntavecinos/notifier/internal/domain"
	"github.com/juntavecinos/notifier/internal/preference"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// plainTemplate is the prefix of the plain text templates used for WhatsApp bodies and
// the email text alternative.
const plainTemplate = "plain"

var templatePrefixes = map[preference.Channel]string{
	preference.Email:    "email",
	preference.Telegram: "telegram",
	preference.WhatsApp: plainTemplate,
}

// Renderer renders notifications from templates.
type Renderer struct {
	templates map[string]*template.Template
	location  *time.Location
}

// NewRenderer creates a new renderer and loads all templates.
// Dates are printed in loc, UTC when nil.
func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}

	r := &Renderer{
		templates: make(map[string]*template.Template),
		location:  loc,
	}

	funcMap := template.FuncMap{
		"title":      titleCase,
		"upper":      strings.ToUpper,
		"escapeHTML": html.EscapeString,
		"nl2br":      nl2br,
		"formatDate": r.formatDate,
	}

	kinds := []domain.ContentKind{domain.ContentKindAviso, domain.ContentKindNoticia}
	for _, prefix := range []string{"email", "telegram", plainTemplate} {
		for _, kind := range kinds {
			name := fmt.Sprintf("%s_%s", prefix, kind)
			filename := fmt.Sprintf("templates/%s.tmpl", name)

			content, err := templatesFS.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("read template %s: %w", filename, err)
			}

			tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
			if err != nil {
				return nil, fmt.Errorf("parse template %s: %w", name, err)
			}

			r.templates[name] = tmpl
		}
	}

	return r, nil
}

// Render renders the payload for ch. The returned notification has no recipient yet.
func (r *Renderer) Render(ch preference.Channel, p Payload) (Notification, error) {
	prefix, ok := templatePrefixes[ch]
	if !ok {
		return Notification{}, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}

	body, err := r.execute(prefix, p)
	if err != nil {
		return Notification{}, err
	}

	text := body
	if prefix != plainTemplate {
		if text, err = r.execute(plainTemplate, p); err != nil {
			return Notification{}, err
		}
	}

	return Notification{
		Subject:        Subject(p),
		Body:           body,
		Text:           text,
		Link:           p.URL,
		Template:       string(p.Kind),
		TemplateParams: templateParams(p),
	}, nil
}

func (r *Renderer) execute(prefix string, p Payload) (string, error) {
	name := fmt.Sprintf("%s_%s", prefix, p.Kind)
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Subject generates the notification subject line, e.g. "[Aviso urgente] Corte de agua".
func Subject(p Payload) string {
	var prefix string
	switch {
	case p.Kind == domain.ContentKindAviso && p.Urgent:
		prefix = "Aviso urgente"
	case p.Kind == domain.ContentKindAviso:
		prefix = "Aviso"
	case p.Kind == domain.ContentKindNoticia:
		prefix = "Noticia"
	default:
		prefix = "Junta de vecinos"
	}
	return fmt.Sprintf("[%s] %s", prefix, oneLine(p.Title))
}

// templateParams are the body variables of the pre-approved WhatsApp templates:
// {{1}} title, {{2}} excerpt, {{3}} link. Providers reject newlines inside parameters.
func templateParams(p Payload) []string {
	return []string{
		oneLine(p.Title),
		truncate(oneLine(p.Body), templateParamMaxRunes),
		p.URL,
	}
}

// Template functions

func titleCase(s string) string {
	return cases.Title(language.Spanish).String(s)
}

func nl2br(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>\n")
}

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

func (r *Renderer) formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(r.location)
	return fmt.Sprintf("%d de %s de %d, %s", t.Day(), spanishMonths[t.Month()-1], t.Year(), t.Format("15:04"))
}
