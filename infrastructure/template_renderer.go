package infrastructure

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/services"
)

// TemplateData is what digest templates are executed against
type TemplateData struct {
	Digest entities.DigestMeta
	Events []entities.DigestEvent
	Count  int
	Stats  entities.EventStats
	ByType map[string][]entities.DigestEvent
}

// GoTemplateRenderer renders digest templates with text/template and html/template
type GoTemplateRenderer struct {
	location *time.Location
}

// NewGoTemplateRenderer creates a renderer formatting times in loc (UTC when nil)
func NewGoTemplateRenderer(loc *time.Location) *GoTemplateRenderer {
	if loc == nil {
		loc = time.UTC
	}
	return &GoTemplateRenderer{location: loc}
}

// Render implements interfaces.TemplateRenderer. The subject and text bodies use
// text/template; the HTML body is escaped by html/template.
func (r *GoTemplateRenderer) Render(tmpl *entities.Template, events []entities.DigestEvent, meta entities.DigestMeta) (*entities.RenderedMessage, error) {
	if tmpl == nil {
		return nil, entities.ErrTemplateNotFound
	}

	data := TemplateData{
		Digest: meta,
		Events: events,
		Count:  len(events),
		Stats:  services.GetEventStats(events),
		ByType: services.GroupEvents(events, "eventType"),
	}
	funcs := r.funcs()

	subject, err := executeText("subject", tmpl.SubjectTemplate, funcs, data)
	if err != nil {
		return nil, err
	}
	text, err := executeText("text", tmpl.TextTemplate, funcs, data)
	if err != nil {
		return nil, err
	}

	var html bytes.Buffer
	if tmpl.HTMLTemplate != "" {
		parsed, err := htmltemplate.New("html").Funcs(htmltemplate.FuncMap(funcs)).Parse(tmpl.HTMLTemplate)
		if err != nil {
			return nil, fmt.Errorf("failed to parse html template: %w", err)
		}
		if err := parsed.Execute(&html, data); err != nil {
			return nil, fmt.Errorf("failed to render html template: %w", err)
		}
	}

	return &entities.RenderedMessage{
		// Header injection guard
		Subject: strings.Join(strings.Fields(subject), " "),
		HTML:    html.String(),
		Text:    text,
	}, nil
}

func executeText(name, source string, funcs map[string]any, data TemplateData) (string, error) {
	if source == "" {
		return "", nil
	}
	parsed, err := texttemplate.New(name).Funcs(texttemplate.FuncMap(funcs)).Parse(source)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	var out bytes.Buffer
	if err := parsed.Execute(&out, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", name, err)
	}
	return out.String(), nil
}

func (r *GoTemplateRenderer) funcs() map[string]any {
	return map[string]any{
		// field resolves a path such as "data.file.name" against an event
		"field": func(event entities.DigestEvent, path string) any {
			value, ok := services.ResolvePath(event.Document(), path)
			if !ok {
				return ""
			}
			return value
		},
		"formatTime": func(t time.Time, layout string) string {
			return t.In(r.location).Format(layout)
		},
		"plural": func(n int, singular, plural string) string {
			if n == 1 {
				return singular
			}
			return plural
		},
		"join":  strings.Join,
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"default": func(fallback, value any) any {
			if value == nil {
				return fallback
			}
			if s, ok := value.(string); ok && s == "" {
				return fallback
			}
			return value
		},
	}
}
