package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Review {{.EventLabel}}]
System: {{.System}}
Snapshot: {{.SnapshotID}}
Outcome: {{.Kind}}
Reason: {{.Reason}}
{{ if .Candidates }}Candidates: {{.Candidates}}
{{ end }}Opened: {{.OpenedAt}}
Current Status: {{.Status}}
{{ if .QueueURL }}
Queue: {{.QueueURL}}
{{ end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	System     string
	SystemID   string
	SnapshotID string
	Kind       string
	Reason     string
	Candidates string
	OpenedAt   string
	Status     string
	QueueURL   string
	Event      string
	EventLabel string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("review-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("review template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
