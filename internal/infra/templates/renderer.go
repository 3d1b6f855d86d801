// Package templates renders the reminder e-mail content.
package templates

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSubject = "Your reminder"
	defaultBody    = `<!DOCTYPE html>
<html>
  <body>
    <h2>{{ .Subject }}</h2>
    <p>This is your scheduled reminder. Take a moment for it now.</p>
    <p style="color:#888;font-size:12px">You receive this because you set up a reminder. Change or cancel it in your settings.</p>
  </body>
</html>`
)

// Document is the YAML layout of a template file.
type Document struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type data struct {
	Subject string
}

// Renderer holds the active subject and body template. Reload swaps both atomically.
type Renderer struct {
	mu              sync.RWMutex
	path            string
	subjectOverride string
	subject         string
	body            *template.Template
	logger          logrus.FieldLogger
}

// NewRenderer loads the template file at path, or the built-in template when path is empty.
// A non-empty subject overrides the file's subject.
func NewRenderer(path, subject string, logger logrus.FieldLogger) (*Renderer, error) {
	r := &Renderer{path: path, subjectOverride: subject, logger: logger}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path is the watched template file, empty for the built-in template.
func (r *Renderer) Path() string { return r.path }

func (r *Renderer) Reload() error {
	doc := Document{Subject: DefaultSubject, Body: defaultBody}
	if r.path != "" {
		raw, err := os.ReadFile(r.path)
		if err != nil {
			return fmt.Errorf("read template file: %w", err)
		}
		if doc, err = Parse(raw); err != nil {
			return fmt.Errorf("%s: %w", r.path, err)
		}
	}
	if r.subjectOverride != "" {
		doc.Subject = r.subjectOverride
	}

	body, err := template.New("body").Option("missingkey=error").Parse(doc.Body)
	if err != nil {
		return fmt.Errorf("parse body template: %w", err)
	}

	r.mu.Lock()
	r.subject, r.body = doc.Subject, body
	r.mu.Unlock()
	r.logger.WithField("subject", doc.Subject).Debug("Reminder template loaded")
	return nil
}

// Parse decodes a template document and checks both parts are present.
func Parse(raw []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode template document: %w", err)
	}
	if strings.TrimSpace(doc.Subject) == "" {
		return Document{}, fmt.Errorf("template document has no subject")
	}
	if strings.TrimSpace(doc.Body) == "" {
		return Document{}, fmt.Errorf("template document has no body")
	}
	return doc, nil
}

func (r *Renderer) Subject() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subject
}

func (r *Renderer) RenderReminderBody(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.RLock()
	subject, body := r.subject, r.body
	r.mu.RUnlock()

	var buf bytes.Buffer
	if err := body.Execute(&buf, data{Subject: subject}); err != nil {
		return "", fmt.Errorf("render reminder body: %w", err)
	}
	return buf.String(), nil
}
