package templates

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestBuiltInTemplate(t *testing.T) {
	t.Parallel()
	logger, _ := test.NewNullLogger()
	r, err := NewRenderer("", "", logger)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	if r.Subject() != DefaultSubject {
		t.Fatalf("Subject() = %q", r.Subject())
	}
	body, err := r.RenderReminderBody(context.Background())
	if err != nil {
		t.Fatalf("RenderReminderBody() error = %v", err)
	}
	if !strings.Contains(body, "<h2>Your reminder</h2>") {
		t.Fatalf("body = %s", body)
	}
}

func TestTemplateFileAndOverride(t *testing.T) {
	t.Parallel()
	logger, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "reminder.yaml")
	doc := "subject: Weekly review\nbody: |\n  <p>{{ .Subject }} &amp; notes</p>\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := NewRenderer(path, "", logger)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	body, err := r.RenderReminderBody(context.Background())
	if err != nil || strings.TrimSpace(body) != "<p>Weekly review &amp; notes</p>" {
		t.Fatalf("RenderReminderBody() = %q, %v", body, err)
	}

	r, err = NewRenderer(path, "Overridden <subject>", logger)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	body, _ = r.RenderReminderBody(context.Background())
	if !strings.Contains(body, "Overridden &lt;subject&gt;") {
		t.Fatalf("subject must be HTML-escaped in the body, got %q", body)
	}
}

func TestReloadKeepsPreviousOnError(t *testing.T) {
	t.Parallel()
	logger, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "reminder.yaml")
	if err := os.WriteFile(path, []byte("subject: One\nbody: <p>one</p>\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := NewRenderer(path, "", logger)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("subject: Two\nbody: <p>{{ .Broken </p>\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err == nil {
		t.Fatal("Reload() accepted a broken template")
	}
	if r.Subject() != "One" {
		t.Fatalf("Subject() = %q after failed reload", r.Subject())
	}

	if err := os.WriteFile(path, []byte("subject: Two\nbody: <p>two</p>\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if r.Subject() != "Two" {
		t.Fatalf("Subject() = %q", r.Subject())
	}
}

func TestParseRequiresSubjectAndBody(t *testing.T) {
	t.Parallel()
	for _, doc := range []string{"body: <p>x</p>", "subject: x", "[not a map"} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("Parse(%q) succeeded", doc)
		}
	}
}
