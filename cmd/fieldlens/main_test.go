package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fieldlens/internal/picker"
	"fieldlens/internal/schema"
	"fieldlens/internal/selector"
	"fieldlens/internal/workflow"
)

type stubPage struct{ texts []string }

func (p *stubPage) EvalXPath(string) ([]string, error) { return p.texts, nil }
func (p *stubPage) EvalCSS(string) ([]string, error)   { return p.texts, nil }
func (p *stubPage) Close() error                       { return nil }

func cliSession(t *testing.T, texts []string) *workflow.Session {
	t.Helper()

	store, err := selector.NewStore(filepath.Join(t.TempDir(), "selectors.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	tester := &selector.Tester{
		Store: store,
		Load: func(context.Context, string, time.Duration) (selector.PageSession, error) {
			return &stubPage{texts: texts}, nil
		},
	}

	return workflow.NewSession(workflow.Options{
		Schema:  schema.Default(),
		Store:   store,
		Tester:  tester,
		Domain:  "example.com",
		PageURL: "https://example.com/product/1",
	})
}

func saveTitle(t *testing.T, sess *workflow.Session) {
	t.Helper()
	if err := sess.RecordSelection(picker.Selection{
		Field: "title", XPath: "//*[@id='title']", Text: "Excavator X200",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := sess.SaveField("title"); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestTestCommandPassingSelector(t *testing.T) {
	sess := cliSession(t, []string{"Excavator X200"})
	saveTitle(t, sess)

	if err := runCommand(context.Background(), sess, []string{"test", "title"}); err != nil {
		t.Errorf("passing test must not error: %v", err)
	}
}

func TestTestCommandFailedSelectorReturnsError(t *testing.T) {
	sess := cliSession(t, nil)
	saveTitle(t, sess)

	if err := runCommand(context.Background(), sess, []string{"test", "title"}); err == nil {
		t.Error("a failed selector test must return an error so one-shot mode exits 1")
	}
}

func TestTestAllCommandFailedSelectorReturnsError(t *testing.T) {
	sess := cliSession(t, nil)
	saveTitle(t, sess)

	if err := runCommand(context.Background(), sess, []string{"test-all"}); err == nil {
		t.Error("test-all with failures must return an error so one-shot mode exits 1")
	}
}
