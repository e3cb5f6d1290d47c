// Package workflow ties the pieces of a selection session together: one
// browser page, one navigation tree, one selector store, one fact log. Every
// mutation goes through the Session lock, so the mailbox controller, the CLI,
// and MCP tools can share the same state safely.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"fieldlens/internal/browser"
	"fieldlens/internal/factlog"
	"fieldlens/internal/mailbox"
	"fieldlens/internal/picker"
	"fieldlens/internal/recorder"
	"fieldlens/internal/schema"
	"fieldlens/internal/selection"
	"fieldlens/internal/selector"

	"github.com/google/uuid"
)

// FieldStatus is one row of the per-site status report.
type FieldStatus struct {
	Selector    selector.SiteFieldSelector `json:"selector"`
	SuccessRate float64                    `json:"success_rate"`
}

// Session is the shared mutable state of one selection run.
type Session struct {
	ID string

	mu      sync.Mutex
	schema  *schema.Schema
	nav     *selection.Navigator
	store   *selector.Store
	tester  *selector.Tester
	facts   *factlog.Engine
	rec     *recorder.Recorder
	browser *browser.Manager
	domain  string
	pageURL string

	// OnChange is called with the fresh view after every applied navigation
	// action, outside the session lock. Used to re-render the page menu.
	OnChange func(view selection.MenuView)
}

// Options carries the session dependencies; Facts, Rec, and Browser may be
// nil for headless unit use. Domain and PageURL override what the browser
// reports, for sessions that run without one.
type Options struct {
	Schema  *schema.Schema
	Store   *selector.Store
	Tester  *selector.Tester
	Facts   *factlog.Engine
	Rec     *recorder.Recorder
	Browser *browser.Manager
	Domain  string
	PageURL string
}

// NewSession builds a session positioned at the schema root.
func NewSession(opts Options) *Session {
	return &Session{
		ID:      uuid.NewString(),
		schema:  opts.Schema,
		nav:     selection.NewNavigator(opts.Schema),
		store:   opts.Store,
		tester:  opts.Tester,
		facts:   opts.Facts,
		rec:     opts.Rec,
		browser: opts.Browser,
		domain:  opts.Domain,
		pageURL: opts.PageURL,
	}
}

// Satisfies mailbox.Navigator so the poll loop drives this session directly.
var _ mailbox.Navigator = (*Session)(nil)

// NavigateToParent pops one level; rejected at root.
func (s *Session) NavigateToParent() error {
	return s.applyNav(mailbox.Action{Kind: mailbox.NavigateToParent}, func() error {
		return s.nav.NavigateToParent()
	})
}

// EnterNestedField descends into (field, instance).
func (s *Session) EnterNestedField(field string, instance int) error {
	return s.applyNav(mailbox.Action{Kind: mailbox.EnterNestedField, Field: field, Instance: instance}, func() error {
		return s.nav.EnterNestedField(field, instance)
	})
}

// NavigateToDepth ascends to an absolute depth.
func (s *Session) NavigateToDepth(depth int) error {
	return s.applyNav(mailbox.Action{Kind: mailbox.NavigateToDepth, Depth: depth}, func() error {
		return s.nav.NavigateToDepth(depth)
	})
}

// AddInstance enters the next sibling instance of the current nested field.
func (s *Session) AddInstance(field string) (int, error) {
	var next int
	err := s.applyNav(mailbox.Action{Kind: mailbox.AddInstance, Field: field}, func() error {
		var err error
		next, err = s.nav.AddInstance(field)
		return err
	})
	return next, err
}

// applyNav runs one mutation under the lock, records the outcome, and fires
// OnChange with the new view when the action applied.
func (s *Session) applyNav(a mailbox.Action, mutate func() error) error {
	s.mu.Lock()
	err := mutate()
	var view selection.MenuView
	if err == nil {
		view = s.nav.View()
	}
	s.mu.Unlock()

	if err != nil {
		s.trace(recorder.EventActionRejected, map[string]string{
			"action": a.String(), "error": err.Error(),
		})
		return err
	}

	s.logFact(factlog.PredNavigationAction, string(a.Kind), a.Field, int64(a.Instance), int64(view.Depth))
	s.trace(recorder.EventActionApplied, map[string]interface{}{
		"action": a.String(), "depth": view.Depth,
	})
	if s.OnChange != nil {
		s.OnChange(view)
	}
	return nil
}

// View projects the current position for menus and status displays.
func (s *Session) View() selection.MenuView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.View()
}

// ContextPath returns the current context's path string ("" at root).
func (s *Session) ContextPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Current().Path()
}

// RecordSelection stores one captured click against the current context. The
// best XPath candidate is chosen by score before recording.
func (s *Session) RecordSelection(sel picker.Selection) error {
	xpath := selector.ChooseBestSelector(sel.Candidates(), nil)

	s.mu.Lock()
	err := s.nav.AddSelection(selection.Record{
		FieldName:   sel.Field,
		XPath:       xpath,
		CSSSelector: sel.CSSSelector,
		Text:        sel.Text,
		CapturedAt:  time.Now(),
	})
	path := s.nav.Current().Path()
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.logFact(factlog.PredSelectionEvent, sel.Field, path, xpath)
	s.trace(recorder.EventSelectionRecorded, map[string]string{
		"field": sel.Field, "path": path, "xpath": xpath,
	})
	log.Printf("session: recorded %s at %q -> %s", sel.Field, path, xpath)
	return nil
}

// CaptureFromPage resolves a probe selector (XPath or CSS) against the picker
// page, derives canonical selectors for the first match, and records it like
// an operator click.
func (s *Session) CaptureFromPage(ctx context.Context, field, probe string) (picker.Selection, error) {
	if s.browser == nil {
		return picker.Selection{}, errors.New("browser not configured")
	}
	page, ok := s.browser.Page()
	if !ok {
		return picker.Selection{}, errors.New("no page loaded")
	}

	els, err := browser.FindElements(page.Context(ctx), probe)
	if err != nil {
		return picker.Selection{}, fmt.Errorf("resolve probe %q: %w", probe, err)
	}
	if len(els) == 0 {
		return picker.Selection{}, fmt.Errorf("probe %q matched no elements", probe)
	}
	el := els[0]

	xpath, err := browser.ComputeXPath(el)
	if err != nil {
		return picker.Selection{}, fmt.Errorf("compute xpath: %w", err)
	}
	absXPath, err := el.GetXPath(false)
	if err != nil {
		absXPath = xpath
	}
	css, err := browser.ComputeCSSSelector(el)
	if err != nil {
		css = ""
	}
	text, err := browser.ElementText(el)
	if err != nil {
		text = ""
	}

	sel := picker.Selection{
		Field:         field,
		XPath:         xpath,
		AbsoluteXPath: absXPath,
		CSSSelector:   css,
		Text:          strings.TrimSpace(text),
	}
	return sel, s.RecordSelection(sel)
}

// SaveField persists the latest recorded selection for a field in the current
// context, keyed by the current site domain.
func (s *Session) SaveField(field string) (*selector.SiteFieldSelector, error) {
	domain, err := s.currentDomain()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	records := s.nav.Current().RecordsFor(field)
	path := s.nav.Current().Path()
	s.mu.Unlock()

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %q at %q", selection.ErrNoCandidateSelections, field, path)
	}
	latest := records[len(records)-1]

	saved, err := s.store.Save(selector.SiteFieldSelector{
		SiteDomain:  domain,
		FieldName:   field,
		ContextPath: path,
		XPath:       latest.XPath,
		CSSSelector: latest.CSSSelector,
		SampleText:  latest.Text,
	})
	if err != nil {
		return nil, err
	}

	s.logFact(factlog.PredSelectorSaved, domain, field, path)
	s.trace(recorder.EventSelectorSaved, map[string]string{
		"domain": domain, "field": field, "path": path,
	})
	return saved, nil
}

// MarkManual flags a field for manual data entry on the current site.
func (s *Session) MarkManual(field, note string) (*selector.SiteFieldSelector, error) {
	domain, err := s.currentDomain()
	if err != nil {
		return nil, err
	}
	return s.store.MarkManual(domain, field, s.ContextPath(), note)
}

// TestField verifies the stored selector for a field in the current context
// against the loaded page.
func (s *Session) TestField(ctx context.Context, field string) (*selector.TestResult, error) {
	domain, err := s.currentDomain()
	if err != nil {
		return nil, err
	}
	pageURL := s.currentPageURL()
	path := s.ContextPath()

	sel, err := s.store.Get(domain, field, path)
	if err != nil {
		return nil, err
	}

	result, err := s.tester.TestOnPage(ctx, pageURL, sel)
	if err != nil {
		return nil, err
	}

	s.logFact(factlog.PredSelectorTest, domain, field, path, outcome(result.Success))
	s.trace(recorder.EventSelectorTested, map[string]interface{}{
		"field": field, "path": path, "success": result.Success, "matches": result.MatchCount,
	})
	return result, nil
}

// TestAll verifies every selector stored for the current site against the
// loaded page, keyed by display key.
func (s *Session) TestAll(ctx context.Context) (map[string]*selector.TestResult, error) {
	domain, err := s.currentDomain()
	if err != nil {
		return nil, err
	}
	pageURL := s.currentPageURL()

	results, err := s.tester.TestAllOnPage(ctx, pageURL, domain)
	if err != nil {
		return nil, err
	}

	for key, result := range results {
		s.logFact(factlog.PredSelectorTest, domain, key, "", outcome(result.Success))
	}
	s.trace(recorder.EventSelectorTested, map[string]interface{}{
		"domain": domain, "count": len(results),
	})
	return results, nil
}

// Status reports every selector stored for the current site with its
// historical success rate.
func (s *Session) Status() ([]FieldStatus, error) {
	domain, err := s.currentDomain()
	if err != nil {
		return nil, err
	}

	selectors, err := s.store.ListForDomain(domain)
	if err != nil {
		return nil, err
	}

	statuses := make([]FieldStatus, 0, len(selectors))
	for _, sel := range selectors {
		rate, err := s.store.SuccessRate(sel.ID)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, FieldStatus{Selector: sel, SuccessRate: rate})
	}
	return statuses, nil
}

// QueryFacts runs a Mangle query over the session fact log.
func (s *Session) QueryFacts(query string) ([]factlog.QueryResult, error) {
	if s.facts == nil {
		return nil, errors.New("fact log not configured")
	}
	return s.facts.Query(query)
}

// LoadPage navigates the picker page and traces the load.
func (s *Session) LoadPage(ctx context.Context, url string) error {
	if s.browser == nil {
		return errors.New("browser not configured")
	}
	if err := s.browser.LoadPage(ctx, url, 0); err != nil {
		return err
	}
	s.trace(recorder.EventPageLoaded, map[string]string{"url": url})
	return nil
}

func (s *Session) currentDomain() (string, error) {
	if url := s.currentPageURL(); url != "" {
		return browser.Domain(url)
	}
	if s.domain != "" {
		return s.domain, nil
	}
	return "", errors.New("no page loaded")
}

func (s *Session) currentPageURL() string {
	if s.browser != nil {
		if url := s.browser.CurrentURL(); url != "" {
			return url
		}
	}
	return s.pageURL
}

func (s *Session) logFact(predicate string, args ...interface{}) {
	if s.facts == nil {
		return
	}
	if err := s.facts.Record(predicate, args...); err != nil {
		log.Printf("session: fact log error: %v", err)
	}
}

func (s *Session) trace(eventType string, data interface{}) {
	if s.rec == nil {
		return
	}
	s.rec.Log(eventType, s.ID, data)
}

func outcome(success bool) string {
	if success {
		return "passed"
	}
	return "failed"
}
