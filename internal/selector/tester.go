package selector

import (
	"context"
	"log"
	"time"
	"unicode/utf8"
)

// PageSession is one loaded page a tester can evaluate selectors against.
// Implementations return the visible text of every match; zero matches is a
// normal outcome, not an error.
type PageSession interface {
	EvalXPath(xpath string) ([]string, error)
	EvalCSS(css string) ([]string, error)
	Close() error
}

// LoadFunc opens a page for a verification run. The live implementation wraps
// the Rod browser manager; the static one fetches and parses HTML directly.
type LoadFunc func(ctx context.Context, url string, timeout time.Duration) (PageSession, error)

// PreviewLimit caps the extracted text stored with each test result.
const PreviewLimit = 200

// Tester runs stored selectors against pages and records the outcomes.
type Tester struct {
	Store *Store
	Load  LoadFunc

	// Timeout bounds one page load. Defaults to 30s when zero.
	Timeout time.Duration
}

// TestOnPage verifies one stored selector against a page. The XPath is tried
// first; when it errors or matches nothing the CSS selector is the fallback.
// Zero matches, evaluation failures, and page-load timeouts all produce a
// failed result rather than an error — the result is recorded in the history
// either way. Only recording failures surface as errors.
func (t *Tester) TestOnPage(ctx context.Context, pageURL string, sel *SiteFieldSelector) (*TestResult, error) {
	result := TestResult{SelectorID: sel.ID, TestedAt: time.Now().UTC()}

	session, err := t.Load(ctx, pageURL, t.timeout())
	if err != nil {
		result.Error = err.Error()
		return t.Store.RecordTestResult(result)
	}
	defer session.Close()

	t.evaluate(session, sel, &result)
	return t.Store.RecordTestResult(result)
}

// TestAllOnPage loads the page once and verifies every selector stored for
// the site against it. The returned map is keyed by the selector display key
// (field name, qualified by context path for nested fields). Selectors marked
// manual-only with nothing stored are skipped.
func (t *Tester) TestAllOnPage(ctx context.Context, pageURL, siteDomain string) (map[string]*TestResult, error) {
	selectors, err := t.Store.ListForDomain(siteDomain)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*TestResult, len(selectors))

	session, loadErr := t.Load(ctx, pageURL, t.timeout())
	if session != nil {
		defer session.Close()
	}

	for i := range selectors {
		sel := &selectors[i]
		if !sel.HasSelectors() {
			log.Printf("selector: skipping %s (manual entry, nothing to test)", sel.Key())
			continue
		}

		result := TestResult{SelectorID: sel.ID, TestedAt: time.Now().UTC()}
		if loadErr != nil {
			result.Error = loadErr.Error()
		} else {
			t.evaluate(session, sel, &result)
		}

		recorded, err := t.Store.RecordTestResult(result)
		if err != nil {
			return results, err
		}
		results[sel.Key()] = recorded
	}
	return results, nil
}

// evaluate fills in match count, preview, and success from the session.
func (t *Tester) evaluate(session PageSession, sel *SiteFieldSelector, result *TestResult) {
	var texts []string

	if sel.XPath != "" {
		found, err := session.EvalXPath(sel.XPath)
		if err != nil {
			result.Error = err.Error()
		} else {
			texts = found
		}
	}

	if len(texts) == 0 && sel.CSSSelector != "" {
		found, err := session.EvalCSS(sel.CSSSelector)
		if err != nil {
			if result.Error == "" {
				result.Error = err.Error()
			}
		} else if len(found) > 0 {
			texts = found
			result.Error = ""
		}
	}

	result.MatchCount = len(texts)
	result.Success = len(texts) > 0
	if result.Success {
		result.ExtractedPreview = truncate(texts[0], PreviewLimit)
		result.Error = ""
	}
}

func (t *Tester) timeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return 30 * time.Second
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
