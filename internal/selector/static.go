package selector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrXPathUnsupported marks XPath evaluation on a statically fetched page;
// the tester falls back to the CSS selector when it sees this.
var ErrXPathUnsupported = errors.New("xpath evaluation requires a live browser page")

// StaticLoader builds a LoadFunc that fetches raw HTML over HTTP and parses
// it with goquery. Cheaper than a browser page, but blind to script-rendered
// content, so it only supports CSS selectors.
func StaticLoader(client *http.Client) LoadFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, url string, timeout time.Duration) (PageSession, error) {
		reqCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", url, err)
		}
		return &staticPage{doc: doc}, nil
	}
}

type staticPage struct {
	doc *goquery.Document
}

func (p *staticPage) EvalXPath(string) ([]string, error) {
	return nil, ErrXPathUnsupported
}

func (p *staticPage) EvalCSS(css string) ([]string, error) {
	var texts []string
	p.doc.Find(css).Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(s.Text()))
	})
	return texts, nil
}

func (p *staticPage) Close() error { return nil }
