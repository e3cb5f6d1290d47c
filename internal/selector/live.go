package selector

import (
	"context"
	"strings"
	"time"

	"fieldlens/internal/browser"

	"github.com/go-rod/rod"
)

// LiveLoader builds a LoadFunc that opens a throwaway Chrome page per run.
// This is the authoritative tester: it sees the DOM after scripts ran, which
// static fetching cannot.
func LiveLoader(mgr *browser.Manager) LoadFunc {
	return func(ctx context.Context, url string, timeout time.Duration) (PageSession, error) {
		page, err := mgr.OpenPage(ctx, url, timeout)
		if err != nil {
			return nil, err
		}
		return &livePage{page: page}, nil
	}
}

type livePage struct {
	page *rod.Page
}

func (p *livePage) EvalXPath(xpath string) ([]string, error) {
	return p.eval(xpath)
}

func (p *livePage) EvalCSS(css string) ([]string, error) {
	return p.eval(css)
}

func (p *livePage) eval(sel string) ([]string, error) {
	els, err := browser.FindElements(p.page, sel)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		text, err := browser.ElementText(el)
		if err != nil {
			continue
		}
		texts = append(texts, strings.TrimSpace(text))
	}
	return texts, nil
}

func (p *livePage) Close() error {
	return p.page.Close()
}
