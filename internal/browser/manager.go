// Package browser wraps Rod with the small surface the selector tool needs: a
// single picker page where the operator clicks elements, plus throwaway pages
// for selector verification runs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"fieldlens/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// Manager owns the Chrome connection and the active picker page.
type Manager struct {
	cfg config.BrowserConfig

	mu         sync.RWMutex
	browser    *rod.Browser
	controlURL string
	page       *rod.Page
	pageURL    string
}

// NewManager builds an unconnected manager; call Start before use.
func NewManager(cfg config.BrowserConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Start connects to an existing Chrome or launches a new one using Rod's launcher.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		log.Printf("browser: stale connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.page = nil
		m.pageURL = ""
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" && len(m.cfg.Launch) > 0 {
		bin := m.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
		for _, rawFlag := range m.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fallback: let Rod pick the port and defaults.
			fallback := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
			if alt, altErr := fallback.Launch(); altErr == nil {
				controlURL = alt
			} else {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
		} else {
			controlURL = url
		}
	}

	if controlURL == "" {
		return errors.New("no debugger_url or launch command provided")
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	log.Printf("browser: connected at %s", controlURL)
	return nil
}

// ControlURL returns the WebSocket debugger URL for the connected browser.
func (m *Manager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected reports whether the browser is currently connected.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown closes the picker page and the underlying browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.page != nil {
		_ = m.page.Close()
		m.page = nil
		m.pageURL = ""
	}

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	log.Printf("browser: shutdown complete")
	return err
}

// LoadPage navigates the picker page to the given URL, creating it on first
// use. The previous page content is replaced; any injected menu must be
// re-rendered by the caller.
func (m *Manager) LoadPage(ctx context.Context, pageURL string, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return errors.New("browser not connected")
	}
	if timeout <= 0 {
		timeout = m.cfg.LoadTimeout()
	}

	if m.page == nil {
		page, err := m.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return fmt.Errorf("create page: %w", err)
		}
		m.page = page
	}

	page := m.page.Context(ctx).Timeout(timeout)
	if err := page.Navigate(pageURL); err != nil {
		return fmt.Errorf("navigate to %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s: %w", pageURL, err)
	}

	m.pageURL = pageURL
	log.Printf("browser: loaded %s", pageURL)
	return nil
}

// Page returns the active picker page, if any.
func (m *Manager) Page() (*rod.Page, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.page == nil {
		return nil, false
	}
	return m.page, true
}

// CurrentURL returns the URL last loaded into the picker page.
func (m *Manager) CurrentURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pageURL
}

// OpenPage opens a fresh throwaway page for a verification run. The caller
// owns the page and must Close it.
func (m *Manager) OpenPage(ctx context.Context, pageURL string, timeout time.Duration) (*rod.Page, error) {
	m.mu.RLock()
	browser := m.browser
	m.mu.RUnlock()

	if browser == nil {
		return nil, errors.New("browser not connected")
	}
	if timeout <= 0 {
		timeout = m.cfg.LoadTimeout()
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	bounded := page.Context(ctx).Timeout(timeout)
	if err := bounded.Navigate(pageURL); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("navigate to %s: %w", pageURL, err)
	}
	if err := bounded.WaitLoad(); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("wait for %s: %w", pageURL, err)
	}
	return page, nil
}

// IsXPath reports whether a selector string should be evaluated as XPath
// rather than CSS. Everything starting with a slash, a dot-slash, or a
// parenthesized axis is treated as XPath.
func IsXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") ||
		strings.HasPrefix(selector, "./") ||
		strings.HasPrefix(selector, "(")
}

// FindElements resolves a selector against a page, dispatching on syntax.
func FindElements(page *rod.Page, selector string) (rod.Elements, error) {
	if IsXPath(selector) {
		return page.ElementsX(selector)
	}
	return page.Elements(selector)
}

// ElementText extracts the visible text of an element.
func ElementText(el *rod.Element) (string, error) {
	return el.Text()
}

// ComputeXPath asks the browser for an XPath locating the element. The
// optimized form prefers id-anchored paths over full positional chains.
func ComputeXPath(el *rod.Element) (string, error) {
	return el.GetXPath(true)
}

// cssPathJS walks up from the clicked element building a child-combinator
// path, stopping early at the nearest id anchor.
const cssPathJS = `() => {
	const esc = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : s;
	let el = this;
	const parts = [];
	while (el && el.nodeType === 1 && el !== document.documentElement) {
		let part = el.tagName.toLowerCase();
		if (el.id) {
			parts.unshift(part + '#' + esc(el.id));
			return parts.join(' > ');
		}
		if (typeof el.className === 'string') {
			const cls = el.className.trim().split(/\s+/)[0];
			if (cls) part += '.' + esc(cls);
		}
		const parent = el.parentElement;
		if (parent) {
			const same = Array.from(parent.children).filter(c => c.tagName === el.tagName);
			if (same.length > 1) part += ':nth-of-type(' + (same.indexOf(el) + 1) + ')';
		}
		parts.unshift(part);
		el = parent;
	}
	return parts.join(' > ');
}`

// ComputeCSSSelector derives a CSS selector for the element via injected JS.
func ComputeCSSSelector(el *rod.Element) (string, error) {
	result, err := el.Eval(cssPathJS)
	if err != nil {
		return "", fmt.Errorf("compute css selector: %w", err)
	}
	return result.Value.Str(), nil
}

// Domain extracts the site domain from a page URL, stripping any leading www
// so selectors saved for "www.example.com" and "example.com" share a key.
func Domain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return strings.TrimPrefix(host, "www."), nil
}
