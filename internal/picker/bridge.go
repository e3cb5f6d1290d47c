// Package picker injects the in-page selection surface: a floating menu that
// mirrors the current navigation state, click capture that turns DOM elements
// into selector candidates, and the single-slot action hand-off the controller
// polls. All page-side state lives under window.__fieldlensData.
package picker

import (
	"context"
	"encoding/json"
	"fmt"

	"fieldlens/internal/browser"
	"fieldlens/internal/mailbox"
	"fieldlens/internal/schema"
	"fieldlens/internal/selection"

	"github.com/go-rod/rod"
)

// Selection is one captured click, with every selector form the page could
// compute for the element. The id-anchored XPath is preferred when present.
type Selection struct {
	Field         string `json:"field"`
	XPath         string `json:"xpath"`
	AbsoluteXPath string `json:"abs_xpath"`
	CSSSelector   string `json:"css"`
	Text          string `json:"text"`
}

// Candidates returns the XPath forms in preference order for scoring.
func (s Selection) Candidates() []string {
	return []string{s.XPath, s.AbsoluteXPath}
}

// Bridge talks to the injected page script.
type Bridge struct {
	mgr *browser.Manager
}

// NewBridge wraps the browser manager's active picker page.
func NewBridge(mgr *browser.Manager) *Bridge {
	return &Bridge{mgr: mgr}
}

// hookJS installs the page-side state and the capture-phase click handler.
// Clicks land in the selection buffer only while a field is armed from the
// menu; menu clicks themselves are ignored.
const hookJS = `
() => {
	const w = window;
	if (w.__fieldlensHooked) return true;
	w.__fieldlensHooked = true;
	w.__fieldlensData = { pendingAction: null, selections: [], activeField: null };

	const xpathFor = (el) => {
		if (el.id) return "//*[@id='" + el.id + "']";
		return absXpathFor(el);
	};
	const absXpathFor = (el) => {
		const parts = [];
		while (el && el.nodeType === 1) {
			let idx = 1;
			let sib = el.previousElementSibling;
			while (sib) {
				if (sib.tagName === el.tagName) idx++;
				sib = sib.previousElementSibling;
			}
			parts.unshift(el.tagName.toLowerCase() + '[' + idx + ']');
			el = el.parentElement;
		}
		return '/' + parts.join('/');
	};
	const esc = (s) => (w.CSS && CSS.escape) ? CSS.escape(s) : s;
	const cssFor = (el) => {
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
	};

	document.addEventListener('click', (ev) => {
		try {
			const d = w.__fieldlensData;
			if (!d.activeField) return;
			const el = ev.target;
			if (!el || el.closest('#__fieldlens_menu')) return;
			ev.preventDefault();
			ev.stopPropagation();
			d.selections.push({
				field: d.activeField,
				xpath: xpathFor(el),
				abs_xpath: absXpathFor(el),
				css: cssFor(el),
				text: (el.textContent || '').trim().slice(0, 500)
			});
			d.activeField = null;
			const menu = document.getElementById('__fieldlens_menu');
			if (menu) {
				menu.querySelectorAll('button[data-armed]').forEach(b => b.removeAttribute('data-armed'));
				menu.querySelectorAll('button').forEach(b => b.style.fontWeight = 'normal');
			}
		} catch (e) {}
	}, true);
	return true;
}
`

// drainActionJS reads and clears the pending action slot.
const drainActionJS = `
() => {
	const d = window.__fieldlensData;
	if (!d || !d.pendingAction) return null;
	const a = d.pendingAction;
	d.pendingAction = null;
	return a;
}
`

// drainSelectionsJS reads and clears the captured selection buffer.
const drainSelectionsJS = `
() => {
	const d = window.__fieldlensData;
	if (!d || !Array.isArray(d.selections)) return [];
	const buf = d.selections;
	d.selections = [];
	return buf;
}
`

// renderMenuJS rebuilds the floating menu from a JSON projection of the
// navigation state. Field buttons either arm click capture (leaf fields) or
// post an enter action (nested fields); breadcrumbs post depth jumps.
const renderMenuJS = `
(payload) => {
	const view = JSON.parse(payload);
	const w = window;
	if (!w.__fieldlensData) return false;

	let menu = document.getElementById('__fieldlens_menu');
	if (!menu) {
		menu = document.createElement('div');
		menu.id = '__fieldlens_menu';
		menu.style.cssText = 'position:fixed;top:12px;right:12px;z-index:2147483647;' +
			'background:#fff;color:#222;font:13px/1.5 sans-serif;padding:10px;' +
			'border-radius:6px;box-shadow:0 2px 12px rgba(0,0,0,.35);max-width:280px;';
		document.documentElement.appendChild(menu);
	}
	menu.style.border = '3px solid ' + view.depth_color;
	menu.innerHTML = '';

	const post = (action) => { w.__fieldlensData.pendingAction = action; };

	const crumbs = document.createElement('div');
	crumbs.style.cssText = 'margin-bottom:6px;word-break:break-all;';
	view.breadcrumbs.forEach((crumb, i) => {
		const b = document.createElement('button');
		b.textContent = crumb;
		b.style.cssText = 'margin-right:4px;cursor:pointer;';
		b.addEventListener('click', (ev) => {
			ev.stopPropagation();
			post({ type: 'navigate_to_depth', depth: i });
		});
		crumbs.appendChild(b);
		if (i < view.breadcrumbs.length - 1) crumbs.appendChild(document.createTextNode(' > '));
	});
	menu.appendChild(crumbs);

	if (view.depth > 0) {
		const up = document.createElement('button');
		up.textContent = '↑ parent';
		up.style.cssText = 'margin-bottom:6px;cursor:pointer;';
		up.addEventListener('click', (ev) => {
			ev.stopPropagation();
			post({ type: 'navigate_to_parent' });
		});
		menu.appendChild(up);

		const add = document.createElement('button');
		add.textContent = '+ instance';
		add.style.cssText = 'margin:0 0 6px 4px;cursor:pointer;';
		add.addEventListener('click', (ev) => {
			ev.stopPropagation();
			post({ type: 'add_instance', field_name: view.current_field });
		});
		menu.appendChild(add);
	}

	const list = document.createElement('div');
	view.fields.forEach((f) => {
		const row = document.createElement('div');
		const b = document.createElement('button');
		b.textContent = (f.nested ? '▸ ' : '') + (f.label || f.name);
		b.style.cssText = 'width:100%;text-align:left;margin:1px 0;cursor:pointer;';
		b.addEventListener('click', (ev) => {
			ev.stopPropagation();
			if (f.nested) {
				post({ type: 'enter_nested_field', field_name: f.name, instance_index: 0 });
			} else {
				w.__fieldlensData.activeField = f.name;
				list.querySelectorAll('button').forEach(o => o.style.fontWeight = 'normal');
				b.style.fontWeight = 'bold';
				b.setAttribute('data-armed', '1');
			}
		});
		row.appendChild(b);
		list.appendChild(row);
	});
	menu.appendChild(list);
	return true;
}
`

// Install hooks the active page; safe to call repeatedly.
func (b *Bridge) Install(ctx context.Context) error {
	page, ok := b.mgr.Page()
	if !ok {
		return fmt.Errorf("no active page")
	}
	_, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           hookJS,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("install picker hook: %w", err)
	}
	return nil
}

// FetchAction drains the page-side action slot. Returns nil when nothing is
// pending, which is the normal idle case.
func (b *Bridge) FetchAction(ctx context.Context) (*mailbox.Action, error) {
	page, ok := b.mgr.Page()
	if !ok {
		return nil, fmt.Errorf("no active page")
	}
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           drainActionJS,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("drain action: %w", err)
	}
	if res == nil || res.Value.Nil() {
		return nil, nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}
	return decodeAction(raw)
}

// DrainSelections drains captured clicks from the page buffer.
func (b *Bridge) DrainSelections(ctx context.Context) ([]Selection, error) {
	page, ok := b.mgr.Page()
	if !ok {
		return nil, fmt.Errorf("no active page")
	}
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           drainSelectionsJS,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("drain selections: %w", err)
	}
	if res == nil || res.Value.Nil() {
		return nil, nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal selections: %w", err)
	}
	return decodeSelections(raw)
}

// RenderMenu rebuilds the floating menu from the given navigation view. The
// hook is re-installed first so the menu survives page reloads.
func (b *Bridge) RenderMenu(ctx context.Context, view selection.MenuView) error {
	if err := b.Install(ctx); err != nil {
		return err
	}
	page, ok := b.mgr.Page()
	if !ok {
		return fmt.Errorf("no active page")
	}

	payload, err := menuPayload(view)
	if err != nil {
		return err
	}
	_, err = page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           renderMenuJS,
		JSArgs:       []interface{}{string(payload)},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("render menu: %w", err)
	}
	return nil
}

type menuField struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Nested bool   `json:"nested"`
}

type menuView struct {
	Depth        int         `json:"depth"`
	Breadcrumbs  []string    `json:"breadcrumbs"`
	DepthColor   string      `json:"depth_color"`
	CurrentField string      `json:"current_field"`
	Fields       []menuField `json:"fields"`
}

// menuPayload projects the navigation view into the JSON shape the page
// script consumes.
func menuPayload(view selection.MenuView) ([]byte, error) {
	out := menuView{
		Depth:        view.Depth,
		Breadcrumbs:  view.Breadcrumbs,
		DepthColor:   view.DepthColor,
		CurrentField: view.CurrentField,
		Fields:       make([]menuField, 0, len(view.Fields)),
	}
	for _, f := range view.Fields {
		out.Fields = append(out.Fields, menuField{
			Name:   f.Name,
			Label:  f.Label,
			Nested: f.Cardinality == string(schema.Nested),
		})
	}
	return json.Marshal(out)
}

func decodeAction(raw []byte) (*mailbox.Action, error) {
	var a mailbox.Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	if a.Kind == "" {
		return nil, nil
	}
	return &a, nil
}

func decodeSelections(raw []byte) ([]Selection, error) {
	var sels []Selection
	if err := json.Unmarshal(raw, &sels); err != nil {
		return nil, fmt.Errorf("decode selections: %w", err)
	}
	return sels, nil
}
