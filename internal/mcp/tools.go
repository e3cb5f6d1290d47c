package mcp

import (
	"context"
	"fmt"

	"fieldlens/internal/picker"
	"fieldlens/internal/workflow"
)

type FieldMenuTool struct {
	session *workflow.Session
}

func (t *FieldMenuTool) Name() string { return "field-menu" }
func (t *FieldMenuTool) Description() string {
	return `Show the field menu at the current navigation position.

Returns the depth, breadcrumb trail, depth color, and the fields selectable
right now. Nested fields can be entered with the navigate tool; leaf fields
are captured with record-selection.`
}
func (t *FieldMenuTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *FieldMenuTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return t.session.View(), nil
}

type NavigateTool struct {
	session *workflow.Session
}

func (t *NavigateTool) Name() string { return "navigate" }
func (t *NavigateTool) Description() string {
	return `Move through the nested field structure.

ACTIONS:
- parent: go up one level (rejected at root)
- enter: descend into a nested field instance (field_name + instance_index)
- depth: ascend to an absolute depth via the breadcrumb trail
- add-instance: create and enter the next instance of the current nested field

Rejected actions leave the position unchanged and return an error.
Returns: the field menu at the new position.`
}
func (t *NavigateTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"parent", "enter", "depth", "add-instance"},
				"description": "Navigation action to apply",
			},
			"field_name": map[string]interface{}{
				"type":        "string",
				"description": "Nested field to enter or add an instance of",
			},
			"instance_index": map[string]interface{}{
				"type":        "integer",
				"description": "Instance index for enter (default 0)",
			},
			"depth": map[string]interface{}{
				"type":        "integer",
				"description": "Absolute target depth for the depth action",
			},
		},
		"required": []string{"action"},
	}
}
func (t *NavigateTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	var err error
	switch action := getStringArg(args, "action"); action {
	case "parent":
		err = t.session.NavigateToParent()
	case "enter":
		err = t.session.EnterNestedField(getStringArg(args, "field_name"), getIntArg(args, "instance_index", 0))
	case "depth":
		err = t.session.NavigateToDepth(getIntArg(args, "depth", 0))
	case "add-instance":
		_, err = t.session.AddInstance(getStringArg(args, "field_name"))
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		return nil, err
	}
	return t.session.View(), nil
}

type RecordSelectionTool struct {
	session *workflow.Session
}

func (t *RecordSelectionTool) Name() string { return "record-selection" }
func (t *RecordSelectionTool) Description() string {
	return `Record a selector candidate for a field at the current position.

Equivalent to the operator clicking an element on the page: the best XPath
candidate is chosen by score and attached to the current context. Use
save-selector afterwards to persist it.

Either pass the selectors directly (xpath/abs_xpath/css/text), or pass a probe
selector and the first matching element on the loaded page is captured.`
}
func (t *RecordSelectionTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"field_name": map[string]interface{}{
				"type":        "string",
				"description": "Field the selection belongs to",
			},
			"xpath": map[string]interface{}{
				"type":        "string",
				"description": "Preferred XPath (id-anchored when possible)",
			},
			"abs_xpath": map[string]interface{}{
				"type":        "string",
				"description": "Absolute positional XPath fallback",
			},
			"css": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector fallback",
			},
			"text": map[string]interface{}{
				"type":        "string",
				"description": "Sample text extracted from the element",
			},
			"probe": map[string]interface{}{
				"type":        "string",
				"description": "XPath or CSS selector to resolve on the loaded page instead of passing selectors directly",
			},
		},
		"required": []string{"field_name"},
	}
}
func (t *RecordSelectionTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	field := getStringArg(args, "field_name")

	if probe := getStringArg(args, "probe"); probe != "" {
		sel, err := t.session.CaptureFromPage(ctx, field, probe)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"recorded": sel.Field, "context_path": t.session.ContextPath(),
			"xpath": sel.XPath, "text": sel.Text,
		}, nil
	}

	sel := picker.Selection{
		Field:         field,
		XPath:         getStringArg(args, "xpath"),
		AbsoluteXPath: getStringArg(args, "abs_xpath"),
		CSSSelector:   getStringArg(args, "css"),
		Text:          getStringArg(args, "text"),
	}
	if err := t.session.RecordSelection(sel); err != nil {
		return nil, err
	}
	return map[string]interface{}{"recorded": sel.Field, "context_path": t.session.ContextPath()}, nil
}

type SaveSelectorTool struct {
	session *workflow.Session
}

func (t *SaveSelectorTool) Name() string { return "save-selector" }
func (t *SaveSelectorTool) Description() string {
	return `Persist the latest recorded selection for a field.

Upserts the (site, field, context path) row in the selector store; re-saving
replaces the stored selectors. Fails when no selection was recorded for the
field at the current position.`
}
func (t *SaveSelectorTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"field_name": map[string]interface{}{
				"type":        "string",
				"description": "Field whose latest selection should be saved",
			},
		},
		"required": []string{"field_name"},
	}
}
func (t *SaveSelectorTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	return t.session.SaveField(getStringArg(args, "field_name"))
}

type MarkManualTool struct {
	session *workflow.Session
}

func (t *MarkManualTool) Name() string { return "mark-manual" }
func (t *MarkManualTool) Description() string {
	return `Flag a field as requiring manual data entry on this site.

Use when the page has no stable markup for the field. Stored selectors are
cleared so the field drops out of test runs; a later save-selector clears
the flag.`
}
func (t *MarkManualTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"field_name": map[string]interface{}{
				"type":        "string",
				"description": "Field to flag",
			},
			"note": map[string]interface{}{
				"type":        "string",
				"description": "Why manual entry is needed",
			},
		},
		"required": []string{"field_name"},
	}
}
func (t *MarkManualTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	return t.session.MarkManual(getStringArg(args, "field_name"), getStringArg(args, "note"))
}

type TestSelectorTool struct {
	session *workflow.Session
}

func (t *TestSelectorTool) Name() string { return "test-selector" }
func (t *TestSelectorTool) Description() string {
	return `Verify the stored selector for a field against the loaded page.

XPath is tried first, CSS as fallback. Zero matches or a timeout is a failed
result, not an error; every run is appended to the selector's history.`
}
func (t *TestSelectorTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"field_name": map[string]interface{}{
				"type":        "string",
				"description": "Field to test at the current context path",
			},
		},
		"required": []string{"field_name"},
	}
}
func (t *TestSelectorTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return t.session.TestField(ctx, getStringArg(args, "field_name"))
}

type TestAllSelectorsTool struct {
	session *workflow.Session
}

func (t *TestAllSelectorsTool) Name() string { return "test-all-selectors" }
func (t *TestAllSelectorsTool) Description() string {
	return `Verify every selector stored for this site against the loaded page.

Returns a map of field key to test result. Manual-only fields are skipped.`
}
func (t *TestAllSelectorsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *TestAllSelectorsTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	return t.session.TestAll(ctx)
}

type SelectorStatusTool struct {
	session *workflow.Session
}

func (t *SelectorStatusTool) Name() string { return "selector-status" }
func (t *SelectorStatusTool) Description() string {
	return `Report every selector stored for this site with its success rate.

A field that was never tested reports 0.0.`
}
func (t *SelectorStatusTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *SelectorStatusTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	statuses, err := t.session.Status()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"fields": statuses}, nil
}

type QueryFactsTool struct {
	session *workflow.Session
}

func (t *QueryFactsTool) Name() string { return "query-facts" }
func (t *QueryFactsTool) Description() string {
	return `Run a Mangle query over the session fact log.

Base predicates: navigation_action/4, selection_event/3, selector_saved/3,
selector_test/4. Derived: fragile_selector/3 (any selector that ever failed
verification). Example: fragile_selector(Domain, Field, Ctx).`
}
func (t *QueryFactsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Mangle query atom, e.g. selector_saved(D, F, C).",
			},
		},
		"required": []string{"query"},
	}
}
func (t *QueryFactsTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	results, err := t.session.QueryFacts(getStringArg(args, "query"))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"results": results}, nil
}

type LoadPageTool struct {
	session *workflow.Session
}

func (t *LoadPageTool) Name() string { return "load-page" }
func (t *LoadPageTool) Description() string {
	return `Navigate the picker page to a URL.

The selection menu is re-injected after the load; navigation state and
recorded selections are kept.`
}
func (t *LoadPageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "Page URL to load",
			},
		},
		"required": []string{"url"},
	}
}
func (t *LoadPageTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url := getStringArg(args, "url")
	if err := t.session.LoadPage(ctx, url); err != nil {
		return nil, err
	}
	return map[string]interface{}{"loaded": url}, nil
}
