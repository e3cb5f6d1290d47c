package selection

import (
	"errors"
	"fmt"

	"fieldlens/internal/schema"
)

// Navigation rejections. Every rejection leaves the stack exactly as it was;
// none of them is fatal.
var (
	ErrInvalidFieldKind      = errors.New("field is not nested")
	ErrUnknownField          = errors.New("unknown field at this level")
	ErrAlreadyAtRoot         = errors.New("already at root")
	ErrInvalidDepth          = errors.New("invalid target depth")
	ErrNoCandidateSelections = errors.New("no candidate selections recorded")
)

// FieldView is the external projection of a field definition handed to the
// remote menu: definition data only, no internal state.
type FieldView struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Cardinality string `json:"cardinality"`
	Color       string `json:"color"`
	HasChildren bool   `json:"has_children"`
}

// MenuView is everything the remote surface needs to rebuild the field menu
// after a navigation action.
type MenuView struct {
	Depth       int         `json:"depth"`
	Breadcrumbs []string    `json:"breadcrumbs"`
	DepthColor  string      `json:"depth_color"`
	// CurrentField names the nested field whose instance the operator is
	// inside; empty at root.
	CurrentField string      `json:"current_field,omitempty"`
	Fields       []FieldView `json:"fields"`
}

// Border colors per nesting depth, darkest at the deepest known level.
var depthColors = []string{
	"#3498db", // root
	"#e74c3c",
	"#f39c12",
	"#27ae60",
	"#9b59b6",
	"#34495e",
}

// DepthColor returns the menu border color for a depth.
func DepthColor(depth int) string {
	if depth < 0 {
		depth = 0
	}
	if depth >= len(depthColors) {
		depth = len(depthColors) - 1
	}
	return depthColors[depth]
}

// Navigator is the single mutator of navigation state: a stack of contexts
// from the shared root (index 0) to the operator's current position. It is not
// safe for concurrent use; the controller applies all mutations from one
// goroutine (the poll loop).
type Navigator struct {
	schema  *schema.Schema
	root    *Context
	history []*Context
}

// NewNavigator builds a navigator positioned at the root of s.
func NewNavigator(s *schema.Schema) *Navigator {
	root := NewRoot()
	return &Navigator{
		schema:  s,
		root:    root,
		history: []*Context{root},
	}
}

// Root returns the shared depth-0 context.
func (n *Navigator) Root() *Context {
	return n.root
}

// Current returns the context at the top of the stack.
func (n *Navigator) Current() *Context {
	return n.history[len(n.history)-1]
}

// Depth returns the current nesting depth (0 at root).
func (n *Navigator) Depth() int {
	return len(n.history) - 1
}

// CurrentFields returns the selectable field definitions at the current
// position, straight from the schema.
func (n *Navigator) CurrentFields() []schema.FieldDefinition {
	return n.schema.FieldsAtSegments(n.Current().Segments())
}

// EnterNestedField descends into (field, instance) under the current context.
// The field must exist at the current level and be nested; the child context is
// created lazily on first entry and reused afterwards.
func (n *Navigator) EnterNestedField(field string, instance int) error {
	if instance < 0 {
		return fmt.Errorf("%w: negative instance index %d", ErrInvalidDepth, instance)
	}
	def, ok := schema.Find(n.CurrentFields(), field)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if def.Cardinality != schema.Nested {
		return fmt.Errorf("%w: %q is %s", ErrInvalidFieldKind, field, def.Cardinality)
	}

	n.history = append(n.history, n.Current().Child(field, instance))
	return nil
}

// NavigateToParent pops the current context off the stack. The popped context
// stays reachable through its parent for later re-entry.
func (n *Navigator) NavigateToParent() error {
	if len(n.history) == 1 {
		return ErrAlreadyAtRoot
	}
	n.history = n.history[:len(n.history)-1]
	return nil
}

// NavigateToDepth ascends until the stack is at target depth. Jumping deeper
// than the current position is rejected; only ascent is possible.
func (n *Navigator) NavigateToDepth(target int) error {
	if target < 0 {
		return fmt.Errorf("%w: %d is negative", ErrInvalidDepth, target)
	}
	if target > n.Depth() {
		return fmt.Errorf("%w: %d is deeper than current depth %d", ErrInvalidDepth, target, n.Depth())
	}
	for n.Depth() > target {
		if err := n.NavigateToParent(); err != nil {
			return err
		}
	}
	return nil
}

// AddInstance creates and enters the next sibling instance of the field the
// operator is currently inside. The current context's own field must match;
// the new index is one past the highest instance already created under the
// parent, so deleting nothing and skipping nothing.
func (n *Navigator) AddInstance(field string) (int, error) {
	current := n.Current()
	if current.IsRoot() || current.Field != field {
		return 0, fmt.Errorf("%w: not inside an instance of %q", ErrUnknownField, field)
	}

	next := current.Parent.MaxInstance(field) + 1
	if err := n.NavigateToParent(); err != nil {
		return 0, err
	}
	if err := n.EnterNestedField(field, next); err != nil {
		// Should be unreachable: the field was nested when we entered it.
		return 0, err
	}
	return next, nil
}

// Breadcrumbs maps the stack to display labels: "Root" at depth 0, then one
// "field[index]" label per level. Display only; identity is the path string.
func (n *Navigator) Breadcrumbs() []string {
	crumbs := make([]string, 0, len(n.history))
	for _, ctx := range n.history {
		if ctx.IsRoot() {
			crumbs = append(crumbs, "Root")
			continue
		}
		crumbs = append(crumbs, ctx.Segment().String())
	}
	return crumbs
}

// AddSelection records a candidate selection for field in the current context.
func (n *Navigator) AddSelection(r Record) error {
	if _, ok := schema.Find(n.CurrentFields(), r.FieldName); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, r.FieldName)
	}
	n.Current().AddRecord(r)
	return nil
}

// View projects the current position for the remote menu rebuild.
func (n *Navigator) View() MenuView {
	defs := n.CurrentFields()
	fields := make([]FieldView, 0, len(defs))
	for _, d := range defs {
		fields = append(fields, FieldView{
			Name:        d.Name,
			Label:       d.Label,
			Description: d.Description,
			Cardinality: string(d.Cardinality),
			Color:       d.Color,
			HasChildren: d.HasChildren(),
		})
	}
	return MenuView{
		Depth:        n.Depth(),
		Breadcrumbs:  n.Breadcrumbs(),
		DepthColor:   DepthColor(n.Depth()),
		CurrentField: n.Current().Field,
		Fields:       fields,
	}
}
