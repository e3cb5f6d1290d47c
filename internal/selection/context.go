package selection

import (
	"time"

	"fieldlens/internal/schema"
)

// Record is one committed element selection inside a context: the field it was
// recorded for, where the value lives on the page, and what was there.
type Record struct {
	FieldName   string    `json:"field_name"`
	XPath       string    `json:"xpath"`
	CSSSelector string    `json:"css_selector"`
	Text        string    `json:"text"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Context is one node of the runtime tree mirroring a path through the schema:
// which nested field was entered, at which instance index, and what has been
// selected there. The field/instance pair is stored explicitly; the path string
// is derived for display and persistence keys.
type Context struct {
	Field    string
	Instance int
	Depth    int
	Parent   *Context

	children map[string]*Context
	Records  []Record
}

// NewRoot returns the depth-0 context that anchors every navigation session.
func NewRoot() *Context {
	return &Context{}
}

// IsRoot reports whether this is the depth-0 context.
func (c *Context) IsRoot() bool {
	return c.Parent == nil
}

// Segment renders this context's own path segment ("models[0]"). Root has none.
func (c *Context) Segment() schema.PathSegment {
	return schema.PathSegment{Field: c.Field, Instance: c.Instance}
}

// Segments returns the path from root to this context.
func (c *Context) Segments() []schema.PathSegment {
	if c.IsRoot() {
		return nil
	}
	return append(c.Parent.Segments(), c.Segment())
}

// Path returns the dot-joined "field[index]" path, empty at root.
func (c *Context) Path() string {
	return schema.JoinPath(c.Segments())
}

// Child returns the context for (field, instance) under this one, creating it
// lazily on first entry. Re-entering the same pair later yields the same
// context with its accumulated records intact.
func (c *Context) Child(field string, instance int) *Context {
	key := schema.PathSegment{Field: field, Instance: instance}.String()
	if child, ok := c.children[key]; ok {
		return child
	}
	if c.children == nil {
		c.children = make(map[string]*Context)
	}
	child := &Context{
		Field:    field,
		Instance: instance,
		Depth:    c.Depth + 1,
		Parent:   c,
	}
	c.children[key] = child
	return child
}

// lookupChild returns an existing child without creating one.
func (c *Context) lookupChild(field string, instance int) (*Context, bool) {
	child, ok := c.children[schema.PathSegment{Field: field, Instance: instance}.String()]
	return child, ok
}

// MaxInstance returns the highest instance index already created under this
// context for field, or -1 when none exists.
func (c *Context) MaxInstance(field string) int {
	max := -1
	for _, child := range c.children {
		if child.Field == field && child.Instance > max {
			max = child.Instance
		}
	}
	return max
}

// AddRecord appends a selection record owned by this context.
func (c *Context) AddRecord(r Record) {
	if r.CapturedAt.IsZero() {
		r.CapturedAt = time.Now()
	}
	c.Records = append(c.Records, r)
}

// RecordsFor returns the records committed for one field in this context, in
// capture order.
func (c *Context) RecordsFor(field string) []Record {
	var out []Record
	for _, r := range c.Records {
		if r.FieldName == field {
			out = append(out, r)
		}
	}
	return out
}

// Walk visits this context and every descendant, depth first.
func (c *Context) Walk(fn func(*Context)) {
	fn(c)
	for _, child := range c.children {
		child.Walk(fn)
	}
}

// Export is the serializable form of a context subtree, used for session dumps.
type Export struct {
	Path     string            `json:"path"`
	Depth    int               `json:"depth"`
	Records  []Record          `json:"records,omitempty"`
	Children map[string]Export `json:"children,omitempty"`
}

// ExportTree snapshots this context and all descendants.
func (c *Context) ExportTree() Export {
	out := Export{
		Path:    c.Path(),
		Depth:   c.Depth,
		Records: c.Records,
	}
	if len(c.children) > 0 {
		out.Children = make(map[string]Export, len(c.children))
		for key, child := range c.children {
			out.Children[key] = child.ExportTree()
		}
	}
	return out
}
