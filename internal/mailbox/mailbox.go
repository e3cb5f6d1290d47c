// Package mailbox carries navigation requests from the remote rendering
// surface (the live page's script context) to the controller. The channel is a
// single slot with overwrite-on-write semantics: if the operator acts twice
// before the controller polls, only the latest action survives. The menu is
// rebuilt from authoritative navigation state after every applied action, so a
// dropped intermediate action cannot desynchronize the two sides.
package mailbox

import (
	"fmt"
	"sync"
)

// Kind tags the action union.
type Kind string

const (
	NavigateToParent Kind = "navigate_to_parent"
	EnterNestedField Kind = "enter_nested_field"
	NavigateToDepth  Kind = "navigate_to_depth"
	AddInstance      Kind = "add_instance"
)

// Action is one pending navigation request. Field/Instance are set for
// EnterNestedField and AddInstance; Depth for NavigateToDepth.
type Action struct {
	Kind     Kind   `json:"type"`
	Field    string `json:"field_name,omitempty"`
	Instance int    `json:"instance_index,omitempty"`
	Depth    int    `json:"depth,omitempty"`
}

// String renders a compact log form.
func (a Action) String() string {
	switch a.Kind {
	case EnterNestedField:
		return fmt.Sprintf("enter %s[%d]", a.Field, a.Instance)
	case AddInstance:
		return fmt.Sprintf("add-instance %s", a.Field)
	case NavigateToDepth:
		return fmt.Sprintf("depth %d", a.Depth)
	case NavigateToParent:
		return "parent"
	}
	return string(a.Kind)
}

// Mailbox is the one-slot channel. Post unconditionally replaces any undrained
// action; Poll atomically reads and clears.
type Mailbox struct {
	mu      sync.Mutex
	pending *Action
}

// New returns an empty mailbox.
func New() *Mailbox {
	return &Mailbox{}
}

// Post writes the pending action, replacing whatever was not yet drained.
func (m *Mailbox) Post(a Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := a
	m.pending = &copied
}

// Poll reads and clears the slot. The second return is false when the slot was
// empty, which is the normal idle case and never an error.
func (m *Mailbox) Poll() (Action, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return Action{}, false
	}
	a := *m.pending
	m.pending = nil
	return a, true
}

// Pending reports whether an undrained action is waiting, without draining it.
func (m *Mailbox) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}
