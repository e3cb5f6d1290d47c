package mailbox

import (
	"context"
	"fmt"
	"log"
	"time"

	"fieldlens/internal/selection"
)

// Navigator is the mutation surface the controller drives. Satisfied by
// selection.Navigator directly and by any locked wrapper around it.
type Navigator interface {
	NavigateToParent() error
	EnterNestedField(field string, instance int) error
	NavigateToDepth(depth int) error
	AddInstance(field string) (int, error)
	View() selection.MenuView
}

// Controller owns the polling loop on the controller side of the mailbox. All
// navigator mutations happen synchronously inside the loop; the remote surface
// is treated as a read-only projection that is rebuilt after every applied
// action.
type Controller struct {
	Box *Mailbox
	Nav Navigator

	// Interval between polls. Defaults to 100ms when zero.
	Interval time.Duration

	// FetchTimeout bounds a single Fetch call. Defaults to Interval when zero.
	FetchTimeout time.Duration

	// Fetch pulls a pending action from the remote surface into the mailbox.
	// Optional: when nil the controller only drains what was posted directly.
	Fetch func(ctx context.Context) (*Action, error)

	// Render rebuilds the remote menu from the given view. Called once before
	// the loop starts and again after every successfully applied action.
	Render func(ctx context.Context, view selection.MenuView) error

	// OnApplied and OnRejected observe the outcome of each drained action.
	// Rejections are reported, never retried; the remote side must re-issue a
	// corrected action.
	OnApplied  func(a Action)
	OnRejected func(a Action, err error)
}

// Apply dispatches one action to the navigator. State is untouched when the
// action is rejected.
func (c *Controller) Apply(a Action) error {
	switch a.Kind {
	case NavigateToParent:
		return c.Nav.NavigateToParent()
	case EnterNestedField:
		return c.Nav.EnterNestedField(a.Field, a.Instance)
	case NavigateToDepth:
		return c.Nav.NavigateToDepth(a.Depth)
	case AddInstance:
		_, err := c.Nav.AddInstance(a.Field)
		return err
	}
	return fmt.Errorf("unknown action kind %q", a.Kind)
}

// Step performs one poll cycle: fetch from the remote surface (if wired),
// drain the mailbox, apply, and re-render on success. It reports whether an
// action was drained and the application error, if any.
func (c *Controller) Step(ctx context.Context) (bool, error) {
	if c.Fetch != nil {
		fetchCtx := ctx
		if timeout := c.fetchTimeout(); timeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		action, err := c.Fetch(fetchCtx)
		if err != nil {
			log.Printf("mailbox: fetch failed: %v", err)
		} else if action != nil {
			c.Box.Post(*action)
		}
	}

	action, ok := c.Box.Poll()
	if !ok {
		return false, nil
	}

	if err := c.Apply(action); err != nil {
		log.Printf("mailbox: rejected %s: %v", action, err)
		if c.OnRejected != nil {
			c.OnRejected(action, err)
		}
		return true, err
	}

	if c.OnApplied != nil {
		c.OnApplied(action)
	}
	if c.Render != nil {
		if err := c.Render(ctx, c.Nav.View()); err != nil {
			log.Printf("mailbox: re-render failed: %v", err)
		}
	}
	return true, nil
}

// Run polls until ctx is cancelled. Cancellation stops the loop between
// actions, leaving navigation state exactly as it was after the last applied
// action. Navigation rejections never terminate the loop.
func (c *Controller) Run(ctx context.Context) error {
	if c.Render != nil {
		if err := c.Render(ctx, c.Nav.View()); err != nil {
			return fmt.Errorf("initial render: %w", err)
		}
	}

	ticker := time.NewTicker(c.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = c.Step(ctx)
		}
	}
}

func (c *Controller) interval() time.Duration {
	if c.Interval > 0 {
		return c.Interval
	}
	return 100 * time.Millisecond
}

func (c *Controller) fetchTimeout() time.Duration {
	if c.FetchTimeout > 0 {
		return c.FetchTimeout
	}
	return c.interval()
}
