package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldlens/internal/schema"
	"fieldlens/internal/selection"
)

func testNavigator() *selection.Navigator {
	return selection.NewNavigator(&schema.Schema{Fields: []schema.FieldDefinition{
		{Name: "title", Cardinality: schema.Single},
		{
			Name:        "models",
			Cardinality: schema.Nested,
			Children: []schema.FieldDefinition{
				{Name: "name", Cardinality: schema.Single},
			},
		},
	}})
}

func TestPollEmpty(t *testing.T) {
	box := New()
	if _, ok := box.Poll(); ok {
		t.Error("empty mailbox must poll as empty")
	}
}

func TestOverwriteOnWrite(t *testing.T) {
	box := New()
	box.Post(Action{Kind: EnterNestedField, Field: "models", Instance: 0})
	box.Post(Action{Kind: NavigateToParent})

	a, ok := box.Poll()
	if !ok {
		t.Fatal("expected a pending action")
	}
	if a.Kind != NavigateToParent {
		t.Errorf("expected the second action to win, got %s", a)
	}
	if _, ok := box.Poll(); ok {
		t.Error("exactly one poll may observe a posted action")
	}
}

func TestPollDrains(t *testing.T) {
	box := New()
	box.Post(Action{Kind: NavigateToDepth, Depth: 0})
	if !box.Pending() {
		t.Error("expected pending action")
	}
	if _, ok := box.Poll(); !ok {
		t.Fatal("expected action")
	}
	if box.Pending() {
		t.Error("poll must clear the slot")
	}
}

func TestControllerAppliesAndRenders(t *testing.T) {
	nav := testNavigator()
	box := New()

	renders := 0
	var lastView selection.MenuView
	ctrl := &Controller{
		Box: box,
		Nav: nav,
		Render: func(_ context.Context, view selection.MenuView) error {
			renders++
			lastView = view
			return nil
		},
	}

	box.Post(Action{Kind: EnterNestedField, Field: "models", Instance: 0})
	drained, err := ctrl.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !drained {
		t.Fatal("expected a drained action")
	}
	if nav.Depth() != 1 {
		t.Errorf("depth = %d, want 1", nav.Depth())
	}
	if renders != 1 {
		t.Errorf("every applied action must trigger a re-render, got %d", renders)
	}
	if lastView.Depth != 1 {
		t.Errorf("rendered view depth = %d, want 1", lastView.Depth)
	}
}

func TestControllerRejectionLeavesStateAndSkipsRender(t *testing.T) {
	nav := testNavigator()
	box := New()

	renders := 0
	var rejected error
	ctrl := &Controller{
		Box: box,
		Nav: nav,
		Render: func(context.Context, selection.MenuView) error {
			renders++
			return nil
		},
		OnRejected: func(_ Action, err error) { rejected = err },
	}

	box.Post(Action{Kind: NavigateToParent})
	drained, err := ctrl.Step(context.Background())
	if !drained {
		t.Fatal("expected a drained action")
	}
	if !errors.Is(err, selection.ErrAlreadyAtRoot) {
		t.Errorf("expected ErrAlreadyAtRoot, got %v", err)
	}
	if !errors.Is(rejected, selection.ErrAlreadyAtRoot) {
		t.Errorf("OnRejected got %v", rejected)
	}
	if nav.Depth() != 0 {
		t.Errorf("rejected action must leave state unchanged, depth = %d", nav.Depth())
	}
	if renders != 0 {
		t.Error("rejected actions must not trigger a re-render")
	}
}

func TestControllerFetchFeedsMailbox(t *testing.T) {
	nav := testNavigator()
	box := New()

	ctrl := &Controller{
		Box: box,
		Nav: nav,
		Fetch: func(context.Context) (*Action, error) {
			return &Action{Kind: EnterNestedField, Field: "models", Instance: 0}, nil
		},
	}

	if _, err := ctrl.Step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	if nav.Depth() != 1 {
		t.Errorf("fetched action was not applied, depth = %d", nav.Depth())
	}
}

func TestRunStopsOnCancelWithoutPartialApplication(t *testing.T) {
	nav := testNavigator()
	box := New()

	applied := make(chan Action, 1)
	ctrl := &Controller{
		Box:       box,
		Nav:       nav,
		Interval:  time.Millisecond,
		OnApplied: func(a Action) { applied <- a },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	box.Post(Action{Kind: EnterNestedField, Field: "models", Instance: 0})

	select {
	case <-applied:
	case <-time.After(time.Second):
		t.Fatal("action was never applied")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if nav.Depth() != 1 {
		t.Errorf("cancellation must leave state at the last applied action, depth = %d", nav.Depth())
	}
}

func TestUnknownActionKind(t *testing.T) {
	ctrl := &Controller{Box: New(), Nav: testNavigator()}
	if err := ctrl.Apply(Action{Kind: "warp"}); err == nil {
		t.Error("expected error for unknown action kind")
	}
}
