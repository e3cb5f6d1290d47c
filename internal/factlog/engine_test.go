package factlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fieldlens/internal/config"
)

func enabledConfig() config.FactsConfig {
	return config.FactsConfig{Enable: true, FactBufferLimit: 1000}
}

func TestEngineDefaultRules(t *testing.T) {
	engine, err := NewEngine(enabledConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if !engine.Ready() {
		t.Fatal("engine not ready after loading default rules")
	}
}

func TestEngineAddFacts(t *testing.T) {
	engine, err := NewEngine(enabledConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	facts := []Fact{
		{
			Predicate: PredNavigationAction,
			Args:      []interface{}{"enter_nested_field", "models", int64(0), int64(1)},
			Timestamp: time.Now(),
		},
		{
			Predicate: PredSelectionEvent,
			Args:      []interface{}{"name", "models[0]", "//td[1]"},
			Timestamp: time.Now(),
		},
	}

	if err := engine.AddFacts(facts); err != nil {
		t.Fatalf("AddFacts failed: %v", err)
	}

	buffered := engine.Facts()
	if len(buffered) != len(facts) {
		t.Errorf("expected %d facts in buffer, got %d", len(facts), len(buffered))
	}

	nav := engine.FactsByPredicate(PredNavigationAction)
	if len(nav) != 1 {
		t.Errorf("expected 1 navigation_action, got %d", len(nav))
	}
}

func TestEngineQueryBindsVariables(t *testing.T) {
	engine, err := NewEngine(enabledConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := engine.Record(PredSelectorSaved, "example.com", "title", ""); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := engine.Record(PredSelectorSaved, "example.com", "model_name", "models[0]"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	results, err := engine.Query(`selector_saved(Domain, Field, Ctx).`)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(results))
	}

	fields := map[string]bool{}
	for _, r := range results {
		field, _ := r["Field"].(string)
		fields[field] = true
	}
	if !fields["title"] || !fields["model_name"] {
		t.Errorf("unexpected bindings: %v", results)
	}
}

func TestEngineDerivesFragileSelectors(t *testing.T) {
	engine, err := NewEngine(enabledConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := engine.Record(PredSelectorTest, "example.com", "title", "", "passed"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := engine.Record(PredSelectorTest, "example.com", "features", "", "failed"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	fragile, err := engine.Derived("fragile_selector")
	if err != nil {
		t.Fatalf("Derived failed: %v", err)
	}
	if len(fragile) != 1 {
		t.Fatalf("expected 1 fragile selector, got %d", len(fragile))
	}
	if field, _ := fragile[0].Args[1].(string); field != "features" {
		t.Errorf("fragile field = %v, want features", fragile[0].Args[1])
	}
}

func TestEngineTemporalQuery(t *testing.T) {
	engine, err := NewEngine(enabledConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	old := Fact{
		Predicate: PredNavigationAction,
		Args:      []interface{}{"navigate_to_parent", "", int64(0), int64(0)},
		Timestamp: time.Now().Add(-time.Hour),
	}
	recent := Fact{
		Predicate: PredNavigationAction,
		Args:      []interface{}{"enter_nested_field", "models", int64(0), int64(1)},
		Timestamp: time.Now(),
	}
	if err := engine.AddFacts([]Fact{old, recent}); err != nil {
		t.Fatalf("AddFacts failed: %v", err)
	}

	window := engine.QueryTemporal(PredNavigationAction, time.Now().Add(-time.Minute), time.Time{})
	if len(window) != 1 {
		t.Errorf("expected 1 fact in window, got %d", len(window))
	}
}

func TestEngineBufferLimit(t *testing.T) {
	cfg := config.FactsConfig{Enable: true, FactBufferLimit: 5}
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		if err := engine.Record(PredSelectionEvent, "title", "", "//h1"); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	if got := len(engine.Facts()); got != 5 {
		t.Errorf("buffer length = %d, want 5", got)
	}
	if got := len(engine.FactsByPredicate(PredSelectionEvent)); got != 5 {
		t.Errorf("index length = %d, want 5", got)
	}
}

func TestEngineDisabled(t *testing.T) {
	engine, err := NewEngine(config.FactsConfig{Enable: false})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := engine.Record(PredSelectionEvent, "title", "", "//h1"); err != nil {
		t.Errorf("Record should be a no-op when disabled: %v", err)
	}
	if !engine.Ready() {
		t.Error("disabled engine should still report ready")
	}
	if _, err := engine.Query(`selection_event(F, C, S).`); err == nil {
		t.Error("expected query error when disabled")
	}
}

func TestEngineLoadRulesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.mg")
	rules := DefaultRules + `
Decl untested_field(Domain, Field).

untested_field(Domain, Field) :- selector_saved(Domain, Field, _).
`
	if err := os.WriteFile(path, []byte(rules), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.FactsConfig{Enable: true, RulesPath: path, FactBufferLimit: 100}
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := engine.Record(PredSelectorSaved, "example.com", "title", ""); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	derived, err := engine.Derived("untested_field")
	if err != nil {
		t.Fatalf("Derived failed: %v", err)
	}
	if len(derived) != 1 {
		t.Errorf("expected 1 derived fact, got %d", len(derived))
	}
}

func TestEngineAddRulesParseError(t *testing.T) {
	engine, err := NewEngine(enabledConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := engine.AddRules("invalid rule syntax $$"); err == nil {
		t.Error("expected parse error")
	}
}

func TestEngineLoadRulesMissingFile(t *testing.T) {
	cfg := config.FactsConfig{Enable: true, RulesPath: "/nonexistent/rules.mg"}
	if _, err := NewEngine(cfg); err == nil {
		t.Error("expected error for missing rules file")
	}
}
