package picker

import (
	"encoding/json"
	"testing"

	"fieldlens/internal/mailbox"
	"fieldlens/internal/selection"
)

func TestMenuPayloadShape(t *testing.T) {
	view := selection.MenuView{
		Depth:        1,
		Breadcrumbs:  []string{"Root", "models[0]"},
		DepthColor:   "#e74c3c",
		CurrentField: "models",
		Fields: []selection.FieldView{
			{Name: "name", Label: "Model Name", Cardinality: "single"},
			{Name: "spec_groups", Label: "Spec Groups", Cardinality: "nested", HasChildren: true},
		},
	}

	raw, err := menuPayload(view)
	if err != nil {
		t.Fatalf("menuPayload: %v", err)
	}

	var decoded menuView
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.DepthColor != "#e74c3c" || decoded.CurrentField != "models" {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(decoded.Fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(decoded.Fields))
	}
	if decoded.Fields[0].Nested {
		t.Error("single-value field must not be marked nested")
	}
	if !decoded.Fields[1].Nested {
		t.Error("nested field must be marked nested")
	}
}

func TestDecodeAction(t *testing.T) {
	raw := []byte(`{"type":"enter_nested_field","field_name":"models","instance_index":2}`)
	a, err := decodeAction(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Kind != mailbox.EnterNestedField || a.Field != "models" || a.Instance != 2 {
		t.Errorf("action = %+v", a)
	}
}

func TestDecodeActionEmptyKind(t *testing.T) {
	a, err := decodeAction([]byte(`{}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a != nil {
		t.Errorf("expected nil action for empty payload, got %+v", a)
	}
}

func TestDecodeSelections(t *testing.T) {
	raw := []byte(`[{"field":"title","xpath":"//*[@id='t']","abs_xpath":"/html[1]/body[1]/h1[1]","css":"#t","text":"Excavator"}]`)
	sels, err := decodeSelections(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sels) != 1 {
		t.Fatalf("selections = %d, want 1", len(sels))
	}
	s := sels[0]
	if s.Field != "title" || s.Text != "Excavator" {
		t.Errorf("selection = %+v", s)
	}

	candidates := s.Candidates()
	if len(candidates) != 2 || candidates[0] != "//*[@id='t']" {
		t.Errorf("candidates = %v, id-anchored form must come first", candidates)
	}
}
