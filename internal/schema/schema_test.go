package schema

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParsePath(t *testing.T) {
	segments, err := ParsePath("models[0].spec_groups[2]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Field != "models" || segments[0].Instance != 0 {
		t.Errorf("unexpected first segment: %+v", segments[0])
	}
	if segments[1].Field != "spec_groups" || segments[1].Instance != 2 {
		t.Errorf("unexpected second segment: %+v", segments[1])
	}

	if got := JoinPath(segments); got != "models[0].spec_groups[2]" {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestParsePathRoot(t *testing.T) {
	segments, err := ParsePath("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 0 {
		t.Errorf("root path should have no segments, got %d", len(segments))
	}
}

func TestParsePathMalformed(t *testing.T) {
	for _, path := range []string{"models", "models[]", "models[-1]", "[0]", "models[0].bad"} {
		if _, err := ParsePath(path); err == nil {
			t.Errorf("expected error for %q", path)
		}
	}
}

func TestFieldsAtRoot(t *testing.T) {
	s := Default()
	fields, err := s.FieldsAt("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fields) == 0 {
		t.Fatal("expected top-level fields at root")
	}
	if _, ok := Find(fields, "models"); !ok {
		t.Error("expected models field at root")
	}
	if _, ok := Find(fields, "title"); !ok {
		t.Error("expected title field at root")
	}
}

func TestFieldsAtNested(t *testing.T) {
	s := Default()

	fields, err := s.FieldsAt("models[0]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := Find(fields, "spec_groups"); !ok {
		t.Error("expected spec_groups inside a model")
	}

	fields, err = s.FieldsAt("models[0].spec_groups[1]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := Find(fields, "specs"); !ok {
		t.Error("expected specs inside a spec group")
	}
}

func TestFieldsAtNonNested(t *testing.T) {
	s := Default()

	// title is single-valued: descending through it yields nothing.
	fields, err := s.FieldsAt("title[0]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fields) != 0 {
		t.Errorf("expected no fields under a non-nested field, got %d", len(fields))
	}

	// Unknown fields likewise halt descent.
	fields, err = s.FieldsAt("no_such_field[0]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fields) != 0 {
		t.Errorf("expected no fields under unknown field, got %d", len(fields))
	}
}

func TestValidateDefault(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default schema should validate: %v", err)
	}
}

func TestValidateRejectsNestedWithoutChildren(t *testing.T) {
	s := &Schema{Fields: []FieldDefinition{
		{Name: "models", Label: "Models", Cardinality: Nested},
	}}
	if err := s.Validate(); err == nil {
		t.Error("expected error for nested field without children")
	}
}

func TestValidateRejectsChildrenOnFlatField(t *testing.T) {
	s := &Schema{Fields: []FieldDefinition{
		{Name: "title", Cardinality: Single, Children: []FieldDefinition{
			{Name: "x", Cardinality: Single},
		}},
	}}
	if err := s.Validate(); err == nil {
		t.Error("expected error for children on a single field")
	}
}

func TestValidateRejectsPathSyntaxInName(t *testing.T) {
	s := &Schema{Fields: []FieldDefinition{
		{Name: "bad[name]", Cardinality: Single},
	}}
	if err := s.Validate(); err == nil {
		t.Error("expected error for bracket characters in field name")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	content := `fields:
  - name: title
    label: Title
    cardinality: single
  - name: models
    label: Models
    cardinality: nested
    children:
      - name: name
        label: Name
        cardinality: single
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	fields, _ := s.FieldsAt("models[0]")
	if len(fields) != 1 || fields[0].Name != "name" {
		t.Errorf("unexpected nested fields: %+v", fields)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	content := `fields:
  - name: models
    cardinality: nested
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error")
	}
}
