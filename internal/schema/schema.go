package schema

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Cardinality classifies how many values a field holds and whether it nests.
type Cardinality string

const (
	Single     Cardinality = "single"
	MultiValue Cardinality = "multi-value"
	Nested     Cardinality = "nested"
)

// Valid reports whether c is one of the three known cardinalities.
func (c Cardinality) Valid() bool {
	switch c {
	case Single, MultiValue, Nested:
		return true
	}
	return false
}

// FieldDefinition describes one selectable field at some nesting level.
// Definitions are immutable after Load and shared by reference across all
// selection contexts at the same depth.
type FieldDefinition struct {
	Name        string            `yaml:"name"`
	Label       string            `yaml:"label"`
	Description string            `yaml:"description"`
	Cardinality Cardinality       `yaml:"cardinality"`
	Color       string            `yaml:"color"`
	Children    []FieldDefinition `yaml:"children,omitempty"`
}

// HasChildren reports whether descending into this field is allowed.
func (f FieldDefinition) HasChildren() bool {
	return f.Cardinality == Nested && len(f.Children) > 0
}

// Schema is the static, recursive description of all selectable fields.
type Schema struct {
	Fields []FieldDefinition `yaml:"fields"`
}

// PathSegment is one hop of a context path: a field name plus the zero-based
// instance index distinguishing repeated siblings.
type PathSegment struct {
	Field    string
	Instance int
}

// String renders the canonical "field[index]" form.
func (s PathSegment) String() string {
	return fmt.Sprintf("%s[%d]", s.Field, s.Instance)
}

// ParsePath splits a dot-joined context path ("models[0].spec_groups[1]") into
// segments. The empty string parses to no segments (the root).
func ParsePath(path string) ([]PathSegment, error) {
	if path == "" {
		return nil, nil
	}

	parts := strings.Split(path, ".")
	segments := make([]PathSegment, 0, len(parts))
	for _, part := range parts {
		open := strings.IndexByte(part, '[')
		if open <= 0 || !strings.HasSuffix(part, "]") {
			return nil, fmt.Errorf("malformed path segment %q", part)
		}
		idx, err := strconv.Atoi(part[open+1 : len(part)-1])
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("malformed instance index in segment %q", part)
		}
		segments = append(segments, PathSegment{Field: part[:open], Instance: idx})
	}
	return segments, nil
}

// JoinPath is the inverse of ParsePath.
func JoinPath(segments []PathSegment) string {
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// Find returns the definition for name within fields, if present.
func Find(fields []FieldDefinition, name string) (FieldDefinition, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// FieldsAt returns the selectable fields for a context path. The root path
// (empty string) yields the top-level field set. Deeper paths walk the nested
// definitions segment by segment; a path that descends through a field whose
// cardinality is not nested yields an empty list — callers must reject the
// descent before it happens.
func (s *Schema) FieldsAt(path string) ([]FieldDefinition, error) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return s.FieldsAtSegments(segments), nil
}

// FieldsAtSegments is FieldsAt for an already-parsed path.
func (s *Schema) FieldsAtSegments(segments []PathSegment) []FieldDefinition {
	current := s.Fields
	for _, seg := range segments {
		def, ok := Find(current, seg.Field)
		if !ok || def.Cardinality != Nested {
			return nil
		}
		current = def.Children
	}
	return current
}

// Validate enforces the structural invariants: children are present iff the
// field is nested, cardinalities are known, names are unique per level and
// free of path syntax characters.
func (s *Schema) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema has no fields")
	}
	return validateFields(s.Fields, "")
}

func validateFields(fields []FieldDefinition, parent string) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		where := f.Name
		if parent != "" {
			where = parent + "." + f.Name
		}
		if f.Name == "" {
			return fmt.Errorf("field under %q has no name", parent)
		}
		if strings.ContainsAny(f.Name, "[]./") {
			return fmt.Errorf("field %q: name must not contain path syntax characters", where)
		}
		if seen[f.Name] {
			return fmt.Errorf("field %q: duplicate name at this level", where)
		}
		seen[f.Name] = true
		if !f.Cardinality.Valid() {
			return fmt.Errorf("field %q: unknown cardinality %q", where, f.Cardinality)
		}
		if f.Cardinality == Nested && len(f.Children) == 0 {
			return fmt.Errorf("field %q: nested field must declare children", where)
		}
		if f.Cardinality != Nested && len(f.Children) > 0 {
			return fmt.Errorf("field %q: only nested fields may declare children", where)
		}
		if err := validateFields(f.Children, where); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a schema definition from a YAML file.
func Load(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	var s Schema
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", path, err)
	}
	return &s, nil
}
