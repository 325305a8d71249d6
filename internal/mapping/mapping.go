package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"graph-loader/internal/reader"
	"graph-loader/pkg/types"
)

// FieldType names the coercion applied to a source value before it is
// handed to the sink.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
)

// Field maps one source column to one target column with an optional
// type coercion and length cap.
type Field struct {
	Source string
	Target string
	Type   FieldType
	MaxLen int
}

// EntitySchema describes how records from one file become rows in one
// target table.
type EntitySchema struct {
	Name   string
	Table  string
	Key    []string
	Fields []Field
}

// FromSpec converts a configured file spec into a schema. Fields with no
// explicit target keep their source name; fields with no type are strings.
func FromSpec(spec types.FileSpec) (*EntitySchema, error) {
	s := &EntitySchema{
		Name:  spec.Name,
		Table: spec.Table,
		Key:   append([]string(nil), spec.Key...),
	}
	for _, f := range spec.Fields {
		field := Field{
			Source: f.Source,
			Target: f.Target,
			Type:   FieldType(f.Type),
			MaxLen: f.MaxLen,
		}
		if field.Target == "" {
			field.Target = field.Source
		}
		if field.Type == "" {
			field.Type = TypeString
		}
		s.Fields = append(s.Fields, field)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the schema for internal consistency.
func (s *EntitySchema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema has no name")
	}
	if s.Table == "" {
		return fmt.Errorf("schema %q has no table", s.Name)
	}
	if len(s.Key) == 0 {
		return fmt.Errorf("schema %q has no key columns", s.Name)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %q has no fields", s.Name)
	}
	targets := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Source == "" {
			return fmt.Errorf("schema %q: field with empty source", s.Name)
		}
		switch f.Type {
		case TypeString, TypeInt, TypeFloat, TypeBool:
		default:
			return fmt.Errorf("schema %q: field %q has unknown type %q", s.Name, f.Source, f.Type)
		}
		if targets[f.Target] {
			return fmt.Errorf("schema %q: duplicate target column %q", s.Name, f.Target)
		}
		targets[f.Target] = true
	}
	for _, k := range s.Key {
		if !targets[k] {
			return fmt.Errorf("schema %q: key column %q is not a field target", s.Name, k)
		}
	}
	return nil
}

// Columns returns the target column names in field order.
func (s *EntitySchema) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Target
	}
	return cols
}

// Apply maps one record into a row keyed by target column. Null or missing
// source values map to nil; coercion failures also map to nil rather than
// discarding the whole row.
func (s *EntitySchema) Apply(rec reader.Record) map[string]any {
	row := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		raw, ok := rec.Get(f.Source)
		if !ok {
			row[f.Target] = nil
			continue
		}
		v, err := coerce(raw, f.Type, f.MaxLen)
		if err != nil {
			row[f.Target] = nil
			continue
		}
		row[f.Target] = v
	}
	return row
}

// HasKey reports whether every key column of the row is non-nil.
func (s *EntitySchema) HasKey(row map[string]any) bool {
	for _, k := range s.Key {
		if row[k] == nil {
			return false
		}
	}
	return true
}

func coerce(raw string, t FieldType, maxLen int) (any, error) {
	switch t {
	case TypeInt:
		// source files carry integers as "123.0" after upstream exports
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, err
		}
		return int64(f), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	case TypeBool:
		s := strings.TrimSpace(raw)
		if b, err := strconv.ParseBool(strings.ToLower(s)); err == nil {
			return b, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return f != 0, nil
	default:
		v := CleanText(raw)
		if maxLen > 0 && utf8.RuneCountInString(v) > maxLen {
			// truncate on a rune boundary; a byte slice could split a
			// multi-byte character and hand the sink invalid UTF-8
			rs := []rune(v)
			v = string(rs[:maxLen])
		}
		return v, nil
	}
}
