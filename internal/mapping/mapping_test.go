package mapping

import (
	"testing"
	"unicode/utf8"

	"graph-loader/internal/reader"
	"graph-loader/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *EntitySchema {
	t.Helper()
	s, err := FromSpec(types.FileSpec{
		Name:  "companies",
		Table: "companies",
		Key:   []string{"company_id"},
		Fields: []types.FieldSpec{
			{Source: "id", Target: "company_id", Type: "string", MaxLen: 8},
			{Source: "name", Type: "string"},
			{Source: "employees", Target: "employee_count", Type: "int"},
			{Source: "revenue", Type: "float"},
			{Source: "active", Type: "bool"},
		},
	})
	require.NoError(t, err)
	return s
}

func TestFromSpec_Defaults(t *testing.T) {
	s := testSchema(t)
	assert.Equal(t, "name", s.Fields[1].Target)
	assert.Equal(t, TypeString, s.Fields[1].Type)
	assert.Equal(t, []string{"company_id", "name", "employee_count", "revenue", "active"}, s.Columns())
}

func TestFromSpec_Invalid(t *testing.T) {
	cases := []struct {
		name string
		spec types.FileSpec
	}{
		{"no key", types.FileSpec{Name: "x", Table: "x", Fields: []types.FieldSpec{{Source: "a"}}}},
		{"no fields", types.FileSpec{Name: "x", Table: "x", Key: []string{"a"}}},
		{"key not a target", types.FileSpec{Name: "x", Table: "x", Key: []string{"missing"},
			Fields: []types.FieldSpec{{Source: "a"}}}},
		{"duplicate target", types.FileSpec{Name: "x", Table: "x", Key: []string{"a"},
			Fields: []types.FieldSpec{{Source: "a"}, {Source: "b", Target: "a"}}}},
		{"bad type", types.FileSpec{Name: "x", Table: "x", Key: []string{"a"},
			Fields: []types.FieldSpec{{Source: "a", Type: "decimal"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromSpec(tc.spec)
			assert.Error(t, err)
		})
	}
}

func TestApply_CoercionsAndRenames(t *testing.T) {
	s := testSchema(t)
	rec := reader.NewRecord(
		[]string{"id", "name", "employees", "revenue", "active"},
		[]string{"c-1", "Acme Corp", "250.0", "12.5", "1"},
	)

	row := s.Apply(rec)
	assert.Equal(t, "c-1", row["company_id"])
	assert.Equal(t, "Acme Corp", row["name"])
	assert.Equal(t, int64(250), row["employee_count"])
	assert.Equal(t, 12.5, row["revenue"])
	assert.Equal(t, true, row["active"])
}

func TestApply_BadValuesBecomeNil(t *testing.T) {
	s := testSchema(t)
	rec := reader.NewRecord(
		[]string{"id", "name", "employees", "revenue", "active"},
		[]string{"c-2", "x", "not-a-number", "NaN", "maybe"},
	)

	row := s.Apply(rec)
	assert.Equal(t, "c-2", row["company_id"])
	assert.Nil(t, row["employee_count"])
	assert.Nil(t, row["revenue"]) // NaN normalizes to null upstream
	assert.Nil(t, row["active"])
}

func TestApply_MissingSourceColumn(t *testing.T) {
	s := testSchema(t)
	rec := reader.NewRecord([]string{"id"}, []string{"c-3"})

	row := s.Apply(rec)
	assert.Equal(t, "c-3", row["company_id"])
	assert.Nil(t, row["name"])
}

func TestApply_Truncation(t *testing.T) {
	s := testSchema(t)
	rec := reader.NewRecord(
		[]string{"id", "name", "employees", "revenue", "active"},
		[]string{"c-123456789", "x", "1", "1", "true"},
	)

	row := s.Apply(rec)
	assert.Equal(t, "c-123456", row["company_id"]) // MaxLen 8
}

func TestApply_TruncationKeepsRunesIntact(t *testing.T) {
	s, err := FromSpec(types.FileSpec{
		Name:  "notes",
		Table: "notes",
		Key:   []string{"text"},
		Fields: []types.FieldSpec{
			{Source: "text", Type: "string", MaxLen: 4},
		},
	})
	require.NoError(t, err)

	rec := reader.NewRecord([]string{"text"}, []string{"café au lait"})
	row := s.Apply(rec)

	v, ok := row["text"].(string)
	require.True(t, ok)
	assert.Equal(t, "café", v)
	assert.True(t, utf8.ValidString(v))
}

func TestHasKey(t *testing.T) {
	s := testSchema(t)
	assert.True(t, s.HasKey(map[string]any{"company_id": "c-1"}))
	assert.False(t, s.HasKey(map[string]any{"company_id": nil}))
	assert.False(t, s.HasKey(map[string]any{}))
}

func TestCleanText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain", "plain"},
		{"  padded  ", "padded"},
		{"a\x00b\x01c", "abc"},
		{"tabs\tand\nnewlines", "tabs and newlines"},
		{"multi   space", "multi space"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CleanText(tc.in))
	}
}

func TestCoerceBool(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"true", true}, {"false", false},
		{"1", true}, {"0", false},
		{"1.0", true}, {"0.0", false},
	}
	for _, tc := range cases {
		v, err := coerce(tc.in, TypeBool, 0)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, v, tc.in)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s := testSchema(t)
	require.NoError(t, r.Register(s))
	assert.Error(t, r.Register(s))

	got, err := r.Lookup("companies")
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = r.Lookup("nope")
	assert.Error(t, err)
}
