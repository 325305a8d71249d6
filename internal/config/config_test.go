package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `
version: "1.0"
database:
  host: localhost
  port: 3306
  user: ${TEST_DB_USER}
  password: secret
  name: graph
input:
  dir: ./data
entities:
  - name: companies
    file: companies.tsv
    table: companies
    enabled: true
    key: [company_id]
    fields:
      - source: id
        target: company_id
relationships:
  - name: employment
    file: works_at.tsv
    table: employment
    enabled: true
    key: [person_id, company_id]
    fields:
      - source: person
        target: person_id
      - source: company
        target: company_id
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_DB_USER", "loader")

	cfg, err := LoadConfig(writeConfig(t, baseConfig))
	require.NoError(t, err)

	assert.Equal(t, "loader", cfg.Database.User)
	assert.Equal(t, "\t", cfg.Input.Delimiter)
	assert.Equal(t, "utf-8", cfg.Input.Encoding)
	assert.Equal(t, DefaultWorkers, cfg.Processing.Workers)
	assert.Equal(t, DefaultMaxRetries, cfg.Processing.MaxRetries)
	assert.Equal(t, DefaultBackoffMs, cfg.Processing.BaseBackoffMs)
	assert.Equal(t, DefaultMaxOpenConns, cfg.Database.MaxOpenConns)
	assert.Equal(t, DefaultBatchSize, cfg.Entities[0].BatchSize)
	assert.Equal(t, DefaultSampleRows, cfg.Processing.SampleRows)
	assert.Equal(t, "samples", cfg.Processing.SampleDir)
	require.NotNil(t, cfg.Processing.ContinueOnError)
	assert.True(t, *cfg.Processing.ContinueOnError)
}

func TestLoadConfig_ExplicitContinueOnErrorFalse(t *testing.T) {
	t.Setenv("TEST_DB_USER", "loader")

	cfg, err := LoadConfig(writeConfig(t, baseConfig+`
processing:
  continue_on_error: false
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.Processing.ContinueOnError)
	assert.False(t, *cfg.Processing.ContinueOnError)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "entities: [unclosed"))
	assert.Error(t, err)
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing host", `
database:
  name: graph
entities:
  - name: a
    enabled: false
`},
		{"missing name", `
database:
  host: localhost
entities:
  - name: a
    enabled: false
`},
		{"no files", `
database:
  host: localhost
  name: graph
`},
		{"multi-char delimiter", `
database:
  host: localhost
  name: graph
input:
  delimiter: "::"
entities:
  - name: a
    enabled: false
`},
		{"duplicate names", `
database:
  host: localhost
  name: graph
entities:
  - name: a
    enabled: false
  - name: a
    enabled: false
`},
		{"enabled without key", `
database:
  host: localhost
  name: graph
entities:
  - name: a
    file: a.tsv
    table: a
    enabled: true
    fields:
      - source: id
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_DisabledSpecsSkipValidation(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
database:
  host: localhost
  name: graph
entities:
  - name: a
    enabled: false
`))
	require.NoError(t, err)
	assert.False(t, cfg.Entities[0].Enabled)
}

func TestSampleVariant(t *testing.T) {
	t.Setenv("TEST_DB_USER", "loader")
	cfg, err := LoadConfig(writeConfig(t, baseConfig))
	require.NoError(t, err)

	derived := SampleVariant(cfg, "samples")
	assert.Equal(t, "samples", derived.Input.Dir)
	assert.Equal(t, "sample_companies.tsv", derived.Entities[0].File)
	assert.Equal(t, "sample_works_at.tsv", derived.Relationships[0].File)

	// the source config is untouched
	assert.Equal(t, "./data", cfg.Input.Dir)
	assert.Equal(t, "companies.tsv", cfg.Entities[0].File)
}
