package config

import (
	"fmt"
	"os"
	"unicode/utf8"

	"graph-loader/pkg/types"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied by LoadConfig when the corresponding setting is absent.
const (
	DefaultBatchSize    = 1000
	DefaultWorkers      = 1
	DefaultMaxRetries   = 3
	DefaultBackoffMs    = 1000
	DefaultMaxOpenConns = 50
	DefaultSampleRows   = 10000
)

// LoadConfig loads configuration from a config.yaml file
func LoadConfig(configPath string) (*types.Config, error) {
	// If no path provided, use default
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Optional: load .env file if present, but do not overwrite existing env vars.
	// godotenv.Load would set variables unconditionally; to avoid overwriting we
	// read into a map and set missing keys ourselves.
	if _, err := os.Stat(".env"); err == nil {
		if m, err := godotenv.Read(".env"); err == nil {
			for k, v := range m {
				if os.Getenv(k) == "" {
					os.Setenv(k, v)
				}
			}
		}
	}

	// Expand environment variables in the config content so config.yaml can
	// contain placeholders like ${DATABASE_USER} that are populated from the
	// process environment (possibly loaded from .env above).
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	// Parse YAML
	var config types.Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	applyDefaults(&config)

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyDefaults fills in unset optional settings
func applyDefaults(config *types.Config) {
	if config.Input.Delimiter == "" {
		config.Input.Delimiter = "\t"
	}
	if config.Input.Encoding == "" {
		config.Input.Encoding = "utf-8"
	}
	if config.Processing.Workers <= 0 {
		config.Processing.Workers = DefaultWorkers
	}
	if config.Processing.MaxRetries <= 0 {
		config.Processing.MaxRetries = DefaultMaxRetries
	}
	if config.Processing.BaseBackoffMs <= 0 {
		config.Processing.BaseBackoffMs = DefaultBackoffMs
	}
	if config.Processing.SampleRows <= 0 {
		config.Processing.SampleRows = DefaultSampleRows
	}
	if config.Processing.SampleDir == "" {
		config.Processing.SampleDir = "samples"
	}
	if config.Processing.ContinueOnError == nil {
		continueOnError := true
		config.Processing.ContinueOnError = &continueOnError
	}
	if config.Database.MaxOpenConns <= 0 {
		config.Database.MaxOpenConns = DefaultMaxOpenConns
	}
	for _, specs := range [][]types.FileSpec{config.Entities, config.Relationships} {
		for i := range specs {
			if specs[i].BatchSize <= 0 {
				specs[i].BatchSize = DefaultBatchSize
			}
		}
	}
}

// validateConfig performs basic validation on the configuration
func validateConfig(config *types.Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}

	if config.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}

	if utf8.RuneCountInString(config.Input.Delimiter) != 1 {
		return fmt.Errorf("input.delimiter must be a single character, got %q", config.Input.Delimiter)
	}

	if len(config.Entities) == 0 && len(config.Relationships) == 0 {
		return fmt.Errorf("at least one entity or relationship file must be configured")
	}

	seen := make(map[string]bool)
	for i, spec := range config.Entities {
		if err := validateFileSpec(&spec, fmt.Sprintf("entities[%d]", i), seen); err != nil {
			return err
		}
	}
	for i, spec := range config.Relationships {
		if err := validateFileSpec(&spec, fmt.Sprintf("relationships[%d]", i), seen); err != nil {
			return err
		}
	}

	return nil
}

func validateFileSpec(spec *types.FileSpec, prefix string, seen map[string]bool) error {
	if spec.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if seen[spec.Name] {
		return fmt.Errorf("%s.name %q is declared more than once", prefix, spec.Name)
	}
	seen[spec.Name] = true

	if !spec.Enabled {
		return nil
	}
	if spec.File == "" {
		return fmt.Errorf("%s.file is required when enabled", prefix)
	}
	if spec.Table == "" {
		return fmt.Errorf("%s.table is required when enabled", prefix)
	}
	if len(spec.Key) == 0 {
		return fmt.Errorf("%s.key is required when enabled", prefix)
	}
	if len(spec.Fields) == 0 {
		return fmt.Errorf("%s.fields is required when enabled", prefix)
	}
	return nil
}
