package types

// Config represents the main configuration structure
type Config struct {
	Version       string     `yaml:"version"`
	Database      Database   `yaml:"database"`
	Input         Input      `yaml:"input"`
	Entities      []FileSpec `yaml:"entities"`
	Relationships []FileSpec `yaml:"relationships"`
	Processing    Processing `yaml:"processing"`
}

// Database holds sink connection configuration
type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`

	// Connection pool settings. Concurrent file workers share this pool;
	// exhaustion surfaces as a transient sink error and is retried.
	MaxOpenConns    int `yaml:"max_open_conns"`
	MaxIdleConns    int `yaml:"max_idle_conns"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime_seconds"`
}

// Input holds settings shared by all input files
type Input struct {
	Dir       string `yaml:"dir"`
	Delimiter string `yaml:"delimiter"` // single character, default tab
	Encoding  string `yaml:"encoding"`  // utf-8 (default), latin-1, windows-1252
	// DropOverflow controls the policy for lines with more fields than the
	// header: false (default) merges the excess into the last column,
	// true drops the line as malformed.
	DropOverflow bool `yaml:"drop_overflow"`
}

// FileSpec describes one delimited file to ingest and how its columns map
// onto a sink table. Entities and relationships use the same shape; the
// pipeline loads all entity files before any relationship file.
type FileSpec struct {
	Name      string      `yaml:"name"`
	File      string      `yaml:"file"`
	Table     string      `yaml:"table"`
	Enabled   bool        `yaml:"enabled"`
	Key       []string    `yaml:"key"`
	Fields    []FieldSpec `yaml:"fields"`
	BatchSize int         `yaml:"batch_size"`
}

// FieldSpec declares a single column mapping: rename plus coercion
type FieldSpec struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	Type   string `yaml:"type"` // string, int, float, bool
	MaxLen int    `yaml:"max_len"`
}

// Processing holds run-level processing configuration
type Processing struct {
	Workers       int    `yaml:"workers"`
	MaxRetries    int    `yaml:"max_retries"`
	BaseBackoffMs int    `yaml:"base_backoff_ms"`
	LogLevel      string `yaml:"log_level"`
	LogPath       string `yaml:"log_path"`
	// ContinueOnError defaults to true: a failed file is counted and
	// reported while sibling files and later phases keep going. Setting it
	// to false stops the run on the first file failure.
	ContinueOnError *bool `yaml:"continue_on_error"`
	// HeartbeatBatchInterval controls how many batches between PROGRESS heartbeats
	HeartbeatBatchInterval int `yaml:"heartbeat_batch_interval"`

	// Sample-run settings (mode=sample)
	SampleDir  string `yaml:"sample_dir"`
	SampleRows int    `yaml:"sample_rows"`
}
