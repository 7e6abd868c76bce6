// Package config provides configuration structures and loading for gofkdump.
package config

import (
	"path/filepath"
	"runtime"
	"time"
)

// Supported database dialects.
const (
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
)

// Supported artifact compression modes.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// Config represents the complete application configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Backup    BackupConfig    `yaml:"backup" mapstructure:"backup"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	State     StateConfig     `yaml:"state" mapstructure:"state"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig represents the connection to the database being backed up or restored.
type DatabaseConfig struct {
	Dialect            string `yaml:"dialect" mapstructure:"dialect"` // mysql or postgres
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	Schema             string `yaml:"schema" mapstructure:"schema"` // postgres only, defaults to public
	TLS                string `yaml:"tls" mapstructure:"tls"`       // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// BackupConfig controls where dump artifacts live and how they are written.
type BackupConfig struct {
	Dir          string            `yaml:"dir" mapstructure:"dir"`
	Compression  string            `yaml:"compression" mapstructure:"compression"`     // none or zstd
	TableFilters map[string]string `yaml:"table_filters" mapstructure:"table_filters"` // table -> row filter suffix
}

// SchedulerConfig controls the worker pool and its polling behaviour.
type SchedulerConfig struct {
	Workers           int           `yaml:"workers" mapstructure:"workers"` // 0 = number of CPUs
	PollMinInterval   time.Duration `yaml:"poll_min_interval" mapstructure:"poll_min_interval"`
	PollMaxInterval   time.Duration `yaml:"poll_max_interval" mapstructure:"poll_max_interval"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" mapstructure:"handshake_timeout"`
	DependencyTimeout time.Duration `yaml:"dependency_timeout" mapstructure:"dependency_timeout"` // 0 = wait forever
	JobTimeout        time.Duration `yaml:"job_timeout" mapstructure:"job_timeout"`               // 0 = no deadline
}

// StateConfig locates the processed-state store shared by master and workers.
type StateConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // defaults to <backup.dir>/state.db
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Dialect:            DialectMySQL,
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     4,
			MaxIdleConnections: 2,
		},
		Backup: BackupConfig{
			Dir:         "backup",
			Compression: CompressionNone,
		},
		Scheduler: SchedulerConfig{
			Workers:          0,
			PollMinInterval:  5 * time.Millisecond,
			PollMaxInterval:  50 * time.Millisecond,
			HandshakeTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// EffectiveWorkers returns the configured worker count, falling back to the CPU count.
func (s SchedulerConfig) EffectiveWorkers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.NumCPU()
}

// StatePath returns the state store location, defaulting to a file inside the backup dir.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return c.State.Path
	}
	return filepath.Join(c.Backup.Dir, "state.db")
}

// TableFilter returns the row filter suffix configured for a table, or "".
func (b BackupConfig) TableFilter(table string) string {
	if b.TableFilters == nil {
		return ""
	}
	return b.TableFilters[table]
}

// DefaultPort returns the conventional port for a dialect.
func DefaultPort(dialect string) int {
	if dialect == DialectPostgres {
		return 5432
	}
	return 3306
}
