package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateBackup()...)
	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors
	db := &c.Database

	validDialects := map[string]bool{DialectMySQL: true, DialectPostgres: true}
	if !validDialects[db.Dialect] {
		errors = append(errors, ValidationError{
			Field:   "database.dialect",
			Message: "dialect must be 'mysql' or 'postgres'",
		})
	}

	if db.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "host is required",
		})
	}

	if db.Port <= 0 || db.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if db.User == "" {
		errors = append(errors, ValidationError{
			Field:   "database.user",
			Message: "user is required",
		})
	}

	if db.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "database name is required",
		})
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[db.TLS] {
		errors = append(errors, ValidationError{
			Field:   "database.tls",
			Message: "tls must be 'disable', 'preferred', or 'required'",
		})
	}

	if db.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   "database.max_connections",
			Message: "max_connections cannot be negative",
		})
	}

	if db.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   "database.max_idle_connections",
			Message: "max_idle_connections cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateBackup() ValidationErrors {
	var errors ValidationErrors

	if c.Backup.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "backup.dir",
			Message: "dir is required",
		})
	}

	validCompression := map[string]bool{CompressionNone: true, CompressionZstd: true, "": true}
	if !validCompression[c.Backup.Compression] {
		errors = append(errors, ValidationError{
			Field:   "backup.compression",
			Message: "compression must be 'none' or 'zstd'",
		})
	}

	for table, filter := range c.Backup.TableFilters {
		if strings.Contains(filter, ";") {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("backup.table_filters.%s", table),
				Message: "filter must be a single clause without ';'",
			})
		}
	}

	return errors
}

func (c *Config) validateScheduler() ValidationErrors {
	var errors ValidationErrors
	s := &c.Scheduler

	if s.Workers < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.workers",
			Message: "workers cannot be negative",
		})
	}

	if s.PollMinInterval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.poll_min_interval",
			Message: "poll_min_interval must be positive",
		})
	}

	if s.PollMaxInterval < s.PollMinInterval {
		errors = append(errors, ValidationError{
			Field:   "scheduler.poll_max_interval",
			Message: "poll_max_interval must not be smaller than poll_min_interval",
		})
	}

	if s.HandshakeTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.handshake_timeout",
			Message: "handshake_timeout must be positive",
		})
	}

	if s.DependencyTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.dependency_timeout",
			Message: "dependency_timeout cannot be negative",
		})
	}

	if s.JobTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.job_timeout",
			Message: "job_timeout cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
