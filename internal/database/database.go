// Package database provides MySQL and PostgreSQL connection management for gofkdump.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/dbsmedya/gofkdump/internal/config"
	"github.com/dbsmedya/gofkdump/internal/logger"
)

// Manager owns one connection pool to the configured database.
type Manager struct {
	DB     *sql.DB
	config *config.DatabaseConfig
	logger *logger.Logger

	maxRetries      uint64
	initialInterval time.Duration
}

// NewManager creates a new database manager from configuration.
func NewManager(cfg *config.DatabaseConfig, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Manager{
		config:          cfg,
		logger:          log,
		maxRetries:      2,
		initialInterval: time.Second,
	}
}

// Connect opens and verifies the connection pool.
func (m *Manager) Connect(ctx context.Context) error {
	db, err := m.connectWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to %s database %q: %w", m.config.Dialect, m.config.Database, err)
	}
	m.DB = db
	return nil
}

// connectWithRetry attempts to connect with exponential backoff.
func (m *Manager) connectWithRetry(ctx context.Context) (*sql.DB, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = m.initialInterval
	expBackoff.Multiplier = 2.0
	expBackoff.MaxElapsedTime = 0
	expBackoff.Reset()

	b := backoff.WithContext(backoff.WithMaxRetries(expBackoff, m.maxRetries), ctx)

	var db *sql.DB
	attempt := 0
	operation := func() error {
		attempt++
		conn, err := m.connect()
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			m.logger.Warnw("Database ping failed", "attempt", attempt, "error", err)
			return err
		}
		db = conn
		return nil
	}

	if err := backoff.Retry(operation, b); err != nil {
		return nil, fmt.Errorf("failed after %d attempts: %w", attempt, err)
	}
	return db, nil
}

// connect creates a database connection pool without dialing.
func (m *Manager) connect() (*sql.DB, error) {
	driver, err := DriverName(m.config.Dialect)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, DSN(m.config))
	if err != nil {
		return nil, err
	}

	if m.config.MaxConnections > 0 {
		db.SetMaxOpenConns(m.config.MaxConnections)
	}
	if m.config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(m.config.MaxIdleConnections)
	}
	db.SetConnMaxLifetime(10 * time.Minute)

	return db, nil
}

// DriverName maps a configured dialect to its database/sql driver name.
func DriverName(dialect string) (string, error) {
	switch dialect {
	case config.DialectMySQL, "":
		return "mysql", nil
	case config.DialectPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// DSN builds the connection string for the configured dialect.
func DSN(cfg *config.DatabaseConfig) string {
	if cfg.Dialect == config.DialectPostgres {
		return BuildPgDSN(cfg)
	}
	return BuildDSN(cfg)
}

// BuildDSN constructs a MySQL DSN from configuration.
func BuildDSN(cfg *config.DatabaseConfig) string {
	// Format: user:password@tcp(host:port)/database?params
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
	)

	if cfg.Database != "" {
		dsn += cfg.Database
	}

	// multiStatements lets a whole table script replay in one Exec
	params := "?parseTime=true&multiStatements=true"
	switch cfg.TLS {
	case "disable":
		params += "&tls=false"
	case "required":
		params += "&tls=true"
	case "preferred", "":
		params += "&tls=preferred"
	}

	return dsn + params
}

// BuildPgDSN constructs a postgres:// URL from configuration.
func BuildPgDSN(cfg *config.DatabaseConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:   "/" + cfg.Database,
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else if cfg.User != "" {
		u.User = url.User(cfg.User)
	}

	q := url.Values{}
	switch cfg.TLS {
	case "disable":
		q.Set("sslmode", "disable")
	case "required":
		q.Set("sslmode", "require")
	default:
		q.Set("sslmode", "prefer")
	}
	if cfg.Schema != "" {
		q.Set("search_path", cfg.Schema)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// Close closes the connection pool.
func (m *Manager) Close() error {
	if m.DB == nil {
		return nil
	}
	if err := m.DB.Close(); err != nil {
		return fmt.Errorf("close %s connection: %w", m.config.Dialect, err)
	}
	return nil
}

// Ping verifies the connection is alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.DB == nil {
		return fmt.Errorf("not connected")
	}
	if err := m.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", m.config.Dialect, err)
	}
	return nil
}
