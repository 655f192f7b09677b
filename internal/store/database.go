// Package store implements the Session Store (C1): the PostgreSQL-backed
// system of record for every session, host, project, instance and action
// plugin the engine works with.
package store

import (
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Config holds PostgreSQL connection parameters.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Store wraps the underlying connection pool and satisfies
// session.Store.
type Store struct {
	db *sql.DB
}

func validateConfig(cfg Config) error {
	if cfg.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if net.ParseIP(cfg.Host) == nil {
		hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-.]{0,253}[a-zA-Z0-9])?$`)
		if !hostnameRegex.MatchString(cfg.Host) {
			return fmt.Errorf("invalid database host: %s", cfg.Host)
		}
	}

	if cfg.Port == "" {
		return fmt.Errorf("database port cannot be empty")
	}
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid database port: %s (must be 1-65535)", cfg.Port)
	}

	if cfg.User == "" {
		return fmt.Errorf("database user cannot be empty")
	}
	identRegex := regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	if !identRegex.MatchString(cfg.User) {
		return fmt.Errorf("invalid database user: %s", cfg.User)
	}

	if cfg.DBName == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if !identRegex.MatchString(cfg.DBName) {
		return fmt.Errorf("invalid database name: %s", cfg.DBName)
	}

	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if cfg.SSLMode != "" {
		valid := false
		for _, m := range validSSLModes {
			if cfg.SSLMode == m {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid SSL mode: %s (must be one of: %s)", cfg.SSLMode, strings.Join(validSSLModes, ", "))
		}
	}

	return nil
}

// New opens a connection pool to PostgreSQL per cfg, validating the
// configuration first to keep operator-supplied connection parameters out
// of a raw connection string unchecked.
func New(cfg Config) (*Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewForTesting wraps an existing *sql.DB (e.g. a go-sqlmock connection)
// as a Store, for use in tests only.
func NewForTesting(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates every table the store needs if it doesn't already
// exist.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id VARCHAR(255) PRIMARY KEY,
			state VARCHAR(50) NOT NULL,
			maintenance_at TIMESTAMP NOT NULL,
			meta TEXT,
			workflow VARCHAR(255) NOT NULL DEFAULT 'default',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state)`,

		`CREATE TABLE IF NOT EXISTS hosts (
			session_id VARCHAR(255) REFERENCES sessions(session_id) ON DELETE CASCADE,
			hostname VARCHAR(255) NOT NULL,
			type VARCHAR(50) NOT NULL,
			maintained BOOLEAN DEFAULT false,
			disabled BOOLEAN DEFAULT false,
			details TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, hostname)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hosts_session_type ON hosts(session_id, type)`,

		`CREATE TABLE IF NOT EXISTS projects (
			session_id VARCHAR(255) REFERENCES sessions(session_id) ON DELETE CASCADE,
			project_id VARCHAR(255) NOT NULL,
			state VARCHAR(50) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, project_id)
		)`,

		`CREATE TABLE IF NOT EXISTS instances (
			session_id VARCHAR(255) REFERENCES sessions(session_id) ON DELETE CASCADE,
			instance_id VARCHAR(255) NOT NULL,
			instance_name VARCHAR(255) NOT NULL,
			project_id VARCHAR(255) NOT NULL,
			host VARCHAR(255) NOT NULL,
			state VARCHAR(50) NOT NULL DEFAULT '',
			project_state VARCHAR(50) NOT NULL DEFAULT '',
			action VARCHAR(50) NOT NULL DEFAULT '',
			action_done BOOLEAN DEFAULT false,
			details TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, instance_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_instances_session_host ON instances(session_id, host)`,
		`CREATE INDEX IF NOT EXISTS idx_instances_session_project ON instances(session_id, project_id)`,

		`CREATE TABLE IF NOT EXISTS action_plugins (
			session_id VARCHAR(255) REFERENCES sessions(session_id) ON DELETE CASCADE,
			plugin VARCHAR(255) NOT NULL,
			type VARCHAR(20) NOT NULL,
			state VARCHAR(50) NOT NULL DEFAULT '',
			meta TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, plugin)
		)`,

		`CREATE TABLE IF NOT EXISTS action_plugin_instances (
			session_id VARCHAR(255) REFERENCES sessions(session_id) ON DELETE CASCADE,
			plugin VARCHAR(255) NOT NULL,
			hostname VARCHAR(255) NOT NULL,
			state VARCHAR(50) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, plugin, hostname)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}
