package stash

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds SQLite stash configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLiteStash implements Stash on a SQLite database file.
type SQLiteStash struct {
	db  *sql.DB
	cfg Config
}

// NewSQLiteStash creates a stash over the given database path.
func NewSQLiteStash(cfg Config) (*SQLiteStash, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &SQLiteStash{cfg: cfg}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStash) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStash) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded migration files.
func (s *SQLiteStash) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Load implements Stash.
func (s *SQLiteStash) Load(ctx context.Context, name string) (map[string]any, bool, error) {
	var doc string
	query := `SELECT data FROM settings WHERE name = ?`
	err := s.db.QueryRowContext(ctx, query, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load settings %q: %w", name, err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(doc), &data); err != nil {
		return nil, false, fmt.Errorf("stored settings %q are corrupt: %w", name, err)
	}
	return data, true, nil
}

// Dump implements Stash.
func (s *SQLiteStash) Dump(ctx context.Context, name string, data map[string]any) error {
	doc, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode settings %q: %w", name, err)
	}
	query := `
		INSERT INTO settings (name, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, name, string(doc), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store settings %q: %w", name, err)
	}
	return nil
}

// Delete implements Stash.
func (s *SQLiteStash) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete settings %q: %w", name, err)
	}
	return nil
}

// Keys implements Stash.
func (s *SQLiteStash) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM settings ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan settings name: %w", err)
		}
		keys = append(keys, name)
	}
	return keys, rows.Err()
}

// Exists implements Stash.
func (s *SQLiteStash) Exists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM settings WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check settings %q: %w", name, err)
	}
	return true, nil
}

// Clear implements Stash.
func (s *SQLiteStash) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings`); err != nil {
		return fmt.Errorf("failed to clear settings: %w", err)
	}
	return nil
}
