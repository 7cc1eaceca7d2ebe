package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"atmos-server/internal/config"
)

func Open(cfg config.Config) (*sql.DB, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	if cfg.LogSQL {
		connector, err := NewLoggingConnector(dsn, nil)
		if err != nil {
			return nil, fmt.Errorf("db logging connector: %w", err)
		}
		db = sql.OpenDB(connector)
	} else {
		db, err = sql.Open(cfg.Driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
	}

	// Pooling (SQLite is typically best with low concurrency; tune if needed)
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	// Validate connectivity early
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return db, nil
}

func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

func buildDSN(cfg config.Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	// Ensure directory exists for file-backed sqlite db
	path := cfg.Path
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	// Reasonable defaults:
	// - foreign_keys=on: enforce FK constraints
	// - busy_timeout: helps with "database is locked" under concurrent dev use
	// - journal_mode=WAL: better concurrent reads/writes in dev
	// NOTE: journal_mode via DSN is supported by mattn/go-sqlite3.
	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}

	// If caller provided something like "file:/data/app.db?x=y" as Path, don't double-wrap
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
