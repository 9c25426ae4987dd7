package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mutecomm/go-sqlcipher/v4"
	_ "modernc.org/sqlite"
)

const (
	// driverEncrypted is registered by go-sqlcipher.
	driverEncrypted = "sqlite3"
	// driverPlain is registered by modernc.org/sqlite.
	driverPlain = "sqlite"
)

type DB struct {
	*sql.DB
	encrypted bool
}

// Open opens the SQLite database at dbPath. A non-empty key opens it through
// SQLCipher; an empty key opens a plain database with the pure-Go driver.
func Open(dbPath, key string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	driver, dsn := driverPlain, dbPath
	if key != "" {
		driver = driverEncrypted
		dsn = fmt.Sprintf("%s?_key=%s", dbPath, url.QueryEscape(key))
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer. One pooled connection serializes every
	// transaction and keeps per-connection pragmas in force.
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB, encrypted: key != ""}, nil
}

// Encrypted reports whether the database was opened through SQLCipher
func (db *DB) Encrypted() bool {
	return db.encrypted
}

// InTx runs fn inside a transaction, committing when fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
