package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteBusyTimeout  = 5 * time.Second
	sqliteReaderConns  = 4
	sqliteReaderIdle   = 2
	sqliteConnLifetime = 30 * time.Minute
)

// sqliteDSN builds a go-sqlite3 URI. mode is a SQLite URI parameter
// (rwc or ro); the underscored keys are driver pragmas.
func sqliteDSN(path, mode string, pragmas url.Values) string {
	q := url.Values{}
	q.Set("mode", mode)
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", strconv.Itoa(int(sqliteBusyTimeout/time.Millisecond)))
	for k, v := range pragmas {
		q[k] = v
	}
	return "file:" + path + "?" + q.Encode()
}

// OpenSQLite opens the single writer connection of the session database,
// creating the file and its directory. Transactions take the write lock up
// front because session inserts read the next position before writing it.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	path, err := prepareSQLitePath(dbPath)
	if err != nil {
		return nil, err
	}
	dsn := sqliteDSN(path, "rwc", url.Values{
		"_journal_mode": {"WAL"},
		"_synchronous":  {"NORMAL"},
		"_txlock":       {"immediate"},
	})
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return db, nil
}

// OpenSQLiteReader opens the read-only pool. The writer must have opened
// the database first so the WAL files exist.
func OpenSQLiteReader(dbPath string) (*sql.DB, error) {
	path := absSQLitePath(dbPath)
	db, err := sql.Open("sqlite3", sqliteDSN(path, "ro", nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open read-only database: %w", err)
	}
	db.SetMaxOpenConns(sqliteReaderConns)
	db.SetMaxIdleConns(sqliteReaderIdle)
	db.SetConnMaxLifetime(sqliteConnLifetime)
	return db, nil
}

func prepareSQLitePath(dbPath string) (string, error) {
	if dbPath == "" {
		return "", fmt.Errorf("database path is required")
	}
	path := absSQLitePath(dbPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create database file: %w", err)
	}
	return path, f.Close()
}

func absSQLitePath(dbPath string) string {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return dbPath
	}
	return abs
}
