// Package dialect covers the SQL differences the session store meets between
// SQLite and PostgreSQL.
package dialect

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Driver names as registered with database/sql.
const (
	SQLite3 = "sqlite3"
	PGX     = "pgx"
)

// pgUniqueViolation is the SQLSTATE of a unique or primary key conflict.
const pgUniqueViolation = "23505"

// IsPostgres reports whether driver is PostgreSQL (pgx).
func IsPostgres(driver string) bool {
	return driver == PGX
}

// TimestampType is the column type for session timestamps. PostgreSQL keeps
// the zone so times read back as the instant that was written.
func TimestampType(driver string) string {
	if IsPostgres(driver) {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

// BoolToInt converts a boolean for INTEGER flag columns, which both drivers
// accept.
func BoolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// IsUniqueViolation reports whether err is a primary key or unique
// constraint conflict from either driver.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
