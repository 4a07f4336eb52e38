// Package db opens the session store database.
package db

import "github.com/jmoiron/sqlx"

// Pool separates the write connection from the read connections. SQLite gets
// a single writer and a read-only pool; PostgreSQL shares one pool for both.
type Pool struct {
	writer *sqlx.DB
	reader *sqlx.DB
}

// NewPool creates a Pool. writer and reader may be the same handle.
func NewPool(writer, reader *sqlx.DB) *Pool {
	return &Pool{writer: writer, reader: reader}
}

// Writer is used for INSERT, UPDATE, DELETE and transactions.
func (p *Pool) Writer() *sqlx.DB { return p.writer }

// Reader is used for SELECT queries.
func (p *Pool) Reader() *sqlx.DB { return p.reader }

// DriverName returns the sqlx driver name of the pool.
func (p *Pool) DriverName() string { return p.writer.DriverName() }

// Close closes both pools, once each.
func (p *Pool) Close() error {
	wErr := p.writer.Close()
	if p.reader != p.writer {
		if rErr := p.reader.Close(); rErr != nil && wErr == nil {
			return rErr
		}
	}
	return wErr
}
