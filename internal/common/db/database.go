package db

import (
	"context"
	"database/sql"
	"errors"
)

// Scanner is implemented by Row and Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Rows is a forward-only cursor over a query result.
type Rows interface {
	Scanner
	Next() bool
	Close() error
	Err() error
}

// Row is the result of QueryRow.
type Row interface {
	Scanner
}

// Result summarizes an Exec.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// Querier abstracts database operations for both database and transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Exec(ctx context.Context, query string, args ...any) (Result, error)
}

// Transaction is a Querier bound to one database transaction.
type Transaction interface {
	Querier
	Commit() error
	Rollback() error
}

// Database is a pooled connection to a relational store.
// Queries are written with '?' placeholders and rebound for the driver.
type Database interface {
	Querier
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
	Ping(ctx context.Context) error
	Close() error
	Driver() string
}

// IsNoRows checks if the error is sql.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
