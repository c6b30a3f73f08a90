package db

import (
	"errors"

	"github.com/lib/pq"
)

const pgUniqueViolationCode = "23505"

// NewPostgres opens a PostgreSQL pool through lib/pq.
func NewPostgres(cfg Config) (*SQLDatabase, error) {
	cfg.Driver = DriverPostgres
	return openPool(cfg)
}

func pgUniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolationCode {
		return pqErr.Constraint, true
	}
	return "", false
}
