package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// NewMySQL opens a MySQL pool.
func NewMySQL(cfg Config) (*SQLDatabase, error) {
	cfg.Driver = DriverMySQL
	return openPool(cfg)
}

// UniqueViolation reports whether err is a duplicate key error and returns the key name.
func UniqueViolation(err error) (string, bool) {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return extractDuplicateKeyName(myErr.Message), true
	}
	if name, ok := pgUniqueViolation(err); ok {
		return name, true
	}
	return "", false
}

func extractDuplicateKeyName(message string) string {
	const marker = "for key "
	idx := strings.LastIndex(message, marker)
	if idx == -1 {
		return ""
	}
	key := strings.TrimSpace(message[idx+len(marker):])
	return strings.Trim(key, " `\"'")
}
