package db

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

func TestUniqueViolation(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		wantKey string
		wantOK  bool
	}{
		{
			name:    "mysql duplicate",
			err:     &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '7-1' for key 'user_problem.uk_user_problem'"},
			wantKey: "user_problem.uk_user_problem",
			wantOK:  true,
		},
		{
			name:    "wrapped mysql duplicate",
			err:     fmt.Errorf("exec failed: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key `PRIMARY`"}),
			wantKey: "PRIMARY",
			wantOK:  true,
		},
		{
			name:   "mysql other error",
			err:    &mysql.MySQLError{Number: 1213, Message: "Deadlock found"},
			wantOK: false,
		},
		{
			name:    "postgres duplicate",
			err:     fmt.Errorf("exec failed: %w", &pq.Error{Code: "23505", Constraint: "user_problem_pkey"}),
			wantKey: "user_problem_pkey",
			wantOK:  true,
		},
		{
			name:   "postgres other error",
			err:    &pq.Error{Code: "23503"},
			wantOK: false,
		},
		{
			name:   "plain error",
			err:    fmt.Errorf("boom"),
			wantOK: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, ok := UniqueViolation(tc.err)
			if ok != tc.wantOK {
				t.Fatalf("expected ok=%v, got %v", tc.wantOK, ok)
			}
			if key != tc.wantKey {
				t.Fatalf("expected key %q, got %q", tc.wantKey, key)
			}
		})
	}
}

func TestExtractDuplicateKeyNameWithoutMarker(t *testing.T) {
	if got := extractDuplicateKeyName("Duplicate entry"); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("scan: %w", sql.ErrNoRows)) {
		t.Fatalf("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(sql.ErrConnDone) {
		t.Fatalf("expected other errors not to match")
	}
}

func TestRebindFollowsDriver(t *testing.T) {
	const query = "UPDATE user_problem SET status = ? WHERE user_id = ? AND problem_id = ?"
	if got := NewWithDB(nil, DriverMySQL).Rebind(query); got != query {
		t.Fatalf("expected mysql query unchanged, got %q", got)
	}
	want := "UPDATE user_problem SET status = $1 WHERE user_id = $2 AND problem_id = $3"
	if got := NewWithDB(nil, DriverPostgres).Rebind(query); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	if _, err := Open(Config{Driver: "sqlite", DSN: "file::memory:"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := Open(Config{Driver: DriverMySQL}); err == nil {
		t.Fatalf("expected empty dsn error")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{MaxOpenConnections: 3}
	applyDefaults(&cfg)
	if cfg.Driver != DriverMySQL {
		t.Fatalf("expected mysql default driver, got %q", cfg.Driver)
	}
	if cfg.MaxOpenConnections != 3 || cfg.MaxIdleConnections != 5 {
		t.Fatalf("unexpected pool sizes: %+v", cfg)
	}
	if cfg.ConnMaxLifetime != 5*time.Minute {
		t.Fatalf("expected 5m lifetime, got %v", cfg.ConnMaxLifetime)
	}
}
