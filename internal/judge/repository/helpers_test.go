package repository

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"nitz/internal/common/cache"
	"nitz/internal/common/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("redis cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

// fakeDB answers queries by the first registered fragment they contain.
type fakeDB struct {
	rows     map[string][][]any
	affected map[string]int64
	execErr  map[string]error
	queries  []string
	execs    []execCall
	txCount  int
	driver   string
	// afterExec lets a test change state once a statement has run.
	afterExec func(query string)
}

type execCall struct {
	query string
	args  []any
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		rows:     make(map[string][][]any),
		affected: make(map[string]int64),
		execErr:  make(map[string]error),
	}
}

func (f *fakeDB) match(query string, m map[string][][]any) [][]any {
	for fragment, rows := range m {
		if strings.Contains(query, fragment) {
			return rows
		}
	}
	return nil
}

func (f *fakeDB) Query(ctx context.Context, query string, args ...any) (db.Rows, error) {
	f.queries = append(f.queries, query)
	return &fakeRows{rows: f.match(query, f.rows), idx: -1}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, query string, args ...any) db.Row {
	f.queries = append(f.queries, query)
	rows := f.match(query, f.rows)
	if len(rows) == 0 {
		return &fakeRow{err: fmt.Errorf("scan failed: %w", sql.ErrNoRows)}
	}
	return &fakeRow{values: rows[0]}
}

func (f *fakeDB) Exec(ctx context.Context, query string, args ...any) (db.Result, error) {
	f.execs = append(f.execs, execCall{query: query, args: args})
	for fragment, err := range f.execErr {
		if strings.Contains(query, fragment) {
			return nil, err
		}
	}
	var affected int64
	for fragment, n := range f.affected {
		if strings.Contains(query, fragment) {
			affected = n
		}
	}
	if f.afterExec != nil {
		f.afterExec(query)
	}
	return fakeResult(affected), nil
}

func (f *fakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	f.txCount++
	return fn(&fakeTx{f})
}

func (f *fakeDB) Ping(ctx context.Context) error { return nil }
func (f *fakeDB) Close() error                   { return nil }
func (f *fakeDB) Driver() string {
	if f.driver != "" {
		return f.driver
	}
	return db.DriverMySQL
}

func (f *fakeDB) execsMatching(fragment string) []execCall {
	var out []execCall
	for _, e := range f.execs {
		if strings.Contains(e.query, fragment) {
			out = append(out, e)
		}
	}
	return out
}

type fakeTx struct{ *fakeDB }

func (t *fakeTx) Commit() error   { return nil }
func (t *fakeTx) Rollback() error { return nil }

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error { return assign(dest, r.rows[r.idx]) }
func (r *fakeRows) Close() error           { return nil }
func (r *fakeRows) Err() error             { return nil }

type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("expected %d columns, got %d", len(dest), len(values))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(values[i]))
	}
	return nil
}
