package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"nitz/internal/common/cache"
	"nitz/internal/common/db"
	"nitz/internal/judge/model"
	"nitz/internal/judge/sandbox/profile"
	appErr "nitz/pkg/errors"
)

const (
	defaultProblemTTL      = 10 * time.Minute
	defaultProblemEmptyTTL = time.Minute
	problemKeyPrefix       = "judge:problem:"
)

// ProblemRepository loads problems with their test cases.
type ProblemRepository interface {
	GetProblem(ctx context.Context, problemID int64) (*model.Problem, error)
	Invalidate(ctx context.Context, problemID int64) error
}

// SQLProblemRepository reads problems from the relational store through a redis cache.
type SQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewProblemRepository creates a repository. cacheClient may be nil.
func NewProblemRepository(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *SQLProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemEmptyTTL
	}
	return &SQLProblemRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

// GetProblem returns the problem or a ProblemNotFound error.
func (r *SQLProblemRepository) GetProblem(ctx context.Context, problemID int64) (*model.Problem, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "must be positive")
	}
	var (
		problem *model.Problem
		err     error
	)
	if r.cache != nil {
		problem, err = cache.GetJSONCached(ctx, r.cache, problemKey(problemID), r.ttl, r.emptyTTL,
			func(ctx context.Context) (*model.Problem, error) {
				return r.loadProblem(ctx, problemID)
			})
	} else {
		problem, err = r.loadProblem(ctx, problemID)
	}
	if err != nil {
		return nil, storageError(err, "load problem failed")
	}
	if problem == nil {
		return nil, appErr.Newf(appErr.ProblemNotFound, "problem %d not found", problemID)
	}
	return problem, nil
}

// Invalidate drops the cached copy of a problem.
func (r *SQLProblemRepository) Invalidate(ctx context.Context, problemID int64) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.Del(ctx, problemKey(problemID)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "invalidate problem cache failed")
	}
	return nil
}

// loadProblem returns nil without error when the problem does not exist.
func (r *SQLProblemRepository) loadProblem(ctx context.Context, problemID int64) (*model.Problem, error) {
	if r.db == nil {
		return nil, errors.New("database is not configured")
	}
	problem := &model.Problem{ID: problemID}
	row := r.db.QueryRow(ctx,
		"SELECT difficulty, time_limit_ms, memory_limit_mb FROM problems WHERE id = ?", problemID)
	if err := row.Scan(&problem.Difficulty, &problem.TimeLimitMs, &problem.MemoryLimitMB); err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}

	languages, err := r.loadAllowedLanguages(ctx, problemID)
	if err != nil {
		return nil, err
	}
	problem.AllowedLanguages = languages

	cases, err := r.loadTestCases(ctx, problemID)
	if err != nil {
		return nil, err
	}
	problem.TestCases = cases
	return problem, nil
}

func (r *SQLProblemRepository) loadAllowedLanguages(ctx context.Context, problemID int64) ([]profile.LanguageID, error) {
	rows, err := r.db.Query(ctx,
		"SELECT language_id FROM problem_languages WHERE problem_id = ? ORDER BY language_id", problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []profile.LanguageID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		if id, ok := profile.ParseLanguageID(raw); ok {
			out = append(out, id)
		}
	}
	return out, rows.Err()
}

func (r *SQLProblemRepository) loadTestCases(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, ordinal, input, output, is_sample, exact_match
		FROM test_cases
		WHERE problem_id = ?
		ORDER BY ordinal, id`, problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.Ordinal, &tc.Input, &tc.Output, &tc.IsSample, &tc.ExactMatch); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func problemKey(problemID int64) string {
	return problemKeyPrefix + strconv.FormatInt(problemID, 10)
}

// storageError keeps coded errors and marks everything else as a database failure.
func storageError(err error, msg string) error {
	var coded *appErr.Error
	if errors.As(err, &coded) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return appErr.Wrapf(err, appErr.Timeout, "%s", msg)
	}
	return appErr.Wrapf(err, appErr.DatabaseError, "%s", msg)
}
