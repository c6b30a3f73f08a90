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

const starterCodeKeyPrefix = "judge:starter:"

// StarterCodeRepository stores per-language code templates.
type StarterCodeRepository interface {
	List(ctx context.Context, problemID int64) ([]model.StarterCode, error)
	Get(ctx context.Context, problemID int64, languageID profile.LanguageID) (model.StarterCode, bool, error)
	Update(ctx context.Context, problemID int64, languageID profile.LanguageID, codeType, code string) error
}

// SQLStarterCodeRepository is the cached SQL implementation.
type SQLStarterCodeRepository struct {
	db    db.Database
	cache cache.Cache
	ttl   time.Duration
}

type starterCodeList struct {
	Items []model.StarterCode `json:"items"`
}

// NewStarterCodeRepository creates a repository. cacheClient may be nil.
func NewStarterCodeRepository(database db.Database, cacheClient cache.Cache, ttl time.Duration) *SQLStarterCodeRepository {
	if ttl <= 0 {
		ttl = defaultProblemTTL
	}
	return &SQLStarterCodeRepository{db: database, cache: cacheClient, ttl: ttl}
}

// List returns the templates of every language stored for a problem.
func (r *SQLStarterCodeRepository) List(ctx context.Context, problemID int64) ([]model.StarterCode, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "must be positive")
	}
	if r.cache == nil {
		items, err := r.loadList(ctx, problemID)
		if err != nil {
			return nil, storageError(err, "load starter code failed")
		}
		return items, nil
	}
	list, err := cache.GetJSONCached(ctx, r.cache, starterCodeKey(problemID), r.ttl, defaultProblemEmptyTTL,
		func(ctx context.Context) (*starterCodeList, error) {
			items, err := r.loadList(ctx, problemID)
			if err != nil || len(items) == 0 {
				return nil, err
			}
			return &starterCodeList{Items: items}, nil
		})
	if err != nil {
		return nil, storageError(err, "load starter code failed")
	}
	if list == nil {
		return nil, nil
	}
	return list.Items, nil
}

// Get returns the templates for one language.
func (r *SQLStarterCodeRepository) Get(ctx context.Context, problemID int64, languageID profile.LanguageID) (model.StarterCode, bool, error) {
	items, err := r.List(ctx, problemID)
	if err != nil {
		return model.StarterCode{}, false, err
	}
	for _, item := range items {
		if item.LanguageID == languageID {
			return item, true, nil
		}
	}
	return model.StarterCode{}, false, nil
}

// Update writes one field of the (problem, language) row and drops the cached list.
func (r *SQLStarterCodeRepository) Update(ctx context.Context, problemID int64, languageID profile.LanguageID, codeType, code string) error {
	column, err := starterCodeColumn(codeType)
	if err != nil {
		return err
	}
	if r.db == nil {
		return appErr.New(appErr.DatabaseError).WithMessage("database is not configured")
	}
	update := func(ctx context.Context) error {
		return r.db.Transaction(ctx, func(tx db.Transaction) error {
			updateRow := func() (int64, error) {
				res, err := tx.Exec(ctx,
					"UPDATE starter_code SET "+column+" = ? WHERE problem_id = ? AND language_id = ?",
					code, problemID, string(languageID))
				if err != nil {
					return 0, err
				}
				return res.RowsAffected()
			}
			if affected, err := updateRow(); err != nil || affected > 0 {
				return err
			}
			userCode, logicCode := "", ""
			if column == "user_code" {
				userCode = code
			} else {
				logicCode = code
			}
			// a failed statement aborts a PostgreSQL transaction unless it ran under a savepoint
			if _, err := tx.Exec(ctx, "SAVEPOINT starter_code_insert"); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				"INSERT INTO starter_code (problem_id, language_id, user_code, logic_code) VALUES (?, ?, ?, ?)",
				problemID, string(languageID), userCode, logicCode)
			if _, dup := db.UniqueViolation(err); dup {
				// the row exists, either unchanged (zero affected on MySQL) or inserted concurrently
				if _, err := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT starter_code_insert"); err != nil {
					return err
				}
				_, err = updateRow()
				return err
			}
			return err
		})
	}
	if r.cache == nil {
		if err := update(ctx); err != nil {
			return storageError(err, "update starter code failed")
		}
		return nil
	}
	if err := cache.UpdateCached(ctx, r.cache, starterCodeKey(problemID), update); err != nil {
		return storageError(err, "update starter code failed")
	}
	return nil
}

func (r *SQLStarterCodeRepository) loadList(ctx context.Context, problemID int64) ([]model.StarterCode, error) {
	if r.db == nil {
		return nil, errors.New("database is not configured")
	}
	rows, err := r.db.Query(ctx, `
		SELECT language_id, user_code, logic_code
		FROM starter_code
		WHERE problem_id = ?
		ORDER BY language_id`, problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StarterCode
	for rows.Next() {
		var (
			raw  string
			item = model.StarterCode{ProblemID: problemID}
		)
		if err := rows.Scan(&raw, &item.UserCode, &item.LogicCode); err != nil {
			return nil, err
		}
		id, ok := profile.ParseLanguageID(raw)
		if !ok {
			continue
		}
		item.LanguageID = id
		out = append(out, item)
	}
	return out, rows.Err()
}

func starterCodeColumn(codeType string) (string, error) {
	switch codeType {
	case model.CodeTypeUser:
		return "user_code", nil
	case model.CodeTypeLogic:
		return "logic_code", nil
	}
	return "", appErr.ValidationError("codeType", "must be user_code or logic_code")
}

func starterCodeKey(problemID int64) string {
	return starterCodeKeyPrefix + strconv.FormatInt(problemID, 10)
}
