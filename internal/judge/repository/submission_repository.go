package repository

import (
	"context"

	"nitz/internal/common/db"
	"nitz/internal/judge/model"
	"nitz/internal/judge/sandbox/profile"
	appErr "nitz/pkg/errors"
)

// SubmissionRepository keeps each user's latest code per problem and language.
type SubmissionRepository interface {
	ListSaved(ctx context.Context, problemID, userID int64) ([]model.SavedCode, error)
	Save(ctx context.Context, saved model.SavedCode) error
	// AwardPoints marks the saved submission accepted and credits the problem's
	// difficulty points once. It reports whether points were awarded.
	AwardPoints(ctx context.Context, problemID, userID int64, languageID profile.LanguageID) (bool, error)
}

// SQLSubmissionRepository implements SubmissionRepository.
type SQLSubmissionRepository struct {
	db db.Database
}

// NewSubmissionRepository creates a repository.
func NewSubmissionRepository(database db.Database) *SQLSubmissionRepository {
	return &SQLSubmissionRepository{db: database}
}

func (r *SQLSubmissionRepository) ListSaved(ctx context.Context, problemID, userID int64) ([]model.SavedCode, error) {
	if r.db == nil {
		return nil, appErr.New(appErr.DatabaseError).WithMessage("database is not configured")
	}
	rows, err := r.db.Query(ctx, `
		SELECT language_id, user_code, logic_code, status
		FROM problem_submissions
		WHERE problem_id = ? AND user_id = ?`, problemID, userID)
	if err != nil {
		return nil, storageError(err, "load saved code failed")
	}
	defer rows.Close()

	var out []model.SavedCode
	for rows.Next() {
		var (
			raw   string
			saved = model.SavedCode{ProblemID: problemID, UserID: userID}
		)
		if err := rows.Scan(&raw, &saved.UserCode, &saved.LogicCode, &saved.Status); err != nil {
			return nil, storageError(err, "scan saved code failed")
		}
		id, ok := profile.ParseLanguageID(raw)
		if !ok {
			continue
		}
		saved.LanguageID = id
		out = append(out, saved)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "iterate saved code failed")
	}
	return out, nil
}

// Save upserts the user's code. An accepted status is never downgraded.
// The upsert is one statement so a concurrent insert cannot abort it.
func (r *SQLSubmissionRepository) Save(ctx context.Context, saved model.SavedCode) error {
	if saved.UserID <= 0 || saved.ProblemID <= 0 {
		return appErr.ValidationError("user_id", "required")
	}
	if r.db == nil {
		return appErr.New(appErr.DatabaseError).WithMessage("database is not configured")
	}
	if saved.Status == "" {
		saved.Status = model.SubmissionAttempted
	}
	_, err := r.db.Exec(ctx, upsertSubmissionQuery(r.db.Driver()),
		saved.ProblemID, saved.UserID, string(saved.LanguageID), saved.UserCode, saved.LogicCode, saved.Status)
	if err != nil {
		return storageError(err, "save code failed")
	}
	return nil
}

func upsertSubmissionQuery(driver string) string {
	const insert = `
		INSERT INTO problem_submissions (problem_id, user_id, language_id, user_code, logic_code, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`
	if driver == db.DriverPostgres {
		return insert + `
		ON CONFLICT (problem_id, user_id, language_id) DO UPDATE
		SET user_code = EXCLUDED.user_code, logic_code = EXCLUDED.logic_code, updated_at = CURRENT_TIMESTAMP`
	}
	return insert + `
		ON DUPLICATE KEY UPDATE
		user_code = VALUES(user_code), logic_code = VALUES(logic_code), updated_at = CURRENT_TIMESTAMP`
}

func (r *SQLSubmissionRepository) AwardPoints(ctx context.Context, problemID, userID int64, languageID profile.LanguageID) (bool, error) {
	if r.db == nil {
		return false, appErr.New(appErr.DatabaseError).WithMessage("database is not configured")
	}
	awarded := false
	err := r.db.Transaction(ctx, func(tx db.Transaction) error {
		// concurrent accepts of the same problem serialize on these row locks
		rows, err := tx.Query(ctx, `
			SELECT language_id, status
			FROM problem_submissions
			WHERE problem_id = ? AND user_id = ?
			FOR UPDATE`, problemID, userID)
		if err != nil {
			return err
		}
		found, accepted := false, false
		for rows.Next() {
			var lang, status string
			if err := rows.Scan(&lang, &status); err != nil {
				rows.Close()
				return err
			}
			if lang == string(languageID) {
				found = true
			}
			if status == model.SubmissionAccepted {
				accepted = true
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		if !found {
			return appErr.New(appErr.SubmissionNotFound).WithMessage("saved submission not found")
		}

		res, err := tx.Exec(ctx, `
			UPDATE problem_submissions SET status = ?
			WHERE problem_id = ? AND user_id = ? AND language_id = ? AND status <> ?`,
			model.SubmissionAccepted, problemID, userID, string(languageID), model.SubmissionAccepted)
		if err != nil {
			return err
		}
		flipped, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if accepted || flipped == 0 {
			return nil
		}

		var points int64
		row := tx.QueryRow(ctx, `
			SELECT dp.points
			FROM problems p
			JOIN difficulty_points dp ON dp.difficulty = p.difficulty
			WHERE p.id = ?`, problemID)
		if err := row.Scan(&points); err != nil {
			if db.IsNoRows(err) {
				return nil
			}
			return err
		}
		if points <= 0 {
			return nil
		}

		res, err = tx.Exec(ctx, "UPDATE user_points SET points = points + ? WHERE user_id = ?", points, userID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			if _, err := tx.Exec(ctx, "INSERT INTO user_points (user_id, points) VALUES (?, ?)", userID, points); err != nil {
				return err
			}
		}
		awarded = true
		return nil
	})
	if err != nil {
		return false, storageError(err, "award points failed")
	}
	return awarded, nil
}
