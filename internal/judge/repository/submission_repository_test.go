package repository

import (
	"context"
	"strings"
	"testing"

	"nitz/internal/common/db"
	"nitz/internal/judge/model"
	"nitz/internal/judge/sandbox/profile"
	appErr "nitz/pkg/errors"
)

func TestSaveUpsertsInOneStatement(t *testing.T) {
	f := newFakeDB()
	repo := NewSubmissionRepository(f)
	err := repo.Save(context.Background(), model.SavedCode{
		ProblemID: 1, UserID: 2, LanguageID: profile.LanguagePython, UserCode: "u", LogicCode: "l",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(f.execs) != 1 || f.txCount != 0 {
		t.Fatalf("expected a single statement outside a transaction, got %d execs", len(f.execs))
	}
	upserts := f.execsMatching("ON DUPLICATE KEY UPDATE")
	if len(upserts) != 1 || upserts[0].args[5] != model.SubmissionAttempted {
		t.Fatalf("expected attempted mysql upsert, got %+v", f.execs)
	}
	if strings.Contains(upserts[0].query, "status = ") {
		t.Fatalf("upsert must not touch an existing status: %s", upserts[0].query)
	}
}

func TestSaveUsesOnConflictForPostgres(t *testing.T) {
	f := newFakeDB()
	f.driver = db.DriverPostgres
	repo := NewSubmissionRepository(f)
	err := repo.Save(context.Background(), model.SavedCode{ProblemID: 1, UserID: 2, LanguageID: profile.LanguageCpp})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(f.execsMatching("ON CONFLICT (problem_id, user_id, language_id) DO UPDATE")) != 1 {
		t.Fatalf("expected postgres upsert, got %+v", f.execs)
	}
	if len(f.execsMatching("ON DUPLICATE KEY")) != 0 {
		t.Fatalf("expected no mysql syntax on postgres")
	}
}

func TestSaveRequiresUser(t *testing.T) {
	repo := NewSubmissionRepository(newFakeDB())
	if err := repo.Save(context.Background(), model.SavedCode{ProblemID: 1}); appErr.GetCode(err) != appErr.ValidationFailed {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAwardPointsFirstAccept(t *testing.T) {
	f := newFakeDB()
	f.rows["FOR UPDATE"] = [][]any{{"python", model.SubmissionAttempted}}
	f.rows["difficulty_points"] = [][]any{{int64(30)}}
	f.affected["SET status"] = 1
	repo := NewSubmissionRepository(f)

	awarded, err := repo.AwardPoints(context.Background(), 1, 2, profile.LanguagePython)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if !awarded {
		t.Fatalf("expected points awarded")
	}
	inserts := f.execsMatching("INSERT INTO user_points")
	if len(inserts) != 1 || inserts[0].args[1] != int64(30) {
		t.Fatalf("expected user points insert, got %+v", f.execs)
	}
}

func TestAwardPointsOnlyOnce(t *testing.T) {
	f := newFakeDB()
	f.rows["FOR UPDATE"] = [][]any{{"python", model.SubmissionAccepted}, {"cpp", model.SubmissionAttempted}}
	f.rows["difficulty_points"] = [][]any{{int64(30)}}
	f.affected["SET status"] = 1
	repo := NewSubmissionRepository(f)

	awarded, err := repo.AwardPoints(context.Background(), 1, 2, profile.LanguageCpp)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if awarded {
		t.Fatalf("expected no second award")
	}
	if len(f.execsMatching("user_points")) != 0 {
		t.Fatalf("expected user points untouched")
	}
	if len(f.execsMatching("SET status")) != 1 {
		t.Fatalf("expected the language row to be marked accepted")
	}
}

func TestAwardPointsRepeatedAcceptCreditsOnce(t *testing.T) {
	f := newFakeDB()
	f.rows["FOR UPDATE"] = [][]any{{"cpp", model.SubmissionAttempted}}
	f.rows["difficulty_points"] = [][]any{{int64(30)}}
	f.affected["SET status"] = 1
	f.afterExec = func(query string) {
		// the committed accept is what the next locking read sees
		if strings.Contains(query, "SET status") {
			f.rows["FOR UPDATE"] = [][]any{{"cpp", model.SubmissionAccepted}}
			f.affected["SET status"] = 0
		}
	}
	repo := NewSubmissionRepository(f)

	credits := 0
	for i := 0; i < 2; i++ {
		awarded, err := repo.AwardPoints(context.Background(), 1, 2, profile.LanguageCpp)
		if err != nil {
			t.Fatalf("award %d: %v", i, err)
		}
		if awarded {
			credits++
		}
	}
	if credits != 1 {
		t.Fatalf("expected a single credit, got %d", credits)
	}
	if n := len(f.execsMatching("user_points")); n != 2 {
		t.Fatalf("expected one update and one insert of user points, got %d", n)
	}
	for _, q := range f.queries {
		if strings.Contains(q, "problem_submissions") && !strings.Contains(q, "FOR UPDATE") {
			t.Fatalf("expected award reads to lock rows, got %s", q)
		}
	}
}

func TestAwardPointsSkipsWhenStatusAlreadyFlipped(t *testing.T) {
	f := newFakeDB()
	f.rows["FOR UPDATE"] = [][]any{{"cpp", model.SubmissionAttempted}}
	f.rows["difficulty_points"] = [][]any{{int64(30)}}
	repo := NewSubmissionRepository(f)

	awarded, err := repo.AwardPoints(context.Background(), 1, 2, profile.LanguageCpp)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if awarded || len(f.execsMatching("user_points")) != 0 {
		t.Fatalf("expected no credit when the accept gate matched no row")
	}
}

func TestAwardPointsMissingSubmission(t *testing.T) {
	f := newFakeDB()
	repo := NewSubmissionRepository(f)
	_, err := repo.AwardPoints(context.Background(), 1, 2, profile.LanguageCpp)
	if appErr.GetCode(err) != appErr.SubmissionNotFound {
		t.Fatalf("expected submission not found, got %v", err)
	}
}
