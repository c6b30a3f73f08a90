package model

import (
	"nitz/internal/judge/sandbox/result"
)

// OutcomeEvent is published once a submission finishes judging.
type OutcomeEvent struct {
	SubmissionID string         `json:"submission_id"`
	ProblemID    int64          `json:"problem_id"`
	UserID       int64          `json:"user_id,omitempty"`
	LanguageID   string         `json:"language_id"`
	Mode         string         `json:"mode"`
	Verdict      result.Verdict `json:"verdict"`
	Passed       int            `json:"passed"`
	Total        int            `json:"total"`
	TotalTimeMs  int64          `json:"total_time_ms"`
	MaxMemoryKB  int64          `json:"max_memory_kb"`
	SourceKey    string         `json:"source_key,omitempty"`
	FinishedAt   int64          `json:"finished_at"`
}
