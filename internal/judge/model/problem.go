package model

import (
	"nitz/internal/judge/sandbox/profile"
)

// Problem is the judge-facing view of a stored problem.
type Problem struct {
	ID               int64  `json:"id"`
	Difficulty       string `json:"difficulty"`
	TimeLimitMs      int64  `json:"timeLimitMs"`
	MemoryLimitMB    int64  `json:"memoryLimitMb"`
	// AllowedLanguages is empty when every registered language is accepted.
	AllowedLanguages []profile.LanguageID `json:"allowedLanguages,omitempty"`
	TestCases        []TestCase           `json:"testCases"`
}

// TestCase is one stored input/expected-output pair, in ordinal order.
type TestCase struct {
	ID         int64  `json:"id"`
	Ordinal    int    `json:"ordinal"`
	Input      string `json:"input"`
	Output     string `json:"output"`
	IsSample   bool   `json:"isSample"`
	ExactMatch bool   `json:"exactMatch"`
}

// StarterCode holds the templates stored for (problem, language).
type StarterCode struct {
	ProblemID  int64              `json:"-"`
	LanguageID profile.LanguageID `json:"language_id"`
	UserCode   string             `json:"user_code"`
	LogicCode  string             `json:"logic_code,omitempty"`
}

// SavedCode is the last code a user executed for (problem, language).
type SavedCode struct {
	ProblemID  int64
	UserID     int64
	LanguageID profile.LanguageID
	UserCode   string
	LogicCode  string
	Status     string
}

// Saved submission statuses.
const (
	SubmissionAttempted = "attempted"
	SubmissionAccepted  = "accepted"
)
