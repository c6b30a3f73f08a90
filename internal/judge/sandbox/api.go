// Package sandbox runs a whole submission: compile once, then every selected test case.
package sandbox

import (
	"context"

	"nitz/internal/judge/sandbox/profile"
	"nitz/internal/judge/sandbox/result"
	"nitz/internal/judge/sandbox/spec"
)

// Service is the high-level sandbox entrypoint used by the judge layer.
type Service interface {
	Judge(ctx context.Context, req JudgeRequest) (result.SubmissionResult, error)
	Kill(ctx context.Context, submissionID string) error
}

// Mode selects which test cases run.
type Mode string

const (
	// ModeRun executes sample cases only.
	ModeRun Mode = "run"
	// ModeSubmit executes every case in ordinal order.
	ModeSubmit Mode = "submit"
)

// Policy decides what happens after the first failing case in submit mode.
type Policy string

const (
	PolicyExhaustive   Policy = "exhaustive"
	PolicyShortCircuit Policy = "short_circuit"
)

// ParsePolicy accepts the configured policy name; empty means exhaustive.
func ParsePolicy(raw string) (Policy, bool) {
	switch Policy(raw) {
	case "", PolicyExhaustive:
		return PolicyExhaustive, true
	case PolicyShortCircuit:
		return PolicyShortCircuit, true
	}
	return "", false
}

// TestcaseSpec describes one test case input and expected answer, in ordinal order.
type TestcaseSpec struct {
	ID             string
	Input          string
	ExpectedOutput string
	Sample         bool
	ExactMatch     bool
}

// JudgeRequest contains all data needed to execute one submission.
type JudgeRequest struct {
	SubmissionID string
	Language     profile.LanguageSpec
	// Source is the program text after user code and logic code were merged.
	Source string
	Mode   Mode
	// Policy overrides the worker default when set.
	Policy Policy
	Tests  []TestcaseSpec
	// Limits are the problem's per-case overrides.
	Limits     spec.ResourceLimit
	ReceivedAt int64
}
