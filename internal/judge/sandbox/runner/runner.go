package runner

import (
	"context"

	"nitz/internal/judge/sandbox/profile"
	"nitz/internal/judge/sandbox/result"
	"nitz/internal/judge/sandbox/spec"
)

// CompileRequest describes one compilation task.
// For interpreted languages Compile only writes the source.
type CompileRequest struct {
	SubmissionID string
	Language     profile.LanguageSpec
	Profile      profile.TaskProfile
	WorkDir      string
	Source       string
}

// RunRequest describes one execution against one test case.
// WorkDir must already hold the artifacts produced by Compile.
type RunRequest struct {
	SubmissionID   string
	TestID         string
	Language       profile.LanguageSpec
	Profile        profile.TaskProfile
	WorkDir        string
	Input          string
	ExpectedOutput string
	ExactMatch     bool
	// Limits override the profile defaults before language multipliers apply.
	Limits spec.ResourceLimit
}

// Runner orchestrates compile and run workflows.
type Runner interface {
	Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error)
	Run(ctx context.Context, req RunRequest) (result.TestcaseResult, error)
}
