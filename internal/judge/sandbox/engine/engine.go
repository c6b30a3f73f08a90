// Package engine runs one sandboxed process per call.
package engine

import (
	"context"

	"nitz/internal/judge/sandbox/result"
	"nitz/internal/judge/sandbox/spec"
)

// Engine executes a RunSpec inside an isolated sandbox.
// Run returns ctx.Err() when the context ends before the process does.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
	KillSubmission(ctx context.Context, submissionID string) error
}
