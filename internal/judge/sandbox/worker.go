package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"nitz/internal/judge/limiter"
	"nitz/internal/judge/sandbox/engine"
	"nitz/internal/judge/sandbox/profile"
	"nitz/internal/judge/sandbox/result"
	"nitz/internal/judge/sandbox/runner"
	"nitz/internal/judge/sandbox/workspace"
	appErr "nitz/pkg/errors"
	"nitz/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const budgetExhaustedMessage = "submission time budget exhausted"

// TaskProfileRepository loads task profiles by type and language.
type TaskProfileRepository interface {
	GetTaskProfile(ctx context.Context, taskType profile.TaskType, languageID profile.LanguageID) (profile.TaskProfile, error)
}

// SlotPool lends spare execution slots to parallel test cases.
type SlotPool interface {
	TryAcquire() (*limiter.Slot, bool)
}

// WorkerConfig tunes how test cases of one submission are executed.
type WorkerConfig struct {
	// CaseParallelism is the number of cases run at once. Short-circuit runs are always sequential.
	CaseParallelism int
	// SubmissionBudget caps the summed wall time of one submission. Zero disables it.
	SubmissionBudget time.Duration
	Policy           Policy
}

// Worker is the sandbox scheduling unit.
// It executes compile/run workflows inside a scratch area it owns for the call.
type Worker struct {
	runner         runner.Runner
	profileRepo    TaskProfileRepository
	workspace      *workspace.Manager
	engine         engine.Engine
	cfg            WorkerConfig
	statusReporter StatusReporter
	slots          SlotPool
}

// NewWorker creates a new worker with required dependencies.
// eng is only used to kill running submissions and may be nil.
func NewWorker(
	runner runner.Runner,
	profileRepo TaskProfileRepository,
	ws *workspace.Manager,
	eng engine.Engine,
	cfg WorkerConfig,
) *Worker {
	if cfg.CaseParallelism <= 0 {
		cfg.CaseParallelism = 1
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyExhaustive
	}
	return &Worker{
		runner:      runner,
		profileRepo: profileRepo,
		workspace:   ws,
		engine:      eng,
		cfg:         cfg,
	}
}

// SetStatusReporter injects a status reporter for intermediate updates.
func (w *Worker) SetStatusReporter(reporter StatusReporter) {
	w.statusReporter = reporter
}

// SetSlotPool bounds case parallelism by the shared limiter.
// The caller of Judge already holds one slot, every further parallel case needs its own.
// Without a pool CaseParallelism applies as configured.
func (w *Worker) SetSlotPool(pool SlotPool) {
	w.slots = pool
}

// Kill stops every running process of a submission.
func (w *Worker) Kill(ctx context.Context, submissionID string) error {
	if w.engine == nil {
		return nil
	}
	return w.engine.KillSubmission(ctx, submissionID)
}

// Judge runs a full judge workflow for one submission.
func (w *Worker) Judge(ctx context.Context, req JudgeRequest) (result.SubmissionResult, error) {
	if err := validateJudgeRequest(req); err != nil {
		return result.SubmissionResult{}, err
	}
	if w.runner == nil || w.profileRepo == nil || w.workspace == nil {
		return result.SubmissionResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("worker dependencies are not initialized")
	}
	if req.Mode == "" {
		req.Mode = ModeRun
	}
	if req.ReceivedAt == 0 {
		req.ReceivedAt = time.Now().Unix()
	}

	lang := req.Language
	runProfile, err := w.profileRepo.GetTaskProfile(ctx, profile.TaskTypeRun, lang.ID)
	if err != nil {
		return result.SubmissionResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "load run profile failed")
	}
	var compileProfile profile.TaskProfile
	if lang.CompileEnabled {
		compileProfile, err = w.profileRepo.GetTaskProfile(ctx, profile.TaskTypeCompile, lang.ID)
		if err != nil {
			return result.SubmissionResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "load compile profile failed")
		}
	}

	cases := selectCases(req.Tests, req.Mode)
	res := result.SubmissionResult{
		SubmissionID: req.SubmissionID,
		Language:     string(lang.ID),
		Mode:         string(req.Mode),
		ReceivedAt:   req.ReceivedAt,
	}

	area, err := w.workspace.Acquire(req.SubmissionID)
	if err != nil {
		return res, err
	}
	defer func() {
		if err := area.Release(); err != nil {
			logger.Warn(ctx, "release scratch area failed", zap.String("path", area.Path()), zap.Error(err))
		}
	}()

	w.reportStatus(ctx, req, result.StatusCompiling, len(cases), 0)
	buildDir, err := area.Dir("build")
	if err != nil {
		return res, err
	}
	compileRes, err := w.runner.Compile(ctx, runner.CompileRequest{
		SubmissionID: req.SubmissionID,
		Language:     lang,
		Profile:      compileProfile,
		WorkDir:      buildDir,
		Source:       req.Source,
	})
	if err != nil {
		return res, judgeFailure(ctx, err, "compile failed")
	}
	res.Compile = &compileRes
	if !compileRes.OK {
		res.Results = compileErrorResults(cases)
		res.Verdict = result.VerdictCE
		res.StandardError = &result.StandardError{
			Message: result.CompileErrorMessage,
			Details: compileRes.Error,
		}
		res.Summary = summarize(res.Results)
		res.FinishedAt = time.Now().Unix()
		w.reportStatus(ctx, req, result.StatusFinished, len(cases), 0)
		return res, nil
	}

	w.reportStatus(ctx, req, result.StatusRunning, len(cases), 0)
	results, err := w.runCases(ctx, req, runProfile, area, buildDir, cases)
	if err != nil {
		w.reportStatus(ctx, req, result.StatusFailed, len(cases), countDone(results))
		return res, judgeFailure(ctx, err, "run test cases failed")
	}

	res.Results = results
	res.Verdict = overallVerdict(results)
	res.StandardError = firstRuntimeError(results)
	res.Summary = summarize(results)
	res.FinishedAt = time.Now().Unix()
	w.reportStatus(ctx, req, result.StatusFinished, len(cases), len(cases))
	return res, nil
}

func (w *Worker) runCases(
	ctx context.Context,
	req JudgeRequest,
	runProfile profile.TaskProfile,
	area *workspace.Area,
	buildDir string,
	cases []TestcaseSpec,
) ([]result.TestcaseResult, error) {
	policy := w.cfg.Policy
	if req.Policy != "" {
		policy = req.Policy
	}
	shortCircuit := req.Mode == ModeSubmit && policy == PolicyShortCircuit
	parallelism := w.cfg.CaseParallelism
	if shortCircuit {
		parallelism = 1
	}
	if parallelism > len(cases) {
		parallelism = max(len(cases), 1)
	}
	if parallelism > 1 && w.slots != nil {
		extra := w.borrowSlots(parallelism - 1)
		defer func() {
			for _, slot := range extra {
				slot.Release()
			}
		}()
		parallelism = 1 + len(extra)
	}
	budgetMs := w.cfg.SubmissionBudget.Milliseconds()

	results := make([]result.TestcaseResult, len(cases))
	var consumedMs atomic.Int64
	var failed atomic.Bool
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, tc := range cases {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if shortCircuit && failed.Load() {
				results[i] = notExecuted(tc, result.ClassSkipped, "")
				return nil
			}
			if budgetMs > 0 && consumedMs.Load() >= budgetMs {
				results[i] = notExecuted(tc, result.ClassTimeout, budgetExhaustedMessage)
				return nil
			}

			caseDir, err := area.Dir("case-" + tc.ID)
			if err != nil {
				return err
			}
			defer os.RemoveAll(caseDir)
			if err := copyArtifacts(buildDir, caseDir); err != nil {
				return err
			}

			caseRes, err := w.runner.Run(gctx, runner.RunRequest{
				SubmissionID:   req.SubmissionID,
				TestID:         tc.ID,
				Language:       req.Language,
				Profile:        runProfile,
				WorkDir:        caseDir,
				Input:          tc.Input,
				ExpectedOutput: tc.ExpectedOutput,
				ExactMatch:     tc.ExactMatch,
				Limits:         req.Limits,
			})
			if err != nil {
				return err
			}
			consumedMs.Add(caseRes.WallTimeMs)
			results[i] = caseRes
			if !caseRes.Success {
				failed.Store(true)
			}
			w.reportStatus(ctx, req, result.StatusRunning, len(cases), int(done.Add(1)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// borrowSlots takes up to n free slots and stops at the first busy one.
func (w *Worker) borrowSlots(n int) []*limiter.Slot {
	borrowed := make([]*limiter.Slot, 0, n)
	for len(borrowed) < n {
		slot, ok := w.slots.TryAcquire()
		if !ok {
			break
		}
		borrowed = append(borrowed, slot)
	}
	return borrowed
}

func (w *Worker) reportStatus(ctx context.Context, req JudgeRequest, status result.JudgeStatus, totalTests, doneTests int) {
	if w.statusReporter == nil {
		return
	}
	update := StatusUpdate{
		SubmissionID: req.SubmissionID,
		Status:       status,
		Language:     string(req.Language.ID),
		Mode:         string(req.Mode),
		TotalTests:   totalTests,
		DoneTests:    doneTests,
		ReceivedAt:   req.ReceivedAt,
	}
	if status == result.StatusFinished || status == result.StatusFailed {
		update.FinishedAt = time.Now().Unix()
	}
	if err := w.statusReporter.ReportStatus(context.WithoutCancel(ctx), update); err != nil {
		logger.Warn(ctx, "report status failed", zap.String("status", string(status)), zap.Error(err))
	}
}

// judgeFailure keeps cancellation distinguishable from sandbox faults.
func judgeFailure(ctx context.Context, err error, msg string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return appErr.Wrapf(err, appErr.Timeout, "judging exceeded its deadline")
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		return appErr.Wrapf(err, appErr.RequestCanceled, "judging was canceled")
	}
	var coded *appErr.Error
	if errors.As(err, &coded) && coded.Code == appErr.JudgeSystemError {
		return err
	}
	return appErr.Wrapf(err, appErr.JudgeSystemError, "%s", msg)
}

func validateJudgeRequest(req JudgeRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	switch req.Mode {
	case "", ModeRun, ModeSubmit:
	default:
		return appErr.Newf(appErr.InvalidParams, "unsupported mode: %s", req.Mode)
	}
	switch req.Policy {
	case "", PolicyExhaustive, PolicyShortCircuit:
	default:
		return appErr.Newf(appErr.InvalidParams, "unsupported policy: %s", req.Policy)
	}
	if len(req.Tests) == 0 {
		return appErr.New(appErr.TestCaseNotFound).WithMessage("problem has no test cases")
	}
	seen := make(map[string]struct{}, len(req.Tests))
	for _, tc := range req.Tests {
		if tc.ID == "" {
			return appErr.ValidationError("test_id", "required")
		}
		if _, ok := seen[tc.ID]; ok {
			return appErr.ValidationError("test_id", fmt.Sprintf("duplicate %s", tc.ID))
		}
		seen[tc.ID] = struct{}{}
	}
	return nil
}

// selectCases keeps sample cases in run mode; a problem without samples treats all cases as samples.
func selectCases(tests []TestcaseSpec, mode Mode) []TestcaseSpec {
	if mode != ModeRun {
		return tests
	}
	samples := make([]TestcaseSpec, 0, len(tests))
	for _, tc := range tests {
		if tc.Sample {
			samples = append(samples, tc)
		}
	}
	if len(samples) == 0 {
		return tests
	}
	return samples
}

func notExecuted(tc TestcaseSpec, class result.Classification, msg string) result.TestcaseResult {
	return result.TestcaseResult{
		TestCaseID:     tc.ID,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		Classification: class,
		Error:          msg,
	}
}

func compileErrorResults(cases []TestcaseSpec) []result.TestcaseResult {
	out := make([]result.TestcaseResult, len(cases))
	for i, tc := range cases {
		out[i] = notExecuted(tc, result.ClassCompileError, "")
	}
	return out
}

// overallVerdict is accepted when all cases pass, otherwise the first non-ok classification.
func overallVerdict(results []result.TestcaseResult) result.Verdict {
	for _, r := range results {
		if r.Classification != result.ClassOK {
			return result.VerdictOf(r.Classification)
		}
	}
	return result.VerdictAC
}

func firstRuntimeError(results []result.TestcaseResult) *result.StandardError {
	for _, r := range results {
		if r.Classification == result.ClassRuntimeError {
			return &result.StandardError{Message: result.RuntimeErrorMessage, Details: r.Error}
		}
	}
	return nil
}

func summarize(results []result.TestcaseResult) result.SummaryStat {
	summary := result.SummaryStat{Total: len(results)}
	for _, r := range results {
		summary.TotalTimeMs += r.WallTimeMs
		if r.MemoryKB > summary.MaxMemoryKB {
			summary.MaxMemoryKB = r.MemoryKB
		}
		if r.Success {
			summary.Passed++
		} else if summary.FailedTestID == "" {
			summary.FailedTestID = r.TestCaseID
		}
	}
	return summary
}

func countDone(results []result.TestcaseResult) int {
	n := 0
	for _, r := range results {
		if r.Classification != "" {
			n++
		}
	}
	return n
}

// copyArtifacts copies every regular file produced in the build directory except logs.
func copyArtifacts(buildDir, dstDir string) error {
	entries, err := os.ReadDir(buildDir)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "read build dir failed")
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || filepath.Ext(entry.Name()) == ".log" {
			continue
		}
		if err := copyFile(filepath.Join(buildDir, entry.Name()), filepath.Join(dstDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "open build artifact failed")
	}
	defer srcFile.Close()
	info, err := srcFile.Stat()
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "stat build artifact failed")
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "create test artifact failed")
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "copy build artifact failed")
	}
	return nil
}
