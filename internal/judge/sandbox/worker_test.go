package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nitz/internal/judge/limiter"
	"nitz/internal/judge/sandbox/profile"
	"nitz/internal/judge/sandbox/result"
	"nitz/internal/judge/sandbox/runner"
	"nitz/internal/judge/sandbox/workspace"
	appErr "nitz/pkg/errors"
)

type fakeRunner struct {
	mu         sync.Mutex
	compile    result.CompileResult
	compileErr error
	outcomes   map[string]result.TestcaseResult
	delays     map[string]time.Duration
	runErr     error
	ran        []string
	workDirs   []string
	artifacts  []string
	active     int
	peak       int
	during     func()
}

func (f *fakeRunner) Compile(ctx context.Context, req runner.CompileRequest) (result.CompileResult, error) {
	if f.compileErr != nil {
		return result.CompileResult{}, f.compileErr
	}
	if err := os.WriteFile(filepath.Join(req.WorkDir, "main"), []byte("bin"), 0755); err != nil {
		return result.CompileResult{}, err
	}
	if err := os.WriteFile(filepath.Join(req.WorkDir, "compile.log"), []byte("log"), 0644); err != nil {
		return result.CompileResult{}, err
	}
	return f.compile, nil
}

func (f *fakeRunner) Run(ctx context.Context, req runner.RunRequest) (result.TestcaseResult, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()
	if f.during != nil {
		f.during()
	}
	if d := f.delays[req.TestID]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return result.TestcaseResult{}, ctx.Err()
		}
	}
	entries, _ := os.ReadDir(req.WorkDir)
	f.mu.Lock()
	f.ran = append(f.ran, req.TestID)
	f.workDirs = append(f.workDirs, req.WorkDir)
	for _, e := range entries {
		f.artifacts = append(f.artifacts, e.Name())
	}
	f.mu.Unlock()
	if f.runErr != nil {
		return result.TestcaseResult{}, f.runErr
	}
	if out, ok := f.outcomes[req.TestID]; ok {
		out.TestCaseID = req.TestID
		return out, nil
	}
	return result.TestcaseResult{TestCaseID: req.TestID, Success: true, Classification: result.ClassOK, WallTimeMs: 10}, nil
}

type staticProfiles struct{}

func (staticProfiles) GetTaskProfile(ctx context.Context, taskType profile.TaskType, languageID profile.LanguageID) (profile.TaskProfile, error) {
	return profile.TaskProfile{LanguageID: languageID, TaskType: taskType}, nil
}

type recordingReporter struct {
	mu      sync.Mutex
	updates []StatusUpdate
}

func (r *recordingReporter) ReportStatus(ctx context.Context, update StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
	return nil
}

func newTestWorker(t *testing.T, r runner.Runner, cfg WorkerConfig) *Worker {
	t.Helper()
	ws, err := workspace.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	return NewWorker(r, staticProfiles{}, ws, nil, cfg)
}

func testCases(ids ...string) []TestcaseSpec {
	out := make([]TestcaseSpec, 0, len(ids))
	for _, id := range ids {
		out = append(out, TestcaseSpec{ID: id, Input: "in-" + id, ExpectedOutput: "out-" + id})
	}
	return out
}

func TestJudgeKeepsCaseOrderUnderParallelism(t *testing.T) {
	fr := &fakeRunner{
		compile: result.CompileResult{OK: true},
		delays:  map[string]time.Duration{"1": 60 * time.Millisecond, "2": 30 * time.Millisecond},
	}
	w := newTestWorker(t, fr, WorkerConfig{CaseParallelism: 3})
	res, err := w.Judge(context.Background(), JudgeRequest{
		SubmissionID: "s1",
		Language:     profile.LanguageSpec{ID: profile.LanguageCpp, CompileEnabled: true},
		Mode:         ModeSubmit,
		Tests:        testCases("1", "2", "3"),
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if len(res.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res.Results))
	}
	for i, id := range []string{"1", "2", "3"} {
		if res.Results[i].TestCaseID != id {
			t.Fatalf("expected result %d to be case %s, got %s", i, id, res.Results[i].TestCaseID)
		}
	}
	if res.Verdict != result.VerdictAC {
		t.Fatalf("expected accepted, got %s", res.Verdict)
	}
	if res.Summary.Passed != 3 || res.Summary.TotalTimeMs != 30 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
}

func TestJudgeCopiesArtifactsIntoSeparateCaseDirs(t *testing.T) {
	fr := &fakeRunner{compile: result.CompileResult{OK: true}}
	w := newTestWorker(t, fr, WorkerConfig{CaseParallelism: 2})
	_, err := w.Judge(context.Background(), JudgeRequest{
		SubmissionID: "s1",
		Language:     profile.LanguageSpec{ID: profile.LanguageCpp, CompileEnabled: true},
		Mode:         ModeSubmit,
		Tests:        testCases("1", "2"),
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if fr.workDirs[0] == fr.workDirs[1] {
		t.Fatalf("expected distinct case dirs, got %s twice", fr.workDirs[0])
	}
	for _, name := range fr.artifacts {
		if name == "compile.log" {
			t.Fatalf("expected compile log to stay in build dir")
		}
	}
	if len(fr.artifacts) != 2 {
		t.Fatalf("expected binary copied into both cases, got %v", fr.artifacts)
	}
	for _, dir := range fr.workDirs {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Fatalf("expected case dir %s to be removed", dir)
		}
	}
}

func TestJudgeCompileErrorMarksEveryCase(t *testing.T) {
	fr := &fakeRunner{compile: result.CompileResult{OK: false, ExitCode: 1, Error: "main.cpp:1: error"}}
	w := newTestWorker(t, fr, WorkerConfig{})
	res, err := w.Judge(context.Background(), JudgeRequest{
		SubmissionID: "s1",
		Language:     profile.LanguageSpec{ID: profile.LanguageCpp, CompileEnabled: true},
		Mode:         ModeSubmit,
		Tests:        testCases("1", "2"),
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if res.Verdict != result.VerdictCE {
		t.Fatalf("expected compile error verdict, got %s", res.Verdict)
	}
	if res.StandardError == nil || res.StandardError.Message != result.CompileErrorMessage {
		t.Fatalf("expected compile standard error, got %+v", res.StandardError)
	}
	if res.StandardError.Details != "main.cpp:1: error" {
		t.Fatalf("expected compiler output in details, got %q", res.StandardError.Details)
	}
	for _, r := range res.Results {
		if r.Classification != result.ClassCompileError || r.Success {
			t.Fatalf("expected compile_error for case %s, got %+v", r.TestCaseID, r)
		}
	}
	if len(fr.ran) != 0 {
		t.Fatalf("expected no case to run, got %v", fr.ran)
	}
}

func TestJudgeRunModeUsesSamples(t *testing.T) {
	fr := &fakeRunner{compile: result.CompileResult{OK: true}}
	w := newTestWorker(t, fr, WorkerConfig{})
	tests := testCases("1", "2", "3")
	tests[1].Sample = true
	res, err := w.Judge(context.Background(), JudgeRequest{
		SubmissionID: "s1",
		Language:     profile.LanguageSpec{ID: profile.LanguagePython},
		Mode:         ModeRun,
		Tests:        tests,
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].TestCaseID != "2" {
		t.Fatalf("expected only sample case 2, got %+v", res.Results)
	}
}

func TestJudgeRunModeWithoutSamplesRunsAll(t *testing.T) {
	fr := &fakeRunner{compile: result.CompileResult{OK: true}}
	w := newTestWorker(t, fr, WorkerConfig{})
	res, err := w.Judge(context.Background(), JudgeRequest{
		SubmissionID: "s1",
		Language:     profile.LanguageSpec{ID: profile.LanguagePython},
		Tests:        testCases("1", "2"),
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("expected all cases, got %d", len(res.Results))
	}
	if res.Mode != string(ModeRun) {
		t.Fatalf("expected default mode run, got %s", res.Mode)
	}
}

func TestJudgeExhaustiveReportsFirstFailure(t *testing.T) {
	fr := &fakeRunner{
		compile: result.CompileResult{OK: true},
		outcomes: map[string]result.TestcaseResult{
			"2": {Classification: result.ClassRuntimeError, ExitCode: 1, Error: "ZeroDivisionError"},
			"3": {Classification: result.ClassWrongAnswer},
		},
	}
	w := newTestWorker(t, fr, WorkerConfig{CaseParallelism: 2})
	res, err := w.Judge(context.Background(), JudgeRequest{
		SubmissionID: "s1",
		Language:     profile.LanguageSpec{ID: profile.LanguagePython},
		Mode:         ModeSubmit,
		Tests:        testCases("1", "2", "3"),
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if len(fr.ran) != 3 {
		t.Fatalf("expected all cases to run, got %v", fr.ran)
	}
	if res.Verdict != result.VerdictRE {
		t.Fatalf("expected runtime error verdict, got %s", res.Verdict)
	}
	if res.StandardError == nil || res.StandardError.Details != "ZeroDivisionError" {
		t.Fatalf("expected runtime standard error, got %+v", res.StandardError)
	}
	if res.Summary.FailedTestID != "2" || res.Summary.Passed != 1 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
}

func TestJudgeShortCircuitSkipsRemaining(t *testing.T) {
	fr := &fakeRunner{
		compile:  result.CompileResult{OK: true},
		outcomes: map[string]result.TestcaseResult{"1": {Classification: result.ClassWrongAnswer}},
	}
	w := newTestWorker(t, fr, WorkerConfig{CaseParallelism: 4, Policy: PolicyShortCircuit})
	res, err := w.Judge(context.Background(), JudgeRequest{
		SubmissionID: "s1",
		Language:     profile.LanguageSpec{ID: profile.LanguagePython},
		Mode:         ModeSubmit,
		Tests:        testCases("1", "2", "3"),
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if len(fr.ran) != 1 {
		t.Fatalf("expected one case to run, got %v", fr.ran)
	}
	if res.Results[1].Classification != result.ClassSkipped || res.Results[2].Classification != result.ClassSkipped {
		t.Fatalf("expected later cases skipped, got %+v", res.Results)
	}
	if res.Verdict != result.VerdictWA {
		t.Fatalf("expected wrong answer, got %s", res.Verdict)
	}
}

func TestJudgeBudgetExhaustionTimesOutRemaining(t *testing.T) {
	fr := &fakeRunner{
		compile: result.CompileResult{OK: true},
		outcomes: map[string]result.TestcaseResult{
			"1": {Success: true, Classification: result.ClassOK, WallTimeMs: 150},
		},
	}
	w := newTestWorker(t, fr, WorkerConfig{CaseParallelism: 1, SubmissionBudget: 100 * time.Millisecond})
	res, err := w.Judge(context.Background(), JudgeRequest{
		SubmissionID: "s1",
		Language:     profile.LanguageSpec{ID: profile.LanguagePython},
		Mode:         ModeSubmit,
		Tests:        testCases("1", "2"),
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if res.Results[1].Classification != result.ClassTimeout {
		t.Fatalf("expected second case to time out, got %+v", res.Results[1])
	}
	if res.Results[1].Error != budgetExhaustedMessage {
		t.Fatalf("expected budget message, got %q", res.Results[1].Error)
	}
	if res.Verdict != result.VerdictTLE {
		t.Fatalf("expected timeout verdict, got %s", res.Verdict)
	}
}

func TestJudgeEngineFailureIsInternalFault(t *testing.T) {
	fr := &fakeRunner{compile: result.CompileResult{OK: true}, runErr: errors.New("helper crashed")}
	w := newTestWorker(t, fr, WorkerConfig{})
	_, err := w.Judge(context.Background(), JudgeRequest{
		SubmissionID: "s1",
		Language:     profile.LanguageSpec{ID: profile.LanguagePython},
		Tests:        testCases("1"),
	})
	if appErr.KindOf(err) != appErr.KindInternalFault {
		t.Fatalf("expected internal fault, got %v", err)
	}
}

func TestJudgeCanceledContext(t *testing.T) {
	fr := &fakeRunner{
		compile: result.CompileResult{OK: true},
		delays:  map[string]time.Duration{"1": time.Second},
	}
	w := newTestWorker(t, fr, WorkerConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := w.Judge(ctx, JudgeRequest{
		SubmissionID: "s1",
		Language:     profile.LanguageSpec{ID: profile.LanguagePython},
		Tests:        testCases("1"),
	})
	if appErr.GetCode(err) != appErr.Timeout {
		t.Fatalf("expected timeout code, got %v", err)
	}
}

func TestJudgeReportsStatus(t *testing.T) {
	fr := &fakeRunner{compile: result.CompileResult{OK: true}}
	w := newTestWorker(t, fr, WorkerConfig{})
	reporter := &recordingReporter{}
	w.SetStatusReporter(reporter)
	_, err := w.Judge(context.Background(), JudgeRequest{
		SubmissionID: "s1",
		Language:     profile.LanguageSpec{ID: profile.LanguagePython},
		Tests:        testCases("1"),
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	last := reporter.updates[len(reporter.updates)-1]
	if last.Status != result.StatusFinished || last.DoneTests != 1 {
		t.Fatalf("expected finished status, got %+v", last)
	}
	if reporter.updates[0].Status != result.StatusCompiling {
		t.Fatalf("expected compiling first, got %s", reporter.updates[0].Status)
	}
}

func TestJudgeValidation(t *testing.T) {
	w := newTestWorker(t, &fakeRunner{}, WorkerConfig{})
	cases := []struct {
		name string
		req  JudgeRequest
		code appErr.ErrorCode
	}{
		{"missing id", JudgeRequest{Language: profile.LanguageSpec{ID: profile.LanguagePython}, Tests: testCases("1")}, appErr.ValidationFailed},
		{"no tests", JudgeRequest{SubmissionID: "s", Language: profile.LanguageSpec{ID: profile.LanguagePython}}, appErr.TestCaseNotFound},
		{"bad mode", JudgeRequest{SubmissionID: "s", Language: profile.LanguageSpec{ID: profile.LanguagePython}, Mode: "debug", Tests: testCases("1")}, appErr.InvalidParams},
		{"duplicate ids", JudgeRequest{SubmissionID: "s", Language: profile.LanguageSpec{ID: profile.LanguagePython}, Tests: testCases("1", "1")}, appErr.ValidationFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := w.Judge(context.Background(), tc.req)
			if appErr.GetCode(err) != tc.code {
				t.Fatalf("expected code %d, got %v", tc.code, err)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	if p, ok := ParsePolicy(""); !ok || p != PolicyExhaustive {
		t.Fatalf("expected exhaustive default, got %s", p)
	}
	if _, ok := ParsePolicy("fast"); ok {
		t.Fatalf("expected unknown policy to be rejected")
	}
}

func TestParallelCasesBorrowLimiterSlots(t *testing.T) {
	lim := limiter.New(limiter.Config{Slots: 3})
	admitted, err := lim.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer admitted.Release()

	var overCap atomic.Bool
	fr := &fakeRunner{
		compile: result.CompileResult{OK: true},
		delays:  map[string]time.Duration{"1": 40 * time.Millisecond, "2": 40 * time.Millisecond, "3": 40 * time.Millisecond, "4": 40 * time.Millisecond},
		during: func() {
			if lim.Stats().InUse > 3 {
				overCap.Store(true)
			}
		},
	}
	w := newTestWorker(t, fr, WorkerConfig{CaseParallelism: 8})
	w.SetSlotPool(lim)
	res, err := w.Judge(context.Background(), JudgeRequest{
		SubmissionID: "s-slots",
		Language:     profile.LanguageSpec{ID: profile.LanguageCpp, CompileEnabled: true},
		Mode:         ModeSubmit,
		Tests:        testCases("1", "2", "3", "4"),
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if len(res.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(res.Results))
	}
	if overCap.Load() {
		t.Fatalf("expected in-use slots to stay within the limit")
	}
	if fr.peak > 3 {
		t.Fatalf("expected at most 3 concurrent cases, got %d", fr.peak)
	}
	if got := lim.Stats().InUse; got != 1 {
		t.Fatalf("expected borrowed slots returned, got %d in use", got)
	}
}

func TestParallelCasesRunSequentiallyWhenLimiterIsFull(t *testing.T) {
	lim := limiter.New(limiter.Config{Slots: 1})
	admitted, err := lim.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer admitted.Release()

	fr := &fakeRunner{
		compile: result.CompileResult{OK: true},
		delays:  map[string]time.Duration{"1": 20 * time.Millisecond, "2": 20 * time.Millisecond, "3": 20 * time.Millisecond},
	}
	w := newTestWorker(t, fr, WorkerConfig{CaseParallelism: 3})
	w.SetSlotPool(lim)
	res, err := w.Judge(context.Background(), JudgeRequest{
		SubmissionID: "s-full",
		Language:     profile.LanguageSpec{ID: profile.LanguageCpp, CompileEnabled: true},
		Mode:         ModeRun,
		Tests:        testCases("1", "2", "3"),
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if len(res.Results) != 3 || fr.peak != 1 {
		t.Fatalf("expected 3 sequential cases, got %d results with peak %d", len(res.Results), fr.peak)
	}
}
