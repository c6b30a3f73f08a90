package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"nitz/internal/judge/sandbox/engine"
	"nitz/internal/judge/sandbox/observer"
	"nitz/internal/judge/sandbox/profile"
	"nitz/internal/judge/sandbox/result"
	"nitz/internal/judge/sandbox/spec"
	appErr "nitz/pkg/errors"

	"github.com/google/shlex"
)

const (
	defaultInputName  = "input.txt"
	defaultOutputName = "output.txt"
	compileLogName    = "compile.log"
	runtimeLogName    = "runtime.log"

	defaultMaxReportBytes = 64 * 1024
	defaultMaxOutputMB    = 64
)

// memoryFailureMarkers identify allocation failures under RLIMIT_AS, which surface as a
// normal runtime error rather than an oom kill.
var memoryFailureMarkers = []string{
	"MemoryError",
	"std::bad_alloc",
	"java.lang.OutOfMemoryError",
	"JavaScript heap out of memory",
}

// DefaultRunner implements compile/run workflows for supported languages.
type DefaultRunner struct {
	eng            engine.Engine
	metrics        observer.MetricsRecorder
	maxReportBytes int
}

// NewRunner creates a new runner backed by the sandbox engine.
func NewRunner(eng engine.Engine) *DefaultRunner {
	return NewRunnerWithObserver(eng, observer.NoopMetricsRecorder{})
}

// NewRunnerWithObserver creates a new runner with metrics hooks.
func NewRunnerWithObserver(eng engine.Engine, metrics observer.MetricsRecorder) *DefaultRunner {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &DefaultRunner{eng: eng, metrics: metrics, maxReportBytes: defaultMaxReportBytes}
}

// SetMaxReportBytes caps actual output and stderr copied into results.
func (r *DefaultRunner) SetMaxReportBytes(n int) {
	if n > 0 {
		r.maxReportBytes = n
	}
}

func (r *DefaultRunner) Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error) {
	if err := validateCompileRequest(req); err != nil {
		return result.CompileResult{}, err
	}
	if err := prepareWorkDir(req.WorkDir); err != nil {
		return result.CompileResult{}, err
	}
	if err := writeSourceFile(req.WorkDir, req.Language.SourceFile, req.Source); err != nil {
		return result.CompileResult{}, err
	}
	if !req.Language.CompileEnabled {
		return result.CompileResult{OK: true}, nil
	}
	if req.Profile.TaskType != profile.TaskTypeCompile {
		return result.CompileResult{}, appErr.ValidationError("task_profile", "compile profile required")
	}

	limits := applyLimits(spec.ResourceLimit{}, req.Profile.DefaultLimits, req.Language)
	cmd, err := buildCommand(req.Language.CompileCmdTpl, req.Language, req.WorkDir)
	if err != nil {
		return result.CompileResult{}, err
	}

	logPath := filepath.Join(req.WorkDir, compileLogName)
	runSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       "compile",
		WorkDir:      req.WorkDir,
		Cmd:          cmd,
		Env:          req.Language.Env,
		StderrPath:   logPath,
		Profile:      req.Profile.Name(),
		Limits:       limits,
		BindMounts:   buildBindMounts(req.WorkDir),
	}

	runRes, err := r.eng.Run(ctx, runSpec)
	compileRes := result.CompileResult{
		OK:       err == nil && runRes.ExitCode == 0,
		ExitCode: runRes.ExitCode,
		TimeMs:   runRes.TimeMs,
		MemoryKB: runRes.MemoryKB,
		LogPath:  logPath,
	}
	r.metrics.ObserveCompile(ctx, string(req.Language.ID), compileRes.OK, compileRes.TimeMs, compileRes.MemoryKB)
	if err != nil {
		compileRes.Error = err.Error()
		return compileRes, err
	}
	switch {
	case runRes.TimedOut():
		compileRes.Error = "compilation exceeded the time limit"
	case runRes.ExitCode != 0:
		compileRes.Error = strings.TrimSpace(runRes.Stderr)
		if compileRes.Error == "" {
			compileRes.Error = fmt.Sprintf("compiler exited with code %d", runRes.ExitCode)
		}
	}
	return compileRes, nil
}

func (r *DefaultRunner) Run(ctx context.Context, req RunRequest) (result.TestcaseResult, error) {
	if err := validateRunRequest(req); err != nil {
		return result.TestcaseResult{}, err
	}

	base := result.TestcaseResult{
		TestCaseID:     req.TestID,
		Input:          req.Input,
		ExpectedOutput: req.ExpectedOutput,
	}

	inputPath := filepath.Join(req.WorkDir, defaultInputName)
	if err := os.WriteFile(inputPath, []byte(req.Input), 0644); err != nil {
		return base, appErr.Wrapf(err, appErr.JudgeSystemError, "write input failed")
	}

	limits := applyLimits(req.Limits, req.Profile.DefaultLimits, req.Language)
	cmd, err := buildCommand(req.Language.RunCmdTpl, req.Language, req.WorkDir)
	if err != nil {
		return base, err
	}
	outputPath := filepath.Join(req.WorkDir, defaultOutputName)
	runSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       req.TestID,
		WorkDir:      req.WorkDir,
		Cmd:          cmd,
		Env:          req.Language.Env,
		StdinPath:    inputPath,
		StdoutPath:   outputPath,
		StderrPath:   filepath.Join(req.WorkDir, runtimeLogName),
		Profile:      req.Profile.Name(),
		Limits:       limits,
		BindMounts:   buildBindMounts(req.WorkDir),
	}

	runRes, runErr := r.eng.Run(ctx, runSpec)
	if runErr != nil {
		return base, runErr
	}

	actual, truncated, err := readOutput(outputPath, outputLimitBytes(limits))
	if err != nil {
		return base, appErr.Wrapf(err, appErr.JudgeSystemError, "read program output failed")
	}
	classification := classify(runRes, limits, truncated)
	if classification == result.ClassOK && !OutputsMatch(actual, req.ExpectedOutput, req.ExactMatch) {
		classification = result.ClassWrongAnswer
	}

	res := base
	res.ActualOutput = truncate(actual, r.maxReportBytes)
	res.Success = classification == result.ClassOK
	res.Classification = classification
	res.TimeMs = runRes.TimeMs
	res.WallTimeMs = runRes.WallTimeMs
	res.MemoryKB = runRes.MemoryKB
	res.OutputKB = runRes.OutputKB
	res.ExitCode = runRes.ExitCode
	res.Error = truncate(runRes.Stderr, r.maxReportBytes)
	r.metrics.ObserveRun(ctx, string(req.Language.ID), string(classification), res.TimeMs, res.MemoryKB, res.OutputKB)
	return res, nil
}

// classify maps a raw run to a classification, leaving output comparison to the caller.
func classify(res result.RunResult, limits spec.ResourceLimit, outputTruncated bool) result.Classification {
	if res.TimedOut() {
		return result.ClassTimeout
	}
	if limits.CPUTimeMs > 0 && res.TimeMs > limits.CPUTimeMs {
		return result.ClassTimeout
	}
	if res.OomKilled {
		return result.ClassMemoryExceeded
	}
	if limits.MemoryMB > 0 && res.MemoryKB > limits.MemoryMB*1024 {
		return result.ClassMemoryExceeded
	}
	if outputTruncated || (limits.OutputMB > 0 && res.OutputKB > limits.OutputMB*1024) {
		return result.ClassOutputExceeded
	}
	if res.ExitCode != 0 {
		if limits.AddressSpaceMB > 0 && hasMemoryFailure(res.Stderr) {
			return result.ClassMemoryExceeded
		}
		return result.ClassRuntimeError
	}
	return result.ClassOK
}

func hasMemoryFailure(stderr string) bool {
	for _, marker := range memoryFailureMarkers {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}

func validateCompileRequest(req CompileRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	if req.Language.SourceFile == "" {
		return appErr.ValidationError("source_file_name", "required")
	}
	return nil
}

func validateRunRequest(req RunRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.TestID == "" {
		return appErr.ValidationError("test_id", "required")
	}
	if req.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	if req.Profile.TaskType != profile.TaskTypeRun {
		return appErr.ValidationError("task_profile", "run profile required")
	}
	return nil
}

func buildBindMounts(workDir string) []spec.MountSpec {
	return []spec.MountSpec{{Source: workDir, Target: workDir}}
}

func buildCommand(tpl string, lang profile.LanguageSpec, workDir string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := strings.NewReplacer(
		"{src}", filepath.Join(workDir, lang.SourceFile),
		"{bin}", filepath.Join(workDir, lang.BinaryFile),
		"{dir}", workDir,
	).Replace(tpl)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

func applyLimits(override, defaults spec.ResourceLimit, lang profile.LanguageSpec) spec.ResourceLimit {
	merged := mergeLimits(defaults, override)
	merged = applyMultipliers(merged, lang)
	if lang.AddressSpaceLimited() && merged.AddressSpaceMB == 0 {
		merged.AddressSpaceMB = merged.MemoryMB
	}
	return merged
}

func mergeLimits(base, override spec.ResourceLimit) spec.ResourceLimit {
	if override.CPUTimeMs > 0 {
		base.CPUTimeMs = override.CPUTimeMs
	}
	if override.WallTimeMs > 0 {
		base.WallTimeMs = override.WallTimeMs
	}
	if override.MemoryMB > 0 {
		base.MemoryMB = override.MemoryMB
	}
	if override.StackMB > 0 {
		base.StackMB = override.StackMB
	}
	if override.OutputMB > 0 {
		base.OutputMB = override.OutputMB
	}
	if override.PIDs > 0 {
		base.PIDs = override.PIDs
	}
	if override.AddressSpaceMB > 0 {
		base.AddressSpaceMB = override.AddressSpaceMB
	}
	return base
}

func applyMultipliers(limits spec.ResourceLimit, lang profile.LanguageSpec) spec.ResourceLimit {
	limits.CPUTimeMs = scaleLimit(limits.CPUTimeMs, lang.TimeMultiplier)
	limits.WallTimeMs = scaleLimit(limits.WallTimeMs, lang.TimeMultiplier)
	limits.MemoryMB = scaleLimit(limits.MemoryMB, lang.MemoryMultiplier)
	return limits
}

func scaleLimit(value int64, multiplier float64) int64 {
	if value <= 0 {
		return 0
	}
	if multiplier <= 0 {
		return value
	}
	return int64(math.Ceil(float64(value) * multiplier))
}

func outputLimitBytes(limits spec.ResourceLimit) int64 {
	mb := limits.OutputMB
	if mb <= 0 {
		mb = defaultMaxOutputMB
	}
	return mb * 1024 * 1024
}

// readOutput reads at most limit bytes and reports whether the file was longer.
func readOutput(path string, limit int64) (string, bool, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return "", false, err
	}
	if int64(len(data)) > limit {
		return string(data[:limit]), true, nil
	}
	return string(data), false, nil
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

func prepareWorkDir(workDir string) error {
	if workDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "create work dir failed")
	}
	return nil
}

func writeSourceFile(workDir, targetName, source string) error {
	if targetName == "" {
		return appErr.ValidationError("source_file_name", "required")
	}
	targetPath := filepath.Join(workDir, targetName)
	if err := os.WriteFile(targetPath, []byte(source), 0644); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "write source failed")
	}
	return nil
}
