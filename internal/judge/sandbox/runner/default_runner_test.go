package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"nitz/internal/judge/sandbox/profile"
	"nitz/internal/judge/sandbox/result"
	"nitz/internal/judge/sandbox/spec"
)

type fakeEngine struct {
	runResults []result.RunResult
	runErrs    []error
	stdout     []string
	runSpecs   []spec.RunSpec
}

func (f *fakeEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	f.runSpecs = append(f.runSpecs, runSpec)
	idx := len(f.runSpecs) - 1
	if idx < len(f.stdout) && runSpec.StdoutPath != "" {
		if err := os.WriteFile(runSpec.StdoutPath, []byte(f.stdout[idx]), 0644); err != nil {
			return result.RunResult{}, err
		}
	}
	if idx < len(f.runErrs) && f.runErrs[idx] != nil {
		return result.RunResult{}, f.runErrs[idx]
	}
	if idx < len(f.runResults) {
		return f.runResults[idx], nil
	}
	return result.RunResult{}, nil
}

func (f *fakeEngine) KillSubmission(ctx context.Context, submissionID string) error {
	return nil
}

func cppLanguage() profile.LanguageSpec {
	return profile.LanguageSpec{
		ID:               profile.LanguageCpp,
		SourceFile:       "main.cpp",
		BinaryFile:       "main",
		CompileEnabled:   true,
		CompileCmdTpl:    "g++ -O2 -o {bin} {src}",
		RunCmdTpl:        "{bin}",
		TimeMultiplier:   2.0,
		MemoryMultiplier: 1.5,
	}
}

func pythonLanguage() profile.LanguageSpec {
	limitAS := true
	return profile.LanguageSpec{
		ID:                profile.LanguagePython,
		SourceFile:        "main.py",
		RunCmdTpl:         "python3 {src}",
		LimitAddressSpace: &limitAS,
	}
}

func runProfile(lang profile.LanguageSpec, limits spec.ResourceLimit) profile.TaskProfile {
	return profile.TaskProfile{LanguageID: lang.ID, TaskType: profile.TaskTypeRun, DefaultLimits: limits}
}

func TestCppCompileBuildsRunSpec(t *testing.T) {
	workDir := t.TempDir()
	lang := cppLanguage()
	eng := &fakeEngine{runResults: []result.RunResult{{ExitCode: 0}}}
	r := NewRunner(eng)

	res, err := r.Compile(context.Background(), CompileRequest{
		SubmissionID: "sub-1",
		Language:     lang,
		Profile: profile.TaskProfile{
			LanguageID:    lang.ID,
			TaskType:      profile.TaskTypeCompile,
			DefaultLimits: spec.ResourceLimit{CPUTimeMs: 1000, MemoryMB: 256},
		},
		WorkDir: workDir,
		Source:  "int main() {return 0;}",
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected compile ok")
	}
	if len(eng.runSpecs) != 1 {
		t.Fatalf("expected 1 run spec, got %d", len(eng.runSpecs))
	}
	runSpec := eng.runSpecs[0]
	if runSpec.WorkDir != workDir {
		t.Fatalf("unexpected workdir: %s", runSpec.WorkDir)
	}
	if runSpec.StderrPath != filepath.Join(workDir, "compile.log") {
		t.Fatalf("unexpected stderr path: %s", runSpec.StderrPath)
	}
	if runSpec.Profile != "cpp-compile" {
		t.Fatalf("unexpected profile: %s", runSpec.Profile)
	}
	if runSpec.Limits.CPUTimeMs != 2000 {
		t.Fatalf("expected CPUTimeMs 2000, got %d", runSpec.Limits.CPUTimeMs)
	}
	if runSpec.Limits.MemoryMB != 384 {
		t.Fatalf("expected MemoryMB 384, got %d", runSpec.Limits.MemoryMB)
	}
	want := []string{"g++", "-O2", "-o", filepath.Join(workDir, "main"), filepath.Join(workDir, "main.cpp")}
	if len(runSpec.Cmd) != len(want) {
		t.Fatalf("unexpected cmd: %v", runSpec.Cmd)
	}
	for i := range want {
		if runSpec.Cmd[i] != want[i] {
			t.Fatalf("unexpected cmd: %v", runSpec.Cmd)
		}
	}
	if _, err := os.Stat(filepath.Join(workDir, "main.cpp")); err != nil {
		t.Fatalf("expected source to be written: %v", err)
	}
}

func TestCompileFailureCarriesDiagnostics(t *testing.T) {
	lang := cppLanguage()
	eng := &fakeEngine{runResults: []result.RunResult{{ExitCode: 1, Stderr: "main.cpp:1: error: expected ';'\n"}}}
	r := NewRunner(eng)

	res, err := r.Compile(context.Background(), CompileRequest{
		SubmissionID: "sub-1",
		Language:     lang,
		Profile:      profile.TaskProfile{LanguageID: lang.ID, TaskType: profile.TaskTypeCompile},
		WorkDir:      t.TempDir(),
		Source:       "int main() {return 0}",
	})
	if err != nil {
		t.Fatalf("compile returned error: %v", err)
	}
	if res.OK {
		t.Fatalf("expected compile failure")
	}
	if res.Error != "main.cpp:1: error: expected ';'" {
		t.Fatalf("unexpected compile error: %q", res.Error)
	}
}

func TestCompileInterpretedOnlyWritesSource(t *testing.T) {
	workDir := t.TempDir()
	eng := &fakeEngine{}
	r := NewRunner(eng)
	res, err := r.Compile(context.Background(), CompileRequest{
		SubmissionID: "sub-1",
		Language:     pythonLanguage(),
		WorkDir:      workDir,
		Source:       "print(1)",
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected ok")
	}
	if len(eng.runSpecs) != 0 {
		t.Fatalf("expected no engine call, got %d", len(eng.runSpecs))
	}
	data, err := os.ReadFile(filepath.Join(workDir, "main.py"))
	if err != nil || string(data) != "print(1)" {
		t.Fatalf("expected source file, got %q (%v)", data, err)
	}
}

func TestRunClassifications(t *testing.T) {
	limits := spec.ResourceLimit{CPUTimeMs: 1000, WallTimeMs: 2000, MemoryMB: 64, OutputMB: 1}
	tests := []struct {
		name     string
		run      result.RunResult
		stdout   string
		expected string
		exact    bool
		want     result.Classification
	}{
		{name: "ok with trailing whitespace", run: result.RunResult{}, stdout: "5  \n\n", expected: "5", want: result.ClassOK},
		{name: "wrong answer", run: result.RunResult{}, stdout: "6\n", expected: "5", want: result.ClassWrongAnswer},
		{name: "exact match rejects newline", run: result.RunResult{}, stdout: "5\n", expected: "5", exact: true, want: result.ClassWrongAnswer},
		{name: "wall timeout", run: result.RunResult{ExitCode: -1}, expected: "5", want: result.ClassTimeout},
		{name: "cpu timeout", run: result.RunResult{TimeMs: 1500}, stdout: "5", expected: "5", want: result.ClassTimeout},
		{name: "oom", run: result.RunResult{ExitCode: 137, OomKilled: true}, expected: "5", want: result.ClassMemoryExceeded},
		{name: "peak memory", run: result.RunResult{MemoryKB: 65 * 1024}, stdout: "5", expected: "5", want: result.ClassMemoryExceeded},
		{name: "output", run: result.RunResult{OutputKB: 2048}, expected: "5", want: result.ClassOutputExceeded},
		{name: "runtime error", run: result.RunResult{ExitCode: 1, Stderr: "Traceback"}, expected: "5", want: result.ClassRuntimeError},
		{name: "allocation failure", run: result.RunResult{ExitCode: 1, Stderr: "MemoryError"}, expected: "5", want: result.ClassMemoryExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lang := pythonLanguage()
			eng := &fakeEngine{runResults: []result.RunResult{tt.run}, stdout: []string{tt.stdout}}
			r := NewRunner(eng)
			res, err := r.Run(context.Background(), RunRequest{
				SubmissionID:   "sub-1",
				TestID:         "1",
				Language:       lang,
				Profile:        runProfile(lang, limits),
				WorkDir:        t.TempDir(),
				Input:          "2 3",
				ExpectedOutput: tt.expected,
				ExactMatch:     tt.exact,
			})
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if res.Classification != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, res.Classification)
			}
			if res.Success != (tt.want == result.ClassOK) {
				t.Fatalf("success flag mismatch for %s", res.Classification)
			}
			if res.Input != "2 3" || res.ExpectedOutput != tt.expected {
				t.Fatalf("expected input and expected output to be echoed, got %+v", res)
			}
		})
	}
}

func TestRunWritesInputAndAppliesOverrides(t *testing.T) {
	lang := pythonLanguage()
	workDir := t.TempDir()
	eng := &fakeEngine{stdout: []string{"5\n"}}
	r := NewRunner(eng)
	_, err := r.Run(context.Background(), RunRequest{
		SubmissionID:   "sub-1",
		TestID:         "1",
		Language:       lang,
		Profile:        runProfile(lang, spec.ResourceLimit{CPUTimeMs: 1000, WallTimeMs: 1000, MemoryMB: 256}),
		WorkDir:        workDir,
		Input:          "2 3",
		ExpectedOutput: "5",
		Limits:         spec.ResourceLimit{WallTimeMs: 3000, MemoryMB: 128},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	runSpec := eng.runSpecs[0]
	if runSpec.Limits.WallTimeMs != 3000 || runSpec.Limits.CPUTimeMs != 1000 {
		t.Fatalf("unexpected time limits: %+v", runSpec.Limits)
	}
	if runSpec.Limits.MemoryMB != 128 || runSpec.Limits.AddressSpaceMB != 128 {
		t.Fatalf("unexpected memory limits: %+v", runSpec.Limits)
	}
	data, err := os.ReadFile(runSpec.StdinPath)
	if err != nil || string(data) != "2 3" {
		t.Fatalf("expected input file, got %q (%v)", data, err)
	}
	if runSpec.Profile != "python-run" {
		t.Fatalf("unexpected profile: %s", runSpec.Profile)
	}
}

func TestRunEngineErrorPropagates(t *testing.T) {
	lang := pythonLanguage()
	boom := errors.New("helper crashed")
	eng := &fakeEngine{runErrs: []error{boom}}
	r := NewRunner(eng)
	_, err := r.Run(context.Background(), RunRequest{
		SubmissionID: "sub-1",
		TestID:       "1",
		Language:     lang,
		Profile:      runProfile(lang, spec.ResourceLimit{}),
		WorkDir:      t.TempDir(),
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected engine error, got %v", err)
	}
}

func TestRunRequiresRunProfile(t *testing.T) {
	lang := pythonLanguage()
	r := NewRunner(&fakeEngine{})
	_, err := r.Run(context.Background(), RunRequest{
		SubmissionID: "sub-1",
		TestID:       "1",
		Language:     lang,
		WorkDir:      t.TempDir(),
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestScaleLimit(t *testing.T) {
	if got := scaleLimit(1000, 1.5); got != 1500 {
		t.Fatalf("expected 1500, got %d", got)
	}
	if got := scaleLimit(3, 1.5); got != 5 {
		t.Fatalf("expected ceil to 5, got %d", got)
	}
	if got := scaleLimit(0, 2); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := scaleLimit(100, 0); got != 100 {
		t.Fatalf("expected unchanged, got %d", got)
	}
}
