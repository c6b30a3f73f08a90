// Package result defines sandbox execution results and verdict mapping.
package result

// JudgeStatus represents the lifecycle state of a submission.
type JudgeStatus string

const (
	StatusPending   JudgeStatus = "Pending"
	StatusQueued    JudgeStatus = "Queued"
	StatusCompiling JudgeStatus = "Compiling"
	StatusRunning   JudgeStatus = "Running"
	StatusFinished  JudgeStatus = "Finished"
	StatusFailed    JudgeStatus = "Failed"
	StatusCanceled  JudgeStatus = "Canceled"
)

// Classification is the outcome of one test case.
type Classification string

const (
	ClassOK             Classification = "ok"
	ClassWrongAnswer    Classification = "wrong_answer"
	ClassRuntimeError   Classification = "runtime_error"
	ClassTimeout        Classification = "timeout"
	ClassMemoryExceeded Classification = "memory_exceeded"
	ClassOutputExceeded Classification = "output_exceeded"
	ClassCompileError   Classification = "compile_error"
	ClassSkipped        Classification = "skipped"
)

// Verdict represents the final outcome of a submission.
type Verdict string

const (
	VerdictAC  Verdict = "accepted"
	VerdictWA  Verdict = "wrong_answer"
	VerdictTLE Verdict = "timeout"
	VerdictMLE Verdict = "memory_exceeded"
	VerdictOLE Verdict = "output_exceeded"
	VerdictRE  Verdict = "runtime_error"
	VerdictCE  Verdict = "compile_error"
)

// VerdictOf maps a failing classification to the submission verdict it produces.
func VerdictOf(c Classification) Verdict {
	if c == ClassOK {
		return VerdictAC
	}
	return Verdict(c)
}

// RunResult captures raw sandbox execution data.
// ExitCode is -1 when the process was stopped for exceeding its time limits.
type RunResult struct {
	ExitCode   int
	TimeMs     int64
	WallTimeMs int64
	MemoryKB   int64
	OutputKB   int64
	Stdout     string
	Stderr     string
	OomKilled  bool
}

// TimedOut reports whether the run hit its wall or cpu limit.
func (r RunResult) TimedOut() bool {
	return r.ExitCode == -1
}

// CompileResult contains compilation outcomes.
type CompileResult struct {
	OK       bool
	ExitCode int
	TimeMs   int64
	MemoryKB int64
	LogPath  string
	Error    string
}

// TestcaseResult is the outcome of running one test case.
type TestcaseResult struct {
	TestCaseID     string         `json:"testCaseId"`
	Input          string         `json:"input"`
	ExpectedOutput string         `json:"expectedOutput"`
	ActualOutput   string         `json:"actualOutput"`
	Success        bool           `json:"success"`
	Classification Classification `json:"classification"`
	TimeMs         int64          `json:"timeMs"`
	WallTimeMs     int64          `json:"wallTimeMs"`
	MemoryKB       int64          `json:"memoryKb"`
	ExitCode       int            `json:"exitCode"`
	Error          string         `json:"error,omitempty"`
	// OutputKB is internal bookkeeping and not part of the response.
	OutputKB int64 `json:"-"`
}

// StandardError is the submission-level diagnostic shown instead of, or next to, results.
type StandardError struct {
	Message string `json:"message"`
	Details string `json:"details"`
}

const (
	CompileErrorMessage = "Compilation Error"
	RuntimeErrorMessage = "Runtime Error"
)

// SummaryStat captures aggregate statistics across testcases.
type SummaryStat struct {
	Total        int    `json:"total"`
	Passed       int    `json:"passed"`
	TotalTimeMs  int64  `json:"totalTimeMs"`
	MaxMemoryKB  int64  `json:"maxMemoryKb"`
	FailedTestID string `json:"failedTestId,omitempty"`
}

// SubmissionResult is the aggregate outcome of one submission.
type SubmissionResult struct {
	SubmissionID  string           `json:"submissionId"`
	Language      string           `json:"language"`
	Mode          string           `json:"mode"`
	Verdict       Verdict          `json:"verdict"`
	Results       []TestcaseResult `json:"results"`
	StandardError *StandardError   `json:"standardError,omitempty"`
	Summary       SummaryStat      `json:"summary"`
	Compile       *CompileResult   `json:"-"`
	ReceivedAt    int64            `json:"receivedAt"`
	FinishedAt    int64            `json:"finishedAt"`
}

// Accepted reports whether every case passed.
func (r SubmissionResult) Accepted() bool {
	return r.Verdict == VerdictAC
}
