package model

import (
	"nitz/internal/judge/sandbox/result"
)

// Progress tracks test case completion.
type Progress struct {
	TotalTests int `json:"totalTests"`
	DoneTests  int `json:"doneTests"`
}

// JudgeStatusResponse is the latest status snapshot of a submission.
type JudgeStatusResponse struct {
	SubmissionID  string                `json:"submissionId"`
	Status        result.JudgeStatus    `json:"status"`
	Language      string                `json:"language"`
	Mode          string                `json:"mode,omitempty"`
	Verdict       result.Verdict        `json:"verdict,omitempty"`
	Summary       *result.SummaryStat   `json:"summary,omitempty"`
	StandardError *result.StandardError `json:"standardError,omitempty"`
	Progress      Progress              `json:"progress"`
	ErrorType     string                `json:"errorType,omitempty"`
	ErrorMessage  string                `json:"errorMessage,omitempty"`
	ReceivedAt    int64                 `json:"receivedAt"`
	FinishedAt    int64                 `json:"finishedAt,omitempty"`
}

// Terminal reports whether the submission will not change anymore.
func (s JudgeStatusResponse) Terminal() bool {
	switch s.Status {
	case result.StatusFinished, result.StatusFailed, result.StatusCanceled:
		return true
	}
	return false
}
