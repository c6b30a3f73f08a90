package sandbox

import (
	"context"

	"nitz/internal/judge/sandbox/result"
)

// StatusUpdate carries intermediate judge status data.
type StatusUpdate struct {
	SubmissionID string             `json:"submissionId"`
	Status       result.JudgeStatus `json:"status"`
	Language     string             `json:"language"`
	Mode         string             `json:"mode"`
	TotalTests   int                `json:"totalTests"`
	DoneTests    int                `json:"doneTests"`
	ReceivedAt   int64              `json:"receivedAt"`
	FinishedAt   int64              `json:"finishedAt,omitempty"`
}

// StatusReporter persists intermediate status updates.
type StatusReporter interface {
	ReportStatus(ctx context.Context, update StatusUpdate) error
}
