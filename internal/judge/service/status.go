package service

import (
	"context"
	"time"

	"nitz/internal/judge/model"
	"nitz/internal/judge/sandbox"
	"nitz/internal/judge/sandbox/profile"
	"nitz/internal/judge/sandbox/result"
	appErr "nitz/pkg/errors"
	"nitz/pkg/utils/logger"

	"go.uber.org/zap"
)

// Status returns the latest snapshot for a submission.
func (s *Service) Status(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error) {
	if s.statusRepo == nil {
		return model.JudgeStatusResponse{}, appErr.New(appErr.ServiceUnavailable).WithMessage("status store is not configured")
	}
	return s.statusRepo.Get(ctx, submissionID)
}

// Cancel stops an in-flight submission. The slot is released by the Execute call that owns it.
func (s *Service) Cancel(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	cancel, ok := s.inflight.LoadAndDelete(submissionID)
	if !ok {
		return appErr.New(appErr.SubmissionNotFound).WithMessage("submission is not running")
	}
	cancel(errCanceledByUser)
	if err := s.judge.Kill(ctx, submissionID); err != nil {
		logger.Warn(ctx, "kill submission failed", zap.String("submission_id", submissionID), zap.Error(err))
	}
	logger.Info(ctx, "submission canceled", zap.String("submission_id", submissionID))
	return nil
}

// ReportStatus updates intermediate judge status in cache.
func (s *Service) ReportStatus(ctx context.Context, update sandbox.StatusUpdate) error {
	s.saveStatus(ctx, model.JudgeStatusResponse{
		SubmissionID: update.SubmissionID,
		Status:       update.Status,
		Language:     update.Language,
		Mode:         update.Mode,
		ReceivedAt:   update.ReceivedAt,
		FinishedAt:   update.FinishedAt,
		Progress: model.Progress{
			TotalTests: update.TotalTests,
			DoneTests:  update.DoneTests,
		},
	})
	return nil
}

// saveStatus is best effort; failures are logged.
func (s *Service) saveStatus(ctx context.Context, status model.JudgeStatusResponse) {
	if s.statusRepo == nil {
		return
	}
	ctxStatus := context.WithoutCancel(ctx)
	if s.statusTimeout > 0 {
		var cancel context.CancelFunc
		ctxStatus, cancel = context.WithTimeout(ctxStatus, s.statusTimeout)
		defer cancel()
	}
	if err := s.statusRepo.Save(ctxStatus, status); err != nil {
		logger.Warn(ctx, "update status failed", zap.String("status", string(status.Status)), zap.Error(err))
	}
}

func (s *Service) handleFailure(ctx context.Context, submissionID string, languageID profile.LanguageID, mode sandbox.Mode, receivedAt int64, err error) {
	status := result.StatusFailed
	kind := appErr.KindOf(err)
	if kind == appErr.KindCanceled {
		status = result.StatusCanceled
	}
	s.saveStatus(ctx, model.JudgeStatusResponse{
		SubmissionID: submissionID,
		Status:       status,
		Language:     string(languageID),
		Mode:         string(mode),
		ErrorType:    string(kind),
		ErrorMessage: err.Error(),
		ReceivedAt:   receivedAt,
		FinishedAt:   time.Now().Unix(),
	})
	if kind == appErr.KindInternalFault {
		logger.Error(ctx, "judging failed", zap.Error(err))
		return
	}
	logger.Warn(ctx, "judging stopped", zap.String("kind", string(kind)), zap.Error(err))
}
