package service

import (
	"context"
	"time"

	"nitz/internal/judge/model"
	"nitz/internal/judge/sandbox"
	"nitz/internal/judge/sandbox/profile"
	"nitz/internal/judge/sandbox/result"
	"nitz/pkg/utils/logger"

	"go.uber.org/zap"
)

// persistOutcome records a finished submission. Every step is best effort.
func (s *Service) persistOutcome(
	ctx context.Context,
	req model.ExecuteRequest,
	problem *model.Problem,
	lang profile.LanguageSpec,
	source string,
	logicCode string,
	res result.SubmissionResult,
) {
	ctx = context.WithoutCancel(ctx)
	if s.persistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.persistTimeout)
		defer cancel()
	}

	summary := res.Summary
	s.saveStatus(ctx, model.JudgeStatusResponse{
		SubmissionID:  res.SubmissionID,
		Status:        result.StatusFinished,
		Language:      res.Language,
		Mode:          res.Mode,
		Verdict:       res.Verdict,
		Summary:       &summary,
		StandardError: res.StandardError,
		Progress:      model.Progress{TotalTests: summary.Total, DoneTests: summary.Total},
		ReceivedAt:    res.ReceivedAt,
		FinishedAt:    res.FinishedAt,
	})

	if s.submissions != nil && req.UserID > 0 {
		err := s.submissions.Save(ctx, model.SavedCode{
			ProblemID:  problem.ID,
			UserID:     req.UserID,
			LanguageID: lang.ID,
			UserCode:   req.UserCode,
			LogicCode:  logicCode,
		})
		if err != nil {
			logger.Warn(ctx, "save code failed", zap.Error(err))
		} else if res.Mode == string(sandbox.ModeSubmit) && res.Accepted() {
			awarded, err := s.submissions.AwardPoints(ctx, problem.ID, req.UserID, lang.ID)
			if err != nil {
				logger.Warn(ctx, "award points failed", zap.Error(err))
			} else if awarded {
				logger.Info(ctx, "points awarded", zap.Int64("problem_id", problem.ID), zap.String("difficulty", problem.Difficulty))
			}
		}
	}

	var sourceKey string
	if s.archive != nil {
		key, err := s.archive.Store(ctx, res.SubmissionID, string(lang.ID), source)
		if err != nil {
			logger.Warn(ctx, "archive source failed", zap.Error(err))
		} else {
			sourceKey = key
		}
	}

	if s.publisher != nil {
		event := model.OutcomeEvent{
			SubmissionID: res.SubmissionID,
			ProblemID:    problem.ID,
			UserID:       req.UserID,
			LanguageID:   string(lang.ID),
			Mode:         res.Mode,
			Verdict:      res.Verdict,
			Passed:       summary.Passed,
			Total:        summary.Total,
			TotalTimeMs:  summary.TotalTimeMs,
			MaxMemoryKB:  summary.MaxMemoryKB,
			SourceKey:    sourceKey,
			FinishedAt:   res.FinishedAt,
		}
		if event.FinishedAt == 0 {
			event.FinishedAt = time.Now().Unix()
		}
		if err := s.publisher.PublishOutcome(ctx, event); err != nil {
			logger.Warn(ctx, "publish outcome failed", zap.Error(err))
		}
	}
}
