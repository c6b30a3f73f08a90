package service

import (
	"context"
	"strings"

	"nitz/internal/judge/model"
	"nitz/internal/judge/sandbox/profile"
	appErr "nitz/pkg/errors"
	"nitz/pkg/utils/logger"

	"go.uber.org/zap"
)

// StarterCode returns the code templates of a problem, one entry per registered language.
// A user viewer gets their saved code in place of the template.
func (s *Service) StarterCode(ctx context.Context, req model.StarterCodeRequest) ([]model.StarterCodeEntry, error) {
	if req.ProblemID <= 0 {
		return nil, appErr.ValidationError("id", "required")
	}
	items, err := s.starters.List(ctx, req.ProblemID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.Newf(appErr.StarterCodeNotFound, "no starter code for problem %d", req.ProblemID)
	}

	saved := make(map[profile.LanguageID]string)
	if req.Context == model.ContextUser && req.UserID > 0 && s.submissions != nil {
		codes, err := s.submissions.ListSaved(ctx, req.ProblemID, req.UserID)
		if err != nil {
			logger.Warn(ctx, "load saved code failed", zap.Error(err))
		}
		for _, code := range codes {
			saved[code.LanguageID] = code.UserCode
		}
	}

	out := make([]model.StarterCodeEntry, 0, len(items))
	for _, item := range items {
		lang, err := s.registry.Resolve(string(item.LanguageID))
		if err != nil {
			continue
		}
		entry := model.StarterCodeEntry{
			LanguageID: lang.ID,
			Name:       lang.Name,
			Version:    lang.Version,
			UserCode:   item.UserCode,
		}
		if code, ok := saved[lang.ID]; ok {
			entry.UserCode = code
		}
		if req.CanSeeLogic() {
			entry.LogicCode = item.LogicCode
		}
		out = append(out, entry)
	}
	return out, nil
}

// UpdateStarterCode replaces the user or logic template of (problem, language).
func (s *Service) UpdateStarterCode(ctx context.Context, req model.UpdateStarterCodeRequest) error {
	if req.ProblemID <= 0 {
		return appErr.ValidationError("problemId", "required")
	}
	if req.CodeType != model.CodeTypeUser && req.CodeType != model.CodeTypeLogic {
		return appErr.ValidationError("codeType", "must be user_code or logic_code")
	}
	if len(req.Code) > s.maxCodeBytes {
		return appErr.Newf(appErr.CodeTooLarge, "code exceeds %d bytes", s.maxCodeBytes)
	}
	lang, err := s.registry.Resolve(strings.TrimSpace(req.Language))
	if err != nil {
		return err
	}
	if _, err := s.loadProblem(ctx, req.ProblemID); err != nil {
		return err
	}
	if err := s.starters.Update(ctx, req.ProblemID, lang.ID, req.CodeType, req.Code); err != nil {
		return err
	}
	logger.Info(ctx, "starter code updated",
		zap.Int64("problem_id", req.ProblemID),
		zap.String("language", string(lang.ID)),
		zap.String("code_type", req.CodeType),
	)
	return nil
}
