package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nitz/internal/judge/limiter"
	"nitz/internal/judge/model"
	"nitz/internal/judge/repository"
	"nitz/internal/judge/sandbox"
	"nitz/internal/judge/sandbox/profile"
	"nitz/internal/judge/sandbox/result"
	"nitz/internal/judge/sandbox/spec"
	appErr "nitz/pkg/errors"
	"nitz/pkg/utils/contextkey"
	"nitz/pkg/utils/logger"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

const defaultMaxCodeBytes = 64 << 10

var errCanceledByUser = errors.New("submission canceled by user")

// LanguageRegistry resolves requested languages.
type LanguageRegistry interface {
	Resolve(raw string) (profile.LanguageSpec, error)
	Languages() []profile.LanguageSpec
}

// StatusStore persists submission status snapshots.
type StatusStore interface {
	Get(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error)
	Save(ctx context.Context, status model.JudgeStatusResponse) error
}

// Service coordinates judging requests.
type Service struct {
	judge       sandbox.Service
	registry    LanguageRegistry
	limiter     *limiter.Limiter
	problems    repository.ProblemRepository
	starters    repository.StarterCodeRepository
	submissions repository.SubmissionRepository
	statusRepo  StatusStore
	publisher   repository.OutcomePublisher
	archive     repository.SourceArchive

	maxCodeBytes   int
	workerTimeout  time.Duration
	problemTimeout time.Duration
	statusTimeout  time.Duration
	persistTimeout time.Duration

	inflight *xsync.MapOf[string, context.CancelCauseFunc]
}

// Config holds service dependencies and settings.
// Submissions, StatusRepo, Publisher and Archive are optional.
type Config struct {
	Judge       sandbox.Service
	Registry    LanguageRegistry
	Limiter     *limiter.Limiter
	Problems    repository.ProblemRepository
	StarterCode repository.StarterCodeRepository
	Submissions repository.SubmissionRepository
	StatusRepo  StatusStore
	Publisher   repository.OutcomePublisher
	Archive     repository.SourceArchive

	MaxCodeBytes   int
	WorkerTimeout  time.Duration
	ProblemTimeout time.Duration
	StatusTimeout  time.Duration
	PersistTimeout time.Duration
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("language registry is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.StarterCode == nil {
		return nil, fmt.Errorf("starter code repository is required")
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	return &Service{
		judge:          cfg.Judge,
		registry:       cfg.Registry,
		limiter:        cfg.Limiter,
		problems:       cfg.Problems,
		starters:       cfg.StarterCode,
		submissions:    cfg.Submissions,
		statusRepo:     cfg.StatusRepo,
		publisher:      cfg.Publisher,
		archive:        cfg.Archive,
		maxCodeBytes:   cfg.MaxCodeBytes,
		workerTimeout:  cfg.WorkerTimeout,
		problemTimeout: cfg.ProblemTimeout,
		statusTimeout:  cfg.StatusTimeout,
		persistTimeout: cfg.PersistTimeout,
		inflight:       xsync.NewMapOf[string, context.CancelCauseFunc](),
	}, nil
}

// Execute judges user code against a problem's test cases.
func (s *Service) Execute(ctx context.Context, req model.ExecuteRequest) (*model.ExecuteResponse, error) {
	mode, err := s.validateExecute(&req)
	if err != nil {
		return nil, err
	}
	lang, err := s.registry.Resolve(req.Language)
	if err != nil {
		return nil, err
	}

	problem, err := s.loadProblem(ctx, req.ProblemID)
	if err != nil {
		return nil, err
	}
	if len(problem.AllowedLanguages) > 0 && !mapset.NewThreadUnsafeSet(problem.AllowedLanguages...).Contains(lang.ID) {
		return nil, appErr.Newf(appErr.LanguageNotSupported, "language %s is not allowed for problem %d", lang.ID, problem.ID)
	}
	if len(problem.TestCases) == 0 {
		return nil, appErr.Newf(appErr.TestCaseNotFound, "problem %d has no test cases", problem.ID)
	}

	logicCode, err := s.logicCode(ctx, problem.ID, lang.ID, mode, req.LogicCode)
	if err != nil {
		return nil, err
	}
	source := lang.MergeSource(req.UserCode, logicCode)

	submissionID := uuid.NewString()
	ctx = context.WithValue(ctx, contextkey.SubmissionID, submissionID)
	receivedAt := time.Now().Unix()
	s.saveStatus(ctx, model.JudgeStatusResponse{
		SubmissionID: submissionID,
		Status:       result.StatusQueued,
		Language:     string(lang.ID),
		Mode:         string(mode),
		ReceivedAt:   receivedAt,
	})

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	s.inflight.Store(submissionID, cancel)
	defer s.inflight.Delete(submissionID)

	slot, err := s.limiter.Acquire(runCtx)
	if err != nil {
		err = s.cancellationError(runCtx, err)
		s.handleFailure(ctx, submissionID, lang.ID, mode, receivedAt, err)
		return nil, err
	}
	defer slot.Release()

	if s.workerTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, s.workerTimeout)
		defer cancelTimeout()
	}

	res, err := s.judge.Judge(runCtx, sandbox.JudgeRequest{
		SubmissionID: submissionID,
		Language:     lang,
		Source:       source,
		Mode:         mode,
		Tests:        buildTestcases(problem.TestCases),
		Limits:       problemLimits(problem),
		ReceivedAt:   receivedAt,
	})
	if err != nil {
		err = s.cancellationError(runCtx, err)
		s.handleFailure(ctx, submissionID, lang.ID, mode, receivedAt, err)
		return nil, err
	}

	logger.Info(ctx, "submission judged",
		zap.Int64("problem_id", problem.ID),
		zap.String("language", string(lang.ID)),
		zap.String("mode", string(mode)),
		zap.String("verdict", string(res.Verdict)),
		zap.Int("passed", res.Summary.Passed),
		zap.Int("total", res.Summary.Total),
	)
	s.persistOutcome(ctx, req, problem, lang, source, logicCode, res)

	return &model.ExecuteResponse{
		SubmissionID:  submissionID,
		Verdict:       res.Verdict,
		Results:       res.Results,
		StandardError: res.StandardError,
		Summary:       res.Summary,
	}, nil
}

// Languages lists the registered runtimes.
func (s *Service) Languages() []model.LanguageInfo {
	specs := s.registry.Languages()
	out := make([]model.LanguageInfo, 0, len(specs))
	for _, lang := range specs {
		out = append(out, model.LanguageInfo{
			LanguageID:     lang.ID,
			Name:           lang.Name,
			Version:        lang.Version,
			CompileEnabled: lang.CompileEnabled,
		})
	}
	return out
}

// Stats reports limiter usage.
func (s *Service) Stats() limiter.Stats {
	return s.limiter.Stats()
}

func (s *Service) validateExecute(req *model.ExecuteRequest) (sandbox.Mode, error) {
	if req.ProblemID <= 0 {
		return "", appErr.ValidationError("problemId", "required")
	}
	if strings.TrimSpace(req.Language) == "" {
		return "", appErr.ValidationError("language", "required")
	}
	if strings.TrimSpace(req.UserCode) == "" {
		return "", appErr.ValidationError("userCode", "required")
	}
	if len(req.UserCode)+len(req.LogicCode) > s.maxCodeBytes {
		return "", appErr.Newf(appErr.CodeTooLarge, "code exceeds %d bytes", s.maxCodeBytes)
	}
	switch sandbox.Mode(strings.ToLower(strings.TrimSpace(req.Mode))) {
	case "", sandbox.ModeRun:
		return sandbox.ModeRun, nil
	case sandbox.ModeSubmit:
		return sandbox.ModeSubmit, nil
	}
	return "", appErr.ValidationError("mode", "must be run or submit")
}

func (s *Service) loadProblem(ctx context.Context, problemID int64) (*model.Problem, error) {
	if s.problemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.problemTimeout)
		defer cancel()
	}
	return s.problems.GetProblem(ctx, problemID)
}

// logicCode returns the stored logic code; run mode may override it with the request's.
func (s *Service) logicCode(ctx context.Context, problemID int64, languageID profile.LanguageID, mode sandbox.Mode, override string) (string, error) {
	if mode == sandbox.ModeRun && strings.TrimSpace(override) != "" {
		return override, nil
	}
	if s.problemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.problemTimeout)
		defer cancel()
	}
	starter, _, err := s.starters.Get(ctx, problemID, languageID)
	if err != nil {
		return "", err
	}
	return starter.LogicCode, nil
}

// cancellationError reports a user cancel as RequestCanceled regardless of what the judge returned.
func (s *Service) cancellationError(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), errCanceledByUser) {
		return appErr.Wrapf(err, appErr.RequestCanceled, "submission was canceled")
	}
	if errors.Is(err, context.Canceled) {
		return appErr.Wrapf(err, appErr.RequestCanceled, "request was canceled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return appErr.Wrapf(err, appErr.Timeout, "judging exceeded its deadline")
	}
	return err
}

func buildTestcases(cases []model.TestCase) []sandbox.TestcaseSpec {
	out := make([]sandbox.TestcaseSpec, 0, len(cases))
	for _, tc := range cases {
		out = append(out, sandbox.TestcaseSpec{
			ID:             strconv.FormatInt(tc.ID, 10),
			Input:          tc.Input,
			ExpectedOutput: tc.Output,
			Sample:         tc.IsSample,
			ExactMatch:     tc.ExactMatch,
		})
	}
	return out
}

// problemLimits maps the problem's limits onto per-case overrides.
// Wall time gets twice the CPU budget to absorb I/O and scheduling delays.
func problemLimits(problem *model.Problem) spec.ResourceLimit {
	return spec.ResourceLimit{
		CPUTimeMs:  problem.TimeLimitMs,
		WallTimeMs: problem.TimeLimitMs * 2,
		MemoryMB:   problem.MemoryLimitMB,
	}
}
