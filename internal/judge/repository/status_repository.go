package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nitz/internal/common/cache"
	"nitz/internal/judge/model"
	appErr "nitz/pkg/errors"
)

const (
	statusKeyPrefix  = "judge:status:"
	defaultStatusTTL = 30 * time.Minute
)

// StatusRepository handles status snapshots in redis.
type StatusRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewStatusRepository creates a new repository.
func NewStatusRepository(cacheClient cache.Cache, ttl time.Duration) *StatusRepository {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusRepository{cache: cacheClient, ttl: ttl}
}

// Get returns status by submission id.
func (r *StatusRepository) Get(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error) {
	if submissionID == "" {
		return model.JudgeStatusResponse{}, appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return model.JudgeStatusResponse{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, statusKeyPrefix+submissionID)
	if err != nil {
		return model.JudgeStatusResponse{}, appErr.Wrapf(err, appErr.CacheError, "load status failed")
	}
	if val == "" {
		return model.JudgeStatusResponse{}, appErr.New(appErr.SubmissionNotFound).WithMessage("submission status not found")
	}
	var resp model.JudgeStatusResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return model.JudgeStatusResponse{}, appErr.Wrapf(err, appErr.CacheError, "decode status failed")
	}
	return resp, nil
}

// Save persists status. A terminal snapshot is never replaced by a non-terminal one.
func (r *StatusRepository) Save(ctx context.Context, status model.JudgeStatusResponse) error {
	if status.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if !status.Terminal() {
		if current, err := r.Get(ctx, status.SubmissionID); err == nil && current.Terminal() {
			return nil
		}
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status failed: %w", err)
	}
	if err := r.cache.Set(ctx, statusKeyPrefix+status.SubmissionID, string(data), r.ttl); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store status failed")
	}
	return nil
}
