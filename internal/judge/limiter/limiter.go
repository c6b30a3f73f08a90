// Package limiter bounds how many sandboxed executions run at once.
package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	appErr "nitz/pkg/errors"

	"golang.org/x/sync/semaphore"
)

// Config controls admission.
type Config struct {
	// Slots is the number of sandboxed executions run concurrently across all submissions.
	Slots int `yaml:"slots" env:"JUDGE_SLOTS"`
	// AdmissionTimeout is how long a request may wait for a slot. Zero rejects immediately when full.
	AdmissionTimeout time.Duration `yaml:"admissionTimeout"`
	// MaxWaiting caps queued requests. Zero means unbounded.
	MaxWaiting int `yaml:"maxWaiting"`
}

// Limiter admits submissions in arrival order.
type Limiter struct {
	sem     *semaphore.Weighted
	cfg     Config
	inUse   atomic.Int64
	waiting atomic.Int64
}

// Stats is a point-in-time view of the limiter.
type Stats struct {
	Slots   int   `json:"slots"`
	InUse   int64 `json:"inUse"`
	Waiting int64 `json:"waiting"`
}

// New creates a limiter. Slots below one are treated as one.
func New(cfg Config) *Limiter {
	if cfg.Slots <= 0 {
		cfg.Slots = 1
	}
	return &Limiter{
		sem: semaphore.NewWeighted(int64(cfg.Slots)),
		cfg: cfg,
	}
}

// Acquire waits for a free slot.
// It fails with JudgeQueueFull when the wait would exceed the admission timeout
// or the waiting queue is already full.
func (l *Limiter) Acquire(ctx context.Context) (*Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.sem.TryAcquire(1) {
		return l.newSlot(), nil
	}
	if l.cfg.AdmissionTimeout <= 0 {
		return nil, appErr.New(appErr.JudgeQueueFull).WithMessage("all execution slots are busy")
	}
	waiting := l.waiting.Add(1)
	defer l.waiting.Add(-1)
	if l.cfg.MaxWaiting > 0 && waiting > int64(l.cfg.MaxWaiting) {
		return nil, appErr.New(appErr.JudgeQueueFull).WithMessage("too many submissions waiting")
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.cfg.AdmissionTimeout)
	defer cancel()
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, appErr.New(appErr.JudgeQueueFull).WithMessagef("no execution slot within %s", l.cfg.AdmissionTimeout)
		}
		return nil, err
	}
	return l.newSlot(), nil
}

// TryAcquire takes a free slot without waiting.
// It fails while submissions are queued so parallel cases never jump ahead of them.
func (l *Limiter) TryAcquire() (*Slot, bool) {
	if !l.sem.TryAcquire(1) {
		return nil, false
	}
	return l.newSlot(), true
}

func (l *Limiter) newSlot() *Slot {
	l.inUse.Add(1)
	return &Slot{l: l}
}

// Stats reports current usage.
func (l *Limiter) Stats() Stats {
	return Stats{
		Slots:   l.cfg.Slots,
		InUse:   l.inUse.Load(),
		Waiting: l.waiting.Load(),
	}
}

// Slot is a held execution slot.
type Slot struct {
	l    *Limiter
	once sync.Once
}

// Release returns the slot. Extra calls are no-ops.
func (s *Slot) Release() {
	s.once.Do(func() {
		s.l.inUse.Add(-1)
		s.l.sem.Release(1)
	})
}
