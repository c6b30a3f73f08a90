// Package observer defines logging and metrics hooks for sandbox execution.
package observer

import (
	"context"
	"sort"
	"sync/atomic"

	"nitz/pkg/utils/logger"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64, memoryKB int64)
	ObserveRun(ctx context.Context, languageID string, classification string, timeMs int64, memoryKB int64, outputKB int64)
}

// NoopMetricsRecorder discards everything.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64, memoryKB int64) {
}

func (NoopMetricsRecorder) ObserveRun(ctx context.Context, languageID string, classification string, timeMs int64, memoryKB int64, outputKB int64) {
}

// Counters keeps process-wide totals per language and outcome and logs each observation at debug level.
type Counters struct {
	counts *xsync.MapOf[string, *atomic.Int64]
}

// NewCounters creates an empty counter set.
func NewCounters() *Counters {
	return &Counters{counts: xsync.NewMapOf[string, *atomic.Int64]()}
}

func (c *Counters) ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64, memoryKB int64) {
	outcome := "compile_ok"
	if !ok {
		outcome = "compile_error"
	}
	c.inc(languageID + "." + outcome)
	logger.Debug(ctx, "sandbox compile",
		zap.String("language", languageID),
		zap.Bool("ok", ok),
		zap.Int64("time_ms", timeMs),
		zap.Int64("memory_kb", memoryKB),
	)
}

func (c *Counters) ObserveRun(ctx context.Context, languageID string, classification string, timeMs int64, memoryKB int64, outputKB int64) {
	c.inc(languageID + "." + classification)
	logger.Debug(ctx, "sandbox run",
		zap.String("language", languageID),
		zap.String("classification", classification),
		zap.Int64("time_ms", timeMs),
		zap.Int64("memory_kb", memoryKB),
		zap.Int64("output_kb", outputKB),
	)
}

func (c *Counters) inc(key string) {
	counter, _ := c.counts.LoadOrCompute(key, func() *atomic.Int64 { return new(atomic.Int64) })
	counter.Add(1)
}

// Snapshot returns the current totals keyed by "<language>.<outcome>".
func (c *Counters) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	c.counts.Range(func(key string, value *atomic.Int64) bool {
		out[key] = value.Load()
		return true
	})
	return out
}

// Keys returns the observed keys in sorted order.
func (c *Counters) Keys() []string {
	keys := make([]string, 0)
	c.counts.Range(func(key string, _ *atomic.Int64) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys
}
