package sink

import (
	"context"

	"github.com/3jsLive/tasks/threeprof/result"
)

// ResultFunc is called for each profiling result.
type ResultFunc func(ctx context.Context, res *result.ProfilingResult) error

// SummaryFunc is called once per run.
type SummaryFunc func(ctx context.Context, sum result.RunSummary) error

// Callback delivers results via Go function calls, for callers embedding
// the campaign in the same binary.
type Callback struct {
	onResult  ResultFunc
	onSummary SummaryFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onResult ResultFunc, onSummary SummaryFunc) *Callback {
	return &Callback{onResult: onResult, onSummary: onSummary}
}

func (c *Callback) Send(ctx context.Context, res *result.ProfilingResult) error {
	if c.onResult != nil {
		return c.onResult(ctx, res)
	}
	return nil
}

func (c *Callback) SendSummary(ctx context.Context, sum result.RunSummary) error {
	if c.onSummary != nil {
		return c.onSummary(ctx, sum)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
