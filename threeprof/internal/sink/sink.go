// Package sink defines output backends for profiling results.
package sink

import (
	"context"

	"github.com/3jsLive/tasks/threeprof/result"
)

// Sink is the output interface. Implementations deliver results to
// different backends (result directory, stdout, webhook, in-process callback).
type Sink interface {
	Send(ctx context.Context, res *result.ProfilingResult) error
	SendSummary(ctx context.Context, sum result.RunSummary) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
