package threeprof

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/3jsLive/tasks/threeprof/internal/sink"
	"github.com/3jsLive/tasks/threeprof/result"
)

// Sink is the output interface for profiling results.
type Sink = sink.Sink

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process callback sink. Either function may
// be nil.
func NewCallbackSink(
	onResult func(ctx context.Context, res *result.ProfilingResult) error,
	onSummary func(ctx context.Context, sum result.RunSummary) error,
) Sink {
	return sink.NewCallback(onResult, onSummary)
}

// SinksFromConfig builds the extra sinks listed in cfg.Output.Sinks.
func SinksFromConfig(cfg *Config, logger *slog.Logger) ([]Sink, error) {
	var out []Sink
	for i, s := range cfg.Output.Sinks {
		switch s.Type {
		case "stdout":
			out = append(out, NewStdoutSink(nil))
		case "webhook":
			out = append(out, NewWebhookSink(s.URL, logger))
		default:
			return nil, fmt.Errorf("threeprof: sink %d: unknown type %q", i, s.Type)
		}
	}
	return out, nil
}
