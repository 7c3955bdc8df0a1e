package threeprof

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/3jsLive/tasks/threeprof/internal/devserver"
	"github.com/3jsLive/tasks/threeprof/internal/ledger"
	"github.com/3jsLive/tasks/threeprof/internal/pack"
)

// Ledger is the SQLite run store.
type Ledger = ledger.Ledger

// LedgerRun is one recorded run.
type LedgerRun = ledger.Run

// OpenLedger opens (creating if needed) the ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	return ledger.Open(path)
}

// ConsoleSummary is the folded console log of a run.
type ConsoleSummary = pack.ConsoleSummary

// PackDependencies compacts the dependency artifacts of inDir into outDir.
// An empty pattern selects split-mode "*_dependencies.json" files.
func PackDependencies(ctx context.Context, inDir, outDir, pattern string, logger *slog.Logger) ([]string, error) {
	return pack.Dependencies(ctx, inDir, outDir, pattern, logger)
}

// PackConsoleLogs folds the console artifacts of inDir into outPath.
// An empty pattern selects split-mode "*_consoleLog.json" files.
func PackConsoleLogs(ctx context.Context, inDir, outPath, pattern string, logger *slog.Logger) (*ConsoleSummary, error) {
	return pack.ConsoleLogs(ctx, inDir, outPath, pattern, logger)
}

// Serve serves the configured repository on cfg.Server.Addr until ctx is
// done. Request metrics go to reg, exposed on /metrics when
// cfg.Server.Metrics is set.
func Serve(ctx context.Context, cfg *Config, reg *prometheus.Registry, logger *slog.Logger) error {
	srv := devserver.New(devserver.Options{
		Root:     cfg.Repo.Path,
		Metrics:  cfg.Server.Metrics,
		Registry: reg,
		Logger:   logger,
	})
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}
