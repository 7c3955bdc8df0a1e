// Package threeprof drives browser profiling campaigns over three.js example
// pages. A Campaign owns one browser, visits every URL of a worklist in a
// fresh tab, and persists one deterministic JSON artifact per URL.
//
// Sessions degrade rather than fail: a crashed page, a missing bundle or a
// profiler timeout produce a failure entry for that URL and the campaign
// moves on. Only setup problems (catalog, bundle, browser launch) abort a
// run.
package threeprof

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/3jsLive/tasks/idgen"
	"github.com/3jsLive/tasks/threeprof/internal/browser"
	"github.com/3jsLive/tasks/threeprof/internal/catalog"
	"github.com/3jsLive/tasks/threeprof/internal/ledger"
	"github.com/3jsLive/tasks/threeprof/internal/session"
	"github.com/3jsLive/tasks/threeprof/internal/sink"
	"github.com/3jsLive/tasks/threeprof/result"
)

// Session profiles one URL. Run must never return nil.
type Session interface {
	Run(ctx context.Context) *result.ProfilingResult
}

// SessionFactory opens a session for item. The returned close function is
// called once the session finished, whatever its outcome.
type SessionFactory func(ctx context.Context, item result.WorkItem) (Session, func() error, error)

// Option configures a Campaign.
type Option func(*Campaign)

// WithSessionFactory replaces the browser-backed session factory. The
// campaign then skips catalog, bundle and browser setup.
func WithSessionFactory(f SessionFactory) Option {
	return func(c *Campaign) { c.factory = f }
}

// WithSinks adds output backends next to the result directory.
func WithSinks(sinks ...Sink) Option {
	return func(c *Campaign) { c.extra = append(c.extra, sinks...) }
}

// WithLedger records runs in l instead of the ledger named by the
// configuration. The caller keeps ownership of l.
func WithLedger(l *ledger.Ledger) Option {
	return func(c *Campaign) { c.ledger = l }
}

// WithRegistry registers campaign metrics on reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(c *Campaign) { c.registry = reg }
}

// Campaign is the sequential worklist driver. Create one per run.
type Campaign struct {
	cfg      *Config
	logger   *slog.Logger
	mgr      *browser.Manager
	factory  SessionFactory
	extra    []Sink
	ledger   *ledger.Ledger
	registry prometheus.Registerer
	metrics  *campaignMetrics
	runID    idgen.Generator
}

// New creates a Campaign from configuration.
func New(cfg *Config, logger *slog.Logger, opts ...Option) *Campaign {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()

	c := &Campaign{
		cfg:    cfg,
		logger: logger,
		runID:  idgen.RunID,
	}
	for _, o := range opts {
		o(c)
	}
	c.metrics = newCampaignMetrics(c.registry)

	if c.factory == nil {
		c.mgr = browser.NewManager(browser.Config{
			RemoteURL:      cfg.Browser.Remote,
			Bin:            cfg.Browser.Bin,
			Headful:        cfg.Browser.Headful,
			XvfbDisplay:    cfg.Browser.Xvfb,
			Flags:          cfg.Browser.Flags,
			Stealth:        cfg.Browser.Stealth,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			Logger:         logger,
		})
	}
	return c
}

// Run profiles every item in order and persists the results. The returned
// error is non-nil only for setup and persistence failures; degraded
// sessions are reported through the summary.
func (c *Campaign) Run(ctx context.Context, items []result.WorkItem) (result.RunSummary, error) {
	sum := result.RunSummary{
		RunID:     c.runID(),
		StartedAt: time.Now().UTC(),
		Total:     len(items),
		Artifacts: []result.Artifact{},
	}
	logger := c.logger.With("run_id", sum.RunID)

	if c.factory == nil {
		if err := c.setup(ctx, logger); err != nil {
			c.closeBrowser(logger)
			return sum, err
		}
	}
	defer c.closeBrowser(logger)

	c.metrics.remaining.Set(float64(len(items)))
	results := make([]*result.ProfilingResult, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			logger.Warn("threeprof: campaign cancelled", "remaining", len(items)-i)
			for _, rest := range items[i:] {
				res := result.Failure(rest.URL, fmt.Errorf("threeprof: cancelled: %w", err))
				c.metrics.observe(res, 0)
				results = append(results, res)
			}
			break
		}
		logger.Info("threeprof: session start", "index", item.Index, "url", item.URL, "of", len(items))
		start := time.Now()
		res := c.runOne(ctx, item, logger)
		c.metrics.observe(res, time.Since(start))
		logger.Info("threeprof: session done",
			"url", item.URL,
			"status", res.Status,
			"errors", len(res.Errors),
			"duration", time.Since(start))
		results = append(results, res)
	}

	persistErr := c.persist(ctx, logger, &sum, results)
	sum.FinishedAt = time.Now().UTC()

	if err := c.record(ctx, logger, sum); err != nil {
		persistErr = errors.Join(persistErr, err)
	}
	logger.Info("threeprof: campaign done",
		"total", sum.Total,
		"failed", sum.Failed,
		"artifacts", len(sum.Artifacts),
		"duration", sum.FinishedAt.Sub(sum.StartedAt))
	return sum, persistErr
}

// runOne never lets a session panic or error escape: both become a failure
// entry for the item.
func (c *Campaign) runOne(ctx context.Context, item result.WorkItem, logger *slog.Logger) (res *result.ProfilingResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("threeprof: session panic", "url", item.URL, "panic", r)
			res = result.Failure(item.URL, fmt.Errorf("threeprof: session panic: %v", r))
		}
	}()

	s, closeFn, err := c.factory(ctx, item)
	if err != nil {
		return result.Failure(item.URL, fmt.Errorf("threeprof: open session: %w", err))
	}
	if closeFn != nil {
		defer func() {
			if err := closeFn(); err != nil {
				logger.Warn("threeprof: close tab", "url", item.URL, "error", err)
			}
		}()
	}

	res = s.Run(ctx)
	if res == nil {
		res = result.Failure(item.URL, errors.New("threeprof: session returned no result"))
	}
	return res
}

// persist writes every result to the result directory and the extra sinks,
// then fills the summary from the written artifacts.
func (c *Campaign) persist(ctx context.Context, logger *slog.Logger, sum *result.RunSummary, results []*result.ProfilingResult) error {
	dir := sink.NewDir(c.cfg.Output.Dir, c.cfg.Repo.BaseURL, c.cfg.Output.Split)
	sinks := append([]Sink{dir}, c.extra...)
	router := sink.NewRouter(logger, sinks...)
	defer router.Close()

	var errs []error
	for _, res := range results {
		if res.Status == result.StatusFailure {
			sum.Failed++
		}
		if err := router.Send(ctx, res); err != nil {
			errs = append(errs, fmt.Errorf("threeprof: persist %s: %w", res.URL, err))
		}
	}
	sum.Artifacts = dir.Artifacts()
	if err := router.SendSummary(ctx, *sum); err != nil {
		errs = append(errs, fmt.Errorf("threeprof: summary: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Campaign) record(ctx context.Context, logger *slog.Logger, sum result.RunSummary) error {
	l := c.ledger
	if l == nil {
		if c.cfg.Ledger.Path == "" {
			return nil
		}
		opened, err := ledger.Open(c.cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("threeprof: %w", err)
		}
		defer opened.Close()
		l = opened
	}
	if err := l.Record(ctx, sum); err != nil {
		return fmt.Errorf("threeprof: %w", err)
	}
	logger.Debug("threeprof: run recorded", "items", len(sum.Artifacts))
	return nil
}

// setup builds everything the browser sessions share. Any failure here is
// fatal to the run.
func (c *Campaign) setup(ctx context.Context, logger *slog.Logger) error {
	repo := c.cfg.Repo
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	cat, err := catalog.Build(ctx, catalog.Paths{
		ShaderChunk: filepath.Join(repo.Path, filepath.FromSlash(repo.ShaderChunkPath)),
		ShaderLib:   filepath.Join(repo.Path, filepath.FromSlash(repo.ShaderLibPath)),
		UniformsLib: filepath.Join(repo.Path, filepath.FromSlash(repo.UniformsLibPath)),
	}, logger)
	if err != nil {
		return fmt.Errorf("threeprof: catalog: %w", err)
	}

	bundle, err := session.ReadBundle(filepath.Join(repo.Path, filepath.FromSlash(repo.MainScriptPath)))
	if err != nil {
		return fmt.Errorf("threeprof: bundle: %w", err)
	}

	pattern, err := regexp.Compile(repo.ExamplesPattern)
	if err != nil {
		return fmt.Errorf("threeprof: examples pattern: %w", err)
	}

	var shims []string
	for _, path := range c.cfg.Profiling.ConsistencyShims {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("threeprof: shim: %w", err)
		}
		shims = append(shims, string(data))
	}

	if _, err := c.mgr.Start(ctx); err != nil {
		return fmt.Errorf("threeprof: start browser: %w", err)
	}

	p, idle := c.cfg.Profiling, c.cfg.NetworkIdle
	env := &session.Env{
		Catalog:           cat,
		Bundle:            bundle,
		BaseURL:           repo.BaseURL,
		RepoRoot:          repo.Path,
		MainScriptPath:    repo.MainScriptPath,
		ExamplePattern:    pattern,
		FPSLimit:          p.FPSLimit,
		FrameWallClock:    p.FrameWallClock,
		FrameCeiling:      p.FrameCeiling,
		NavigationTimeout: p.NavigationTimeout,
		ProfilerTimeout:   p.ProfilerTimeout,
		MetricsInterval:   p.MetricsInterval,
		IdleQuiet:         idle.Quiet,
		MaxInflight:       idle.MaxInflight,
		TypeProfile:       p.TypeProfile,
		Shims:             shims,
		Logger:            logger,
	}
	c.factory = func(ctx context.Context, item result.WorkItem) (Session, func() error, error) {
		tab, err := browser.OpenTab(ctx, c.mgr, item.URL)
		if err != nil {
			return nil, nil, err
		}
		return session.New(env, tab.Page, item.URL), tab.Close, nil
	}
	return nil
}

func (c *Campaign) closeBrowser(logger *slog.Logger) {
	if c.mgr == nil {
		return
	}
	if err := c.mgr.Close(); err != nil {
		logger.Warn("threeprof: close browser", "error", err)
	}
}
