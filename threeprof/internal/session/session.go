// Package session profiles one example page in one browser tab: it serves
// the instrumented bundle, waits for the network to go quiet, samples frames
// and collects coverage, dependencies and console output.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/3jsLive/tasks/threeprof/internal/catalog"
	"github.com/3jsLive/tasks/threeprof/internal/netidle"
	"github.com/3jsLive/tasks/threeprof/result"
)

// State is the lifecycle position of a Session.
type State int

const (
	Created State = iota
	PageConfigured
	Navigating
	AwaitingIdle
	CollectingFrames
	CollectingStats
	CollectingCoverage
	CollectingDependencies
	Done
	Failed
)

var stateNames = [...]string{
	"created", "page-configured", "navigating", "awaiting-idle",
	"collecting-frames", "collecting-stats", "collecting-coverage",
	"collecting-dependencies", "done", "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Env is shared by every session of a campaign.
type Env struct {
	Catalog *catalog.Catalog
	Bundle  *Bundle

	BaseURL        string
	RepoRoot       string
	MainScriptPath string
	ExamplePattern *regexp.Regexp

	FPSLimit          int
	FrameWallClock    time.Duration
	FrameCeiling      time.Duration
	NavigationTimeout time.Duration
	ProfilerTimeout   time.Duration
	MetricsInterval   time.Duration

	IdleQuiet   time.Duration
	MaxInflight int

	TypeProfile bool
	// Shims are evaluated in every new document before page scripts.
	Shims []string

	Logger *slog.Logger
}

func (e *Env) defaults() {
	if e.FPSLimit <= 0 {
		e.FPSLimit = 60
	}
	if e.FrameWallClock <= 0 {
		e.FrameWallClock = 15 * time.Second
	}
	if e.FrameCeiling <= 0 {
		e.FrameCeiling = 120 * time.Second
	}
	if e.NavigationTimeout <= 0 {
		e.NavigationTimeout = 120 * time.Second
	}
	if e.ProfilerTimeout <= 0 {
		e.ProfilerTimeout = 60 * time.Second
	}
	if e.MetricsInterval <= 0 {
		e.MetricsInterval = 250 * time.Millisecond
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	if e.Bundle == nil {
		e.Bundle = &Bundle{RendererLine: -1}
	}
}

// bundleURL is the absolute URL the page requests the bundle from.
func (e *Env) bundleURL() string {
	return strings.TrimRight(e.BaseURL, "/") + "/" + strings.TrimLeft(e.MainScriptPath, "/")
}

const framePoll = 250 * time.Millisecond

// Session profiles a single URL. It is used once.
type Session struct {
	env    *Env
	page   *rod.Page
	url    string
	logger *slog.Logger

	proto     pageProtocol
	handshake *Handshake
	console   *consoleLog
	tracker   *tracker
	metrics   *metricsSampler

	stateMu sync.Mutex
	state   State

	crashed   chan struct{}
	crashOnce sync.Once
}

// New prepares a session for url on page. The page must be blank.
func New(env *Env, page *rod.Page, url string) *Session {
	env.defaults()
	logger := env.Logger.With("url", url)
	s := &Session{
		env:     env,
		page:    page,
		url:     url,
		logger:  logger,
		proto:   pageProtocol{page: page},
		console: newConsoleLog(env.BaseURL),
		tracker: newTracker(env.Catalog, logger),
		crashed: make(chan struct{}),
	}
	s.handshake = NewHandshake(s.proto, HandshakeConfig{
		MainScriptPath: env.MainScriptPath,
		BundleURL:      env.bundleURL(),
		RendererLine:   env.Bundle.RendererLine,
		TypeProfile:    env.TypeProfile,
		Logger:         logger,
	})
	return s
}

// State returns the lifecycle position.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) transition(to State) {
	s.stateMu.Lock()
	from := s.state
	s.state = to
	s.stateMu.Unlock()
	s.logger.Debug("session: transition", "from", from.String(), "to", to.String())
}

// Run profiles the page. It never returns nil: failures produce a degraded
// result carrying whatever was collected.
func (s *Session) Run(ctx context.Context) *result.ProfilingResult {
	res := result.New(s.url)
	if err := s.run(ctx, res); err != nil {
		s.transition(Failed)
		res.Fail(err)
		s.logger.Warn("session: degraded", "error", err)
	} else if res.Status == result.StatusFailure {
		s.transition(Failed)
	} else {
		s.transition(Done)
	}
	res.ConsoleLog = s.console.snapshot()
	return res
}

func (s *Session) run(ctx context.Context, res *result.ProfilingResult) error {
	evCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.configure(evCtx); err != nil {
		return fmt.Errorf("session: configure page: %w", err)
	}
	s.transition(PageConfigured)

	gate := netidle.New(netidle.Options{
		MaxInflight:    s.env.MaxInflight,
		Quiet:          s.env.IdleQuiet,
		MainScript:     s.env.MainScriptPath,
		Bundle:         s.env.Bundle.Source,
		ExamplePattern: s.env.ExamplePattern,
		RepoRoot:       s.env.RepoRoot,
		PageScript:     SniffScript(s.env.FPSLimit),
		Logger:         s.logger,
	})
	stop := gate.Attach(evCtx, s.page)
	defer stop()

	s.metrics = startMetrics(evCtx, s.proto, s.env.MetricsInterval)
	defer s.metrics.stop()

	s.transition(Navigating)
	if err := s.navigate(ctx); err != nil {
		return err
	}
	pageStart := time.Now().UnixMilli()

	s.transition(AwaitingIdle)
	idleCtx, idleCancel := context.WithTimeout(ctx, s.env.NavigationTimeout)
	err := s.raceCrash(idleCtx, gate.Wait)
	idleCancel()
	s.metrics.stop()
	if err != nil {
		return fmt.Errorf("session: network idle: %w", err)
	}
	if !gate.Intercepted() {
		return ErrBundleNotIntercepted
	}
	s.logger.Debug("session: network idle", "requests", len(gate.Requests()))

	s.transition(CollectingFrames)
	if err := s.waitFrames(ctx); err != nil {
		if errors.Is(err, ErrPageCrashed) {
			return err
		}
		s.logger.Warn("session: frame wait", "error", err)
	}

	s.transition(CollectingStats)
	stats, err := s.collectStats(ctx, pageStart)
	if err != nil {
		res.Fail(err)
	}
	res.Stats = stats

	s.transition(CollectingCoverage)
	scripts, types, err := s.collectCoverage(ctx)
	if err != nil {
		res.Fail(err)
	}
	if scripts != nil {
		res.Profiler = scripts
	}
	res.TypeProfile = types

	s.transition(CollectingDependencies)
	res.Dependencies = s.tracker.dependencies(gate.Requests(), s.env.BaseURL)
	return nil
}

// configure installs shims and bindings and subscribes to page events. The
// subscription is in place before configure returns, so nothing emitted
// during navigation is missed.
func (s *Session) configure(ctx context.Context) error {
	pg := s.page.Context(ctx)
	for i, shim := range s.env.Shims {
		if _, err := pg.EvalOnNewDocument(shim); err != nil {
			return fmt.Errorf("shim %d: %w", i, err)
		}
	}
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(pg); err != nil {
		return fmt.Errorf("add binding: %w", err)
	}
	if _, err := pg.EvalOnNewDocument(trackerJS); err != nil {
		return fmt.Errorf("tracker: %w", err)
	}
	if err := (proto.RuntimeEnable{}).Call(pg); err != nil {
		return fmt.Errorf("runtime: %w", err)
	}
	if _, err := (proto.DebuggerEnable{}).Call(pg); err != nil {
		return fmt.Errorf("debugger: %w", err)
	}
	if err := (proto.PerformanceEnable{}).Call(pg); err != nil {
		return fmt.Errorf("performance: %w", err)
	}
	wait := s.subscribe(ctx)
	go wait()
	return nil
}

// subscribe registers the page event handlers and returns the function
// that dispatches them until ctx ends.
func (s *Session) subscribe(ctx context.Context) func() {
	return s.page.Context(ctx).EachEvent(
		func(e *proto.DebuggerPaused) {
			if err := s.handshake.Paused(ctx, callFrames(e.CallFrames)); err != nil {
				s.logger.Warn("session: handshake", "error", err)
				if err := s.proto.Resume(ctx); err != nil {
					s.logger.Debug("session: resume after handshake error", "error", err)
				}
			}
		},
		func(e *proto.RuntimeConsoleAPICalled) { s.console.consoleCalled(e) },
		func(e *proto.RuntimeExceptionThrown) { s.console.exceptionThrown(e) },
		func(e *proto.RuntimeBindingCalled) {
			if e.Name == bindingName {
				s.tracker.handle(e.Payload)
			}
		},
		func(e *proto.InspectorTargetCrashed) {
			s.logger.Error("session: page crashed")
			s.crashOnce.Do(func() { close(s.crashed) })
		},
	)
}

func (s *Session) navigate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.env.NavigationTimeout)
	defer cancel()
	err := s.raceCrash(ctx, func(ctx context.Context) error {
		return s.page.Context(ctx).Navigate(s.url)
	})
	if err != nil {
		return fmt.Errorf("session: navigate: %w", err)
	}
	return nil
}

// raceCrash runs fn and gives up with ErrPageCrashed if the renderer dies
// first.
func (s *Session) raceCrash(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- fn(ctx) }()
	select {
	case err := <-errc:
		return err
	case <-s.crashed:
		return ErrPageCrashed
	}
}

// waitFrames polls until enough frames were sampled or the wall clock
// window closed, then flips the page's emergency shutoff.
func (s *Session) waitFrames(ctx context.Context) error {
	expr := fmt.Sprintf(`() => window._sniffed_frames >= %d || window._sniff_started + %d <= performance.now()`,
		s.env.FPSLimit, s.env.FrameWallClock.Milliseconds())

	wctx, cancel := context.WithTimeout(ctx, s.env.FrameCeiling)
	defer cancel()
	err := s.raceCrash(wctx, func(ctx context.Context) error {
		t := time.NewTicker(framePoll)
		defer t.Stop()
		for {
			obj, err := s.page.Context(ctx).Eval(expr)
			if err == nil && obj.Value.Bool() {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
	})
	if errors.Is(err, ErrPageCrashed) {
		return err
	}

	sctx, scancel := context.WithTimeout(ctx, 5*time.Second)
	defer scancel()
	if _, serr := s.page.Context(sctx).Eval(`() => { window._emergency_shutoff = true; }`); serr != nil {
		s.logger.Debug("session: emergency shutoff", "error", serr)
	}
	return err
}

// collectCoverage races coverage collection against the profiler timeout
// and always stops the profiler afterwards.
func (s *Session) collectCoverage(ctx context.Context) ([]result.ScriptCoverage, []byte, error) {
	type taken struct {
		scripts []result.ScriptCoverage
		types   []byte
		err     error
	}
	tctx, cancel := context.WithTimeout(ctx, s.env.ProfilerTimeout)
	ch := make(chan taken, 1)
	go func() {
		sc, ty, err := s.proto.takeCoverage(tctx, s.env.TypeProfile)
		ch <- taken{sc, ty, err}
	}()

	var got taken
	select {
	case got = <-ch:
	case <-tctx.Done():
		got.err = ErrProfilerTimeout
		s.logger.Error("session: coverage timed out", "after", s.env.ProfilerTimeout)
	}
	cancel()

	stopCtx, stopCancel := context.WithTimeout(ctx, 10*time.Second)
	defer stopCancel()
	if err := s.proto.stopCoverage(stopCtx, s.env.TypeProfile); err != nil {
		s.logger.Debug("session: stop profiler", "error", err)
	}

	if got.err != nil && !errors.Is(got.err, ErrProfilerTimeout) {
		got.err = fmt.Errorf("session: %w", got.err)
	}
	return got.scripts, got.types, got.err
}
