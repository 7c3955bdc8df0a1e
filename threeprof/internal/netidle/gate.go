// Package netidle decides when a page has gone network-quiet and rewrites
// the two requests a profiling session cares about: the library bundle and
// the example page.
package netidle

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"
)

// Options configures a Gate.
type Options struct {
	// MaxInflight is the number of open requests still considered idle.
	MaxInflight int
	// Quiet is how long the counter must stay at or under MaxInflight.
	Quiet time.Duration

	// MainScript is matched as a URL suffix; matching requests are answered
	// with Bundle.
	MainScript string
	Bundle     []byte

	// ExamplePattern selects example pages; the matched part of the URL is
	// read from RepoRoot and answered with PageScript injected into <head>.
	ExamplePattern *regexp.Regexp
	RepoRoot       string
	PageScript     string

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Quiet <= 0 {
		o.Quiet = 500 * time.Millisecond
	}
	if o.MaxInflight < 0 {
		o.MaxInflight = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Gate counts in-flight requests and resolves once the load event fired
// and a quiet period elapsed with the counter at or under MaxInflight.
// It is one-shot.
type Gate struct {
	opts Options

	mu          sync.Mutex
	inflight    int
	loaded      bool
	quiet       bool
	intercepted bool
	timer       *time.Timer
	gen         uint64
	requests    []string
	done        chan struct{}
	closed      bool
}

// New creates a gate. The quiet timer starts immediately.
func New(opts Options) *Gate {
	opts.defaults()
	g := &Gate{opts: opts, done: make(chan struct{})}
	g.mu.Lock()
	g.armLocked()
	g.mu.Unlock()
	return g
}

// Started records a request leaving the page.
func (g *Gate) Started(url string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, url)
	g.inflight++
	if g.inflight > g.opts.MaxInflight {
		g.stopLocked()
	}
}

// Finished records a request completing or failing.
func (g *Gate) Finished() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight == 0 {
		return
	}
	g.inflight--
	if g.inflight == g.opts.MaxInflight || !g.loaded {
		g.armLocked()
	}
}

// Loaded records the page load event.
func (g *Gate) Loaded() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loaded = true
	g.checkLocked()
}

// MarkIntercepted records that the library bundle was substituted.
func (g *Gate) MarkIntercepted() {
	g.mu.Lock()
	g.intercepted = true
	g.mu.Unlock()
}

// Intercepted reports whether the library bundle was substituted.
func (g *Gate) Intercepted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intercepted
}

// Inflight returns the current request count.
func (g *Gate) Inflight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight
}

// Requests returns every request URL seen, in order.
func (g *Gate) Requests() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.requests...)
}

// Done is closed when the gate resolves.
func (g *Gate) Done() <-chan struct{} { return g.done }

// Wait blocks until the gate resolves or ctx ends.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		g.stopLocked()
		g.mu.Unlock()
		return ctx.Err()
	}
}

func (g *Gate) armLocked() {
	if g.closed {
		return
	}
	g.stopLocked()
	g.gen++
	gen := g.gen
	g.timer = time.AfterFunc(g.opts.Quiet, func() { g.fire(gen) })
}

func (g *Gate) stopLocked() {
	g.quiet = false
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func (g *Gate) fire(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen || g.closed {
		return
	}
	g.timer = nil
	if g.inflight > g.opts.MaxInflight {
		return
	}
	g.quiet = true
	g.checkLocked()
}

func (g *Gate) checkLocked() {
	if g.closed || !g.loaded || !g.quiet || g.inflight > g.opts.MaxInflight {
		return
	}
	g.closed = true
	g.opts.Logger.Debug("netidle: idle",
		"quiet", g.opts.Quiet,
		"requests", len(g.requests),
		"intercepted", g.intercepted)
	close(g.done)
}
