package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/3jsLive/tasks/threeprof/result"
)

// metricsSampler polls Performance.getMetrics until stopped.
type metricsSampler struct {
	proto    pageProtocol
	interval time.Duration

	mu      sync.Mutex
	samples []map[string]float64
	start   int64

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func startMetrics(ctx context.Context, p pageProtocol, interval time.Duration) *metricsSampler {
	ctx, cancel := context.WithCancel(ctx)
	m := &metricsSampler{
		proto:    p,
		interval: interval,
		start:    time.Now().UnixMilli(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go m.run(ctx)
	return m
}

func (m *metricsSampler) run(ctx context.Context) {
	defer close(m.done)
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s, err := m.proto.metrics(ctx)
			if err != nil {
				continue
			}
			m.mu.Lock()
			m.samples = append(m.samples, s)
			m.mu.Unlock()
		}
	}
}

func (m *metricsSampler) stop() {
	m.once.Do(func() {
		m.cancel()
		<-m.done
	})
}

func (m *metricsSampler) snapshot() ([]map[string]float64, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]float64, len(m.samples))
	copy(out, m.samples)
	return out, m.start
}

// statsJS reads the sniffing window in one round trip.
const statsJS = `() => JSON.stringify( {
	duration: performance.now() - window._sniff_started,
	frames: window._sniffed_frames || 0,
	started: window._sniff_started || 0,
	sniff: window._sniff === undefined ? null : window._sniff
} )`

type sniffWindow struct {
	Duration float64         `json:"duration"`
	Frames   int             `json:"frames"`
	Started  float64         `json:"started"`
	Sniff    json.RawMessage `json:"sniff"`
}

func (s *Session) collectStats(ctx context.Context, pageStart int64) (*result.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.env.NavigationTimeout)
	defer cancel()
	obj, err := s.page.Context(ctx).Eval(statsJS)
	if err != nil {
		return nil, fmt.Errorf("session: read stats: %w", err)
	}
	var w sniffWindow
	if err := json.Unmarshal([]byte(obj.Value.Str()), &w); err != nil {
		return nil, fmt.Errorf("session: decode stats: %w", err)
	}
	sniff, err := result.Canonical(w.Sniff)
	if err != nil {
		return nil, err
	}

	samples, metricsStart := s.metrics.snapshot()
	st := &result.Stats{
		File:         s.url,
		Results:      sniff,
		PageStart:    pageStart,
		Now:          time.Now().UnixMilli(),
		Sniff:        result.SniffStats{Duration: w.Duration, Frames: w.Frames, Started: w.Started},
		Metrics:      samples,
		MetricsStart: metricsStart,
	}
	s.logger.Info("session: stats",
		"url", s.url,
		"frames", w.Frames,
		"started_s", w.Started/1000,
		"duration_ms", w.Duration)
	return st, nil
}
