package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// HandshakeState tracks the debugger-pause handshake.
type HandshakeState int

const (
	AwaitingProfilerStart HandshakeState = iota
	AwaitingRendererBind
	Armed
)

func (s HandshakeState) String() string {
	switch s {
	case AwaitingProfilerStart:
		return "awaiting-profiler-start"
	case AwaitingRendererBind:
		return "awaiting-renderer-bind"
	case Armed:
		return "armed"
	}
	return fmt.Sprintf("HandshakeState(%d)", int(s))
}

// CallFrame is the part of a paused call frame the handshake looks at.
type CallFrame struct {
	CallFrameID  string
	FunctionName string
	URL          string
	ScriptID     string
}

// Protocol is the debugger surface the handshake drives.
type Protocol interface {
	StartProfiler(ctx context.Context, typeProfile bool) error
	ContinueToLocation(ctx context.Context, scriptID string, line int) error
	EvaluateOnCallFrame(ctx context.Context, callFrameID, expression string) error
	Resume(ctx context.Context) error
}

const (
	rendererFunction = "WebGLRenderer"
	bindRenderer     = "window.RENDERERInstance = this;"
)

// HandshakeConfig configures a Handshake.
type HandshakeConfig struct {
	// MainScriptPath is matched as a suffix of the paused frame URL.
	MainScriptPath string
	// BundleURL is the full URL of the bundle.
	BundleURL string
	// RendererLine is the 0-based constructor line, -1 if unknown.
	RendererLine int
	TypeProfile  bool
	Logger       *slog.Logger
}

// Handshake brackets the profiling window. The first pause inside the
// bundle starts the profiler and runs to the renderer constructor; the
// second pause binds the renderer instance; every later pause resumes.
type Handshake struct {
	proto Protocol
	cfg   HandshakeConfig

	mu    sync.Mutex
	state HandshakeState
	armed chan struct{}
}

// NewHandshake returns a handshake in AwaitingProfilerStart.
func NewHandshake(p Protocol, cfg HandshakeConfig) *Handshake {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handshake{proto: p, cfg: cfg, armed: make(chan struct{})}
}

// State returns the current state.
func (h *Handshake) State() HandshakeState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Armed is closed once the renderer is bound.
func (h *Handshake) Armed() <-chan struct{} { return h.armed }

// Paused handles one Debugger.paused event.
func (h *Handshake) Paused(ctx context.Context, frames []CallFrame) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case AwaitingProfilerStart:
		f, ok := findFrame(frames, func(f CallFrame) bool {
			return h.cfg.MainScriptPath != "" && strings.HasSuffix(f.URL, h.cfg.MainScriptPath)
		})
		if !ok {
			h.cfg.Logger.Debug("session: pause outside bundle", "frames", len(frames))
			return h.proto.Resume(ctx)
		}
		if err := h.proto.StartProfiler(ctx, h.cfg.TypeProfile); err != nil {
			return fmt.Errorf("session: start profiler: %w", err)
		}
		h.cfg.Logger.Debug("session: profiler started", "script_id", f.ScriptID)

		if h.cfg.RendererLine < 0 {
			h.cfg.Logger.Warn("session: renderer constructor not found, skipping bind")
			h.setLocked(Armed)
			return h.proto.Resume(ctx)
		}
		h.setLocked(AwaitingRendererBind)
		if err := h.proto.ContinueToLocation(ctx, f.ScriptID, h.cfg.RendererLine+1); err != nil {
			return fmt.Errorf("session: continue to renderer: %w", err)
		}
		return nil

	case AwaitingRendererBind:
		f, ok := findFrame(frames, func(f CallFrame) bool {
			return f.FunctionName == rendererFunction || (h.cfg.BundleURL != "" && f.URL == h.cfg.BundleURL)
		})
		if !ok {
			h.cfg.Logger.Debug("session: pause before renderer", "frames", len(frames))
			return h.proto.Resume(ctx)
		}
		if err := h.proto.EvaluateOnCallFrame(ctx, f.CallFrameID, bindRenderer); err != nil {
			h.cfg.Logger.Warn("session: bind renderer", "error", err)
		}
		h.setLocked(Armed)
		return h.proto.Resume(ctx)

	default:
		return h.proto.Resume(ctx)
	}
}

func (h *Handshake) setLocked(s HandshakeState) {
	h.cfg.Logger.Debug("session: handshake", "from", h.state.String(), "to", s.String())
	h.state = s
	if s == Armed {
		close(h.armed)
	}
}

func findFrame(frames []CallFrame, pred func(CallFrame) bool) (CallFrame, bool) {
	for _, f := range frames {
		if pred(f) {
			return f, true
		}
	}
	return CallFrame{}, false
}
