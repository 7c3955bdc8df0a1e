package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type call struct {
	method string
	arg    string
	line   int
}

type fakeProtocol struct {
	calls    []call
	startErr error
}

func (f *fakeProtocol) StartProfiler(_ context.Context, typeProfile bool) error {
	arg := "coverage"
	if typeProfile {
		arg = "coverage+types"
	}
	f.calls = append(f.calls, call{method: "start", arg: arg})
	return f.startErr
}

func (f *fakeProtocol) ContinueToLocation(_ context.Context, scriptID string, line int) error {
	f.calls = append(f.calls, call{method: "continue", arg: scriptID, line: line})
	return nil
}

func (f *fakeProtocol) EvaluateOnCallFrame(_ context.Context, id, expr string) error {
	f.calls = append(f.calls, call{method: "eval", arg: id + "|" + expr})
	return nil
}

func (f *fakeProtocol) Resume(context.Context) error {
	f.calls = append(f.calls, call{method: "resume"})
	return nil
}

func testHandshake(p Protocol, line int) *Handshake {
	return NewHandshake(p, HandshakeConfig{
		MainScriptPath: "build/three.module.js",
		BundleURL:      "http://h/build/three.module.js",
		RendererLine:   line,
		TypeProfile:    true,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestHandshake(t *testing.T) {
	p := &fakeProtocol{}
	h := testHandshake(p, 41)
	ctx := context.Background()

	bundleFrame := []CallFrame{{CallFrameID: "f0", URL: "http://h/build/three.module.js", ScriptID: "12"}}
	if err := h.Paused(ctx, bundleFrame); err != nil {
		t.Fatal(err)
	}
	if h.State() != AwaitingRendererBind {
		t.Fatalf("state: got %s, want awaiting-renderer-bind", h.State())
	}

	rendererFrames := []CallFrame{
		{CallFrameID: "r1", FunctionName: "WebGLRenderer", URL: "http://h/build/three.module.js"},
		{CallFrameID: "r2", FunctionName: "init", URL: "http://h/examples/webgl_a.html"},
	}
	if err := h.Paused(ctx, rendererFrames); err != nil {
		t.Fatal(err)
	}
	if h.State() != Armed {
		t.Fatalf("state: got %s, want armed", h.State())
	}
	select {
	case <-h.Armed():
	default:
		t.Fatal("Armed channel not closed")
	}

	if err := h.Paused(ctx, rendererFrames); err != nil {
		t.Fatal(err)
	}

	want := []call{
		{method: "start", arg: "coverage+types"},
		{method: "continue", arg: "12", line: 42},
		{method: "eval", arg: "r1|window.RENDERERInstance = this;"},
		{method: "resume"},
		{method: "resume"},
	}
	if len(p.calls) != len(want) {
		t.Fatalf("calls: got %+v, want %+v", p.calls, want)
	}
	for i := range want {
		if p.calls[i] != want[i] {
			t.Errorf("call %d: got %+v, want %+v", i, p.calls[i], want[i])
		}
	}
}

func TestHandshake_PauseOutsideBundle(t *testing.T) {
	p := &fakeProtocol{}
	h := testHandshake(p, 10)
	if err := h.Paused(context.Background(), []CallFrame{{URL: "http://h/examples/js/libs/dat.gui.js"}}); err != nil {
		t.Fatal(err)
	}
	if h.State() != AwaitingProfilerStart {
		t.Fatalf("state: got %s", h.State())
	}
	if len(p.calls) != 1 || p.calls[0].method != "resume" {
		t.Fatalf("calls: got %+v, want a single resume", p.calls)
	}
}

func TestHandshake_NoRendererLine(t *testing.T) {
	p := &fakeProtocol{}
	h := testHandshake(p, -1)
	if err := h.Paused(context.Background(), []CallFrame{{URL: "http://h/build/three.module.js", ScriptID: "3"}}); err != nil {
		t.Fatal(err)
	}
	if h.State() != Armed {
		t.Fatalf("state: got %s, want armed", h.State())
	}
	if got := p.calls[len(p.calls)-1].method; got != "resume" {
		t.Fatalf("last call: got %s, want resume", got)
	}
}

func TestHandshake_StartFailure(t *testing.T) {
	p := &fakeProtocol{startErr: errors.New("boom")}
	h := testHandshake(p, 10)
	err := h.Paused(context.Background(), []CallFrame{{URL: "http://h/build/three.module.js"}})
	if err == nil {
		t.Fatal("want error")
	}
	if h.State() != AwaitingProfilerStart {
		t.Fatalf("state: got %s", h.State())
	}
}
