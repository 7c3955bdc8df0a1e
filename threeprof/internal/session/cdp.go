package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/3jsLive/tasks/threeprof/result"
)

// pageProtocol drives the handshake through the DevTools protocol of one page.
type pageProtocol struct {
	page *rod.Page
}

func (p pageProtocol) StartProfiler(ctx context.Context, typeProfile bool) error {
	pg := p.page.Context(ctx)
	if err := (proto.ProfilerEnable{}).Call(pg); err != nil {
		return err
	}
	if typeProfile {
		if _, err := p.raw(ctx, "Profiler.startTypeProfile"); err != nil {
			return err
		}
	}
	_, err := proto.ProfilerStartPreciseCoverage{CallCount: true}.Call(pg)
	return err
}

func (p pageProtocol) ContinueToLocation(ctx context.Context, scriptID string, line int) error {
	return proto.DebuggerContinueToLocation{
		Location: &proto.DebuggerLocation{
			ScriptID:   proto.RuntimeScriptID(scriptID),
			LineNumber: line,
		},
	}.Call(p.page.Context(ctx))
}

func (p pageProtocol) EvaluateOnCallFrame(ctx context.Context, callFrameID, expression string) error {
	res, err := proto.DebuggerEvaluateOnCallFrame{
		CallFrameID: proto.DebuggerCallFrameID(callFrameID),
		Expression:  expression,
	}.Call(p.page.Context(ctx))
	if err != nil {
		return err
	}
	if res.ExceptionDetails != nil {
		return fmt.Errorf("evaluate on call frame: %s", res.ExceptionDetails.Text)
	}
	return nil
}

func (p pageProtocol) Resume(ctx context.Context) error {
	return proto.DebuggerResume{}.Call(p.page.Context(ctx))
}

// raw issues a method the generated protocol bindings do not carry.
func (p pageProtocol) raw(ctx context.Context, method string) ([]byte, error) {
	return p.page.Call(ctx, string(p.page.SessionID), method, nil)
}

// takeCoverage collects precise coverage and, when enabled, the type profile.
func (p pageProtocol) takeCoverage(ctx context.Context, typeProfile bool) ([]result.ScriptCoverage, json.RawMessage, error) {
	res, err := proto.ProfilerTakePreciseCoverage{}.Call(p.page.Context(ctx))
	if err != nil {
		return nil, nil, fmt.Errorf("take coverage: %w", err)
	}
	scripts := convertCoverage(res.Result)

	if !typeProfile {
		return scripts, nil, nil
	}
	raw, err := p.raw(ctx, "Profiler.takeTypeProfile")
	if err != nil {
		return scripts, nil, fmt.Errorf("take type profile: %w", err)
	}
	var body struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return scripts, nil, fmt.Errorf("decode type profile: %w", err)
	}
	types, err := result.Canonical(body.Result)
	if err != nil {
		return scripts, nil, err
	}
	return scripts, types, nil
}

func (p pageProtocol) stopCoverage(ctx context.Context, typeProfile bool) error {
	if err := (proto.ProfilerStopPreciseCoverage{}).Call(p.page.Context(ctx)); err != nil {
		return err
	}
	if typeProfile {
		if _, err := p.raw(ctx, "Profiler.stopTypeProfile"); err != nil {
			return err
		}
	}
	return nil
}

func (p pageProtocol) metrics(ctx context.Context) (map[string]float64, error) {
	res, err := proto.PerformanceGetMetrics{}.Call(p.page.Context(ctx))
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(res.Metrics))
	for _, m := range res.Metrics {
		out[m.Name] = m.Value
	}
	return out, nil
}

func convertCoverage(in []*proto.ProfilerScriptCoverage) []result.ScriptCoverage {
	out := make([]result.ScriptCoverage, 0, len(in))
	for _, s := range in {
		sc := result.ScriptCoverage{
			ScriptID:  string(s.ScriptID),
			URL:       s.URL,
			Functions: make([]result.FunctionCoverage, 0, len(s.Functions)),
		}
		for _, f := range s.Functions {
			fc := result.FunctionCoverage{
				FunctionName:    f.FunctionName,
				IsBlockCoverage: f.IsBlockCoverage,
				Ranges:          make([]result.CoverageRange, 0, len(f.Ranges)),
			}
			for _, r := range f.Ranges {
				fc.Ranges = append(fc.Ranges, result.CoverageRange{
					StartOffset: r.StartOffset,
					EndOffset:   r.EndOffset,
					Count:       r.Count,
				})
			}
			sc.Functions = append(sc.Functions, fc)
		}
		out = append(out, sc)
	}
	return out
}

func callFrames(in []*proto.DebuggerCallFrame) []CallFrame {
	out := make([]CallFrame, 0, len(in))
	for _, f := range in {
		cf := CallFrame{
			CallFrameID:  string(f.CallFrameID),
			FunctionName: f.FunctionName,
			URL:          f.URL,
		}
		if f.Location != nil {
			cf.ScriptID = string(f.Location.ScriptID)
		}
		out = append(out, cf)
	}
	return out
}
