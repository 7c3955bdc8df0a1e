// Package result defines the wire types exchanged between the profiling
// campaign, its sinks and the coverage resolver. Every type serialises to
// deterministic JSON: struct fields in declaration order, map keys sorted.
package result

import (
	"encoding/json"
	"errors"
)

// Status is the outcome of one profiling session.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// WorkItem is one URL of a campaign worklist.
type WorkItem struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
}

// Location is a position in a source file. Line is 1-based, Column 0-based.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Less orders locations by line then column.
func (l Location) Less(o Location) bool {
	if l.Line != o.Line {
		return l.Line < o.Line
	}
	return l.Column < o.Column
}

// Span is a start/end pair of locations.
type Span struct {
	Start Location `json:"start"`
	End   Location `json:"end"`
}

// ShaderEntry is one ShaderChunk import.
type ShaderEntry struct {
	Name   string   `json:"name"`
	Source string   `json:"source"`
	Start  Location `json:"start"`
	End    Location `json:"end"`
}

// UniformEntry is one top-level UniformsLib property.
type UniformEntry struct {
	Name  string   `json:"name"`
	Start Location `json:"start"`
	End   Location `json:"end"`
}

// ShaderRef points a ShaderLib field at a chunk, e.g. ShaderChunk.meshbasic_vert.
type ShaderRef struct {
	Group  string       `json:"group,omitempty"`
	Name   string       `json:"name,omitempty"`
	Linked *ShaderEntry `json:"linked,omitempty"`
}

// ShaderDescriptor is one ShaderLib entry with resolved references.
type ShaderDescriptor struct {
	Name           string         `json:"name"`
	VertexShader   ShaderRef      `json:"vertexShader"`
	FragmentShader ShaderRef      `json:"fragmentShader"`
	UniformsRefs   []UniformEntry `json:"uniformsRefs"`
	Start          Location       `json:"start"`
	End            Location       `json:"end"`
}

// CoverageRange is one block of a function as reported by
// Profiler.takePreciseCoverage. Offsets are in UTF-16 code units.
type CoverageRange struct {
	StartOffset int `json:"startOffset"`
	EndOffset   int `json:"endOffset"`
	Count       int `json:"count"`
}

// FunctionCoverage groups the ranges of one function.
type FunctionCoverage struct {
	FunctionName    string          `json:"functionName"`
	Ranges          []CoverageRange `json:"ranges"`
	IsBlockCoverage bool            `json:"isBlockCoverage"`
}

// ScriptCoverage is the coverage of one script.
type ScriptCoverage struct {
	ScriptID  string             `json:"scriptId"`
	URL       string             `json:"url"`
	Functions []FunctionCoverage `json:"functions"`
}

// ConsoleMessage carries either a console call (type, text, location, args)
// or an uncaught page error (name, text).
type ConsoleMessage struct {
	Type     string `json:"type,omitempty"`
	Name     string `json:"name,omitempty"`
	Text     string `json:"text"`
	Location string `json:"location,omitempty"`
	Args     string `json:"args,omitempty"`
}

// ConsoleEvent is one entry of a page's console log.
type ConsoleEvent struct {
	Type string         `json:"type"` // console | pageerror
	Msg  ConsoleMessage `json:"msg"`
}

// SniffStats summarises the frame-sniffing window.
type SniffStats struct {
	Duration float64 `json:"duration"`
	Frames   int     `json:"frames"`
	Started  float64 `json:"started"`
}

// Stats is the performance record of one session.
type Stats struct {
	File         string               `json:"file"`
	Results      json.RawMessage      `json:"results"`
	PageStart    int64                `json:"pageStart"`
	Now          int64                `json:"now"`
	Sniff        SniffStats           `json:"sniff"`
	Metrics      []map[string]float64 `json:"metrics"`
	MetricsStart int64                `json:"metricsStart"`
}

// Dependencies lists what a page pulled in while it was profiled.
type Dependencies struct {
	External     []string                    `json:"external"`
	Local        []string                    `json:"local"`
	ShaderChunks []ShaderEntry               `json:"shaderChunks"`
	ShaderLibs   map[string]ShaderDescriptor `json:"shaderLibs"`
	Uniforms     []UniformEntry              `json:"uniforms"`
}

// ProfilingResult is the artifact written per URL.
type ProfilingResult struct {
	URL          string           `json:"url"`
	Status       Status           `json:"status"`
	Errors       []string         `json:"errors"`
	Profiler     []ScriptCoverage `json:"profiler"`
	TypeProfile  json.RawMessage  `json:"typeProfile,omitempty"`
	Dependencies *Dependencies    `json:"dependencies"`
	ConsoleLog   []ConsoleEvent   `json:"consoleLog"`
	Stats        *Stats           `json:"stats"`
}

// New returns an empty successful result for url.
func New(url string) *ProfilingResult {
	return &ProfilingResult{
		URL:        url,
		Status:     StatusSuccess,
		Errors:     []string{},
		Profiler:   []ScriptCoverage{},
		ConsoleLog: []ConsoleEvent{},
	}
}

// Failure returns a degraded result carrying errs.
func Failure(url string, errs ...error) *ProfilingResult {
	r := New(url)
	for _, err := range errs {
		r.Fail(err)
	}
	if len(errs) == 0 {
		r.Status = StatusFailure
	}
	return r
}

// Fail records err and marks the result as failed.
func (r *ProfilingResult) Fail(err error) {
	if err == nil {
		return
	}
	r.Status = StatusFailure
	r.Errors = append(r.Errors, err.Error())
}

// Err joins the recorded errors, nil on success.
func (r *ProfilingResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = errors.New(e)
	}
	return errors.Join(errs...)
}

// DependencyRecord is one resolved, executed function location.
type DependencyRecord struct {
	Location Span   `json:"location"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
}

// Key returns the identity used for deduplication. Hit count is excluded.
func (d DependencyRecord) Key() RecordKey {
	return RecordKey{
		StartLine: d.Location.Start.Line,
		StartCol:  d.Location.Start.Column,
		EndLine:   d.Location.End.Line,
		EndCol:    d.Location.End.Column,
		Code:      d.Code,
		Name:      d.Name,
	}
}

// RecordKey identifies a DependencyRecord.
type RecordKey struct {
	StartLine, StartCol, EndLine, EndCol int
	Code, Name                           string
}

// DependencyTable is the resolver output.
type DependencyTable struct {
	Uniq         []string                      `json:"uniq"`
	Lines        map[string][]DependencyRecord `json:"lines"`
	Uniforms     []UniformEntry                `json:"uniforms"`
	ShaderChunks []ShaderEntry                 `json:"shaderChunks"`
	External     []string                      `json:"external"`
}

// NewDependencyTable returns a table with every collection non-nil.
func NewDependencyTable() *DependencyTable {
	return &DependencyTable{
		Uniq:         []string{},
		Lines:        map[string][]DependencyRecord{},
		Uniforms:     []UniformEntry{},
		ShaderChunks: []ShaderEntry{},
		External:     []string{},
	}
}
