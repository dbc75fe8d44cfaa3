// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package config models the test-suite document: one run environment plus an
// ordered list of tests. A suite is immutable once loaded; the runner may
// execute it any number of times.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/wasmkit/filtertest/hostabi"
)

// LogLevel is the document's six-level log enum plus an explicit unset
// state. Unset defaults to info for tests and critical for benchmarks.
type LogLevel int

const (
	LogLevelUnset LogLevel = iota
	LogLevelTrace
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelCritical
)

var levelNames = map[string]LogLevel{
	"trace":    LogLevelTrace,
	"debug":    LogLevelDebug,
	"info":     LogLevelInfo,
	"warn":     LogLevelWarn,
	"error":    LogLevelError,
	"critical": LogLevelCritical,
}

// ParseLogLevel converts a document or flag string into a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	if s == "" {
		return LogLevelUnset, nil
	}
	if l, ok := levelNames[s]; ok {
		return l, nil
	}
	return LogLevelUnset, fmt.Errorf("unknown log level %q", s)
}

func (l LogLevel) String() string {
	for name, level := range levelNames {
		if level == l {
			return name
		}
	}
	return "unset"
}

// Effective resolves the level for a run: unset means info, and benchmarks
// always force critical so logging cost stays out of the measurements.
func (l LogLevel) Effective(benchmark bool) hostabi.LogLevel {
	if benchmark {
		return hostabi.LogLevelCritical
	}
	if l == LogLevelUnset {
		return hostabi.LogLevelInfo
	}
	return hostabi.LogLevel(l - 1)
}

// UnmarshalYAML accepts the level as a bare string.
func (l *LogLevel) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseLogLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Env is the run environment shared by every test in a suite.
type Env struct {
	// WasmPath locates the plugin binary. For the in-process engine it
	// names a registered guest instead.
	WasmPath string `yaml:"wasm_path"`
	// ConfigPath optionally locates the plugin configuration bytes.
	ConfigPath string `yaml:"config_path"`
	// MinLogLevel filters plugin logs before capture.
	MinLogLevel LogLevel `yaml:"min_log_level"`
	// LogFile optionally appends every captured log line to a file.
	LogFile string `yaml:"log_file"`
	// ClockTimeNanos freezes the clock reported to plugins. Zero keeps the
	// default (epoch + 1ms; some runtimes require non-zero).
	ClockTimeNanos uint64 `yaml:"clock_time_nanos"`
	// NumAdditionalStreams sizes the benchmark's live-stream pool.
	NumAdditionalStreams int `yaml:"num_additional_streams"`
	// StreamAdvanceRate is how many pooled streams advance one phase per
	// benchmark iteration. Zero means one when a pool is configured.
	NumStreamAdvances int `yaml:"stream_advance_rate"`
}

// Header is one key/value pair in an input or expectation.
type Header struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// Input is one phase's payload: exactly one of an explicit header list, raw
// serialized content, or a file holding equivalent content.
type Input struct {
	Headers []Header `yaml:"header"`
	Content *string  `yaml:"content"`
	File    string   `yaml:"file"`
}

func (in *Input) sources() int {
	n := 0
	if len(in.Headers) > 0 {
		n++
	}
	if in.Content != nil {
		n++
	}
	if in.File != "" {
		n++
	}
	return n
}

// StringMatcherSpec describes one declarative string assertion: exactly one
// of exact bytes, an RE2 full-match regex, or file-sourced exact content.
// Invert expects absence of any match.
type StringMatcherSpec struct {
	Exact  *string `yaml:"exact"`
	Regex  *string `yaml:"regex"`
	File   *string `yaml:"file"`
	Invert bool    `yaml:"invert"`
}

// Immediate asserts on a captured immediate response. Each field is checked
// only when present.
type Immediate struct {
	HTTPStatus *uint32 `yaml:"http_status"`
	GRPCStatus *int32  `yaml:"grpc_status"`
	Details    *string `yaml:"details"`
}

// Expectation is the assertion set applied after a phase.
type Expectation struct {
	HasHeaders []Header            `yaml:"has_header"`
	NoHeaders  []Header            `yaml:"no_header"` // value ignored
	Headers    []StringMatcherSpec `yaml:"headers"`   // on "key: value" lines
	Body       []StringMatcherSpec `yaml:"body"`
	Logs       []StringMatcherSpec `yaml:"log"`
	Immediate  *Immediate          `yaml:"immediate"`
}

// Invocation pairs an input with the expectation on its result.
type Invocation struct {
	Input  Input       `yaml:"input"`
	Result Expectation `yaml:"result"`
}

// Test describes one logical HTTP exchange driven through the plugin.
type Test struct {
	Name      string `yaml:"name"`
	Benchmark bool   `yaml:"benchmark"`

	// Chunking plan, at most one of the two.
	NumChunks int `yaml:"num_chunks"`
	ChunkSize int `yaml:"chunk_size"`

	PluginInit    Expectation `yaml:"plugin_init"`
	StreamInit    Expectation `yaml:"stream_init"`
	StreamDestroy Expectation `yaml:"stream_destroy"`

	RequestHeaders  *Invocation  `yaml:"request_headers"`
	RequestBody     []Invocation `yaml:"request_body"`
	ResponseHeaders *Invocation  `yaml:"response_headers"`
	ResponseBody    []Invocation `yaml:"response_body"`
}

// HasChunking reports whether a chunking plan is set.
func (t *Test) HasChunking() bool { return t.NumChunks > 0 || t.ChunkSize > 0 }

// TestSuite is one loaded document.
type TestSuite struct {
	Env   Env    `yaml:"env"`
	Tests []Test `yaml:"test"`
}

// Validate reports configuration errors before any execution starts.
func Validate(s *TestSuite) error {
	if s.Env.WasmPath == "" {
		return fmt.Errorf("env: wasm_path is required")
	}
	if s.Env.NumAdditionalStreams < 0 || s.Env.NumStreamAdvances < 0 {
		return fmt.Errorf("env: stream simulation parameters must be non-negative")
	}
	seen := map[string]bool{}
	for i := range s.Tests {
		t := &s.Tests[i]
		if t.Name == "" {
			return fmt.Errorf("test #%d: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("test %q: duplicate name", t.Name)
		}
		seen[t.Name] = true
		if err := validateTest(t); err != nil {
			return fmt.Errorf("test %q: %w", t.Name, err)
		}
	}
	return nil
}

func validateTest(t *Test) error {
	if t.NumChunks > 0 && t.ChunkSize > 0 {
		return fmt.Errorf("num_chunks and chunk_size are mutually exclusive")
	}
	if t.NumChunks < 0 || t.ChunkSize < 0 {
		return fmt.Errorf("chunking plan values must not be negative")
	}
	if t.HasChunking() {
		if len(t.RequestBody) > 1 || len(t.ResponseBody) > 1 {
			return fmt.Errorf("a chunking plan allows at most one body invocation per direction")
		}
	}
	for _, inv := range []struct {
		name string
		inv  *Invocation
	}{
		{"request_headers", t.RequestHeaders},
		{"response_headers", t.ResponseHeaders},
	} {
		if inv.inv == nil {
			continue
		}
		if err := validateInvocation(inv.inv); err != nil {
			return fmt.Errorf("%s: %w", inv.name, err)
		}
	}
	for i := range t.RequestBody {
		if err := validateInvocation(&t.RequestBody[i]); err != nil {
			return fmt.Errorf("request_body #%d: %w", i, err)
		}
	}
	for i := range t.ResponseBody {
		if err := validateInvocation(&t.ResponseBody[i]); err != nil {
			return fmt.Errorf("response_body #%d: %w", i, err)
		}
	}
	for _, e := range []Expectation{t.PluginInit, t.StreamInit, t.StreamDestroy} {
		if err := validateExpectation(&e); err != nil {
			return err
		}
	}
	return nil
}

func validateInvocation(inv *Invocation) error {
	if inv.Input.sources() != 1 {
		return fmt.Errorf("input needs exactly one of header list, content, or file")
	}
	return validateExpectation(&inv.Result)
}

func validateExpectation(e *Expectation) error {
	for _, group := range [][]StringMatcherSpec{e.Headers, e.Body, e.Logs} {
		for _, m := range group {
			if err := validateMatcher(&m); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateMatcher(m *StringMatcherSpec) error {
	n := 0
	if m.Exact != nil {
		n++
	}
	if m.Regex != nil {
		n++
	}
	if m.File != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("matcher needs exactly one of exact, regex, or file")
	}
	return nil
}
