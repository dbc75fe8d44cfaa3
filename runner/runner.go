// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner executes a loaded test suite: it drives each test's HTTP
// exchange through the plugin under every selected engine, applies the
// declarative expectations, and measures the tests marked as benchmarks.
package runner

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wasmkit/filtertest/config"
	"github.com/wasmkit/filtertest/engine"
	"github.com/wasmkit/filtertest/framework"
)

// Options selects what Run executes and where it reports.
type Options struct {
	// Engines to run the suite under. Empty means every registered engine.
	Engines []engine.Engine
	// RunTests and RunBenchmarks gate the two modes independently.
	RunTests      bool
	RunBenchmarks bool
	// Logger receives per-test verdicts and benchmark results.
	Logger zerolog.Logger
	// BaseDir anchors relative paths in the suite document. Empty means the
	// process working directory.
	BaseDir string
}

// session is one engine's view of the suite: the plugin bytes, the plugin
// configuration and the shared log sink.
type session struct {
	env          config.Env
	eng          engine.Engine
	code         []byte
	pluginConfig []byte
	baseDir      string
	sink         io.Writer
	logger       zerolog.Logger
}

func newSession(suite *config.TestSuite, eng engine.Engine, sink io.Writer, logger zerolog.Logger, baseDir string) (*session, error) {
	s := &session{env: suite.Env, eng: eng, baseDir: baseDir, sink: sink, logger: logger}
	code, err := os.ReadFile(s.resolve(suite.Env.WasmPath))
	switch {
	case err == nil:
		s.code = code
	case errors.Is(err, fs.ErrNotExist):
		// Not a file on disk: pass the path through verbatim so engines
		// that resolve plugins by name (the in-process one) can claim it.
		s.code = []byte(suite.Env.WasmPath)
	default:
		return nil, fmt.Errorf("reading plugin: %w", err)
	}
	if suite.Env.ConfigPath != "" {
		cfg, err := os.ReadFile(s.resolve(suite.Env.ConfigPath))
		if err != nil {
			return nil, fmt.Errorf("reading plugin configuration: %w", err)
		}
		s.pluginConfig = cfg
	}
	return s, nil
}

func (s *session) resolve(path string) string {
	if s.baseDir == "" || path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.baseDir, path)
}

func (s *session) options(benchmark bool) framework.Options {
	o := framework.Options{
		MinLogLevel: s.env.MinLogLevel.Effective(benchmark),
		LogSink:     s.sink,
		Logger:      s.logger,
	}
	if s.env.ClockTimeNanos > 0 {
		o.ClockTime = time.Unix(0, int64(s.env.ClockTimeNanos))
	}
	return o
}

// Run executes the suite and returns an error if any test failed or any
// benchmark could not complete.
func Run(suite *config.TestSuite, opts Options) error {
	logger := opts.Logger

	var sink io.Writer
	if suite.Env.LogFile != "" {
		path := suite.Env.LogFile
		if opts.BaseDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(opts.BaseDir, path)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		sink = f
	}

	if suite.Env.MinLogLevel == config.LogLevelTrace {
		logger.Trace().
			Str("wasm_path", suite.Env.WasmPath).
			Str("config_path", suite.Env.ConfigPath).
			Str("min_log_level", suite.Env.MinLogLevel.String()).
			Int("num_additional_streams", suite.Env.NumAdditionalStreams).
			Int("stream_advance_rate", suite.Env.NumStreamAdvances).
			Int("tests", len(suite.Tests)).
			Msg("resolved suite environment")
	}

	engines := opts.Engines
	if len(engines) == 0 {
		engines = engine.Engines()
	}
	if len(engines) == 0 {
		return fmt.Errorf("no engines registered")
	}

	failed := 0
	for _, eng := range engines {
		s, err := newSession(suite, eng, sink, logger, opts.BaseDir)
		if err != nil {
			return err
		}
		if opts.RunTests {
			for i := range suite.Tests {
				t := &suite.Tests[i]
				fails := s.runTest(t)
				if len(fails) == 0 {
					logger.Info().Str("engine", eng.Name()).Str("test", t.Name).Msg("PASS")
					continue
				}
				failed++
				for _, f := range fails {
					logger.Error().Str("engine", eng.Name()).Str("test", t.Name).
						Str("phase", f.phase).Msg(f.msg)
				}
				logger.Error().Str("engine", eng.Name()).Str("test", t.Name).
					Int("failures", len(fails)).Msg("FAIL")
			}
		}
		if opts.RunBenchmarks {
			if err := s.runBenchmarks(suite.Tests); err != nil {
				return err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d test(s) failed", failed)
	}
	return nil
}

func (s *session) runBenchmarks(tests []config.Test) error {
	report := func(name string, r testing.BenchmarkResult, err error) error {
		if err != nil {
			return fmt.Errorf("benchmark %s: %w", name, err)
		}
		s.logger.Info().Str("engine", s.eng.Name()).Str("benchmark", name).
			Str("timing", r.String()).Str("mem", r.MemString()).Msg("BENCH")
		return nil
	}

	r, err := s.benchPluginLifecycle()
	if err := report("plugin_lifecycle", r, err); err != nil {
		return err
	}
	r, err = s.benchStreamLifecycle()
	if err := report("stream_lifecycle", r, err); err != nil {
		return err
	}
	for i := range tests {
		t := &tests[i]
		if !t.Benchmark {
			continue
		}
		r, err := s.benchExchange(t)
		if err := report(t.Name, r, err); err != nil {
			return err
		}
	}
	return nil
}
