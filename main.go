// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

// filtertest runs a declarative test suite against a proxy-wasm HTTP filter
// plugin on a simulated host. Exit status is non-zero when any test fails.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/wasmkit/filtertest/config"
	"github.com/wasmkit/filtertest/engine"
	"github.com/wasmkit/filtertest/engine/wazerovm"
	"github.com/wasmkit/filtertest/runner"
)

func main() {
	suitePath := flag.String("test", "", "path to the test suite document (required)")
	pluginPath := flag.String("plugin", "", "override the suite's wasm_path")
	configPath := flag.String("config", "", "override the suite's config_path")
	minLogLevel := flag.String("min-log-level", "", "override the suite's min_log_level (trace..critical)")
	logFile := flag.String("log-file", "", "override the suite's log_file")
	noTests := flag.Bool("no-tests", false, "skip tests, run benchmarks only")
	noBenchmarks := flag.Bool("no-benchmarks", false, "skip benchmarks, run tests only")
	engineName := flag.String("engine", "", "run under one named engine instead of all registered ones")
	streams := flag.Int("streams", -1, "override the suite's num_additional_streams")
	advanceRate := flag.Int("advance-rate", -1, "override the suite's stream_advance_rate")
	flag.Parse()

	logger := newConsoleLogger(os.Stderr)

	engine.Register(wazerovm.New())

	if err := run(logger, *suitePath, overrides{
		plugin:      *pluginPath,
		config:      *configPath,
		minLogLevel: *minLogLevel,
		logFile:     *logFile,
		streams:     *streams,
		advanceRate: *advanceRate,
	}, !*noTests, !*noBenchmarks, *engineName); err != nil {
		logger.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

type overrides struct {
	plugin      string
	config      string
	minLogLevel string
	logFile     string
	streams     int
	advanceRate int
}

func (o overrides) apply(env *config.Env) error {
	if o.plugin != "" {
		env.WasmPath = o.plugin
	}
	if o.config != "" {
		env.ConfigPath = o.config
	}
	if o.minLogLevel != "" {
		level, err := config.ParseLogLevel(o.minLogLevel)
		if err != nil {
			return err
		}
		env.MinLogLevel = level
	}
	if o.logFile != "" {
		env.LogFile = o.logFile
	}
	if o.streams >= 0 {
		env.NumAdditionalStreams = o.streams
	}
	if o.advanceRate >= 0 {
		env.NumStreamAdvances = o.advanceRate
	}
	return nil
}

func run(logger zerolog.Logger, suitePath string, o overrides, runTests, runBenchmarks bool, engineName string) error {
	if suitePath == "" {
		return fmt.Errorf("-test is required")
	}
	suite, err := config.LoadSuite(suitePath)
	if err != nil {
		return err
	}
	if err := o.apply(&suite.Env); err != nil {
		return err
	}
	if suite.Env.MinLogLevel == config.LogLevelTrace {
		logger = logger.Level(zerolog.TraceLevel)
	}

	var engines []engine.Engine
	if engineName != "" {
		e, ok := engine.Lookup(engineName)
		if !ok {
			return fmt.Errorf("unknown engine %q", engineName)
		}
		engines = []engine.Engine{e}
	}

	return runner.Run(suite, runner.Options{
		Engines:       engines,
		RunTests:      runTests,
		RunBenchmarks: runBenchmarks,
		Logger:        logger,
		// Relative paths in the document resolve against its own directory.
		BaseDir: filepath.Dir(suitePath),
	})
}
