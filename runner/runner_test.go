// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmkit/filtertest/config"
	"github.com/wasmkit/filtertest/engine"
	"github.com/wasmkit/filtertest/engine/inproc"
	"github.com/wasmkit/filtertest/internal/testplugins"
)

func testEngine() engine.Engine {
	e := inproc.New()
	testplugins.RegisterAll(e)
	return e
}

func TestRunPassingSuite(t *testing.T) {
	dir := t.TempDir()
	suite := &config.TestSuite{
		Env: config.Env{WasmPath: "logger", LogFile: "captured.log"},
		Tests: []config.Test{{
			Name: "logs request",
			RequestHeaders: &config.Invocation{
				Input: config.Input{Headers: []config.Header{{Key: ":path", Value: "/"}}},
				Result: config.Expectation{
					Logs: []config.StringMatcherSpec{{Regex: strp(`request headers: \d+`)}},
				},
			},
		}},
	}

	err := Run(suite, Options{
		Engines:  []engine.Engine{testEngine()},
		RunTests: true,
		Logger:   zerolog.Nop(),
		BaseDir:  dir,
	})
	require.NoError(t, err)

	captured, err := os.ReadFile(filepath.Join(dir, "captured.log"))
	require.NoError(t, err)
	assert.Contains(t, string(captured), "request headers: 1")
}

func TestRunFailingSuiteReturnsError(t *testing.T) {
	suite := &config.TestSuite{
		Env: config.Env{WasmPath: "logger"},
		Tests: []config.Test{{
			Name: "impossible expectation",
			RequestHeaders: &config.Invocation{
				Input: config.Input{Headers: []config.Header{{Key: ":path", Value: "/"}}},
				Result: config.Expectation{
					Logs: []config.StringMatcherSpec{{Exact: strp("never logged")}},
				},
			},
		}},
	}

	err := Run(suite, Options{
		Engines:  []engine.Engine{testEngine()},
		RunTests: true,
		Logger:   zerolog.Nop(),
		BaseDir:  t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 test(s) failed")
}

func TestRunUnknownPluginFile(t *testing.T) {
	suite := &config.TestSuite{
		Env: config.Env{WasmPath: "no-such-guest"},
		Tests: []config.Test{{
			Name: "never runs",
			RequestHeaders: &config.Invocation{
				Input: config.Input{Headers: []config.Header{{Key: ":path", Value: "/"}}},
			},
		}},
	}

	err := Run(suite, Options{
		Engines:  []engine.Engine{testEngine()},
		RunTests: true,
		Logger:   zerolog.Nop(),
		BaseDir:  t.TempDir(),
	})
	require.Error(t, err)
}
