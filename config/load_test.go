// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const suiteYAML = `
env:
  wasm_path: plugin.wasm
  config_path: plugin.json
  min_log_level: debug
  num_additional_streams: 4
  stream_advance_rate: 2
test:
  - name: signs url
    benchmark: true
    num_chunks: 3
    request_headers:
      input:
        header:
          - key: ":method"
            value: GET
          - key: x-original-url
            value: https://example.com/a
      result:
        has_header:
          - key: X-Signed-URL
            value: https://example.com/a?Expires=1700000000&Signature=deadbeef
        no_header:
          - key: x-internal
        log:
          - regex: signed .*
            invert: true
    request_body:
      - input:
          content: hello
        result:
          body:
            - exact: HELLO
  - name: redirects
    request_headers:
      input:
        file: request.txt
      result:
        immediate:
          http_status: 301
          details: redirected
`

const suiteJSON = `{
  "env": {
    "wasm_path": "plugin.wasm",
    "config_path": "plugin.json",
    "min_log_level": "debug",
    "num_additional_streams": 4,
    "stream_advance_rate": 2
  },
  "test": [
    {
      "name": "signs url",
      "benchmark": true,
      "num_chunks": 3,
      "request_headers": {
        "input": {
          "header": [
            {"key": ":method", "value": "GET"},
            {"key": "x-original-url", "value": "https://example.com/a"}
          ]
        },
        "result": {
          "has_header": [
            {"key": "X-Signed-URL", "value": "https://example.com/a?Expires=1700000000&Signature=deadbeef"}
          ],
          "no_header": [{"key": "x-internal"}],
          "log": [{"regex": "signed .*", "invert": true}]
        }
      },
      "request_body": [
        {"input": {"content": "hello"}, "result": {"body": [{"exact": "HELLO"}]}}
      ]
    },
    {
      "name": "redirects",
      "request_headers": {
        "input": {"file": "request.txt"},
        "result": {"immediate": {"http_status": 301, "details": "redirected"}}
      }
    }
  ]
}`

func writeSuite(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func checkSuite(t *testing.T, s *TestSuite) {
	t.Helper()
	assert.Equal(t, "plugin.wasm", s.Env.WasmPath)
	assert.Equal(t, "plugin.json", s.Env.ConfigPath)
	assert.Equal(t, LogLevelDebug, s.Env.MinLogLevel)
	assert.Equal(t, 4, s.Env.NumAdditionalStreams)
	assert.Equal(t, 2, s.Env.NumStreamAdvances)
	require.Len(t, s.Tests, 2)

	first := s.Tests[0]
	assert.True(t, first.Benchmark)
	assert.Equal(t, 3, first.NumChunks)
	require.NotNil(t, first.RequestHeaders)
	require.Len(t, first.RequestHeaders.Input.Headers, 2)
	assert.Equal(t, "x-original-url", first.RequestHeaders.Input.Headers[1].Key)
	require.Len(t, first.RequestHeaders.Result.HasHeaders, 1)
	assert.Equal(t, "X-Signed-URL", first.RequestHeaders.Result.HasHeaders[0].Key)
	require.Len(t, first.RequestHeaders.Result.Logs, 1)
	assert.True(t, first.RequestHeaders.Result.Logs[0].Invert)
	require.NotNil(t, first.RequestHeaders.Result.Logs[0].Regex)
	require.Len(t, first.RequestBody, 1)
	require.NotNil(t, first.RequestBody[0].Input.Content)
	assert.Equal(t, "hello", *first.RequestBody[0].Input.Content)

	second := s.Tests[1]
	assert.Equal(t, "request.txt", second.RequestHeaders.Input.File)
	imm := second.RequestHeaders.Result.Immediate
	require.NotNil(t, imm)
	require.NotNil(t, imm.HTTPStatus)
	assert.Equal(t, uint32(301), *imm.HTTPStatus)
	require.NotNil(t, imm.Details)
	assert.Equal(t, "redirected", *imm.Details)
	assert.Nil(t, imm.GRPCStatus)
}

func TestLoadSuiteYAML(t *testing.T) {
	s, err := LoadSuite(writeSuite(t, "suite.yaml", suiteYAML))
	require.NoError(t, err)
	checkSuite(t, s)
}

func TestLoadSuiteJSON(t *testing.T) {
	s, err := LoadSuite(writeSuite(t, "suite.json", suiteJSON))
	require.NoError(t, err)
	checkSuite(t, s)
}

func TestLoadSuiteSniffsJSONWithoutExtension(t *testing.T) {
	s, err := LoadSuite(writeSuite(t, "suite", suiteJSON))
	require.NoError(t, err)
	checkSuite(t, s)
}

func TestLoadSuiteRejectsUnknownYAMLField(t *testing.T) {
	_, err := LoadSuite(writeSuite(t, "suite.yaml", `
env:
  wasm_path: plugin.wasm
  wasm_paths: typo.wasm
`))
	require.Error(t, err)
}

func TestLoadSuiteRejectsInvalidDocument(t *testing.T) {
	_, err := LoadSuite(writeSuite(t, "suite.json", `{"env": {}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wasm_path")
}

func TestLoadSuiteMissingFile(t *testing.T) {
	_, err := LoadSuite(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
