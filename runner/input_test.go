// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmkit/filtertest/config"
)

func TestParseRawRequestHead(t *testing.T) {
	h, err := parseRawHeaders("GET /index.html HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n", false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		":method: GET",
		":path: /index.html",
		":authority: example.com",
		"Accept: */*",
	}, h.Lines())
}

func TestParseRawResponseHead(t *testing.T) {
	h, err := parseRawHeaders("HTTP/1.1 404 Not Found\ncontent-type: text/plain\n", true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		":status: 404",
		"content-type: text/plain",
	}, h.Lines())
}

func TestParseRawHeadersOnly(t *testing.T) {
	// A bare header block without a request line passes through unchanged.
	h, err := parseRawHeaders(":method: GET\n:path: /\n", false)
	require.NoError(t, err)
	assert.Equal(t, []string{":method: GET", ":path: /"}, h.Lines())
}

func TestParseRawHeadersMalformed(t *testing.T) {
	_, err := parseRawHeaders("GET\n", false)
	require.Error(t, err)

	_, err = parseRawHeaders("NOTHTTP\n", true)
	require.Error(t, err)

	_, err = parseRawHeaders("GET / HTTP/1.1\nbroken line without colon\n", false)
	require.Error(t, err)
}

func TestLoadHeadersFromList(t *testing.T) {
	s := &session{}
	h, err := s.loadHeaders(&config.Input{Headers: []config.Header{
		{Key: ":status", Value: "200"},
		{Key: "set-cookie", Value: "a=1"},
		{Key: "Set-Cookie", Value: "b=2"},
	}}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{":status: 200", "set-cookie: a=1, b=2"}, h.Lines())
}

func TestLoadHeadersFromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "req.txt"),
		[]byte("POST /upload HTTP/1.1\nHost: files.example.com\n"), 0o644))

	s := &session{baseDir: dir}
	h, err := s.loadHeaders(&config.Input{File: "req.txt"}, false)
	require.NoError(t, err)
	v, ok := h.Get(":authority")
	require.True(t, ok)
	assert.Equal(t, "files.example.com", v)
}

func TestLoadBody(t *testing.T) {
	s := &session{baseDir: t.TempDir()}

	content := "raw bytes"
	body, err := s.loadBody(&config.Input{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, "raw bytes", string(body))

	require.NoError(t, os.WriteFile(filepath.Join(s.baseDir, "body.bin"), []byte{0, 1, 2}, 0o644))
	body, err = s.loadBody(&config.Input{File: "body.bin"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, body)

	_, err = s.loadBody(&config.Input{Headers: []config.Header{{Key: "k", Value: "v"}}})
	require.Error(t, err)
}
