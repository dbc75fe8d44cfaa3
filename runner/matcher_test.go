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

func strp(s string) *string { return &s }

func TestMatcherExact(t *testing.T) {
	s := &session{}
	m, err := s.newMatcher(config.StringMatcherSpec{Exact: strp("hello")})
	require.NoError(t, err)

	assert.Empty(t, m.checkAny("line", []string{"other", "hello"}))
	assert.NotEmpty(t, m.checkAny("line", []string{"hell", "helloo"}))
}

func TestMatcherRegexIsFullMatch(t *testing.T) {
	s := &session{}
	m, err := s.newMatcher(config.StringMatcherSpec{Regex: strp(`https://.*&Signature=[0-9a-f]+`)})
	require.NoError(t, err)

	assert.True(t, m.matches("https://example.com/a?Expires=1&Signature=deadbeef"))
	assert.False(t, m.matches("prefix https://example.com/a?Expires=1&Signature=deadbeef"), "partial matches must not count")
	assert.False(t, m.matches("https://example.com/a?Expires=1&Signature=XYZ"))
}

func TestMatcherRegexCompileError(t *testing.T) {
	s := &session{}
	_, err := s.newMatcher(config.StringMatcherSpec{Regex: strp("(unclosed")})
	require.Error(t, err)
}

func TestMatcherInvert(t *testing.T) {
	s := &session{}
	m, err := s.newMatcher(config.StringMatcherSpec{Exact: strp("forbidden"), Invert: true})
	require.NoError(t, err)

	assert.Empty(t, m.checkAny("log line", []string{"ok", "fine"}))
	msg := m.checkAny("log line", []string{"ok", "forbidden"})
	assert.Contains(t, msg, "expected none")
}

func TestMatcherFromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "want.txt"), []byte("payload"), 0o644))

	s := &session{baseDir: dir}
	m, err := s.newMatcher(config.StringMatcherSpec{File: strp("want.txt")})
	require.NoError(t, err)
	assert.True(t, m.matches("payload"))

	_, err = s.newMatcher(config.StringMatcherSpec{File: strp("absent.txt")})
	require.Error(t, err)
}

func TestMatcherFailureMessageNamesTheMatcher(t *testing.T) {
	s := &session{}
	m, err := s.newMatcher(config.StringMatcherSpec{Regex: strp("a+")})
	require.NoError(t, err)

	msg := m.checkAny("log line", []string{"bbb"})
	assert.Contains(t, msg, `regex "a+"`)
	assert.Contains(t, msg, "bbb")
}
