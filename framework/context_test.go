// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package framework

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmkit/filtertest/hostabi"
)

func TestRootContextLogFiltering(t *testing.T) {
	var sink bytes.Buffer
	c := NewRootContext(Options{MinLogLevel: hostabi.LogLevelWarn, LogSink: &sink}, nil)

	require.Equal(t, hostabi.ResultOK, c.Log(hostabi.LogLevelInfo, "dropped"))
	require.Equal(t, hostabi.ResultOK, c.Log(hostabi.LogLevelWarn, "kept"))
	require.Equal(t, hostabi.ResultOK, c.Log(hostabi.LogLevelCritical, "also kept"))

	assert.Equal(t, []string{"kept", "also kept"}, c.PhaseLogs())
	assert.Equal(t, "kept\nalso kept\n", sink.String())

	c.ClearPhaseLogs()
	assert.Empty(t, c.PhaseLogs())
}

func TestRootContextFrozenClock(t *testing.T) {
	c := NewRootContext(Options{}, nil)
	assert.Equal(t, uint64(DefaultClockTime.UnixNano()), c.CurrentTimeNanos())

	at := time.Unix(1700000000, 42)
	c = NewRootContext(Options{ClockTime: at}, nil)
	assert.Equal(t, uint64(at.UnixNano()), c.CurrentTimeNanos())
	assert.Equal(t, c.CurrentTimeNanos(), c.MonotonicTimeNanos())
}

func TestRootContextPluginConfiguration(t *testing.T) {
	c := NewRootContext(Options{}, []byte(`{"k":"v"}`))

	buf := c.GetBuffer(hostabi.BufferTypePluginConfiguration)
	require.NotNil(t, buf)
	data, res := buf.CopyOut(0, uint64(buf.Size()))
	require.Equal(t, hostabi.ResultOK, res)
	assert.Equal(t, `{"k":"v"}`, string(data))

	assert.Nil(t, c.GetBuffer(hostabi.BufferTypeHTTPRequestBody))
}
