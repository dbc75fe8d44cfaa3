// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package framework implements the simulated proxy host a plugin talks to:
// the VM/root/stream context triad, the header map and the body buffer. It
// reproduces the memory-access and header semantics of a native host while
// keeping every side effect inspectable.
package framework

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/wasmkit/filtertest/hostabi"
)

// DefaultClockTime is the frozen timestamp contexts report when none is
// configured. It must be non-zero: Go-SDK plugins treat a zero clock as a VM
// that never started.
var DefaultClockTime = time.UnixMilli(1)

// Options customizes context behavior for one plugin run.
type Options struct {
	// MinLogLevel filters plugin log calls; lines below it are dropped.
	MinLogLevel hostabi.LogLevel
	// ClockTime is the frozen time returned to the plugin. Zero means
	// DefaultClockTime.
	ClockTime time.Time
	// LogSink additionally receives every retained log line, one per line.
	LogSink io.Writer
	// Logger is the harness's own logger, used to echo plugin logs when
	// MinLogLevel is trace.
	Logger zerolog.Logger
}

func (o Options) clockNanos() uint64 {
	t := o.ClockTime
	if t.IsZero() {
		t = DefaultClockTime
	}
	return uint64(t.UnixNano())
}

// RootContext is the VM- and root-scope host surface: plugin configuration
// bytes, a frozen clock, and per-phase log capture.
type RootContext struct {
	opts         Options
	pluginConfig Buffer
	phaseLogs    []string
}

var _ hostabi.Host = (*RootContext)(nil)

// NewRootContext builds a root context serving the given plugin
// configuration bytes.
func NewRootContext(opts Options, pluginConfig []byte) *RootContext {
	c := &RootContext{opts: opts}
	c.pluginConfig.Set(pluginConfig)
	return c
}

func (c *RootContext) Log(level hostabi.LogLevel, message string) hostabi.Result {
	if c.opts.MinLogLevel == hostabi.LogLevelTrace {
		c.opts.Logger.Trace().Str("source", "plugin").Msg(message)
	}
	if level >= c.opts.MinLogLevel {
		c.phaseLogs = append(c.phaseLogs, message)
		if c.opts.LogSink != nil {
			fmt.Fprintln(c.opts.LogSink, message)
		}
	}
	return hostabi.ResultOK
}

func (c *RootContext) CurrentTimeNanos() uint64   { return c.opts.clockNanos() }
func (c *RootContext) MonotonicTimeNanos() uint64 { return c.opts.clockNanos() }

func (c *RootContext) GetBuffer(bt hostabi.BufferType) hostabi.Buffer {
	if bt == hostabi.BufferTypePluginConfiguration {
		return &c.pluginConfig
	}
	return nil
}

// PluginConfigSize returns the size of the configuration payload.
func (c *RootContext) PluginConfigSize() int { return c.pluginConfig.Size() }

// PhaseLogs returns the log lines captured since the last clear. Not safe
// for use while the plugin is executing.
func (c *RootContext) PhaseLogs() []string { return c.phaseLogs }

// ClearPhaseLogs resets log capture at a phase boundary.
func (c *RootContext) ClearPhaseLogs() { c.phaseLogs = c.phaseLogs[:0] }
