// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package inproc is an engine that hosts guests compiled into the harness
// binary itself, in the spirit of proxy-wasm-go-sdk's proxytest emulator.
// Instead of wasm bytes, the "module" handed to NewPlugin is the name of a
// registered guest factory. Guest panics are converted into VM failures, so
// trap handling can be exercised without a real runtime.
package inproc

import (
	"fmt"

	"github.com/wasmkit/filtertest/engine"
	"github.com/wasmkit/filtertest/hostabi"
)

// Guest is the plugin-level surface an in-process guest implements. One
// Guest instance corresponds to one loaded plugin root.
type Guest interface {
	// OnVMStart runs once when the VM starts. False fails the plugin.
	OnVMStart(host hostabi.Host) bool
	// OnConfigure receives the size of the plugin configuration, readable
	// through the host's plugin-configuration buffer. False fails the plugin.
	OnConfigure(host hostabi.Host, configSize int) bool
	// OnPluginDone runs at explicit shutdown.
	OnPluginDone(host hostabi.Host)
	// NewStreamGuest creates the per-stream handler.
	NewStreamGuest(host hostabi.StreamHost) StreamGuest
}

// StreamGuest handles the HTTP phases of one stream.
type StreamGuest interface {
	OnRequestHeaders(host hostabi.StreamHost, numHeaders int, endOfStream bool) hostabi.FilterHeadersStatus
	OnRequestBody(host hostabi.StreamHost, bodySize int, endOfStream bool) hostabi.FilterDataStatus
	OnResponseHeaders(host hostabi.StreamHost, numHeaders int, endOfStream bool) hostabi.FilterHeadersStatus
	OnResponseBody(host hostabi.StreamHost, bodySize int, endOfStream bool) hostabi.FilterDataStatus
	OnStreamDone(host hostabi.StreamHost)
}

// DefaultGuest is a no-op Guest for embedding.
type DefaultGuest struct{}

func (DefaultGuest) OnVMStart(hostabi.Host) bool            { return true }
func (DefaultGuest) OnConfigure(hostabi.Host, int) bool     { return true }
func (DefaultGuest) OnPluginDone(hostabi.Host)              {}
func (DefaultGuest) NewStreamGuest(hostabi.StreamHost) StreamGuest {
	return DefaultStreamGuest{}
}

// DefaultStreamGuest is a no-op StreamGuest for embedding.
type DefaultStreamGuest struct{}

func (DefaultStreamGuest) OnRequestHeaders(hostabi.StreamHost, int, bool) hostabi.FilterHeadersStatus {
	return hostabi.HeadersContinue
}

func (DefaultStreamGuest) OnRequestBody(hostabi.StreamHost, int, bool) hostabi.FilterDataStatus {
	return hostabi.DataContinue
}

func (DefaultStreamGuest) OnResponseHeaders(hostabi.StreamHost, int, bool) hostabi.FilterHeadersStatus {
	return hostabi.HeadersContinue
}

func (DefaultStreamGuest) OnResponseBody(hostabi.StreamHost, int, bool) hostabi.FilterDataStatus {
	return hostabi.DataContinue
}

func (DefaultStreamGuest) OnStreamDone(hostabi.StreamHost) {}

// GuestFactory builds a fresh Guest per loaded plugin.
type GuestFactory func() Guest

// Engine resolves plugin "bytes" against a guest registry.
type Engine struct {
	name   string
	guests map[string]GuestFactory
}

var _ engine.Engine = (*Engine)(nil)

// New returns an empty in-process engine named "inproc".
func New() *Engine {
	return &Engine{name: "inproc", guests: map[string]GuestFactory{}}
}

func (e *Engine) Name() string { return e.name }

// Register binds a guest factory to a plugin name.
func (e *Engine) Register(name string, f GuestFactory) {
	e.guests[name] = f
}

func (e *Engine) NewPlugin(code []byte, host hostabi.Host) (engine.Plugin, error) {
	name := string(code)
	f, ok := e.guests[name]
	if !ok {
		return nil, fmt.Errorf("no in-process guest registered under %q", name)
	}
	return &plugin{guest: f(), host: host}, nil
}

type plugin struct {
	guest      Guest
	host       hostabi.Host
	started    bool
	failed     bool
	failReason string
}

func (p *plugin) fail(format string, args ...any) error {
	p.failed = true
	p.failReason = fmt.Sprintf(format, args...)
	return fmt.Errorf("%s", p.failReason)
}

// guard converts a guest panic into a sticky VM failure, the in-process
// analogue of a wasm trap.
func (p *plugin) guard(phase string, fn func()) (err error) {
	if p.failed {
		return fmt.Errorf("plugin already failed: %s", p.failReason)
	}
	defer func() {
		if r := recover(); r != nil {
			err = p.fail("guest panic in %s: %v", phase, r)
		}
	}()
	fn()
	return nil
}

func (p *plugin) Start() error {
	if p.started {
		return fmt.Errorf("plugin already started; shutdown required first")
	}
	var ok bool
	if err := p.guard("vm_start", func() { ok = p.guest.OnVMStart(p.host) }); err != nil {
		return err
	}
	if !ok {
		return p.fail("guest rejected vm start")
	}
	p.started = true
	return nil
}

func (p *plugin) Configure() error {
	if !p.started {
		return fmt.Errorf("plugin not started")
	}
	size := 0
	if buf := p.host.GetBuffer(hostabi.BufferTypePluginConfiguration); buf != nil {
		size = buf.Size()
	}
	var ok bool
	if err := p.guard("configure", func() { ok = p.guest.OnConfigure(p.host, size) }); err != nil {
		return err
	}
	if !ok {
		return p.fail("guest rejected configuration")
	}
	return nil
}

func (p *plugin) Shutdown() error {
	if !p.started {
		return fmt.Errorf("plugin not started")
	}
	p.started = false
	return p.guard("plugin_done", func() { p.guest.OnPluginDone(p.host) })
}

func (p *plugin) NewStream(host hostabi.StreamHost) (engine.Stream, error) {
	if !p.started {
		return nil, fmt.Errorf("plugin not started")
	}
	var sg StreamGuest
	if err := p.guard("stream_create", func() { sg = p.guest.NewStreamGuest(host) }); err != nil {
		return nil, err
	}
	return &stream{plugin: p, guest: sg, host: host}, nil
}

func (p *plugin) Failed() bool          { return p.failed }
func (p *plugin) FailureReason() string { return p.failReason }
func (p *plugin) Close() error          { return nil }

type stream struct {
	plugin *plugin
	guest  StreamGuest
	host   hostabi.StreamHost
}

func (s *stream) OnRequestHeaders(numHeaders int, endOfStream bool) (hostabi.FilterHeadersStatus, error) {
	var status hostabi.FilterHeadersStatus
	err := s.plugin.guard("request_headers", func() {
		status = s.guest.OnRequestHeaders(s.host, numHeaders, endOfStream)
	})
	return status, err
}

func (s *stream) OnRequestBody(bodySize int, endOfStream bool) (hostabi.FilterDataStatus, error) {
	var status hostabi.FilterDataStatus
	err := s.plugin.guard("request_body", func() {
		status = s.guest.OnRequestBody(s.host, bodySize, endOfStream)
	})
	return status, err
}

func (s *stream) OnResponseHeaders(numHeaders int, endOfStream bool) (hostabi.FilterHeadersStatus, error) {
	var status hostabi.FilterHeadersStatus
	err := s.plugin.guard("response_headers", func() {
		status = s.guest.OnResponseHeaders(s.host, numHeaders, endOfStream)
	})
	return status, err
}

func (s *stream) OnResponseBody(bodySize int, endOfStream bool) (hostabi.FilterDataStatus, error) {
	var status hostabi.FilterDataStatus
	err := s.plugin.guard("response_body", func() {
		status = s.guest.OnResponseBody(s.host, bodySize, endOfStream)
	})
	return status, err
}

func (s *stream) Close() error {
	return s.plugin.guard("stream_done", func() { s.guest.OnStreamDone(s.host) })
}
