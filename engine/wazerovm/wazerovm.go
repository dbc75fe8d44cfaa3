// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package wazerovm runs proxy-wasm plugin binaries on the wazero runtime.
// It exports the proxy-wasm "env" host module, translating every host call
// into the hostabi interfaces so the simulated host owns all semantics, and
// invokes the guest's proxy_on_* exports for lifecycle and phase callbacks.
// A trap anywhere marks the plugin failed for good.
package wazerovm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/wasmkit/filtertest/engine"
	"github.com/wasmkit/filtertest/hostabi"
)

const rootContextID = 1

// Engine loads wasm modules with wazero.
type Engine struct{}

var _ engine.Engine = (*Engine)(nil)

// New returns the wazero engine.
func New() *Engine { return &Engine{} }

func (*Engine) Name() string { return "wazero" }

func (*Engine) NewPlugin(code []byte, host hostabi.Host) (engine.Plugin, error) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	p := &plugin{
		ctx:      ctx,
		runtime:  rt,
		rootHost: host,
		nextID:   rootContextID + 1,
	}
	p.activeHost = host
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)
	if err := p.instantiateHostModule(); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiating host module: %w", err)
	}
	// The guest's _start runs here; SDK guests register their contexts in it.
	mod, err := rt.InstantiateWithConfig(ctx, code, wazero.NewModuleConfig().WithName("plugin"))
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiating plugin module: %w", err)
	}
	p.mod = mod
	p.malloc = mod.ExportedFunction("proxy_on_memory_allocate")
	if p.malloc == nil {
		p.malloc = mod.ExportedFunction("malloc")
	}
	if p.malloc == nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("plugin exports no allocator (proxy_on_memory_allocate or malloc)")
	}
	return p, nil
}

type plugin struct {
	ctx     context.Context
	runtime wazero.Runtime
	mod     api.Module
	malloc  api.Function

	rootHost   hostabi.Host
	activeHost hostabi.Host
	nextID     uint32
	started    bool

	failed     bool
	failReason string
}

func (p *plugin) fail(format string, args ...any) error {
	p.failed = true
	p.failReason = fmt.Sprintf(format, args...)
	return fmt.Errorf("%s", p.failReason)
}

// call invokes a guest export with host bound as the effective host for any
// callbacks the guest makes during the call.
func (p *plugin) call(host hostabi.Host, name string, params ...uint64) ([]uint64, error) {
	if p.failed {
		return nil, fmt.Errorf("plugin already failed: %s", p.failReason)
	}
	fn := p.mod.ExportedFunction(name)
	if fn == nil {
		return nil, p.fail("plugin does not export %s", name)
	}
	prev := p.activeHost
	p.activeHost = host
	defer func() { p.activeHost = prev }()
	res, err := fn.Call(p.ctx, params...)
	if err != nil {
		return nil, p.fail("%s trapped: %v", name, err)
	}
	return res, nil
}

func boolArg(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (p *plugin) Start() error {
	if p.started {
		return fmt.Errorf("plugin already started; shutdown required first")
	}
	if _, err := p.call(p.rootHost, "proxy_on_context_create", rootContextID, 0); err != nil {
		return err
	}
	res, err := p.call(p.rootHost, "proxy_on_vm_start", rootContextID, 0)
	if err != nil {
		return err
	}
	if len(res) == 0 || res[0] == 0 {
		return p.fail("plugin rejected vm start")
	}
	p.started = true
	return nil
}

func (p *plugin) Configure() error {
	if !p.started {
		return fmt.Errorf("plugin not started")
	}
	size := 0
	if buf := p.rootHost.GetBuffer(hostabi.BufferTypePluginConfiguration); buf != nil {
		size = buf.Size()
	}
	res, err := p.call(p.rootHost, "proxy_on_configure", rootContextID, uint64(size))
	if err != nil {
		return err
	}
	if len(res) == 0 || res[0] == 0 {
		return p.fail("plugin rejected configuration")
	}
	return nil
}

func (p *plugin) Shutdown() error {
	if !p.started {
		return fmt.Errorf("plugin not started")
	}
	p.started = false
	if _, err := p.call(p.rootHost, "proxy_on_done", rootContextID); err != nil {
		return err
	}
	_, err := p.call(p.rootHost, "proxy_on_delete", rootContextID)
	return err
}

func (p *plugin) NewStream(host hostabi.StreamHost) (engine.Stream, error) {
	if !p.started {
		return nil, fmt.Errorf("plugin not started")
	}
	id := p.nextID
	p.nextID++
	if _, err := p.call(host, "proxy_on_context_create", uint64(id), rootContextID); err != nil {
		return nil, err
	}
	return &stream{plugin: p, id: id, host: host}, nil
}

func (p *plugin) Failed() bool          { return p.failed }
func (p *plugin) FailureReason() string { return p.failReason }

func (p *plugin) Close() error { return p.runtime.Close(p.ctx) }

type stream struct {
	plugin *plugin
	id     uint32
	host   hostabi.StreamHost
}

func (s *stream) headersCall(name string, numHeaders int, endOfStream bool) (hostabi.FilterHeadersStatus, error) {
	res, err := s.plugin.call(s.host, name, uint64(s.id), uint64(numHeaders), boolArg(endOfStream))
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, s.plugin.fail("%s returned no status", name)
	}
	return hostabi.FilterHeadersStatus(uint32(res[0])), nil
}

func (s *stream) bodyCall(name string, bodySize int, endOfStream bool) (hostabi.FilterDataStatus, error) {
	res, err := s.plugin.call(s.host, name, uint64(s.id), uint64(bodySize), boolArg(endOfStream))
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, s.plugin.fail("%s returned no status", name)
	}
	return hostabi.FilterDataStatus(uint32(res[0])), nil
}

func (s *stream) OnRequestHeaders(numHeaders int, endOfStream bool) (hostabi.FilterHeadersStatus, error) {
	return s.headersCall("proxy_on_request_headers", numHeaders, endOfStream)
}

func (s *stream) OnRequestBody(bodySize int, endOfStream bool) (hostabi.FilterDataStatus, error) {
	return s.bodyCall("proxy_on_request_body", bodySize, endOfStream)
}

func (s *stream) OnResponseHeaders(numHeaders int, endOfStream bool) (hostabi.FilterHeadersStatus, error) {
	return s.headersCall("proxy_on_response_headers", numHeaders, endOfStream)
}

func (s *stream) OnResponseBody(bodySize int, endOfStream bool) (hostabi.FilterDataStatus, error) {
	return s.bodyCall("proxy_on_response_body", bodySize, endOfStream)
}

func (s *stream) Close() error {
	if _, err := s.plugin.call(s.host, "proxy_on_log", uint64(s.id)); err != nil {
		return err
	}
	if _, err := s.plugin.call(s.host, "proxy_on_done", uint64(s.id)); err != nil {
		return err
	}
	_, err := s.plugin.call(s.host, "proxy_on_delete", uint64(s.id))
	return err
}
