// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package testplugins provides in-process guests used by the harness's own
// tests. They mirror the behaviors of the published sample plugins: header
// signing, redirects, body rewrites, log emission, and a deliberate trap.
package testplugins

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/wasmkit/filtertest/engine/inproc"
	"github.com/wasmkit/filtertest/hostabi"
)

// Func is a guest whose behavior is supplied as closures. Nil fields fall
// back to no-ops. It exists so tests can drive arbitrary host-call sequences
// from inside a real phase.
type Func struct {
	VMStart         func(host hostabi.Host) bool
	Configure       func(host hostabi.Host, configSize int) bool
	PluginDone      func(host hostabi.Host)
	StreamCreate    func(host hostabi.StreamHost)
	RequestHeaders  func(host hostabi.StreamHost, numHeaders int, endOfStream bool) hostabi.FilterHeadersStatus
	RequestBody     func(host hostabi.StreamHost, bodySize int, endOfStream bool) hostabi.FilterDataStatus
	ResponseHeaders func(host hostabi.StreamHost, numHeaders int, endOfStream bool) hostabi.FilterHeadersStatus
	ResponseBody    func(host hostabi.StreamHost, bodySize int, endOfStream bool) hostabi.FilterDataStatus
	StreamDone      func(host hostabi.StreamHost)
}

// Guest adapts f into an inproc.Guest. The same Func backs every stream.
func (f *Func) Guest() inproc.Guest { return &funcGuest{f: f} }

// Factory returns a factory producing this guest.
func (f *Func) Factory() inproc.GuestFactory {
	return func() inproc.Guest { return f.Guest() }
}

type funcGuest struct {
	inproc.DefaultGuest
	f *Func
}

func (g *funcGuest) OnVMStart(host hostabi.Host) bool {
	if g.f.VMStart != nil {
		return g.f.VMStart(host)
	}
	return true
}

func (g *funcGuest) OnConfigure(host hostabi.Host, configSize int) bool {
	if g.f.Configure != nil {
		return g.f.Configure(host, configSize)
	}
	return true
}

func (g *funcGuest) OnPluginDone(host hostabi.Host) {
	if g.f.PluginDone != nil {
		g.f.PluginDone(host)
	}
}

func (g *funcGuest) NewStreamGuest(host hostabi.StreamHost) inproc.StreamGuest {
	if g.f.StreamCreate != nil {
		g.f.StreamCreate(host)
	}
	return &funcStream{f: g.f}
}

type funcStream struct {
	inproc.DefaultStreamGuest
	f *Func
}

func (s *funcStream) OnRequestHeaders(host hostabi.StreamHost, n int, eos bool) hostabi.FilterHeadersStatus {
	if s.f.RequestHeaders != nil {
		return s.f.RequestHeaders(host, n, eos)
	}
	return hostabi.HeadersContinue
}

func (s *funcStream) OnRequestBody(host hostabi.StreamHost, n int, eos bool) hostabi.FilterDataStatus {
	if s.f.RequestBody != nil {
		return s.f.RequestBody(host, n, eos)
	}
	return hostabi.DataContinue
}

func (s *funcStream) OnResponseHeaders(host hostabi.StreamHost, n int, eos bool) hostabi.FilterHeadersStatus {
	if s.f.ResponseHeaders != nil {
		return s.f.ResponseHeaders(host, n, eos)
	}
	return hostabi.HeadersContinue
}

func (s *funcStream) OnResponseBody(host hostabi.StreamHost, n int, eos bool) hostabi.FilterDataStatus {
	if s.f.ResponseBody != nil {
		return s.f.ResponseBody(host, n, eos)
	}
	return hostabi.DataContinue
}

func (s *funcStream) OnStreamDone(host hostabi.StreamHost) {
	if s.f.StreamDone != nil {
		s.f.StreamDone(host)
	}
}

// Signer signs X-Original-URL into X-Signed-URL, logging "header not found"
// when the input header is missing.
func Signer() inproc.Guest {
	f := &Func{
		RequestHeaders: func(host hostabi.StreamHost, _ int, _ bool) hostabi.FilterHeadersStatus {
			mt := hostabi.HeaderMapTypeRequestHeaders
			url, res := host.GetHeaderMapValue(mt, "x-original-url")
			if res != hostabi.ResultOK {
				host.Log(hostabi.LogLevelInfo, "header not found: X-Original-URL")
				return hostabi.HeadersContinue
			}
			signed := fmt.Sprintf("%s?Expires=1700000000&Signature=deadbeef", url)
			host.AddHeaderMapValue(mt, "X-Signed-URL", signed)
			return hostabi.HeadersContinue
		},
		ResponseHeaders: func(host hostabi.StreamHost, _ int, _ bool) hostabi.FilterHeadersStatus {
			host.AddHeaderMapValue(hostabi.HeaderMapTypeResponseHeaders, "hello", "filtertest")
			return hostabi.HeadersContinue
		},
	}
	return f.Guest()
}

// Redirect issues an immediate 301 with a Location header on every request.
func Redirect() inproc.Guest {
	f := &Func{
		RequestHeaders: func(host hostabi.StreamHost, _ int, _ bool) hostabi.FilterHeadersStatus {
			host.SendLocalResponse(301, nil,
				[][2]string{{"Location", "https://moved.example.com/"}}, 0, "redirected")
			return hostabi.HeadersStopIteration
		},
	}
	return f.Guest()
}

// BodyUpper uppercases every body chunk in both directions through the
// buffer copy interface.
func BodyUpper() inproc.Guest {
	rewrite := func(host hostabi.StreamHost, bt hostabi.BufferType, size int) {
		buf := host.GetBuffer(bt)
		if buf == nil {
			host.Log(hostabi.LogLevelError, "body buffer unavailable")
			return
		}
		data, res := buf.CopyOut(0, uint64(size))
		if res != hostabi.ResultOK {
			host.Log(hostabi.LogLevelError, "body copy failed: "+res.String())
			return
		}
		buf.CopyIn(0, uint64(size), bytes.ToUpper(data))
	}
	f := &Func{
		RequestBody: func(host hostabi.StreamHost, size int, _ bool) hostabi.FilterDataStatus {
			rewrite(host, hostabi.BufferTypeHTTPRequestBody, size)
			return hostabi.DataContinue
		},
		ResponseBody: func(host hostabi.StreamHost, size int, _ bool) hostabi.FilterDataStatus {
			rewrite(host, hostabi.BufferTypeHTTPResponseBody, size)
			return hostabi.DataContinue
		},
	}
	return f.Guest()
}

// Logger logs one line per lifecycle and phase callback, echoing the plugin
// configuration at configure time.
func Logger() inproc.Guest {
	f := &Func{
		VMStart: func(host hostabi.Host) bool {
			host.Log(hostabi.LogLevelInfo, "vm started")
			return true
		},
		Configure: func(host hostabi.Host, configSize int) bool {
			cfg := ""
			if buf := host.GetBuffer(hostabi.BufferTypePluginConfiguration); buf != nil {
				data, res := buf.CopyOut(0, uint64(configSize))
				if res == hostabi.ResultOK {
					cfg = string(data)
				}
			}
			host.Log(hostabi.LogLevelInfo, "configured: "+cfg)
			return true
		},
		StreamCreate: func(host hostabi.StreamHost) {
			host.Log(hostabi.LogLevelDebug, "stream created")
		},
		RequestHeaders: func(host hostabi.StreamHost, n int, _ bool) hostabi.FilterHeadersStatus {
			host.Log(hostabi.LogLevelInfo, fmt.Sprintf("request headers: %d", n))
			return hostabi.HeadersContinue
		},
		ResponseHeaders: func(host hostabi.StreamHost, n int, _ bool) hostabi.FilterHeadersStatus {
			host.Log(hostabi.LogLevelInfo, fmt.Sprintf("response headers: %d", n))
			return hostabi.HeadersContinue
		},
		StreamDone: func(host hostabi.StreamHost) {
			host.Log(hostabi.LogLevelInfo, "stream completed")
		},
	}
	return f.Guest()
}

// Trap panics when a request body chunk contains "BOOM", simulating a wasm
// trap mid-test.
func Trap() inproc.Guest {
	f := &Func{
		RequestBody: func(host hostabi.StreamHost, size int, _ bool) hostabi.FilterDataStatus {
			buf := host.GetBuffer(hostabi.BufferTypeHTTPRequestBody)
			data, _ := buf.CopyOut(0, uint64(size))
			if strings.Contains(string(data), "BOOM") {
				panic("malformed body")
			}
			return hostabi.DataContinue
		},
	}
	return f.Guest()
}

// RegisterAll registers every canned guest on e under its conventional name.
func RegisterAll(e *inproc.Engine) {
	e.Register("signer", Signer)
	e.Register("redirect", Redirect)
	e.Register("bodyupper", BodyUpper)
	e.Register("logger", Logger)
	e.Register("trap", Trap)
}
