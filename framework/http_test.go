// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package framework_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmkit/filtertest/engine"
	"github.com/wasmkit/filtertest/engine/inproc"
	"github.com/wasmkit/filtertest/framework"
	"github.com/wasmkit/filtertest/hostabi"
	"github.com/wasmkit/filtertest/internal/testplugins"
)

func newTestContext(t *testing.T, f *testplugins.Func, opts framework.Options, cfg []byte) (*framework.HTTPContext, engine.Plugin) {
	t.Helper()
	e := inproc.New()
	e.Register("guest", f.Factory())
	root := framework.NewRootContext(opts, cfg)
	p, err := e.NewPlugin([]byte("guest"), root)
	require.NoError(t, err)
	require.NoError(t, p.Start())
	require.NoError(t, p.Configure())
	ctx, err := framework.NewHTTPContext(p, opts, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return ctx, p
}

func TestHeadersPhaseMutation(t *testing.T) {
	f := &testplugins.Func{
		RequestHeaders: func(host hostabi.StreamHost, n int, _ bool) hostabi.FilterHeadersStatus {
			mt := hostabi.HeaderMapTypeRequestHeaders
			host.AddHeaderMapValue(mt, "x-added", "yes")
			host.ReplaceHeaderMapValue(mt, ":path", "/rewritten")
			host.RemoveHeaderMapValue(mt, "x-drop")
			return hostabi.HeadersContinue
		},
	}
	ctx, _ := newTestContext(t, f, framework.Options{}, nil)

	hdrs := framework.NewHeaders([][2]string{{":method", "GET"}, {":path", "/"}, {"x-drop", "1"}})
	res := ctx.SendRequestHeaders(hdrs)

	require.False(t, res.Immediate)
	assert.True(t, res.HeaderStatus.IsContinue())
	assert.Equal(t, []string{":method: GET", ":path: /rewritten", "x-added: yes"}, res.Headers.Lines())
}

func TestHeadersPhaseGuards(t *testing.T) {
	var gotOffPhase, gotWrongMap hostabi.Result
	f := &testplugins.Func{
		RequestHeaders: func(host hostabi.StreamHost, n int, _ bool) hostabi.FilterHeadersStatus {
			// The response map is not live during the request phase.
			gotWrongMap = host.AddHeaderMapValue(hostabi.HeaderMapTypeResponseHeaders, "x", "y")
			return hostabi.HeadersContinue
		},
	}
	ctx, _ := newTestContext(t, f, framework.Options{}, nil)
	ctx.SendRequestHeaders(framework.NewHeaders(nil))

	// Outside any phase the map is gone entirely.
	gotOffPhase = ctx.AddHeaderMapValue(hostabi.HeaderMapTypeRequestHeaders, "x", "y")

	assert.Equal(t, hostabi.ResultBadArgument, gotWrongMap)
	assert.Equal(t, hostabi.ResultBadArgument, gotOffPhase)
}

func TestBodyPhaseRewrite(t *testing.T) {
	f := &testplugins.Func{
		RequestBody: func(host hostabi.StreamHost, size int, _ bool) hostabi.FilterDataStatus {
			buf := host.GetBuffer(hostabi.BufferTypeHTTPRequestBody)
			data, res := buf.CopyOut(0, uint64(size))
			require.Equal(t, hostabi.ResultOK, res)
			buf.CopyIn(0, uint64(size), bytes.ToUpper(data))
			return hostabi.DataContinue
		},
	}
	ctx, _ := newTestContext(t, f, framework.Options{}, nil)

	res := ctx.SendRequestBody([]byte("hello"), true)
	assert.Equal(t, hostabi.DataContinue, res.BodyStatus)
	assert.Equal(t, "HELLO", string(res.Body))
}

func TestBodyPhaseBufferVisibility(t *testing.T) {
	var otherDirection hostabi.Buffer
	f := &testplugins.Func{
		RequestBody: func(host hostabi.StreamHost, size int, _ bool) hostabi.FilterDataStatus {
			otherDirection = host.GetBuffer(hostabi.BufferTypeHTTPResponseBody)
			return hostabi.DataContinue
		},
	}
	ctx, _ := newTestContext(t, f, framework.Options{}, nil)
	ctx.SendRequestBody([]byte("x"), true)

	assert.Nil(t, otherDirection, "response body buffer must not be visible in the request phase")
}

func TestImmediateResponseWinsOverMutations(t *testing.T) {
	f := &testplugins.Func{
		RequestHeaders: func(host hostabi.StreamHost, n int, _ bool) hostabi.FilterHeadersStatus {
			mt := hostabi.HeaderMapTypeRequestHeaders
			host.AddHeaderMapValue(mt, "x-before", "1")
			host.SendLocalResponse(403, []byte("denied"),
				[][2]string{{"content-type", "text/plain"}}, 7, "policy")
			// Mutations after the local response must not leak into the result.
			host.AddHeaderMapValue(mt, "x-after", "2")
			return hostabi.HeadersStopIteration
		},
	}
	ctx, _ := newTestContext(t, f, framework.Options{}, nil)

	res := ctx.SendRequestHeaders(framework.NewHeaders(nil))
	require.True(t, res.Immediate)
	assert.False(t, res.HeaderStatus.IsContinue())
	assert.Equal(t, uint32(403), res.HTTPCode)
	assert.Equal(t, int32(7), res.GRPCCode)
	assert.Equal(t, "policy", res.Details)
	assert.Equal(t, "denied", string(res.Body))
	assert.Equal(t, []string{"content-type: text/plain"}, res.Headers.Lines())
}

func TestImmediateResponseInvalidInBodyPhase(t *testing.T) {
	var got hostabi.Result
	f := &testplugins.Func{
		RequestBody: func(host hostabi.StreamHost, size int, _ bool) hostabi.FilterDataStatus {
			got = host.SendLocalResponse(500, nil, nil, 0, "too late")
			return hostabi.DataContinue
		},
	}
	ctx, _ := newTestContext(t, f, framework.Options{}, nil)

	res := ctx.SendRequestBody([]byte("x"), true)
	assert.Equal(t, hostabi.ResultBadArgument, got)
	assert.False(t, res.Immediate)
}

func TestPhaseLogsClearedBetweenPhases(t *testing.T) {
	f := &testplugins.Func{
		RequestHeaders: func(host hostabi.StreamHost, n int, _ bool) hostabi.FilterHeadersStatus {
			host.Log(hostabi.LogLevelInfo, "request phase")
			return hostabi.HeadersContinue
		},
		ResponseHeaders: func(host hostabi.StreamHost, n int, _ bool) hostabi.FilterHeadersStatus {
			host.Log(hostabi.LogLevelInfo, "response phase")
			return hostabi.HeadersContinue
		},
	}
	ctx, _ := newTestContext(t, f, framework.Options{}, nil)

	ctx.SendRequestHeaders(framework.NewHeaders(nil))
	assert.Equal(t, []string{"request phase"}, ctx.PhaseLogs())

	ctx.SendResponseHeaders(framework.NewHeaders(nil))
	assert.Equal(t, []string{"response phase"}, ctx.PhaseLogs())
}

func TestTearDownRunsOnce(t *testing.T) {
	done := 0
	f := &testplugins.Func{
		StreamDone: func(hostabi.StreamHost) { done++ },
	}
	ctx, _ := newTestContext(t, f, framework.Options{}, nil)

	ctx.TearDown()
	ctx.TearDown()
	assert.Equal(t, 1, done)
}

func TestTearDownSkippedAfterVMFailure(t *testing.T) {
	done := 0
	f := &testplugins.Func{
		RequestBody: func(hostabi.StreamHost, int, bool) hostabi.FilterDataStatus {
			panic("trap")
		},
		StreamDone: func(hostabi.StreamHost) { done++ },
	}
	ctx, p := newTestContext(t, f, framework.Options{}, nil)

	ctx.SendRequestBody([]byte("x"), true)
	require.True(t, p.Failed())

	ctx.TearDown()
	assert.Zero(t, done, "a failed VM must not be invoked for teardown")
}
