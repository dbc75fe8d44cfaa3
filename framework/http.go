// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package framework

import (
	"fmt"

	"github.com/wasmkit/filtertest/engine"
	"github.com/wasmkit/filtertest/hostabi"
)

// Result is the outcome of one phase delivery.
type Result struct {
	// HeaderStatus is set by headers phases.
	HeaderStatus hostabi.FilterHeadersStatus
	// Headers is the header map as mutated, or the immediate-response
	// header set when the plugin short-circuited.
	Headers *Headers
	// BodyStatus is set by body phases.
	BodyStatus hostabi.FilterDataStatus
	// Body is the body chunk as mutated, or the immediate-response body.
	Body []byte
	// Immediate response parameters. HTTPCode is zero unless the plugin
	// issued one.
	Immediate bool
	HTTPCode  uint32
	GRPCCode  int32
	Details   string
}

// phaseKind enumerates the HTTP phases a stream context can execute. Adding
// a phase means adding a table entry, not new conditionals.
type phaseKind int

const (
	phaseNone phaseKind = iota
	phaseRequestHeaders
	phaseRequestBody
	phaseResponseHeaders
	phaseResponseBody
)

type phaseTraits struct {
	name         string
	headers      bool // headers phase: header map live, local response valid
	headerMap    hostabi.HeaderMapType
	bufferType   hostabi.BufferType
	exposeBuffer bool
}

var phaseTable = map[phaseKind]phaseTraits{
	phaseRequestHeaders:  {name: "request_headers", headers: true, headerMap: hostabi.HeaderMapTypeRequestHeaders},
	phaseRequestBody:     {name: "request_body", bufferType: hostabi.BufferTypeHTTPRequestBody, exposeBuffer: true},
	phaseResponseHeaders: {name: "response_headers", headers: true, headerMap: hostabi.HeaderMapTypeResponseHeaders},
	phaseResponseBody:    {name: "response_body", bufferType: hostabi.BufferTypeHTTPResponseBody, exposeBuffer: true},
}

// HTTPContext is the stream-scope host surface. It owns its own log capture,
// the live header map and the body buffer of whichever phase is currently
// executing, and the captured immediate response if the plugin issued one.
type HTTPContext struct {
	RootContext

	plugin   engine.Plugin
	stream   engine.Stream
	phase    phaseKind
	working  *Headers // live header map, valid during headers phases only
	body     Buffer
	result   Result
	tornDown bool
}

var _ hostabi.StreamHost = (*HTTPContext)(nil)

// NewHTTPContext creates a stream context on plugin. The plugin's stream
// creation callback runs before this returns; its log lines are available
// via PhaseLogs.
func NewHTTPContext(plugin engine.Plugin, opts Options, pluginConfig []byte) (*HTTPContext, error) {
	c := &HTTPContext{plugin: plugin}
	c.RootContext = *NewRootContext(opts, pluginConfig)
	stream, err := plugin.NewStream(c)
	if err != nil {
		return nil, fmt.Errorf("creating stream context: %w", err)
	}
	c.stream = stream
	return c, nil
}

// SendRequestHeaders delivers the request header map to the plugin.
func (c *HTTPContext) SendRequestHeaders(hdrs *Headers) Result {
	return c.headersPhase(phaseRequestHeaders, hdrs, c.stream.OnRequestHeaders)
}

// SendResponseHeaders delivers the response header map to the plugin.
func (c *HTTPContext) SendResponseHeaders(hdrs *Headers) Result {
	return c.headersPhase(phaseResponseHeaders, hdrs, c.stream.OnResponseHeaders)
}

// SendRequestBody delivers one request body chunk to the plugin.
func (c *HTTPContext) SendRequestBody(body []byte, endOfStream bool) Result {
	return c.bodyPhase(phaseRequestBody, body, endOfStream, c.stream.OnRequestBody)
}

// SendResponseBody delivers one response body chunk to the plugin.
func (c *HTTPContext) SendResponseBody(body []byte, endOfStream bool) Result {
	return c.bodyPhase(phaseResponseBody, body, endOfStream, c.stream.OnResponseBody)
}

func (c *HTTPContext) headersPhase(kind phaseKind, hdrs *Headers,
	invoke func(int, bool) (hostabi.FilterHeadersStatus, error)) Result {
	c.ClearPhaseLogs()
	c.result = Result{}
	c.working = hdrs
	c.phase = kind
	status, _ := invoke(hdrs.Len(), false)
	c.phase = phaseNone
	c.working = nil
	c.result.HeaderStatus = status
	if !c.result.Immediate {
		c.result.Headers = hdrs
	}
	return c.takeResult()
}

func (c *HTTPContext) bodyPhase(kind phaseKind, body []byte, endOfStream bool,
	invoke func(int, bool) (hostabi.FilterDataStatus, error)) Result {
	c.ClearPhaseLogs()
	c.result = Result{}
	c.body.Set(body)
	c.phase = kind
	status, _ := invoke(c.body.Size(), endOfStream)
	c.phase = phaseNone
	c.result.BodyStatus = status
	if !c.result.Immediate {
		c.result.Body = c.body.Release()
	} else {
		c.body.Clear()
	}
	return c.takeResult()
}

func (c *HTTPContext) takeResult() Result {
	res := c.result
	c.result = Result{}
	return res
}

// TearDown runs the stream teardown callbacks exactly once. It is skipped
// when the VM has failed, to avoid invoking a corrupted plugin further.
func (c *HTTPContext) TearDown() {
	if c.tornDown || c.stream == nil {
		return
	}
	c.tornDown = true
	c.ClearPhaseLogs()
	if c.plugin.Failed() {
		return
	}
	_ = c.stream.Close()
}

// --- hostabi.StreamHost ---

func (c *HTTPContext) GetBuffer(bt hostabi.BufferType) hostabi.Buffer {
	if t := phaseTable[c.phase]; t.exposeBuffer && bt == t.bufferType {
		return &c.body
	}
	return c.RootContext.GetBuffer(bt)
}

func (c *HTTPContext) headerMap(mt hostabi.HeaderMapType) (*Headers, hostabi.Result) {
	t := phaseTable[c.phase]
	if !t.headers || mt != t.headerMap {
		return nil, hostabi.ResultBadArgument
	}
	return c.working, hostabi.ResultOK
}

func (c *HTTPContext) GetHeaderMapSize(mt hostabi.HeaderMapType) (uint32, hostabi.Result) {
	h, res := c.headerMap(mt)
	if res != hostabi.ResultOK {
		return 0, res
	}
	return uint32(h.Len()), hostabi.ResultOK
}

func (c *HTTPContext) GetHeaderMapValue(mt hostabi.HeaderMapType, key string) (string, hostabi.Result) {
	h, res := c.headerMap(mt)
	if res != hostabi.ResultOK {
		return "", res
	}
	value, ok := h.Get(key)
	if !ok {
		return "", hostabi.ResultNotFound
	}
	return value, hostabi.ResultOK
}

func (c *HTTPContext) AddHeaderMapValue(mt hostabi.HeaderMapType, key, value string) hostabi.Result {
	h, res := c.headerMap(mt)
	if res != hostabi.ResultOK {
		return res
	}
	h.Add(key, value)
	return hostabi.ResultOK
}

func (c *HTTPContext) ReplaceHeaderMapValue(mt hostabi.HeaderMapType, key, value string) hostabi.Result {
	h, res := c.headerMap(mt)
	if res != hostabi.ResultOK {
		return res
	}
	h.Set(key, value)
	return hostabi.ResultOK
}

func (c *HTTPContext) RemoveHeaderMapValue(mt hostabi.HeaderMapType, key string) hostabi.Result {
	h, res := c.headerMap(mt)
	if res != hostabi.ResultOK {
		return res
	}
	h.Remove(key)
	return hostabi.ResultOK
}

func (c *HTTPContext) GetHeaderMapPairs(mt hostabi.HeaderMapType) ([][2]string, hostabi.Result) {
	h, res := c.headerMap(mt)
	if res != hostabi.ResultOK {
		return nil, res
	}
	return h.Pairs(), hostabi.ResultOK
}

func (c *HTTPContext) SetHeaderMapPairs(mt hostabi.HeaderMapType, pairs [][2]string) hostabi.Result {
	h, res := c.headerMap(mt)
	if res != hostabi.ResultOK {
		return res
	}
	h.SetAll(pairs)
	return hostabi.ResultOK
}

// SendLocalResponse captures an immediate response. Valid only during a
// headers phase. The recorded response wins over any header-map mutations
// the plugin makes afterwards in the same phase.
func (c *HTTPContext) SendLocalResponse(statusCode uint32, body []byte, headers [][2]string, grpcStatus int32, details string) hostabi.Result {
	if t := phaseTable[c.phase]; !t.headers {
		return hostabi.ResultBadArgument
	}
	hdrs := &Headers{}
	for _, p := range headers {
		hdrs.Set(p[0], p[1])
	}
	c.result.Immediate = true
	c.result.HTTPCode = statusCode
	c.result.Body = append([]byte(nil), body...)
	c.result.GRPCCode = grpcStatus
	c.result.Details = details
	c.result.Headers = hdrs
	return hostabi.ResultOK
}
