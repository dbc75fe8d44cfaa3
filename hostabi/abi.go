// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostabi holds the host-side view of the proxy-wasm ABI: the numeric
// enums shared between host and guest, and the narrow interfaces a simulated
// host must implement. The values mirror the proxy-wasm spec and must not be
// reordered.
package hostabi

import "fmt"

// LogLevel is the severity attached to a plugin log call.
type LogLevel uint32

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelCritical
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "trace"
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	case LogLevelCritical:
		return "critical"
	}
	return fmt.Sprintf("level(%d)", uint32(l))
}

// Result is the status code host calls return to the guest.
type Result uint32

const (
	ResultOK                  Result = 0
	ResultNotFound            Result = 1
	ResultBadArgument         Result = 2
	ResultInvalidMemoryAccess Result = 6
	ResultEmpty               Result = 7
	ResultInternalFailure     Result = 10
	ResultUnimplemented       Result = 12
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultNotFound:
		return "not found"
	case ResultBadArgument:
		return "bad argument"
	case ResultInvalidMemoryAccess:
		return "invalid memory access"
	case ResultEmpty:
		return "empty"
	case ResultInternalFailure:
		return "internal failure"
	case ResultUnimplemented:
		return "unimplemented"
	}
	return fmt.Sprintf("result(%d)", uint32(r))
}

// FilterHeadersStatus is the continuation status a guest returns from a
// headers callback.
type FilterHeadersStatus uint32

const (
	HeadersContinue             FilterHeadersStatus = 0
	HeadersStopIteration        FilterHeadersStatus = 1
	HeadersContinueAndEndStream FilterHeadersStatus = 2
	HeadersStopAllAndBuffer     FilterHeadersStatus = 3
	HeadersStopAllAndWatermark  FilterHeadersStatus = 4
)

// IsContinue reports whether the exchange proceeds past this callback.
func (s FilterHeadersStatus) IsContinue() bool {
	return s == HeadersContinue || s == HeadersContinueAndEndStream
}

func (s FilterHeadersStatus) String() string {
	switch s {
	case HeadersContinue:
		return "Continue"
	case HeadersStopIteration:
		return "StopIteration"
	case HeadersContinueAndEndStream:
		return "ContinueAndEndStream"
	case HeadersStopAllAndBuffer:
		return "StopAllIterationAndBuffer"
	case HeadersStopAllAndWatermark:
		return "StopAllIterationAndWatermark"
	}
	return fmt.Sprintf("FilterHeadersStatus(%d)", uint32(s))
}

// FilterDataStatus is the continuation status a guest returns from a body
// callback.
type FilterDataStatus uint32

const (
	DataContinue               FilterDataStatus = 0
	DataStopIterationAndBuffer FilterDataStatus = 1
	DataStopIterationWatermark FilterDataStatus = 2
	DataStopIterationNoBuffer  FilterDataStatus = 3
)

func (s FilterDataStatus) String() string {
	switch s {
	case DataContinue:
		return "Continue"
	case DataStopIterationAndBuffer:
		return "StopIterationAndBuffer"
	case DataStopIterationWatermark:
		return "StopIterationAndWatermark"
	case DataStopIterationNoBuffer:
		return "StopIterationNoBuffer"
	}
	return fmt.Sprintf("FilterDataStatus(%d)", uint32(s))
}

// BufferType selects which buffer a guest is addressing.
type BufferType uint32

const (
	BufferTypeHTTPRequestBody     BufferType = 0
	BufferTypeHTTPResponseBody    BufferType = 1
	BufferTypeVMConfiguration     BufferType = 6
	BufferTypePluginConfiguration BufferType = 7
)

// HeaderMapType selects which header map a guest is addressing.
type HeaderMapType uint32

const (
	HeaderMapTypeRequestHeaders   HeaderMapType = 0
	HeaderMapTypeRequestTrailers  HeaderMapType = 1
	HeaderMapTypeResponseHeaders  HeaderMapType = 2
	HeaderMapTypeResponseTrailers HeaderMapType = 3
)
