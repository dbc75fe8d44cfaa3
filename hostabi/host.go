// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package hostabi

// Buffer is one addressable byte buffer (a body chunk, or configuration
// bytes). Copy operations are bounds checked: a range whose end exceeds the
// current size fails with ResultInvalidMemoryAccess rather than clamping.
type Buffer interface {
	Size() int
	// CopyOut returns length bytes starting at start.
	CopyOut(start, length uint64) ([]byte, Result)
	// CopyIn splices data over the range [start, start+length), which must
	// lie within the buffer. The buffer may grow or shrink as a result.
	CopyIn(start, length uint64, data []byte) Result
}

// Host is the operation set available to a plugin at VM and root scope.
type Host interface {
	// Log records a plugin log line, subject to the host's minimum level.
	Log(level LogLevel, message string) Result
	CurrentTimeNanos() uint64
	MonotonicTimeNanos() uint64
	// GetBuffer returns the buffer of the given type, or nil if the buffer
	// is not exposed in the current scope or phase.
	GetBuffer(bt BufferType) Buffer
}

// StreamHost extends Host with the per-stream operations: header map access
// scoped to the active phase, and the immediate-response short circuit.
// Header map calls for a map type other than the active phase's fail with
// ResultBadArgument.
type StreamHost interface {
	Host

	GetHeaderMapSize(mt HeaderMapType) (uint32, Result)
	GetHeaderMapValue(mt HeaderMapType, key string) (string, Result)
	AddHeaderMapValue(mt HeaderMapType, key, value string) Result
	ReplaceHeaderMapValue(mt HeaderMapType, key, value string) Result
	RemoveHeaderMapValue(mt HeaderMapType, key string) Result
	GetHeaderMapPairs(mt HeaderMapType) ([][2]string, Result)
	SetHeaderMapPairs(mt HeaderMapType, pairs [][2]string) Result

	// SendLocalResponse records an immediate response ending the exchange.
	// Valid only while a headers phase is executing.
	SendLocalResponse(statusCode uint32, body []byte, headers [][2]string, grpcStatus int32, details string) Result
}
