// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package framework

import "github.com/wasmkit/filtertest/hostabi"

// Buffer holds one body chunk (or the plugin configuration) presented to a
// plugin. Copies are bounds checked the way a real host must check guest
// requests: a range ending past the current size is an invalid memory
// access, never a clamp.
type Buffer struct {
	data []byte
}

var _ hostabi.Buffer = (*Buffer)(nil)

// NewBuffer returns a buffer owning a copy of data.
func NewBuffer(data []byte) *Buffer {
	b := &Buffer{}
	b.Set(data)
	return b
}

func (b *Buffer) Size() int { return len(b.data) }

func (b *Buffer) CopyOut(start, length uint64) ([]byte, hostabi.Result) {
	if start+length > uint64(len(b.data)) {
		return nil, hostabi.ResultInvalidMemoryAccess
	}
	out := make([]byte, length)
	copy(out, b.data[start:start+length])
	return out, hostabi.ResultOK
}

func (b *Buffer) CopyIn(start, length uint64, data []byte) hostabi.Result {
	if start+length > uint64(len(b.data)) {
		return hostabi.ResultInvalidMemoryAccess
	}
	spliced := make([]byte, 0, uint64(len(b.data))-length+uint64(len(data)))
	spliced = append(spliced, b.data[:start]...)
	spliced = append(spliced, data...)
	spliced = append(spliced, b.data[start+length:]...)
	b.data = spliced
	return hostabi.ResultOK
}

// Set replaces the buffer contents with a copy of data.
func (b *Buffer) Set(data []byte) {
	b.data = append(b.data[:0:0], data...)
}

// Release returns the current contents and empties the buffer.
func (b *Buffer) Release() []byte {
	out := b.data
	b.data = nil
	return out
}

// Clear empties the buffer.
func (b *Buffer) Clear() { b.data = nil }

// Bytes exposes the contents for inspection by tests.
func (b *Buffer) Bytes() []byte { return b.data }
