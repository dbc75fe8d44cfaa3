// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package hostabi

import "encoding/binary"

// Header maps cross the wasm boundary in the proxy-wasm serialized form:
// a little-endian u32 pair count, then u32 key/value lengths for every pair,
// then NUL-terminated key and value bytes in the same order.

// EncodeHeaderMap serializes pairs for handoff to a guest.
func EncodeHeaderMap(pairs [][2]string) []byte {
	size := 4
	for _, p := range pairs {
		size += 8 + len(p[0]) + len(p[1]) + 2
	}
	out := make([]byte, size)
	binary.LittleEndian.PutUint32(out, uint32(len(pairs)))
	off := 4
	for _, p := range pairs {
		binary.LittleEndian.PutUint32(out[off:], uint32(len(p[0])))
		binary.LittleEndian.PutUint32(out[off+4:], uint32(len(p[1])))
		off += 8
	}
	for _, p := range pairs {
		off += copy(out[off:], p[0])
		out[off] = 0
		off++
		off += copy(out[off:], p[1])
		out[off] = 0
		off++
	}
	return out
}

// DecodeHeaderMap parses the serialized form received from a guest.
func DecodeHeaderMap(data []byte) ([][2]string, Result) {
	if len(data) < 4 {
		return nil, ResultBadArgument
	}
	count := int(binary.LittleEndian.Uint32(data))
	off := 4
	if len(data) < off+count*8 {
		return nil, ResultBadArgument
	}
	lens := make([][2]int, count)
	for i := 0; i < count; i++ {
		lens[i][0] = int(binary.LittleEndian.Uint32(data[off:]))
		lens[i][1] = int(binary.LittleEndian.Uint32(data[off+4:]))
		off += 8
	}
	pairs := make([][2]string, 0, count)
	for i := 0; i < count; i++ {
		end := off + lens[i][0] + lens[i][1] + 2
		if end > len(data) {
			return nil, ResultBadArgument
		}
		key := string(data[off : off+lens[i][0]])
		val := string(data[off+lens[i][0]+1 : end-1])
		pairs = append(pairs, [2]string{key, val})
		off = end
	}
	return pairs, ResultOK
}
