// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package hostabi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHeaderMapLayout(t *testing.T) {
	data := EncodeHeaderMap([][2]string{{":path", "/"}, {"a", "bc"}})

	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(data))
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(data[4:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[8:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[12:]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[16:]))
	assert.Equal(t, []byte(":path\x00/\x00a\x00bc\x00"), data[20:])
}

func TestDecodeHeaderMap(t *testing.T) {
	pairs := [][2]string{{":method", "GET"}, {"empty", ""}, {"x", "y"}}
	decoded, res := DecodeHeaderMap(EncodeHeaderMap(pairs))
	require.Equal(t, ResultOK, res)
	assert.Equal(t, pairs, decoded)
}

func TestDecodeHeaderMapMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "short count", data: []byte{1, 0}},
		{name: "truncated lengths", data: []byte{2, 0, 0, 0, 1, 0, 0, 0}},
		{name: "truncated payload", data: append([]byte{1, 0, 0, 0, 5, 0, 0, 0, 5, 0, 0, 0}, 'a')},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, res := DecodeHeaderMap(tc.data)
			assert.Equal(t, ResultBadArgument, res)
		})
	}
}

func TestDecodeHeaderMapEmpty(t *testing.T) {
	decoded, res := DecodeHeaderMap(EncodeHeaderMap(nil))
	require.Equal(t, ResultOK, res)
	assert.Empty(t, decoded)
}
