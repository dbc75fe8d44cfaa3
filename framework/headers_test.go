// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package framework

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersCaseInsensitive(t *testing.T) {
	h := &Headers{}
	h.Add("Content-Type", "text/html")

	for _, key := range []string{"content-type", "CONTENT-TYPE", "Content-Type"} {
		v, ok := h.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, "text/html", v)
	}
}

func TestHeadersAddCoalesces(t *testing.T) {
	h := &Headers{}
	h.Add("Accept", "text/html")
	h.Add("accept", "application/json")

	v, ok := h.Get("accept")
	require.True(t, ok)
	assert.Equal(t, "text/html, application/json", v)
	// First occurrence's case wins.
	assert.Equal(t, [][2]string{{"Accept", "text/html, application/json"}}, h.Pairs())
}

func TestHeadersAddToEmptyValue(t *testing.T) {
	h := &Headers{}
	h.Add("x-marker", "")
	h.Add("X-Marker", "set")

	v, _ := h.Get("x-marker")
	assert.Equal(t, "set", v)
}

func TestHeadersInsertionOrder(t *testing.T) {
	h := &Headers{}
	h.Add(":method", "GET")
	h.Add(":path", "/")
	h.Add("b-later", "2")
	h.Add("a-early", "1")
	h.Set(":method", "POST") // replace must not reorder

	assert.Equal(t, []string{
		":method: POST",
		":path: /",
		"b-later: 2",
		"a-early: 1",
	}, h.Lines())
}

func TestHeadersRemove(t *testing.T) {
	h := NewHeaders([][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}})
	h.Remove("B")

	assert.Equal(t, 2, h.Len())
	_, ok := h.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"a: 1", "c: 3"}, h.Lines())

	h.Remove("missing") // no-op
	assert.Equal(t, 2, h.Len())
}

func TestHeadersSetAll(t *testing.T) {
	h := NewHeaders([][2]string{{"old", "gone"}})
	h.SetAll([][2]string{{"x", "1"}, {"X", "2"}})

	assert.Equal(t, [][2]string{{"x", "1, 2"}}, h.Pairs())
}

func TestHeadersCloneIsIndependent(t *testing.T) {
	h := NewHeaders([][2]string{{"a", "1"}})
	c := h.Clone()
	c.Set("a", "changed")
	c.Add("b", "2")

	v, _ := h.Get("a")
	assert.Equal(t, "1", v)
	assert.Equal(t, 1, h.Len())
}
