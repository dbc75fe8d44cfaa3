// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package framework

import "strings"

type headerEntry struct {
	key   string // case of first occurrence
	value string
}

// Headers is a test-only approximation of an HTTP header map: keys compare
// case-insensitively, distinct keys keep first-seen insertion order, and
// repeated adds coalesce values with ", " (RFC 9110 field order). It is
// missing at least cookie handling, restricted header checks and size checks.
type Headers struct {
	entries []headerEntry
}

// NewHeaders builds a map from pairs, coalescing repeats in order.
func NewHeaders(pairs [][2]string) *Headers {
	h := &Headers{}
	for _, p := range pairs {
		h.Add(p[0], p[1])
	}
	return h
}

func (h *Headers) find(key string) int {
	for i := range h.entries {
		if strings.EqualFold(h.entries[i].key, key) {
			return i
		}
	}
	return -1
}

// Add appends value under key, coalescing with any existing value.
func (h *Headers) Add(key, value string) {
	if i := h.find(key); i >= 0 {
		if h.entries[i].value == "" {
			h.entries[i].value = value
		} else {
			h.entries[i].value += ", " + value
		}
		return
	}
	h.entries = append(h.entries, headerEntry{key: key, value: value})
}

// Set replaces the value under key, inserting if absent.
func (h *Headers) Set(key, value string) {
	if i := h.find(key); i >= 0 {
		h.entries[i].value = value
		return
	}
	h.entries = append(h.entries, headerEntry{key: key, value: value})
}

// Get returns the value under key.
func (h *Headers) Get(key string) (string, bool) {
	if i := h.find(key); i >= 0 {
		return h.entries[i].value, true
	}
	return "", false
}

// Remove deletes the entry under key, if present.
func (h *Headers) Remove(key string) {
	if i := h.find(key); i >= 0 {
		h.entries = append(h.entries[:i], h.entries[i+1:]...)
	}
}

// Len returns the number of distinct keys.
func (h *Headers) Len() int { return len(h.entries) }

// Pairs returns all entries in insertion order.
func (h *Headers) Pairs() [][2]string {
	out := make([][2]string, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, [2]string{e.key, e.value})
	}
	return out
}

// SetAll replaces the whole map with pairs, coalescing repeats.
func (h *Headers) SetAll(pairs [][2]string) {
	h.entries = h.entries[:0]
	for _, p := range pairs {
		h.Add(p[0], p[1])
	}
}

// Clone returns an independent copy.
func (h *Headers) Clone() *Headers {
	return &Headers{entries: append([]headerEntry(nil), h.entries...)}
}

// Lines serializes entries as "key: value" strings in insertion order.
func (h *Headers) Lines() []string {
	out := make([]string, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, e.key+": "+e.value)
	}
	return out
}
