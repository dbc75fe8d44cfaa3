// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmkit/filtertest/hostabi"
)

type fakeEngine struct{ name string }

func (f *fakeEngine) Name() string { return f.name }
func (f *fakeEngine) NewPlugin([]byte, hostabi.Host) (Plugin, error) {
	return nil, nil
}

func TestRegistryOrderingAndLookup(t *testing.T) {
	Register(&fakeEngine{name: "zeta"})
	Register(&fakeEngine{name: "alpha"})

	var names []string
	for _, e := range Engines() {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"alpha", "zeta"}, names)

	e, ok := Lookup("zeta")
	require.True(t, ok)
	assert.Equal(t, "zeta", e.Name())

	_, ok = Lookup("missing")
	assert.False(t, ok)
}

func TestRegisterLastWins(t *testing.T) {
	first := &fakeEngine{name: "dup"}
	second := &fakeEngine{name: "dup"}
	Register(first)
	Register(second)

	e, ok := Lookup("dup")
	require.True(t, ok)
	assert.Same(t, second, e)
}
