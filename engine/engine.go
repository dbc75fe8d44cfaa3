// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine defines the seam between the harness and a WebAssembly
// runtime. The harness treats the runtime as a black box: it loads plugin
// bytes, drives lifecycle and phase callbacks, and everything the plugin
// wants from its environment flows back through the hostabi interfaces.
package engine

import (
	"sort"
	"sync"

	"github.com/wasmkit/filtertest/hostabi"
)

// Engine creates plugin instances from compiled module bytes.
type Engine interface {
	Name() string
	// NewPlugin loads code into a fresh VM bound to the given root host.
	// The returned plugin is not yet started.
	NewPlugin(code []byte, host hostabi.Host) (Plugin, error)
}

// Plugin is one loaded VM plus its root context. Start and Configure must be
// called, in that order, before streams are created. Recreating the root
// context (another Start) requires a prior Shutdown.
type Plugin interface {
	// Start creates the root context and runs the VM start callback.
	Start() error
	// Configure delivers the plugin configuration to the root context.
	Configure() error
	// Shutdown tears the root context down.
	Shutdown() error
	// NewStream creates a stream context bound to the given stream host.
	NewStream(host hostabi.StreamHost) (Stream, error)
	// Failed reports whether the VM has trapped or panicked. Once failed, a
	// plugin must not be invoked further.
	Failed() bool
	// FailureReason describes the failure, or is empty.
	FailureReason() string
	// Close releases the VM. The plugin is unusable afterwards.
	Close() error
}

// Stream is one HTTP stream context inside a plugin.
type Stream interface {
	OnRequestHeaders(numHeaders int, endOfStream bool) (hostabi.FilterHeadersStatus, error)
	OnRequestBody(bodySize int, endOfStream bool) (hostabi.FilterDataStatus, error)
	OnResponseHeaders(numHeaders int, endOfStream bool) (hostabi.FilterHeadersStatus, error)
	OnResponseBody(bodySize int, endOfStream bool) (hostabi.FilterDataStatus, error)
	// Close runs the stream teardown callbacks (log, done, delete).
	Close() error
}

var (
	mu       sync.Mutex
	registry = map[string]Engine{}
)

// Register makes an engine available to Engines and Lookup. Later
// registrations under the same name win.
func Register(e Engine) {
	mu.Lock()
	defer mu.Unlock()
	registry[e.Name()] = e
}

// Engines returns all registered engines in name order.
func Engines() []Engine {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Engine, 0, len(names))
	for _, name := range names {
		out = append(out, registry[name])
	}
	return out
}

// Lookup returns the engine registered under name, if any.
func Lookup(name string) (Engine, bool) {
	mu.Lock()
	defer mu.Unlock()
	e, ok := registry[name]
	return e, ok
}
