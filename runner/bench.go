// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"fmt"
	"testing"

	"github.com/wasmkit/filtertest/config"
	"github.com/wasmkit/filtertest/engine"
	"github.com/wasmkit/filtertest/framework"
)

// Benchmarks force the critical log level so logging cost stays out of the
// measurements, and never assert on results: a VM failure is the only error.

// benchPluginLifecycle measures a full load/start/configure/shutdown cycle.
func (s *session) benchPluginLifecycle() (testing.BenchmarkResult, error) {
	var failErr error
	opts := s.options(true)
	r := testing.Benchmark(func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			root := framework.NewRootContext(opts, s.pluginConfig)
			p, err := s.eng.NewPlugin(s.code, root)
			if err != nil {
				failErr = err
				return
			}
			err = p.Start()
			if err == nil {
				err = p.Configure()
			}
			if err == nil {
				err = p.Shutdown()
			}
			p.Close()
			if err != nil {
				failErr = err
				return
			}
		}
	})
	return r, failErr
}

// benchStreamLifecycle measures stream context create/destroy on one
// long-lived plugin.
func (s *session) benchStreamLifecycle() (testing.BenchmarkResult, error) {
	var failErr error
	opts := s.options(true)
	r := testing.Benchmark(func(b *testing.B) {
		b.StopTimer()
		p, err := s.startPlugin(opts)
		if err != nil {
			failErr = err
			return
		}
		defer p.Close()
		b.StartTimer()
		for i := 0; i < b.N; i++ {
			ctx, err := framework.NewHTTPContext(p, opts, s.pluginConfig)
			if err != nil {
				failErr = err
				return
			}
			ctx.TearDown()
		}
		b.StopTimer()
		failErr = p.Shutdown()
	})
	return r, failErr
}

// benchExchange measures the test's configured exchange end to end. When the
// environment configures additional streams, a pool of concurrent exchanges
// is advanced round-robin, one phase at a time, alongside the measured one.
func (s *session) benchExchange(t *config.Test) (testing.BenchmarkResult, error) {
	ex, err := s.loadExchange(t)
	if err != nil {
		return testing.BenchmarkResult{}, err
	}
	steps := exchangeSteps(t, ex)
	if len(steps) == 0 {
		return testing.BenchmarkResult{}, fmt.Errorf("benchmark %q has no phases to drive", t.Name)
	}

	var failErr error
	opts := s.options(true)
	r := testing.Benchmark(func(b *testing.B) {
		b.StopTimer()
		p, err := s.startPlugin(opts)
		if err != nil {
			failErr = err
			return
		}
		defer p.Close()

		pool := make([]*pooledStream, s.env.NumAdditionalStreams)
		for i := range pool {
			ps, err := newPooledStream(p, opts, s.pluginConfig, steps)
			if err != nil {
				failErr = err
				return
			}
			pool[i] = ps
		}
		advances := s.env.NumStreamAdvances
		if advances == 0 && len(pool) > 0 {
			advances = 1
		}
		next := 0

		// Only the phase deliveries themselves are timed. Stream creation,
		// input copies, teardown and the background pool run off the clock.
		for i := 0; i < b.N; i++ {
			ctx, err := framework.NewHTTPContext(p, opts, s.pluginConfig)
			if err != nil {
				failErr = err
				return
			}
			inputs := make([]*framework.Headers, len(steps))
			for si := range steps {
				if steps[si].headers != nil {
					inputs[si] = steps[si].headers.Clone()
				}
			}
			b.StartTimer()
			for si := range steps {
				steps[si].deliver(ctx, inputs[si])
			}
			b.StopTimer()
			ctx.TearDown()
			for a := 0; a < advances && len(pool) > 0; a++ {
				if err := pool[next].advance(); err != nil {
					failErr = err
					return
				}
				next = (next + 1) % len(pool)
			}
			if p.Failed() {
				failErr = fmt.Errorf("plugin failed: %s", p.FailureReason())
				return
			}
		}
		for _, ps := range pool {
			ps.ctx.TearDown()
		}
		failErr = p.Shutdown()
	})
	return r, failErr
}

func (s *session) startPlugin(opts framework.Options) (engine.Plugin, error) {
	root := framework.NewRootContext(opts, s.pluginConfig)
	p, err := s.eng.NewPlugin(s.code, root)
	if err != nil {
		return nil, err
	}
	if err := p.Start(); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.Configure(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// exchangeStep is one phase delivery. Header steps carry their map as a
// template: plugins mutate the map in place, so every delivery gets a copy,
// and the timed benchmark loop clones them up front with the timer stopped.
type exchangeStep struct {
	headers *framework.Headers // nil for body steps
	deliver func(*framework.HTTPContext, *framework.Headers)
}

// run delivers the step, cloning the header template inline.
func (st *exchangeStep) run(ctx *framework.HTTPContext) {
	var hdrs *framework.Headers
	if st.headers != nil {
		hdrs = st.headers.Clone()
	}
	st.deliver(ctx, hdrs)
}

// exchangeSteps flattens a test's configured phases, chunking included, into
// one delivery per step.
func exchangeSteps(t *config.Test, ex *exchange) []exchangeStep {
	var steps []exchangeStep
	if ex.requestHeaders != nil {
		steps = append(steps, exchangeStep{
			headers: ex.requestHeaders,
			deliver: func(ctx *framework.HTTPContext, hdrs *framework.Headers) {
				ctx.SendRequestHeaders(hdrs)
			},
		})
	}
	addBodies := func(bodies [][]byte, send func(*framework.HTTPContext, []byte, bool) framework.Result) {
		for i, body := range bodies {
			chunks := chunkBody(body, t.NumChunks, t.ChunkSize)
			for ci, chunk := range chunks {
				chunk := chunk
				eos := i == len(bodies)-1 && ci == len(chunks)-1
				steps = append(steps, exchangeStep{
					deliver: func(ctx *framework.HTTPContext, _ *framework.Headers) {
						send(ctx, chunk, eos)
					},
				})
			}
		}
	}
	addBodies(ex.requestBodies, func(ctx *framework.HTTPContext, b []byte, eos bool) framework.Result {
		return ctx.SendRequestBody(b, eos)
	})
	if ex.responseHeaders != nil {
		steps = append(steps, exchangeStep{
			headers: ex.responseHeaders,
			deliver: func(ctx *framework.HTTPContext, hdrs *framework.Headers) {
				ctx.SendResponseHeaders(hdrs)
			},
		})
	}
	addBodies(ex.responseBodies, func(ctx *framework.HTTPContext, b []byte, eos bool) framework.Result {
		return ctx.SendResponseBody(b, eos)
	})
	return steps
}

// pooledStream is one background exchange advanced a phase at a time. When
// it runs out of phases it tears down and starts a fresh stream.
type pooledStream struct {
	plugin       engine.Plugin
	opts         framework.Options
	pluginConfig []byte
	steps        []exchangeStep
	ctx          *framework.HTTPContext
	next         int
}

func newPooledStream(p engine.Plugin, opts framework.Options, pluginConfig []byte, steps []exchangeStep) (*pooledStream, error) {
	ctx, err := framework.NewHTTPContext(p, opts, pluginConfig)
	if err != nil {
		return nil, err
	}
	return &pooledStream{plugin: p, opts: opts, pluginConfig: pluginConfig, steps: steps, ctx: ctx}, nil
}

func (ps *pooledStream) advance() error {
	if ps.next >= len(ps.steps) {
		ps.ctx.TearDown()
		ctx, err := framework.NewHTTPContext(ps.plugin, ps.opts, ps.pluginConfig)
		if err != nil {
			return err
		}
		ps.ctx = ctx
		ps.next = 0
		return nil
	}
	ps.steps[ps.next].run(ps.ctx)
	ps.next++
	if ps.plugin.Failed() {
		return fmt.Errorf("plugin failed: %s", ps.plugin.FailureReason())
	}
	return nil
}
