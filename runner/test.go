// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"github.com/wasmkit/filtertest/config"
	"github.com/wasmkit/filtertest/framework"
)

// exchange is a test's inputs materialized up front, so a bad input fails
// the test before any plugin code runs.
type exchange struct {
	requestHeaders  *framework.Headers
	responseHeaders *framework.Headers
	requestBodies   [][]byte
	responseBodies  [][]byte
}

func (s *session) loadExchange(t *config.Test) (*exchange, error) {
	ex := &exchange{}
	var err error
	if t.RequestHeaders != nil {
		if ex.requestHeaders, err = s.loadHeaders(&t.RequestHeaders.Input, false); err != nil {
			return nil, err
		}
	}
	if t.ResponseHeaders != nil {
		if ex.responseHeaders, err = s.loadHeaders(&t.ResponseHeaders.Input, true); err != nil {
			return nil, err
		}
	}
	for i := range t.RequestBody {
		body, err := s.loadBody(&t.RequestBody[i].Input)
		if err != nil {
			return nil, err
		}
		ex.requestBodies = append(ex.requestBodies, body)
	}
	for i := range t.ResponseBody {
		body, err := s.loadBody(&t.ResponseBody[i].Input)
		if err != nil {
			return nil, err
		}
		ex.responseBodies = append(ex.responseBodies, body)
	}
	return ex, nil
}

// runTest drives one full exchange through a fresh plugin instance and
// returns the accumulated failures. An empty slice is a pass.
func (s *session) runTest(t *config.Test) []failure {
	var fails []failure

	ex, err := s.loadExchange(t)
	if err != nil {
		return []failure{failf("setup", "%v", err)}
	}

	opts := s.options(false)
	root := framework.NewRootContext(opts, s.pluginConfig)
	plugin, err := s.eng.NewPlugin(s.code, root)
	if err != nil {
		return []failure{failf("plugin_init", "loading plugin: %v", err)}
	}
	defer plugin.Close()

	if err := plugin.Start(); err != nil {
		return []failure{failf("plugin_init", "starting plugin: %v", err)}
	}
	if err := plugin.Configure(); err != nil {
		return []failure{failf("plugin_init", "configuring plugin: %v", err)}
	}
	fails = append(fails, s.checkSideEffects("plugin_init", &t.PluginInit, root.PhaseLogs())...)

	ctx, err := framework.NewHTTPContext(plugin, opts, s.pluginConfig)
	if err != nil {
		// Stream creation trapped; the VM is gone, so no teardown.
		return append(fails, failf("stream_init", "%v", err))
	}
	fails = append(fails, s.checkSideEffects("stream_init", &t.StreamInit, ctx.PhaseLogs())...)

	// Once the plugin short-circuits with an immediate response, the
	// exchange is over: any later configured phase is reported, not run.
	ended := false

	runHeaders := func(phase string, inv *config.Invocation, hdrs *framework.Headers,
		send func(*framework.Headers) framework.Result) bool {
		if inv == nil {
			return true
		}
		if ended {
			fails = append(fails, failf(phase, "phase not delivered: immediate response already sent"))
			return true
		}
		res := send(hdrs)
		if plugin.Failed() {
			fails = append(fails, failf(phase, "plugin failed: %s; logs: %q",
				plugin.FailureReason(), ctx.PhaseLogs()))
			return false
		}
		fails = append(fails, s.checkPhase(phase, &inv.Result, &res, ctx.PhaseLogs())...)
		ended = res.Immediate
		return true
	}

	runBodies := func(phase string, invs []config.Invocation, bodies [][]byte,
		send func([]byte, bool) framework.Result) bool {
		for i := range invs {
			if ended {
				fails = append(fails, failf(phase, "phase not delivered: immediate response already sent"))
				continue
			}
			chunks := chunkBody(bodies[i], t.NumChunks, t.ChunkSize)
			// Non-nil even when the plugin strips the body entirely, so the
			// checks can tell an empty body from a phase without one.
			outBody := []byte{}
			var outLogs []string
			var res framework.Result
			for ci, chunk := range chunks {
				eos := i == len(invs)-1 && ci == len(chunks)-1
				res = send(chunk, eos)
				if plugin.Failed() {
					outLogs = append(outLogs, ctx.PhaseLogs()...)
					fails = append(fails, failf(phase, "plugin failed: %s; logs: %q",
						plugin.FailureReason(), outLogs))
					return false
				}
				outBody = append(outBody, res.Body...)
				outLogs = append(outLogs, ctx.PhaseLogs()...)
			}
			// Checks see the reassembled output and the logs of every chunk.
			res.Body = outBody
			fails = append(fails, s.checkPhase(phase, &invs[i].Result, &res, outLogs)...)
		}
		return true
	}

	ok := runHeaders("request_headers", t.RequestHeaders, ex.requestHeaders, ctx.SendRequestHeaders) &&
		runBodies("request_body", t.RequestBody, ex.requestBodies, ctx.SendRequestBody) &&
		runHeaders("response_headers", t.ResponseHeaders, ex.responseHeaders, ctx.SendResponseHeaders) &&
		runBodies("response_body", t.ResponseBody, ex.responseBodies, ctx.SendResponseBody)
	if !ok {
		return fails
	}

	ctx.TearDown()
	if plugin.Failed() {
		return append(fails, failf("stream_destroy", "plugin failed: %s", plugin.FailureReason()))
	}
	fails = append(fails, s.checkSideEffects("stream_destroy", &t.StreamDestroy, ctx.PhaseLogs())...)

	if err := plugin.Shutdown(); err != nil {
		fails = append(fails, failf("stream_destroy", "shutting down plugin: %v", err))
	}
	return fails
}
