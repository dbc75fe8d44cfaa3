// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"fmt"

	"github.com/wasmkit/filtertest/config"
	"github.com/wasmkit/filtertest/framework"
)

// failure is one soft verdict. A test accumulates failures and keeps going;
// only a VM failure aborts the exchange.
type failure struct {
	phase string
	msg   string
}

func failf(phase, format string, args ...any) failure {
	return failure{phase: phase, msg: fmt.Sprintf(format, args...)}
}

// checkPhase applies a phase expectation to the phase's result and captured
// logs. When the plugin short-circuited, the header and body checks apply to
// the immediate response it built.
func (s *session) checkPhase(phase string, exp *config.Expectation, res *framework.Result, logs []string) []failure {
	var fails []failure

	if res.Immediate && exp.Immediate == nil {
		fails = append(fails, failf(phase, "unexpected immediate response (status %d, details %q)", res.HTTPCode, res.Details))
	}
	// The continuation status and the recorded http code must each agree
	// with the expectation, in both directions. A plugin that builds a local
	// response but still continues the filter chain is a bug worth flagging.
	if (exp.Immediate != nil) == res.HeaderStatus.IsContinue() {
		if exp.Immediate != nil {
			fails = append(fails, failf(phase, "expected an immediate response, filter status %v continues", res.HeaderStatus))
		} else {
			fails = append(fails, failf(phase, "expected no immediate response, filter status %v stops", res.HeaderStatus))
		}
	}
	if (exp.Immediate != nil) == (res.HTTPCode == 0) {
		if exp.Immediate != nil {
			fails = append(fails, failf(phase, "expected an immediate response, no http code was recorded"))
		} else {
			fails = append(fails, failf(phase, "expected no immediate response, http code is %d", res.HTTPCode))
		}
	}
	if exp.Immediate != nil && res.Immediate {
		imm := exp.Immediate
		if imm.HTTPStatus != nil && *imm.HTTPStatus != res.HTTPCode {
			fails = append(fails, failf(phase, "immediate http status %d, want %d", res.HTTPCode, *imm.HTTPStatus))
		}
		if imm.GRPCStatus != nil && *imm.GRPCStatus != res.GRPCCode {
			fails = append(fails, failf(phase, "immediate grpc status %d, want %d", res.GRPCCode, *imm.GRPCStatus))
		}
		if imm.Details != nil && *imm.Details != res.Details {
			fails = append(fails, failf(phase, "immediate details %q, want %q", res.Details, *imm.Details))
		}
	}

	if len(exp.HasHeaders) > 0 || len(exp.NoHeaders) > 0 || len(exp.Headers) > 0 {
		if res.Headers == nil {
			fails = append(fails, failf(phase, "header expectations need a header map, none was produced"))
		} else {
			for _, want := range exp.HasHeaders {
				got, ok := res.Headers.Get(want.Key)
				if !ok {
					fails = append(fails, failf(phase, "header %q missing", want.Key))
				} else if got != want.Value {
					fails = append(fails, failf(phase, "header %q is %q, want %q", want.Key, got, want.Value))
				}
			}
			for _, want := range exp.NoHeaders {
				if got, ok := res.Headers.Get(want.Key); ok {
					fails = append(fails, failf(phase, "header %q present with %q, want absent", want.Key, got))
				}
			}
			fails = append(fails, s.checkMatchers(phase, "header line", exp.Headers, res.Headers.Lines())...)
		}
	}

	if len(exp.Body) > 0 {
		if res.Body == nil && !res.Immediate {
			fails = append(fails, failf(phase, "body expectations need a body, none was produced"))
		} else {
			fails = append(fails, s.checkMatchers(phase, "body", exp.Body, []string{string(res.Body)})...)
		}
	}
	fails = append(fails, s.checkMatchers(phase, "log line", exp.Logs, logs)...)
	return fails
}

// checkSideEffects is the lifecycle-phase variant: only log expectations
// apply to plugin init, stream init and stream destroy.
func (s *session) checkSideEffects(phase string, exp *config.Expectation, logs []string) []failure {
	var fails []failure
	if len(exp.HasHeaders) > 0 || len(exp.NoHeaders) > 0 || len(exp.Headers) > 0 ||
		len(exp.Body) > 0 || exp.Immediate != nil {
		fails = append(fails, failf(phase, "only log expectations apply to this phase"))
	}
	fails = append(fails, s.checkMatchers(phase, "log line", exp.Logs, logs)...)
	return fails
}

func (s *session) checkMatchers(phase, what string, specs []config.StringMatcherSpec, candidates []string) []failure {
	var fails []failure
	for _, spec := range specs {
		m, err := s.newMatcher(spec)
		if err != nil {
			fails = append(fails, failf(phase, "%v", err))
			continue
		}
		if msg := m.checkAny(what, candidates); msg != "" {
			fails = append(fails, failure{phase: phase, msg: msg})
		}
	}
	return fails
}
