// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// LoadSuite reads and validates a suite document. JSON and YAML forms are
// supported, selected by extension with a JSON sniff as fallback.
func LoadSuite(path string) (*TestSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading test suite: %w", err)
	}
	var suite *TestSuite
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		suite, err = parseJSONSuite(data)
	case ".yaml", ".yml":
		suite, err = parseYAMLSuite(data)
	default:
		if gjson.ValidBytes(bytes.TrimSpace(data)) {
			suite, err = parseJSONSuite(data)
		} else {
			suite, err = parseYAMLSuite(data)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := Validate(suite); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return suite, nil
}

func parseYAMLSuite(data []byte) (*TestSuite, error) {
	var s TestSuite
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func parseJSONSuite(data []byte) (*TestSuite, error) {
	data = bytes.TrimSpace(data)
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json")
	}
	doc := gjson.ParseBytes(data)
	s := &TestSuite{}
	if err := parseEnv(doc.Get("env"), &s.Env); err != nil {
		return nil, err
	}
	var ferr error
	doc.Get("test").ForEach(func(_, tj gjson.Result) bool {
		t, err := parseTest(tj)
		if err != nil {
			ferr = err
			return false
		}
		s.Tests = append(s.Tests, t)
		return true
	})
	if ferr != nil {
		return nil, ferr
	}
	return s, nil
}

func parseEnv(j gjson.Result, env *Env) error {
	env.WasmPath = j.Get("wasm_path").String()
	env.ConfigPath = j.Get("config_path").String()
	env.LogFile = j.Get("log_file").String()
	env.ClockTimeNanos = j.Get("clock_time_nanos").Uint()
	env.NumAdditionalStreams = int(j.Get("num_additional_streams").Int())
	env.NumStreamAdvances = int(j.Get("stream_advance_rate").Int())
	level, err := ParseLogLevel(j.Get("min_log_level").String())
	if err != nil {
		return fmt.Errorf("env: %w", err)
	}
	env.MinLogLevel = level
	return nil
}

func parseTest(j gjson.Result) (Test, error) {
	t := Test{
		Name:      j.Get("name").String(),
		Benchmark: j.Get("benchmark").Bool(),
		NumChunks: int(j.Get("num_chunks").Int()),
		ChunkSize: int(j.Get("chunk_size").Int()),
	}
	t.PluginInit = parseExpectation(j.Get("plugin_init"))
	t.StreamInit = parseExpectation(j.Get("stream_init"))
	t.StreamDestroy = parseExpectation(j.Get("stream_destroy"))
	if inv := j.Get("request_headers"); inv.Exists() {
		v := parseInvocation(inv)
		t.RequestHeaders = &v
	}
	if inv := j.Get("response_headers"); inv.Exists() {
		v := parseInvocation(inv)
		t.ResponseHeaders = &v
	}
	j.Get("request_body").ForEach(func(_, inv gjson.Result) bool {
		t.RequestBody = append(t.RequestBody, parseInvocation(inv))
		return true
	})
	j.Get("response_body").ForEach(func(_, inv gjson.Result) bool {
		t.ResponseBody = append(t.ResponseBody, parseInvocation(inv))
		return true
	})
	return t, nil
}

func parseInvocation(j gjson.Result) Invocation {
	inv := Invocation{}
	input := j.Get("input")
	input.Get("header").ForEach(func(_, h gjson.Result) bool {
		inv.Input.Headers = append(inv.Input.Headers, Header{
			Key:   h.Get("key").String(),
			Value: h.Get("value").String(),
		})
		return true
	})
	if c := input.Get("content"); c.Exists() {
		s := c.String()
		inv.Input.Content = &s
	}
	inv.Input.File = input.Get("file").String()
	inv.Result = parseExpectation(j.Get("result"))
	return inv
}

func parseExpectation(j gjson.Result) Expectation {
	e := Expectation{}
	if !j.Exists() {
		return e
	}
	j.Get("has_header").ForEach(func(_, h gjson.Result) bool {
		e.HasHeaders = append(e.HasHeaders, Header{
			Key:   h.Get("key").String(),
			Value: h.Get("value").String(),
		})
		return true
	})
	j.Get("no_header").ForEach(func(_, h gjson.Result) bool {
		e.NoHeaders = append(e.NoHeaders, Header{Key: h.Get("key").String()})
		return true
	})
	e.Headers = parseMatchers(j.Get("headers"))
	e.Body = parseMatchers(j.Get("body"))
	e.Logs = parseMatchers(j.Get("log"))
	if imm := j.Get("immediate"); imm.Exists() {
		i := &Immediate{}
		if v := imm.Get("http_status"); v.Exists() {
			u := uint32(v.Uint())
			i.HTTPStatus = &u
		}
		if v := imm.Get("grpc_status"); v.Exists() {
			g := int32(v.Int())
			i.GRPCStatus = &g
		}
		if v := imm.Get("details"); v.Exists() {
			d := v.String()
			i.Details = &d
		}
		e.Immediate = i
	}
	return e
}

func parseMatchers(j gjson.Result) []StringMatcherSpec {
	var out []StringMatcherSpec
	j.ForEach(func(_, m gjson.Result) bool {
		spec := StringMatcherSpec{Invert: m.Get("invert").Bool()}
		if v := m.Get("exact"); v.Exists() {
			s := v.String()
			spec.Exact = &s
		}
		if v := m.Get("regex"); v.Exists() {
			s := v.String()
			spec.Regex = &s
		}
		if v := m.Get("file"); v.Exists() {
			s := v.String()
			spec.File = &s
		}
		out = append(out, spec)
		return true
	})
	return out
}
