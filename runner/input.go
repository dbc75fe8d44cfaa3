// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"fmt"
	"os"
	"strings"

	"github.com/wasmkit/filtertest/config"
	"github.com/wasmkit/filtertest/framework"
)

func (s *session) inputData(in *config.Input) ([]byte, error) {
	if in.Content != nil {
		return []byte(*in.Content), nil
	}
	data, err := os.ReadFile(s.resolve(in.File))
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	return data, nil
}

// loadHeaders materializes a headers-phase input. Explicit key/value lists
// pass through; raw content is parsed as an HTTP/1 message head, with the
// request or status line mapped onto pseudo-headers.
func (s *session) loadHeaders(in *config.Input, response bool) (*framework.Headers, error) {
	if len(in.Headers) > 0 {
		h := &framework.Headers{}
		for _, p := range in.Headers {
			h.Add(p.Key, p.Value)
		}
		return h, nil
	}
	data, err := s.inputData(in)
	if err != nil {
		return nil, err
	}
	return parseRawHeaders(string(data), response)
}

func parseRawHeaders(raw string, response bool) (*framework.Headers, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	h := &framework.Headers{}
	start := 0
	if len(lines) > 0 {
		first := strings.TrimSpace(lines[0])
		switch {
		case first == "":
		case response:
			// Status line: HTTP/1.1 200 OK
			fields := strings.Fields(first)
			if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
				return nil, fmt.Errorf("malformed status line %q", first)
			}
			h.Add(":status", fields[1])
			start = 1
		case strings.Contains(first, " HTTP/") || !strings.Contains(first, ":"):
			// Request line: GET /path HTTP/1.1
			fields := strings.Fields(first)
			if len(fields) < 2 {
				return nil, fmt.Errorf("malformed request line %q", first)
			}
			h.Add(":method", fields[0])
			h.Add(":path", fields[1])
			start = 1
		}
	}
	for _, line := range lines[start:] {
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		// Pseudo-header keys start with a colon themselves.
		prefix, rest := "", line
		if strings.HasPrefix(line, ":") {
			prefix, rest = ":", line[1:]
		}
		key, value, ok := strings.Cut(rest, ":")
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed header line %q", line)
		}
		key = prefix + strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if strings.EqualFold(key, "Host") {
			h.Add(":authority", value)
			continue
		}
		h.Add(key, value)
	}
	return h, nil
}

func (s *session) loadBody(in *config.Input) ([]byte, error) {
	if len(in.Headers) > 0 {
		return nil, fmt.Errorf("body input requires content or file, not a header list")
	}
	return s.inputData(in)
}
