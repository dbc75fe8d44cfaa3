// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"fmt"
	"os"

	re2 "github.com/wasilibs/go-re2"

	"github.com/wasmkit/filtertest/config"
)

// stringMatcher is one compiled assertion from a matcher spec. Regex
// patterns are anchored so the whole candidate must match, the same contract
// native hosts apply to safe-regex matchers.
type stringMatcher struct {
	spec  config.StringMatcherSpec
	exact string
	re    *re2.Regexp
}

func (s *session) newMatcher(spec config.StringMatcherSpec) (*stringMatcher, error) {
	m := &stringMatcher{spec: spec}
	switch {
	case spec.Exact != nil:
		m.exact = *spec.Exact
	case spec.File != nil:
		data, err := os.ReadFile(s.resolve(*spec.File))
		if err != nil {
			return nil, fmt.Errorf("reading matcher file: %w", err)
		}
		m.exact = string(data)
	case spec.Regex != nil:
		re, err := re2.Compile(`\A(?:` + *spec.Regex + `)\z`)
		if err != nil {
			return nil, fmt.Errorf("compiling matcher regex: %w", err)
		}
		m.re = re
	}
	return m, nil
}

func (m *stringMatcher) matches(candidate string) bool {
	if m.re != nil {
		return m.re.MatchString(candidate)
	}
	return candidate == m.exact
}

func (m *stringMatcher) String() string {
	switch {
	case m.spec.Regex != nil:
		return fmt.Sprintf("regex %q", *m.spec.Regex)
	case m.spec.File != nil:
		return fmt.Sprintf("file %q", *m.spec.File)
	default:
		return fmt.Sprintf("exact %q", m.exact)
	}
}

// checkAny applies the matcher to a candidate list: without invert at least
// one candidate must match, with invert none may. An empty string is the
// verdict for success, otherwise a description of the mismatch.
func (m *stringMatcher) checkAny(what string, candidates []string) string {
	matched := false
	for _, c := range candidates {
		if m.matches(c) {
			matched = true
			break
		}
	}
	if m.spec.Invert {
		if matched {
			return fmt.Sprintf("found %s matching %s, expected none in %q", what, m, candidates)
		}
		return ""
	}
	if !matched {
		return fmt.Sprintf("no %s matching %s in %q", what, m, candidates)
	}
	return ""
}
