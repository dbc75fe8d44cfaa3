// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"

	"github.com/rs/zerolog"
)

// newConsoleLogger builds the harness's own logger. It is separate from the
// plugin log capture: plugin lines flow through the suite's log sink, while
// this logger carries verdicts, benchmark results and trace diagnostics.
func newConsoleLogger(out io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: out}).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)
}
