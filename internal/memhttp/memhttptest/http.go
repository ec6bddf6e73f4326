// Copyright 2021-2023 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memhttptest wires memhttp servers into tests.
package memhttptest

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/openmined/serde/internal/memhttp"
)

// NewServer constructs a [memhttp.Server] with defaults suitable for tests:
// it logs runtime errors to the provided testing.TB, and it automatically shuts
// down the server when the test completes. Shutdown errors fail the test.
func NewServer(tb testing.TB, handler http.Handler, opts ...memhttp.Option) *memhttp.Server {
	tb.Helper()
	opts = append([]memhttp.Option{memhttp.WithLogger(NewLogger(tb))}, opts...)
	server := memhttp.NewServer(handler, opts...)
	tb.Cleanup(func() {
		if err := server.Cleanup(); err != nil {
			tb.Error(err)
		}
	})
	return server
}

// NewLogger returns a structured logger that writes through tb.Log, so
// output is attributed to the test and shown only on failure or with -v.
func NewLogger(tb testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(&testWriter{tb}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testWriter is an io.Writer that logs to the testing.TB.
type testWriter struct {
	tb testing.TB
}

func (l *testWriter) Write(p []byte) (int, error) {
	l.tb.Log(string(p))
	return len(p), nil
}
