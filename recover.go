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

package serde

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// callImplementation runs a HandlerFunc, turning a panic into a CodeUnknown
// error so the client gets a coded response instead of a reset stream.
// http.ErrAbortHandler is re-raised: it's how handlers ask net/http to abort.
func callImplementation(
	ctx context.Context,
	logger *slog.Logger,
	implementation HandlerFunc,
	request any,
) (response any, retErr error) {
	defer func() {
		panicValue := recover()
		if panicValue == nil {
			return
		}
		if panicValue == http.ErrAbortHandler { //nolint:errorlint,goerr113
			panic(panicValue)
		}
		logger.Error("handler panicked",
			slog.Any("panic", panicValue),
			slog.String("stack", string(debug.Stack())),
		)
		response = nil
		retErr = errorf(CodeUnknown, "handler panicked: %v", panicValue)
	}()
	return implementation(ctx, request)
}
