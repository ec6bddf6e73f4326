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

package memhttp

import (
	"log/slog"
	"time"
)

type config struct {
	CleanupTimeout time.Duration
	Logger         *slog.Logger
	DisableHTTP2   bool
}

// An Option configures a Server.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(cfg *config) { f(cfg) }

// WithOptions composes multiple Options into one.
func WithOptions(opts ...Option) Option {
	return optionFunc(func(cfg *config) {
		for _, opt := range opts {
			opt.apply(cfg)
		}
	})
}

// WithLogger routes the server's internal error log to logger.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(cfg *config) {
		cfg.Logger = logger
	})
}

// WithCleanupTimeout sets how long Cleanup waits for a graceful shutdown.
func WithCleanupTimeout(d time.Duration) Option {
	return optionFunc(func(cfg *config) {
		cfg.CleanupTimeout = d
	})
}

// WithoutHTTP2 serves HTTP/1.1 only.
func WithoutHTTP2() Option {
	return optionFunc(func(cfg *config) {
		cfg.DisableHTTP2 = true
	})
}
