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
	"io"
	"log/slog"
)

// A CodecOption configures a Codec.
type CodecOption interface {
	applyToCodec(*codecConfig)
}

// A TransportOption configures frame readers and writers, Handlers, and
// Clients.
type TransportOption interface {
	applyToTransport(*transportConfig)
}

// An Option configures both codecs and transports.
type Option interface {
	CodecOption
	TransportOption
}

type codecConfig struct {
	MaxDepth int
	Logger   *slog.Logger
}

type transportConfig struct {
	Format           WireFormat
	ReadMaxBytes     int
	SendMaxBytes     int
	Gzip             bool
	CompressMinBytes int
	Logger           *slog.Logger
}

const defaultCompressMinBytes = 1024

func newTransportConfig(options []TransportOption) transportConfig {
	config := transportConfig{
		Format:           binaryFormat,
		CompressMinBytes: defaultCompressMinBytes,
		Logger:           discardLogger,
	}
	for _, opt := range options {
		opt.applyToTransport(&config)
	}
	return config
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
	Level: slog.LevelError + 1,
}))

type maxDepthOption struct {
	Max int
}

// WithMaxDepth limits how deeply envelopes may nest. Deeper graphs fail with
// CodeRecursionLimitExceeded instead of exhausting the stack. Values below one
// are ignored.
func WithMaxDepth(n int) CodecOption {
	return &maxDepthOption{n}
}

func (o *maxDepthOption) applyToCodec(config *codecConfig) {
	if o.Max > 0 {
		config.MaxDepth = o.Max
	}
}

type loggerOption struct {
	Logger *slog.Logger
}

// WithLogger sets the structured logger. Codecs log ignored fields at debug
// level; Handlers log failed requests. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return &loggerOption{logger}
}

func (o *loggerOption) applyToCodec(config *codecConfig) {
	if o.Logger != nil {
		config.Logger = o.Logger
	}
}

func (o *loggerOption) applyToTransport(config *transportConfig) {
	if o.Logger != nil {
		config.Logger = o.Logger
	}
}

type wireFormatOption struct {
	Format WireFormat
}

// WithWireFormat sets the format used to serialize outgoing envelopes. The
// default is BinaryFormat. Handlers always answer in the request's format.
func WithWireFormat(format WireFormat) TransportOption {
	return &wireFormatOption{format}
}

func (o *wireFormatOption) applyToTransport(config *transportConfig) {
	if o.Format != nil {
		config.Format = o.Format
	}
}

type readMaxBytesOption struct {
	Max int
}

// WithReadMaxBytes limits the size of frames read from the other party, both
// as sent and after decompression. Zero allows any size, which is the default.
func WithReadMaxBytes(n int) TransportOption {
	return &readMaxBytesOption{n}
}

func (o *readMaxBytesOption) applyToTransport(config *transportConfig) {
	config.ReadMaxBytes = o.Max
}

type sendMaxBytesOption struct {
	Max int
}

// WithSendMaxBytes limits the size of frames written to the other party,
// measured after compression. Zero allows any size, which is the default.
func WithSendMaxBytes(n int) TransportOption {
	return &sendMaxBytesOption{n}
}

func (o *sendMaxBytesOption) applyToTransport(config *transportConfig) {
	config.SendMaxBytes = o.Max
}

type gzipOption struct{}

// WithGzip compresses outgoing frames with gzip once their payload reaches
// the compression threshold. Readers always accept compressed frames.
func WithGzip() TransportOption {
	return &gzipOption{}
}

func (o *gzipOption) applyToTransport(config *transportConfig) {
	config.Gzip = true
}

type compressMinBytesOption struct {
	Min int
}

// WithCompressMinBytes sets the smallest payload WithGzip compresses. Smaller
// payloads are sent as-is. The default is 1 KiB.
func WithCompressMinBytes(n int) TransportOption {
	return &compressMinBytesOption{n}
}

func (o *compressMinBytesOption) applyToTransport(config *transportConfig) {
	config.CompressMinBytes = o.Min
}
