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
	"bytes"
	"compress/gzip"
	"io"
	"math"
	"strings"
	"sync"
)

// compressionPool recycles gzip readers and writers across frames.
type compressionPool struct {
	decompressors sync.Pool
	compressors   sync.Pool
}

func newGzipPool() *compressionPool {
	return &compressionPool{
		decompressors: sync.Pool{
			// gzip.NewReader requires a source of valid gzipped bytes, so pooled
			// readers start out zero and are Reset before use.
			New: func() any { return &gzip.Reader{} },
		},
		compressors: sync.Pool{
			New: func() any { return gzip.NewWriter(io.Discard) },
		},
	}
}

var gzipPool = newGzipPool()

// Decompress inflates src into dst. If readMaxBytes is positive, inflating
// more than that many bytes fails with CodeResourceExhausted.
func (c *compressionPool) Decompress(dst *bytes.Buffer, src *bytes.Buffer, readMaxBytes int64) *Error {
	decompressor, ok := c.decompressors.Get().(*gzip.Reader)
	if !ok {
		decompressor = &gzip.Reader{}
	}
	defer c.putDecompressor(decompressor)
	if err := decompressor.Reset(src); err != nil {
		return errorf(CodeMalformedEnvelope, "get gzip decompressor: %w", err)
	}
	reader := io.Reader(decompressor)
	if readMaxBytes > 0 && readMaxBytes < math.MaxInt64 {
		reader = io.LimitReader(decompressor, readMaxBytes+1)
	}
	bytesRead, err := dst.ReadFrom(reader)
	if err != nil {
		return errorf(CodeMalformedEnvelope, "decompress frame: %w", err)
	}
	if readMaxBytes > 0 && bytesRead > readMaxBytes {
		discardedBytes, err := io.Copy(io.Discard, decompressor)
		if err != nil {
			return errorf(CodeResourceExhausted, "decompressed frame is larger than configured max %d", readMaxBytes)
		}
		return errorf(CodeResourceExhausted, "decompressed frame size %d is larger than configured max %d",
			bytesRead+discardedBytes, readMaxBytes)
	}
	return nil
}

// Compress deflates src into dst.
func (c *compressionPool) Compress(dst *bytes.Buffer, src *bytes.Buffer) *Error {
	compressor, ok := c.compressors.Get().(*gzip.Writer)
	if !ok {
		compressor = gzip.NewWriter(io.Discard)
	}
	defer c.putCompressor(compressor)
	compressor.Reset(dst)
	if _, err := src.WriteTo(compressor); err != nil {
		return errorf(CodeUnknown, "compress frame: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return errorf(CodeUnknown, "close gzip compressor: %w", err)
	}
	return nil
}

func (c *compressionPool) putDecompressor(decompressor *gzip.Reader) {
	// While it's in the pool, the decompressor mustn't retain a reference to
	// the frame it read. Reset fails on the empty header, which is expected.
	// Close is skipped: a reader whose first Reset failed has no inflater.
	_ = decompressor.Reset(strings.NewReader(""))
	c.decompressors.Put(decompressor)
}

func (c *compressionPool) putCompressor(compressor *gzip.Writer) {
	compressor.Reset(io.Discard) // don't keep references
	c.compressors.Put(compressor)
}
