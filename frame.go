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
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Frames carry one envelope each over a byte stream: a flags byte, the
// payload length as a big-endian uint32, then the payload in the stream's
// wire format.
const (
	flagFrameCompressed = 0b00000001
	framePrefixSize     = 5

	// Payloads larger than this grow the read buffer as bytes arrive rather
	// than up front, so a lying length prefix can't force a huge allocation.
	maxFrameGrow = 64 * 1024
)

// A FrameWriter writes length-prefixed envelopes to an io.Writer.
type FrameWriter struct {
	writer io.Writer
	config transportConfig
}

// NewFrameWriter constructs a FrameWriter. The wire format, gzip
// compression, and size limit come from the options.
func NewFrameWriter(w io.Writer, options ...TransportOption) *FrameWriter {
	return &FrameWriter{writer: w, config: newTransportConfig(options)}
}

// Write serializes env and writes it as one frame.
func (w *FrameWriter) Write(env *Envelope) error {
	payload, err := w.config.Format.Marshal(env)
	if err != nil {
		return errorf(CodeInvalidValue, "marshal %s envelope: %w", w.config.Format.Name(), err).
			withType(env.FullyQualifiedName)
	}
	buffer := sharedBuffers.Get()
	defer sharedBuffers.Put(buffer)
	buffer.Write(payload)

	var flags uint8
	if w.config.Gzip && buffer.Len() >= w.config.CompressMinBytes {
		compressed := sharedBuffers.Get()
		defer sharedBuffers.Put(compressed)
		if err := gzipPool.Compress(compressed, buffer); err != nil {
			return err
		}
		buffer = compressed
		flags |= flagFrameCompressed
	}
	if err := checkSendMaxBytes(buffer.Len(), w.config.SendMaxBytes, flags&flagFrameCompressed != 0); err != nil {
		return err
	}
	return writeFrame(w.writer, flags, buffer)
}

// A FrameReader reads length-prefixed envelopes from an io.Reader.
type FrameReader struct {
	reader io.Reader
	config transportConfig
}

// NewFrameReader constructs a FrameReader. The wire format and size limit
// come from the options; compressed frames are always accepted.
func NewFrameReader(r io.Reader, options ...TransportOption) *FrameReader {
	return &FrameReader{reader: r, config: newTransportConfig(options)}
}

// Read reads the next frame into env. When the stream ends cleanly between
// frames, it returns io.EOF.
func (r *FrameReader) Read(env *Envelope) error {
	buffer := sharedBuffers.Get()
	defer sharedBuffers.Put(buffer)
	flags, err := readFrame(buffer, r.reader, r.config.ReadMaxBytes)
	if err != nil {
		return err
	}
	if flags&^flagFrameCompressed != 0 {
		return errorf(CodeMalformedEnvelope, "invalid frame flags %08b", flags)
	}
	if flags&flagFrameCompressed != 0 {
		decompressed := sharedBuffers.Get()
		defer sharedBuffers.Put(decompressed)
		if err := gzipPool.Decompress(decompressed, buffer, int64(r.config.ReadMaxBytes)); err != nil {
			return err
		}
		buffer = decompressed
	}
	if err := r.config.Format.Unmarshal(buffer.Bytes(), env); err != nil {
		return errorf(CodeMalformedEnvelope, "unmarshal %s envelope: %w", r.config.Format.Name(), err)
	}
	return nil
}

func writeFrame(dst io.Writer, flags uint8, src *bytes.Buffer) error {
	if int64(src.Len()) > math.MaxUint32 {
		return errorf(CodeResourceExhausted, "frame size %d overflows uint32", src.Len())
	}
	prefix := [framePrefixSize]byte{}
	prefix[0] = flags
	binary.BigEndian.PutUint32(prefix[1:5], uint32(src.Len()))
	if _, err := dst.Write(prefix[:]); err != nil {
		return errorf(CodeUnavailable, "write frame prefix: %w", err)
	}
	if _, err := src.WriteTo(dst); err != nil {
		return errorf(CodeUnavailable, "write frame: %w", err)
	}
	return nil
}

func readFrame(dst *bytes.Buffer, src io.Reader, readMaxBytes int) (uint8, error) {
	prefix := [framePrefixSize]byte{}
	prefixBytesRead, err := io.ReadFull(src, prefix[:])
	switch {
	case prefixBytesRead == 0 && errors.Is(err, io.EOF):
		// The stream ended cleanly between frames.
		return 0, io.EOF
	case err != nil:
		if maxBytesErr := asMaxBytesError(err, "read %d byte frame prefix", framePrefixSize); maxBytesErr != nil {
			return 0, maxBytesErr
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, errorf(CodeMalformedEnvelope, "incomplete frame prefix: got %d of %d bytes",
				prefixBytesRead, framePrefixSize)
		}
		return 0, errorf(CodeUnavailable, "read frame prefix: %w", err)
	}
	size := int64(binary.BigEndian.Uint32(prefix[1:5]))
	if readMaxBytes > 0 && size > int64(readMaxBytes) {
		// Drain the oversized payload so the stream stays usable.
		_, _ = io.CopyN(io.Discard, src, size)
		return 0, errorf(CodeResourceExhausted, "frame size %d is larger than configured max %d", size, readMaxBytes)
	}
	if size == 0 {
		return prefix[0], nil
	}
	if size <= maxFrameGrow {
		dst.Grow(int(size))
	}
	bytesRead, err := io.CopyN(dst, src, size)
	if err != nil {
		if maxBytesErr := asMaxBytesError(err, "read %d byte frame", size); maxBytesErr != nil {
			return 0, maxBytesErr
		}
		if errors.Is(err, io.EOF) {
			return 0, errorf(CodeMalformedEnvelope, "promised %d bytes in frame, got %d bytes", size, bytesRead)
		}
		return 0, errorf(CodeUnavailable, "read frame: %w", err)
	}
	return prefix[0], nil
}

func checkSendMaxBytes(length, sendMaxBytes int, isCompressed bool) *Error {
	if sendMaxBytes <= 0 || length <= sendMaxBytes {
		return nil
	}
	tmpl := "frame size %d exceeds sendMaxBytes %d"
	if isCompressed {
		tmpl = "compressed frame size %d exceeds sendMaxBytes %d"
	}
	return errorf(CodeResourceExhausted, tmpl, length, sendMaxBytes)
}
