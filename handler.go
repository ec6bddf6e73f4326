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
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// A HandlerFunc answers one decoded request object with a response object.
// Returning an *Error sends its code to the client; any other error, or a
// panic, is sent as CodeUnknown.
type HandlerFunc func(ctx context.Context, request any) (any, error)

// A Handler serves request-response exchanges of envelopes over HTTP. Each
// request body is a single frame in the binary or JSON wire format, chosen by
// its Content-Type; the response frame uses the same format.
//
// Handlers are safe to use concurrently.
type Handler struct {
	codec          *Codec
	implementation HandlerFunc
	config         transportConfig
}

// NewHandler constructs a Handler that decodes requests with codec and passes
// them to implementation. The wire format option is ignored, since responses
// always mirror the request's format.
func NewHandler(codec *Codec, implementation HandlerFunc, options ...TransportOption) *Handler {
	if codec == nil {
		codec = defaultCodec
	}
	return &Handler{
		codec:          codec,
		implementation: implementation,
		config:         newTransportConfig(options),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(responseWriter http.ResponseWriter, request *http.Request) {
	requestID := request.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	responseWriter.Header().Set(HeaderRequestID, requestID)
	logger := h.config.Logger.With(slog.String("request_id", requestID))

	if request.Method != http.MethodPost {
		h.failNegotiation(responseWriter, http.StatusMethodNotAllowed)
		return
	}
	format, ok := formatForContentType(request.Header.Get(headerContentType))
	if !ok {
		h.failNegotiation(responseWriter, http.StatusUnsupportedMediaType)
		return
	}
	body := io.Reader(request.Body)
	if h.config.ReadMaxBytes > 0 {
		body = http.MaxBytesReader(responseWriter, request.Body, int64(h.config.ReadMaxBytes)+framePrefixSize)
	}

	config := h.config
	config.Format = format
	reader := &FrameReader{reader: body, config: config}
	var requestEnvelope Envelope
	if err := reader.Read(&requestEnvelope); err != nil {
		if errors.Is(err, io.EOF) {
			err = errorf(CodeMalformedEnvelope, "request body is empty")
		}
		h.writeError(responseWriter, logger, err)
		return
	}
	logger = logger.With(slog.String("type", requestEnvelope.FullyQualifiedName))
	requestObject, err := h.codec.Decode(&requestEnvelope)
	if err != nil {
		h.writeError(responseWriter, logger, err)
		return
	}
	responseObject, err := callImplementation(request.Context(), logger, h.implementation, requestObject)
	if err != nil {
		h.writeError(responseWriter, logger, err)
		return
	}
	responseEnvelope, err := h.codec.Encode(responseObject)
	if err != nil {
		h.writeError(responseWriter, logger, err)
		return
	}
	// Frame into memory first, so failures can still change the status.
	buffer := sharedBuffers.Get()
	defer sharedBuffers.Put(buffer)
	writer := &FrameWriter{writer: buffer, config: config}
	if err := writer.Write(responseEnvelope); err != nil {
		h.writeError(responseWriter, logger, err)
		return
	}
	responseWriter.Header().Set(headerContentType, ContentType(format))
	responseWriter.WriteHeader(http.StatusOK)
	if _, err := buffer.WriteTo(responseWriter); err != nil {
		logger.Warn("write response", slog.String("error", err.Error()))
		return
	}
	logger.Debug("served request", slog.String("response_type", responseEnvelope.FullyQualifiedName))
}

func (h *Handler) failNegotiation(w http.ResponseWriter, status int) {
	w.Header().Set(headerAllow, http.MethodPost)
	w.Header().Set("Accept-Post", strings.Join([]string{ContentTypeBinary, ContentTypeJSON}, ", "))
	w.WriteHeader(status)
}

// writeError sends err as the status code mapped from its Code, with the
// code, type, and path in headers and the message as the plain-text body.
func (h *Handler) writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	serdeErr, ok := asError(err)
	if !ok {
		serdeErr = NewError(CodeUnknown, err)
	}
	setErrorHeaders(w.Header(), serdeErr)
	w.Header().Set(headerContentType, "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	status := serdeErr.Code().http()
	w.WriteHeader(status)
	var message string
	if serdeErr.err != nil {
		message = serdeErr.err.Error()
	}
	_, _ = io.WriteString(w, message)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, "request failed",
		slog.String("code", serdeErr.Code().String()),
		slog.Int("status", status),
		slog.String("error", serdeErr.Error()),
	)
}
