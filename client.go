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
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// maxErrorBodyBytes caps how much of an error response is read as the
// message.
const maxErrorBodyBytes = 64 * 1024

// HTTPClient is the interface Client expects HTTP clients to implement. The
// standard library's *http.Client implements HTTPClient.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// A Client sends registered objects to a Handler and decodes the replies.
//
// Clients are safe to use concurrently.
type Client struct {
	httpClient HTTPClient
	url        string
	codec      *Codec
	config     transportConfig
}

// NewClient constructs a Client that posts to rawURL. Requests use the
// binary wire format unless WithWireFormat says otherwise.
func NewClient(httpClient HTTPClient, rawURL string, codec *Codec, options ...TransportOption) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if codec == nil {
		codec = defaultCodec
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, errorf(CodeUnavailable, "parse url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errorf(CodeUnavailable, "url %q: unsupported scheme %q", rawURL, parsed.Scheme)
	}
	return &Client{
		httpClient: httpClient,
		url:        parsed.String(),
		codec:      codec,
		config:     newTransportConfig(options),
	}, nil
}

// Call encodes obj, posts it as one frame, and decodes the response frame.
// Failures reported by the Handler come back as an *Error with the remote
// code, type name, and path.
func (c *Client) Call(ctx context.Context, obj any) (any, error) {
	env, err := c.codec.Encode(obj)
	if err != nil {
		return nil, err
	}
	buffer := sharedBuffers.Get()
	defer sharedBuffers.Put(buffer)
	writer := &FrameWriter{writer: buffer, config: c.config}
	if err := writer.Write(env); err != nil {
		return nil, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, buffer)
	if err != nil {
		return nil, errorf(CodeUnavailable, "build request: %w", err)
	}
	requestID := uuid.NewString()
	request.Header.Set(headerContentType, ContentType(c.config.Format))
	request.Header.Set(HeaderRequestID, requestID)
	request.Header.Set(headerUserAgent, userAgent)
	logger := c.config.Logger.With(
		slog.String("request_id", requestID),
		slog.String("type", env.FullyQualifiedName),
	)

	response, err := c.httpClient.Do(request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		logger.Debug("call failed", slog.String("error", err.Error()))
		return nil, errorf(CodeUnavailable, "post %s: %w", c.url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()
	if response.StatusCode != http.StatusOK {
		return nil, c.responseError(response)
	}
	format, ok := formatForContentType(response.Header.Get(headerContentType))
	if !ok {
		return nil, errorf(CodeMalformedEnvelope, "unexpected response content type %q",
			response.Header.Get(headerContentType))
	}
	config := c.config
	config.Format = format
	reader := &FrameReader{reader: response.Body, config: config}
	var responseEnvelope Envelope
	if err := reader.Read(&responseEnvelope); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errorf(CodeMalformedEnvelope, "response body is empty")
		}
		return nil, err
	}
	logger.Debug("call succeeded", slog.String("response_type", responseEnvelope.FullyQualifiedName))
	return c.codec.Decode(&responseEnvelope)
}

func (c *Client) responseError(response *http.Response) *Error {
	body, err := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	message := strings.TrimSpace(string(body))
	if err != nil && message == "" {
		message = err.Error()
	}
	if serdeErr := errorFromHeaders(response.Header, message); serdeErr != nil {
		return serdeErr
	}
	// Not from a Handler: a proxy, or a negotiation failure.
	if message == "" {
		message = http.StatusText(response.StatusCode)
	}
	return errorf(codeFromHTTP(response.StatusCode), "HTTP status %d: %s", response.StatusCode, message)
}

// codeFromHTTP classifies responses that carry no error code header.
func codeFromHTTP(status int) Code {
	switch status {
	case http.StatusRequestEntityTooLarge:
		return CodeResourceExhausted
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return CodeMalformedEnvelope
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return CodeUnavailable
	}
	return CodeUnknown
}
