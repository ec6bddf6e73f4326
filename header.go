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
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	ContentTypeBinary = "application/syft-serde+proto"
	ContentTypeJSON   = "application/syft-serde+json"

	HeaderRequestID = "Serde-Request-Id"
	HeaderErrorCode = "Serde-Error-Code"
	HeaderErrorType = "Serde-Error-Type"
	HeaderErrorPath = "Serde-Error-Path"

	headerContentType = "Content-Type"
	headerAllow       = "Allow"
	headerUserAgent   = "User-Agent"

	userAgent = "serde-go/" + Version
)

// ContentType returns the HTTP content type that carries frames in format.
func ContentType(format WireFormat) string {
	return "application/syft-serde+" + format.Name()
}

// formatForContentType parses a Content-Type header, ignoring parameters and
// case.
func formatForContentType(contentType string) (WireFormat, bool) {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	name, ok := strings.CutPrefix(mediaType, "application/syft-serde+")
	if !ok {
		return nil, false
	}
	return formatByName(name)
}

// setErrorHeaders describes err in response headers, so clients can rebuild
// an equivalent *Error.
func setErrorHeaders(header http.Header, err *Error) {
	code, marshalErr := err.Code().MarshalText()
	if marshalErr != nil {
		code, _ = CodeUnknown.MarshalText()
	}
	header.Set(HeaderErrorCode, string(code))
	if err.typeName != "" {
		header.Set(HeaderErrorType, percentEncode(err.typeName))
	}
	if len(err.path) > 0 {
		segments := make([]string, len(err.path))
		for i, segment := range err.path {
			// Escape the separator so field names containing dots survive.
			segments[i] = strings.ReplaceAll(percentEncode(segment), ".", "%2E")
		}
		header.Set(HeaderErrorPath, strings.Join(segments, "."))
	}
}

// errorFromHeaders rebuilds the *Error a Handler described with
// setErrorHeaders. It returns nil if the response carries no error code.
func errorFromHeaders(header http.Header, message string) *Error {
	raw := header.Get(HeaderErrorCode)
	if raw == "" {
		return nil
	}
	var code Code
	if err := code.UnmarshalText([]byte(raw)); err != nil {
		code = CodeUnknown
	}
	serdeErr := errorf(code, "%s", message)
	if typeName := header.Get(HeaderErrorType); typeName != "" {
		serdeErr.typeName = percentDecode(typeName)
	}
	if path := header.Get(HeaderErrorPath); path != "" {
		for _, segment := range strings.Split(path, ".") {
			serdeErr.path = append(serdeErr.path, percentDecode(segment))
		}
	}
	return serdeErr
}

// percentEncode follows RFC 3986 Section 2.1. It escapes non-ASCII and
// control bytes so arbitrary UTF-8 text is a valid HTTP/1 header value while
// staying readable on the wire.
func percentEncode(msg string) string {
	for i := 0; i < len(msg); i++ {
		if c := msg[i]; c < ' ' || c > '~' || c == '%' {
			return percentEncodeSlow(msg, i)
		}
	}
	return msg
}

// msg needs some percent-escaping. Bytes before offset don't require
// percent-encoding, so they can be copied to the output as-is.
func percentEncodeSlow(msg string, offset int) string {
	var out bytes.Buffer
	out.Grow(len(msg) + 8)
	out.WriteString(msg[:offset])
	for i := offset; i < len(msg); i++ {
		c := msg[i]
		if c < ' ' || c > '~' || c == '%' {
			fmt.Fprintf(&out, "%%%02X", c)
			continue
		}
		out.WriteByte(c)
	}
	return out.String()
}

func percentDecode(encoded string) string {
	for i := 0; i < len(encoded); i++ {
		if c := encoded[i]; c == '%' && i+2 < len(encoded) {
			return percentDecodeSlow(encoded, i)
		}
	}
	return encoded
}

// Similar to percentEncodeSlow: encoded is percent-encoded, and needs to be
// decoded byte-by-byte starting at offset.
func percentDecodeSlow(encoded string, offset int) string {
	var out bytes.Buffer
	out.Grow(len(encoded))
	out.WriteString(encoded[:offset])
	for i := offset; i < len(encoded); i++ {
		c := encoded[i]
		if c != '%' || i+2 >= len(encoded) {
			out.WriteByte(c)
			continue
		}
		parsed, err := strconv.ParseUint(encoded[i+1:i+3], 16 /* hex */, 8 /* bitsize */)
		if err != nil {
			out.WriteRune(utf8.RuneError)
		} else {
			out.WriteByte(byte(parsed))
		}
		i += 2
	}
	return out.String()
}
