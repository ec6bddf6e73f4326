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

// serde-dump prints a stream of framed RecursiveSerde envelopes, such as a
// captured request body, without needing the Go types that produced them.
//
//	serde-dump [flags] [file]
//
// With no file, frames are read from standard input. The default text output
// shows each envelope's type and fields; fields listed with -expand (or all
// fields, with -expand='*') are decoded as nested envelopes and printed
// beneath their parent:
//
//	serde-dump -expand friend,pet capture.bin
//
// With -output=json, each envelope is printed as protobuf JSON.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/openmined/serde"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	outputText = "text"
	outputJSON = "json"

	reservedPrefix = "__"
	expandAll      = "*"

	// Longer values are shortened in text output.
	previewBytes = 64
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	format   serde.WireFormat
	output   string
	expand   map[string]bool
	maxBytes int
	maxDepth int
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("serde-dump", flag.ContinueOnError)
	flags.SetOutput(stderr)
	format := flags.String("format", serde.FormatNameBinary, "wire format of the frames: proto or json")
	output := flags.String("output", outputText, "output format: text or json")
	expand := flags.String("expand", "", "comma-separated fields to decode as nested envelopes, or * for all")
	maxBytes := flags.Int("max-bytes", 0, "maximum frame size, 0 for no limit")
	maxDepth := flags.Int("max-depth", serde.DefaultMaxDepth, "maximum nesting depth when expanding")
	verbose := flags.Bool("v", false, "log each frame")
	version := flags.Bool("version", false, "print the version and exit")
	flags.Usage = func() {
		fmt.Fprintln(stderr, "usage: serde-dump [flags] [file]")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *version {
		fmt.Fprintln(stdout, serde.Version)
		return 0
	}
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	opts := options{
		output:   *output,
		expand:   parseExpand(*expand),
		maxBytes: *maxBytes,
		maxDepth: *maxDepth,
	}
	switch *format {
	case serde.FormatNameBinary:
		opts.format = serde.BinaryFormat()
	case serde.FormatNameJSON:
		opts.format = serde.JSONFormat()
	default:
		logger.Error("unknown wire format", "format", *format)
		return 2
	}
	if opts.output != outputText && opts.output != outputJSON {
		logger.Error("unknown output format", "output", opts.output)
		return 2
	}

	input := stdin
	name := "stdin"
	switch flags.NArg() {
	case 0:
	case 1:
		name = flags.Arg(0)
		file, err := os.Open(name)
		if err != nil {
			logger.Error("open input", "error", err)
			return 1
		}
		defer file.Close()
		input = file
	default:
		flags.Usage()
		return 2
	}
	if err := dump(input, stdout, opts, logger.With("input", name)); err != nil {
		logger.Error("dump failed", "error", err, "code", serde.CodeOf(err))
		return 1
	}
	return 0
}

func parseExpand(value string) map[string]bool {
	expand := make(map[string]bool)
	for _, name := range strings.Split(value, ",") {
		if name = strings.TrimSpace(name); name != "" {
			expand[name] = true
		}
	}
	return expand
}

// dump prints every frame in src until a clean end of input.
func dump(src io.Reader, dst io.Writer, opts options, logger *slog.Logger) error {
	reader := serde.NewFrameReader(
		src,
		serde.WithWireFormat(opts.format),
		serde.WithReadMaxBytes(opts.maxBytes),
		serde.WithLogger(logger),
	)
	for frame := 0; ; frame++ {
		var env serde.Envelope
		if err := reader.Read(&env); err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("end of input", "frames", frame)
				return nil
			}
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		logger.Debug("read frame", "frame", frame, "type", env.FullyQualifiedName)
		var err error
		switch opts.output {
		case outputJSON:
			err = printJSON(dst, &env)
		default:
			fmt.Fprintf(dst, "frame %d: ", frame)
			err = (&printer{dst: dst, opts: opts}).envelope(&env, 0)
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
	}
}

// printJSON re-reads env through the envelope descriptor so the output has
// the same field names as any other protobuf JSON tool would produce.
func printJSON(dst io.Writer, env *serde.Envelope) error {
	data, err := serde.BinaryFormat().Marshal(env)
	if err != nil {
		return err
	}
	msg := dynamicpb.NewMessage(serde.EnvelopeDescriptor())
	if err := proto.Unmarshal(data, msg); err != nil {
		return err
	}
	out, err := protojson.MarshalOptions{Multiline: true}.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(dst, "%s\n", out)
	return err
}

type printer struct {
	dst  io.Writer
	opts options
}

func (p *printer) envelope(env *serde.Envelope, depth int) error {
	if depth > p.opts.maxDepth {
		return serde.NewError(serde.CodeRecursionLimitExceeded, fmt.Errorf("nesting exceeds %d", p.opts.maxDepth))
	}
	if err := env.Validate(); err != nil {
		return err
	}
	kind := ""
	if env.IsReference() {
		kind = ", reference"
	}
	fmt.Fprintf(p.dst, "%s (%d fields, %d blobs%s)\n", env.FullyQualifiedName, len(env.FieldsName), len(env.NonrecursiveBlob), kind)
	indent := strings.Repeat("  ", depth+1)
	for i, name := range env.FieldsName {
		data := env.FieldsData[i]
		fmt.Fprintf(p.dst, "%s%s: ", indent, name)
		if strings.HasPrefix(name, reservedPrefix) {
			fmt.Fprintln(p.dst, varint(data))
			continue
		}
		if (p.opts.expand[name] || p.opts.expand[expandAll]) && len(data) > 0 {
			var nested serde.Envelope
			if err := serde.BinaryFormat().Unmarshal(data, &nested); err == nil && nested.FullyQualifiedName != "" {
				if err := p.envelope(&nested, depth+1); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				continue
			}
		}
		fmt.Fprintln(p.dst, preview(data))
	}
	for i, blob := range env.NonrecursiveBlob {
		fmt.Fprintf(p.dst, "%sblob[%d]: %d bytes\n", indent, i, len(blob))
	}
	return nil
}

func varint(data []byte) string {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 || n != len(data) {
		return preview(data)
	}
	return strconv.FormatUint(v, 10)
}

// preview quotes printable values and hex-encodes the rest.
func preview(data []byte) string {
	short := data
	suffix := ""
	if len(short) > previewBytes {
		short = short[:previewBytes]
		suffix = fmt.Sprintf("... (%d bytes)", len(data))
	}
	if utf8.Valid(short) && isPrintable(string(short)) {
		return strconv.Quote(string(short)) + suffix
	}
	return fmt.Sprintf("0x%x", short) + suffix
}

func isPrintable(s string) bool {
	for _, r := range s {
		if !strconv.IsPrint(r) && r != '\n' && r != '\t' {
			return false
		}
	}
	return true
}
