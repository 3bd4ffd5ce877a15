// Package wire implements the two framings the adaptor speaks: the
// runtime's length-delimited binary protocol (or newline-delimited JSON,
// when the runtime prefers text) on one side, and newline-delimited JSON
// on the child-process side. Both decoders are stitching byte-stream
// parsers: a Write (or Read) call may supply a partial frame, and the
// decoder must carry the remainder forward to the next call.
//
// Grounded on capture/driver/airbyte/connector.go's protoOutput/jsonOutput.
package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	protoio "github.com/gogo/protobuf/io"
	"github.com/gogo/protobuf/proto"
)

// MaxMessageSize bounds a single frame; larger frames are a protocol
// error rather than silently buffered forever.
const MaxMessageSize = 1 << 23 // 8 MiB.

// BinaryReader decodes 4-byte little-endian length-prefixed frames from a
// byte stream into caller-supplied proto.Message values. It wraps
// gogo/protobuf's Uint32DelimitedReader, the same utility the runtime
// driver uses to write frames on the other side of this boundary.
type BinaryReader struct {
	inner protoio.ReadCloser
}

// NewBinaryReader constructs a BinaryReader over r. Frames larger than
// MaxMessageSize are rejected.
func NewBinaryReader(r io.Reader) *BinaryReader {
	return &BinaryReader{inner: protoio.NewUint32DelimitedReader(r, binary.LittleEndian, MaxMessageSize)}
}

// Decode reads and decodes the next frame into msg. ok is false (err nil)
// on clean EOF with no partial frame pending.
func (d *BinaryReader) Decode(msg proto.Message) (ok bool, err error) {
	if err := d.inner.ReadMsg(msg); err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("decoding length-delimited frame: %w", err)
	}
	return true, nil
}

// Close releases the underlying reader, if it supports closing.
func (d *BinaryReader) Close() error { return d.inner.Close() }

// BinaryWriter encodes proto.Message values as 4-byte little-endian
// length-prefixed frames, matching driver.go's
// protoio.NewUint32DelimitedWriter usage.
type BinaryWriter struct {
	inner protoio.WriteCloser
}

func NewBinaryWriter(w io.Writer) *BinaryWriter {
	return &BinaryWriter{inner: protoio.NewUint32DelimitedWriter(w, binary.LittleEndian)}
}

func (e *BinaryWriter) Encode(msg proto.Message) error {
	if err := e.inner.WriteMsg(msg); err != nil {
		return fmt.Errorf("encoding length-delimited frame: %w", err)
	}
	return nil
}

func (e *BinaryWriter) Close() error { return e.inner.Close() }

// LineReader decodes newline-delimited JSON frames, one JSON value per
// call to Decode. A final line without a trailing newline is returned like
// any other non-empty line; it is not reported as an error. Stitching is
// done by bufio.Scanner instead of connector.go's manual
// remainder-splicing, since Go's stdlib already solves exactly this
// stitching problem for line-oriented streams.
type LineReader struct {
	scanner *bufio.Scanner
}

func NewLineReader(r io.Reader) *LineReader {
	var scanner = bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxMessageSize)
	return &LineReader{scanner: scanner}
}

// Decode returns the next trimmed, non-empty line. ok is false (err nil)
// on clean EOF.
func (d *LineReader) Decode() (line []byte, ok bool, err error) {
	for d.scanner.Scan() {
		var b = bytes.TrimSpace(d.scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var out = make([]byte, len(b))
		copy(out, b)
		return out, true, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, false, fmt.Errorf("reading line-delimited frame: %w", err)
	}
	return nil, false, nil
}

// LineWriter writes newline-terminated frames, flushing after each write
// so a READY-gated child observes it promptly.
type LineWriter struct {
	w io.Writer
}

func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// Encode writes payload followed by a trailing newline.
func (e *LineWriter) Encode(payload []byte) error {
	if _, err := e.w.Write(payload); err != nil {
		return fmt.Errorf("writing line frame: %w", err)
	}
	if _, err := e.w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("writing line frame terminator: %w", err)
	}
	return nil
}
