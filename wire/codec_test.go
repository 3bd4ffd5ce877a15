package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// pingMessage is a minimal proto.Message used only to exercise the binary
// framing round trip; Marshal and Unmarshal copy Body's bytes verbatim,
// with no encoding of their own.
type pingMessage struct {
	Body string
}

func (m *pingMessage) Reset()         { *m = pingMessage{} }
func (m *pingMessage) String() string { return m.Body }
func (m *pingMessage) ProtoMessage()  {}
func (m *pingMessage) Marshal() ([]byte, error) {
	return []byte(m.Body), nil
}
func (m *pingMessage) Unmarshal(b []byte) error {
	m.Body = string(b)
	return nil
}

func TestBinaryRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	var w = NewBinaryWriter(&buf)
	require.NoError(t, w.Encode(&pingMessage{Body: "hello"}))
	require.NoError(t, w.Encode(&pingMessage{Body: "world"}))

	var r = NewBinaryReader(&buf)
	var got pingMessage

	ok, err := r.Decode(&got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", got.Body)

	ok, err = r.Decode(&got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "world", got.Body)

	ok, err = r.Decode(&got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBinaryReaderPartialStream(t *testing.T) {
	var buf bytes.Buffer
	var w = NewBinaryWriter(&buf)
	require.NoError(t, w.Encode(&pingMessage{Body: "a"}))

	var full = buf.Bytes()
	// Simulate a stitched read across multiple Write calls by feeding the
	// frame to the reader byte-by-byte.
	pr, pw := io.Pipe()
	go func() {
		for _, b := range full {
			pw.Write([]byte{b})
		}
		pw.Close()
	}()

	var r = NewBinaryReader(pr)
	var got pingMessage
	ok, err := r.Decode(&got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", got.Body)
}

func TestLineReaderSkipsBlankLines(t *testing.T) {
	var buf = bytes.NewBufferString("{\"a\":1}\n\n  \n{\"b\":2}\n")
	var r = NewLineReader(buf)

	line, ok, err := r.Decode()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"a":1}`, string(line))

	line, ok, err = r.Decode()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"b":2}`, string(line))

	_, ok, err = r.Decode()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLineWriterAppendsNewline(t *testing.T) {
	var buf bytes.Buffer
	var w = NewLineWriter(&buf)
	require.NoError(t, w.Encode([]byte("READY")))
	require.Equal(t, "READY\n", buf.String())
}
