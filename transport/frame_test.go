package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/seclink/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// partialReader returns at most chunkSize bytes per Read call.
type partialReader struct {
	data      []byte
	readPos   int
	chunkSize int
	readCalls int
}

func (p *partialReader) Read(b []byte) (int, error) {
	p.readCalls++
	remaining := len(p.data) - p.readPos
	if remaining == 0 {
		return 0, io.EOF
	}
	toRead := p.chunkSize
	if toRead > len(b) {
		toRead = len(b)
	}
	if toRead > remaining {
		toRead = remaining
	}
	n := copy(b, p.data[p.readPos:p.readPos+toRead])
	p.readPos += n
	return n, nil
}

func TestWriteFrameLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))

	out := buf.Bytes()
	require.Len(t, out, 9)
	assert.Equal(t, []byte{0, 0, 0, 5}, out[:4])
	assert.Equal(t, []byte("hello"), out[4:])
}

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("x"),
		bytes.Repeat([]byte{0xAB}, 4096),
	}

	var buf bytes.Buffer
	for _, p := range payloads {
		require.NoError(t, WriteFrame(&buf, p))
	}

	reader := NewFrameReader(&buf)
	for _, want := range payloads {
		got, err := reader.Read()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := reader.Read()
	assert.ErrorIs(t, err, ErrFrameRead)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFramePartialReads(t *testing.T) {
	tests := []struct {
		name      string
		dataSize  uint32
		chunkSize int
	}{
		{"single byte chunks", 100, 1},
		{"two byte chunks", 256, 2},
		{"header not aligned", 1024, 3},
		{"large frame small chunks", 4096, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := bytes.Repeat([]byte{0xCD}, int(tt.dataSize))
			var buf bytes.Buffer
			require.NoError(t, binary.Write(&buf, binary.BigEndian, tt.dataSize))
			buf.Write(payload)

			r := &partialReader{data: buf.Bytes(), chunkSize: tt.chunkSize}
			got, err := ReadFrame(r)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
			assert.Greater(t, r.readCalls, 1)
		})
	}
}

func TestReadFrameTruncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty stream", nil},
		{"partial header", []byte{0, 0}},
		{"short payload", []byte{0, 0, 0, 10, 1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrFrameRead)
		})
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, limits.MaxFrameSize+1)

	_, err := ReadFrame(bytes.NewReader(header))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	err = WriteFrame(io.Discard, make([]byte, limits.MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteFrameWriterError(t *testing.T) {
	err := WriteFrame(failingWriter{}, []byte("data"))
	assert.EqualError(t, err, "broken pipe")
}

func TestFrameWriterConcurrentWrites(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	writer := NewFrameWriter(client, time.Second)
	reader := NewFrameReader(server)

	const writers = 8
	payload := bytes.Repeat([]byte{0x5A}, 512)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, writer.Write(payload))
		}()
	}

	for i := 0; i < writers; i++ {
		got, err := reader.Read()
		require.NoError(t, err)
		assert.Equal(t, payload, got, "frames must not interleave")
	}
	wg.Wait()
}

func TestFrameWriterDeadline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// Nobody reads from server, so the write must hit its deadline.
	writer := NewFrameWriter(client, 50*time.Millisecond)
	err := writer.Write([]byte("stuck"))
	require.Error(t, err)

	var netErr net.Error
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
}
