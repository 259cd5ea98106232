package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/seclink/limits"
	"github.com/sirupsen/logrus"
)

var (
	// ErrFrameRead is returned when the stream ends before a frame is complete.
	ErrFrameRead = errors.New("frame read failed")

	// ErrFrameTooLarge is returned when a frame length exceeds limits.MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// WriteFrame writes a 4-byte big-endian length prefix followed by payload.
// Header and payload go out in a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if err := limits.ValidateFrameLength(uint64(len(payload))); err != nil {
		return fmt.Errorf("%w: %v", ErrFrameTooLarge, err)
	}

	buf := make([]byte, limits.FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[:limits.FrameHeaderSize], uint32(len(payload)))
	copy(buf[limits.FrameHeaderSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}

// ReadFrame reads one length-prefixed frame and returns its payload.
// It blocks until the whole frame has arrived or the stream fails.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, limits.FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrFrameRead, err)
	}

	length := binary.BigEndian.Uint32(header)
	if err := limits.ValidateFrameLength(uint64(length)); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ReadFrame",
			"length":   length,
			"limit":    limits.MaxFrameSize,
		}).Warn("Rejecting oversized frame")
		return nil, fmt.Errorf("%w: %v", ErrFrameTooLarge, err)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: payload of %d bytes: %w", ErrFrameRead, length, err)
	}
	return payload, nil
}

// FrameReader reads frames from a stream.
type FrameReader struct {
	r io.Reader
}

// NewFrameReader creates a FrameReader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// Read reads the next frame payload.
func (fr *FrameReader) Read() ([]byte, error) {
	return ReadFrame(fr.r)
}

// FrameWriter writes frames to a stream. It is safe for concurrent use.
type FrameWriter struct {
	mu      sync.Mutex
	w       io.Writer
	timeout time.Duration
}

// NewFrameWriter creates a FrameWriter over w. When w is a net.Conn and
// timeout is positive, every frame gets a fresh write deadline.
func NewFrameWriter(w io.Writer, timeout time.Duration) *FrameWriter {
	return &FrameWriter{w: w, timeout: timeout}
}

// Write writes payload as one frame.
func (fw *FrameWriter) Write(payload []byte) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if conn, ok := fw.w.(net.Conn); ok && fw.timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(fw.timeout)); err != nil {
			return err
		}
	}
	return WriteFrame(fw.w, payload)
}
