// Package limits provides centralized size limits for the seclink wire protocol.
// This ensures consistent validation across the framer, the session and discovery.
package limits

import (
	"errors"
	"fmt"
)

const (
	// FrameHeaderSize is the length prefix of every TCP frame (big-endian uint32).
	FrameHeaderSize = 4

	// MaxFrameSize bounds the payload length accepted from a frame header.
	// The protocol itself places no upper bound on frames; this limit prevents
	// memory exhaustion from a hostile length field (1MB).
	MaxFrameSize = 1024 * 1024

	// MaxDatagramSize is the receive buffer used for discovery responses.
	MaxDatagramSize = 512

	// AESKeySize is the size of the session key generated by the client (AES-256).
	AESKeySize = 32

	// AESBlockSize is the block size used for padding symmetric ciphertext.
	AESBlockSize = 16

	// OAEPOverhead is what RSA-OAEP with SHA-512 adds to a message:
	// two 64-byte digests plus two bytes.
	OAEPOverhead = 2*64 + 2

	// ClientHandshakeSize is the encoded client handshake:
	// {"aes_key":"<44 base64 chars>"}.
	ClientHandshakeSize = len(`{"aes_key":""}`) + 44

	// MinRSAModulusBytes is the smallest server modulus that can seal the
	// client handshake under OAEP/SHA-512 (188 bytes, 1504 bits).
	MinRSAModulusBytes = OAEPOverhead + ClientHandshakeSize
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateFrameLength checks a declared or outgoing frame payload length.
// Zero-length frames are legal on the wire.
func ValidateFrameLength(length uint64) error {
	if length > MaxFrameSize {
		return fmt.Errorf("%w: frame size %d exceeds limit %d", ErrMessageTooLarge, length, MaxFrameSize)
	}
	return nil
}

// ValidateDatagram validates a discovery datagram against MaxDatagramSize.
func ValidateDatagram(datagram []byte) error {
	if len(datagram) == 0 {
		return ErrMessageEmpty
	}
	if len(datagram) > MaxDatagramSize {
		return fmt.Errorf("%w: datagram size %d exceeds limit %d", ErrMessageTooLarge, len(datagram), MaxDatagramSize)
	}
	return nil
}
