// Package limits provides centralized size constants and validation functions
// for the seclink protocol.
//
// # Size Limits
//
//   - FrameHeaderSize (4 bytes): the big-endian length prefix of a TCP frame.
//
//   - MaxFrameSize (1MB): the largest frame payload the framer will allocate.
//     The wire protocol does not bound frame lengths, so every frame read from
//     the network is checked against this limit before its payload is read.
//
//   - MaxDatagramSize (512 bytes): the discovery receive buffer. Longer
//     responses are truncated by the socket and fail to decode.
//
//   - AESKeySize (32 bytes): the session key generated by every client.
//
// # Validation Functions
//
//	if err := limits.ValidateFrameLength(uint64(n)); err != nil {
//	    // ErrMessageTooLarge
//	}
//
// For custom size limits, use the generic ValidateMessageSize function:
//
//	err := limits.ValidateMessageSize(data, 4096)
package limits
