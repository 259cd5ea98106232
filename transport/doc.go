// Package transport provides the byte-level plumbing of seclink: the
// length-prefixed TCP framing and the broadcast-capable UDP socket used by
// discovery.
//
// # Framing
//
// Every TCP message is a frame:
//
//	[length: 4 bytes, big-endian unsigned][payload: length bytes]
//
// The payload is opaque to this package. Before the handshake completes it is
// a plaintext encoded handshake message, afterwards an AES ciphertext.
//
//	if err := transport.WriteFrame(conn, payload); err != nil { ... }
//	payload, err := transport.ReadFrame(conn)
//
// ReadFrame reads exactly the declared number of bytes and fails with
// ErrFrameRead when the stream ends first. The protocol does not bound frame
// lengths, so lengths above limits.MaxFrameSize (1MB) are rejected with
// ErrFrameTooLarge before any payload buffer is allocated.
//
// FrameWriter serialises concurrent writers and applies a per-frame write
// deadline on net.Conn streams.
//
// # Broadcast sockets
//
// ListenBroadcast opens a UDP socket with SO_BROADCAST enabled so datagrams
// can be sent to 255.255.255.255. UDP keeps message boundaries, so discovery
// datagrams carry no length prefix.
package transport
