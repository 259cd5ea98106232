// Package protocol defines the seclink wire messages, the codec that turns
// them into bytes, and the error classification shared by the session client
// and discovery.
//
// # Messages
//
//   - HandshakeMessage: server key material one way, the client AES key the other.
//   - CodeCheckMessage: the access code and the server verdict.
//   - DiscoveryMessage: UDP discovery requests and responses.
//
// The default JSONCodec uses lower_snake_case field names, base64 for byte
// fields and omits absent optional fields, for example:
//
//	{"rsa_key_information":{"exponent":"AQAB","modulus":"..."}}
//	{"aes_key":"q83vEjRWeJq83vEjRWeJq83vEjRWeJq83vEjRWeJq80="}
//	{"type":"RESPONSE","name":"living-room","address":{"ip":"192.168.1.20","port":7000}}
//
// # Errors
//
// Failures are reported as *Error values tagged with an ErrorKind. Wrapped
// causes stay reachable with errors.Is and errors.As.
package protocol
