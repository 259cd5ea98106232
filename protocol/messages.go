package protocol

import (
	"encoding/json"
	"net"
	"strconv"
)

// EndpointAddress identifies a reachable server.
type EndpointAddress struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// IsValid reports whether the address has an IP and a non-zero port.
func (a EndpointAddress) IsValid() bool {
	return a.IP != "" && a.Port != 0
}

// String returns the address in host:port form.
func (a EndpointAddress) String() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(a.Port))
}

// ParseEndpointAddress parses a host:port string.
func ParseEndpointAddress(s string) (EndpointAddress, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return EndpointAddress{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return EndpointAddress{}, &net.AddrError{Err: "invalid port", Addr: s}
	}
	return EndpointAddress{IP: host, Port: int(port)}, nil
}

// RSAKeyInfo carries the server public key as raw big-endian unsigned
// exponent and modulus bytes.
type RSAKeyInfo struct {
	Exponent []byte `json:"exponent"`
	Modulus  []byte `json:"modulus"`
}

// HandshakeMessage is exchanged once per connection. The server fills
// RSAKeyInformation; the client answers with AESKey only.
type HandshakeMessage struct {
	RSAKeyInformation *RSAKeyInfo `json:"rsa_key_information,omitempty"`
	AESKey            []byte      `json:"aes_key"`
}

// CodeCheckMessage carries the access code to the server and the server's
// verdict back. The client only ever sets Code.
type CodeCheckMessage struct {
	Code          string `json:"code"`
	IsCodeCorrect bool   `json:"is_code_correct"`
}

// DiscoveryType distinguishes discovery requests from responses.
type DiscoveryType string

const (
	DiscoveryRequest  DiscoveryType = "REQUEST"
	DiscoveryResponse DiscoveryType = "RESPONSE"
)

// DiscoveryMessage is the UDP discovery datagram.
type DiscoveryMessage struct {
	Type    DiscoveryType    `json:"type"`
	Name    string           `json:"name"`
	Address *EndpointAddress `json:"address,omitempty"`

	// hasName is set when a decoded datagram carried a non-null name.
	hasName bool
}

type discoveryWire struct {
	Type    DiscoveryType    `json:"type"`
	Name    *string          `json:"name"`
	Address *EndpointAddress `json:"address"`
}

// UnmarshalJSON decodes a datagram and records whether its name was present.
func (m *DiscoveryMessage) UnmarshalJSON(data []byte) error {
	var w discoveryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = DiscoveryMessage{Type: w.Type, Address: w.Address, hasName: w.Name != nil}
	if w.Name != nil {
		m.Name = *w.Name
	}
	return nil
}

// NewDiscoveryRequest builds the request a client broadcasts.
func NewDiscoveryRequest(name string) *DiscoveryMessage {
	return &DiscoveryMessage{Type: DiscoveryRequest, Name: name}
}

// IsValidResponse reports whether m is a usable discovery response. The
// name must be present but may be empty.
func (m *DiscoveryMessage) IsValidResponse() bool {
	return m != nil &&
		m.Type == DiscoveryResponse &&
		m.Address != nil && m.Address.IsValid() &&
		(m.hasName || m.Name != "")
}

// DiscoveredEndpoint is a server found during discovery.
type DiscoveredEndpoint struct {
	Name    string          `json:"name"`
	Address EndpointAddress `json:"address"`
}

// IsSetupMessage reports whether model may be sent before the access code
// has been accepted.
func IsSetupMessage(model any) bool {
	switch model.(type) {
	case HandshakeMessage, *HandshakeMessage, CodeCheckMessage, *CodeCheckMessage:
		return true
	default:
		return false
	}
}
