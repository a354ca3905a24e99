package tsproxy

//
// SOCKS5 wire format (RFC1928 subset)
//

import (
	"errors"
	"net/netip"
)

const (
	socks5Version  = uint8(5)
	methodNoAuth   = uint8(0)
	connectCommand = uint8(1)
	ipv4Address    = uint8(1)
	fqdnAddress    = uint8(3)
	ipv6Address    = uint8(4)
)

const (
	successReply         = uint8(0)
	hostUnreachableReply = uint8(4)
)

var (
	// ErrBadVersion indicates a message with a version other than 5.
	ErrBadVersion = errors.New("socks5: unsupported version")

	// ErrNoAcceptableAuth indicates a handshake without the no-auth method
	// or whose method count does not match its length.
	ErrNoAcceptableAuth = errors.New("socks5: no acceptable authentication method")

	// ErrUnsupportedCommand indicates a command other than CONNECT.
	ErrUnsupportedCommand = errors.New("socks5: unsupported command")

	// ErrMalformedAddress indicates a truncated request, an unknown address
	// type, an empty domain, or a zero port.
	ErrMalformedAddress = errors.New("socks5: malformed address")
)

// parseHandshake validates the method selection message.
func parseHandshake(data []byte) error {
	if len(data) < 2 || data[0] != socks5Version {
		return ErrBadVersion
	}
	count := int(data[1])
	if len(data) != count+2 {
		return ErrNoAcceptableAuth
	}
	for _, method := range data[2:] {
		if method == methodNoAuth {
			return nil
		}
	}
	return ErrNoAcceptableAuth
}

// handshakeReply is the reply selecting the no-auth method.
func handshakeReply() []byte {
	return []byte{socks5Version, methodNoAuth}
}

// connectRequest is a parsed CONNECT request.
type connectRequest struct {
	// Addr is the requested address for IPv4 and IPv6 requests.
	Addr netip.Addr

	// Hostname is the requested name for domain requests.
	Hostname string

	// Port is the requested port.
	Port uint16

	// Echo contains the request bytes from the address type through
	// the port, which every reply echoes back.
	Echo []byte
}

// parseConnectRequest parses a CONNECT request.
func parseConnectRequest(data []byte) (*connectRequest, error) {
	if len(data) < 10 {
		return nil, ErrMalformedAddress
	}
	if data[0] != socks5Version {
		return nil, ErrBadVersion
	}
	if data[1] != connectCommand {
		return nil, ErrUnsupportedCommand
	}
	if data[2] != 0 {
		return nil, ErrMalformedAddress
	}
	req := &connectRequest{}
	var portOffset int
	switch data[3] {
	case ipv4Address:
		portOffset = 8
		req.Addr = netip.AddrFrom4([4]byte(data[4:8]))
	case fqdnAddress:
		size := int(data[4])
		if size <= 0 || len(data) < 7+size {
			return nil, ErrMalformedAddress
		}
		portOffset = 5 + size
		req.Hostname = string(data[5:portOffset])
	case ipv6Address:
		if len(data) < 22 {
			return nil, ErrMalformedAddress
		}
		portOffset = 20
		req.Addr = netip.AddrFrom16([16]byte(data[4:20]))
	default:
		return nil, ErrMalformedAddress
	}
	req.Port = uint16(data[portOffset])<<8 | uint16(data[portOffset+1])
	if req.Port == 0 {
		return nil, ErrMalformedAddress
	}
	req.Echo = append([]byte{}, data[3:portOffset+2]...)
	return req, nil
}

// newReply builds a reply carrying the given code and echo.
func newReply(code uint8, echo []byte) []byte {
	reply := []byte{socks5Version, code, 0}
	return append(reply, echo...)
}
