package transport

import (
	"fmt"
	"net"
	"strings"
)

// Endpoint names the far end of a link: a serial port or a TCP address.
type Endpoint struct {
	// Kind is the medium.
	Kind Kind
	// Address is the port name for serial or host:port for TCP.
	Address string
}

// String returns the endpoint as "kind:address".
func (e Endpoint) String() string {
	if e.Address == "" {
		return fmt.Sprintf("%s:<none>", e.Kind)
	}
	return fmt.Sprintf("%s:%s", e.Kind, e.Address)
}

// IsValid returns true if the endpoint has a known kind and an address.
func (e Endpoint) IsValid() bool {
	return e.Kind.IsValid() && e.Address != ""
}

// SerialEndpoint creates an Endpoint for a serial port.
func SerialEndpoint(port string) Endpoint {
	return Endpoint{Kind: KindSerial, Address: port}
}

// TCPEndpoint creates an Endpoint for a TCP address.
func TCPEndpoint(addr string) Endpoint {
	return Endpoint{Kind: KindTCP, Address: addr}
}

// ParseEndpoint parses "serial:NAME" or "tcp:HOST:PORT". A string without a
// known prefix is taken as a serial port name.
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, ErrInvalidEndpoint
	}

	if rest, ok := strings.CutPrefix(s, "tcp:"); ok {
		if _, _, err := net.SplitHostPort(rest); err != nil {
			return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
		}
		return TCPEndpoint(rest), nil
	}
	if rest, ok := strings.CutPrefix(s, "serial:"); ok {
		if rest == "" {
			return Endpoint{}, ErrInvalidEndpoint
		}
		return SerialEndpoint(rest), nil
	}
	return SerialEndpoint(s), nil
}
