package transport

// Kind identifies the medium behind a Transport.
type Kind int

const (
	// KindUnknown is the zero value for an unknown medium.
	KindUnknown Kind = iota
	// KindSerial is a serial port (UART, USB-CDC).
	KindSerial
	// KindTCP is a TCP byte stream, typically a serial-to-network bridge.
	KindTCP
	// KindPipe is an in-memory pipe.
	KindPipe
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindTCP:
		return "tcp"
	case KindPipe:
		return "pipe"
	default:
		return "unknown"
	}
}

// IsValid returns true if the kind can be opened from an Endpoint.
func (k Kind) IsValid() bool {
	return k == KindSerial || k == KindTCP
}
