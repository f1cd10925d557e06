package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialConfig configures a serial port transport. The line is always 8N1.
type SerialConfig struct {
	// Port is the OS port name, e.g. "/dev/ttyACM0" or "COM3". Required.
	Port string

	// BaudRate is the line speed. Default: DefaultBaudRate.
	BaudRate int

	// ReadTimeout bounds a single Read. A Read that times out returns (0, nil).
	// Default: DefaultReadTimeout.
	ReadTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Serial is a Transport over a serial port.
type Serial struct {
	port serial.Port
	name string
	log  logging.LeveledLogger

	wmu    sync.Mutex
	mu     sync.Mutex
	closed bool
}

// OpenSerial opens and configures a serial port.
func OpenSerial(config SerialConfig) (*Serial, error) {
	if config.Port == "" {
		return nil, ErrNoPort
	}
	if config.BaudRate == 0 {
		config.BaudRate = DefaultBaudRate
	}
	if config.BaudRate < 0 {
		return nil, ErrInvalidBaudRate
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}

	port, err := serial.Open(config.Port, &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		var perr *serial.PortError
		if errors.As(err, &perr) && perr.Code() == serial.PortNotFound {
			return nil, fmt.Errorf("%w: %s", ErrPortNotFound, config.Port)
		}
		return nil, fmt.Errorf("transport: open %s: %w", config.Port, err)
	}
	if err := port.SetReadTimeout(config.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: set read timeout: %w", err)
	}

	s := &Serial{port: port, name: config.Port}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("transport-serial")
		s.log.Infof("opened %s at %d baud, read timeout %s", config.Port, config.BaudRate, config.ReadTimeout)
	}
	return s, nil
}

// Name returns the port name.
func (s *Serial) Name() string {
	return s.name
}

// Read reads from the port. It returns (0, nil) when the read timeout
// expires with nothing received.
func (s *Serial) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err != nil {
		var perr *serial.PortError
		if errors.As(err, &perr) && perr.Code() == serial.PortClosed {
			return n, ErrClosed
		}
	}
	return n, err
}

// Write writes p to the port.
func (s *Serial) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return s.port.Write(p)
}

// Close closes the port. It is safe to call more than once.
func (s *Serial) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.log != nil {
		s.log.Infof("closing %s", s.name)
	}
	return s.port.Close()
}

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// String returns a one-line description of the port.
func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	s := fmt.Sprintf("%s [USB %s:%s]", p.Name, p.VID, p.PID)
	if p.SerialNumber != "" {
		s += " serial=" + p.SerialNumber
	}
	if p.Product != "" {
		s += " " + p.Product
	}
	return s
}

// ListPorts enumerates serial ports on the host. With usbOnly set, ports
// that are not USB devices are skipped.
func ListPorts(usbOnly bool) ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("transport: list ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if usbOnly && !d.IsUSB {
			continue
		}
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}
