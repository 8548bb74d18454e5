package serial

import (
	"errors"
	"fmt"
	"io"

	"github.com/tarm/serial"
)

// Open opens a native serial port using the configured driver
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.Driver {
	case DriverTarm:
		return openTarm(cfg)
	case "", DriverBugST:
		return openBugST(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// NativePort wraps the tarm/serial implementation
type NativePort struct {
	port *serial.Port
	cfg  *Config
}

func openTarm(cfg *Config) (Port, error) {
	serialConfig := &serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	}

	port, err := serial.OpenPort(serialConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	return &NativePort{
		port: port,
		cfg:  cfg,
	}, nil
}

// Read reads data from the serial port.
// tarm/serial reports an expired read timeout as io.EOF; that is mapped
// to (0, nil) to match the Port contract.
func (p *NativePort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

// Write writes data to the serial port
func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close closes the serial port
func (p *NativePort) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Flush flushes the serial port buffers
func (p *NativePort) Flush() error {
	// tarm/serial writes synchronously, Write() has already handed
	// everything to the driver
	return nil
}
