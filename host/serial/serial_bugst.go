package serial

import (
	"fmt"

	bugst "go.bug.st/serial"
)

// BugSTPort wraps the go.bug.st/serial implementation
type BugSTPort struct {
	port bugst.Port
	cfg  *Config
}

func openBugST(cfg *Config) (Port, error) {
	mode := &bugst.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}

	port, err := bugst.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Device, err)
		}
	}

	return &BugSTPort{
		port: port,
		cfg:  cfg,
	}, nil
}

func (p *BugSTPort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *BugSTPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *BugSTPort) Close() error {
	return p.port.Close()
}

// Flush blocks until all written data has been transmitted
func (p *BugSTPort) Flush() error {
	return p.port.Drain()
}
