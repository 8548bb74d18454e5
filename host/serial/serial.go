package serial

import (
	"errors"
	"io"
	"time"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (github.com/tarm/serial or go.bug.st/serial)
// - Mock serial (for testing)
//
// Read returns (0, nil) when the read timeout expires without data.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered output
	Flush() error
}

// InputWaiter is implemented by ports that can report how many received
// bytes are waiting to be read
type InputWaiter interface {
	InWaiting() (int, error)
}

// Driver selects the serial backend
type Driver string

const (
	DriverTarm  Driver = "tarm"  // github.com/tarm/serial, 100ms timeout granularity
	DriverBugST Driver = "bugst" // go.bug.st/serial, millisecond timeouts

	DefaultDriver = DriverBugST
)

// tarm/serial maps the read timeout onto termios VTIME, in tenths of a second
const (
	tarmTimeoutStep = 100 * time.Millisecond
	tarmTimeoutMax  = 255 * tarmTimeoutStep
)

// EffectiveTimeout returns the read timeout the backend actually applies
// when asked for timeout
func (d Driver) EffectiveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	switch d {
	case DriverTarm:
		timeout = timeout.Truncate(tarmTimeoutStep)
		if timeout < tarmTimeoutStep {
			return tarmTimeoutStep
		}
		return min(timeout, tarmTimeoutMax)
	default:
		return timeout
	}
}

// Defaults used by the focus stacking firmware
const (
	DefaultDevice = "/dev/ttyACM0"
	DefaultBaud   = 9600
)

var ErrUnknownDriver = errors.New("unknown serial driver")

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC devices ignore this)
	Baud int

	// Read timeout (0 = blocking)
	ReadTimeout time.Duration

	// Backend, DefaultDriver when empty
	Driver Driver
}

// DefaultConfig returns a default configuration for the stacking firmware
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100 * time.Millisecond,
		Driver:      DefaultDriver,
	}
}

// Opener opens a port; Open is the production implementation
type Opener func(cfg *Config) (Port, error)

// PacketTimeout returns the time needed to receive packetSize bytes at baud,
// plus a 10% margin
func PacketTimeout(packetSize, baud int) time.Duration {
	if baud <= 0 {
		return 0
	}
	seconds := float64(packetSize) * 1.1 / float64(baud)
	return time.Duration(seconds * float64(time.Second))
}
