package rig

import (
	"sync"

	"stackctl/host/serial"
	"stackctl/protocol"
)

// SimulatedVersion is the build reported by a Simulator
var SimulatedVersion = protocol.Version{Hash: "simulator", Staged: 0, Unstaged: 0}

// Simulator answers packets written to a MockPort the way the controller
// firmware does: get_ requests are echoed with the device state filled in,
// set_ and action_ requests change that state silently.
type Simulator struct {
	mu       sync.Mutex
	port     *serial.MockPort
	codec    *protocol.Codec
	config   protocol.Config
	exposure uint32
	position int32
	progress protocol.Progress
	received []protocol.Message
}

// NewSimulator attaches a simulated device to port
func NewSimulator(port *serial.MockPort, packetSize int) (*Simulator, error) {
	codec, err := protocol.NewCodec(packetSize)
	if err != nil {
		return nil, err
	}
	s := &Simulator{
		port:     port,
		codec:    codec,
		config:   *protocol.DefaultConfig(),
		progress: protocol.Progress{IsIdle: true},
	}
	port.OnWrite(s.handle)
	return s, nil
}

// SimulatorOpener returns a serial.Opener that connects to a fresh simulated
// device on every call
func SimulatorOpener(packetSize int) serial.Opener {
	return func(cfg *serial.Config) (serial.Port, error) {
		port := serial.NewMockPort()
		if _, err := NewSimulator(port, packetSize); err != nil {
			return nil, err
		}
		return port, nil
	}
}

// Received returns every message the simulator has decoded
func (s *Simulator) Received() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.received...)
}

// Position returns the motor position in steps relative to home
func (s *Simulator) Position() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Exposure returns the last exposure set
func (s *Simulator) Exposure() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposure
}

// Config returns a copy of the simulated configuration
func (s *Simulator) Config() protocol.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Report queues an unsolicited progress message, as the firmware does every
// status interval
func (s *Simulator) Report() {
	s.mu.Lock()
	p := s.progress
	s.mu.Unlock()
	s.reply(protocol.Message{Kind: protocol.GetProgress, Payload: &p})
}

func (s *Simulator) handle(packet []byte) {
	msg, err := s.codec.Decode(packet)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.received = append(s.received, msg)
	var reply *protocol.Message
	switch msg.Kind {
	case protocol.GetStatus:
		reply = &protocol.Message{Kind: protocol.GetStatus}
	case protocol.GetVersion:
		v := SimulatedVersion
		reply = &protocol.Message{Kind: protocol.GetVersion, Payload: &v}
	case protocol.GetConfig:
		c := s.config
		reply = &protocol.Message{Kind: protocol.GetConfig, Payload: &c}
	case protocol.GetProgress:
		p := s.progress
		reply = &protocol.Message{Kind: protocol.GetProgress, Payload: &p}
	case protocol.SetConfig:
		s.config = *msg.Payload.(*protocol.Config)
	case protocol.SetExposure:
		s.exposure = msg.Payload.(*protocol.Exposure).Micros
	case protocol.ActionMotor:
		s.position += msg.Payload.(*protocol.Motor).Steps
	case protocol.ActionHome:
		s.position = 0
	case protocol.ActionStack:
		s.progress = protocol.Progress{
			CurrentState: protocol.StateRunning,
			CurrentStep:  1,
			StackCount:   s.config.StackCount,
		}
	case protocol.ActionStop:
		s.progress.CurrentState = protocol.StateHalted
		s.progress.IsIdle = true
	}
	s.mu.Unlock()

	if reply != nil {
		s.reply(*reply)
	}
}

func (s *Simulator) reply(msg protocol.Message) {
	packet, err := s.codec.Encode(msg)
	if err != nil {
		return
	}
	s.port.Feed(packet)
}
