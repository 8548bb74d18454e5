// Package link runs the duplex serial transport between the host and the
// stacking controller. A single background loop owns the serial port; callers
// talk to it through two bounded queues.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"stackctl/host/serial"
	"stackctl/protocol"
)

// State is the connection state of a Transport
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Defaults for Config
const (
	DefaultPollInterval = time.Millisecond
	DefaultQueueSize    = 1024
)

var (
	ErrStopped    = errors.New("transport stopped")
	ErrNotRunning = errors.New("transport not started")
)

// Config configures a Transport
type Config struct {
	PacketSize    int
	PollInterval  time.Duration
	InboundQueue  int
	OutboundQueue int
	Overflow      OverflowPolicy

	// Driver is passed to Opener for every Connect
	Driver serial.Driver
	Opener serial.Opener

	Logger  zerolog.Logger
	Metrics *Metrics
}

// DefaultConfig returns the settings used by the command line tool
func DefaultConfig() Config {
	return Config{
		PacketSize:    protocol.DefaultPacketSize,
		PollInterval:  DefaultPollInterval,
		InboundQueue:  DefaultQueueSize,
		OutboundQueue: DefaultQueueSize,
		Overflow:      DropOldest,
		Driver:        serial.DefaultDriver,
		Opener:        serial.Open,
		Logger:        zerolog.Nop(),
	}
}

// ConnectOption adjusts the serial configuration used by Connect
type ConnectOption func(*serial.Config)

// WithDriver overrides the configured serial backend
func WithDriver(d serial.Driver) ConnectOption {
	return func(c *serial.Config) { c.Driver = d }
}

// WithReadTimeout overrides the per-packet read timeout derived from the baud rate
func WithReadTimeout(d time.Duration) ConnectOption {
	return func(c *serial.Config) { c.ReadTimeout = d }
}

// Stats is a snapshot of transport counters
type Stats struct {
	Sent          uint64 `json:"sent" yaml:"sent"`
	Received      uint64 `json:"received" yaml:"received"`
	Incomplete    uint64 `json:"incomplete" yaml:"incomplete"`
	Undecodable   uint64 `json:"undecodable" yaml:"undecodable"`
	EncodeErrors  uint64 `json:"encode_errors" yaml:"encode_errors"`
	Dropped       uint64 `json:"dropped" yaml:"dropped"`
	ConnectErrors uint64 `json:"connect_errors" yaml:"connect_errors"`
	IOErrors      uint64 `json:"io_errors" yaml:"io_errors"`
}

type counters struct {
	sent, received, incomplete, undecodable atomic.Uint64
	encodeErrors, dropped                   atomic.Uint64
	connectErrors, ioErrors                 atomic.Uint64
}

// attachment is an opened port waiting to be adopted by the loop
type attachment struct {
	port        serial.Port
	name        string
	readTimeout time.Duration
}

// Transport moves messages between the caller and the device. Connect opens
// a port on the caller's goroutine and hands it to the loop; the loop then
// owns every read, write and close of that port.
type Transport struct {
	cfg   Config
	codec *protocol.Codec
	log   zerolog.Logger

	inbound  *queue[Inbound]
	outbound *queue[protocol.Message]
	attach   chan attachment

	// serialises Connect, Start and Stop
	lifecycle sync.Mutex

	state   atomic.Int32
	started atomic.Bool
	pending atomic.Int64
	portID  atomic.String
	stats   counters

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	// owned by the loop
	port        serial.Port
	portName    string
	readTimeout time.Duration
}

// New creates a stopped-but-startable Transport. Zero fields in cfg take
// their DefaultConfig value.
func New(cfg Config) (*Transport, error) {
	def := DefaultConfig()
	if cfg.PacketSize == 0 {
		cfg.PacketSize = def.PacketSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.InboundQueue <= 0 {
		cfg.InboundQueue = def.InboundQueue
	}
	if cfg.OutboundQueue <= 0 {
		cfg.OutboundQueue = def.OutboundQueue
	}
	if cfg.Opener == nil {
		cfg.Opener = def.Opener
	}
	if cfg.Driver == "" {
		cfg.Driver = def.Driver
	}
	policy, err := ParseOverflowPolicy(string(cfg.Overflow))
	if err != nil {
		return nil, err
	}
	cfg.Overflow = policy

	codec, err := protocol.NewCodec(cfg.PacketSize)
	if err != nil {
		return nil, fmt.Errorf("invalid packet size: %w", err)
	}

	return &Transport{
		cfg:      cfg,
		codec:    codec,
		log:      cfg.Logger.With().Str("component", "link").Logger(),
		inbound:  newQueue[Inbound](cfg.InboundQueue, policy),
		outbound: newQueue[protocol.Message](cfg.OutboundQueue, policy),
		attach:   make(chan attachment, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// State returns the current connection state
func (t *Transport) State() State {
	return State(t.state.Load())
}

// Port returns the name of the most recently connected port
func (t *Transport) Port() string {
	return t.portID.Load()
}

// Running reports whether the loop has been started and not stopped
func (t *Transport) Running() bool {
	return t.started.Load() && t.State() != StateStopped
}

// PacketSize returns the fixed wire packet length
func (t *Transport) PacketSize() int {
	return t.codec.PacketSize()
}

// Connect opens port at baud. It emits exactly one Connected or ConnectError
// event on the inbound queue and reports success. A handle already attached
// is replaced.
func (t *Transport) Connect(port string, baud int, opts ...ConnectOption) bool {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.State() == StateStopped {
		t.connectFailed(port, ErrStopped)
		return false
	}

	cfg := &serial.Config{
		Device:      port,
		Baud:        baud,
		ReadTimeout: serial.PacketTimeout(t.codec.PacketSize(), baud),
		Driver:      t.cfg.Driver,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if eff := cfg.Driver.EffectiveTimeout(cfg.ReadTimeout); eff > cfg.ReadTimeout {
		t.log.Warn().Str("driver", string(cfg.Driver)).Dur("read_timeout", cfg.ReadTimeout).
			Dur("effective", eff).Msg("serial backend rounds up the read timeout, idle reads will block longer")
	}

	p, err := t.cfg.Opener(cfg)
	if err != nil {
		t.connectFailed(port, err)
		return false
	}

	// a handle the loop never adopted is simply closed
	select {
	case old := <-t.attach:
		old.port.Close()
	default:
	}
	t.attach <- attachment{port: p, name: port, readTimeout: cfg.ReadTimeout}

	t.portID.Store(port)
	t.state.Store(int32(StateConnected))
	t.log.Info().Str("port", port).Int("baud", baud).Str("driver", string(cfg.Driver)).Msg("connected")
	t.emit(Event{Type: EventConnected, Port: port})
	return true
}

func (t *Transport) connectFailed(port string, err error) {
	t.stats.connectErrors.Inc()
	t.log.Warn().Str("port", port).Err(err).Msg("connect failed")
	t.emit(Event{Type: EventConnectError, Port: port, Detail: err.Error(), Err: err})
}

// Start launches the background loop. Calling it again, or after Stop, does
// nothing.
func (t *Transport) Start() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.State() == StateStopped {
		return
	}
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	t.log.Debug().Dur("poll_interval", t.cfg.PollInterval).Msg("transport started")
	go t.run()
}

// Stop ends the loop, waits for it to exit and closes the port. Stop is
// idempotent and final.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() {
		t.lifecycle.Lock()
		t.state.Store(int32(StateStopped))
		t.lifecycle.Unlock()

		close(t.stopCh)
		if t.started.Load() {
			<-t.doneCh
		}

		select {
		case a := <-t.attach:
			a.port.Close()
		default:
		}
		t.cfg.Metrics.setConnected(false)
		t.log.Debug().Msg("transport stopped")
	})
}

// Send queues msg for transmission and returns immediately. When the
// outbound queue is full the overflow policy decides what is dropped.
func (t *Transport) Send(msg protocol.Message) {
	t.pending.Inc()
	if n := t.outbound.push(msg); n > 0 {
		t.pending.Sub(int64(n))
		t.dropped("outbound", n)
	}
}

// Receive returns the next inbound item without blocking
func (t *Transport) Receive() (Inbound, bool) {
	return t.inbound.tryPop()
}

// Pending returns the number of sent messages not yet written or discarded
func (t *Transport) Pending() int {
	return int(t.pending.Load())
}

// Flush waits until every message passed to Send has been written or
// discarded
func (t *Transport) Flush(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for t.pending.Load() > 0 {
		switch {
		case t.State() == StateStopped:
			return ErrStopped
		case !t.started.Load():
			return ErrNotRunning
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Stats returns a snapshot of the transport counters
func (t *Transport) Stats() Stats {
	return Stats{
		Sent:          t.stats.sent.Load(),
		Received:      t.stats.received.Load(),
		Incomplete:    t.stats.incomplete.Load(),
		Undecodable:   t.stats.undecodable.Load(),
		EncodeErrors:  t.stats.encodeErrors.Load(),
		Dropped:       t.stats.dropped.Load(),
		ConnectErrors: t.stats.connectErrors.Load(),
		IOErrors:      t.stats.ioErrors.Load(),
	}
}

func (t *Transport) dropped(queue string, n int) {
	t.stats.dropped.Add(uint64(n))
	t.cfg.Metrics.drop(queue, n)
	t.log.Warn().Str("queue", queue).Int("dropped", n).Str("policy", string(t.cfg.Overflow)).Msg("queue full")
}

func (t *Transport) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	t.cfg.Metrics.event(ev.Type)
	t.deliver(Inbound{Event: &ev})
}

func (t *Transport) deliver(in Inbound) {
	if n := t.inbound.push(in); n > 0 {
		t.dropped("inbound", n)
	}
}

// run is the transport loop: one write attempt and one read attempt per tick
func (t *Transport) run() {
	defer close(t.doneCh)
	defer t.closePort()

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	buf := make([]byte, t.codec.PacketSize())
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
		}

		t.adopt()
		t.processTx()
		if t.port == nil {
			continue
		}
		t.processRx(buf)
	}
}

// adopt takes ownership of a port handed over by Connect
func (t *Transport) adopt() {
	select {
	case a := <-t.attach:
		if t.port != nil {
			t.log.Debug().Str("port", t.portName).Msg("replacing serial port")
			t.closePort()
		}
		t.port = a.port
		t.portName = a.name
		t.readTimeout = a.readTimeout
		t.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnected))
		t.cfg.Metrics.setConnected(true)
	default:
	}
}

func (t *Transport) closePort() {
	if t.port == nil {
		return
	}
	if err := t.port.Close(); err != nil {
		t.log.Debug().Str("port", t.portName).Err(err).Msg("close failed")
	}
	t.port = nil
	t.cfg.Metrics.setConnected(false)
}

// fail drops the port after an I/O error and reports it. The loop keeps
// running so a later Connect can recover.
func (t *Transport) fail(op string, err error) {
	name := t.portName
	t.closePort()
	t.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected))
	t.stats.ioErrors.Inc()
	t.log.Error().Str("port", name).Str("op", op).Err(err).Msg("serial I/O failed")
	t.emit(Event{Type: EventIOError, Port: name, Detail: fmt.Sprintf("%s: %v", op, err), Err: err})
}

func (t *Transport) processTx() {
	msg, ok := t.outbound.tryPop()
	if !ok {
		return
	}
	defer t.pending.Dec()

	packet, err := t.codec.Encode(msg)
	if err != nil {
		t.stats.encodeErrors.Inc()
		t.log.Error().Err(err).Str("kind", msg.Kind.String()).Msg("encode failed, message dropped")
		return
	}

	if t.port == nil {
		t.stats.dropped.Inc()
		t.cfg.Metrics.drop("outbound", 1)
		t.log.Warn().Str("kind", msg.Kind.String()).Msg("not connected, message dropped")
		return
	}

	n, err := t.port.Write(packet)
	if err == nil && n != len(packet) {
		err = fmt.Errorf("%w: %d/%d bytes", io.ErrShortWrite, n, len(packet))
	}
	if err != nil {
		t.fail("write", err)
		return
	}

	t.stats.sent.Inc()
	t.cfg.Metrics.packet("tx")
	t.log.Trace().Str("msg", msg.String()).Msg("sent")
}

func (t *Transport) processRx(buf []byte) {
	n, err := t.readPacket(buf)
	if err != nil {
		t.fail("read", err)
		return
	}
	switch {
	case n == 0:
		return
	case n != len(buf):
		t.stats.incomplete.Inc()
		t.cfg.Metrics.incompletePacket()
		t.log.Warn().Int("bytes", n).Int("packet_size", len(buf)).Msg("incomplete packet discarded")
		return
	}

	msg, err := t.codec.Decode(buf)
	if err != nil {
		t.stats.undecodable.Inc()
		t.cfg.Metrics.undecodablePacket()
		t.log.Warn().Err(err).Msg("undecodable packet discarded")
		return
	}

	t.stats.received.Inc()
	t.cfg.Metrics.packet("rx")
	t.log.Trace().Str("msg", msg.String()).Msg("received")
	t.deliver(Inbound{Message: &msg})
}

// readPacket fills buf or gives up when the read timeout expires. It returns
// 0 when nothing was pending.
func (t *Transport) readPacket(buf []byte) (int, error) {
	waiter, canWait := t.port.(serial.InputWaiter)
	if canWait {
		waiting, err := waiter.InWaiting()
		if err != nil {
			return 0, err
		}
		if waiting == 0 {
			return 0, nil
		}
	}

	deadline := time.Now().Add(t.readTimeout)
	got := 0
	for got < len(buf) {
		n, err := t.port.Read(buf[got:])
		got += n
		if err != nil {
			return got, err
		}
		if n > 0 {
			continue
		}
		// without InWaiting the first empty read already waited a full timeout
		if got == 0 && !canWait {
			return 0, nil
		}
		if !time.Now().Before(deadline) {
			break
		}
	}
	return got, nil
}
