// Package rig wraps a link.Transport with typed calls for every operation of
// the stacking controller
package rig

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stackctl/host/link"
	"stackctl/protocol"
)

// DefaultTimeout bounds a request when the caller's context has no deadline
const DefaultTimeout = 2 * time.Second

var ErrNotConnected = errors.New("not connected to rig")

// Options configures a Rig
type Options struct {
	// Timeout applies to requests whose context has no deadline; 0 disables it
	Timeout      time.Duration
	PollInterval time.Duration
	Logger       zerolog.Logger
	Metrics      *link.Metrics

	// Observer receives connection events consumed while waiting for replies
	Observer func(link.Event)
}

// Rig represents the stacking controller behind a transport. Exchanges are
// serialised so concurrent callers never take each other's replies.
type Rig struct {
	transport *link.Transport
	opts      Options
	log       zerolog.Logger
	mu        sync.Mutex

	// last configuration read from or written to the device
	cfgMu  sync.Mutex
	config *protocol.Config
}

// New creates a Rig over an already configured transport
func New(t *link.Transport, opts Options) *Rig {
	if opts.PollInterval <= 0 {
		opts.PollInterval = link.DefaultRequestPollInterval
	}
	return &Rig{
		transport: t,
		opts:      opts,
		log:       opts.Logger.With().Str("component", "rig").Logger(),
	}
}

// Transport returns the underlying transport
func (r *Rig) Transport() *link.Transport {
	return r.transport
}

// IsConnected returns whether the transport currently holds a port
func (r *Rig) IsConnected() bool {
	return r.transport.State() == link.StateConnected
}

func (r *Rig) waitOptions() []link.WaitOption {
	return []link.WaitOption{
		link.WithPollInterval(r.opts.PollInterval),
		link.WithObserver(r.observe),
		link.WithMetrics(r.opts.Metrics),
	}
}

func (r *Rig) observe(ev link.Event) {
	if ev.IsError() {
		r.log.Warn().Str("event", ev.Type.String()).Str("port", ev.Port).Msg(ev.Detail)
	} else {
		r.log.Debug().Str("event", ev.Type.String()).Str("port", ev.Port).Msg("link event")
	}
	if r.opts.Observer != nil {
		r.opts.Observer(ev)
	}
}

func (r *Rig) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || r.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opts.Timeout)
}

// Request sends msg and waits for the reply of the same kind. Messages of
// other kinds that arrive first, such as periodic progress reports, are
// logged and skipped.
func (r *Rig) Request(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	if r.transport.State() == link.StateStopped {
		return protocol.Message{}, link.ErrStopped
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := r.context(ctx)
	defer cancel()

	reply, err := link.SendAndWait(ctx, r.transport, msg, r.waitOptions()...)
	for err == nil && reply.Kind != msg.Kind {
		r.log.Debug().Str("want", msg.Kind.String()).Str("got", reply.String()).Msg("skipping unrelated message")
		reply, err = link.WaitForMessage(ctx, r.transport, r.waitOptions()...)
	}
	if err != nil {
		return protocol.Message{}, fmt.Errorf("%s: %w", msg.Kind, err)
	}
	return reply, nil
}

// Post queues msg and waits until it has been written to the port
func (r *Rig) Post(ctx context.Context, msg protocol.Message) error {
	if !r.IsConnected() {
		return ErrNotConnected
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := r.context(ctx)
	defer cancel()

	r.transport.Send(msg)
	if err := r.transport.Flush(ctx); err != nil {
		return fmt.Errorf("%s: %w", msg.Kind, err)
	}
	r.log.Debug().Str("msg", msg.String()).Msg("posted")
	return nil
}

// Status pings the device with get_status
func (r *Rig) Status(ctx context.Context) error {
	_, err := r.Request(ctx, protocol.Message{Kind: protocol.GetStatus})
	return err
}

// Version reads the firmware build version
func (r *Rig) Version(ctx context.Context) (*protocol.Version, error) {
	reply, err := r.Request(ctx, protocol.NewMessage(protocol.GetVersion))
	if err != nil {
		return nil, err
	}
	return reply.Payload.(*protocol.Version), nil
}

// Config reads the device configuration and caches it
func (r *Rig) Config(ctx context.Context) (*protocol.Config, error) {
	reply, err := r.Request(ctx, protocol.NewMessage(protocol.GetConfig))
	if err != nil {
		return nil, err
	}
	cfg := reply.Payload.(*protocol.Config)
	r.setCached(cfg)
	return cfg, nil
}

// Progress reads the stacking progress
func (r *Rig) Progress(ctx context.Context) (*protocol.Progress, error) {
	reply, err := r.Request(ctx, protocol.NewMessage(protocol.GetProgress))
	if err != nil {
		return nil, err
	}
	return reply.Payload.(*protocol.Progress), nil
}

// SetConfig normalizes cfg and writes it to the device
func (r *Rig) SetConfig(ctx context.Context, cfg *protocol.Config) error {
	out := *cfg
	out.Normalize()
	if err := r.Post(ctx, protocol.Message{Kind: protocol.SetConfig, Payload: &out}); err != nil {
		return err
	}
	r.setCached(&out)
	return nil
}

func (r *Rig) setCached(cfg *protocol.Config) {
	c := *cfg
	r.cfgMu.Lock()
	r.config = &c
	r.cfgMu.Unlock()
}

func (r *Rig) cached() *protocol.Config {
	r.cfgMu.Lock()
	defer r.cfgMu.Unlock()
	return r.config
}

// SetExposure sets the camera exposure time
func (r *Rig) SetExposure(ctx context.Context, micros uint32) error {
	return r.Post(ctx, protocol.Message{Kind: protocol.SetExposure, Payload: &protocol.Exposure{Micros: micros}})
}

// Move drives the motor by steps; negative values reverse
func (r *Rig) Move(ctx context.Context, steps int32) error {
	return r.Post(ctx, protocol.Message{Kind: protocol.ActionMotor, Payload: &protocol.Motor{Steps: steps}})
}

// MoveDegrees converts degrees with the device transmission ratio, reading
// the configuration first when none is cached
func (r *Rig) MoveDegrees(ctx context.Context, degrees float64) (int32, error) {
	cfg := r.cached()
	if cfg == nil {
		var err error
		if cfg, err = r.Config(ctx); err != nil {
			return 0, err
		}
	}
	steps, err := cfg.StepsForDegrees(degrees)
	if err != nil {
		return 0, err
	}
	return steps, r.Move(ctx, steps)
}

// Home runs the homing sequence
func (r *Rig) Home(ctx context.Context) error {
	return r.Post(ctx, protocol.Message{Kind: protocol.ActionHome})
}

// Stack starts a focus stack with the current configuration
func (r *Rig) Stack(ctx context.Context) error {
	return r.Post(ctx, protocol.Message{Kind: protocol.ActionStack})
}

// Stop halts any motion or running stack
func (r *Rig) Stop(ctx context.Context) error {
	return r.Post(ctx, protocol.Message{Kind: protocol.ActionStop})
}

// Photo triggers a single exposure
func (r *Rig) Photo(ctx context.Context) error {
	return r.Post(ctx, protocol.Message{Kind: protocol.ActionPhoto})
}
