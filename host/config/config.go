// Package config loads the stackctl settings file
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"stackctl/host/link"
	"stackctl/host/serial"
	"stackctl/protocol"
)

// FileName is looked up in the home directory when no path is given
const FileName = ".stackctl.toml"

// Config holds every setting of the command line tool
type Config struct {
	Port       string
	Baud       int
	PacketSize int
	Driver     serial.Driver

	PollInterval        time.Duration
	RequestPollInterval time.Duration
	RequestTimeout      time.Duration

	InboundQueue  int
	OutboundQueue int
	Overflow      link.OverflowPolicy

	LogLevel string
	Output   string
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Port:                serial.DefaultDevice,
		Baud:                serial.DefaultBaud,
		PacketSize:          protocol.DefaultPacketSize,
		Driver:              serial.DefaultDriver,
		PollInterval:        link.DefaultPollInterval,
		RequestPollInterval: link.DefaultRequestPollInterval,
		RequestTimeout:      5 * time.Second,
		InboundQueue:        link.DefaultQueueSize,
		OutboundQueue:       link.DefaultQueueSize,
		Overflow:            link.DropOldest,
		LogLevel:            "info",
		Output:              "table",
	}
}

type fileConfig struct {
	Port                string `toml:"port"`
	Baud                int    `toml:"baud"`
	PacketSize          int    `toml:"packet_size"`
	Driver              string `toml:"driver"`
	PollInterval        string `toml:"poll_interval"`
	RequestPollInterval string `toml:"request_poll_interval"`
	RequestTimeout      string `toml:"request_timeout"`
	InboundQueue        int    `toml:"inbound_queue"`
	OutboundQueue       int    `toml:"outbound_queue"`
	Overflow            string `toml:"overflow"`
	LogLevel            string `toml:"log_level"`
	Output              string `toml:"output"`
}

// DefaultPath returns ~/.stackctl.toml, or "" when there is no home directory
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, FileName)
}

// Load reads path over the defaults. A missing file is only an error when
// required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("packet_size") {
		cfg.PacketSize = raw.PacketSize
	}
	if meta.IsDefined("driver") {
		cfg.Driver = serial.Driver(strings.TrimSpace(raw.Driver))
	}
	if meta.IsDefined("poll_interval") {
		if cfg.PollInterval, err = parseDuration("poll_interval", raw.PollInterval); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("request_poll_interval") {
		if cfg.RequestPollInterval, err = parseDuration("request_poll_interval", raw.RequestPollInterval); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("request_timeout") {
		if cfg.RequestTimeout, err = parseDuration("request_timeout", raw.RequestTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("inbound_queue") {
		cfg.InboundQueue = raw.InboundQueue
	}
	if meta.IsDefined("outbound_queue") {
		cfg.OutboundQueue = raw.OutboundQueue
	}
	if meta.IsDefined("overflow") {
		cfg.Overflow = link.OverflowPolicy(strings.TrimSpace(raw.Overflow))
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("output") {
		cfg.Output = strings.TrimSpace(raw.Output)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// Validate checks values that would otherwise fail deep inside the transport
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	if c.Baud <= 0 {
		return fmt.Errorf("baud must be positive, got %d", c.Baud)
	}
	if _, err := protocol.NewCodec(c.PacketSize); err != nil {
		return err
	}
	if c.PollInterval <= 0 || c.RequestPollInterval <= 0 {
		return errors.New("poll intervals must be positive")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request_timeout must not be negative")
	}
	if c.InboundQueue <= 0 || c.OutboundQueue <= 0 {
		return errors.New("queue sizes must be positive")
	}
	if _, err := link.ParseOverflowPolicy(string(c.Overflow)); err != nil {
		return err
	}
	switch c.Driver {
	case serial.DriverTarm, serial.DriverBugST, DriverSimulator:
	default:
		return fmt.Errorf("%w: %q", serial.ErrUnknownDriver, c.Driver)
	}
	return nil
}

// DriverSimulator connects to an in-process simulated rig instead of a port
const DriverSimulator serial.Driver = "sim"

// LinkConfig returns the transport settings; opener and logger are left to
// the caller
func (c Config) LinkConfig() link.Config {
	return link.Config{
		PacketSize:    c.PacketSize,
		PollInterval:  c.PollInterval,
		InboundQueue:  c.InboundQueue,
		OutboundQueue: c.OutboundQueue,
		Overflow:      c.Overflow,
		Driver:        c.Driver,
	}
}
