package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stackctl/host/config"
	"stackctl/host/link"
	"stackctl/host/logging"
	"stackctl/host/output"
	"stackctl/host/rig"
	"stackctl/host/serial"
)

// app is the state shared by every subcommand of one invocation
type app struct {
	configPath string
	port       string
	baud       int
	packetSize int
	driver     string
	outputFmt  string
	logLevel   string
	timeout    time.Duration

	cfg       config.Config
	log       zerolog.Logger
	formatter output.Formatter
	metrics   *link.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "stackctl",
		Short: "Control the focus stacking rig over its serial link",
		Long: `stackctl talks to the focus stacking controller using fixed size binary
packets. Every message kind of the device protocol is available as a
subcommand: get_ commands print the reply, set_ and action_ commands send
their JSON payload and exit once it has been written.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default is ~/"+config.FileName+")")
	pf.StringVarP(&a.port, "port", "p", serial.DefaultDevice, "the serial port to connect to")
	pf.IntVar(&a.baud, "baud", serial.DefaultBaud, "serial baud rate")
	pf.IntVar(&a.packetSize, "packet-size", 64, "fixed packet size in bytes")
	pf.StringVar(&a.driver, "driver", string(serial.DefaultDriver), "serial backend: bugst, tarm or sim")
	pf.StringVarP(&a.outputFmt, "output", "o", output.FormatTable, "output format: table, json, yaml")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error, off")
	pf.DurationVar(&a.timeout, "timeout", 0, "request timeout, 0 waits until interrupted (default from config)")

	for _, cmd := range kindCommands(a) {
		root.AddCommand(cmd)
	}
	root.AddCommand(
		newKindsCmd(a),
		newPortsCmd(a),
		newShellCmd(a),
		newWatchCmd(a),
		newMonitorCmd(a),
		newMoveCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads the config file and lets explicitly set flags override it
func (a *app) setup(cmd *cobra.Command) error {
	path, required := a.configPath, true
	if path == "" {
		path, required = config.DefaultPath(), false
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = a.port
	}
	if flags.Changed("baud") {
		cfg.Baud = a.baud
	}
	if flags.Changed("packet-size") {
		cfg.PacketSize = a.packetSize
	}
	if flags.Changed("driver") {
		cfg.Driver = serial.Driver(a.driver)
	}
	if flags.Changed("output") {
		cfg.Output = a.outputFmt
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeout = a.timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}
	cfg.Output = format

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Out: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	a.formatter = output.NewFormatter(format)
	return nil
}

// connect opens the configured port and starts the transport. The caller
// must call the returned stop function.
func (a *app) connect(cmd *cobra.Command) (*rig.Rig, func(), error) {
	lc := a.cfg.LinkConfig()
	lc.Logger = a.log
	lc.Metrics = a.metrics
	if a.cfg.Driver == config.DriverSimulator {
		lc.Opener = rig.SimulatorOpener(a.cfg.PacketSize)
	}

	tr, err := link.New(lc)
	if err != nil {
		return nil, nil, err
	}

	stderr := cmd.ErrOrStderr()
	ok := tr.Connect(a.cfg.Port, a.cfg.Baud)
	printEvents(stderr, tr)
	if !ok {
		tr.Stop()
		return nil, nil, fmt.Errorf("could not connect to %s", a.cfg.Port)
	}
	tr.Start()

	r := rig.New(tr, rig.Options{
		Timeout:      a.cfg.RequestTimeout,
		PollInterval: a.cfg.RequestPollInterval,
		Logger:       a.log,
		Metrics:      a.metrics,
		Observer: func(ev link.Event) {
			fmt.Fprintln(stderr, output.EventLine(ev))
		},
	})
	return r, tr.Stop, nil
}

// printEvents drains connection events queued before the loop started
func printEvents(w io.Writer, tr *link.Transport) {
	for {
		in, ok := tr.Receive()
		if !ok || in.Event == nil {
			return
		}
		fmt.Fprintln(w, output.EventLine(*in.Event))
	}
}

// interruptible returns a context cancelled by Ctrl+C
func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt)
}

func (a *app) print(cmd *cobra.Command, data any) {
	fmt.Fprint(cmd.OutOrStdout(), a.formatter.Format(data))
}
