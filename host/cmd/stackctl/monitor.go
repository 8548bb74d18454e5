package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"stackctl/host/link"
	"stackctl/host/output"
	"stackctl/protocol"
)

func newMonitorCmd(a *app) *cobra.Command {
	var (
		metricsAddr string
		count       int
		duration    time.Duration
		poll        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print every message and connection event from the rig",
		Long: `monitor keeps the link open and prints everything the rig sends. With
--poll it also requests get_progress at the given interval. With
--metrics-addr the transport counters are served for Prometheus at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible(cmd)
			defer cancel()
			if duration > 0 {
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				reg.MustRegister(collectors.NewGoCollector())
				a.metrics = link.NewMetrics(reg)

				srv, addr, err := a.serveMetrics(metricsAddr, reg)
				if err != nil {
					return err
				}
				defer srv.Close()
				a.log.Info().Str("addr", addr).Msg("serving metrics")
			}

			r, stop, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer stop()
			tr := r.Transport()

			ticker := time.NewTicker(a.cfg.RequestPollInterval)
			defer ticker.Stop()
			var pollC <-chan time.Time
			if poll > 0 {
				pt := time.NewTicker(poll)
				defer pt.Stop()
				pollC = pt.C
			}

			out := cmd.OutOrStdout()
			seen := 0
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-pollC:
					tr.Send(protocol.NewMessage(protocol.GetProgress))
				case <-ticker.C:
				}

				for {
					in, ok := tr.Receive()
					if !ok {
						break
					}
					if in.Event != nil {
						fmt.Fprintln(cmd.ErrOrStderr(), output.EventLine(*in.Event))
						continue
					}
					fmt.Fprint(out, a.formatter.Format(*in.Message))
					seen++
					if count > 0 && seen >= count {
						return nil
					}
				}
			}
		},
	}

	f := cmd.Flags()
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.IntVar(&count, "count", 0, "exit after this many messages")
	f.DurationVar(&duration, "duration", 0, "exit after this long")
	f.DurationVar(&poll, "poll", 0, "request get_progress at this interval")
	return cmd
}

// serveMetrics starts an HTTP server for reg and returns its bound address
func (a *app) serveMetrics(addr string, reg *prometheus.Registry) (*http.Server, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv, ln.Addr().String(), nil
}
