package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dinocore1/cancomms/internal/bridge"
	"github.com/dinocore1/cancomms/internal/metrics"
	"github.com/dinocore1/cancomms/internal/transport"
)

func main() {
	cfg := &appConfig{}
	root := &cobra.Command{
		Use:           "cancomms",
		Short:         "Bridge a local CAN bus to a remote peer over TCP",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.BoolVarP(&cfg.verbose, "verbose", "v", false, "Verbose (debug) logging")
	pf.StringVar(&cfg.logFormat, "log-format", "text", "Log format: text|json")
	pf.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	pf.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	pf.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	pf.DurationVar(&cfg.sendDelay, "send-delay", bridge.DefaultSendDelay, "Pause after each TCP->CAN send (rate limit); 0 disables")
	pf.IntVar(&cfg.rxBuffer, "rx-buffer", transport.DefaultRxBuffer, "CAN RX channel capacity (frames)")
	pf.StringVar(&cfg.backend, "backend", "socketcan", "CAN backend: socketcan|serial")
	pf.StringVar(&cfg.serialDev, "serial-dev", "/dev/ttyUSB0", "Serial device path (when --backend=serial)")
	pf.IntVar(&cfg.baud, "baud", 115200, "Serial baud rate")
	pf.DurationVar(&cfg.serialReadTO, "serial-read-timeout", 50*time.Millisecond, "Serial read timeout")

	root.AddCommand(forwardCmd(cfg), listenCmd(cfg))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func forwardCmd(cfg *appConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forward <host:port>",
		Short: "Forward CAN frames between the local interface and a remote peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.dest = args[0]
			l, cleanup, err := setup(cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			ctx, stop := signalContext()
			defer stop()

			dev, err := openTransport(cfg, l, false)
			if err != nil {
				return err
			}
			defer func() { _ = dev.Close() }()
			metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })

			return bridge.Forward(ctx, dev, cfg.dest, bridgeOptions(cfg, l))
		},
	}
	cmd.Flags().StringVarP(&cfg.canIf, "interface", "i", "can0", "CAN interface")
	return cmd
}

func listenCmd(cfg *appConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Accept TCP peers one at a time and bridge each to the local interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := setup(cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			ctx, stop := signalContext()
			defer stop()

			// Listen mode may run on machines without bus hardware; fall
			// back to provisioning a virtual interface.
			dev, err := openTransport(cfg, l, true)
			if err != nil {
				return err
			}
			defer func() { _ = dev.Close() }()

			srv, err := bridge.NewListener(cfg.listenAddr, bridgeOptions(cfg, l))
			if err != nil {
				return err
			}
			metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })

			if cfg.mdnsEnable {
				cleanupMDNS, err := startMDNS(ctx, cfg, srv.Addr())
				if err != nil {
					l.Warn("mdns_start_failed", "error", err)
				} else {
					defer cleanupMDNS()
				}
			}
			return srv.Serve(ctx, dev)
		},
	}
	cmd.Flags().StringVarP(&cfg.canIf, "interface", "i", "vcan0", "CAN interface")
	cmd.Flags().StringVarP(&cfg.listenAddr, "socket", "s", "0.0.0.0:10023", "TCP listen address")
	cmd.Flags().BoolVar(&cfg.mdnsEnable, "mdns", false, "Advertise the listener via mDNS/zeroconf")
	cmd.Flags().StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (defaults to hostname)")
	return cmd
}

// setup applies env overrides, validates the config and initializes the
// shared runtime pieces (logger, build info, metrics endpoint and logger).
func setup(cmd *cobra.Command, cfg *appConfig) (l *slog.Logger, cleanup func(), err error) {
	if err := applyEnvOverrides(cfg, cmd.Flags().Changed); err != nil {
		return nil, nil, fmt.Errorf("environment override: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration: %w", err)
	}
	l = setupLogger(cfg)
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	metrics.InitBuildInfo(version, commit, date)

	var wg sync.WaitGroup
	mctx, mcancel := context.WithCancel(context.Background())
	startMetricsLogger(mctx, cfg.logMetricsEvery, l, &wg)
	cleanup = func() { mcancel(); wg.Wait() }

	if cfg.metricsAddr != "" {
		srv := metrics.StartHTTP(cfg.metricsAddr)
		prev := cleanup
		cleanup = func() {
			_ = srv.Shutdown(context.Background())
			prev()
		}
	}
	return l, cleanup, nil
}

func bridgeOptions(cfg *appConfig, l *slog.Logger) bridge.Options {
	delay := cfg.sendDelay
	if delay == 0 {
		delay = -1 // explicit disable
	}
	return bridge.Options{SendDelay: delay, RxBuffer: cfg.rxBuffer, Logger: l}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
