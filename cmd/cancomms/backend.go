package main

import (
	"fmt"
	"log/slog"

	"github.com/dinocore1/cancomms/internal/serial"
	"github.com/dinocore1/cancomms/internal/socketcan"
	"github.com/dinocore1/cancomms/internal/transport"
	"github.com/dinocore1/cancomms/internal/vcan"
)

// Hooks for tests (overridden in unit tests).
var (
	openSocketCANDevice = func(iface string) (transport.Transport, error) {
		dev, err := socketcan.Open(iface)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
	createVCAN     = vcan.Create
	openSerialPort = serial.Open
)

// openTransport opens the configured bus backend. With provision set (listen
// mode, socketcan backend) a failed open falls back to creating a virtual
// interface and retries the open exactly once.
func openTransport(cfg *appConfig, l *slog.Logger, provision bool) (transport.Transport, error) {
	switch cfg.backend {
	case "serial":
		sp, err := openSerialPort(cfg.serialDev, cfg.baud, cfg.serialReadTO)
		if err != nil {
			return nil, fmt.Errorf("open serial %s: %w", cfg.serialDev, err)
		}
		l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud)
		return serial.NewTransport(sp), nil
	case "socketcan":
		dev, err := openSocketCANDevice(cfg.canIf)
		if err != nil && provision {
			l.Warn("can_open_failed", "if", cfg.canIf, "error", err)
			if verr := createVCAN(cfg.canIf); verr != nil {
				return nil, fmt.Errorf("provision %s: %w", cfg.canIf, verr)
			}
			l.Info("vcan_created", "if", cfg.canIf)
			dev, err = openSocketCANDevice(cfg.canIf)
		}
		if err != nil {
			return nil, fmt.Errorf("socketcan open %s: %w", cfg.canIf, err)
		}
		l.Info("socketcan_open", "if", cfg.canIf)
		return dev, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (use socketcan|serial)", cfg.backend)
	}
}
