package main

import (
	"errors"
	"testing"

	"github.com/dinocore1/cancomms/internal/can"
	"github.com/dinocore1/cancomms/internal/logging"
	"github.com/dinocore1/cancomms/internal/transport"
)

type nopTransport struct{}

func (nopTransport) ReadFrame(*can.Frame) error { return errors.New("not implemented") }
func (nopTransport) WriteFrame(can.Frame) error { return nil }
func (nopTransport) Close() error               { return nil }

func TestOpenTransport_VCANFallback(t *testing.T) {
	oldOpen, oldCreate := openSocketCANDevice, createVCAN
	defer func() { openSocketCANDevice, createVCAN = oldOpen, oldCreate }()

	opens := 0
	openSocketCANDevice = func(iface string) (transport.Transport, error) {
		opens++
		if opens == 1 {
			return nil, errors.New("no such device")
		}
		return nopTransport{}, nil
	}
	created := ""
	createVCAN = func(name string) error { created = name; return nil }

	cfg := validConfig()
	cfg.canIf = "vcan9"
	dev, err := openTransport(cfg, logging.L(), true)
	if err != nil {
		t.Fatalf("openTransport: %v", err)
	}
	defer dev.Close()
	if created != "vcan9" {
		t.Fatalf("vcan not provisioned (created=%q)", created)
	}
	if opens != 2 {
		t.Fatalf("expected exactly one retry, got %d opens", opens)
	}
}

func TestOpenTransport_NoFallbackWithoutProvision(t *testing.T) {
	oldOpen, oldCreate := openSocketCANDevice, createVCAN
	defer func() { openSocketCANDevice, createVCAN = oldOpen, oldCreate }()

	openSocketCANDevice = func(string) (transport.Transport, error) {
		return nil, errors.New("no such device")
	}
	createVCAN = func(string) error {
		t.Fatalf("forward mode must not provision interfaces")
		return nil
	}

	if _, err := openTransport(validConfig(), logging.L(), false); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestOpenTransport_ProvisionFailureIsFatal(t *testing.T) {
	oldOpen, oldCreate := openSocketCANDevice, createVCAN
	defer func() { openSocketCANDevice, createVCAN = oldOpen, oldCreate }()

	openSocketCANDevice = func(string) (transport.Transport, error) {
		return nil, errors.New("no such device")
	}
	createVCAN = func(string) error { return errors.New("operation not permitted") }

	if _, err := openTransport(validConfig(), logging.L(), true); err == nil {
		t.Fatalf("expected provisioning error")
	}
}
