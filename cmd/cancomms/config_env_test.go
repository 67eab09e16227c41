package main

import (
	"testing"
	"time"
)

func noneSet(string) bool { return false }

func TestEnvOverrides_Applied(t *testing.T) {
	t.Setenv("CANCOMMS_IF", "can7")
	t.Setenv("CANCOMMS_BACKEND", "serial")
	t.Setenv("CANCOMMS_SEND_DELAY", "25ms")
	t.Setenv("CANCOMMS_RX_BUFFER", "64")
	t.Setenv("CANCOMMS_MDNS_ENABLE", "yes")

	cfg := validConfig()
	if err := applyEnvOverrides(cfg, noneSet); err != nil {
		t.Fatalf("applyEnvOverrides: %v", err)
	}
	if cfg.canIf != "can7" {
		t.Fatalf("canIf = %q", cfg.canIf)
	}
	if cfg.backend != "serial" {
		t.Fatalf("backend = %q", cfg.backend)
	}
	if cfg.sendDelay != 25*time.Millisecond {
		t.Fatalf("sendDelay = %s", cfg.sendDelay)
	}
	if cfg.rxBuffer != 64 {
		t.Fatalf("rxBuffer = %d", cfg.rxBuffer)
	}
	if !cfg.mdnsEnable {
		t.Fatalf("mdnsEnable not applied")
	}
}

func TestEnvOverrides_FlagWins(t *testing.T) {
	t.Setenv("CANCOMMS_IF", "can7")

	cfg := validConfig()
	set := func(name string) bool { return name == "interface" }
	if err := applyEnvOverrides(cfg, set); err != nil {
		t.Fatalf("applyEnvOverrides: %v", err)
	}
	if cfg.canIf != "can0" {
		t.Fatalf("explicit flag overridden by env: %q", cfg.canIf)
	}
}

func TestEnvOverrides_InvalidValue(t *testing.T) {
	t.Setenv("CANCOMMS_SEND_DELAY", "soon")
	cfg := validConfig()
	if err := applyEnvOverrides(cfg, noneSet); err == nil {
		t.Fatalf("expected error for unparseable duration")
	}
}
