package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	verbose         bool
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	sendDelay       time.Duration
	rxBuffer        int
	backend         string
	canIf           string
	serialDev       string
	baud            int
	serialReadTO    time.Duration
	mdnsEnable      bool
	mdnsName        string
	listenAddr      string
	dest            string
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners – only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "socketcan", "serial":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if c.sendDelay < 0 {
		return fmt.Errorf("send-delay must be >= 0 (got %s)", c.sendDelay)
	}
	if c.rxBuffer <= 0 {
		return fmt.Errorf("rx-buffer must be > 0 (got %d)", c.rxBuffer)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.canIf == "" {
		return errors.New("interface must not be empty")
	}
	return nil
}

// applyEnvOverrides maps CANCOMMS_* environment variables to config fields
// unless a corresponding flag was explicitly set. Empty values are ignored.
// Durations accept Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set func(string) bool) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if !set("log-format") {
		if v, ok := get("CANCOMMS_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if !set("log-level") {
		if v, ok := get("CANCOMMS_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if !set("metrics-addr") {
		if v, ok := get("CANCOMMS_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if !set("send-delay") {
		if v, ok := get("CANCOMMS_SEND_DELAY"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.sendDelay = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CANCOMMS_SEND_DELAY: %w", err)
			}
		}
	}
	if !set("rx-buffer") {
		if v, ok := get("CANCOMMS_RX_BUFFER"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.rxBuffer = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CANCOMMS_RX_BUFFER: %w", err)
			}
		}
	}
	if !set("backend") {
		if v, ok := get("CANCOMMS_BACKEND"); ok && v != "" {
			c.backend = v
		}
	}
	if !set("interface") {
		if v, ok := get("CANCOMMS_IF"); ok && v != "" {
			c.canIf = v
		}
	}
	if !set("serial-dev") {
		if v, ok := get("CANCOMMS_SERIAL"); ok && v != "" {
			c.serialDev = v
		}
	}
	if !set("baud") {
		if v, ok := get("CANCOMMS_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CANCOMMS_BAUD: %w", err)
			}
		}
	}
	if !set("serial-read-timeout") {
		if v, ok := get("CANCOMMS_SERIAL_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.serialReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CANCOMMS_SERIAL_READ_TIMEOUT: %w", err)
			}
		}
	}
	if !set("mdns") {
		if v, ok := get("CANCOMMS_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if !set("mdns-name") {
		if v, ok := get("CANCOMMS_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if !set("log-metrics-interval") {
		if v, ok := get("CANCOMMS_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CANCOMMS_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
