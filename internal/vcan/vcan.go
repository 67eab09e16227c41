//go:build linux

// Package vcan provisions virtual CAN interfaces through the host ip(8)
// tool. Used by listen mode when the requested interface does not exist.
package vcan

import (
	"fmt"
	"os/exec"
	"strings"
)

// Create adds and brings up a virtual CAN interface with the given name.
// Requires CAP_NET_ADMIN. Any failure is returned verbatim; callers treat
// it as fatal to startup.
func Create(name string) error {
	if err := run("ip", "link", "add", "dev", name, "type", "vcan"); err != nil {
		return fmt.Errorf("create vcan %s: %w", name, err)
	}
	if err := run("ip", "link", "set", name, "up"); err != nil {
		return fmt.Errorf("vcan %s up: %w", name, err)
	}
	return nil
}

func run(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s %s: %v: %s", name, strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}
