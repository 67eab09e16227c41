//go:build !linux

package vcan

import "errors"

// Create always fails off-linux; virtual CAN is a linux kernel feature.
func Create(name string) error {
	return errors.New("vcan: unsupported on this platform")
}
