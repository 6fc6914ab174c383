//go:build !linux

package ota

import "errors"

// SystemRestarter reboots the machine directly. Only Linux is supported.
type SystemRestarter struct{}

// Restart implements Restarter
func (SystemRestarter) Restart() error {
	return errors.New("system restart is only supported on linux")
}
