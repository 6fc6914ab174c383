//go:build linux

package ota

import (
	"golang.org/x/sys/unix"
)

// SystemRestarter reboots the machine directly. It requires CAP_SYS_BOOT.
type SystemRestarter struct{}

// Restart implements Restarter
func (SystemRestarter) Restart() error {
	unix.Sync()
	return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
}
