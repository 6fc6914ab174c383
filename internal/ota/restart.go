package ota

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandRestarter runs an external command (e.g. "systemctl reboot").
type CommandRestarter struct {
	Command []string
	Timeout time.Duration
}

// Restart implements Restarter
func (r CommandRestarter) Restart() error {
	if len(r.Command) == 0 {
		return fmt.Errorf("no restart command configured")
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, r.Command[0], r.Command[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", strings.Join(r.Command, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// NewRestarter returns the restarter for a configured method:
// "system", "command" or "none". "none" returns nil, which disables restarts.
func NewRestarter(method string, command []string) (Restarter, error) {
	switch method {
	case "", "system":
		return SystemRestarter{}, nil
	case "command":
		if len(command) == 0 {
			return nil, fmt.Errorf("restart method %q needs a command", method)
		}
		return CommandRestarter{Command: command}, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown restart method %q", method)
	}
}
