package ota

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/logging"
)

// DefaultWatchdogDevice is the Linux hardware watchdog
const DefaultWatchdogDevice = "/dev/watchdog"

// Watchdog feeds a kernel watchdog device. Feeds closer together than
// MinInterval are coalesced so tight write loops don't hammer the driver.
type Watchdog struct {
	MinInterval time.Duration

	mu     sync.Mutex
	f      *os.File
	last   time.Time
	logger *zap.Logger
}

// OpenWatchdog opens the watchdog device. Opening arms the hardware timer
// on most drivers, so callers must keep feeding it until Close.
func OpenWatchdog(path string, logger *zap.Logger) (*Watchdog, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, err
	}
	return &Watchdog{
		MinInterval: 100 * time.Millisecond,
		f:           f,
		logger:      logging.OrNop(logger),
	}, nil
}

// Feed implements Liveness
func (w *Watchdog) Feed() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return
	}
	now := time.Now()
	if now.Sub(w.last) < w.MinInterval {
		return
	}
	w.last = now
	if _, err := w.f.Write([]byte{0}); err != nil {
		w.logger.Warn("watchdog feed failed", zap.Error(err))
	}
}

// Close disarms the watchdog with the magic close character.
func (w *Watchdog) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	_, _ = w.f.Write([]byte("V"))
	err := w.f.Close()
	w.f = nil
	return err
}
