package ota

// FlashWriter is the firmware storage region an upload is streamed into.
//
// Open reserves the region for an image of expectedTotal bytes. WriteChunk
// appends sequentially. Finalize validates the staged image and commits it;
// it is the only operation that makes a new image bootable. Abort discards
// whatever was staged and leaves the active image untouched.
type FlashWriter interface {
	Capacity() int64
	Open(expectedTotal int64) error
	WriteChunk(p []byte) error
	Finalize() error
	Abort() error
}

// Restarter reboots the device.
type Restarter interface {
	Restart() error
}

// Liveness is fed while long writes are in progress so an external
// watchdog does not reset the device mid-update.
type Liveness interface {
	Feed()
}

// RestartFunc adapts a function to a Restarter
type RestartFunc func() error

// Restart implements Restarter
func (f RestartFunc) Restart() error { return f() }

type nopLiveness struct{}

func (nopLiveness) Feed() {}
