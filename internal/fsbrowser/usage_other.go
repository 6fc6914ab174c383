//go:build !linux && !darwin

package fsbrowser

import "errors"

// Usage reports the capacity of the filesystem holding the root.
func (b *Browser) Usage() (Usage, error) {
	return Usage{}, errors.New("filesystem usage is not supported on this platform")
}
