// Package core holds the state and error taxonomy shared by the device's
// network bootstrap, captive portal and firmware update subsystems.
//
// # Device Context
//
// A Device is the single owned context for one admin instance. It carries the
// device identity (hostname, setup path, firmware version) and the current
// NetworkMode and address. Components receive the Device at construction
// instead of reading globals, so tests can run several devices in one process.
//
// The mode has exactly one writer. The network bootstrapper claims it once:
//
//	dev := core.NewDevice("devadmin", "/setup")
//	writer := dev.ClaimModeWriter() // a second claim panics
//	writer.Set(core.ModeConnected, net.ParseIP("192.168.1.50"))
//
// Readers (captive redirector, status handler) call Mode() and Address(),
// which are atomic loads.
//
// # Error Taxonomy
//
//   - Network Error: station timeout, access point start failure
//   - Capture Error: DNS responder bind failure (fatal to captive mode only)
//   - Upload Protocol Error: bad declared size, byte count mismatch, stray
//     chunk, concurrent upload
//   - Storage Error: open/write/finalize failure from the flash region
//
// Network and capture errors are recovered locally by the bootstrapper.
// Protocol and storage errors terminate the current upload and are returned
// to the HTTP client via StatusFor.
package core
