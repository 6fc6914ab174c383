// Package ota implements the chunked firmware update channel.
//
// An upload arrives as a sequence of chunks. The first chunk (offset 0)
// carries the declared image size and opens the FlashWriter; each following
// chunk must start exactly where the previous one ended. The chunk marked
// final triggers the byte count check and FlashWriter.Finalize, the single
// operation that makes a new image bootable.
//
// # States
//
//	Idle -> Receiving -> Finalizing -> Completed
//	          |              |
//	          +--> Failed <--+
//
// Completed and Failed are reported through Snapshot; the channel itself is
// back to Idle as soon as either is reached, ready for the next upload.
// A second upload that starts while one is Receiving is rejected and the
// active session is left alone.
//
// # Failure handling
//
// Any protocol or storage error ends the session and calls
// FlashWriter.Abort, so a dropped or corrupt upload never reaches the
// commit point. When the HTTP connection closes before the final chunk the
// handler calls Abandon with the session ID.
//
// # Restart
//
// A successful upload does not restart the device immediately. The handler
// first flushes its response and then calls ConfirmDelivered, which
// schedules the Restarter after RestartDelay.
//
// # Liveness
//
// Chunk data is written in YieldBytes slices and the Liveness is fed after
// each one, so a hardware watchdog keeps getting fed however large the
// chunks are:
//
//	wd, err := ota.OpenWatchdog(ota.DefaultWatchdogDevice, logger)
//	ch := ota.NewChannel(region, ota.Options{Liveness: wd, Restarter: ota.SystemRestarter{}})
package ota
