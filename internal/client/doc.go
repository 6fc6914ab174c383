// Package client is the operator-side HTTP client for the devadmin admin
// server.
//
// It reads the status document, lists visible networks, asks the device to
// join a network and streams firmware images to /update:
//
//	c := client.NewClient("192.168.4.1")
//	c.SetAuth("admin", "secret")
//	res, err := c.Upload(ctx, "firmware.bin", func(sent, total int64) { ... })
//	if err == nil {
//		_, err = c.WaitForImage(ctx, res.Digest, 0)
//	}
//
// Idempotent GETs are retried with exponential backoff on transport errors.
// Uploads and connects are never retried.
//
// Errors are *DeviceError values. GetTroubleshootingHint and
// GetShortErrorMessage turn them into text for the command line.
package client
