// Package logging provides structured logging for the device admin server.
//
// This package wraps a process-wide zap logger with convenience functions for
// the log lines the admin server emits over and over: HTTP requests, network
// mode transitions and firmware upload progress.
//
// # Log Levels
//
//   - Debug: Poll ticks, DNS answers, upload chunk progress
//   - Info: Mode transitions, uploads started/completed, HTTP requests
//   - Warn: Station timeouts, captive DNS bind failures, dropped uploads
//   - Error: Storage failures, restart failures
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Components that want their own logger take a *zap.Logger at construction;
// Named returns a child of the process logger for that purpose:
//
//	boot := netboot.New(dev, stack, netboot.Options{Logger: logging.Named("netboot")})
//
// When no level is given and DEVADMIN_LOG_LEVEL is unset, the logger is a
// no-op so CLI output stays clean.
package logging
