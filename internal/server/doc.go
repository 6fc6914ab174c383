// Package server implements the device administration service.
//
// AdminServer is the composition root. It owns one core.Device and wires
// the network bootstrapper, captive DNS, the firmware update channel, the
// option store, the file browser and the push hub around it.
//
// # Startup
//
// The network comes up before HTTP is served:
//  1. The saved station network is joined with access point fallback
//  2. With no saved network the access point starts immediately
//  3. After the first attempt settles the HTTP listener opens
//  4. The service is advertised over mDNS when enabled
//
// # HTTP Surface
//
//	GET    /status           device, network and upload status (JSON)
//	GET    /scan             visible wireless networks (JSON)
//	GET    /ws               push channel for progress and mode changes
//	GET    /setup            setup page
//	POST   /setup            save setup options
//	DELETE /setup            clear saved options
//	POST   /connect          join a network without fallback, save on success
//	POST   /update           firmware image, multipart or raw body
//	GET    /list?dir=        directory listing
//	GET    /edit?path=       download a file
//	PUT    /edit?path=       create a file (type=dir for a directory)
//	POST   /edit?path=       upload a file
//	DELETE /edit?path=       delete a file or directory tree
//	PATCH  /edit?from=&to=   rename
//	*      /dav/             WebDAV view of the same tree, when enabled
//
// While the device is in access point fallback every request for a
// foreign host is redirected to the setup page. When a username is
// configured, setup, connect, update and file routes require basic auth.
//
// # Firmware Updates
//
// The declared image size comes from the X-Update-Size header or the size
// query parameter. The body is cut into chunks with one chunk of
// read-ahead so the last one is flagged final. The restart is only
// scheduled after the success response was flushed to the client.
//
// # Graceful Shutdown
//
// Start handles SIGINT and SIGTERM: the HTTP server drains, the mDNS
// registration is withdrawn and the watchdog is disarmed.
package server
