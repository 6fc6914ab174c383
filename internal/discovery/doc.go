// Package discovery announces and locates devadmin devices over mDNS.
//
// A running device registers its admin HTTP server as an "_http._tcp"
// service. The TXT record carries a "devadmin=1" marker together with the
// firmware version, the setup page path and the current network mode:
//
//	devadmin=1 version=1.4.2 path=/setup mode=connected
//
// Scanner browses the same service type and keeps only entries that carry
// the marker, so ordinary web servers on the segment are ignored.
//
// # Network Requirements
//
//   - Multicast must be allowed on the interface
//   - Devices must be on the same local network segment
//   - Firewalls must allow mDNS (UDP port 5353)
package discovery
