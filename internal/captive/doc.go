// Package captive implements the captive portal used while the device
// hosts its own access point: a DNS responder that resolves every name to
// the device, and an HTTP redirector that sends requests for any other host
// to the setup page.
package captive
