package netboot

import (
	"context"
	"crypto/rand"
	"net"
	"strings"
)

// Stack is the wireless network stack the bootstrapper drives.
//
// JoinStation may block until the association settles; the bootstrapper
// runs it in its own goroutine and cancels ctx when the attempt is
// abandoned. StationAddress must be cheap enough to call on every poll. It
// returns nil while no link to ssid is up or the link has no address yet;
// a link to any other network never counts.
type Stack interface {
	JoinStation(ctx context.Context, ssid, passphrase string) error
	StationAddress(ctx context.Context, ssid string) (net.IP, error)
	StartAccessPoint(ctx context.Context, cfg AccessPointConfig) (net.IP, error)
	StopAccessPoint(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Scan(ctx context.Context) ([]Network, error)
}

// Responder is the captive DNS responder armed while in access point mode.
type Responder interface {
	Start(ip net.IP) error
	Run(ctx context.Context)
	Stop() error
}

// Network is a visible wireless network
type Network struct {
	SSID     string `json:"ssid"`
	Signal   int    `json:"signal"`
	Security string `json:"security"`
	BSSID    string `json:"bssid"`
	Channel  int    `json:"channel"`
}

// Open reports whether the network needs no passphrase
func (n Network) Open() bool {
	return n.Security == "" || n.Security == "--"
}

// AccessPointConfig is the self-hosted network used for fallback.
// An empty Passphrase starts an open network.
type AccessPointConfig struct {
	SSID               string `json:"ssid"`
	Passphrase         string `json:"-"`
	RedirectTargetHost string `json:"redirect_target_host,omitempty"`
}

// GenerateAccessPointConfig derives a fallback network for a device that
// was not given one: "<hostname>-XXXX" with a random WPA2 passphrase.
func GenerateAccessPointConfig(hostname string) AccessPointConfig {
	token := rand.Text()
	name := hostname
	if name == "" {
		name = "devadmin"
	}
	return AccessPointConfig{
		SSID:       name + "-" + token[:4],
		Passphrase: strings.ToLower(token[4:16]),
	}
}
