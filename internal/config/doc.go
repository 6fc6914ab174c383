// Package config loads and saves the admin server configuration.
//
// The configuration is a single YAML file. When no path is given it lives in
// the platform configuration directory:
//   - Linux (root): /etc/devadmin/config.yaml
//   - Linux: $XDG_CONFIG_HOME/devadmin/config.yaml or $HOME/.config/devadmin/config.yaml
//   - macOS: $HOME/.config/devadmin/config.yaml
//   - Windows: %LOCALAPPDATA%\devadmin\config.yaml
//
// A missing file is not an error: Load returns DefaultConfig. Missing keys in
// an existing file take their defaults too.
//
// # Example
//
//	version: 1
//	device:
//	  hostname: tap
//	  setup_path: /setup
//	http:
//	  listen: ":80"
//	  username: admin
//	  password: hunter22
//	network:
//	  interface: wlan0
//	  connect_timeout: 10s
//	  station:
//	    ssid: home
//	    passphrase: secret
//	firmware:
//	  image_path: /boot/firmware.bin
//	  capacity: 16777216
//	  magic: e9
//	  restart_method: system
//
// # Security
//
// Unlike a workstation config, this file holds the station passphrase so
// the device can rejoin its network unattended after a reboot. Save writes
// it with 0600 permissions.
//
// # Thread Safety
//
// Save is serialised by a package mutex and writes atomically.
package config
