// Package netboot brings a device onto a wireless network.
//
// A Bootstrapper starts a station connection attempt and polls the network
// stack until the link is up or the attempt deadline passes. On timeout the
// fallback variant starts a self-hosted access point and arms the captive
// DNS responder; the no-fallback variant reports a NetworkError and leaves
// the device Unconfigured.
//
//	boot := netboot.New(dev, netboot.NewNMCLIStack("wlan0", logger), netboot.Options{
//	    Logger:    logger,
//	    Responder: captive.NewDNSResponder(":53", logger),
//	})
//	go boot.Run(ctx)
//
//	res := <-boot.Connect("home", "secret", 10*time.Second)
//	if res.Fallback {
//	    // serving the setup portal on res.Address
//	}
//
// Each attempt settles at most once. Starting a new attempt cancels the
// previous one synchronously and closes its result channel without a
// value, so a caller that issues two connects back to back only ever sees
// the second outcome.
//
// Fallback happens exactly once per attempt. Once in access point mode the
// device stays there until the next Connect or Reset.
package netboot
