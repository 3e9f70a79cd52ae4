package main

import (
	"github.com/e-roder/pycastblaster-go/internal/devicesession"
)

// noopDiscovery is a placeholder devicesession.Discovery. No concrete
// Chromecast/mDNS discovery library is part of this project's dependency
// stack; wiring a real one in is a deployment-time concern. Start/Stop
// are both no-ops, so a built binary runs the rest of the service
// (scanning, slideshow preparation, the HTTP surface) without ever
// reporting a device available to cast to.
type noopDiscovery struct{}

func newNoopDiscovery() *noopDiscovery {
	return &noopDiscovery{}
}

func (d *noopDiscovery) Start(added func(devicesession.DiscoveredDevice), removed func(string)) error {
	return nil
}

func (d *noopDiscovery) Stop() error {
	return nil
}
