// Package devicesession is the Device Session Supervisor: it maintains
// at most one connected session to the named Chromecast-compatible
// receiver and decides when the Playlist Server may serve. The concrete
// device control library sits behind the Client and Discovery
// interfaces; nothing in this package depends on one directly.
package devicesession

import (
	"context"
	"time"
)

// defaultMediaReceiverAppID is the well-known app id of the Chromecast
// Default Media Receiver, the only app this supervisor ever launches or
// expects to find already running.
const defaultMediaReceiverAppID = "CC1AD845"

// Client is the subset of a connected device session the supervisor
// needs. A real implementation wraps a Chromecast client library;
// nothing in this package depends on one directly.
type Client interface {
	// Connected reports whether the underlying socket is still up.
	Connected() bool
	// HasStatus reports whether a status update has been received yet.
	HasStatus() bool
	// AppID is the currently running receiver app id, or "" if none.
	AppID() string
	// LaunchReceiver starts the default media receiver app.
	LaunchReceiver(ctx context.Context) error
	// BlockUntilActive waits up to timeout for the receiver app to report
	// itself active, returning false on timeout.
	BlockUntilActive(ctx context.Context, timeout time.Duration) bool
	// PlayMedia asks the receiver to load and play the media at url.
	PlayMedia(ctx context.Context, url string) error
	// Close tears the session down.
	Close() error
}

// DiscoveredDevice is handed to the added-callback; Connect opens a
// session to it.
type DiscoveredDevice struct {
	FriendlyName string
	Connect      func(ctx context.Context) (Client, error)
}

// Discovery is the device library's discovery surface. Callbacks run on
// the library's own goroutine; the supervisor never holds its session
// lock while calling into Stop.
type Discovery interface {
	Start(added func(DiscoveredDevice), removed func(friendlyName string)) error
	Stop() error
}
