package common

import (
	"context"
	"time"
)

// Stoppable is implemented by the long-lived activities that own a
// resource needing an explicit, bounded wind-down: the Playlist Server
// (temp-manifest file handle), the Image Scanner (fsnotify watcher), and
// the HTTP Surface (listener). Stop blocks until the service has wound
// down or ctx expires, whichever comes first.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// StopWithTimeout stops service, giving it at most timeout to finish.
func StopWithTimeout(service Stoppable, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return service.Stop(ctx)
}
