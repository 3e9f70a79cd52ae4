package slideshow

import "github.com/e-roder/pycastblaster-go/internal/playlist"

// Inbox is the single-slot, single-producer/single-consumer handoff from
// the Image Scanner to the Playlist Server: a channel of capacity 1. The
// scanner polls TrySend until the merging step has drained the previous
// batch, so it gets back-pressure while staying free to observe the exit
// signal between attempts.
type Inbox struct {
	ch chan []playlist.Reference
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{ch: make(chan []playlist.Reference, 1)}
}

// TrySend deposits batch if the slot is free, reporting whether it did.
// Called by the Image Scanner; never blocks.
func (i *Inbox) TrySend(batch []playlist.Reference) bool {
	select {
	case i.ch <- batch:
		return true
	default:
		return false
	}
}

// TryReceive drains the slot if it holds a batch. Called by the Playlist
// Server's merging step; never blocks.
func (i *Inbox) TryReceive() ([]playlist.Reference, bool) {
	select {
	case batch := <-i.ch:
		return batch, true
	default:
		return nil, false
	}
}

// Pending reports whether a batch is waiting without consuming it. Used
// by the wait loop's "new images pending" check.
func (i *Inbox) Pending() bool {
	return len(i.ch) > 0
}
