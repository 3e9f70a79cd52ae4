// Package common holds small interfaces shared by pycastblaster's
// long-lived activities (the Image Scanner, Playlist Server, and HTTP
// Surface) so they shut down the same way: Stoppable plus
// StopWithTimeout for bounding how long shutdown is allowed to take. The
// Device Session Supervisor does not implement Stoppable; it stops when
// its context is cancelled.
package common
