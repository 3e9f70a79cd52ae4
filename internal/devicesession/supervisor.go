package devicesession

import (
	"context"
	"sync"
	"time"

	"github.com/e-roder/pycastblaster-go/internal/logging"
	"github.com/e-roder/pycastblaster-go/internal/slideshow"
)

// CanCastResult is the outcome of the canCast decision table.
type CanCastResult int

const (
	Success CanCastResult = iota
	FailNotConnected
	FailNoStatus
	FailExpectedActive
	FailInUse
)

func (r CanCastResult) String() string {
	switch r {
	case Success:
		return "success"
	case FailNotConnected:
		return "not-connected"
	case FailNoStatus:
		return "no-status"
	case FailExpectedActive:
		return "expected-active"
	case FailInUse:
		return "in-use"
	default:
		return "unknown"
	}
}

// EngineGate is the slice of *slideshow.Engine the supervisor drives: the
// enable/not-serving latches and the process-wide exit signal.
type EngineGate interface {
	EnableLatch() *slideshow.Signal
	NotServingLatch() *slideshow.Signal
	ExitSignal() *slideshow.Signal
}

// Supervisor is the Device Session Supervisor. Its session lock is a
// plain sync.Mutex; TryPlayMedia needs canCast while already holding the
// lock, so canCast is split into a locked and an unlocked entry point
// rather than using a reentrant mutex.
type Supervisor struct {
	mu           sync.Mutex
	client       Client
	friendlyName string

	engine       EngineGate
	bonusIdle    time.Duration
	pollInterval time.Duration

	logger *logging.Logger
}

// New creates a Supervisor for the device named friendlyName. bonusIdle
// is the "interruption_idle_seconds" grace period given to a competing
// caster after an interruption before this supervisor re-arbitrates.
func New(friendlyName string, engine EngineGate, bonusIdle time.Duration) *Supervisor {
	return &Supervisor{
		friendlyName: friendlyName,
		engine:       engine,
		bonusIdle:    bonusIdle,
		pollInterval: 5 * time.Second,
		logger:       logging.GetLogger("devicesession"),
	}
}

// OnDiscoveryAdded handles the device library's added callback: if the
// name matches, it tears down any lingering session, connects a new
// client, and waits for it to become active before releasing the lock.
func (s *Supervisor) OnDiscoveryAdded(ctx context.Context, d DiscoveredDevice) {
	if d.FriendlyName != s.friendlyName {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := d.Connect(connectCtx)
	if err != nil {
		s.logger.WithError(err).WithField("device", d.FriendlyName).
			Warn("Failed to connect to discovered device")
		return
	}

	if !client.BlockUntilActive(connectCtx, 10*time.Second) {
		s.logger.WithField("device", d.FriendlyName).
			Warn("Device did not report ready within 10s of connecting")
	}

	s.client = client
}

// OnDiscoveryRemoved handles the device library's removed callback: it
// asks the Playlist Server to stop serving, waits for it to relinquish
// control, then drops the client.
func (s *Supervisor) OnDiscoveryRemoved(friendlyName string) {
	if friendlyName != s.friendlyName {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.engine.EnableLatch().Clear()
	s.engine.NotServingLatch().Wait()
	s.teardownLocked()
}

func (s *Supervisor) teardownLocked() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		s.logger.WithError(err).Warn("Error closing prior device session")
	}
	s.client = nil
}

// RunIdleWatcher is the supervisor's own long-lived activity: while the
// Playlist Server is idle, it repeatedly evaluates canCast and, on
// success, launches the receiver and arms the server.
func (s *Supervisor) RunIdleWatcher(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	wasActive := false

	for {
		if s.engine.ExitSignal().IsSet() || ctx.Err() != nil {
			return
		}

		s.engine.NotServingLatch().Wait()

		if s.engine.ExitSignal().IsSet() || ctx.Err() != nil {
			return
		}

		if wasActive {
			wasActive = false
			if !s.sleepBonusIdle(ctx) {
				return
			}
		}

		if s.canCast(false) == Success {
			if s.launchAndEnable(ctx) {
				wasActive = true
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Supervisor) sleepBonusIdle(ctx context.Context) bool {
	select {
	case <-time.After(s.bonusIdle):
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Supervisor) canCast(mustBeActive bool) CanCastResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canCastLocked(mustBeActive)
}

func (s *Supervisor) canCastLocked(mustBeActive bool) CanCastResult {
	if s.client == nil || !s.client.Connected() {
		return FailNotConnected
	}
	if !s.client.HasStatus() {
		return FailNoStatus
	}

	appID := s.client.AppID()
	if mustBeActive && appID != defaultMediaReceiverAppID {
		return FailExpectedActive
	}
	if appID != "" && appID != defaultMediaReceiverAppID {
		return FailInUse
	}
	return Success
}

func (s *Supervisor) launchAndEnable(ctx context.Context) bool {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return false
	}

	launchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.LaunchReceiver(launchCtx); err != nil {
		s.logger.WithError(err).Warn("Failed to launch media receiver")
		return false
	}
	if !client.BlockUntilActive(launchCtx, 10*time.Second) {
		s.logger.Warn("Media receiver did not become active within 10s of launch")
		return false
	}

	s.engine.EnableLatch().Set()
	return true
}

// TryPlayMedia implements slideshow.DevicePlayer. It acquires the session
// lock with a 1-second timeout (so a concurrent discovery-removed
// teardown can never deadlock against it), verifies the device is ready
// for an active play, and issues the play call with a 1-second
// active-block. Any failure collapses to a boolean false so callers see
// a plain success/failure report rather than device-library errors.
func (s *Supervisor) TryPlayMedia(ctx context.Context, url string) bool {
	if !s.tryLockWithTimeout(time.Second) {
		return false
	}
	defer s.mu.Unlock()

	if s.canCastLocked(true) != Success {
		return false
	}
	if s.client == nil {
		return false
	}

	playCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := s.client.PlayMedia(playCtx, url); err != nil {
		s.logger.WithError(err).WithField("url", url).Warn("Play call failed")
		return false
	}
	return true
}

func (s *Supervisor) tryLockWithTimeout(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.mu.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
