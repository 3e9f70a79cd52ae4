// Package slideshow implements the Playlist Server: the engine that
// drives one image at a time onto the device, handling merges from the
// Image Scanner, pauses and duration changes from the HTTP Surface, and
// interruptions from the Device Session Supervisor.
package slideshow

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e-roder/pycastblaster-go/internal/httpsurface"
	"github.com/e-roder/pycastblaster-go/internal/logging"
	"github.com/e-roder/pycastblaster-go/internal/playlist"
	"github.com/e-roder/pycastblaster-go/internal/tempstore"
)

// ImageFacade is the subset of internal/imaging.Facade the engine needs.
// Declared here, not imported as a concrete type, so tests can fake it.
type ImageFacade interface {
	IsPortrait(path string) (bool, error)
	ProcessFile(inputPath, desiredOutputPath string) (string, error)
	Splice(portraitA, portraitB, outputPath string) error
}

// DevicePlayer is the subset of internal/devicesession the engine needs
// to issue a play call; it reports only success/failure, matching
// try_to_play_media's boolean contract.
type DevicePlayer interface {
	TryPlayMedia(ctx context.Context, url string) bool
}

const (
	tickInterval  = time.Second
	splicedKind   = tempstore.Spliced
	processedKind = tempstore.Processed
	keepArtifacts = 2
)

// Engine is the Playlist Server.
type Engine struct {
	playlist *playlist.Playlist
	registry *tempstore.Registry
	facade   ImageFacade
	device   DevicePlayer
	inbox    *Inbox

	imagesPath     string
	tempPath       string
	chromecastName string
	baseURL        string

	exit            *Signal
	reload          *Signal
	enableLatch     *Signal
	notServingLatch *Signal

	paused int32

	durationMu sync.Mutex
	duration   float64

	log    *recentLog
	logger *logging.Logger
}

// New builds an Engine. baseURL is the http://host:port/ prefix the
// device uses to fetch generated artifacts, typically built from
// httpsurface.DetectLANAddress and the configured port.
func New(pl *playlist.Playlist, registry *tempstore.Registry, facade ImageFacade, device DevicePlayer, inbox *Inbox, imagesPath, tempPath, chromecastName, baseURL string, initialDuration float64) *Engine {
	return &Engine{
		playlist:        pl,
		registry:        registry,
		facade:          facade,
		device:          device,
		inbox:           inbox,
		imagesPath:      imagesPath,
		tempPath:        tempPath,
		chromecastName:  chromecastName,
		baseURL:         strings.TrimSuffix(baseURL, "/") + "/",
		exit:            NewSignal(),
		reload:          NewSignal(),
		enableLatch:     NewSignal(),
		notServingLatch: NewSignal(),
		duration:        initialDuration,
		log:             newRecentLog(),
		logger:          logging.GetLogger("slideshow"),
	}
}

// EnableLatch is set by the Device Session Supervisor once the device is
// ready to receive play calls, and cleared when it is not.
func (e *Engine) EnableLatch() *Signal { return e.enableLatch }

// NotServingLatch is set by the engine whenever it is not inside a
// serving loop, observed by the Supervisor's idle-watcher.
func (e *Engine) NotServingLatch() *Signal { return e.notServingLatch }

// ExitSignal is the process-wide exit signal.
func (e *Engine) ExitSignal() *Signal { return e.exit }

// ReloadSignal is the process-wide reload signal.
func (e *Engine) ReloadSignal() *Signal { return e.reload }

// Pause toggles the paused flag. Implements the "pause" command.
func (e *Engine) Pause() error {
	for {
		old := atomic.LoadInt32(&e.paused)
		next := int32(1)
		if old == 1 {
			next = 0
		}
		if atomic.CompareAndSwapInt32(&e.paused, old, next) {
			e.appendLog(fmt.Sprintf("paused=%v", next == 1))
			return nil
		}
	}
}

func (e *Engine) isPaused() bool {
	return atomic.LoadInt32(&e.paused) == 1
}

// SetSlideshowDuration updates the configured per-image wait. A change
// observed mid-wait adds the delta (clamped >= 0) to the remaining time
// instead of restarting the wait.
func (e *Engine) SetSlideshowDuration(seconds float64) error {
	if seconds <= 0 {
		return fmt.Errorf("slideshow duration must be positive, got %v", seconds)
	}
	e.durationMu.Lock()
	e.duration = seconds
	e.durationMu.Unlock()
	return nil
}

func (e *Engine) currentDuration() float64 {
	e.durationMu.Lock()
	defer e.durationMu.Unlock()
	return e.duration
}

// Stop implements common.Stoppable: it requests a graceful exit and
// waits (bounded by ctx) for the not-serving latch, so the caller knows
// the temp-manifest file handle has been relinquished before it tears
// down the rest of the process.
func (e *Engine) Stop(ctx context.Context) error {
	e.exit.Set()
	done := make(chan struct{})
	go func() {
		e.notServingLatch.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the outer Idle/Merging/Preparing/Playing/Waiting loop. It
// returns once the exit signal is set.
func (e *Engine) Run(ctx context.Context) {
	for !e.exit.IsSet() && ctx.Err() == nil {
		e.notServingLatch.Set()
		if !e.waitForEnableOrExit(ctx) {
			return
		}
		e.notServingLatch.Clear()
		e.runPass(ctx)
	}
	e.notServingLatch.Set()
}

// waitForEnableOrExit blocks until either the enable latch or the exit
// signal is set, polling at 1s resolution so exit is observed promptly.
func (e *Engine) waitForEnableOrExit(ctx context.Context) bool {
	for {
		if e.exit.IsSet() || ctx.Err() != nil {
			return false
		}
		if e.enableLatch.IsSet() {
			return true
		}
		select {
		case <-time.After(tickInterval):
		case <-ctx.Done():
			return false
		}
	}
}

// runPass drives the playlist from its current cursor through to the end
// of the list (or an interruption), merging any pending scanner batches
// at each iteration. On a clean end-of-list it reshuffles; on
// interruption it leaves the cursor exactly where playback stopped.
func (e *Engine) runPass(ctx context.Context) {
	interrupted := false

	for {
		if e.exit.IsSet() || ctx.Err() != nil {
			return
		}

		e.mergeInbox()

		idx := e.playlist.Cursor()
		if e.playlist.Len() == 0 {
			// Nothing to serve yet; idle a tick so this loop doesn't spin
			// while the scanner is still walking.
			select {
			case <-time.After(tickInterval):
			case <-ctx.Done():
			}
			return
		}
		if idx >= e.playlist.Len() {
			break
		}

		ref, ok := e.playlist.At(idx)
		if !ok {
			break
		}

		if ref.Layout == playlist.Unknown {
			portrait, err := e.facade.IsPortrait(ref.SourcePath)
			if err != nil {
				e.logger.WithError(err).WithField("path", ref.SourcePath).
					Warn("Failed to determine image orientation; skipping")
				e.appendLog(fmt.Sprintf("skipping %s: %v", ref.SourcePath, err))
				e.playlist.Advance()
				continue
			}
			layout := playlist.Landscape
			if portrait {
				layout = playlist.Portrait
			}
			e.playlist.MemoiseLayout(idx, layout)
			ref, _ = e.playlist.At(idx)
		}

		if e.playlist.TakeSkip(ref.SourcePath) {
			e.playlist.Advance()
			continue
		}

		urlPath, err := e.prepare(idx, ref)
		if err != nil {
			e.logger.WithError(err).WithField("path", ref.SourcePath).
				Warn("Transformer failed on this reference; skipping")
			e.appendLog(fmt.Sprintf("skipping %s: %v", ref.SourcePath, err))
			e.playlist.Advance()
			continue
		}

		if !e.device.TryPlayMedia(ctx, urlPath) {
			e.enableLatch.Clear()
			e.appendLog("device play call failed; pausing until device is reachable")
			interrupted = true
			break
		}

		outcome := e.wait(ctx)
		if outcome == waitInterrupted {
			interrupted = true
			break
		}
		if outcome == waitCutShort {
			// Merge while the cursor still points at the just-played item,
			// so it is pinned in place and the newcomers shuffle in behind
			// it; then advance as usual.
			e.mergeInbox()
		}
		e.playlist.Advance()
	}

	if !interrupted {
		e.playlist.ReshuffleAll()
	}
}

func (e *Engine) mergeInbox() {
	if batch, ok := e.inbox.TryReceive(); ok {
		e.playlist.Merge(batch)
		e.appendLog(fmt.Sprintf("merged %d new image(s)", len(batch)))
	}
}

// waitOutcome says how a slideshow wait ended.
type waitOutcome int

const (
	// waitCompleted: the full duration elapsed; advance normally.
	waitCompleted waitOutcome = iota
	// waitCutShort: newcomers are pending; merge now and advance so the
	// batch doesn't sit in the inbox for the rest of the wait.
	waitCutShort
	// waitInterrupted: exit requested or the enable latch was cleared;
	// abandon the pass with the cursor where it is.
	waitInterrupted
)

// wait sleeps in 1s ticks for the configured slideshow duration. Each
// tick checks, in order: exit requested, enable latch cleared, newcomers
// pending, paused (remaining time frozen), and duration reconfigured
// (delta applied to the remaining time, clamped at zero). The newcomers
// check runs only after a tick has passed, so the just-prepared image
// always gets at least a second on screen.
func (e *Engine) wait(ctx context.Context) waitOutcome {
	remaining := e.currentDuration()
	known := remaining

	for remaining > 0 {
		if e.exit.IsSet() {
			return waitInterrupted
		}
		if !e.enableLatch.IsSet() {
			return waitInterrupted
		}

		select {
		case <-time.After(tickInterval):
		case <-ctx.Done():
			return waitInterrupted
		}

		if e.inbox.Pending() {
			return waitCutShort
		}

		if !e.isPaused() {
			remaining -= tickInterval.Seconds()
		}

		now := e.currentDuration()
		if now != known {
			remaining += now - known
			if remaining < 0 {
				remaining = 0
			}
			known = now
		}
	}
	return waitCompleted
}

// prepare runs the preparation algorithm for playlist[idx] and returns
// the URL the device should fetch.
func (e *Engine) prepare(idx int, ref playlist.Reference) (string, error) {
	if ref.Layout == playlist.Portrait {
		if partner, ok := e.findSpliceCandidate(idx); ok {
			outPath := e.newArtifactPath()
			if err := e.facade.Splice(ref.SourcePath, partner.SourcePath, outPath); err != nil {
				return "", fmt.Errorf("splicing %s and %s: %w", ref.SourcePath, partner.SourcePath, err)
			}
			e.playlist.AddSkip(partner.SourcePath)
			if err := e.registry.Record(outPath, splicedKind); err != nil {
				e.logger.WithError(err).Warn("Failed to record spliced artifact")
			}
			return e.finishArtifact(idx, outPath)
		}
	}

	outPath := e.newArtifactPath()
	actualPath, err := e.facade.ProcessFile(ref.SourcePath, outPath)
	if err != nil {
		return "", fmt.Errorf("processing %s: %w", ref.SourcePath, err)
	}
	if err := e.registry.Record(actualPath, processedKind); err != nil {
		e.logger.WithError(err).Warn("Failed to record processed artifact")
	}
	return e.finishArtifact(idx, actualPath)
}

func (e *Engine) finishArtifact(idx int, actualPath string) (string, error) {
	if err := e.registry.PurgeOldest(keepArtifacts); err != nil {
		e.logger.WithError(err).Warn("Failed to purge old artifacts")
	}
	urlPath := e.baseURL + path.Base(filepath.ToSlash(actualPath))
	e.playlist.SetURLPath(idx, urlPath)
	return urlPath, nil
}

// findSpliceCandidate searches forward from idx+1 for another Portrait
// whose source is not in the skip-set, memoising any Unknown layouts
// encountered along the way. It never mutates the cursor.
func (e *Engine) findSpliceCandidate(idx int) (playlist.Reference, bool) {
	for j := idx + 1; j < e.playlist.Len(); j++ {
		candidate, ok := e.playlist.At(j)
		if !ok {
			break
		}
		if candidate.Layout == playlist.Unknown {
			portrait, err := e.facade.IsPortrait(candidate.SourcePath)
			if err != nil {
				continue
			}
			layout := playlist.Landscape
			if portrait {
				layout = playlist.Portrait
			}
			e.playlist.MemoiseLayout(j, layout)
			candidate, _ = e.playlist.At(j)
		}
		if candidate.Layout != playlist.Portrait {
			continue
		}
		if e.playlist.HasSkip(candidate.SourcePath) {
			continue
		}
		return candidate, true
	}
	return playlist.Reference{}, false
}

func (e *Engine) newArtifactPath() string {
	return filepath.Join(e.tempPath, uuid.NewString()+".jpg")
}

func (e *Engine) appendLog(line string) {
	e.log.Append(line)
}

// State implements httpsurface.StateView.
func (e *Engine) State() httpsurface.StateSnapshot {
	cursor := e.playlist.Cursor()
	from := cursor - 4
	to := cursor + 10
	window := e.playlist.SnapshotWindow(from, to)

	images := make([]string, len(window))
	for i, ref := range window {
		images[i] = relativeToImagesRoot(e.imagesPath, ref.SourcePath)
	}

	minIndex := from
	if minIndex < 0 {
		minIndex = 0
	}

	return httpsurface.StateSnapshot{
		ChromecastName:           e.chromecastName,
		IsPaused:                 e.isPaused(),
		SlideshowDurationSeconds: e.currentDuration(),
		ImagePath:                e.imagesPath,
		Images:                   images,
		CurrentImageIndex:        cursor,
		ImagesMinIndex:           minIndex,
		ImageCount:               e.playlist.Len(),
		LogLines:                 e.log.Snapshot(),
	}
}

func relativeToImagesRoot(root, sourcePath string) string {
	rel, err := filepath.Rel(root, sourcePath)
	if err != nil {
		return sourcePath
	}
	return filepath.ToSlash(rel)
}
