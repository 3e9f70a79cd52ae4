// Package scanner implements the Image Scanner: it periodically walks
// the source images tree, following symlinks, and hands newly discovered
// paths to the Playlist Server through its single-slot inbox. A
// best-effort fsnotify watch on the tree shortens the sleep between
// polls when it sees activity, while the poll interval itself remains
// the source of truth.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/e-roder/pycastblaster-go/internal/logging"
	"github.com/e-roder/pycastblaster-go/internal/playlist"
	"github.com/e-roder/pycastblaster-go/internal/slideshow"
)

var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

const (
	scanInterruptInterval = 10 * time.Second
	sleepTickCeiling      = 5 * time.Second
	inboxRetryInterval    = 500 * time.Millisecond
)

// Scanner is the Image Scanner activity.
type Scanner struct {
	imagesRoot string
	tempRoot   string

	inbox *slideshow.Inbox
	exit  *slideshow.Signal

	frequency time.Duration

	known map[string]struct{}

	watcher *fsnotify.Watcher
	nudge   chan struct{}

	initialScanDone int32

	logger *logging.Logger
	done   chan struct{}
}

// New creates a Scanner. frequency is imageScanningFrequencySeconds
// (default 600s) converted to a time.Duration.
func New(imagesRoot, tempRoot string, inbox *slideshow.Inbox, exit *slideshow.Signal, frequency time.Duration) *Scanner {
	return &Scanner{
		imagesRoot: imagesRoot,
		tempRoot:   tempRoot,
		inbox:      inbox,
		exit:       exit,
		frequency:  frequency,
		known:      make(map[string]struct{}),
		nudge:      make(chan struct{}, 1),
		logger:     logging.GetLogger("scanner"),
		done:       make(chan struct{}),
	}
}

// Run walks the tree, sleeps, and repeats until the exit signal is set
// or ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	defer close(s.done)

	s.startWatcher()
	defer s.stopWatcher()

	for !s.exit.IsSet() && ctx.Err() == nil {
		s.scanOnce(ctx)
		s.sleepUntilNextScan(ctx)
	}
}

// Stop implements common.Stoppable.
func (s *Scanner) Stop(ctx context.Context) error {
	s.exit.Set()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scanner) scanOnce(ctx context.Context) {
	flushMidWalk := atomic.LoadInt32(&s.initialScanDone) == 0
	var batch []string
	lastFlush := time.Now()

	s.walkDir(ctx, s.imagesRoot, map[string]bool{}, func(path string) {
		if !s.shouldInclude(path) {
			return
		}
		s.known[path] = struct{}{}
		batch = append(batch, path)

		if flushMidWalk && time.Since(lastFlush) >= scanInterruptInterval && len(batch) > 0 {
			s.flush(ctx, batch)
			batch = nil
			lastFlush = time.Now()
		}
	})

	if len(batch) > 0 {
		s.flush(ctx, batch)
	}
	atomic.StoreInt32(&s.initialScanDone, 1)
}

func (s *Scanner) shouldInclude(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return false
	}
	if strings.HasPrefix(filepath.Base(path), "._") {
		return false
	}
	if underRoot(s.tempRoot, path) {
		return false
	}
	if _, ok := s.known[path]; ok {
		return false
	}
	return true
}

func underRoot(root, path string) bool {
	cleanRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return cleanPath == cleanRoot || strings.HasPrefix(cleanPath, cleanRoot+string(os.PathSeparator))
}

// walkDir recursively visits every file under dir, following symlinked
// directories while guarding against symlink cycles via the resolved
// real-path set.
func (s *Scanner) walkDir(ctx context.Context, dir string, visitedDirs map[string]bool, visit func(string)) {
	if ctx.Err() != nil || s.exit.IsSet() {
		return
	}

	if real, err := filepath.EvalSymlinks(dir); err == nil {
		if visitedDirs[real] {
			return
		}
		visitedDirs[real] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.WithError(err).WithField("dir", dir).Warn("Failed to read directory during scan")
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil || s.exit.IsSet() {
			return
		}
		full := filepath.Join(dir, entry.Name())

		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		if info.IsDir() {
			s.walkDir(ctx, full, visitedDirs, visit)
			continue
		}
		visit(full)
	}
}

// flush hands batch to the Playlist Server, polling the single-slot
// inbox every half second until the previous batch has been drained.
// The poll (rather than a blocking send) keeps the exit signal
// observable even when the server never comes back for the slot.
func (s *Scanner) flush(ctx context.Context, batch []string) {
	refs := make([]playlist.Reference, len(batch))
	for i, path := range batch {
		refs[i] = playlist.Reference{SourcePath: path, Layout: playlist.Unknown}
	}
	s.logger.WithField("count", len(refs)).Info("Handing new image batch to playlist server")

	for {
		if s.exit.IsSet() || ctx.Err() != nil {
			return
		}
		if s.inbox.TrySend(refs) {
			return
		}
		select {
		case <-time.After(inboxRetryInterval):
		case <-ctx.Done():
			return
		}
	}
}

// sleepUntilNextScan waits out the configured scan frequency, sliced
// into <=5s chunks so the exit signal and the fsnotify nudge are both
// observed promptly.
func (s *Scanner) sleepUntilNextScan(ctx context.Context) {
	remaining := s.frequency
	for remaining > 0 {
		if s.exit.IsSet() || ctx.Err() != nil {
			return
		}

		tick := sleepTickCeiling
		if remaining < tick {
			tick = remaining
		}

		select {
		case <-s.nudge:
			return
		case <-time.After(tick):
		case <-ctx.Done():
			return
		}

		remaining -= tick
	}
}

func (s *Scanner) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.WithError(err).Warn("fsnotify unavailable; scanning will rely on polling only")
		return
	}
	if err := watcher.Add(s.imagesRoot); err != nil {
		s.logger.WithError(err).WithField("path", s.imagesRoot).
			Warn("fsnotify could not watch images root; scanning will rely on polling only")
		watcher.Close()
		return
	}
	s.watcher = watcher
	go s.watchLoop()
}

func (s *Scanner) watchLoop() {
	for {
		select {
		case _, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			select {
			case s.nudge <- struct{}{}:
			default:
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *Scanner) stopWatcher() {
	if s.watcher == nil {
		return
	}
	if err := s.watcher.Close(); err != nil {
		s.logger.WithError(err).Warn("Error closing fsnotify watcher")
	}
}
