// Package tempstore tracks the generated artifacts the Playlist Server
// writes under temp_path and keeps a crash-safe manifest of them on disk,
// so a restart can clean up whatever a prior run left behind.
package tempstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/e-roder/pycastblaster-go/internal/logging"
)

// ArtifactKind distinguishes how an artifact was produced.
type ArtifactKind int

const (
	// Processed artifacts come from a single reframed/blurred/resized source image.
	Processed ArtifactKind = iota
	// Spliced artifacts come from two portrait images composited side by side.
	Spliced
)

func (k ArtifactKind) String() string {
	switch k {
	case Spliced:
		return "spliced"
	default:
		return "processed"
	}
}

// Artifact is one generated file tracked by the registry.
type Artifact struct {
	GeneratedPath string
	Kind          ArtifactKind
}

// Registry owns the in-memory queue of live artifacts and the on-disk
// manifest that mirrors it. The Playlist Server is its only user; the
// HTTP Surface serves the same files straight out of tempPath and does
// not consult the Registry.
type Registry struct {
	mu           sync.Mutex
	tempPath     string
	manifestPath string
	queue        []Artifact
	logger       *logging.Logger
}

// New creates a registry rooted at tempPath, using the standard manifest
// filename inside it.
func New(tempPath string) *Registry {
	return &Registry{
		tempPath:     tempPath,
		manifestPath: filepath.Join(tempPath, "pycastblaster_temp_files.txt"),
		logger:       logging.GetLogger("tempstore"),
	}
}

// ManifestPath returns the path of the on-disk manifest.
func (r *Registry) ManifestPath() string {
	return r.manifestPath
}

// Record appends a new artifact to the in-memory queue and rewrites the
// manifest (every entry written to a sibling .tmp file, fsynced, then
// renamed over the manifest) so that a crash between
// these two steps never leaves a file off-manifest: the manifest is always
// rewritten in full immediately after the in-memory queue changes, under
// the same lock.
func (r *Registry) Record(path string, kind ArtifactKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.queue = append(r.queue, Artifact{GeneratedPath: path, Kind: kind})
	return r.flushManifestLocked()
}

// FlushManifest rewrites the manifest file to exactly match the in-memory
// queue. Exposed so callers can force a rewrite without adding an entry;
// Record and PurgeOldest use the same locked helper directly.
func (r *Registry) FlushManifest() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushManifestLocked()
}

func (r *Registry) flushManifestLocked() error {
	tmp := r.manifestPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating manifest temp file: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, a := range r.queue {
		if _, err := fmt.Fprintln(w, a.GeneratedPath); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("writing manifest entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flushing manifest: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing manifest temp file: %w", err)
	}
	if err := os.Rename(tmp, r.manifestPath); err != nil {
		return fmt.Errorf("renaming manifest into place: %w", err)
	}
	return nil
}

// PurgeOldest deletes every tracked artifact except the most recent
// keepLast entries. Keeping at least two lets the device finish fetching
// the previous artifact while a new one is already being served.
func (r *Registry) PurgeOldest(keepLast int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if keepLast < 0 {
		keepLast = 0
	}
	if len(r.queue) <= keepLast {
		return nil
	}

	cut := len(r.queue) - keepLast
	toRemove := r.queue[:cut]
	r.queue = append([]Artifact(nil), r.queue[cut:]...)

	for _, a := range toRemove {
		if err := os.Remove(a.GeneratedPath); err != nil && !os.IsNotExist(err) {
			r.logger.WithError(err).WithField("path", a.GeneratedPath).
				Warn("Failed to delete purged artifact")
		}
	}

	return r.flushManifestLocked()
}

// PurgeAllFromManifest reads manifestPath (if present), deletes each
// listed file by joining its basename onto tempPath (so a manifest
// tampered with absolute or ../ paths can't escape tempPath), and
// truncates the manifest to empty. It is meant to run once at startup
// against whatever the previous run left behind, and tolerates files
// that are already gone.
func PurgeAllFromManifest(manifestPath, tempPath string) error {
	logger := logging.GetLogger("tempstore")

	f, err := os.Open(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening manifest %q: %w", manifestPath, err)
	}

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	scanErr := scanner.Err()
	f.Close()
	if scanErr != nil {
		return fmt.Errorf("reading manifest %q: %w", manifestPath, scanErr)
	}

	for _, line := range lines {
		target := filepath.Join(tempPath, filepath.Base(line))
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			logger.WithError(err).WithField("path", target).
				Warn("Failed to delete stale artifact from prior run")
		}
	}

	if err := os.Truncate(manifestPath, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("truncating manifest %q: %w", manifestPath, err)
	}

	return nil
}
