package slideshow_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-roder/pycastblaster-go/internal/playlist"
	"github.com/e-roder/pycastblaster-go/internal/slideshow"
	"github.com/e-roder/pycastblaster-go/internal/tempstore"
)

type fakeFacade struct {
	mu        sync.Mutex
	portraits map[string]bool
	processed []string
	spliced   [][2]string
}

func newFakeFacade(portraits map[string]bool) *fakeFacade {
	return &fakeFacade{portraits: portraits}
}

func (f *fakeFacade) IsPortrait(path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.portraits[path], nil
}

func (f *fakeFacade) ProcessFile(inputPath, desiredOutputPath string) (string, error) {
	f.mu.Lock()
	f.processed = append(f.processed, inputPath)
	f.mu.Unlock()
	if err := os.WriteFile(desiredOutputPath, []byte("artifact"), 0o644); err != nil {
		return "", err
	}
	return desiredOutputPath, nil
}

func (f *fakeFacade) Splice(a, b, outputPath string) error {
	f.mu.Lock()
	f.spliced = append(f.spliced, [2]string{a, b})
	f.mu.Unlock()
	return os.WriteFile(outputPath, []byte("spliced"), 0o644)
}

func (f *fakeFacade) spliceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spliced)
}

func (f *fakeFacade) processedCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.processed {
		if p == path {
			n++
		}
	}
	return n
}

type fakeDevice struct {
	mu    sync.Mutex
	plays []string
	fail  bool
}

func (d *fakeDevice) TryPlayMedia(ctx context.Context, url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return false
	}
	d.plays = append(d.plays, url)
	return true
}

func (d *fakeDevice) playCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.plays)
}

func newTestEngine(t *testing.T, pl *playlist.Playlist, facade slideshow.ImageFacade, device slideshow.DevicePlayer, duration float64) (*slideshow.Engine, string) {
	t.Helper()
	tempDir := t.TempDir()
	registry := tempstore.New(tempDir)
	engine := slideshow.New(pl, registry, facade, device, slideshow.NewInbox(), t.TempDir(), tempDir, "Test TV", "http://127.0.0.1:8000", duration)
	return engine, tempDir
}

func runUntil(t *testing.T, engine *slideshow.Engine, cond func() bool) {
	t.Helper()
	runUntilTimeout(t, engine, cond, 5*time.Second)
}

func runUntilTimeout(t *testing.T, engine *slideshow.Engine, cond func() bool, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go engine.Run(ctx)
	waitCond(t, cond, timeout)
}

func waitCond(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition never satisfied before deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEngineColdStartSingleLandscapePlaysOneArtifact(t *testing.T) {
	pl := playlist.New(1)
	pl.AppendUnknown([]string{"a.jpg"})

	facade := newFakeFacade(map[string]bool{"a.jpg": false})
	device := &fakeDevice{}
	engine, _ := newTestEngine(t, pl, facade, device, 100)
	engine.EnableLatch().Set()

	runUntil(t, engine, func() bool { return device.playCount() >= 1 })

	state := engine.State()
	assert.Equal(t, 1, state.ImageCount)
	assert.Equal(t, 0, state.CurrentImageIndex)
	assert.Equal(t, []string{"a.jpg"}, state.Images)

	assert.NoError(t, engine.Stop(context.Background()))
}

func TestEngineSplicesTwoPortraitsIntoOnePlay(t *testing.T) {
	pl := playlist.New(1)
	pl.AppendUnknown([]string{"p1.jpg", "p2.jpg"})

	facade := newFakeFacade(map[string]bool{"p1.jpg": true, "p2.jpg": true})
	device := &fakeDevice{}
	engine, _ := newTestEngine(t, pl, facade, device, 100)
	engine.EnableLatch().Set()

	runUntil(t, engine, func() bool { return device.playCount() >= 1 })

	assert.Equal(t, 1, facade.spliceCount())
	assert.Equal(t, 1, device.playCount())

	assert.NoError(t, engine.Stop(context.Background()))
}

func TestEngineMergeDuringWaitDoesNotReplayCurrentImage(t *testing.T) {
	pl := playlist.New(1)
	pl.AppendUnknown([]string{"a.jpg", "b.jpg"})

	facade := newFakeFacade(map[string]bool{
		"a.jpg": false, "b.jpg": false, "c.jpg": false, "d.jpg": false,
	})
	device := &fakeDevice{}
	inbox := slideshow.NewInbox()
	tempDir := t.TempDir()
	registry := tempstore.New(tempDir)
	engine := slideshow.New(pl, registry, facade, device, inbox, t.TempDir(), tempDir, "Test TV", "http://127.0.0.1:8000", 3)
	engine.EnableLatch().Set()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	// Wait until b.jpg is playing (cursor=1), then deliver newcomers
	// mid-wait: the wait is cut short, b.jpg stays pinned in place, and
	// the newcomers shuffle in behind it.
	waitCond(t, func() bool { return device.playCount() >= 2 }, 10*time.Second)
	require.True(t, inbox.TrySend([]playlist.Reference{{SourcePath: "c.jpg"}, {SourcePath: "d.jpg"}}))

	waitCond(t, func() bool { return device.playCount() >= 3 }, 10*time.Second)

	assert.Equal(t, 4, pl.Len())
	assert.Equal(t, 1, facade.processedCount("a.jpg"))
	assert.Equal(t, 1, facade.processedCount("b.jpg"))

	assert.NoError(t, engine.Stop(context.Background()))
	<-done
}

func TestEnginePauseStopsDurationFromElapsing(t *testing.T) {
	pl := playlist.New(1)
	pl.AppendUnknown([]string{"a.jpg"})

	facade := newFakeFacade(map[string]bool{"a.jpg": false})
	device := &fakeDevice{}
	// A 1s duration inside a 1.5s run: unpaused, a.jpg would be played a
	// second time after the first wait completed.
	engine, _ := newTestEngine(t, pl, facade, device, 1)
	engine.EnableLatch().Set()
	require.NoError(t, engine.Pause())

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()
	<-done

	assert.Equal(t, 1, device.playCount())
	assert.True(t, engine.State().IsPaused)
}

func TestEngineDeviceFailureClearsEnableLatch(t *testing.T) {
	pl := playlist.New(1)
	pl.AppendUnknown([]string{"a.jpg"})

	facade := newFakeFacade(map[string]bool{"a.jpg": false})
	device := &fakeDevice{fail: true}
	engine, _ := newTestEngine(t, pl, facade, device, 100)
	engine.EnableLatch().Set()

	runUntil(t, engine, func() bool { return !engine.EnableLatch().IsSet() })

	assert.NoError(t, engine.Stop(context.Background()))
}

func TestEnginePurgesOldArtifactsKeepingLastTwo(t *testing.T) {
	pl := playlist.New(1)
	paths := make([]string, 5)
	portraits := map[string]bool{}
	for i := range paths {
		paths[i] = fmt.Sprintf("img%d.jpg", i)
		portraits[paths[i]] = false
	}
	pl.AppendUnknown(paths)

	facade := newFakeFacade(portraits)
	device := &fakeDevice{}
	engine, tempDir := newTestEngine(t, pl, facade, device, 0.05)
	engine.EnableLatch().Set()

	runUntilTimeout(t, engine, func() bool { return device.playCount() >= len(paths) }, 12*time.Second)
	assert.NoError(t, engine.Stop(context.Background()))

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	jpegCount := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".jpg" {
			jpegCount++
		}
	}
	assert.LessOrEqual(t, jpegCount, 2)
}
