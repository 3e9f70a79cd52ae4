package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-roder/pycastblaster-go/internal/slideshow"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestScanOnceDiscoversSupportedExtensionsOnly(t *testing.T) {
	imagesRoot := t.TempDir()
	writeFile(t, filepath.Join(imagesRoot, "a.jpg"))
	writeFile(t, filepath.Join(imagesRoot, "b.PNG"))
	writeFile(t, filepath.Join(imagesRoot, "notes.txt"))

	inbox := slideshow.NewInbox()
	s := New(imagesRoot, t.TempDir(), inbox, slideshow.NewSignal(), time.Minute)

	s.scanOnce(context.Background())

	batch, ok := inbox.TryReceive()
	require.True(t, ok)
	assert.Len(t, batch, 2)
}

func TestScanOnceSkipsDotUnderscoreAndTempRoot(t *testing.T) {
	imagesRoot := t.TempDir()
	tempRoot := filepath.Join(imagesRoot, "temp")
	require.NoError(t, os.MkdirAll(tempRoot, 0o755))

	writeFile(t, filepath.Join(imagesRoot, "a.jpg"))
	writeFile(t, filepath.Join(imagesRoot, "._hidden.jpg"))
	writeFile(t, filepath.Join(tempRoot, "generated.jpg"))

	inbox := slideshow.NewInbox()
	s := New(imagesRoot, tempRoot, inbox, slideshow.NewSignal(), time.Minute)

	s.scanOnce(context.Background())

	batch, ok := inbox.TryReceive()
	require.True(t, ok)
	require.Len(t, batch, 1)
	assert.Equal(t, filepath.Join(imagesRoot, "a.jpg"), batch[0].SourcePath)
}

func TestScanOnceDoesNotRediscoverKnownFiles(t *testing.T) {
	imagesRoot := t.TempDir()
	writeFile(t, filepath.Join(imagesRoot, "a.jpg"))

	inbox := slideshow.NewInbox()
	s := New(imagesRoot, t.TempDir(), inbox, slideshow.NewSignal(), time.Minute)

	s.scanOnce(context.Background())
	_, ok := inbox.TryReceive()
	require.True(t, ok)

	s.scanOnce(context.Background())
	_, ok = inbox.TryReceive()
	assert.False(t, ok, "second scan should not rediscover the same file")
}

func TestScanOnceFollowsSymlinkedDirectories(t *testing.T) {
	imagesRoot := t.TempDir()
	realDir := t.TempDir()
	writeFile(t, filepath.Join(realDir, "linked.jpg"))

	linkPath := filepath.Join(imagesRoot, "link")
	if err := os.Symlink(realDir, linkPath); err != nil {
		t.Skipf("symlinks not supported in this environment: %v", err)
	}

	inbox := slideshow.NewInbox()
	s := New(imagesRoot, t.TempDir(), inbox, slideshow.NewSignal(), time.Minute)

	s.scanOnce(context.Background())

	batch, ok := inbox.TryReceive()
	require.True(t, ok)
	require.Len(t, batch, 1)
	assert.Equal(t, filepath.Join(linkPath, "linked.jpg"), batch[0].SourcePath)
}

func TestRunStopsOnExitSignal(t *testing.T) {
	imagesRoot := t.TempDir()
	writeFile(t, filepath.Join(imagesRoot, "a.jpg"))

	inbox := slideshow.NewInbox()
	exit := slideshow.NewSignal()
	s := New(imagesRoot, t.TempDir(), inbox, exit, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.NoError(t, s.Stop(context.Background()))
	<-done
}
