package tempstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-roder/pycastblaster-go/internal/tempstore"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestRecordRewritesManifestToMatchQueue(t *testing.T) {
	dir := t.TempDir()
	r := tempstore.New(dir)

	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	writeFile(t, a)
	writeFile(t, b)

	require.NoError(t, r.Record(a, tempstore.Processed))
	require.NoError(t, r.Record(b, tempstore.Spliced))

	contents, err := os.ReadFile(r.ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, a+"\n"+b+"\n", string(contents))
}

func TestPurgeOldestKeepsMostRecentEntries(t *testing.T) {
	dir := t.TempDir()
	r := tempstore.New(dir)

	paths := make([]string, 5)
	for i := range paths {
		paths[i] = filepath.Join(dir, string(rune('a'+i))+".jpg")
		writeFile(t, paths[i])
		require.NoError(t, r.Record(paths[i], tempstore.Processed))
	}

	require.NoError(t, r.PurgeOldest(2))

	for i := 0; i < 3; i++ {
		_, err := os.Stat(paths[i])
		assert.True(t, os.IsNotExist(err), "expected %s to be purged", paths[i])
	}
	for i := 3; i < 5; i++ {
		_, err := os.Stat(paths[i])
		assert.NoError(t, err, "expected %s to survive purge", paths[i])
	}

	contents, err := os.ReadFile(r.ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, paths[3]+"\n"+paths[4]+"\n", string(contents))
}

func TestPurgeOldestTreatsDeleteFailureAsNonFatal(t *testing.T) {
	dir := t.TempDir()
	r := tempstore.New(dir)

	missing := filepath.Join(dir, "already-gone.jpg")
	require.NoError(t, r.Record(missing, tempstore.Processed))

	require.NoError(t, r.PurgeOldest(0))
}

func TestPurgeAllFromManifestDeletesListedFilesAndTruncates(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "pycastblaster_temp_files.txt")

	xPath := filepath.Join(dir, "x.jpg")
	yPath := filepath.Join(dir, "y.jpg")
	writeFile(t, xPath)
	writeFile(t, yPath)
	require.NoError(t, os.WriteFile(manifestPath, []byte(xPath+"\n"+yPath+"\n"), 0o644))

	require.NoError(t, tempstore.PurgeAllFromManifest(manifestPath, dir))

	_, err := os.Stat(xPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(yPath)
	assert.True(t, os.IsNotExist(err))

	info, err := os.Stat(manifestPath)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestPurgeAllFromManifestToleratesMissingManifest(t *testing.T) {
	dir := t.TempDir()
	err := tempstore.PurgeAllFromManifest(filepath.Join(dir, "no-such-manifest.txt"), dir)
	assert.NoError(t, err)
}

func TestPurgeAllFromManifestRejectsPathEscapeViaBasenameOnly(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "pycastblaster_temp_files.txt")

	outside := t.TempDir()
	escapePath := filepath.Join(outside, "outside.jpg")
	writeFile(t, escapePath)

	require.NoError(t, os.WriteFile(manifestPath, []byte("../"+filepath.Base(outside)+"/outside.jpg\n"), 0o644))

	require.NoError(t, tempstore.PurgeAllFromManifest(manifestPath, dir))

	_, err := os.Stat(escapePath)
	assert.NoError(t, err, "basename-only join must not let a manifest entry escape tempPath")
}
