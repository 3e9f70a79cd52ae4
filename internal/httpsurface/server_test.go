package httpsurface_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-roder/pycastblaster-go/internal/httpsurface"
)

type fakeState struct {
	snapshot httpsurface.StateSnapshot
}

func (f *fakeState) State() httpsurface.StateSnapshot { return f.snapshot }

type fakeCommands struct {
	exits    int
	pauses   int
	reloads  int
	duration float64
	failNext bool
}

func (f *fakeCommands) Exit() error   { f.exits++; return nil }
func (f *fakeCommands) Pause() error  { f.pauses++; return nil }
func (f *fakeCommands) Reload() error { f.reloads++; return nil }
func (f *fakeCommands) DurationUpdate(seconds float64) error {
	if f.failNext {
		return assertError{}
	}
	f.duration = seconds
	return nil
}

type assertError struct{}

func (assertError) Error() string { return "forced failure" }

func newTestServer(t *testing.T, state *fakeState, commands *fakeCommands) (imagesRoot, tempRoot string, mux http.Handler) {
	t.Helper()
	imagesRoot = t.TempDir()
	tempRoot = t.TempDir()

	srv := httpsurface.New("127.0.0.1:0", imagesRoot, tempRoot, state, commands)
	return imagesRoot, tempRoot, srv.Handler()
}

func TestHandleStateReturnsSnapshotJSON(t *testing.T) {
	state := &fakeState{snapshot: httpsurface.StateSnapshot{
		ChromecastName:           "Family Room TV",
		SlideshowDurationSeconds: 5,
		Images:                   []string{"a.jpg"},
		ImageCount:               1,
	}}
	_, _, handler := newTestServer(t, state, &fakeCommands{})

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got httpsurface.StateSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Family Room TV", got.ChromecastName)
	assert.Equal(t, []string{"a.jpg"}, got.Images)
}

func TestHandleImageServesFileUnderImagesRoot(t *testing.T) {
	imagesRoot, _, handler := newTestServer(t, &fakeState{}, &fakeCommands{})
	require.NoError(t, os.WriteFile(filepath.Join(imagesRoot, "a.jpg"), []byte("fake-jpeg"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/image/a.jpg", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "fake-jpeg", rec.Body.String())
}

func TestHandleImageRejectsPathTraversal(t *testing.T) {
	imagesRoot, _, handler := newTestServer(t, &fakeState{}, &fakeCommands{})
	outside := filepath.Join(filepath.Dir(imagesRoot), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("do-not-serve"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/image/../"+filepath.Base(outside), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// http.ServeMux itself redirects non-clean paths rather than routing
	// them to the handler, so the traversal attempt never reaches a file
	// read either way; assert on the content, not the exact status, since
	// the mux may answer with a redirect instead of the handler's 404.
	assert.NotEqual(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "do-not-serve")
}

func TestServePathUnderRejectsTraversalEscapingRoot(t *testing.T) {
	imagesRoot := t.TempDir()
	outside := filepath.Join(filepath.Dir(imagesRoot), "direct-secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("do-not-serve"), 0o644))

	rec := httptest.NewRecorder()
	httpsurface.ServePathUnderForTest(rec, imagesRoot, "../"+filepath.Base(outside))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStaticServesFromTempRoot(t *testing.T) {
	_, tempRoot, handler := newTestServer(t, &fakeState{}, &fakeCommands{})
	require.NoError(t, os.WriteFile(filepath.Join(tempRoot, "index.html"), []byte("<html></html>"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html></html>", rec.Body.String())
}

func TestHandleCommandDurationUpdateRejectsNonPositive(t *testing.T) {
	commands := &fakeCommands{}
	_, _, handler := newTestServer(t, &fakeState{}, commands)

	body := bytes.NewBufferString(`{"name":"duration_update","parameters":-1}`)
	req := httptest.NewRequest(http.MethodPost, "/command", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, commands.duration)
}

func TestHandleCommandDurationUpdateAccepts(t *testing.T) {
	commands := &fakeCommands{}
	_, _, handler := newTestServer(t, &fakeState{}, commands)

	body := bytes.NewBufferString(`{"name":"duration_update","parameters":20}`)
	req := httptest.NewRequest(http.MethodPost, "/command", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 20.0, commands.duration)
}

func TestHandleCommandUnknownNameIsBadRequest(t *testing.T) {
	_, _, handler := newTestServer(t, &fakeState{}, &fakeCommands{})

	body := bytes.NewBufferString(`{"name":"not-a-real-command"}`)
	req := httptest.NewRequest(http.MethodPost, "/command", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCommandMalformedJSONIsBadRequest(t *testing.T) {
	_, _, handler := newTestServer(t, &fakeState{}, &fakeCommands{})

	body := bytes.NewBufferString(`{not json`)
	req := httptest.NewRequest(http.MethodPost, "/command", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCommandPauseAndReload(t *testing.T) {
	commands := &fakeCommands{}
	_, _, handler := newTestServer(t, &fakeState{}, commands)

	for _, name := range []string{"pause", "reload", "exit"} {
		body := bytes.NewBufferString(`{"name":"` + name + `"}`)
		req := httptest.NewRequest(http.MethodPost, "/command", body)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code, "command %s should succeed", name)
	}

	assert.Equal(t, 1, commands.pauses)
	assert.Equal(t, 1, commands.reloads)
	assert.Equal(t, 1, commands.exits)
}
