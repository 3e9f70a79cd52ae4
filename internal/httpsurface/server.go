// Package httpsurface is the plain HTTP front door: it serves generated
// artifacts and the control UI to the Chromecast and browser, and turns
// POSTed commands into calls against the rest of the service. Every
// route is plain request/response: a ServeMux behind a goroutine-run
// ListenAndServe with a context-bounded Shutdown.
package httpsurface

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/e-roder/pycastblaster-go/internal/logging"
)

var contentTypeByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// StateView is the read side the /state handler needs: a point-in-time
// snapshot of the playlist and service status. Implemented by the
// Playlist Server.
type StateView interface {
	State() StateSnapshot
}

// StateSnapshot is the JSON shape returned by GET /state.
type StateSnapshot struct {
	ChromecastName           string   `json:"chromecast_name"`
	IsPaused                 bool     `json:"is_paused"`
	SlideshowDurationSeconds float64  `json:"slideshow_duration_seconds"`
	ImagePath                string   `json:"image_path"`
	Images                   []string `json:"images"`
	CurrentImageIndex        int      `json:"current_image_index"`
	ImagesMinIndex           int      `json:"images_min_index"`
	ImageCount               int      `json:"image_count"`
	LogLines                 []string `json:"log_lines"`
}

// CommandSink is where POST /command is dispatched to. Implemented by the
// top-level supervisor (Exit, Reload) and the Playlist Server/config
// manager (Pause, DurationUpdate).
type CommandSink interface {
	Exit() error
	Pause() error
	Reload() error
	DurationUpdate(seconds float64) error
}

// Server is the HTTP Surface.
type Server struct {
	imagesRoot string
	tempRoot   string
	addr       string

	state   StateView
	command CommandSink
	logger  *logging.Logger

	httpServer *http.Server
	running    int32
}

// New creates a Server bound to addr, serving images under imagesRoot and
// static/generated content under tempRoot.
func New(addr, imagesRoot, tempRoot string, state StateView, command CommandSink) *Server {
	return &Server{
		imagesRoot: imagesRoot,
		tempRoot:   tempRoot,
		addr:       addr,
		state:      state,
		command:    command,
		logger:     logging.GetLogger("httpsurface"),
	}
}

// Handler builds the route table. Exposed so tests can drive it directly
// via httptest without binding a real listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/image/", s.handleImage)
	mux.HandleFunc("/command", s.handleCommand)
	mux.HandleFunc("/", s.handleStatic)
	return mux
}

// Start begins serving in the background; ListenAndServe itself runs in
// a goroutine. Start returns the listener's error if it fails within a
// 50ms grace window, and nil otherwise; a failure after that window is
// only logged.
func (s *Server) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return fmt.Errorf("http surface is already running")
	}

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP surface listener failed")
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		atomic.StoreInt32(&s.running, 0)
		return fmt.Errorf("starting http surface: %w", err)
	case <-time.After(50 * time.Millisecond):
		s.logger.WithField("addr", s.addr).Info("HTTP surface listening")
		return nil
	}
}

// Stop implements common.Stoppable.
func (s *Server) Stop(ctx context.Context) error {
	if atomic.LoadInt32(&s.running) == 0 {
		return nil
	}
	defer atomic.StoreInt32(&s.running, 0)

	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http surface: %w", err)
	}
	return nil
}

// DetectLANAddress finds the outbound LAN address of this host by
// opening a UDP socket to an address that never needs to be reachable
// (no packet is actually sent). Falls back to 127.0.0.1 if the lookup
// fails, e.g. on a host with no configured route.
func DetectLANAddress() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return localAddr.IP.String()
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	relative := strings.TrimPrefix(r.URL.Path, "/")
	if relative == "" {
		relative = "index.html"
	}
	servePathUnder(w, s.tempRoot, relative, s.logger)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	relative := strings.TrimPrefix(r.URL.Path, "/image/")
	servePathUnder(w, s.imagesRoot, relative, s.logger)
}

// servePathUnder joins relative onto root, rejects any result that
// normalises outside of root, and streams the file back with a
// Content-Type taken from the small extension table rather than a
// generic MIME sniffer. Any failure — traversal, missing file, read
// error — becomes 404 so a malformed request can never crash the
// handler or leak filesystem structure.
func servePathUnder(w http.ResponseWriter, root, relative string, logger *logging.Logger) {
	cleanRoot, err := filepath.Abs(root)
	if err != nil {
		http.NotFound(w, nil)
		return
	}
	candidate := filepath.Join(cleanRoot, relative)
	if candidate != cleanRoot && !strings.HasPrefix(candidate, cleanRoot+string(os.PathSeparator)) {
		http.NotFound(w, nil)
		return
	}

	f, err := os.Open(candidate)
	if err != nil {
		http.NotFound(w, nil)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, nil)
		return
	}

	ext := strings.ToLower(filepath.Ext(candidate))
	if ct, ok := contentTypeByExtension[ext]; ok {
		w.Header().Set("Content-Type", ct)
	}

	if _, err := writeAll(w, f); err != nil {
		logger.WithError(err).WithField("path", candidate).Warn("Failed writing response body")
	}
}
