// Package main implements the pycastblaster entry point.
//
// It is a local-network slideshow service that streams a shuffled,
// continually refreshed sequence of images from a source directory to a
// Chromecast-compatible receiver. Four long-lived activities cooperate:
// an Image Scanner, a Playlist Server, a Device Session Supervisor, and
// an HTTP Surface; they share a Playlist Model and a Temp-Artifact
// Registry.
//
// The startup sequence:
// 1. Load configuration (defaults, YAML, environment overrides).
// 2. Initialize structured logging.
// 3. Purge stale temp artifacts from the previous run's manifest.
// 4. Build the Playlist Model, Temp-Artifact Registry, and Image
//    Processing Facade.
// 5. Build and start the Playlist Server, Device Session Supervisor,
//    Image Scanner, and HTTP Surface.
// 6. Wait for a termination signal.
//
// Graceful shutdown reverses the startup order.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/e-roder/pycastblaster-go/internal/common"
	"github.com/e-roder/pycastblaster-go/internal/config"
	"github.com/e-roder/pycastblaster-go/internal/devicesession"
	"github.com/e-roder/pycastblaster-go/internal/httpsurface"
	"github.com/e-roder/pycastblaster-go/internal/imaging"
	"github.com/e-roder/pycastblaster-go/internal/logging"
	"github.com/e-roder/pycastblaster-go/internal/playlist"
	"github.com/e-roder/pycastblaster-go/internal/scanner"
	"github.com/e-roder/pycastblaster-go/internal/slideshow"
	"github.com/e-roder/pycastblaster-go/internal/tempstore"
)

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>pycastblaster</title></head>
<body>
<h1>pycastblaster</h1>
<p>Slideshow control UI. See GET /state and POST /command.</p>
</body>
</html>
`

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	// A reload command shuts everything down and reinitialises from the
	// config file; set-reload-then-set-exit is the expected order.
	for run(configPath) {
	}
}

// run starts every activity, blocks until an exit is requested (OS
// signal or the exit command), shuts down in order, and reports whether
// a reload was requested before the exit.
func run(configPath string) (reloadRequested bool) {
	configManager := config.CreateConfigManager()
	if err := configManager.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := configManager.GetConfig()

	_ = logging.SetupLogging(&logging.LoggingConfig{
		Level:          "info",
		Format:         "json",
		ConsoleEnabled: true,
	})
	logger := logging.GetLogger("pycastblaster")
	logger.Info("Starting pycastblaster")

	if err := os.MkdirAll(cfg.ImagesPath, 0o755); err != nil {
		logger.WithError(err).Fatal("Failed to create images directory")
	}
	if err := os.MkdirAll(cfg.TempPath, 0o755); err != nil {
		logger.WithError(err).Fatal("Failed to create temp directory")
	}

	if err := os.WriteFile(filepath.Join(cfg.TempPath, "index.html"), []byte(indexHTML), 0o644); err != nil {
		logger.WithError(err).Warn("Failed to write static index.html")
	}

	registry := tempstore.New(cfg.TempPath)
	if err := tempstore.PurgeAllFromManifest(registry.ManifestPath(), cfg.TempPath); err != nil {
		logger.WithError(err).Warn("Failed to purge stale artifacts from a prior run")
	}

	pl := playlist.New(time.Now().UnixNano())
	facade := imaging.New(cfg.MaxImageHeightPixels)
	inbox := slideshow.NewInbox()

	lanAddr := httpsurface.DetectLANAddress()
	baseURL := "http://" + lanAddr + ":" + strconv.Itoa(cfg.HTTPServerPort) + "/"
	logger.WithField("base_url", baseURL).Info("Detected LAN address for device-facing URLs")

	var supervisor *devicesession.Supervisor
	engine := slideshow.New(pl, registry, facade, devicePlayerFunc(func(ctx context.Context, url string) bool {
		return supervisor.TryPlayMedia(ctx, url)
	}), inbox, cfg.ImagesPath, cfg.TempPath, cfg.ChromecastName, baseURL, cfg.SlideshowDurationSeconds)

	bonusIdle := time.Duration(cfg.InterruptionIdleSeconds) * time.Second
	supervisor = devicesession.New(cfg.ChromecastName, engine, bonusIdle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	discovery := newNoopDiscovery()
	onAdded := func(d devicesession.DiscoveredDevice) { supervisor.OnDiscoveryAdded(ctx, d) }
	if err := discovery.Start(onAdded, supervisor.OnDiscoveryRemoved); err != nil {
		logger.WithError(err).Fatal("Failed to start device discovery")
	}
	defer discovery.Stop()

	frequency := time.Duration(cfg.ImageScanningFrequencySeconds()) * time.Second
	imageScanner := scanner.New(cfg.ImagesPath, cfg.TempPath, inbox, engine.ExitSignal(), frequency)

	commands := &topLevelCommands{
		engine:        engine,
		configManager: configManager,
		exit:          engine.ExitSignal(),
		reload:        engine.ReloadSignal(),
	}
	httpAddr := ":" + strconv.Itoa(cfg.HTTPServerPort)
	httpServer := httpsurface.New(httpAddr, cfg.ImagesPath, cfg.TempPath, engine, commands)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { engine.Run(groupCtx); return nil })
	group.Go(func() error { supervisor.RunIdleWatcher(groupCtx); return nil })
	group.Go(func() error { imageScanner.Run(groupCtx); return nil })
	if err := httpServer.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start HTTP surface")
	}

	logger.Info("pycastblaster started successfully")

	// The exit command from the HTTP surface and an OS signal both end
	// this run; whichever arrives first wins.
	exitCh := make(chan struct{})
	go func() {
		engine.ExitSignal().Wait()
		close(exitCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		logger.Info("Received shutdown signal, stopping services...")
	case <-exitCh:
		logger.Info("Exit requested, stopping services...")
	}

	shutdownSequence := []struct {
		name    string
		service common.Stoppable
	}{
		{"HTTP surface", httpServer},
		{"image scanner", imageScanner},
		{"playlist server", engine},
	}
	for _, step := range shutdownSequence {
		if err := common.StopWithTimeout(step.service, 30*time.Second); err != nil {
			logger.WithError(err).WithField("service", step.name).Error("Error stopping service")
		}
	}
	cancel()

	if err := group.Wait(); err != nil {
		logger.WithError(err).Error("A service goroutine returned an error")
	}

	logger.Info("pycastblaster stopped")

	if commands.reload.IsSet() {
		logger.Info("Reload requested; reinitialising")
		return true
	}
	return false
}

// devicePlayerFunc adapts a function literal to slideshow.DevicePlayer,
// used here only to break the construction-order cycle between the
// Engine and the Supervisor (each needs a handle to the other).
type devicePlayerFunc func(ctx context.Context, url string) bool

func (f devicePlayerFunc) TryPlayMedia(ctx context.Context, url string) bool {
	return f(ctx, url)
}

// topLevelCommands implements httpsurface.CommandSink: Exit/Reload are
// process-wide signals, Pause/DurationUpdate delegate to the engine (for
// immediate effect) and the config manager (for on-disk persistence).
type topLevelCommands struct {
	engine        *slideshow.Engine
	configManager *config.ConfigManager
	exit          *slideshow.Signal
	reload        *slideshow.Signal
}

func (c *topLevelCommands) Exit() error {
	c.exit.Set()
	return nil
}

func (c *topLevelCommands) Pause() error {
	return c.engine.Pause()
}

func (c *topLevelCommands) Reload() error {
	c.reload.Set()
	c.exit.Set()
	return nil
}

func (c *topLevelCommands) DurationUpdate(seconds float64) error {
	if err := c.engine.SetSlideshowDuration(seconds); err != nil {
		return err
	}
	return c.configManager.UpdateSlideshowDuration(seconds)
}
