package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/bodydetect/internal/app"
	"github.com/ayusman/bodydetect/internal/config"
	"github.com/ayusman/bodydetect/internal/server"
	"github.com/ayusman/bodydetect/internal/session"
	"github.com/ayusman/bodydetect/internal/store"
	"github.com/ayusman/bodydetect/internal/tray"
)

var (
	configPath = flag.String("config", "", "Path to the YAML configuration file")
	addr       = flag.String("addr", "", "HTTP listen address, overrides server.addr")
	logLevel   = flag.String("log-level", "", "Log level, overrides log.level")
	mockDetect = flag.Bool("mock", false, "Use mock detectors instead of MediaPipe")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *mockDetect {
		cfg.Detector.Mock = true
	}
	if err := config.ConfigureLogging(cfg.Log); err != nil {
		log.Fatalf("Invalid log configuration: %v", err)
	}

	log.Info("Bodydetect - pose and body mask detection")

	st, err := openStore(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	application, err := app.New(app.Config{Settings: cfg, Store: st})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	webDir := findWebDir(cfg.Server.StaticDir)
	if webDir != "" {
		log.WithField("dir", webDir).Info("Serving static files")
	}

	srv := server.New(server.Config{
		StaticDir:   webDir,
		Store:       st,
		Commands:    application.Dispatcher(),
		State:       application.Controller(),
		Events:      application.Events(),
		Codec:       application.Codec(),
		EventBuffer: cfg.Events.Buffer,
		Gatherer:    application.Registry(),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *configPath != "" {
		config.Watch(ctx, *configPath, application.ApplyConfig)
	}

	go func() {
		if err := srv.ListenAndServe(cfg.Server.Addr); err != nil {
			log.Errorf("Server failed: %v", err)
			cancel()
		}
	}()

	if cfg.Tray.Enabled {
		t := tray.New(application.Dispatcher(), application.Controller().State())
		application.AddListener(func(_, next session.State) { t.Update(next) })
		t.OnSettings(func() { openBrowser(settingsURL(cfg.Server.Addr)) })
		t.OnQuit(cancel)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		// The tray owns the main thread until it quits.
		t.Run()
	}
	<-ctx.Done()

	log.Info("Shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown")
	}
	if err := application.Close(); err != nil {
		log.WithError(err).Warn("Error closing application")
	}
}

// openStore opens the sqlite database, creating its directory. A relative
// path is placed under ~/.bodydetect.
func openStore(path string) (*store.Store, error) {
	if !filepath.IsAbs(path) {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".bodydetect", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return store.New(path)
}

// findWebDir searches for the web directory: the configured path, then
// "../web", "../../web" and ~/.bodydetect/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(configured string) string {
	candidates := []string{configured, "../web", "../../web"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".bodydetect", "web"))
	}

	for _, p := range candidates {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}
	return ""
}

func settingsURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.WithError(err).Warn("Failed to open browser")
	}
}
