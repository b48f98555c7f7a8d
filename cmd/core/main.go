// Package main provides the SetForge Go Core entry point.
// The core is platform-agnostic and can be compiled as:
// - Shared library for mobile (Dart FFI)
// - Standalone binary for desktop
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kimhsiao/setforge/backend/internal/config"
	"github.com/kimhsiao/setforge/backend/internal/db"
	"github.com/kimhsiao/setforge/backend/internal/logging"
	"github.com/kimhsiao/setforge/backend/internal/notify"
	"github.com/kimhsiao/setforge/backend/internal/services"
	syncpkg "github.com/kimhsiao/setforge/backend/internal/sync"
	"github.com/kimhsiao/setforge/backend/internal/sync/scheduler"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	dataDir := flag.String("data-dir", defaultDataDir(), "directory for the local database")
	wsAddr := flag.String("ws-addr", "localhost:8090", "address for the UI event stream")
	flag.Parse()

	fmt.Printf("SetForge Core v%s\n", Version)

	if err := run(*dataDir, *wsAddr); err != nil {
		logging.Error("Core exited with error", err)
		os.Exit(1)
	}
}

func run(dataDir, wsAddr string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(os.Stdout, logLevel(cfg.Log.Level))

	database, err := db.Open(dataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.NewMigrator(database.DB).Up(); err != nil {
		return err
	}

	repo := db.NewRepository(database.DB)
	defer repo.Close()

	store := syncpkg.NewQueueStore(repo, cfg.Sync.LockTTL, cfg.Sync.RetryCeiling)

	// Environment and file config win; otherwise fall back to the key stored
	// encrypted in the local database.
	apiKey := cfg.Remote.APIKey
	if apiKey == "" {
		credentials := services.NewCredentialService(repo, deviceID())
		if stored, err := credentials.GetAPIKey(); err == nil {
			apiKey = stored
		} else {
			logging.Warn("Stored API key unusable", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	var remote syncpkg.RemoteService = syncpkg.NewClient(&syncpkg.ClientConfig{
		BaseURL: cfg.Remote.BaseURL,
		APIKey:  apiKey,
		Timeout: cfg.Remote.Timeout,
	})
	if cfg.Remote.BreakerEnabled {
		remote = syncpkg.NewBreakerClient(remote)
	}

	policy, err := syncpkg.ParsePolicy(cfg.Sync.ConflictPolicy)
	if err != nil {
		return err
	}

	bus := syncpkg.NewBus()
	oracle := syncpkg.NewProbeOracle(cfg.Remote.BaseURL)
	engine := syncpkg.NewEngine(store, remote, oracle, bus, syncpkg.EngineConfig{
		RetryCeiling:        cfg.Sync.RetryCeiling,
		ConflictToleranceMs: cfg.Sync.ConflictToleranceMs,
		Policy:              policy,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewScheduler(engine, &scheduler.Config{Interval: cfg.Sync.Interval})
	sched.Start(ctx)
	defer sched.Stop()

	hub := notify.NewHub()
	unbind := hub.BindBus(bus)
	defer unbind()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	server := &http.Server{Addr: wsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Event stream server failed", err)
		}
	}()
	defer server.Close()

	logging.Info("SetForge Core running", map[string]interface{}{
		"version":  Version,
		"data_dir": dataDir,
		"ws_addr":  wsAddr,
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logging.Info("Shutting down", nil)
	return nil
}

// deviceID binds stored credentials to this machine. Hostname is stable
// enough for the desktop build; mobile passes a real install id over FFI.
func deviceID() string {
	host, err := os.Hostname()
	if err != nil {
		return "setforge-desktop"
	}
	return host
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return home + "/.setforge"
}

func logLevel(level string) logging.LogLevel {
	switch level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
