// Command googlepicz runs the headless sync engine: it authenticates
// against Google Photos, opens the local cache and keeps it mirrored until
// interrupted. GUI and CLI shells consume the same packages this wires
// together.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Christopher-Schulze/googlepicz/config"
	"github.com/Christopher-Schulze/googlepicz/pkg/auth"
	"github.com/Christopher-Schulze/googlepicz/pkg/cache"
	"github.com/Christopher-Schulze/googlepicz/pkg/credentials"
	"github.com/Christopher-Schulze/googlepicz/pkg/photos"
	gpsync "github.com/Christopher-Schulze/googlepicz/pkg/sync"
	"github.com/Christopher-Schulze/googlepicz/util/log"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to the config file (default: ~/.googlepicz/config)")
		logLevel    = flag.String("log-level", "", "override the configured log level")
		interval    = flag.Uint64("sync-interval", 0, "override the sync interval in minutes")
		syncAlbums  = flag.Bool("sync-albums", false, "also mirror albums and memberships")
		detectFaces = flag.Bool("detect-faces", false, "run face detection after sync")
	)
	flag.Parse()

	overrides := &config.Overrides{DetectFaces: *detectFaces}
	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}
	if *interval != 0 {
		overrides.SyncIntervalMinutes = interval
	}
	cfg := config.Load(*configPath).Apply(overrides)
	log.SetLevel(cfg.LogLevel)

	if os.Getenv("GOOGLE_CLIENT_ID") == "" || os.Getenv("GOOGLE_CLIENT_SECRET") == "" {
		log.Fatal("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET environment variables must be set")
	}

	if err := os.MkdirAll(cfg.CachePath, 0o700); err != nil {
		log.Fatalf("Failed to create cache directory %s: %v", cfg.CachePath, err)
	}

	ctx := context.Background()
	creds := credentials.Default()
	authService := auth.NewService(creds)

	// Authenticate interactively only when no usable token is stored.
	if _, err := creds.Load(credentials.KeyAccessToken); err != nil {
		if !errors.Is(err, credentials.ErrNotFound) {
			log.Printf("Credential store read failed (%v); re-authenticating", err)
		} else {
			log.Print("No stored token found; starting authentication...")
		}
		if err := authService.Authenticate(ctx, cfg.OAuthRedirectPort); err != nil {
			log.Fatalf("Authentication failed: %v", err)
		}
	}

	store, err := cache.Open(cfg.DatabasePath())
	if err != nil {
		log.Fatalf("Failed to open cache at %s: %v", cfg.DatabasePath(), err)
	}
	defer store.Close()

	client := photos.NewClient("")
	syncer := gpsync.NewSyncer(authService, client, store)
	supervisor := gpsync.NewSupervisor(syncer, authService)

	progress := make(chan gpsync.ProgressEvent, 1024)
	status := make(chan gpsync.StatusEvent, 64)
	errs := make(chan gpsync.ErrorEvent, 64)
	shutdown := make(chan struct{})

	// Apply log level changes from the config file while running; the
	// command line override still wins.
	go func() {
		if err := config.Watch(*configPath, func(updated *config.Config) {
			log.SetLevel(updated.Apply(overrides).LogLevel)
		}, shutdown); err != nil {
			log.Printf("Config watcher stopped: %v", err)
		}
	}()

	// Drain the sinks into the log; GUI consumers subscribe here instead.
	go func() {
		for {
			select {
			case event := <-progress:
				if event.Kind == gpsync.ProgressFinished {
					log.Printf("Sync finished: %d items", event.Count)
				}
			case event := <-status:
				log.Print(event.Message)
			case event := <-errs:
				log.Printf("Sync error event (attempt %d): %s", event.Attempt, event.Message)
			case <-shutdown:
				return
			}
		}
	}()

	if *syncAlbums {
		if err := syncer.SyncAlbums(ctx, shutdown); err != nil {
			log.Printf("Album sync failed: %v", err)
		}
	}

	if cfg.DetectFaces {
		go detectFacesSweep(ctx, cfg, store)
	}

	syncInterval := time.Duration(cfg.SyncIntervalMinutes) * time.Minute
	syncDone := supervisor.StartPeriodicSync(syncInterval, progress, errs, status, shutdown)
	refreshDone := supervisor.StartTokenRefresh(syncInterval, errs, shutdown)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		log.Print("Shutting down...")
		close(shutdown)
		<-syncDone
		<-refreshDone
	case err := <-syncDone:
		if err != nil {
			log.Fatalf("Periodic sync terminated: %v", err)
		}
	case err := <-refreshDone:
		if err != nil {
			log.Fatalf("Token refresh terminated: %v", err)
		}
	}
}
