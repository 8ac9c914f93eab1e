package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"uptimestrip/internal/aggregate"
	"uptimestrip/internal/config"
	"uptimestrip/internal/fetch"
	"uptimestrip/internal/render"
	"uptimestrip/internal/server"
	"uptimestrip/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file (YAML)")
		addr       = flag.String("addr", ":8080", "address for the web server")
		renderOnce = flag.Bool("render", false, "refresh once, print the strips to stdout and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Printf("Loaded %d source(s) from %s", len(cfg.EnabledSources()), *configPath)

	cachePath := filepath.Join(cfg.DataDirectory, "cache.json")
	cache, err := storage.NewCache(cachePath)
	if err != nil {
		log.Fatalf("initialise cache: %v", err)
	}

	client := fetch.NewClient(cfg.Retry, cfg.RateLimit)
	clock := fetch.NewClock(client, cache, cfg.TimeAPIURL, cfg.ZoneName(), cfg.Cache.ClockTTL)

	svc, err := aggregate.NewService(cfg, client, cache, clock)
	if err != nil {
		log.Fatalf("initialise aggregator: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *renderOnce {
		svc.Refresh(ctx)
		if err := render.Write(os.Stdout, svc.Snapshot(), clock.Now(ctx)); err != nil {
			log.Fatalf("render: %v", err)
		}
		return
	}

	svc.Start()
	defer svc.Stop()

	srv := server.New(*addr, svc)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("uptimestrip listening on %s (refresh every %s, timezone %s)", *addr, cfg.RefreshInterval(), cfg.ZoneName())
	if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
