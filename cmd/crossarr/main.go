package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crossarr/crossarr/internal/api"
	"github.com/crossarr/crossarr/internal/cache"
	"github.com/crossarr/crossarr/internal/config"
	"github.com/crossarr/crossarr/internal/crossseed"
	"github.com/crossarr/crossarr/internal/database"
	"github.com/crossarr/crossarr/internal/logger"
	"github.com/crossarr/crossarr/internal/store"
	"github.com/crossarr/crossarr/internal/torrentclient"
	"github.com/crossarr/crossarr/internal/torznab"
	"github.com/crossarr/crossarr/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Path:   cfg.Logging.Path,
	})
	defer log.Close()

	log.Info().
		Str("addr", cfg.Server.Address()).
		Str("db", cfg.Database.Path).
		Msg("starting crossarr")

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	st := store.New(db.Conn())
	ca := cache.New(cfg.Cache.Root)

	hub := websocket.NewHub()
	go hub.Run()

	newClient := func(inst store.ClientInstance) crossseed.TorrentClient {
		return torrentclient.New(torrentclient.Config{
			Host:     inst.Host,
			Port:     inst.Port,
			Username: inst.Username,
			Password: inst.Password,
			UseSSL:   inst.UseSSL,
		}, &log.Logger)
	}
	newSearcher := func(p store.SearchProvider) (crossseed.Searcher, error) {
		return torznab.NewClient(torznab.ClientConfig{
			URL:        p.URL,
			APIKey:     p.APIKey,
			ProviderID: p.ID,
			Backoff:    st,
			Logger:     &log.Logger,
		})
	}

	worker := crossseed.NewWorker(st, ca, hub, newClient, newSearcher, log.Logger)
	scheduler, err := crossseed.NewService(st, worker, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	if err := scheduler.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	server := api.NewServer(st, ca, scheduler, hub, cfg, log.Logger)
	go func() {
		if err := server.Start(); err != nil {
			log.Info().Err(err).Msg("http server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := scheduler.Shutdown(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown failed")
	}
}
