package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban/api/internal/app"
	"kanban/api/internal/boardcache"
	"kanban/api/internal/config"
	"kanban/api/internal/search"
	"kanban/api/internal/store"
)

func main() {
	cfg := config.Load()
	configureLogging(cfg)
	ctx := context.Background()

	dialect, err := store.ParseDialect(cfg.DatabaseDrv)
	if err != nil {
		log.Fatalf("database driver: %v", err)
	}
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	migrations, err := store.Migrations(dialect, cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("load migrations: %v", err)
	}
	if err := store.ApplyMigrations(ctx, db, dialect, migrations); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	dataStore := store.New(db, dialect)

	var cache *boardcache.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err = boardcache.New(cfg.RedisURL, cfg.BoardCacheTTL, log.StandardLogger())
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer cache.Close()
		log.WithField("ttl", cfg.BoardCacheTTL).Info("board cache enabled")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log.StandardLogger())
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewSQL(dataStore), log.StandardLogger())

	service := app.New(dataStore, cache, searchService, log.StandardLogger())
	if err := service.Reindex(ctx); err != nil {
		log.WithError(err).Warn("reindex failed (will retry on next restart)")
	}

	opts := app.Options{
		CORSOrigin: cfg.CORSOrigin,
		StaticDir:  cfg.StaticDir,
		Logger:     log.StandardLogger(),
	}
	var handler http.Handler
	switch cfg.Transport {
	case "echo":
		handler = app.NewEchoServer(service, opts).Handler()
	case "http", "":
		handler = app.NewHTTPServer(service, opts).Handler()
	default:
		log.Fatalf("unknown KANBAN_TRANSPORT %q (want http or echo)", cfg.Transport)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{
			"addr":      cfg.Addr,
			"transport": cfg.Transport,
			"database":  string(dialect),
		}).Info("kanban API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
	searchService.Wait()
}

func configureLogging(cfg config.Config) {
	if strings.EqualFold(cfg.LogFormat, "text") {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
