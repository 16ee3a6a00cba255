package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/FarisLab/StudySync/internal/app"
	"github.com/FarisLab/StudySync/internal/config"
	"github.com/FarisLab/StudySync/internal/logger"
	"github.com/FarisLab/StudySync/internal/search"
	"github.com/FarisLab/StudySync/internal/session"
	"github.com/FarisLab/StudySync/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("studysync-api", "info")
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New("studysync-api", cfg.LogLevel)
	ctx := context.Background()

	gateway, err := store.Open(ctx, store.Options{
		Driver:        cfg.StoreDriver,
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDatabase,
		DatabaseURL:   cfg.DatabaseURL,
		MaxPoolSize:   cfg.DBMaxPool,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("database connection failed")
	}
	if err := gateway.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema setup failed")
	}

	sessionStore := openSessionStore(cfg, log)
	sessions := session.NewManager(sessionStore, []byte(cfg.JWTSecret), cfg.AccessTTL, cfg.RefreshTTL)

	var meiliClient *search.Meili
	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		engine = meiliClient
	}
	searchService := search.NewService(engine, search.FallbackFor(gateway), log)

	service := app.New(app.Deps{
		Store:    gateway,
		Sessions: sessions,
		Search:   searchService,
		Log:      log,
	})

	httpServer := app.NewHTTPServer(service, log, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("store", cfg.StoreDriver).Msg("StudySync API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	searchService.Wait()
	if meiliClient != nil {
		meiliClient.Close()
	}
	if err := sessionStore.Close(); err != nil {
		log.Error().Err(err).Msg("session store close")
	}
	if err := gateway.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("database close")
	}
	log.Info().Msg("stopped")
}

func openSessionStore(cfg config.Config, log zerolog.Logger) session.Store {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Info().Msg("using in-memory refresh session storage")
		return session.NewMemoryStore()
	}
	redisStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	log.Info().Msg("using Redis for refresh session storage")
	return redisStore
}
