package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mountly/mountly-backend/internal/config"
	"github.com/mountly/mountly-backend/internal/db"
	"github.com/mountly/mountly-backend/internal/geocoding"
	"github.com/mountly/mountly-backend/internal/logger"
	"github.com/mountly/mountly-backend/internal/middleware"
	"github.com/mountly/mountly-backend/internal/servicearea"
	"github.com/mountly/mountly-backend/internal/session"
	"github.com/mountly/mountly-backend/internal/zcta"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat, "mountly-backend")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	if err := db.Connect(cfg.DatabaseURL); err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	log.Info("connected to database")

	if err := servicearea.Init(db.DB); err != nil {
		log.Fatal("failed to initialize service areas", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	index := zcta.New(
		zcta.NewFetcher(cfg.ZCTADataset, cfg.ZCTADownloadTimeout),
		zcta.WithLogger(log.Named("zcta")),
		zcta.WithTimeout(cfg.ZCTADownloadTimeout),
	)
	if cfg.ZCTAPreload {
		go func() {
			if err := index.Load(ctx, false); err != nil {
				log.Error("zcta preload failed, syncs keep the client zip sets until a reload", zap.Error(err))
			}
		}()
	}

	var cache servicearea.CoverageCache = servicearea.NopCache{}
	if cfg.RedisURL != "" {
		rc, err := servicearea.NewRedisCache(ctx, cfg.RedisURL, cfg.CoverageCacheTTL, log.Named("cache"))
		if err != nil {
			log.Warn("coverage cache disabled", zap.Error(err))
		} else {
			defer rc.Close()
			cache = rc
		}
	}

	sessions := session.Info{DB: db.DB}
	admin := func(next http.Handler) http.Handler {
		return middleware.SessionMiddleware(sessions)(middleware.AdminMiddleware(sessions)(next))
	}
	match := zcta.MatchOptions{Mode: zcta.MatchMode(cfg.MatchMode), MinOverlapRatio: cfg.MinOverlapRatio}
	handlers := servicearea.NewHandlers(servicearea.NewGormStore(db.DB), index, cache, match, log.Named("servicearea"))
	if gc := geocoding.NewClient(cfg.GoogleMapsAPIKey, ""); gc != nil {
		handlers.WithGeocoder(gc)
	}
	limiter := middleware.NewRateLimiter(cfg.SyncRatePerMin, cfg.SyncBurst)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Get("/", RootHandler)

	r.Mount("/zcta", zcta.SetupRoutes(index, admin, log.Named("zcta")))
	r.Mount("/api", servicearea.SetupRoutes(handlers, sessions, limiter))

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", zap.Error(err))
	}
}
