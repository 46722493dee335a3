package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"babygen/internal/enhance"
	"babygen/internal/http/handlers"
	httpapi "babygen/internal/http/httpapi"
	"babygen/internal/infra"
	"babygen/internal/pipeline"
	"babygen/internal/session"
	"babygen/internal/stability"
	"babygen/internal/storage"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	// Session store backend
	var sessions session.Store
	switch cfg.SessionBackend {
	case "redis":
		rs, err := session.NewRedisStore(ctx, session.RedisOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			UseTLS:   cfg.RedisUseTLS,
			TTL:      cfg.SessionTTL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rs.Close()
		sessions = rs
	default:
		sessions = session.NewMemoryStore()
	}

	// Generation backend
	client := stability.NewClient(stability.Options{
		BaseURL:          cfg.StabilityBaseURL,
		APIKey:           cfg.StabilityAPIKey,
		GenerateTimeout:  cfg.GenerateTimeout,
		StructureTimeout: cfg.StructureTimeout,
	})

	// Enhancement pipeline with memoized variant sets
	settings := enhance.DefaultSettings()
	settings.Contrast = cfg.DefaultContrast
	settings.Brightness = cfg.DefaultBrightness
	enhancer := enhance.NewCache(enhance.NewFilter(settings, logger))

	files, err := storage.NewFileStore(cfg.OutputDir, cfg.TempDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage directories")
	}

	controller := pipeline.NewController(client, files, enhancer, sessions, cfg.StabilityAPIKey, pipeline.Params{
		Steps:           cfg.DefaultSteps,
		GuidanceScale:   cfg.DefaultGuidanceScale,
		Strength:        cfg.DefaultStrength,
		ControlStrength: cfg.DefaultControlStrength,
		Contrast:        cfg.DefaultContrast,
		Brightness:      cfg.DefaultBrightness,
	}, logger)

	app := handlers.NewApp(logger, cfg, sessions, controller, enhancer, files)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	// Background temp sweeper
	sweepCtx, sweepCancel := context.WithCancel(ctx)
	defer sweepCancel()
	sweeper := storage.NewSweeper(cfg.TempDir, cfg.TempMaxAge, cfg.SweepInterval, logger)
	go sweeper.Run(sweepCtx)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
