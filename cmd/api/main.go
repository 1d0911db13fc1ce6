package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"webui/internal/chat"
	"webui/internal/domain/jsoncfg"
	"webui/internal/http/handlers"
	httpapi "webui/internal/http/httpapi"
	"webui/internal/infra"
	"webui/internal/infra/credentials"
	"webui/internal/infra/geoip"
	"webui/internal/metrics"
	"webui/internal/middleware"
	"webui/internal/modelscope"
	"webui/internal/storage"
)

func main() {
	// Muat .env (opsional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	settings, err := jsoncfg.Load(cfg.SettingsPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.SettingsPath).Msg("using default settings")
	}

	caps := infra.ProbeCapabilities(cfg)
	logger.Info().
		Bool("encryption", caps.EncryptionAvailable).
		Bool("chat", caps.ChatClientAvailable).
		Msg("capabilities probed")

	files, err := storage.NewFileStore(cfg.TokenDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.TokenDir).Msg("failed to open token directory")
	}
	tokens := credentials.NewStore(files, caps, &logger)
	recorder := metrics.New()

	images := modelscope.NewClient(modelscope.Options{
		APIBase:   cfg.APIBaseURL,
		UploadURL: cfg.UploadURL,
		Settings:  settings,
		TempDir:   os.TempDir(),
		Logger:    &logger,
		Metrics:   recorder,
	})
	chats := chat.NewService(chat.Options{
		BaseURL:    cfg.ChatBaseURL,
		MaxRetries: 2,
		Available:  caps.ChatClientAvailable,
		Logger:     &logger,
	})

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	app := &handlers.App{
		Settings: images.Settings(),
		Caps:     caps,
		Images:   images,
		Chats:    chats,
		Tokens:   tokens,
		Metrics:  recorder,
		Logger:   &logger,
	}

	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		Logger:          logger,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   lookup,
	})

	server := infra.NewHTTPServer(cfg, router, logger)

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
