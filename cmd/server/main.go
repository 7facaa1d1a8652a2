package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/filedrop/backend/internal/admission"
	"github.com/filedrop/backend/internal/api"
	"github.com/filedrop/backend/internal/config"
	"github.com/filedrop/backend/internal/log"
	"github.com/filedrop/backend/internal/session"
	"github.com/filedrop/backend/internal/storage"
	"github.com/filedrop/backend/internal/transport"
	"github.com/filedrop/backend/internal/upload"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/bytes"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		logger := log.WithComponent("main")
		logger.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

func run() error {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	configPath := filepath.Join(filepath.Dir(exePath), "FileDrop.config")
	if p := os.Getenv("FILEDROP_CONFIG"); p != "" {
		configPath = p
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log.Configure(log.Config{Level: cfg.Advanced.LogLevel, Version: Version})
	logger := log.WithComponent("main")

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	profile, err := config.NewProfileWatcher(cfg.Admission.ProfilePath)
	if err != nil {
		return err
	}
	profile.OnReload(func(opts admission.Options) {
		logger.Info().
			Int("mime_types", len(opts.MimeTypes)).
			Int64("maximum_size", opts.MaximumSize).
			Msg("admission profile reloaded; applies to new sessions")
	})
	if cfg.Admission.WatchProfile {
		if err := profile.Watch(ctx); err != nil {
			logger.Warn().Err(err).Msg("profile watching disabled")
		}
	}

	uploadMgr := upload.NewManager(&transport.Router{
		Local:  transport.NewStore(fileStore),
		Remote: transport.NewHTTP(nil),
	})

	sessionMgr := session.NewManager(session.Config{
		MaxSessions: cfg.Sessions.MaxSessions,
		UploadURL:   cfg.Admission.UploadURL,
		Transport:   uploadMgr,
		Options:     profile.Options,
		OnClose:     uploadMgr.ForgetSession,
	})
	defer sessionMgr.CloseAll()

	go sessionMgr.RunCleanup(ctx, cfg.CleanupInterval(), cfg.SessionTimeout(), func() {
		uploadMgr.CleanupOldJobs(cfg.JobRetention())
	})

	previewLimit, err := cfg.PreviewLimitBytes()
	if err != nil {
		return fmt.Errorf("invalid preview limit: %w", err)
	}
	// Parsed the way middleware.BodyLimit parses it.
	var bodyLimit int64
	if cfg.Server.BodyLimit != "" {
		bodyLimit, err = bytes.Parse(cfg.Server.BodyLimit)
		if err != nil {
			return fmt.Errorf("invalid body limit: %w", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	authToken := ""
	if cfg.Security.RequireAuth {
		if cfg.Security.AuthToken == "" {
			return errors.New("authentication required but no auth token configured")
		}
		authToken = cfg.Security.AuthToken
	}
	api.SetupMiddleware(e, api.MiddlewareConfig{
		RequestLogging: cfg.Advanced.EnableRequestLogging,
		EnableCORS:     cfg.Server.EnableCORS,
		AllowOrigins:   cfg.Server.AllowOrigins,
		BodyLimit:      cfg.Server.BodyLimit,
		AuthToken:      authToken,
	})

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:             fileStore,
		SessionMgr:        sessionMgr,
		UploadMgr:         uploadMgr,
		BaseCtx:           ctx,
		PreviewLimit:      previewLimit,
		MaxMemory:         bodyLimit,
		Version:           Version,
		AllowFileDeletion: cfg.Security.AllowFileDeletion,
		WSMaxMessageKB:    cfg.Advanced.WebSocketMaxMessageSize,
		WSMaxTransferSize: bodyLimit,
	}))

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("config", configPath).
		Str("listen", cfg.GetServerAddr()).
		Str("upload_url", cfg.Admission.UploadURL).
		Str("data_dir", cfg.Storage.DataDirectory).
		Msg("file drop server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
