// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/filedrop/backend/internal/log"
	"github.com/filedrop/backend/internal/session"
	"github.com/filedrop/backend/internal/storage"
	"github.com/filedrop/backend/internal/upload"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store      storage.Store
	SessionMgr *session.Manager
	UploadMgr  *upload.Manager
	// BaseCtx outlives single requests and bounds started uploads.
	BaseCtx           context.Context
	PreviewLimit      int64
	MaxMemory         int64
	Version           string
	AllowFileDeletion bool
	WSMaxMessageKB    int
	// WSMaxTransferSize bounds one chunked WebSocket transfer.
	WSMaxTransferSize int64
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Session SessionHandler
	Files   FileHandler
	Upload  UploadHandler
	Stored  StoredFileHandler
	Events  EventHandler

	allowFileDeletion bool
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:            NewHealthHandler(deps.Version, deps.SessionMgr),
		Session:           NewSessionHandler(deps.SessionMgr),
		Files:             NewFileHandler(deps.SessionMgr, deps.PreviewLimit, deps.MaxMemory),
		Upload:            NewUploadHandler(deps.BaseCtx, deps.SessionMgr, deps.UploadMgr),
		Stored:            NewStoredFileHandler(deps.Store),
		Events:            NewWebSocketHandler(deps.BaseCtx, deps.SessionMgr, deps.WSMaxMessageKB, deps.WSMaxTransferSize, deps.PreviewLimit),
		allowFileDeletion: deps.AllowFileDeletion,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiGroup := e.Group("/api")
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Drop sessions
	sessions := apiGroup.Group("/sessions")
	sessions.POST("", handlers.Session.HandleCreateSession)
	sessions.GET("", handlers.Session.HandleListSessions)
	sessions.GET("/:sessionId", handlers.Session.HandleGetSession)
	sessions.DELETE("/:sessionId", handlers.Session.HandleDeleteSession)
	sessions.POST("/:sessionId/keepalive", handlers.Session.HandleSessionKeepAlive)

	// Files of a session
	sessions.POST("/:sessionId/files", handlers.Files.HandleAddFiles)
	sessions.GET("/:sessionId/files", handlers.Files.HandleListFiles)
	sessions.GET("/:sessionId/files/msgpack", handlers.Files.HandleListFilesMsgpack)
	sessions.DELETE("/:sessionId/files", handlers.Files.HandleClearFiles)
	sessions.GET("/:sessionId/files/:fileId", handlers.Files.HandleGetFile)
	sessions.DELETE("/:sessionId/files/:fileId", handlers.Files.HandleDeleteFile)
	sessions.GET("/:sessionId/files/:fileId/preview", handlers.Files.HandlePreview)

	// Admission options
	sessions.GET("/:sessionId/options", handlers.Files.HandleGetOptions)
	sessions.PUT("/:sessionId/options/mime-types", handlers.Files.HandleSetMimeTypes)
	sessions.PUT("/:sessionId/options/maximum-size", handlers.Files.HandleSetMaximumSize)

	// Uploads
	sessions.POST("/:sessionId/upload", handlers.Upload.HandleStartUpload)
	sessions.DELETE("/:sessionId/upload", handlers.Upload.HandleAbortUpload)
	sessions.GET("/:sessionId/upload", handlers.Upload.HandleUploadStatus)
	apiGroup.GET("/uploads/:jobId", handlers.Upload.HandleGetJob)
	apiGroup.GET("/uploads/:jobId/stream", handlers.Upload.HandleUploadJobStream)

	// Files received into server storage
	stored := apiGroup.Group("/stored")
	stored.POST("", handlers.Stored.HandleReceive)
	stored.GET("", handlers.Stored.HandleListStored)
	stored.GET("/:id", handlers.Stored.HandleGetStored)
	stored.GET("/:id/download", handlers.Stored.HandleDownloadStored)
	stored.PUT("/:id", handlers.Stored.HandleRenameStored)
	if handlers.allowFileDeletion {
		stored.DELETE("/:id", handlers.Stored.HandleDeleteStored)
	}

	RegisterWebSocketRoutes(e, handlers)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws/sessions/:sessionId", handlers.Events.HandleWebSocket)
}

// MiddlewareConfig selects the optional middleware
type MiddlewareConfig struct {
	RequestLogging bool
	EnableCORS     bool
	AllowOrigins   string
	BodyLimit      string
	// AuthToken enables bearer token auth on /api when set.
	AuthToken string
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	e.HTTPErrorHandler = ErrorHandler

	logger := log.WithComponent("http")
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.RequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" ||
				path == "/metrics" ||
				strings.HasSuffix(path, "/stream") ||
				strings.HasPrefix(path, "/api/ws/")
		},
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = logger.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	}))

	e.Use(middleware.RequestID())
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error().Err(err).Bytes("stack", stack).Msg("panic recovered")
			return err
		},
	}))

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if cfg.EnableCORS {
		origins := strings.Split(cfg.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			MaxAge:       int((12 * time.Hour).Seconds()),
		}))
	}

	if cfg.AuthToken != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:" + echo.HeaderAuthorization + ",query:token",
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return !strings.HasPrefix(path, "/api/") || path == "/api/health"
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.AuthToken, nil
			},
		}))
	}
}
