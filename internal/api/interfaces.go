// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import "github.com/labstack/echo/v4"

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionHandler handles drop session lifecycle
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleListSessions(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
}

// FileHandler handles the files of a drop session
type FileHandler interface {
	HandleAddFiles(c echo.Context) error
	HandleListFiles(c echo.Context) error
	HandleListFilesMsgpack(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleClearFiles(c echo.Context) error
	HandlePreview(c echo.Context) error
	HandleGetOptions(c echo.Context) error
	HandleSetMimeTypes(c echo.Context) error
	HandleSetMaximumSize(c echo.Context) error
}

// UploadHandler handles sending a session's valid files
type UploadHandler interface {
	HandleStartUpload(c echo.Context) error
	HandleAbortUpload(c echo.Context) error
	HandleUploadStatus(c echo.Context) error
	HandleGetJob(c echo.Context) error
	HandleUploadJobStream(c echo.Context) error
}

// StoredFileHandler handles files kept in server storage
type StoredFileHandler interface {
	HandleReceive(c echo.Context) error
	HandleListStored(c echo.Context) error
	HandleGetStored(c echo.Context) error
	HandleDownloadStored(c echo.Context) error
	HandleDeleteStored(c echo.Context) error
	HandleRenameStored(c echo.Context) error
}

// EventHandler streams session events over WebSocket
type EventHandler interface {
	HandleWebSocket(c echo.Context) error
}
