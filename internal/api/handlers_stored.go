// handlers_stored.go - Handlers for files kept in server storage
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/filedrop/backend/internal/log"
	"github.com/filedrop/backend/internal/storage"
	"github.com/filedrop/backend/internal/transport"
	"github.com/labstack/echo/v4"
)

// StoredFileHandlerImpl implements the StoredFileHandler interface
type StoredFileHandlerImpl struct {
	store storage.Store
}

// NewStoredFileHandler creates a new stored file handler
func NewStoredFileHandler(store storage.Store) StoredFileHandler {
	return &StoredFileHandlerImpl{store: store}
}

// HandleReceive accepts a multipart upload request sent by the HTTP
// transport and answers with the IDs it stored and refused.
func (h *StoredFileHandlerImpl) HandleReceive(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}
	sessionID := c.Request().Header.Get(transport.HeaderSessionID)
	logger := log.WithComponent("api").With().Str("session_id", sessionID).Logger()

	result := transport.Result{Uploaded: []string{}, Rejected: []string{}}
	for _, field := range multipartFields {
		for _, fh := range form.File[field] {
			recordID := fh.Header.Get(transport.HeaderFileID)
			src, err := fh.Open()
			if err == nil {
				_, err = h.store.Save(storage.Meta{
					Name:        fh.Filename,
					ContentType: fh.Header.Get(echo.HeaderContentType),
					SessionID:   sessionID,
					RecordID:    recordID,
				}, src)
				src.Close()
			}
			if err != nil {
				logger.Warn().Err(err).Str("file", fh.Filename).Msg("receive failed")
				result.Rejected = append(result.Rejected, recordID)
				continue
			}
			result.Uploaded = append(result.Uploaded, recordID)
		}
	}

	return c.JSON(http.StatusOK, result)
}

// HandleListStored returns the most recent stored files
func (h *StoredFileHandlerImpl) HandleListStored(c echo.Context) error {
	limit := 50
	if q := c.QueryParam("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			return NewValidationError("limit")
		}
		limit = n
	}

	files, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetStored returns metadata for a stored file
func (h *StoredFileHandlerImpl) HandleGetStored(c echo.Context) error {
	id := c.Param("id")
	info, err := h.store.Get(id)
	if err != nil {
		return storeError(err, id)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleDownloadStored returns the content of a stored file
func (h *StoredFileHandlerImpl) HandleDownloadStored(c echo.Context) error {
	id := c.Param("id")
	info, err := h.store.Get(id)
	if err != nil {
		return storeError(err, id)
	}
	path, err := h.store.GetFilePath(id)
	if err != nil {
		return storeError(err, id)
	}
	if info.ContentType != "" {
		c.Response().Header().Set(echo.HeaderContentType, info.ContentType)
	}
	return c.Attachment(path, info.Name)
}

// HandleDeleteStored deletes a stored file
func (h *StoredFileHandlerImpl) HandleDeleteStored(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		return storeError(err, id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleRenameStored updates the name of a stored file
func (h *StoredFileHandlerImpl) HandleRenameStored(c echo.Context) error {
	id := c.Param("id")

	var req renameFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Name == "" {
		return NewValidationError("name")
	}

	info, err := h.store.Rename(id, req.Name)
	if err != nil {
		return storeError(err, id)
	}
	return c.JSON(http.StatusOK, info)
}

func storeError(err error, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewNotFoundError("file", id)
	}
	return NewInternalError("storage failure", err)
}

type renameFileRequest struct {
	Name string `json:"name"`
}
