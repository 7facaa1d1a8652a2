// handlers_upload.go - Handlers that send a session's valid files
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/filedrop/backend/internal/admission"
	"github.com/filedrop/backend/internal/log"
	"github.com/filedrop/backend/internal/session"
	"github.com/filedrop/backend/internal/upload"
	"github.com/labstack/echo/v4"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	sessions      *session.Manager
	uploadManager *upload.Manager
	// baseCtx bounds uploads; they outlive the request that started them.
	baseCtx      context.Context
	pollInterval time.Duration
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(baseCtx context.Context, sessions *session.Manager, uploadMgr *upload.Manager) UploadHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &UploadHandlerImpl{
		sessions:      sessions,
		uploadManager: uploadMgr,
		baseCtx:       baseCtx,
		pollInterval:  100 * time.Millisecond,
	}
}

// HandleStartUpload sends the session's valid files in the background
func (h *UploadHandlerImpl) HandleStartUpload(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	ctx := log.ContextWithRequestID(h.baseCtx, c.Response().Header().Get(echo.HeaderXRequestID))
	up, err := s.Engine.UploadFiles(ctx)
	if err != nil {
		return fromEngineError(err)
	}

	status := http.StatusAccepted
	if len(up.Files) == 0 {
		status = http.StatusOK
	}
	return c.JSON(status, startUploadResponse{
		Files:  admission.Infos(up.Files),
		Status: s.Engine.UploadStatus(),
	})
}

// HandleAbortUpload cancels the session's in-flight upload
func (h *UploadHandlerImpl) HandleAbortUpload(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	if !s.Engine.AbortUpload() {
		return NewConflictError("no upload in progress")
	}
	return c.JSON(http.StatusOK, map[string]bool{"aborted": true})
}

// HandleUploadStatus returns the session's current or last upload
func (h *UploadHandlerImpl) HandleUploadStatus(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	resp := uploadStatusResponse{Status: s.Engine.UploadStatus()}
	if h.uploadManager != nil {
		if job, ok := h.uploadManager.LatestJob(s.ID); ok {
			resp.Job = &job
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleGetJob returns one upload job
func (h *UploadHandlerImpl) HandleGetJob(c echo.Context) error {
	id := c.Param("jobId")
	job, ok := h.uploadManager.GetJob(id)
	if !ok {
		return NewNotFoundError("upload job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleUploadJobStream streams upload job progress via Server-Sent Events
func (h *UploadHandlerImpl) HandleUploadJobStream(c echo.Context) error {
	jobID := c.Param("jobId")

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		job, ok := h.uploadManager.GetJob(jobID)
		if !ok {
			writeEvent(c, map[string]string{"error": "job not found"})
			return nil
		}

		writeEvent(c, job)
		if job.Status.Finished() {
			return nil
		}

		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

func writeEvent(c echo.Context, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Response(), "data: %s\n\n", data)
	c.Response().Flush()
}

// Request/Response types

type startUploadResponse struct {
	Files  []admission.RecordInfo `json:"files"`
	Status admission.UploadStatus `json:"status"`
}

type uploadStatusResponse struct {
	Status admission.UploadStatus `json:"status"`
	Job    *upload.Job            `json:"job,omitempty"`
}
