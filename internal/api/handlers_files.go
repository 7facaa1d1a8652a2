// handlers_files.go - Handlers for the files of a drop session
package api

import (
	"encoding/base64"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/filedrop/backend/internal/admission"
	"github.com/filedrop/backend/internal/config"
	"github.com/filedrop/backend/internal/preview"
	"github.com/filedrop/backend/internal/session"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// multipartFields are the form fields files are accepted under.
var multipartFields = []string{"files", "file[]", "file"}

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	sessions     *session.Manager
	previewLimit int64
	// maxMemory is the multipart spill threshold. Parts written to temporary
	// files are copied into memory because net/http removes those files once
	// the request ends.
	maxMemory int64
}

// NewFileHandler creates a new file handler
func NewFileHandler(sessions *session.Manager, previewLimit, maxMemory int64) FileHandler {
	if maxMemory <= 0 {
		maxMemory = 32 << 20
	}
	return &FileHandlerImpl{
		sessions:     sessions,
		previewLimit: previewLimit,
		maxMemory:    maxMemory,
	}
}

// HandleAddFiles admits dropped files into a session. Multipart forms and
// base64 JSON bodies are accepted.
func (h *FileHandlerImpl) HandleAddFiles(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	var handles []admission.Handle
	ct := c.Request().Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(ct, echo.MIMEMultipartForm):
		handles, err = h.multipartHandles(c)
	case strings.HasPrefix(ct, echo.MIMEApplicationJSON):
		handles, err = jsonHandles(c)
	default:
		return NewUnsupportedMediaError("expected multipart/form-data or application/json")
	}
	if err != nil {
		return err
	}
	if len(handles) == 0 {
		return NewValidationError("files")
	}

	added := s.AddFiles(admission.RawAll(handles...)...)
	return c.JSON(http.StatusCreated, addFilesResponse{
		Files:       admission.Infos(added),
		RequestSize: sizePtr(s.Engine.RequestSize()),
	})
}

func (h *FileHandlerImpl) multipartHandles(c echo.Context) ([]admission.Handle, error) {
	if err := c.Request().ParseMultipartForm(h.maxMemory); err != nil {
		return nil, NewBadRequestError("invalid multipart form", err)
	}
	form := c.Request().MultipartForm

	var handles []admission.Handle
	for _, field := range multipartFields {
		for _, fh := range form.File[field] {
			handle, err := detachMultipart(fh)
			if err != nil {
				return nil, NewBadRequestError("unreadable multipart file", err)
			}
			handles = append(handles, handle)
		}
	}
	return handles, nil
}

// detachMultipart returns a handle that stays readable after the request. Parts
// held in memory are wrapped as they are; spilled parts are read back.
func detachMultipart(fh *multipart.FileHeader) (admission.Handle, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, spilled := f.(*os.File); !spilled {
		return admission.NewMultipartHandle(fh), nil
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return admission.NewMemoryHandle(fh.Filename, fh.Header.Get("Content-Type"), data), nil
}

func jsonHandles(c echo.Context) ([]admission.Handle, error) {
	var req addFilesRequest
	if err := c.Bind(&req); err != nil {
		return nil, NewBadRequestError("invalid JSON body", err)
	}

	handles := make([]admission.Handle, 0, len(req.Files))
	for _, f := range req.Files {
		if f.Name == "" {
			return nil, NewValidationError("name")
		}
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return nil, NewBadRequestError("invalid base64 data", err)
		}
		handles = append(handles, admission.NewMemoryHandle(f.Name, f.ContentType, data))
	}
	return handles, nil
}

// HandleListFiles lists a session's files, optionally filtered by status
func (h *FileHandlerImpl) HandleListFiles(c echo.Context) error {
	resp, err := h.listFiles(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleListFilesMsgpack lists a session's files in MessagePack format
func (h *FileHandlerImpl) HandleListFilesMsgpack(c echo.Context) error {
	resp, err := h.listFiles(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(resp)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

func (h *FileHandlerImpl) listFiles(c echo.Context) (*listFilesResponse, error) {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return nil, err
	}

	snap := s.Engine.Snapshot()
	files := snap.Files
	if q := c.QueryParam("status"); q != "" {
		mask, err := admission.ParseStatus(q)
		if err != nil {
			return nil, NewBadRequestError("invalid status filter", err)
		}
		files = snap.Filter(mask)
	}

	return &listFilesResponse{
		Files:        admission.Infos(files),
		Total:        len(snap.Files),
		ValidCount:   len(snap.Valid),
		InvalidCount: len(snap.Invalid),
		RequestSize:  sizePtr(snap.RequestSize),
	}, nil
}

// HandleGetFile returns one record of a session
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	_, r, err := h.lookupRecord(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r.Info())
}

// HandleDeleteFile removes one record from a session
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	s, r, err := h.lookupRecord(c)
	if err != nil {
		return err
	}
	s.Engine.DeleteFiles(r)
	return c.NoContent(http.StatusNoContent)
}

// HandleClearFiles removes every record from a session
func (h *FileHandlerImpl) HandleClearFiles(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	s.Engine.ClearFiles()
	return c.NoContent(http.StatusNoContent)
}

// HandlePreview renders an image record as a data URL
func (h *FileHandlerImpl) HandlePreview(c echo.Context) error {
	_, r, err := h.lookupRecord(c)
	if err != nil {
		return err
	}

	url, err := preview.DataURL(c.Request().Context(), r.Handle(), h.previewLimit)
	switch {
	case errors.Is(err, preview.ErrNotImage):
		return NewUnsupportedMediaError("preview is only available for images")
	case errors.Is(err, preview.ErrTooLarge):
		return &APIError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "PAYLOAD_TOO_LARGE",
			Message: "file too large to preview",
		}
	case err != nil:
		return NewInternalError("failed to build preview", err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"id":      r.ID(),
		"dataUrl": url,
	})
}

// HandleGetOptions returns a session's admission options
func (h *FileHandlerImpl) HandleGetOptions(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newOptionsResponse(s.Engine.Options()))
}

// HandleSetMimeTypes appends to or replaces a session's accepted types
func (h *FileHandlerImpl) HandleSetMimeTypes(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req setMimeTypesRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	var mode admission.MimeMode
	switch strings.ToLower(req.Mode) {
	case "", "append":
		mode = admission.MimeAppend
	case "replace":
		mode = admission.MimeReplace
	default:
		return NewValidationError("mode")
	}

	types, err := admission.ParseMimeTypes(req.Types)
	if err != nil {
		return NewBadRequestError("invalid mime type", err)
	}

	s.Engine.SetMimeTypes(mode, types...)
	return c.JSON(http.StatusOK, newOptionsResponse(s.Engine.Options()))
}

// HandleSetMaximumSize changes a session's size ceiling
func (h *FileHandlerImpl) HandleSetMaximumSize(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req setMaximumSizeRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	size, err := config.ParseLimit(req.MaximumSize)
	if err != nil {
		return NewBadRequestError("invalid maximumSize", err)
	}

	s.Engine.SetMaximumSize(size)
	return c.JSON(http.StatusOK, newOptionsResponse(s.Engine.Options()))
}

func (h *FileHandlerImpl) lookupRecord(c echo.Context) (*session.Session, *admission.FileRecord, error) {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return nil, nil, err
	}
	id := c.Param("fileId")
	r, ok := s.Engine.Find(id)
	if !ok {
		return nil, nil, NewNotFoundError("file", id)
	}
	return s, r, nil
}

// sizePtr hides Unbounded sizes from clients as null.
func sizePtr(n int64) *int64 {
	if n == admission.Unbounded {
		return nil
	}
	return &n
}

// Request/Response types

type addFilesRequest struct {
	Files []struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
		Data        string `json:"data"` // Base64-encoded content
	} `json:"files"`
}

type addFilesResponse struct {
	Files       []admission.RecordInfo `json:"files"`
	RequestSize *int64                 `json:"requestSize"`
}

type listFilesResponse struct {
	Files        []admission.RecordInfo `json:"files" msgpack:"files"`
	Total        int                    `json:"total" msgpack:"total"`
	ValidCount   int                    `json:"validCount" msgpack:"validCount"`
	InvalidCount int                    `json:"invalidCount" msgpack:"invalidCount"`
	RequestSize  *int64                 `json:"requestSize" msgpack:"requestSize"`
}

type setMimeTypesRequest struct {
	Types []string `json:"types"`
	Mode  string   `json:"mode"`
}

type setMaximumSizeRequest struct {
	MaximumSize string `json:"maximumSize"`
}

type optionsResponse struct {
	RequestMethod string   `json:"requestMethod"`
	MaximumSize   *int64   `json:"maximumSize"`
	IncludeHeader bool     `json:"includeHeader"`
	UseArray      bool     `json:"useArray"`
	MimeTypes     []string `json:"mimeTypes"`
}

func newOptionsResponse(o admission.Options) optionsResponse {
	types := make([]string, 0, len(o.MimeTypes))
	for _, mt := range o.MimeTypes {
		types = append(types, mt.String())
	}
	return optionsResponse{
		RequestMethod: o.RequestMethod,
		MaximumSize:   sizePtr(o.MaximumSize),
		IncludeHeader: o.IncludeHeader,
		UseArray:      o.UseArray,
		MimeTypes:     types,
	}
}
