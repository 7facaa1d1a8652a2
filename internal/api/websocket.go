package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/filedrop/backend/internal/admission"
	"github.com/filedrop/backend/internal/log"
	"github.com/filedrop/backend/internal/preview"
	"github.com/filedrop/backend/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypeFilesAdd       = "files:add"
	MsgTypeUploadInit     = "upload:init"
	MsgTypeUploadChunk    = "upload:chunk"
	MsgTypeUploadComplete = "upload:complete"
	MsgTypeUploadStart    = "upload:start"
	MsgTypeUploadAbort    = "upload:abort"
	MsgTypeFilePreview    = "file:preview"
	MsgTypePing           = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeAck       = "ack"
	MsgTypeProgress  = "progress"
	MsgTypeAdded     = "added"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
	MsgTypeEvent     = "event"
	MsgTypePreview   = "preview"
)

// WSMessage is the envelope of every WebSocket message.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// FilePayload carries a whole file in one message.
type FilePayload struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Data        string `json:"data"` // Base64 encoded file
}

// FilesAddPayload carries one or more whole files.
type FilesAddPayload struct {
	Files []FilePayload `json:"files"`
}

// UploadInitPayload starts a chunked file transfer.
type UploadInitPayload struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType,omitempty"`
	TotalChunks int    `json:"totalChunks"`
	TotalSize   int64  `json:"totalSize"`
	Encoding    string `json:"encoding,omitempty"` // "gzip", "none"
}

// UploadChunkPayload carries one chunk of a transfer.
type UploadChunkPayload struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"` // Base64 encoded chunk
}

// UploadCompletePayload ends a chunked transfer.
type UploadCompletePayload struct {
	UploadID string `json:"uploadId"`
}

// PreviewPayload asks for the data URL of one record.
type PreviewPayload struct {
	FileID string `json:"fileId"`
}

// WSPreviewResponse carries a rendered preview.
type WSPreviewResponse struct {
	FileID  string `json:"fileId"`
	DataURL string `json:"dataUrl"`
}

// WSProgressResponse reports chunk progress.
type WSProgressResponse struct {
	UploadID string  `json:"uploadId,omitempty"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
}

// WSErrorResponse reports a failed client message.
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Chunked transfer limits per connection.
const (
	maxTransferChunks = 10000
	maxOpenTransfers  = 8
)

// transfer tracks an in-progress chunked file transfer.
type transfer struct {
	fileName    string
	contentType string
	totalChunks int
	totalSize   int64
	chunks      map[int][]byte
	received    int64
	encoding    string
}

// WebSocketHandler lets a client drop files into a session and follow its
// events over one connection.
type WebSocketHandler struct {
	sessions        *session.Manager
	upgrader        websocket.Upgrader
	baseCtx         context.Context
	maxMessageSize  int64
	// maxTransferSize bounds a chunked transfer both as sent and decompressed.
	maxTransferSize int64
	previewLimit    int64
	logger          zerolog.Logger
}

// NewWebSocketHandler creates a WebSocket handler. maxMessageKB bounds a
// single client message and maxTransferSize a whole chunked transfer.
func NewWebSocketHandler(baseCtx context.Context, sessions *session.Manager, maxMessageKB int, maxTransferSize, previewLimit int64) *WebSocketHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if maxMessageKB <= 0 {
		maxMessageKB = 64 * 1024
	}
	if maxTransferSize <= 0 {
		maxTransferSize = 512 << 20
	}
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		baseCtx:         baseCtx,
		maxMessageSize:  int64(maxMessageKB) * 1024,
		maxTransferSize: maxTransferSize,
		previewLimit:    previewLimit,
		logger:          log.WithComponent("websocket"),
	}
}

// wsConn serializes writes to one connection.
type wsConn struct {
	mu        sync.Mutex
	ws        *websocket.Conn
	transfers map[string]*transfer
	logger    zerolog.Logger
}

func (c *wsConn) send(msgType, id string, payload interface{}) {
	msg := WSMessage{Type: msgType, ID: id, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		msg.Payload = mustJSON(payload)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(msg); err != nil {
		c.logger.Debug().Err(err).Str("type", msgType).Msg("failed to send message")
	}
}

func (c *wsConn) sendError(id, message, code string) {
	c.send(MsgTypeError, id, WSErrorResponse{Message: message, Code: code})
}

// HandleWebSocket upgrades the connection and runs the session protocol
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	s, err := lookupSession(wsh.sessions, c)
	if err != nil {
		return err
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	ws.SetReadLimit(wsh.maxMessageSize)

	conn := &wsConn{
		ws:        ws,
		transfers: make(map[string]*transfer),
		logger:    wsh.logger.With().Str("session_id", s.ID).Logger(),
	}
	conn.logger.Info().Msg("client connected")

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	events, unsubscribe := wsh.sessions.Broker().Subscribe(s.ID)
	defer unsubscribe()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-events:
				if !ok {
					conn.mu.Lock()
					_ = ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
						time.Now().Add(time.Second))
					conn.mu.Unlock()
					return
				}
				conn.send(MsgTypeEvent, string(ev.Type), ev)
			}
		}
	}()

	conn.send(MsgTypeConnected, s.ID, s.Info())

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				conn.logger.Warn().Err(err).Msg("connection error")
			}
			break
		}
		wsh.sessions.Touch(s.ID)

		switch msg.Type {
		case MsgTypePing:
			conn.send(MsgTypePong, msg.ID, nil)
		case MsgTypeFilesAdd:
			wsh.handleFilesAdd(conn, s, msg)
		case MsgTypeUploadInit:
			wsh.handleUploadInit(conn, msg)
		case MsgTypeUploadChunk:
			wsh.handleUploadChunk(conn, msg)
		case MsgTypeUploadComplete:
			wsh.handleUploadComplete(conn, s, msg)
		case MsgTypeUploadStart:
			wsh.handleUploadStart(conn, s, msg)
		case MsgTypeFilePreview:
			wsh.handlePreview(ctx, conn, s, msg)
		case MsgTypeUploadAbort:
			conn.send(MsgTypeAck, msg.ID, map[string]bool{"aborted": s.Engine.AbortUpload()})
		default:
			conn.sendError(msg.ID, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}

	conn.logger.Info().Msg("client disconnected")
	return nil
}

func (wsh *WebSocketHandler) handleFilesAdd(conn *wsConn, s *session.Session, msg WSMessage) {
	var payload FilesAddPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		conn.sendError(msg.ID, "Invalid files payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	handles := make([]admission.Handle, 0, len(payload.Files))
	for _, f := range payload.Files {
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			conn.sendError(msg.ID, "Invalid base64 data: "+err.Error(), "INVALID_DATA")
			return
		}
		handles = append(handles, admission.NewMemoryHandle(f.Name, f.ContentType, data))
	}

	added := s.AddFiles(admission.RawAll(handles...)...)
	conn.send(MsgTypeAdded, msg.ID, admission.Infos(added))
}

func (wsh *WebSocketHandler) handleUploadInit(conn *wsConn, msg WSMessage) {
	var payload UploadInitPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		conn.sendError(msg.ID, "Invalid init payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}
	if payload.FileName == "" || payload.TotalChunks <= 0 || payload.TotalSize < 0 {
		conn.sendError(msg.ID, "fileName, a positive totalChunks and totalSize are required", "INVALID_PAYLOAD")
		return
	}
	if payload.TotalChunks > maxTransferChunks || int64(payload.TotalChunks) > max(payload.TotalSize, 1) {
		conn.sendError(msg.ID, fmt.Sprintf("totalChunks %d exceeds the limit for %d bytes",
			payload.TotalChunks, payload.TotalSize), "INVALID_PAYLOAD")
		return
	}
	if payload.TotalSize > wsh.maxTransferSize {
		conn.sendError(msg.ID, fmt.Sprintf("totalSize %d exceeds %d bytes",
			payload.TotalSize, wsh.maxTransferSize), "TRANSFER_TOO_LARGE")
		return
	}
	if len(conn.transfers) >= maxOpenTransfers {
		conn.sendError(msg.ID, fmt.Sprintf("At most %d transfers may be open", maxOpenTransfers), "TOO_MANY_TRANSFERS")
		return
	}

	id := uuid.New().String()
	conn.transfers[id] = &transfer{
		fileName:    payload.FileName,
		contentType: payload.ContentType,
		totalChunks: payload.TotalChunks,
		totalSize:   payload.TotalSize,
		chunks:      make(map[int][]byte),
		encoding:    payload.Encoding,
	}

	conn.send(MsgTypeAck, id, map[string]string{"uploadId": id})
	conn.logger.Debug().
		Str("upload_id", id).
		Int("chunks", payload.TotalChunks).
		Int64("bytes", payload.TotalSize).
		Msg("transfer initialized")
}

func (wsh *WebSocketHandler) handleUploadChunk(conn *wsConn, msg WSMessage) {
	var payload UploadChunkPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		conn.sendError(msg.ID, "Invalid chunk payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	t, ok := conn.transfers[payload.UploadID]
	if !ok {
		conn.sendError(msg.ID, "Upload not found: "+payload.UploadID, "UPLOAD_NOT_FOUND")
		return
	}
	if payload.ChunkIndex < 0 || payload.ChunkIndex >= t.totalChunks {
		conn.sendError(msg.ID, fmt.Sprintf("Chunk index %d out of range", payload.ChunkIndex), "INVALID_PAYLOAD")
		return
	}

	data, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		conn.sendError(msg.ID, "Invalid base64 data: "+err.Error(), "INVALID_DATA")
		return
	}
	received := t.received - int64(len(t.chunks[payload.ChunkIndex])) + int64(len(data))
	if received > t.totalSize {
		delete(conn.transfers, payload.UploadID)
		conn.sendError(msg.ID, fmt.Sprintf("Transfer exceeds its declared %d bytes", t.totalSize), "TRANSFER_TOO_LARGE")
		return
	}
	t.received = received
	t.chunks[payload.ChunkIndex] = data

	count := len(t.chunks)
	conn.send(MsgTypeProgress, payload.UploadID, WSProgressResponse{
		UploadID: payload.UploadID,
		Progress: float64(count) / float64(t.totalChunks) * 100,
		Message:  fmt.Sprintf("Received chunk %d/%d", count, t.totalChunks),
	})
}

func (wsh *WebSocketHandler) handleUploadComplete(conn *wsConn, s *session.Session, msg WSMessage) {
	var payload UploadCompletePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		conn.sendError(msg.ID, "Invalid complete payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	t, ok := conn.transfers[payload.UploadID]
	if !ok {
		conn.sendError(msg.ID, "Upload not found: "+payload.UploadID, "UPLOAD_NOT_FOUND")
		return
	}
	if len(t.chunks) != t.totalChunks {
		conn.sendError(msg.ID, fmt.Sprintf("Missing chunks: got %d, expected %d",
			len(t.chunks), t.totalChunks), "INCOMPLETE_UPLOAD")
		return
	}
	delete(conn.transfers, payload.UploadID)

	data := make([]byte, 0, t.received)
	for i := 0; i < t.totalChunks; i++ {
		data = append(data, t.chunks[i]...)
	}
	if t.encoding == "gzip" {
		decompressed, err := decompressGzip(data, wsh.maxTransferSize)
		if errors.Is(err, errDecompressedTooLarge) {
			conn.sendError(msg.ID, err.Error(), "TRANSFER_TOO_LARGE")
			return
		}
		if err != nil {
			conn.sendError(msg.ID, "Failed to decompress: "+err.Error(), "INVALID_DATA")
			return
		}
		data = decompressed
	}

	added := s.AddFiles(admission.Raw(admission.NewMemoryHandle(t.fileName, t.contentType, data)))
	conn.send(MsgTypeAdded, payload.UploadID, admission.Infos(added))
}

func (wsh *WebSocketHandler) handleUploadStart(conn *wsConn, s *session.Session, msg WSMessage) {
	up, err := s.Engine.UploadFiles(wsh.baseCtx)
	if err != nil {
		apiErr := fromEngineError(err)
		conn.sendError(msg.ID, apiErr.Message, apiErr.Code)
		return
	}
	conn.send(MsgTypeAck, msg.ID, startUploadResponse{
		Files:  admission.Infos(up.Files),
		Status: s.Engine.UploadStatus(),
	})
}

// handlePreview renders the preview in the background; the reply may
// arrive after later messages.
func (wsh *WebSocketHandler) handlePreview(ctx context.Context, conn *wsConn, s *session.Session, msg WSMessage) {
	var payload PreviewPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		conn.sendError(msg.ID, "Invalid preview payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}
	r, ok := s.Engine.Find(payload.FileID)
	if !ok {
		conn.sendError(msg.ID, "File not found: "+payload.FileID, "FILE_NOT_FOUND")
		return
	}

	preview.Load(ctx, r, wsh.previewLimit, func(res preview.Result) {
		switch {
		case errors.Is(res.Err, preview.ErrNotImage):
			conn.sendError(msg.ID, "Preview is only available for images", "NOT_IMAGE")
		case errors.Is(res.Err, preview.ErrTooLarge):
			conn.sendError(msg.ID, "File too large to preview", "TOO_LARGE")
		case res.Err != nil:
			conn.sendError(msg.ID, "Failed to build preview: "+res.Err.Error(), "PREVIEW_FAILED")
		default:
			conn.send(MsgTypePreview, msg.ID, WSPreviewResponse{FileID: res.Record.ID(), DataURL: res.DataURL})
		}
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

var errDecompressedTooLarge = errors.New("decompressed transfer exceeds the size limit")

// decompressGzip inflates data, failing once the output passes limit bytes.
func decompressGzip(data []byte, limit int64) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	out, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, errDecompressedTooLarge
	}
	return out, nil
}
