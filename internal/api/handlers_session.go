// handlers_session.go - Drop session lifecycle handlers
package api

import (
	"net/http"

	"github.com/filedrop/backend/internal/session"
	"github.com/labstack/echo/v4"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessions *session.Manager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *session.Manager) SessionHandler {
	return &SessionHandlerImpl{sessions: sessions}
}

// lookupSession resolves the :sessionId path parameter and marks the
// session used.
func lookupSession(sessions *session.Manager, c echo.Context) (*session.Session, error) {
	id := c.Param("sessionId")
	if id == "" {
		return nil, NewValidationError("sessionId")
	}
	s, ok := sessions.Get(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	return s, nil
}

// HandleCreateSession opens a new drop session
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	s, err := h.sessions.Create()
	if err != nil {
		return fromEngineError(err)
	}
	return c.JSON(http.StatusCreated, s.Info())
}

// HandleListSessions lists open sessions
func (h *SessionHandlerImpl) HandleListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessions.List())
}

// HandleGetSession returns a session summary
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Info())
}

// HandleDeleteSession closes a session and aborts its upload
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("sessionId")
	if !h.sessions.Delete(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSessionKeepAlive refreshes the idle timer of a session
func (h *SessionHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if !h.sessions.Touch(id) {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
