package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/filedrop/backend/internal/session"
	"github.com/filedrop/backend/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newRoutedEcho(t *testing.T, mw MiddlewareConfig, allowDelete bool) *echo.Echo {
	t.Helper()
	sessions := session.NewManager(session.Config{})
	t.Cleanup(sessions.CloseAll)

	e := echo.New()
	SetupMiddleware(e, mw)
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Store:             testutil.NewMockStorage(),
		SessionMgr:        sessions,
		BaseCtx:           context.Background(),
		Version:           "test",
		AllowFileDeletion: allowDelete,
	}))
	return e
}

func serve(e *echo.Echo, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSetupMiddleware_Auth(t *testing.T) {
	e := newRoutedEcho(t, MiddlewareConfig{AuthToken: "secret"}, true)

	tests := []struct {
		name   string
		path   string
		header http.Header
		wantOK bool
	}{
		{name: "health is open", path: "/api/health", wantOK: true},
		{name: "metrics is open", path: "/metrics", wantOK: true},
		{name: "missing token", path: "/api/sessions"},
		{name: "wrong token", path: "/api/sessions", header: http.Header{"Authorization": {"Bearer nope"}}},
		{name: "bearer token", path: "/api/sessions", header: http.Header{"Authorization": {"Bearer secret"}}, wantOK: true},
		{name: "query token", path: "/api/sessions?token=secret", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, http.MethodGet, tt.path, tt.header)
			if tt.wantOK {
				assert.Equal(t, http.StatusOK, rec.Code)
			} else {
				assert.Contains(t, []int{http.StatusBadRequest, http.StatusUnauthorized}, rec.Code)
			}
		})
	}
}

func TestRegisterRoutes_Metrics(t *testing.T) {
	e := newRoutedEcho(t, MiddlewareConfig{}, true)
	rec := serve(e, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "filedrop_files_deleted_total")
}

func TestRegisterRoutes_DeletionDisabled(t *testing.T) {
	e := newRoutedEcho(t, MiddlewareConfig{}, false)
	rec := serve(e, http.MethodDelete, "/api/stored/some-id", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	e = newRoutedEcho(t, MiddlewareConfig{}, true)
	rec = serve(e, http.MethodDelete, "/api/stored/some-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetupMiddleware_CORS(t *testing.T) {
	e := newRoutedEcho(t, MiddlewareConfig{EnableCORS: true, AllowOrigins: "http://a.example, http://b.example"}, true)
	rec := serve(e, http.MethodGet, "/api/health", http.Header{"Origin": {"http://b.example"}})
	assert.Equal(t, "http://b.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
