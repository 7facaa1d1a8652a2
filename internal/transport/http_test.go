package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/filedrop/backend/internal/admission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(t *testing.T, files map[string]string) []*admission.FileRecord {
	t.Helper()
	var out []*admission.FileRecord
	for _, name := range []string{"a.png", "b.png", "c.txt"} {
		data, ok := files[name]
		if !ok {
			continue
		}
		ct := "image/png"
		if name == "c.txt" {
			ct = "text/plain"
		}
		r := admission.NewFileRecord(admission.NewMemoryHandle(name, ct, []byte(data)))
		require.NotNil(t, r)
		out = append(out, r)
	}
	return out
}

func newRequest(url string, files []*admission.FileRecord) *admission.Request {
	var size int64
	for _, f := range files {
		size += f.Size()
	}
	return &admission.Request{
		SessionID:     "s1",
		URL:           url,
		Method:        http.MethodPost,
		IncludeHeader: true,
		Files:         files,
		Size:          size,
		Progress:      func(float64) {},
	}
}

func TestHTTP_Upload(t *testing.T) {
	files := records(t, map[string]string{"a.png": "aaaa", "b.png": "bb"})

	var gotHeader http.Header
	var parts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		for _, fh := range r.MultipartForm.File["file"] {
			parts = append(parts, fh.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Result{
			Uploaded: []string{files[0].ID()},
			Rejected: []string{files[1].ID()},
		})
	}))
	defer srv.Close()

	resp, err := NewHTTP(srv.Client()).Upload(context.Background(), newRequest(srv.URL, files))
	require.NoError(t, err)

	assert.Equal(t, []string{"a.png", "b.png"}, parts)
	assert.Equal(t, "2", gotHeader.Get(HeaderFileCount))
	assert.Equal(t, "6", gotHeader.Get(HeaderFileSize))
	assert.Equal(t, "s1", gotHeader.Get(HeaderSessionID))
	assert.Equal(t, []*admission.FileRecord{files[0]}, resp.Files)
	assert.Equal(t, []*admission.FileRecord{files[1]}, resp.Rejected)
}

func TestHTTP_UploadOptions(t *testing.T) {
	files := records(t, map[string]string{"a.png": "aaaa"})

	var method string
	var header http.Header
	var arrayParts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		header = r.Header.Clone()
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		arrayParts = len(r.MultipartForm.File["file[]"])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	req := newRequest(srv.URL, files)
	req.Method = http.MethodPut
	req.UseArray = true
	req.IncludeHeader = false

	resp, err := NewHTTP(srv.Client()).Upload(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, 1, arrayParts)
	assert.Empty(t, header.Get(HeaderFileCount))
	assert.Empty(t, header.Get(HeaderFileSize))
	assert.Equal(t, files, resp.Files, "answer without a result body uploads every file")
}

func TestHTTP_UploadUnknownSizeOmitsHeader(t *testing.T) {
	files := records(t, map[string]string{"a.png": "aaaa"})

	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	req := newRequest(srv.URL, files)
	req.Size = admission.Unbounded

	_, err := NewHTTP(srv.Client()).Upload(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "1", header.Get(HeaderFileCount))
	assert.Empty(t, header.Get(HeaderFileSize))
}

func TestHTTP_UploadStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		http.Error(w, "disk full", http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.Client()).Upload(context.Background(), newRequest(srv.URL, records(t, map[string]string{"a.png": "a"})))
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInsufficientStorage, se.Code)
	assert.Equal(t, "disk full", se.Body)
}

func TestHTTP_UploadReportsProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var last float64
	req := newRequest(srv.URL, records(t, map[string]string{"a.png": "aaaaaaaa", "b.png": "bbbbbbbb"}))
	req.Progress = func(p float64) {
		mu.Lock()
		last = p
		mu.Unlock()
	}

	_, err := NewHTTP(srv.Client()).Upload(context.Background(), req)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, last, float64(0))
}

func TestHTTP_UploadCanceled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTP(srv.Client()).Upload(ctx, newRequest(srv.URL, records(t, map[string]string{"a.png": "a"})))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
