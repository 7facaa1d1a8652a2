// Package transport sends the valid files of an upload request to their
// destination.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/filedrop/backend/internal/admission"
	"github.com/filedrop/backend/internal/log"
	"github.com/rs/zerolog"
)

// Request headers sent by the HTTP transport.
const (
	HeaderFileSize  = "X-File-Size"
	HeaderFileCount = "X-File-Count"
	HeaderFileID    = "X-File-Id"
	HeaderSessionID = "X-Session-Id"
)

// Result is the JSON body a receiver may answer with. IDs are record IDs
// taken from the X-File-Id part header.
type Result struct {
	Uploaded []string `json:"uploaded"`
	Rejected []string `json:"rejected"`
}

// HTTP posts files as one multipart request.
type HTTP struct {
	client *http.Client
	logger zerolog.Logger
}

// NewHTTP creates an HTTP transport. A nil client gets a default one with a
// generous timeout.
func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &HTTP{client: client, logger: log.WithComponent("transport")}
}

// Upload streams every file of req to req.URL. A 2xx answer without a JSON
// Result body marks every file uploaded.
func (t *HTTP) Upload(ctx context.Context, req *admission.Request) (*admission.Response, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(&progressWriter{w: pw, total: req.Size, report: req.Progress})

	go func() {
		pw.CloseWithError(writeParts(mw, req))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if req.SessionID != "" {
		httpReq.Header.Set(HeaderSessionID, req.SessionID)
	}
	if req.IncludeHeader {
		httpReq.Header.Set(HeaderFileCount, strconv.Itoa(len(req.Files)))
		if req.Size != admission.Unbounded {
			httpReq.Header.Set(HeaderFileSize, strconv.FormatInt(req.Size, 10))
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	logger := log.WithContext(ctx, t.logger)
	logger.Debug().
		Str("url", req.URL).
		Int("status", resp.StatusCode).
		Msg("upload request answered")

	return decodeResult(resp, req.Files)
}

// StatusError reports a non-2xx answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func writeParts(mw *multipart.Writer, req *admission.Request) error {
	field := req.FieldName()
	for _, r := range req.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
			"name":     field,
			"filename": r.Name(),
		}))
		ct := r.ContentType()
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		h.Set(HeaderFileID, r.ID())

		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		src, err := r.Handle().Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", r.Name(), err)
		}
		_, err = io.Copy(part, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("reading %s: %w", r.Name(), err)
		}
	}
	return mw.Close()
}

func decodeResult(resp *http.Response, files []*admission.FileRecord) (*admission.Response, error) {
	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mt != "application/json" {
		return &admission.Response{Files: files}, nil
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		if err == io.EOF {
			return &admission.Response{Files: files}, nil
		}
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if res.Uploaded == nil && res.Rejected == nil {
		return &admission.Response{Files: files}, nil
	}

	byID := make(map[string]*admission.FileRecord, len(files))
	for _, r := range files {
		byID[r.ID()] = r
	}
	out := &admission.Response{}
	for _, id := range res.Uploaded {
		if r, ok := byID[id]; ok {
			out.Files = append(out.Files, r)
		}
	}
	for _, id := range res.Rejected {
		if r, ok := byID[id]; ok {
			out.Rejected = append(out.Rejected, r)
		}
	}
	return out, nil
}

// progressWriter reports the share of total written so far. Unknown totals
// report nothing until the request completes.
type progressWriter struct {
	w       io.Writer
	total   int64
	written atomic.Int64
	report  func(float64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	done := p.written.Add(int64(n))
	if p.total > 0 && p.total != admission.Unbounded && p.report != nil {
		p.report(float64(done) / float64(p.total) * 100)
	}
	return n, err
}
