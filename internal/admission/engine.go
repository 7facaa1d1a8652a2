// Package admission classifies dropped files against content type and size
// rules, tracks each file's status and drives the delete and upload workflow.
package admission

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/filedrop/backend/internal/log"
	"github.com/rs/zerolog"
)

// Input is a value passed to AddFiles: either a raw handle that still needs a
// record, or a record that already exists.
type Input struct {
	handle Handle
	record *FileRecord
}

// Raw wraps a file handle for AddFiles.
func Raw(h Handle) Input { return Input{handle: h} }

// Existing passes an already constructed record to AddFiles.
func Existing(r *FileRecord) Input { return Input{record: r} }

// RawAll wraps every handle with Raw.
func RawAll(handles ...Handle) []Input {
	out := make([]Input, 0, len(handles))
	for _, h := range handles {
		out = append(out, Raw(h))
	}
	return out
}

// Hooks are lifecycle callbacks. Nil hooks are ignored.
type Hooks struct {
	DidAdd    func(records ...*FileRecord)
	DidDelete func(records ...*FileRecord)
	DidUpload func(records ...*FileRecord)
	// DidFail is called when an upload request fails as a whole.
	DidFail func(err error, records ...*FileRecord)
}

func (h Hooks) withDefaults() Hooks {
	if h.DidAdd == nil {
		h.DidAdd = func(...*FileRecord) {}
	}
	if h.DidDelete == nil {
		h.DidDelete = func(...*FileRecord) {}
	}
	if h.DidUpload == nil {
		h.DidUpload = func(...*FileRecord) {}
	}
	if h.DidFail == nil {
		h.DidFail = func(error, ...*FileRecord) {}
	}
	return h
}

// URLSource produces the upload URL when an upload starts.
type URLSource func() (string, error)

// StaticURL returns a URLSource for a fixed URL.
func StaticURL(u string) URLSource {
	return func() (string, error) { return u, nil }
}

// Config configures a new Engine. Every engine gets its own copy of the options.
type Config struct {
	SessionID string
	URL       URLSource
	// Options defaults to DefaultOptions when nil.
	Options   *Options
	Hooks     Hooks
	Transport Transport
}

// UploadStatus describes the engine's current or last upload.
type UploadStatus struct {
	Uploading       bool    `json:"uploading"`
	PercentComplete float64 `json:"percentComplete"`
	Error           bool    `json:"error"`
	Message         string  `json:"message,omitempty"`
	Err             error   `json:"-"`
}

// Engine owns a collection of file records and the options used to admit them.
// It is safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	sessionID string
	url       URLSource
	opts      Options
	hooks     Hooks
	transport Transport
	files     *Collection
	status    UploadStatus
	inflight  *UploadRequest
	logger    zerolog.Logger
}

// NewEngine creates an engine with fresh state.
func NewEngine(cfg Config) *Engine {
	opts := DefaultOptions()
	if cfg.Options != nil {
		opts = cfg.Options.Clone().withDefaults()
	}

	logger := log.WithComponent("admission")
	if cfg.SessionID != "" {
		logger = logger.With().Str("session_id", cfg.SessionID).Logger()
	}

	return &Engine{
		sessionID: cfg.SessionID,
		url:       cfg.URL,
		opts:      opts,
		hooks:     cfg.Hooks.withDefaults(),
		transport: cfg.Transport,
		files:     NewCollection(),
		logger:    logger,
	}
}

// AddFiles admits each input, classifies it VALID or INVALID and appends it to
// the collection. Nil inputs, records already held and records that were
// deleted or uploaded are dropped. DidAdd receives the VALID records in input
// order when there is at least one. The appended records are returned.
func (e *Engine) AddFiles(inputs ...Input) []*FileRecord {
	e.mu.Lock()

	var added, accepted []*FileRecord
	for _, in := range inputs {
		r := in.record
		if r == nil {
			r = NewFileRecord(in.handle)
			if r == nil {
				continue
			}
		} else if r.Status().Has(StatusDeleted|StatusUploaded) || e.files.Contains(r) || slices.Contains(added, r) {
			continue
		}

		verdict := Explain(r, e.opts)
		r.setVerdict(verdict)
		if verdict.Admissible() {
			r.setStatus(StatusValid)
			accepted = append(accepted, r)
		} else {
			r.setStatus(StatusInvalid)
		}
		added = append(added, r)

		e.logger.Debug().
			Str("file_id", r.ID()).
			Str("name", r.Name()).
			Str("content_type", r.ContentType()).
			Stringer("status", r.Status()).
			Str("reason", verdict.Reason()).
			Msg("file admitted")
	}
	e.files.Append(added...)
	e.mu.Unlock()

	if len(accepted) > 0 {
		e.hooks.DidAdd(accepted...)
	}
	return added
}

// DeleteFiles marks each held record DELETED and removes it from the
// collection. Records not held are ignored. DidDelete receives the removed
// records in input order when there is at least one.
func (e *Engine) DeleteFiles(records ...*FileRecord) {
	e.mu.Lock()

	var deleted []*FileRecord
	for _, r := range records {
		if r == nil || !e.files.Contains(r) {
			continue
		}
		r.setStatus(StatusDeleted)
		e.files.Remove(r)
		deleted = append(deleted, r)
	}
	e.mu.Unlock()

	if len(deleted) > 0 {
		e.logger.Debug().Int("count", len(deleted)).Msg("files deleted")
		e.hooks.DidDelete(deleted...)
	}
}

// ClearFiles deletes every held record in one step and empties the
// collection. DidDelete fires once per record, in insertion order.
func (e *Engine) ClearFiles() {
	e.mu.Lock()
	deleted := slices.Clone(e.files.Snapshot().Files)
	for _, r := range deleted {
		r.setStatus(StatusDeleted)
	}
	e.files.Reset()
	e.mu.Unlock()

	if len(deleted) > 0 {
		e.logger.Debug().Int("count", len(deleted)).Msg("files cleared")
	}
	for _, r := range deleted {
		e.hooks.DidDelete(r)
	}
}

// Find returns the held record with the given ID.
func (e *Engine) Find(id string) (*FileRecord, bool) {
	for _, r := range e.Files() {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}

// SetMimeTypes adds types to the allowed list. MimeReplace empties the list
// first. Records already admitted keep their status.
func (e *Engine) SetMimeTypes(mode MimeMode, types ...MimeType) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if mode == MimeReplace {
		e.opts.MimeTypes = nil
	}
	e.opts.MimeTypes = append(e.opts.MimeTypes, types...)
}

// SetMaximumSize changes the size ceiling for files admitted from now on. Zero
// admits only empty files; a negative size or Unbounded removes the ceiling.
func (e *Engine) SetMaximumSize(size int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if size < 0 {
		size = Unbounded
	}
	e.opts.MaximumSize = size
}

// URL resolves the configured upload URL. It fails with a ConfigurationError
// when no URL was configured.
func (e *Engine) URL() (string, error) {
	if e.url == nil {
		return "", &ConfigurationError{Field: "url", Err: ErrURLRequired}
	}
	u, err := e.url()
	if err != nil {
		return "", &ConfigurationError{Field: "url", Err: err}
	}
	if u == "" {
		return "", &ConfigurationError{Field: "url", Err: ErrURLRequired}
	}
	return u, nil
}

// SessionID returns the identifier the engine was created with.
func (e *Engine) SessionID() string { return e.sessionID }

// Options returns a copy of the current options.
func (e *Engine) Options() Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts.Clone()
}

// UploadStatus returns the state of the current or last upload.
func (e *Engine) UploadStatus() UploadStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Snapshot returns the derived views computed after the last mutation.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.files.Snapshot()
}

// Files returns every held record in insertion order.
func (e *Engine) Files() []*FileRecord { return slices.Clone(e.Snapshot().Files) }

// ValidFiles returns the held VALID records.
func (e *Engine) ValidFiles() []*FileRecord { return slices.Clone(e.Snapshot().Valid) }

// InvalidFiles returns the held INVALID records.
func (e *Engine) InvalidFiles() []*FileRecord { return slices.Clone(e.Snapshot().Invalid) }

// UploadedFiles returns the held UPLOADED records.
func (e *Engine) UploadedFiles() []*FileRecord { return slices.Clone(e.Snapshot().Uploaded) }

// DeletedFiles returns held records marked DELETED. Deleted records leave the
// collection, so this is normally empty.
func (e *Engine) DeletedFiles() []*FileRecord { return slices.Clone(e.Snapshot().Deleted) }

// RequestSize returns the summed size of the VALID records.
func (e *Engine) RequestSize() int64 { return e.Snapshot().RequestSize }

// UploadRequest is the handle of one upload started by UploadFiles.
type UploadRequest struct {
	Files   []*FileRecord
	cancel  context.CancelFunc
	done    chan struct{}
	aborted bool
	resp    *Response
	err     error
}

// Done is closed once the upload has finished, failed or been aborted.
func (u *UploadRequest) Done() <-chan struct{} { return u.done }

// Wait blocks until the upload ends and returns the transport's outcome.
func (u *UploadRequest) Wait() (*Response, error) {
	<-u.done
	return u.resp, u.err
}

// UploadFiles sends the VALID records through the transport in the
// background. It fails immediately when no URL or transport is configured, or
// when another upload is still in flight. ctx bounds the whole upload.
func (e *Engine) UploadFiles(ctx context.Context) (*UploadRequest, error) {
	url, err := e.URL()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.transport == nil {
		e.mu.Unlock()
		return nil, &ConfigurationError{Field: "transport", Err: ErrNoTransport}
	}
	if e.inflight != nil {
		e.mu.Unlock()
		return nil, ErrUploadInProgress
	}

	snap := e.files.Snapshot()
	reqCtx, cancel := context.WithCancel(ctx)
	up := &UploadRequest{
		Files:  slices.Clone(snap.Valid),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if len(up.Files) == 0 {
		cancel()
		up.resp = &Response{}
		close(up.done)
		e.mu.Unlock()
		e.logger.Debug().Msg("upload skipped, no valid files")
		return up, nil
	}

	e.inflight = up
	e.status = UploadStatus{Uploading: true}
	req := &Request{
		SessionID:     e.sessionID,
		URL:           url,
		Method:        e.opts.RequestMethod,
		IncludeHeader: e.opts.IncludeHeader,
		UseArray:      e.opts.UseArray,
		Files:         up.Files,
		Size:          snap.RequestSize,
		Progress:      func(p float64) { e.reportProgress(up, p) },
	}
	e.mu.Unlock()

	e.logger.Info().
		Str("url", url).
		Int("files", len(req.Files)).
		Int64("bytes", req.Size).
		Msg("upload started")

	go e.runUpload(reqCtx, up, req)
	return up, nil
}

func (e *Engine) runUpload(ctx context.Context, up *UploadRequest, req *Request) {
	defer close(up.done)
	defer up.cancel()

	resp, err := e.transport.Upload(ctx, req)

	e.mu.Lock()
	if e.inflight == up {
		e.inflight = nil
	}
	if up.aborted {
		up.err = context.Canceled
		e.mu.Unlock()
		e.logger.Info().Msg("upload aborted")
		return
	}

	if err != nil {
		terr := &TransportError{URL: req.URL, Err: err}
		up.err = terr
		e.status.Uploading = false
		e.status.Error = true
		e.status.Err = terr
		e.status.Message = terr.Error()
		e.mu.Unlock()

		e.logger.Warn().Err(err).Str("url", req.URL).Msg("upload failed")
		e.hooks.DidFail(terr, up.Files...)
		return
	}

	if resp == nil {
		resp = &Response{}
	}
	up.resp = resp

	var uploaded []*FileRecord
	for _, r := range resp.Files {
		if e.files.Contains(r) && r.Status() == StatusValid {
			r.setStatus(StatusUploaded)
			uploaded = append(uploaded, r)
		}
	}
	for _, r := range resp.Rejected {
		if e.files.Contains(r) && r.Status() == StatusValid {
			r.setStatus(StatusFailed)
		}
	}
	e.files.recompute()
	e.status = UploadStatus{PercentComplete: 100}
	e.mu.Unlock()

	e.logger.Info().
		Int("uploaded", len(uploaded)).
		Int("rejected", len(resp.Rejected)).
		Msg("upload complete")
	e.hooks.DidUpload(uploaded...)
}

func (e *Engine) reportProgress(up *UploadRequest, percent float64) {
	percent = max(0, min(100, percent))

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight == up && e.status.Uploading {
		e.status.PercentComplete = percent
	}
}

// AbortUpload cancels the in-flight upload and reports whether there was one.
// Aborted uploads leave record statuses unchanged and fire no hook.
func (e *Engine) AbortUpload() bool {
	e.mu.Lock()
	up := e.inflight
	if up == nil || !e.status.Uploading {
		e.mu.Unlock()
		return false
	}
	up.aborted = true
	e.inflight = nil
	e.status.Uploading = false
	e.mu.Unlock()

	up.cancel()
	return true
}

// IsAborted reports whether err is the outcome of an aborted upload.
func IsAborted(err error) bool {
	return errors.Is(err, context.Canceled)
}
