package admission

import (
	"bytes"
	"io"
	"math"
	"mime/multipart"
)

// Unbounded stands for an unknown file size and for "no size ceiling".
const Unbounded int64 = math.MaxInt64

// Handle is an opaque reference to a file's bytes and metadata. Records never
// copy the bytes; they only hold the handle.
type Handle interface {
	Name() string
	// ContentType returns the declared MIME type, or "" when unknown.
	ContentType() string
	// Size returns the byte size and whether it is known.
	Size() (int64, bool)
	Open() (io.ReadCloser, error)
}

// MemoryHandle is a Handle over an in-memory byte slice.
type MemoryHandle struct {
	name        string
	contentType string
	data        []byte
}

// NewMemoryHandle wraps data as a Handle.
func NewMemoryHandle(name, contentType string, data []byte) *MemoryHandle {
	return &MemoryHandle{name: name, contentType: contentType, data: data}
}

func (h *MemoryHandle) Name() string        { return h.name }
func (h *MemoryHandle) ContentType() string { return h.contentType }
func (h *MemoryHandle) Size() (int64, bool) { return int64(len(h.data)), true }

func (h *MemoryHandle) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(h.data)), nil
}

// MultipartHandle exposes a multipart form file as a Handle.
type MultipartHandle struct {
	header *multipart.FileHeader
}

// NewMultipartHandle wraps a parsed multipart file header.
func NewMultipartHandle(header *multipart.FileHeader) *MultipartHandle {
	return &MultipartHandle{header: header}
}

func (h *MultipartHandle) Name() string { return h.header.Filename }

func (h *MultipartHandle) ContentType() string {
	return h.header.Header.Get("Content-Type")
}

func (h *MultipartHandle) Size() (int64, bool) {
	if h.header.Size < 0 {
		return 0, false
	}
	return h.header.Size, true
}

func (h *MultipartHandle) Open() (io.ReadCloser, error) {
	return h.header.Open()
}
