package admission

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// FileRecord tracks one file handle through admission, deletion and upload.
// Its status can only be changed by the Engine that holds it.
type FileRecord struct {
	id        string
	handle    Handle
	createdAt time.Time
	status    atomic.Uint32
	verdict   atomic.Pointer[Verdict]
}

// NewFileRecord wraps handle in a record with status NONE. It returns nil for a
// nil handle.
func NewFileRecord(handle Handle) *FileRecord {
	if handle == nil {
		return nil
	}
	return &FileRecord{
		id:        uuid.New().String(),
		handle:    handle,
		createdAt: time.Now(),
	}
}

// ID returns the record's unique identifier.
func (r *FileRecord) ID() string { return r.id }

// Handle returns the underlying file handle.
func (r *FileRecord) Handle() Handle { return r.handle }

// Name returns the file name reported by the handle.
func (r *FileRecord) Name() string { return r.handle.Name() }

// CreatedAt returns when the record was constructed.
func (r *FileRecord) CreatedAt() time.Time { return r.createdAt }

// ContentType returns the handle's MIME type or "" when unknown.
func (r *FileRecord) ContentType() string {
	return r.handle.ContentType()
}

// Size returns the handle's size, or Unbounded when it is unknown.
func (r *FileRecord) Size() int64 {
	size, ok := r.handle.Size()
	if !ok {
		return Unbounded
	}
	return size
}

// Status returns the record's current status.
func (r *FileRecord) Status() StatusType {
	return StatusType(r.status.Load())
}

func (r *FileRecord) setStatus(s StatusType) {
	r.status.Store(uint32(s))
}

// Verdict returns the checks computed when the record was admitted. ok is
// false for records never admitted.
func (r *FileRecord) Verdict() (v Verdict, ok bool) {
	p := r.verdict.Load()
	if p == nil {
		return Verdict{}, false
	}
	return *p, true
}

func (r *FileRecord) setVerdict(v Verdict) {
	r.verdict.Store(&v)
}

// Info returns a serializable view of the record.
func (r *FileRecord) Info() RecordInfo {
	info := RecordInfo{
		ID:          r.id,
		Name:        r.Name(),
		ContentType: r.ContentType(),
		Status:      r.Status(),
		CreatedAt:   r.createdAt,
	}
	if size, ok := r.handle.Size(); ok {
		info.Size = &size
	}
	return info
}

// RecordInfo is the wire form of a FileRecord. Size is omitted when unknown.
type RecordInfo struct {
	ID          string     `json:"id" msgpack:"id"`
	Name        string     `json:"name" msgpack:"name"`
	ContentType string     `json:"contentType" msgpack:"contentType"`
	Size        *int64     `json:"size,omitempty" msgpack:"size,omitempty"`
	Status      StatusType `json:"status" msgpack:"status"`
	CreatedAt   time.Time  `json:"createdAt" msgpack:"createdAt"`
}

// Infos converts records to their wire form, preserving order.
func Infos(records []*FileRecord) []RecordInfo {
	out := make([]RecordInfo, 0, len(records))
	for _, r := range records {
		out = append(out, r.Info())
	}
	return out
}
