package models

import "time"

// FileStatus is the state of a file kept by the storage layer.
type FileStatus string

const (
	FileStatusStored  FileStatus = "stored"
	FileStatusDeleted FileStatus = "deleted"
)

// FileInfo represents metadata about a stored upload.
type FileInfo struct {
	ID          string     `json:"id" msgpack:"id"`
	Name        string     `json:"name" msgpack:"name"`
	ContentType string     `json:"contentType,omitempty" msgpack:"contentType,omitempty"`
	Size        int64      `json:"size" msgpack:"size"`
	UploadedAt  time.Time  `json:"uploadedAt" msgpack:"uploadedAt"`
	Status      FileStatus `json:"status" msgpack:"status"`
	SessionID   string     `json:"sessionId,omitempty" msgpack:"sessionId,omitempty"`
	RecordID    string     `json:"recordId,omitempty" msgpack:"recordId,omitempty"`
}
