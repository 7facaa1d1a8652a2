package models

import "time"

// SessionInfo summarizes a drop session for API responses.
type SessionInfo struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
	FileCount    int       `json:"fileCount"`
	ValidCount   int       `json:"validCount"`
	InvalidCount int       `json:"invalidCount"`
	RequestSize  int64     `json:"requestSize"`
	Uploading    bool      `json:"uploading"`
}
