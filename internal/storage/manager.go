package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/filedrop/backend/internal/log"
	"github.com/filedrop/backend/internal/models"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a stored file does not exist.
var ErrNotFound = errors.New("file not found")

const indexFile = "index.json"

// Meta describes a file being saved.
type Meta struct {
	Name        string
	ContentType string
	SessionID   string
	RecordID    string
}

// Store defines the interface for file storage.
type Store interface {
	Save(meta Meta, r io.Reader) (*models.FileInfo, error)
	SaveBytes(meta Meta, data []byte) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	Rename(id string, newName string) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
}

// LocalStore implements Store using the local filesystem. File contents and
// the metadata index are written atomically.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.FileInfo
}

// NewLocalStore creates a new LocalStore and loads any index left by a
// previous run.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	s := &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*models.FileInfo),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.uploadDir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading index: %w", err)
	}

	var list []*models.FileInfo
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("decoding index: %w", err)
	}
	for _, info := range list {
		if _, err := os.Stat(filepath.Join(s.uploadDir, info.ID)); err != nil {
			continue
		}
		s.files[info.ID] = info
	}
	return nil
}

// writeIndex must be called with s.mu held.
func (s *LocalStore) writeIndex() error {
	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(s.uploadDir, indexFile), data, 0644); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}

// Save writes r to a new file.
func (s *LocalStore) Save(meta Meta, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger := log.WithComponent("storage")
			logger.Debug().Err(err).Str("file_id", id).Msg("cleanup pending file")
		}
	}()

	size, err := io.Copy(pending, r)
	if err != nil {
		return nil, fmt.Errorf("writing file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("committing file: %w", err)
	}

	info := &models.FileInfo{
		ID:          id,
		Name:        meta.Name,
		ContentType: meta.ContentType,
		Size:        size,
		UploadedAt:  time.Now(),
		Status:      models.FileStatusStored,
		SessionID:   meta.SessionID,
		RecordID:    meta.RecordID,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info
	if err := s.writeIndex(); err != nil {
		return nil, err
	}

	return info, nil
}

// SaveBytes saves an in-memory file.
func (s *LocalStore) SaveBytes(meta Meta, data []byte) (*models.FileInfo, error) {
	return s.Save(meta, bytes.NewReader(data))
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return info, nil
}

// List returns the most recent files. A limit of zero or less returns all.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a file from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	path := filepath.Join(s.uploadDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return s.writeIndex()
}

// Rename updates the display name of a file.
func (s *LocalStore) Rename(id string, newName string) (*models.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	info.Name = newName
	if err := s.writeIndex(); err != nil {
		return nil, err
	}
	return info, nil
}

// GetFilePath returns the absolute path to a file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return filepath.Join(s.uploadDir, id), nil
}
