// manager_test.go - Tests for storage layer
package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/filedrop/backend/internal/models"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		if _, err := NewLocalStore(uploadDir); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})

	t.Run("reloads index", func(t *testing.T) {
		dir := t.TempDir()
		first, err := NewLocalStore(dir)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		info, err := first.Save(Meta{Name: "a.png", ContentType: "image/png"}, strings.NewReader("png"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		second, err := NewLocalStore(dir)
		if err != nil {
			t.Fatalf("Failed to reopen store: %v", err)
		}
		got, err := second.Get(info.ID)
		if err != nil {
			t.Fatalf("Expected file to survive reopen: %v", err)
		}
		if got.ContentType != "image/png" {
			t.Errorf("Expected content type image/png, got %q", got.ContentType)
		}
	})

	t.Run("skips index entries without data", func(t *testing.T) {
		dir := t.TempDir()
		first, _ := NewLocalStore(dir)
		info, _ := first.Save(Meta{Name: "gone.txt"}, strings.NewReader("x"))
		os.Remove(filepath.Join(dir, info.ID))

		second, err := NewLocalStore(dir)
		if err != nil {
			t.Fatalf("Failed to reopen store: %v", err)
		}
		if _, err := second.Get(info.ID); err == nil {
			t.Error("Expected missing data file to be dropped from the index")
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves file from reader", func(t *testing.T) {
		store := createTestStore(t)
		content := "Hello, World!"

		info, err := store.Save(Meta{
			Name:        "test.txt",
			ContentType: "text/plain",
			SessionID:   "s1",
			RecordID:    "r1",
		}, strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Name != "test.txt" {
			t.Errorf("Expected name 'test.txt', got %v", info.Name)
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), info.Size)
		}
		if info.Status != models.FileStatusStored {
			t.Errorf("Expected status 'stored', got %v", info.Status)
		}
		if info.SessionID != "s1" || info.RecordID != "r1" {
			t.Errorf("Expected session and record to be kept, got %q %q", info.SessionID, info.RecordID)
		}

		data, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if string(data) != content {
			t.Errorf("Expected content '%s', got '%s'", content, string(data))
		}
	})

	t.Run("saves empty file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save(Meta{Name: "empty.txt"}, strings.NewReader(""))
		if err != nil {
			t.Fatalf("Failed to save empty file: %v", err)
		}
		if info.Size != 0 {
			t.Errorf("Expected size 0, got %d", info.Size)
		}
	})

	t.Run("saves file from bytes", func(t *testing.T) {
		store := createTestStore(t)
		data := []byte("Hello from bytes!")

		info, err := store.SaveBytes(Meta{Name: "bytes.txt"}, data)
		if err != nil {
			t.Fatalf("Failed to save bytes: %v", err)
		}

		saved, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if !bytes.Equal(saved, data) {
			t.Error("Saved data doesn't match original")
		}
	})
}

func TestLocalStore_Get(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save(Meta{Name: "test.txt"}, strings.NewReader("content"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	retrieved, err := store.Get(info.ID)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}
	if retrieved.ID != info.ID {
		t.Errorf("Expected ID %s, got %s", info.ID, retrieved.ID)
	}

	_, err = store.Get("non-existent-id")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)

	var last string
	for i := 0; i < 5; i++ {
		info, err := store.Save(Meta{Name: "file.txt"}, strings.NewReader("content"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}
		last = info.ID
		time.Sleep(5 * time.Millisecond)
	}

	files, err := store.List(0)
	if err != nil {
		t.Fatalf("Failed to list files: %v", err)
	}
	if len(files) != 5 {
		t.Errorf("Expected 5 files, got %d", len(files))
	}
	if files[0].ID != last {
		t.Error("Expected most recent file first")
	}

	files, _ = store.List(3)
	if len(files) != 3 {
		t.Errorf("Expected 3 files, got %d", len(files))
	}
}

func TestLocalStore_Delete(t *testing.T) {
	store := createTestStore(t)

	info, _ := store.Save(Meta{Name: "test.txt"}, strings.NewReader("content"))
	if err := store.Delete(info.ID); err != nil {
		t.Fatalf("Failed to delete file: %v", err)
	}

	if _, err := os.Stat(filepath.Join(store.uploadDir, info.ID)); !os.IsNotExist(err) {
		t.Error("Expected physical file to be removed")
	}
	if err := store.Delete(info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestLocalStore_Rename(t *testing.T) {
	store := createTestStore(t)

	info, _ := store.Save(Meta{Name: "old.txt"}, strings.NewReader("content"))
	renamed, err := store.Rename(info.ID, "new.txt")
	if err != nil {
		t.Fatalf("Failed to rename file: %v", err)
	}
	if renamed.Name != "new.txt" {
		t.Errorf("Expected name 'new.txt', got %v", renamed.Name)
	}

	if _, err := store.Rename("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLocalStore_GetFilePath(t *testing.T) {
	store := createTestStore(t)

	info, _ := store.Save(Meta{Name: "test.txt"}, strings.NewReader("content"))
	path, err := store.GetFilePath(info.ID)
	if err != nil {
		t.Fatalf("Failed to get file path: %v", err)
	}
	if path != filepath.Join(store.uploadDir, info.ID) {
		t.Errorf("Unexpected path %s", path)
	}

	if _, err := store.GetFilePath("missing"); err == nil {
		t.Error("Expected error for missing file")
	}
}
