package logstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"frameworks/crowsnest/pkg/logging"
)

// FileStore keeps the history as a JSON array on disk.
type FileStore struct {
	path   string
	logger logging.Logger
	mu     sync.Mutex
}

func NewFileStore(path string, logger logging.Logger) *FileStore {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) Load(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(), nil
}

// readLocked never fails: an unreadable or corrupt file is reset to an
// empty array and logged.
func (s *FileStore) readLocked() []Entry {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil {
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		var entries []Entry
		if err = json.Unmarshal(raw, &entries); err == nil {
			return entries
		}
	}

	s.logger.WithError(err).WithField("path", s.path).Error("Post log unreadable, resetting to empty")
	if werr := s.writeLocked([]Entry{}); werr != nil {
		s.logger.WithError(werr).WithField("path", s.path).Error("Failed to reset post log")
	}
	return nil
}

func (s *FileStore) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.readLocked()
	entries = append(entries, entry)
	if err := s.writeLocked(entries); err != nil {
		return fmt.Errorf("append post log: %w", err)
	}
	return nil
}

// writeLocked replaces the file atomically and fsyncs both file and directory.
func (s *FileStore) writeLocked(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode entries: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".log-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return err
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
