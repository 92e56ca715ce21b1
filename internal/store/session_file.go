package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// SessionFile is the append-only backing store for one session. The index
// writes each framed row's bytes here as it commits them, so row byte
// offsets stay valid for the whole session lifetime.
type SessionFile struct {
	mu   sync.Mutex
	file *os.File
	path string
	size int64
}

// CreateSessionFile creates a fresh backing file in dir. An empty dir falls
// back to the system temp directory.
func CreateSessionFile(dir string) (*SessionFile, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create streams dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.session", uuid.New()))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create session file: %w", err)
	}
	return &SessionFile{file: file, path: path}, nil
}

// Append writes b at the end of the backing file and returns the offset the
// write started at.
func (s *SessionFile) Append(b []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	off := s.size
	if _, err := s.file.Write(b); err != nil {
		return off, fmt.Errorf("failed to append to session file: %w", err)
	}
	s.size += int64(len(b))
	return off, nil
}

// ReadAt reads len(p) bytes at offset
func (s *SessionFile) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

// ReadRange reads bytes from start to end
func (s *SessionFile) ReadRange(start, end int64) ([]byte, error) {
	s.mu.Lock()
	size := s.size
	s.mu.Unlock()

	if end > size {
		end = size
	}
	if start >= end {
		return nil, nil
	}
	buf := make([]byte, end-start)
	if _, err := s.file.ReadAt(buf, start); err != nil {
		return nil, err
	}
	return buf, nil
}

// Size returns the number of bytes written so far
func (s *SessionFile) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Path returns the backing file path
func (s *SessionFile) Path() string {
	return s.path
}

// Sync flushes the backing file to disk
func (s *SessionFile) Sync() error {
	return s.file.Sync()
}

// Close closes and removes the backing file
func (s *SessionFile) Close() error {
	err := s.file.Close()
	if rmErr := os.Remove(s.path); err == nil {
		err = rmErr
	}
	return err
}
