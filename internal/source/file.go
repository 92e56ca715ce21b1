package source

import (
	"context"
	"fmt"
	"time"

	"github.com/user/loggrab/internal/store"
)

const (
	fileChunkSize       = 64 * 1024
	defaultPollInterval = 250 * time.Millisecond
)

// FileSource streams a file's bytes through the ingestion path. With Follow
// set it keeps polling for growth after the initial read and streams new
// bytes as they appear.
type FileSource struct {
	ds           DataSource
	link         Link
	pollInterval time.Duration
}

// NewFileSource creates a file adapter for ds.
func NewFileSource(ds DataSource, link Link) *FileSource {
	return &FileSource{ds: ds, link: link, pollInterval: defaultPollInterval}
}

// SetPollInterval overrides the growth poll cadence used with Follow
func (s *FileSource) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

// Descriptor returns the owning data source
func (s *FileSource) Descriptor() DataSource { return s.ds }

// Link returns the source's link
func (s *FileSource) Link() Link { return s.link }

// Run reads the file in chunks and hands them to the sink, checking for
// cancellation between chunks. Without Follow it returns at EOF; with
// Follow it then polls for growth until the context is cancelled.
func (s *FileSource) Run(ctx context.Context, sink Sink) error {
	file, err := store.OpenMapped(s.ds.Path)
	if err != nil {
		return fmt.Errorf("failed to open source %s: %w", s.ds.Path, err)
	}
	defer file.Close()

	pos, err := s.stream(ctx, sink, file, 0)
	if err != nil {
		return err
	}
	if !s.ds.Follow {
		return nil
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			grown, err := file.Refresh()
			if err != nil {
				return fmt.Errorf("failed to refresh %s: %w", s.ds.Path, err)
			}
			if !grown {
				continue
			}
			if pos, err = s.stream(ctx, sink, file, pos); err != nil {
				return err
			}
		}
	}
}

func (s *FileSource) stream(ctx context.Context, sink Sink, file *store.MappedFile, pos int64) (int64, error) {
	buf := make([]byte, fileChunkSize)
	for pos < file.Size() {
		if err := ctx.Err(); err != nil {
			return pos, err
		}
		readSize := int64(fileChunkSize)
		if pos+readSize > file.Size() {
			readSize = file.Size() - pos
		}
		n, err := file.ReadAt(buf[:readSize], pos)
		if err != nil {
			return pos, fmt.Errorf("failed to read %s at %d: %w", s.ds.Path, pos, err)
		}
		if err := sink.OnBytes(s.link, buf[:n]); err != nil {
			return pos, err
		}
		pos += int64(n)
	}
	return pos, nil
}
