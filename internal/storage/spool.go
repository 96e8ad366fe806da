// Package storage spools uploaded images to local disk for the duration of
// one extraction and removes them afterwards.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Spool stores in-flight uploads under a base directory.
type Spool struct {
	basePath string
}

// NewSpool creates the spool directory if needed.
func NewSpool(basePath string) (*Spool, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &Spool{basePath: basePath}, nil
}

// Health checks that the spool directory is accessible and writable.
func (s *Spool) Health(ctx context.Context) error {
	if _, err := os.Stat(s.basePath); err != nil {
		return fmt.Errorf("spool directory not accessible: %w", err)
	}

	testFile := filepath.Join(s.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0644); err != nil {
		return fmt.Errorf("spool directory not writable: %w", err)
	}
	os.Remove(testFile)

	return nil
}

// Save writes data to a uniquely named file keeping the original extension,
// and returns the path plus a cleanup func that removes the file.
func (s *Spool) Save(ctx context.Context, originalName string, data io.Reader) (string, func(), error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(s.basePath, uuid.New().String()+ext)

	file, err := os.Create(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	written, err := io.Copy(file, data)
	closeErr := file.Close()
	if err != nil {
		os.Remove(path)
		return "", nil, fmt.Errorf("failed to write spool file: %w", err)
	}
	if closeErr != nil {
		os.Remove(path)
		return "", nil, fmt.Errorf("failed to close spool file: %w", closeErr)
	}

	log.Debug().
		Str("path", path).
		Int64("bytes", written).
		Msg("Upload spooled")

	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove spooled upload")
		}
	}
	return path, cleanup, nil
}
