package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"videocounter/internal/config"
	"videocounter/internal/logger"
	"videocounter/internal/model"
)

// VideoStore keeps uploaded sources and annotated outputs on disk.
type VideoStore struct {
	uploadDir string
	outputDir string
	maxBytes  int64
	logger    *logger.Logger
}

// NewVideoStore creates the upload and output directories.
func NewVideoStore(cfg *config.Config, logger *logger.Logger) (*VideoStore, error) {
	for _, dir := range []string{cfg.UploadDirectory, cfg.OutputDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("error creating directory %s: %w", dir, err)
		}
	}
	return &VideoStore{
		uploadDir: cfg.UploadDirectory,
		outputDir: cfg.OutputDirectory,
		maxBytes:  cfg.MaxUploadBytes(),
		logger:    logger,
	}, nil
}

// SaveUpload streams an upload to uploads/{jobID}_{filename}. Uploads over the
// size limit are removed and rejected.
func (s *VideoStore) SaveUpload(jobID, filename string, body io.Reader) (string, int64, error) {
	path := filepath.Join(s.uploadDir, fmt.Sprintf("%s_%s", jobID, SafeFilename(filename)))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("error creating upload %s: %w", path, err)
	}

	n, err := io.Copy(f, io.LimitReader(body, max(s.maxBytes, 0)+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.maxBytes {
		err = fmt.Errorf("%w: upload exceeds %d bytes", model.ErrInvalidInput, s.maxBytes)
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}

	s.logger.Info("Saved upload %s (%d bytes)", filepath.Base(path), n)
	return path, n, nil
}

// OutputPath is where the annotated video of a job is written.
func (s *VideoStore) OutputPath(jobID string) string {
	return filepath.Join(s.outputDir, jobID+"_output.mp4")
}

// Remove deletes files, ignoring ones that are already gone.
func (s *VideoStore) Remove(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Exists reports whether a regular file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// SafeFilename strips directories and replaces anything outside [A-Za-z0-9._-].
func SafeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "upload"
	}
	return name
}
