// Package uploads stores room photographs uploaded by clients so that jobs
// can reference them by id.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/floorcast/internal/imagefile"
	"github.com/kiranshivaraju/floorcast/pkg/models"
)

var (
	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("upload too large")
	// ErrEmpty is returned for a zero-byte upload.
	ErrEmpty = errors.New("upload is empty")
	// ErrInvalidRef is returned for refs that are not plain file names.
	ErrInvalidRef = errors.New("invalid upload ref")
)

// Store keeps uploads as flat files named <uuid><ext> under one directory.
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore creates dir if needed and returns a Store rooted there.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir %s: %w", dir, err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Save reads r fully, checks it is a PNG, JPEG or WebP within the size limit,
// and writes it under a fresh ref which is returned.
func (s *Store) Save(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading upload: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)
	}
	mt, err := imagefile.Detect(data)
	if err != nil {
		return "", err
	}

	ref := uuid.NewString() + imagefile.Extension(mt)
	if err := imagefile.WriteAtomic(s.dir, ref, data); err != nil {
		return "", fmt.Errorf("storing upload: %w", err)
	}
	return ref, nil
}

// Path returns the on-disk location of ref.
func (s *Store) Path(ref string) (string, error) {
	if ref == "" || ref[0] == '.' || filepath.Base(ref) != ref {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(s.dir, ref), nil
}

// Exists reports whether ref names a stored upload.
func (s *Store) Exists(ref string) bool {
	p, err := s.Path(ref)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Read returns the bytes and MIME type of a stored upload.
func (s *Store) Read(ref string) (models.ImageData, error) {
	p, err := s.Path(ref)
	if err != nil {
		return models.ImageData{}, err
	}
	return imagefile.Read(p)
}
