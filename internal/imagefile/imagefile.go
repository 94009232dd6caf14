// Package imagefile reads and classifies the image files floorcast handles:
// catalog references, uploaded rooms, and generated outputs.
package imagefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kiranshivaraju/floorcast/pkg/models"
)

// ErrUnsupportedType is returned when content is not PNG, JPEG, or WebP.
var ErrUnsupportedType = errors.New("unsupported image type")

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// Supported reports whether mimeType is an accepted image type.
func Supported(mimeType string) bool {
	_, ok := extensions[mimeType]
	return ok
}

// Extension returns the file extension for mimeType, falling back to ".png"
// for types the model may return that we do not otherwise accept.
func Extension(mimeType string) string {
	if ext, ok := extensions[mimeType]; ok {
		return ext
	}
	return ".png"
}

// Detect sniffs the MIME type of data and rejects anything unsupported.
func Detect(data []byte) (string, error) {
	m := mimetype.Detect(data)
	for mt := range extensions {
		if m.Is(mt) {
			return mt, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, m.String())
}

// Read loads the file at path and returns it with its sniffed MIME type.
func Read(path string) (models.ImageData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ImageData{}, fmt.Errorf("reading image %s: %w", path, err)
	}
	if len(data) == 0 {
		return models.ImageData{}, fmt.Errorf("reading image %s: file is empty", path)
	}
	mt, err := Detect(data)
	if err != nil {
		return models.ImageData{}, fmt.Errorf("reading image %s: %w", path, err)
	}
	return models.ImageData{MIMEType: mt, Data: data}, nil
}

// WriteAtomic writes data to dir/name through a temporary file in dir and a
// rename, so readers never observe a partially written image.
func WriteAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("renaming %s: %w", name, err)
	}
	return nil
}
