// Package outputs persists generated images and exposes them under a public
// URL prefix.
package outputs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/floorcast/internal/imagefile"
	"github.com/kiranshivaraju/floorcast/pkg/models"
)

// URLPrefix is the path under which the server mounts the output directory.
const URLPrefix = "/outputs/"

// ErrEmptyImage is returned when asked to save an image with no bytes.
var ErrEmptyImage = errors.New("generated image is empty")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Store writes generated images into a single directory.
type Store struct {
	dir string
}

// NewStore creates dir if needed and returns a Store rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory outputs are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes img as <room>__<floor>_<id><ext> and returns its public URL
// path, e.g. /outputs/living_03__oak-wide-matte_1f0c2a9b.png.
func (s *Store) Save(img models.ImageData, room, floorID string) (string, error) {
	if len(img.Data) == 0 {
		return "", ErrEmptyImage
	}
	name := fmt.Sprintf("%s__%s_%s%s",
		slug(room, "room"), slug(floorID, "floor"),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		imagefile.Extension(img.MIMEType))

	if err := imagefile.WriteAtomic(s.dir, name, img.Data); err != nil {
		return "", fmt.Errorf("writing output %s: %w", name, err)
	}
	return URLPrefix + name, nil
}

// slug reduces a ref such as "samples/living_03.jpg" to "living_03".
func slug(ref, fallback string) string {
	base := filepath.Base(ref)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "-"), "-")
	if base == "" {
		return fallback
	}
	return base
}
