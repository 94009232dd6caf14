// Package catalog loads the floor-product reference catalog and the preset
// sample rooms from a YAML file.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kiranshivaraju/floorcast/internal/imagefile"
	"github.com/kiranshivaraju/floorcast/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrProductNotFound is returned when a floor id is not in the catalog.
var ErrProductNotFound = errors.New("product not found")

type file struct {
	Floors  []models.Product `yaml:"floors"`
	Samples []models.Sample  `yaml:"samples"`
}

// Catalog is the immutable, in-memory view of catalog.yaml.
type Catalog struct {
	products  []models.Product
	samples   []models.Sample
	byProduct map[string]int
	bySample  map[string]int
}

// Load reads the catalog at path. Relative image paths are resolved against
// the directory holding the file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse unmarshals catalog YAML and validates it, checking that every
// referenced image exists under baseDir.
func Parse(data []byte, baseDir string) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	f.resolvePaths(baseDir)
	if err := f.validate(); err != nil {
		return nil, err
	}

	c := &Catalog{
		products:  f.Floors,
		samples:   f.Samples,
		byProduct: make(map[string]int, len(f.Floors)),
		bySample:  make(map[string]int, len(f.Samples)),
	}
	for i, p := range f.Floors {
		c.byProduct[p.ID] = i
	}
	for i, s := range f.Samples {
		c.bySample[s.ID] = i
	}
	return c, nil
}

func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func (f *file) resolvePaths(baseDir string) {
	for i := range f.Floors {
		p := &f.Floors[i]
		for j, ref := range p.ReferenceImages {
			p.ReferenceImages[j] = resolve(baseDir, ref)
		}
		p.MaskImage = resolve(baseDir, p.MaskImage)
	}
	for i := range f.Samples {
		f.Samples[i].Image = resolve(baseDir, f.Samples[i].Image)
	}
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

func (f *file) validate() error {
	var errs []string
	if len(f.Floors) == 0 {
		errs = append(errs, "at least one floor is required")
	}

	seen := make(map[string]bool)
	for i, p := range f.Floors {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("floors[%d].id is required", i))
		} else if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("floors[%d].id %q is duplicated", i, p.ID))
		}
		seen[p.ID] = true
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("floors[%d].name is required", i))
		}
		if len(p.ReferenceImages) == 0 {
			errs = append(errs, fmt.Sprintf("floors[%d].reference_images needs at least one image", i))
		}
		for j, ref := range p.ReferenceImages {
			if err := checkFile(ref); err != nil {
				errs = append(errs, fmt.Sprintf("floors[%d].reference_images[%d]: %v", i, j, err))
			}
		}
		if p.MaskImage != "" {
			if err := checkFile(p.MaskImage); err != nil {
				errs = append(errs, fmt.Sprintf("floors[%d].mask_image: %v", i, err))
			}
		}
	}

	seen = make(map[string]bool)
	for i, s := range f.Samples {
		if s.ID == "" {
			errs = append(errs, fmt.Sprintf("samples[%d].id is required", i))
		} else if seen[s.ID] {
			errs = append(errs, fmt.Sprintf("samples[%d].id %q is duplicated", i, s.ID))
		}
		seen[s.ID] = true
		if s.Image == "" {
			errs = append(errs, fmt.Sprintf("samples[%d].image is required", i))
		} else if err := checkFile(s.Image); err != nil {
			errs = append(errs, fmt.Sprintf("samples[%d].image: %v", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("catalog: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LookupProduct returns the product with the given id.
func (c *Catalog) LookupProduct(id string) (models.Product, error) {
	i, ok := c.byProduct[id]
	if !ok {
		return models.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return c.products[i], nil
}

// LookupSample returns the preset room with the given id.
func (c *Catalog) LookupSample(id string) (models.Sample, bool) {
	i, ok := c.bySample[id]
	if !ok {
		return models.Sample{}, false
	}
	return c.samples[i], true
}

// ListProducts returns every product in catalog order.
func (c *Catalog) ListProducts() []models.Product {
	out := make([]models.Product, len(c.products))
	copy(out, c.products)
	return out
}

// ListSamples returns every preset room in catalog order.
func (c *Catalog) ListSamples() []models.Sample {
	out := make([]models.Sample, len(c.samples))
	copy(out, c.samples)
	return out
}

// ReadImage loads a catalog image (reference, mask or sample) from disk.
func (c *Catalog) ReadImage(path string) (models.ImageData, error) {
	return imagefile.Read(path)
}
