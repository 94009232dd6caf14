// Package resolver validates the inputs of a job request and maps them to
// readable image locations.
package resolver

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/floorcast/pkg/models"
)

var (
	ErrUnknownProduct = errors.New("unknown product")
	ErrUnknownSample  = errors.New("unknown sample")
	ErrUnknownUpload  = errors.New("unknown upload")
	ErrEmptyInput     = errors.New("no input images given")
	ErrInvalidSource  = errors.New("invalid source")
)

// Catalog is the subset of the reference catalog the resolver needs.
type Catalog interface {
	LookupProduct(id string) (models.Product, error)
	LookupSample(id string) (models.Sample, bool)
	ReadImage(path string) (models.ImageData, error)
}

// Uploads is the subset of the upload store the resolver needs.
type Uploads interface {
	Exists(ref string) bool
	Path(ref string) (string, error)
	Read(ref string) (models.ImageData, error)
}

// Input is one resolved room image: the identifier the caller supplied and
// the location it resolved to.
type Input struct {
	ID  string
	Ref string
}

// Resolver checks job inputs against the catalog and upload store.
type Resolver struct {
	catalog Catalog
	uploads Uploads
}

// New returns a Resolver.
func New(catalog Catalog, uploads Uploads) *Resolver {
	return &Resolver{catalog: catalog, uploads: uploads}
}

// Resolve validates floorID and every id in ids for the given source and
// returns the resolved inputs in the order supplied. It reads no image bytes.
func (r *Resolver) Resolve(source models.Source, ids []string, floorID string) ([]Input, error) {
	if _, err := r.catalog.LookupProduct(floorID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, floorID)
	}
	if !source.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}
	if len(ids) == 0 {
		return nil, ErrEmptyInput
	}

	inputs := make([]Input, 0, len(ids))
	for _, id := range ids {
		switch source {
		case models.SourceSample:
			s, ok := r.catalog.LookupSample(id)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownSample, id)
			}
			inputs = append(inputs, Input{ID: id, Ref: s.Image})
		case models.SourceUpload:
			if !r.uploads.Exists(id) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownUpload, id)
			}
			p, err := r.uploads.Path(id)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", ErrUnknownUpload, id)
			}
			inputs = append(inputs, Input{ID: id, Ref: p})
		}
	}
	return inputs, nil
}

// Read loads the image bytes for a previously resolved input.
func (r *Resolver) Read(source models.Source, in Input) (models.ImageData, error) {
	switch source {
	case models.SourceSample:
		return r.catalog.ReadImage(in.Ref)
	case models.SourceUpload:
		return r.uploads.Read(in.ID)
	default:
		return models.ImageData{}, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}
}
