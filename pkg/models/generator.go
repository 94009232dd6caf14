// Package models contains shared data models used across the floorcast codebase.
package models

import (
	"context"
	"errors"
)

// Sentinel errors returned by ImageGenerator implementations.
var (
	ErrProviderUnavailable = errors.New("image generator unavailable")
	ErrInferenceTimeout    = errors.New("image generation timeout")
	ErrInvalidResponse     = errors.New("image generator returned invalid response")
	ErrNoImage             = errors.New("image generator returned no image")
	ErrRejected            = errors.New("image generator rejected the request")
)

// ImageGenerator is the boundary to the external image-generation model.
// Never call a specific backend directly; always inject this interface.
type ImageGenerator interface {
	// Generate renders the room with the product applied and returns every
	// image the model produced, in order.
	Generate(ctx context.Context, req GenerationRequest) ([]ImageData, error)
	// Name returns the generator identifier (e.g., "gemini", "passthrough").
	Name() string
}

// GenerationRequest is the input to a single generator call.
type GenerationRequest struct {
	Room       ImageData
	References []ImageData // ordered as listed in the catalog
	Mask       *ImageData
	Prompt     string
}

// ImageData is an encoded image together with its MIME type.
type ImageData struct {
	MIMEType string
	Data     []byte
}
