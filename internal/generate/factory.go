// Package generate selects the image-generation backend.
package generate

import (
	"fmt"

	"github.com/kiranshivaraju/floorcast/internal/config"
	"github.com/kiranshivaraju/floorcast/internal/generate/gemini"
	"github.com/kiranshivaraju/floorcast/internal/generate/passthrough"
	"github.com/kiranshivaraju/floorcast/pkg/models"
)

// NewGenerator constructs the image generator named by cfg.Provider.
// Called once at server startup.
func NewGenerator(cfg config.GenerationConfig) (models.ImageGenerator, error) {
	switch cfg.Provider {
	case "gemini":
		p, err := gemini.NewProvider(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "passthrough":
		return passthrough.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q: must be one of gemini, passthrough", cfg.Provider)
	}
}
