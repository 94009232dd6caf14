// Package passthrough provides an ImageGenerator that returns the room image
// unchanged. It lets the server run end to end without model credentials.
package passthrough

import (
	"context"

	"github.com/kiranshivaraju/floorcast/pkg/models"
)

// Provider echoes the room image back as the generated output.
type Provider struct{}

func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string { return "passthrough" }

func (p *Provider) Generate(ctx context.Context, req models.GenerationRequest) ([]models.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Room.Data) == 0 {
		return nil, models.ErrNoImage
	}
	out := make([]byte, len(req.Room.Data))
	copy(out, req.Room.Data)
	return []models.ImageData{{MIMEType: req.Room.MIMEType, Data: out}}, nil
}

var _ models.ImageGenerator = (*Provider)(nil)
