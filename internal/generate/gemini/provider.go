package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/floorcast/internal/config"
	"github.com/kiranshivaraju/floorcast/pkg/models"
	"google.golang.org/genai"
)

// Provider implements models.ImageGenerator on the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewProvider creates a Gemini provider. cfg.Timeout bounds each call.
func NewProvider(cfg config.GenerationConfig) (*Provider, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     cfg.Gemini.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL: strings.TrimRight(cfg.Gemini.BaseURL, "/") + "/",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	gc := &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(float32(cfg.Temperature)),
		TopP:               genai.Ptr(float32(cfg.TopP)),
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
	if cfg.Seed != nil {
		gc.Seed = genai.Ptr(int32(*cfg.Seed))
	}

	return &Provider{client: client, model: cfg.Gemini.Model, config: gc}, nil
}

func (p *Provider) Name() string { return "gemini" }

// Generate sends the room, optional mask, references and prompt as one user
// turn. Each image is preceded by a text tag (BASE_IMAGE, MASK_IMAGE,
// REFERENCE_IMAGE_n) that the instruction refers to; the prompt goes last.
func (p *Provider) Generate(ctx context.Context, req models.GenerationRequest) ([]models.ImageData, error) {
	contents := []*genai.Content{genai.NewContentFromParts(buildParts(req), genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, p.config)
	if err != nil {
		return nil, classifyError(err)
	}
	return parseImages(resp)
}

func buildParts(req models.GenerationRequest) []*genai.Part {
	parts := []*genai.Part{
		genai.NewPartFromText("BASE_IMAGE"),
		genai.NewPartFromBytes(req.Room.Data, req.Room.MIMEType),
	}
	if req.Mask != nil {
		parts = append(parts,
			genai.NewPartFromText("MASK_IMAGE"),
			genai.NewPartFromBytes(req.Mask.Data, req.Mask.MIMEType))
	}
	for i, ref := range req.References {
		parts = append(parts,
			genai.NewPartFromText(fmt.Sprintf("REFERENCE_IMAGE_%d", i+1)),
			genai.NewPartFromBytes(ref.Data, ref.MIMEType))
	}
	return append(parts, genai.NewPartFromText(req.Prompt))
}

// parseImages collects every inline image in the first candidate.
func parseImages(resp *genai.GenerateContentResponse) ([]models.ImageData, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", models.ErrRejected, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, fmt.Errorf("%w: no candidates", models.ErrNoImage)
	}

	cand := resp.Candidates[0]
	var images []models.ImageData
	var text []string
	if cand.Content != nil {
		for _, pt := range cand.Content.Parts {
			if pt == nil {
				continue
			}
			if pt.InlineData != nil && len(pt.InlineData.Data) > 0 {
				images = append(images, models.ImageData{MIMEType: pt.InlineData.MIMEType, Data: pt.InlineData.Data})
				continue
			}
			if pt.Text != "" {
				text = append(text, pt.Text)
			}
		}
	}

	if len(images) == 0 {
		if cand.FinishReason != "" && cand.FinishReason != genai.FinishReasonStop {
			return nil, fmt.Errorf("%w: finish reason %s", models.ErrRejected, cand.FinishReason)
		}
		msg := strings.TrimSpace(strings.Join(text, " "))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		if msg != "" {
			return nil, fmt.Errorf("%w: model replied %q", models.ErrNoImage, msg)
		}
		return nil, models.ErrNoImage
	}
	return images, nil
}

// classifyError maps SDK and transport errors to sentinel errors.
func classifyError(err error) error {
	if code, msg, ok := apiError(err); ok {
		switch {
		case code == http.StatusTooManyRequests, code == http.StatusUnauthorized, code == http.StatusForbidden, code >= 500:
			return fmt.Errorf("%w: status %d: %s", models.ErrProviderUnavailable, code, msg)
		default:
			return fmt.Errorf("%w: status %d: %s", models.ErrRejected, code, msg)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
		}
		return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}

	// Anything else came back over a 2xx but could not be decoded.
	return fmt.Errorf("%w: %v", models.ErrInvalidResponse, err)
}

func apiError(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Message, true
	}
	return 0, "", false
}

// Compile-time check that Provider implements models.ImageGenerator.
var _ models.ImageGenerator = (*Provider)(nil)
