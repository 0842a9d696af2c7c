package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shinyyama/abracadabra/internal/model"
	"github.com/shinyyama/abracadabra/internal/reqctx"
	"google.golang.org/genai"
)

// contentGenerator is the slice of *genai.Models this package uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIImageClient performs the same transform as GeminiImageClient through
// the official SDK.
type GenAIImageClient struct {
	models contentGenerator
	model  string
}

func NewGenAIImageClient(ctx context.Context, apiKey, model string, httpClient *http.Client) (*GenAIImageClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &GenAIImageClient{models: client.Models, model: model}, nil
}

func (c *GenAIImageClient) Model() string { return c.model }

func (c *GenAIImageClient) Transform(ctx context.Context, img model.EncodedImage, instruction string) (*model.EncodedImage, error) {
	rid := reqctx.RID(ctx)
	sid := reqctx.SessionID(ctx)

	raw, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(raw, img.MIMEType),
		genai.NewPartFromText(instruction),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage)},
	}

	start := time.Now()
	log.Info().Str("rid", rid).Str("session", sid).Str("stage", "gemini_start").
		Str("transport", "sdk").Str("model", c.model).Int("image_bytes", len(raw)).Msg("image transform")
	res, err := c.models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		log.Warn().Str("rid", rid).Str("session", sid).Str("stage", "gemini_fail").Err(err).Msg("image transform")
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	if res != nil {
		for _, cand := range res.Candidates {
			if cand == nil || cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
					continue
				}
				log.Info().Str("rid", rid).Str("session", sid).Str("stage", "gemini_done").
					Str("mime", part.InlineData.MIMEType).Int("output_bytes", len(part.InlineData.Data)).
					Dur("duration", time.Since(start)).Msg("image transform")
				return &model.EncodedImage{
					Data:     base64.StdEncoding.EncodeToString(part.InlineData.Data),
					MIMEType: part.InlineData.MIMEType,
				}, nil
			}
		}
	}
	return nil, ErrNoImageData
}
