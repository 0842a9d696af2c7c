package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shinyyama/abracadabra/internal/model"
	"github.com/shinyyama/abracadabra/internal/reqctx"
)

const (
	DefaultModel   = "gemini-2.5-flash-image"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

var (
	ErrMissingAPIKey = errors.New("GEMINI_API_KEY is not set")
	ErrNoImageData   = errors.New("no image data received")
)

// GeminiImageClient talks to the generateContent REST endpoint directly.
// The image travels as base64 inline data in both directions.
type GeminiImageClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiImageClient refuses to build a client without an API key.
// A nil httpClient means a plain client with no timeout of its own.
func NewGeminiImageClient(apiKey, model string, httpClient *http.Client) (*GeminiImageClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if model == "" {
		model = DefaultModel
	}
	return &GeminiImageClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: httpClient,
	}, nil
}

func (c *GeminiImageClient) Model() string { return c.model }

type restRequest struct {
	Contents         []restContent         `json:"contents"`
	GenerationConfig *restGenerationConfig `json:"generationConfig,omitempty"`
}

type restContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []restPart `json:"parts"`
}

type restPart struct {
	Text       string    `json:"text,omitempty"`
	InlineData *restBlob `json:"inlineData,omitempty"`
}

type restBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type restGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type restResponse struct {
	Candidates []restContentHolder `json:"candidates"`
	Error      *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type restContentHolder struct {
	Content restContent `json:"content"`
}

// Transform sends one image and its instruction and returns the edited image.
// Exactly one attempt is made.
func (c *GeminiImageClient) Transform(ctx context.Context, img model.EncodedImage, instruction string) (*model.EncodedImage, error) {
	rid := reqctx.RID(ctx)
	sid := reqctx.SessionID(ctx)

	body := restRequest{
		Contents: []restContent{{
			Role: "user",
			Parts: []restPart{
				{InlineData: &restBlob{MIMEType: img.MIMEType, Data: img.Data}},
				{Text: instruction},
			},
		}},
		GenerationConfig: &restGenerationConfig{ResponseModalities: []string{"IMAGE"}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	log.Info().Str("rid", rid).Str("session", sid).Str("stage", "gemini_start").
		Str("transport", "rest").Str("model", c.model).Int("image_b64_len", len(img.Data)).Msg("image transform")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Warn().Str("rid", rid).Str("session", sid).Str("stage", "gemini_fail").Err(err).Msg("image transform")
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	resBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode >= 300 {
		log.Warn().Str("rid", rid).Str("session", sid).Str("stage", "gemini_fail").
			Int("status", resp.StatusCode).Str("body", truncate(string(resBody), 500)).Msg("image transform")
		return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, truncate(string(resBody), 200))
	}

	var parsed restResponse
	if err := json.Unmarshal(resBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("gemini error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}

	for _, cand := range parsed.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				log.Info().Str("rid", rid).Str("session", sid).Str("stage", "gemini_done").
					Str("mime", part.InlineData.MIMEType).Dur("duration", time.Since(start)).Msg("image transform")
				return &model.EncodedImage{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
			}
		}
	}
	return nil, ErrNoImageData
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
