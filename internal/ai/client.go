package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shinyyama/abracadabra/internal/model"
)

const (
	TransportSDK  = "sdk"
	TransportREST = "rest"
)

// ImageClient is implemented by both transports.
type ImageClient interface {
	Transform(ctx context.Context, img model.EncodedImage, instruction string) (*model.EncodedImage, error)
	Model() string
}

// NewImageClient builds the client for transport. A zero timeout leaves the
// request unbounded on the client side.
func NewImageClient(ctx context.Context, transport, apiKey, modelName string, timeout time.Duration) (ImageClient, error) {
	httpClient := &http.Client{Timeout: timeout}
	switch transport {
	case TransportSDK, "":
		c, err := NewGenAIImageClient(ctx, apiKey, modelName, httpClient)
		if err != nil {
			return nil, err
		}
		return c, nil
	case TransportREST:
		c, err := NewGeminiImageClient(apiKey, modelName, httpClient)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}
