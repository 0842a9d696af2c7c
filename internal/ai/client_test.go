package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageClient(t *testing.T) {
	ctx := context.Background()

	c, err := NewImageClient(ctx, TransportREST, "key", "", 0)
	require.NoError(t, err)
	assert.IsType(t, &GeminiImageClient{}, c)
	assert.Equal(t, DefaultModel, c.Model())

	_, err = NewImageClient(ctx, TransportREST, " ", "", 0)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewImageClient(ctx, TransportSDK, "", "", 0)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewImageClient(ctx, "carrier-pigeon", "key", "", 0)
	assert.Error(t, err)
}
