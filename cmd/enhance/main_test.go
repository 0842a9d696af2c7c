package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shinyyama/abracadabra/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	prompt string
	out    []byte
}

func (r *recordingClient) Transform(ctx context.Context, img model.EncodedImage, instruction string) (*model.EncodedImage, error) {
	r.prompt = instruction
	return &model.EncodedImage{Data: base64.StdEncoding.EncodeToString(r.out), MIMEType: "image/png"}, nil
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 3))))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestPrintPrompt(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--print-prompt", "--background", "Solid White", "--text", "New Arrival", "--font-size", "Large"})
	require.NoError(t, cmd.Execute())

	got := out.String()
	assert.True(t, strings.HasPrefix(got, "Please transform this product photo"))
	assert.Contains(t, got, "solid white background (#FFFFFF)")
	assert.Contains(t, got, `5. Add the text "New Arrival"`)
	assert.Contains(t, got, "a large, prominent font size")
}

func TestRequiresInput(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}

func TestEnhanceWritesResult(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "photo.png")
	outPath := filepath.Join(dir, "out.png")
	writePNG(t, in)

	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetContext(context.Background())

	client := &recordingClient{out: []byte("enhanced-bytes")}
	f := flags{
		input:      in,
		output:     outPath,
		background: "Marble",
		palette:    "Default",
		effect:     "Smoke",
		font:       "Inter (Sans-serif)",
		fontSize:   "Medium",
		fontColor:  "#FFFFFF",
	}
	require.NoError(t, enhance(cmd, client, f))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("enhanced-bytes"), data)
	assert.Contains(t, client.prompt, "marble texture")
	assert.Contains(t, client.prompt, "smoke")
	assert.Contains(t, stdout.String(), outPath)
}
