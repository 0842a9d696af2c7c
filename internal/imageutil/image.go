// Package imageutil handles the byte-level chores around uploaded photos:
// type sniffing, base64 transfer encoding and preview thumbnails.
package imageutil

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/shinyyama/abracadabra/internal/model"
	"golang.org/x/image/draw"
)

// AdvisoryMaxBytes is the size users are told to stay under. It is not enforced.
const AdvisoryMaxBytes = 10 << 20

const DefaultPreviewDimension = 400

var (
	ErrEmpty           = errors.New("image is empty")
	ErrUnsupportedType = errors.New("unsupported image type")
)

var supportedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
}

func Supported(mimeType string) bool {
	return supportedTypes[mimeType]
}

// ReadSource reads an uploaded photo and determines its MIME type from the
// content. The declared type from the client is only used for logging.
func ReadSource(r io.Reader, declaredType string, advisoryMax int64) (*model.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	mimeType := http.DetectContentType(data)
	if !Supported(mimeType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	if declaredType != "" && declaredType != mimeType {
		log.Debug().Str("declared", declaredType).Str("detected", mimeType).Msg("image type mismatch")
	}
	if advisoryMax > 0 && int64(len(data)) > advisoryMax {
		log.Warn().Int("bytes", len(data)).Int64("advisory_max", advisoryMax).Msg("image exceeds advisory size")
	}
	return &model.Image{Data: data, MIMEType: mimeType}, nil
}

func Encode(img model.Image) model.EncodedImage {
	return model.EncodedImage{
		Data:     base64.StdEncoding.EncodeToString(img.Data),
		MIMEType: img.MIMEType,
	}
}

func Decode(enc model.EncodedImage) (*model.Image, error) {
	data, err := base64.StdEncoding.DecodeString(enc.Data)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return &model.Image{Data: data, MIMEType: enc.MIMEType}, nil
}

// Thumbnail scales img so that its longer side is at most maxDimension and
// returns it as JPEG. Smaller images are re-encoded without scaling.
func Thumbnail(img model.Image, maxDimension int) ([]byte, error) {
	if maxDimension <= 0 {
		maxDimension = DefaultPreviewDimension
	}
	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("decode for thumbnail: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxDimension || h > maxDimension {
		if w >= h {
			h = h * maxDimension / w
			w = maxDimension
		} else {
			w = w * maxDimension / h
			h = maxDimension
		}
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// Extension maps a supported MIME type to a file extension.
func Extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
