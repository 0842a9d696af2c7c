package storage

import (
	"context"
	"fmt"
	"net/url"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shinyyama/abracadabra/internal/imageutil"
	"google.golang.org/api/option"
)

// Publisher uploads a finished image and returns a URL it can be fetched from.
type Publisher interface {
	Publish(ctx context.Context, objectPath string, data []byte, contentType string) (string, error)
}

// GCSPublisher writes objects to a Cloud Storage bucket and attaches a
// firebase download token so the object is reachable without signing.
type GCSPublisher struct {
	client *storage.Client
	bucket string
}

func NewGCSPublisher(ctx context.Context, bucket, credentialsFile string) (*GCSPublisher, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &GCSPublisher{client: client, bucket: bucket}, nil
}

func (p *GCSPublisher) Publish(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	token := uuid.NewString()
	w := p.client.Bucket(p.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	w.ContentDisposition = fmt.Sprintf("attachment; filename=%q", DownloadFilename)
	w.Metadata = map[string]string{
		"firebaseStorageDownloadTokens": token,
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	log.Info().Str("bucket", p.bucket).Str("object", objectPath).Int("bytes", len(data)).Msg("result published")
	return PublicURL(p.bucket, objectPath, token), nil
}

func (p *GCSPublisher) Close() error {
	return p.client.Close()
}

// DownloadFilename is the fixed name offered when a result is downloaded.
const DownloadFilename = "enhanced-product.png"

func ObjectPath(sessionID, contentType string) string {
	return fmt.Sprintf("enhanced/%s/%s%s", sessionID, uuid.NewString(), imageutil.Extension(contentType))
}

func PublicURL(bucket, objectPath, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(objectPath), token)
}
