package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/medscribe/medscribe-backend/internal/platform/envutil"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
)

var ErrNotFound = errors.New("blob: object not found")

type gcsStore struct {
	log            *logger.Logger
	client         *storage.Client
	audioBucket    string
	documentBucket string
}

// NewGCSStore builds the production store. Credentials resolve the same way
// the speech client's do: explicit credentials file env first, then ADC.
func NewGCSStore(ctx context.Context, log *logger.Logger) (Store, error) {
	audioBucket := envutil.String("AUDIO_GCS_BUCKET_NAME", "")
	documentBucket := envutil.String("DOCUMENT_GCS_BUCKET_NAME", "")
	if audioBucket == "" {
		return nil, fmt.Errorf("missing env var AUDIO_GCS_BUCKET_NAME")
	}
	if documentBucket == "" {
		return nil, fmt.Errorf("missing env var DOCUMENT_GCS_BUCKET_NAME")
	}

	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	var client *storage.Client
	var err error
	if creds != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(creds))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	return &gcsStore{
		log:            log.With("service", "BlobStore", "mode", "gcs"),
		client:         client,
		audioBucket:    audioBucket,
		documentBucket: documentBucket,
	}, nil
}

func (s *gcsStore) bucketFor(category Category) string {
	if category == CategoryDocument {
		return s.documentBucket
	}
	return s.audioBucket
}

func (s *gcsStore) Upload(ctx context.Context, category Category, key string, contentType string, r io.Reader) error {
	w := s.client.Bucket(s.bucketFor(category)).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s/%s: %w", category, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize %s/%s: %w", category, key, err)
	}
	return nil
}

func (s *gcsStore) Download(ctx context.Context, category Category, key string) (io.ReadCloser, error) {
	rc, err := s.client.Bucket(s.bucketFor(category)).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", category, key, err)
	}
	return rc, nil
}

func (s *gcsStore) Exists(ctx context.Context, category Category, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucketFor(category)).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
