package blob

import (
	"context"
	"io"
)

type Category string

const (
	CategoryAudio    Category = "audio"
	CategoryDocument Category = "document"
)

// Store abstracts the object storage that owns audio uploads and rendered
// documents. Consultations hold only keys into it.
type Store interface {
	Upload(ctx context.Context, category Category, key string, contentType string, r io.Reader) error
	Download(ctx context.Context, category Category, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, category Category, key string) (bool, error)
}
