package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter writes objects to blob storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, body io.Reader, contentType string) error
}

// BlobReader reads objects back from blob storage.
type BlobReader interface {
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Archiver moves aged kline rows out of hot storage into blob storage.
type Archiver interface {
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
