// Package storage is the durable object store for merge artifacts.
package storage

import (
	"context"
	"time"
)

// ObjectStore is the blob store merged videos and thumbnails are written to.
type ObjectStore interface {
	// Upload copies the local file at path to key and returns its URL.
	Upload(ctx context.Context, path, key, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
