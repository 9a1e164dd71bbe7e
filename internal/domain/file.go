package domain

import (
	"context"
)

// FileRepository stores template preview images
type FileRepository interface {
	// Upload saves a file under key and returns its public URL
	Upload(ctx context.Context, file []byte, key string, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}
