package storage

import (
	"context"
	"fmt"

	"github.com/your-org/photopipe/internal/config"
)

// NewBlobStore builds the configured blob backend.
func NewBlobStore(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocalStore(cfg.Root)
	case "s3":
		return NewMinIOStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
