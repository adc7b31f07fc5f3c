package thumbs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/photopipe/internal/config"
	"github.com/your-org/photopipe/internal/models"
	"github.com/your-org/photopipe/internal/observability"
	"github.com/your-org/photopipe/internal/storage"
)

var (
	// ErrPhotoMissing: the photo row is gone. Terminal.
	ErrPhotoMissing = errors.New("photo not found")
	// ErrSourceMissing: the original blob is gone. Terminal, the photo is
	// marked failed and no derivative is written.
	ErrSourceMissing = errors.New("source image not found")
)

// Store is the subset of the database layer the pipeline needs.
type Store interface {
	GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
	UpdatePhotoStatus(ctx context.Context, id uuid.UUID, next models.ProcessingStatus) error
}

// Pipeline produces the configured derivative set for a photo and drives its
// processing status.
type Pipeline struct {
	store Store
	blobs storage.BlobStore
	sizes []config.ThumbnailSize
	log   *slog.Logger
}

func NewPipeline(store Store, blobs storage.BlobStore, sizes []config.ThumbnailSize) *Pipeline {
	return &Pipeline{
		store: store,
		blobs: blobs,
		sizes: sizes,
		log:   slog.With("component", "thumbs"),
	}
}

// DerivativeKey returns the blob key of one derivative of an original.
func DerivativeKey(filePath, sizeName string) string {
	stem := strings.TrimSuffix(filePath, path.Ext(filePath))
	return stem + "/" + sizeName + ".jpg"
}

// Generate writes every missing derivative for the photo. Safe under
// redelivery: existing derivatives are kept as-is, and a completed photo with
// all derivatives present is a no-op.
func (p *Pipeline) Generate(ctx context.Context, photoID uuid.UUID) error {
	start := time.Now()
	defer func() {
		observability.JobDuration.WithLabelValues(models.JobThumbnails).Observe(time.Since(start).Seconds())
	}()

	photo, err := p.store.GetPhoto(ctx, photoID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrPhotoMissing, photoID)
		}
		return fmt.Errorf("load photo: %w", err)
	}

	if photo.ProcessingStatus == models.StatusCompleted {
		missing, err := p.missingSizes(ctx, photo.FilePath)
		if err != nil {
			return err
		}
		if len(missing) == 0 {
			p.log.Info("derivatives already present", "photo_id", photoID)
			return nil
		}
		// A derivative went missing after completion. Reset first, the
		// machine has no completed -> processing edge.
		if err := p.store.UpdatePhotoStatus(ctx, photoID, models.StatusPending); err != nil {
			return fmt.Errorf("reset completed photo: %w", err)
		}
	}

	ok, err := p.blobs.Exists(ctx, photo.FilePath)
	if err != nil {
		return fmt.Errorf("check source blob: %w", err)
	}
	if !ok {
		if err := p.store.UpdatePhotoStatus(ctx, photoID, models.StatusFailed); err != nil {
			p.log.Error("mark photo failed", "photo_id", photoID, "error", err)
		}
		return fmt.Errorf("%w: %s", ErrSourceMissing, photo.FilePath)
	}

	if err := p.store.UpdatePhotoStatus(ctx, photoID, models.StatusProcessing); err != nil {
		return fmt.Errorf("mark photo processing: %w", err)
	}

	if err := p.generateAll(ctx, photo); err != nil {
		if serr := p.store.UpdatePhotoStatus(ctx, photoID, models.StatusFailed); serr != nil {
			p.log.Error("mark photo failed", "photo_id", photoID, "error", serr)
		}
		return err
	}

	if err := p.store.UpdatePhotoStatus(ctx, photoID, models.StatusCompleted); err != nil {
		return fmt.Errorf("mark photo completed: %w", err)
	}
	p.log.Info("derivatives generated", "photo_id", photoID, "sizes", len(p.sizes))
	return nil
}

func (p *Pipeline) missingSizes(ctx context.Context, filePath string) ([]config.ThumbnailSize, error) {
	var missing []config.ThumbnailSize
	for _, size := range p.sizes {
		ok, err := p.blobs.Exists(ctx, DerivativeKey(filePath, size.Name))
		if err != nil {
			return nil, fmt.Errorf("check derivative %s: %w", size.Name, err)
		}
		if !ok {
			missing = append(missing, size)
		}
	}
	return missing, nil
}

func (p *Pipeline) generateAll(ctx context.Context, photo *models.Photo) error {
	// The original is decoded at most once, and only if some size is
	// actually missing.
	var src image.Image

	for _, size := range p.sizes {
		key := DerivativeKey(photo.FilePath, size.Name)
		exists, err := p.blobs.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("check derivative %s: %w", size.Name, err)
		}
		if exists {
			continue
		}

		if src == nil {
			src, err = p.loadOriginal(ctx, photo.FilePath)
			if err != nil {
				return err
			}
		}

		data, err := encodeJPEG(fitWithin(src, size.Width, size.Height))
		if err != nil {
			return fmt.Errorf("derivative %s: %w", size.Name, err)
		}
		if err := p.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "image/jpeg"); err != nil {
			return fmt.Errorf("store derivative %s: %w", size.Name, err)
		}
		observability.ThumbnailsGenerated.WithLabelValues(size.Name).Inc()
	}
	return nil
}

func (p *Pipeline) loadOriginal(ctx context.Context, filePath string) (image.Image, error) {
	r, err := p.blobs.Get(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("open original: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read original: %w", err)
	}
	return decodeOriented(data)
}
