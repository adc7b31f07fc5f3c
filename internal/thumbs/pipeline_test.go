package thumbs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/photopipe/internal/config"
	"github.com/your-org/photopipe/internal/models"
	"github.com/your-org/photopipe/internal/storage"
)

type fakeStore struct {
	photos map[uuid.UUID]*models.Photo
}

func (s *fakeStore) GetPhoto(_ context.Context, id uuid.UUID) (*models.Photo, error) {
	p, ok := s.photos[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) UpdatePhotoStatus(_ context.Context, id uuid.UUID, next models.ProcessingStatus) error {
	p, ok := s.photos[id]
	if !ok {
		return storage.ErrNotFound
	}
	if p.ProcessingStatus == next {
		return nil
	}
	if !p.ProcessingStatus.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", storage.ErrIllegalTransition, p.ProcessingStatus, next)
	}
	p.ProcessingStatus = next
	return nil
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func setup(t *testing.T, srcW, srcH int, sizes []config.ThumbnailSize) (*Pipeline, *fakeStore, *storage.LocalStore, uuid.UUID) {
	t.Helper()

	blobs, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := &fakeStore{photos: map[uuid.UUID]*models.Photo{}}

	photoID := uuid.New()
	key := "photos/" + photoID.String() + ".jpg"
	store.photos[photoID] = &models.Photo{
		ID:               photoID,
		FilePath:         key,
		ProcessingStatus: models.StatusPending,
	}

	if srcW > 0 {
		data := jpegBytes(t, srcW, srcH)
		if err := blobs.Put(context.Background(), key, bytes.NewReader(data), int64(len(data)), "image/jpeg"); err != nil {
			t.Fatal(err)
		}
	}

	return NewPipeline(store, blobs, sizes), store, blobs, photoID
}

func readDerivative(t *testing.T, blobs *storage.LocalStore, filePath, size string) []byte {
	t.Helper()
	r, err := blobs.Get(context.Background(), DerivativeKey(filePath, size))
	if err != nil {
		t.Fatalf("derivative %s: %v", size, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestGenerateFitsWithinBox(t *testing.T) {
	sizes := []config.ThumbnailSize{
		{Name: "small", Width: 100, Height: 100},
		{Name: "medium", Width: 300, Height: 300},
	}
	p, store, blobs, photoID := setup(t, 400, 300, sizes)

	if err := p.Generate(context.Background(), photoID); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := store.photos[photoID].ProcessingStatus; got != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}

	filePath := store.photos[photoID].FilePath
	tests := []struct {
		size  string
		wantW int
		wantH int
	}{
		{"small", 100, 75},
		{"medium", 300, 225},
	}
	for _, tt := range tests {
		t.Run(tt.size, func(t *testing.T) {
			data := readDerivative(t, blobs, filePath, tt.size)
			img, format, err := image.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatal(err)
			}
			if format != "jpeg" {
				t.Errorf("format = %s, want jpeg", format)
			}
			if img.Bounds().Dx() != tt.wantW || img.Bounds().Dy() != tt.wantH {
				t.Errorf("dimensions = %dx%d, want %dx%d",
					img.Bounds().Dx(), img.Bounds().Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestGenerateNeverUpscales(t *testing.T) {
	sizes := []config.ThumbnailSize{{Name: "large", Width: 2048, Height: 2048}}
	p, store, blobs, photoID := setup(t, 60, 40, sizes)

	if err := p.Generate(context.Background(), photoID); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	data := readDerivative(t, blobs, store.photos[photoID].FilePath, "large")
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 60 || img.Bounds().Dy() != 40 {
		t.Errorf("dimensions = %dx%d, want original 60x40",
			img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestGenerateIdempotent(t *testing.T) {
	sizes := []config.ThumbnailSize{{Name: "small", Width: 100, Height: 100}}
	p, store, blobs, photoID := setup(t, 400, 300, sizes)

	if err := p.Generate(context.Background(), photoID); err != nil {
		t.Fatalf("first Generate() error = %v", err)
	}
	filePath := store.photos[photoID].FilePath
	first := readDerivative(t, blobs, filePath, "small")

	if err := p.Generate(context.Background(), photoID); err != nil {
		t.Fatalf("second Generate() error = %v", err)
	}
	second := readDerivative(t, blobs, filePath, "small")

	if !bytes.Equal(first, second) {
		t.Error("rerun rewrote an existing derivative")
	}
	if got := store.photos[photoID].ProcessingStatus; got != models.StatusCompleted {
		t.Errorf("status = %s, want completed", got)
	}
}

// exifJPEGBytes encodes a JPEG and splices in an APP1 segment holding a
// little-endian TIFF block with just the orientation tag.
func exifJPEGBytes(t *testing.T, w, h, orientation int) []byte {
	t.Helper()
	plain := jpegBytes(t, w, h)

	tiff := []byte{
		'I', 'I', 0x2a, 0x00, // little-endian TIFF
		0x08, 0x00, 0x00, 0x00, // IFD0 offset
		0x01, 0x00, // one entry
		0x12, 0x01, // tag 0x0112 orientation
		0x03, 0x00, // type SHORT
		0x01, 0x00, 0x00, 0x00, // count
		byte(orientation), 0x00, 0x00, 0x00, // value
		0x00, 0x00, 0x00, 0x00, // no next IFD
	}
	payload := append([]byte("Exif\x00\x00"), tiff...)
	app1 := []byte{0xff, 0xe1, byte((len(payload) + 2) >> 8), byte(len(payload) + 2)}
	app1 = append(app1, payload...)

	// Insert right after SOI.
	out := make([]byte, 0, len(plain)+len(app1))
	out = append(out, plain[:2]...)
	out = append(out, app1...)
	out = append(out, plain[2:]...)
	return out
}

func TestGenerateStripsMetadata(t *testing.T) {
	sizes := []config.ThumbnailSize{{Name: "small", Width: 100, Height: 100}}
	p, store, blobs, photoID := setup(t, 0, 0, sizes)

	// 40x20 original stored rotated, orientation 6 says "rotate to upright".
	data := exifJPEGBytes(t, 40, 20, 6)
	key := store.photos[photoID].FilePath
	if err := blobs.Put(context.Background(), key, bytes.NewReader(data), int64(len(data)), "image/jpeg"); err != nil {
		t.Fatal(err)
	}

	if err := p.Generate(context.Background(), photoID); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	derived := readDerivative(t, blobs, key, "small")

	// The orientation tag was honored, so the derivative is upright.
	img, _, err := image.Decode(bytes.NewReader(derived))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 40 {
		t.Errorf("dimensions = %dx%d, want upright 20x40",
			img.Bounds().Dx(), img.Bounds().Dy())
	}

	// And stripped: no APP1 segment, no EXIF header, anywhere in the file.
	if bytes.Contains(derived, []byte{0xff, 0xe1}) {
		t.Error("derivative contains an APP1 marker")
	}
	if bytes.Contains(derived, []byte("Exif\x00\x00")) {
		t.Error("derivative contains an EXIF header")
	}
}

func TestGenerateSourceMissing(t *testing.T) {
	sizes := []config.ThumbnailSize{{Name: "small", Width: 100, Height: 100}}
	p, store, blobs, photoID := setup(t, 0, 0, sizes)

	err := p.Generate(context.Background(), photoID)
	if !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("err = %v, want ErrSourceMissing", err)
	}
	if got := store.photos[photoID].ProcessingStatus; got != models.StatusFailed {
		t.Errorf("status = %s, want failed", got)
	}

	ok, err := blobs.Exists(context.Background(), DerivativeKey(store.photos[photoID].FilePath, "small"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("derivative written despite missing source")
	}
}

func TestGeneratePhotoMissing(t *testing.T) {
	sizes := []config.ThumbnailSize{{Name: "small", Width: 100, Height: 100}}
	p, _, _, _ := setup(t, 400, 300, sizes)

	err := p.Generate(context.Background(), uuid.New())
	if !errors.Is(err, ErrPhotoMissing) {
		t.Fatalf("err = %v, want ErrPhotoMissing", err)
	}
}

func TestGenerateRetryAfterFailure(t *testing.T) {
	sizes := []config.ThumbnailSize{{Name: "small", Width: 100, Height: 100}}
	p, store, _, photoID := setup(t, 0, 0, sizes)

	if err := p.Generate(context.Background(), photoID); !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("err = %v, want ErrSourceMissing", err)
	}

	// Source shows up again, the failed photo must be processable.
	data := jpegBytes(t, 400, 300)
	blobs := p.blobs
	if err := blobs.Put(context.Background(), store.photos[photoID].FilePath, bytes.NewReader(data), int64(len(data)), "image/jpeg"); err != nil {
		t.Fatal(err)
	}

	if err := p.Generate(context.Background(), photoID); err != nil {
		t.Fatalf("retry Generate() error = %v", err)
	}
	if got := store.photos[photoID].ProcessingStatus; got != models.StatusCompleted {
		t.Errorf("status = %s, want completed", got)
	}
}

func TestDerivativeKey(t *testing.T) {
	tests := []struct {
		filePath string
		size     string
		want     string
	}{
		{"photos/abc.jpg", "small", "photos/abc/small.jpg"},
		{"photos/abc.PNG", "large", "photos/abc/large.jpg"},
		{"photos/noext", "medium", "photos/noext/medium.jpg"},
	}
	for _, tt := range tests {
		if got := DerivativeKey(tt.filePath, tt.size); got != tt.want {
			t.Errorf("DerivativeKey(%q, %q) = %q, want %q", tt.filePath, tt.size, got, tt.want)
		}
	}
}
