package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/photopipe/internal/detect"
	"github.com/your-org/photopipe/internal/match"
	"github.com/your-org/photopipe/internal/models"
	"github.com/your-org/photopipe/internal/observability"
	"github.com/your-org/photopipe/internal/storage"
)

var (
	// ErrPhotoMissing: the photo row is gone. Terminal, never redelivered.
	ErrPhotoMissing = errors.New("photo not found")
	// ErrSourceMissing: the original blob is gone. Terminal.
	ErrSourceMissing = errors.New("source image not found")
	// ErrDetectionFailed wraps detection-service errors. Retryable.
	ErrDetectionFailed = errors.New("face detection failed")
)

// Store is the subset of the database layer the pipeline needs.
type Store interface {
	GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
	CountFacesByPhoto(ctx context.Context, photoID uuid.UUID) (int, error)
	CreateFace(ctx context.Context, face *models.Face) error
	UpdateFaceThumbnail(ctx context.Context, faceID uuid.UUID, key string) error
	CreatePerson(ctx context.Context, person *models.Person) error
	AssignFaceToPerson(ctx context.Context, faceID, personID uuid.UUID) error
	RepresentativeEmbeddings(ctx context.Context) ([]match.Representative, error)
}

// Detector is the external face detection boundary.
type Detector interface {
	Detect(ctx context.Context, imageRef string) (*detect.Result, error)
}

// Pipeline turns a photo into persisted faces clustered into people.
type Pipeline struct {
	store             Store
	blobs             storage.BlobStore
	detector          Detector
	tolerance         float64
	defaultConfidence float64
	log               *slog.Logger
}

func NewPipeline(store Store, blobs storage.BlobStore, detector Detector, tolerance, defaultConfidence float64) *Pipeline {
	return &Pipeline{
		store:             store,
		blobs:             blobs,
		detector:          detector,
		tolerance:         tolerance,
		defaultConfidence: defaultConfidence,
		log:               slog.With("component", "ingest"),
	}
}

// Ingest detects faces in the photo and assigns each one to a person,
// creating people as needed. Safe under redelivery: a photo that already has
// faces is considered done.
func (p *Pipeline) Ingest(ctx context.Context, photoID uuid.UUID) error {
	start := time.Now()
	defer func() {
		observability.JobDuration.WithLabelValues(models.JobIngest).Observe(time.Since(start).Seconds())
	}()

	photo, err := p.store.GetPhoto(ctx, photoID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrPhotoMissing, photoID)
		}
		return fmt.Errorf("load photo: %w", err)
	}

	existing, err := p.store.CountFacesByPhoto(ctx, photoID)
	if err != nil {
		return fmt.Errorf("count existing faces: %w", err)
	}
	if existing > 0 {
		p.log.Info("photo already ingested", "photo_id", photoID, "faces", existing)
		return nil
	}

	ok, err := p.blobs.Exists(ctx, photo.FilePath)
	if err != nil {
		return fmt.Errorf("check source blob: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSourceMissing, photo.FilePath)
	}

	result, err := p.detector.Detect(ctx, photo.FilePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDetectionFailed, err)
	}

	observability.PhotosIngested.Inc()
	if len(result.Faces) == 0 {
		p.log.Info("no faces detected", "photo_id", photoID)
		return nil
	}

	// One snapshot per run. People created during the run are appended so
	// several new faces of the same person collapse into one cluster.
	reps, err := p.store.RepresentativeEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("load representatives: %w", err)
	}

	for _, detection := range result.Faces {
		face, err := p.persistFace(ctx, photoID, detection)
		if err != nil {
			p.log.Error("persist face failed", "photo_id", photoID, "error", err)
			continue
		}
		observability.FacesDetected.Inc()

		if len(face.Embedding) == 0 {
			continue
		}
		reps = p.clusterFace(ctx, face, reps)
	}
	return nil
}

func (p *Pipeline) persistFace(ctx context.Context, photoID uuid.UUID, d detect.Face) (*models.Face, error) {
	confidence := d.Confidence
	if confidence == 0 {
		confidence = p.defaultConfidence
	}

	face := &models.Face{
		ID:         uuid.New(),
		PhotoID:    photoID,
		Embedding:  d.Encoding,
		BoxLeft:    d.BoundingBox.Left,
		BoxTop:     d.BoundingBox.Top,
		BoxWidth:   d.BoundingBox.Width,
		BoxHeight:  d.BoundingBox.Height,
		Confidence: confidence,
	}
	if err := p.store.CreateFace(ctx, face); err != nil {
		return nil, err
	}

	if len(d.Thumbnail) > 0 {
		p.saveCrop(ctx, face, d.Thumbnail)
	}
	return face, nil
}

// saveCrop stores the face crop. Best effort: the crop is a UI nicety and
// must never fail the ingestion of the face itself.
func (p *Pipeline) saveCrop(ctx context.Context, face *models.Face, crop []byte) {
	key := fmt.Sprintf("face_thumbnails/face_%s_%s.jpg", face.ID, uuid.NewString()[:8])
	if err := p.blobs.Put(ctx, key, bytes.NewReader(crop), int64(len(crop)), "image/jpeg"); err != nil {
		p.log.Warn("store face crop failed", "face_id", face.ID, "error", err)
		return
	}
	if err := p.store.UpdateFaceThumbnail(ctx, face.ID, key); err != nil {
		p.log.Warn("record face crop failed", "face_id", face.ID, "error", err)
		return
	}
	face.ThumbnailKey = &key
}

// clusterFace assigns the face to the best-matching person or creates a new
// one, returning the representative set with any new person appended. Errors
// leave the face unassigned; the rest of the photo still ingests.
func (p *Pipeline) clusterFace(ctx context.Context, face *models.Face, reps []match.Representative) []match.Representative {
	res, err := match.BestMatch(face.Embedding, reps, p.tolerance)
	if err != nil {
		p.log.Error("match failed", "face_id", face.ID, "error", err)
		return reps
	}

	if res.Matched {
		if err := p.store.AssignFaceToPerson(ctx, face.ID, res.PersonID); err != nil {
			p.log.Error("assign face failed", "face_id", face.ID, "person_id", res.PersonID, "error", err)
			return reps
		}
		observability.FacesMatched.Inc()
		p.log.Debug("face matched", "face_id", face.ID, "person_id", res.PersonID, "distance", res.Distance)
		return reps
	}

	person := &models.Person{ID: uuid.New()}
	if err := p.store.CreatePerson(ctx, person); err != nil {
		p.log.Error("create person failed", "face_id", face.ID, "error", err)
		return reps
	}
	if err := p.store.AssignFaceToPerson(ctx, face.ID, person.ID); err != nil {
		p.log.Error("assign face failed", "face_id", face.ID, "person_id", person.ID, "error", err)
		return reps
	}
	observability.PeopleCreated.Inc()
	p.log.Info("person created", "person_id", person.ID, "face_id", face.ID)

	return append(reps, match.Representative{PersonID: person.ID, Embedding: face.Embedding})
}
