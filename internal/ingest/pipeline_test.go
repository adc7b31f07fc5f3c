package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/photopipe/internal/detect"
	"github.com/your-org/photopipe/internal/match"
	"github.com/your-org/photopipe/internal/models"
	"github.com/your-org/photopipe/internal/storage"
)

type fakeStore struct {
	photos      map[uuid.UUID]*models.Photo
	faces       []*models.Face
	persons     map[uuid.UUID]*models.Person
	personOrder []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		photos:  map[uuid.UUID]*models.Photo{},
		persons: map[uuid.UUID]*models.Person{},
	}
}

func (s *fakeStore) GetPhoto(_ context.Context, id uuid.UUID) (*models.Photo, error) {
	p, ok := s.photos[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) CountFacesByPhoto(_ context.Context, photoID uuid.UUID) (int, error) {
	n := 0
	for _, f := range s.faces {
		if f.PhotoID == photoID {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CreateFace(_ context.Context, face *models.Face) error {
	cp := *face
	s.faces = append(s.faces, &cp)
	return nil
}

func (s *fakeStore) UpdateFaceThumbnail(_ context.Context, faceID uuid.UUID, key string) error {
	for _, f := range s.faces {
		if f.ID == faceID {
			f.ThumbnailKey = &key
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *fakeStore) CreatePerson(_ context.Context, person *models.Person) error {
	cp := *person
	s.persons[person.ID] = &cp
	s.personOrder = append(s.personOrder, person.ID)
	return nil
}

func (s *fakeStore) AssignFaceToPerson(_ context.Context, faceID, personID uuid.UUID) error {
	for _, f := range s.faces {
		if f.ID == faceID {
			id := personID
			f.PersonID = &id
			s.recount(personID)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *fakeStore) recount(personID uuid.UUID) {
	n := 0
	for _, f := range s.faces {
		if f.PersonID != nil && *f.PersonID == personID {
			n++
		}
	}
	if p, ok := s.persons[personID]; ok {
		p.FaceCount = n
	}
}

func (s *fakeStore) RepresentativeEmbeddings(_ context.Context) ([]match.Representative, error) {
	var reps []match.Representative
	for _, personID := range s.personOrder {
		for _, f := range s.faces {
			if f.PersonID != nil && *f.PersonID == personID && len(f.Embedding) > 0 {
				reps = append(reps, match.Representative{PersonID: personID, Embedding: f.Embedding})
				break
			}
		}
	}
	return reps, nil
}

type fakeDetector struct {
	result *detect.Result
	err    error
	calls  int
}

func (d *fakeDetector) Detect(_ context.Context, _ string) (*detect.Result, error) {
	d.calls++
	return d.result, d.err
}

func embed(vals ...float32) []float32 {
	e := make([]float32, 128)
	copy(e, vals)
	return e
}

func detection(enc []float32) detect.Face {
	return detect.Face{
		BoundingBox: detect.BoundingBox{Left: 1, Top: 2, Width: 50, Height: 60},
		Confidence:  0.9,
		Encoding:    enc,
	}
}

func setup(t *testing.T, det *fakeDetector) (*Pipeline, *fakeStore, uuid.UUID) {
	t.Helper()

	store := newFakeStore()
	blobs, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	photoID := uuid.New()
	key := "photos/" + photoID.String() + ".jpg"
	store.photos[photoID] = &models.Photo{
		ID:               photoID,
		FilePath:         key,
		ProcessingStatus: models.StatusPending,
	}
	if err := blobs.Put(context.Background(), key, strings.NewReader("jpeg bytes"), 10, "image/jpeg"); err != nil {
		t.Fatal(err)
	}

	return NewPipeline(store, blobs, det, 0.6, 0.95), store, photoID
}

func TestIngestNoFaces(t *testing.T) {
	det := &fakeDetector{result: &detect.Result{}}
	p, store, photoID := setup(t, det)

	if err := p.Ingest(context.Background(), photoID); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(store.faces) != 0 || len(store.persons) != 0 {
		t.Errorf("expected no faces and no persons, got %d/%d", len(store.faces), len(store.persons))
	}
}

func TestIngestClustersSimilarFaces(t *testing.T) {
	det := &fakeDetector{result: &detect.Result{Faces: []detect.Face{
		detection(embed(0.1)),
		detection(embed(0.15)),
	}}}
	p, store, photoID := setup(t, det)

	if err := p.Ingest(context.Background(), photoID); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if len(store.faces) != 2 {
		t.Fatalf("got %d faces, want 2", len(store.faces))
	}
	if len(store.persons) != 1 {
		t.Fatalf("got %d persons, want 1", len(store.persons))
	}
	for _, person := range store.persons {
		if person.FaceCount != 2 {
			t.Errorf("face_count = %d, want 2", person.FaceCount)
		}
		if person.Name != nil {
			t.Errorf("new person should have no name")
		}
	}
	for _, f := range store.faces {
		if f.PersonID == nil {
			t.Errorf("face %s left unassigned", f.ID)
		}
	}
}

func TestIngestDistinctFacesCreateDistinctPeople(t *testing.T) {
	det := &fakeDetector{result: &detect.Result{Faces: []detect.Face{
		detection(embed(0)),
		detection(embed(5)),
	}}}
	p, store, photoID := setup(t, det)

	if err := p.Ingest(context.Background(), photoID); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(store.persons) != 2 {
		t.Fatalf("got %d persons, want 2", len(store.persons))
	}
}

func TestIngestDetectionFailure(t *testing.T) {
	det := &fakeDetector{err: detect.ErrServiceFailure}
	p, store, photoID := setup(t, det)

	err := p.Ingest(context.Background(), photoID)
	if !errors.Is(err, ErrDetectionFailed) {
		t.Fatalf("err = %v, want ErrDetectionFailed", err)
	}
	if len(store.faces) != 0 || len(store.persons) != 0 {
		t.Errorf("detection failure must leave no side effects")
	}
}

func TestIngestIdempotent(t *testing.T) {
	det := &fakeDetector{result: &detect.Result{Faces: []detect.Face{
		detection(embed(0.1)),
	}}}
	p, store, photoID := setup(t, det)

	if err := p.Ingest(context.Background(), photoID); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	if err := p.Ingest(context.Background(), photoID); err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}

	if det.calls != 1 {
		t.Errorf("detector called %d times, want 1", det.calls)
	}
	if len(store.faces) != 1 || len(store.persons) != 1 {
		t.Errorf("redelivery duplicated data: %d faces, %d persons", len(store.faces), len(store.persons))
	}
}

func TestIngestPhotoMissing(t *testing.T) {
	det := &fakeDetector{}
	p, _, _ := setup(t, det)

	err := p.Ingest(context.Background(), uuid.New())
	if !errors.Is(err, ErrPhotoMissing) {
		t.Fatalf("err = %v, want ErrPhotoMissing", err)
	}
	if det.calls != 0 {
		t.Errorf("detector must not be called for a missing photo")
	}
}

func TestIngestSourceMissing(t *testing.T) {
	det := &fakeDetector{}
	store := newFakeStore()
	blobs, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	photoID := uuid.New()
	store.photos[photoID] = &models.Photo{
		ID:       photoID,
		FilePath: "photos/gone.jpg",
	}
	p := NewPipeline(store, blobs, det, 0.6, 0.95)

	if err := p.Ingest(context.Background(), photoID); !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("err = %v, want ErrSourceMissing", err)
	}
}

func TestIngestBadEmbeddingSkipsFace(t *testing.T) {
	short := make([]float32, 64)
	det := &fakeDetector{result: &detect.Result{Faces: []detect.Face{
		detection(embed(0.1)),
		detection(short),
		detection(embed(0.12)),
	}}}
	p, store, photoID := setup(t, det)

	if err := p.Ingest(context.Background(), photoID); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if len(store.faces) != 3 {
		t.Fatalf("got %d faces, want 3", len(store.faces))
	}
	if len(store.persons) != 1 {
		t.Fatalf("got %d persons, want 1 (bad embedding must not create one)", len(store.persons))
	}
	unassigned := 0
	for _, f := range store.faces {
		if f.PersonID == nil {
			unassigned++
		}
	}
	if unassigned != 1 {
		t.Errorf("got %d unassigned faces, want 1", unassigned)
	}
}

func TestIngestDefaultConfidence(t *testing.T) {
	face := detection(embed(0.1))
	face.Confidence = 0
	det := &fakeDetector{result: &detect.Result{Faces: []detect.Face{face}}}
	p, store, photoID := setup(t, det)

	if err := p.Ingest(context.Background(), photoID); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if got := store.faces[0].Confidence; got != 0.95 {
		t.Errorf("confidence = %v, want default 0.95", got)
	}
}

func TestIngestStoresCrop(t *testing.T) {
	face := detection(embed(0.1))
	face.Thumbnail = []byte{0xff, 0xd8, 0xff, 0xd9}
	det := &fakeDetector{result: &detect.Result{Faces: []detect.Face{face}}}
	p, store, photoID := setup(t, det)

	if err := p.Ingest(context.Background(), photoID); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	f := store.faces[0]
	if f.ThumbnailKey == nil {
		t.Fatal("thumbnail key not recorded")
	}
	if !strings.HasPrefix(*f.ThumbnailKey, "face_thumbnails/face_") {
		t.Errorf("unexpected crop key %q", *f.ThumbnailKey)
	}
}
