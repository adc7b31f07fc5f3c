package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/photopipe/internal/match"
	"github.com/your-org/photopipe/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrIllegalTransition is returned by UpdatePhotoStatus for status
	// changes the state machine forbids.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// Store wraps a pgx connection pool with the photo, face and person queries.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool exposes the underlying pool for migrations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// --- photos ---

func (s *Store) CreatePhoto(ctx context.Context, photo *models.Photo) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO photos (id, file_path, file_size, content_type, processing_status)
		VALUES ($1, $2, $3, $4, $5)`,
		photo.ID, photo.FilePath, photo.FileSize, photo.ContentType, photo.ProcessingStatus)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}
	return nil
}

func (s *Store) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	p := &models.Photo{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, file_path, file_size, content_type, processing_status, created_at, updated_at
		FROM photos WHERE id = $1`, id).
		Scan(&p.ID, &p.FilePath, &p.FileSize, &p.ContentType, &p.ProcessingStatus, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: photo %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select photo: %w", err)
	}
	return p, nil
}

func (s *Store) ListPhotos(ctx context.Context, limit, offset int) ([]*models.Photo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, file_path, file_size, content_type, processing_status, created_at, updated_at
		FROM photos ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var photos []*models.Photo
	for rows.Next() {
		p := &models.Photo{}
		if err := rows.Scan(&p.ID, &p.FilePath, &p.FileSize, &p.ContentType,
			&p.ProcessingStatus, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// UpdatePhotoStatus moves a photo to next, refusing transitions the state
// machine does not allow. The current status is read and updated under a row
// lock so concurrent workers cannot interleave illegal jumps.
func (s *Store) UpdatePhotoStatus(ctx context.Context, id uuid.UUID, next models.ProcessingStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback(ctx)

	var current models.ProcessingStatus
	err = tx.QueryRow(ctx,
		`SELECT processing_status FROM photos WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: photo %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("select photo status: %w", err)
	}

	if current == next {
		return tx.Commit(ctx)
	}
	if !current.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, next)
	}

	_, err = tx.Exec(ctx,
		`UPDATE photos SET processing_status = $2, updated_at = now() WHERE id = $1`, id, next)
	if err != nil {
		return fmt.Errorf("update photo status: %w", err)
	}
	return tx.Commit(ctx)
}

// --- faces ---

func (s *Store) CreateFace(ctx context.Context, face *models.Face) error {
	var embedding any
	if len(face.Embedding) > 0 {
		v := pgvector.NewVector(face.Embedding)
		embedding = v
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO faces (id, photo_id, person_id, embedding, box_left, box_top, box_width, box_height, confidence, thumbnail_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		face.ID, face.PhotoID, face.PersonID, embedding,
		face.BoxLeft, face.BoxTop, face.BoxWidth, face.BoxHeight,
		face.Confidence, face.ThumbnailKey)
	if err != nil {
		return fmt.Errorf("insert face: %w", err)
	}
	return nil
}

func (s *Store) CountFacesByPhoto(ctx context.Context, photoID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM faces WHERE photo_id = $1`, photoID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return n, nil
}

func (s *Store) ListFacesByPhoto(ctx context.Context, photoID uuid.UUID) ([]*models.Face, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, photo_id, person_id, box_left, box_top, box_width, box_height, confidence, thumbnail_key, created_at
		FROM faces WHERE photo_id = $1 ORDER BY created_at`, photoID)
	if err != nil {
		return nil, fmt.Errorf("list faces: %w", err)
	}
	defer rows.Close()

	var faces []*models.Face
	for rows.Next() {
		f := &models.Face{}
		if err := rows.Scan(&f.ID, &f.PhotoID, &f.PersonID,
			&f.BoxLeft, &f.BoxTop, &f.BoxWidth, &f.BoxHeight,
			&f.Confidence, &f.ThumbnailKey, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		faces = append(faces, f)
	}
	return faces, rows.Err()
}

func (s *Store) UpdateFaceThumbnail(ctx context.Context, faceID uuid.UUID, key string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE faces SET thumbnail_key = $2 WHERE id = $1`, faceID, key)
	if err != nil {
		return fmt.Errorf("update face thumbnail: %w", err)
	}
	return nil
}

// DeleteFacesByPhoto removes all faces of a photo and fixes up the counts of
// every person that lost members. Used by the explicit reprocess operation.
func (s *Store) DeleteFacesByPhoto(ctx context.Context, photoID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete faces: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT DISTINCT person_id FROM faces
		WHERE photo_id = $1 AND person_id IS NOT NULL`, photoID)
	if err != nil {
		return fmt.Errorf("select affected persons: %w", err)
	}
	var affected []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan person id: %w", err)
		}
		affected = append(affected, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("select affected persons: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM faces WHERE photo_id = $1`, photoID); err != nil {
		return fmt.Errorf("delete faces: %w", err)
	}

	for _, personID := range affected {
		if err := recomputeFaceCount(ctx, tx, personID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// --- persons ---

func (s *Store) CreatePerson(ctx context.Context, person *models.Person) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO persons (id, name, face_count, user_confirmed)
		VALUES ($1, $2, $3, $4)`,
		person.ID, person.Name, person.FaceCount, person.UserConfirmed)
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (s *Store) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p := &models.Person{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, face_count, user_confirmed, created_at, updated_at
		FROM persons WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.FaceCount, &p.UserConfirmed, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: person %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select person: %w", err)
	}
	return p, nil
}

func (s *Store) ListPersons(ctx context.Context, limit, offset int) ([]*models.Person, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, face_count, user_confirmed, created_at, updated_at
		FROM persons ORDER BY face_count DESC, created_at LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []*models.Person
	for rows.Next() {
		p := &models.Person{}
		if err := rows.Scan(&p.ID, &p.Name, &p.FaceCount, &p.UserConfirmed,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// UpdatePerson changes the user-facing fields. Nil means "leave unchanged".
func (s *Store) UpdatePerson(ctx context.Context, id uuid.UUID, name *string, confirmed *bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE persons SET
			name = COALESCE($2, name),
			user_confirmed = COALESCE($3, user_confirmed),
			updated_at = now()
		WHERE id = $1`, id, name, confirmed)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: person %s", ErrNotFound, id)
	}
	return nil
}

// AssignFaceToPerson links a face to a person and recomputes the face counts
// of both the new person and, when the face moves, the previous one. All in
// one transaction so counts never drift from the actual membership.
func (s *Store) AssignFaceToPerson(ctx context.Context, faceID, personID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin assign face: %w", err)
	}
	defer tx.Rollback(ctx)

	var previous *uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT person_id FROM faces WHERE id = $1 FOR UPDATE`, faceID).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: face %s", ErrNotFound, faceID)
	}
	if err != nil {
		return fmt.Errorf("select face: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE faces SET person_id = $2 WHERE id = $1`, faceID, personID); err != nil {
		return fmt.Errorf("assign face: %w", err)
	}

	if err := recomputeFaceCount(ctx, tx, personID); err != nil {
		return err
	}
	if previous != nil && *previous != personID {
		if err := recomputeFaceCount(ctx, tx, *previous); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// MergePersons moves every face of source onto target, recomputes target's
// count and deletes source, all in one transaction.
func (s *Store) MergePersons(ctx context.Context, targetID, sourceID uuid.UUID) error {
	if targetID == sourceID {
		return fmt.Errorf("merge person into itself")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM persons WHERE id = $1)`, targetID).Scan(&exists); err != nil {
		return fmt.Errorf("check target person: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: person %s", ErrNotFound, targetID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE faces SET person_id = $1 WHERE person_id = $2`, targetID, sourceID); err != nil {
		return fmt.Errorf("reassign faces: %w", err)
	}

	del, err := tx.Exec(ctx, `DELETE FROM persons WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("delete merged person: %w", err)
	}
	if del.RowsAffected() == 0 {
		return fmt.Errorf("%w: person %s", ErrNotFound, sourceID)
	}

	if err := recomputeFaceCount(ctx, tx, targetID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RepresentativeEmbeddings returns one reference embedding per person, the
// earliest stored face that has one, ordered by person creation time. The
// ordering is what makes the matcher's tie-break deterministic.
func (s *Store) RepresentativeEmbeddings(ctx context.Context) ([]match.Representative, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, f.embedding
		FROM persons p
		JOIN LATERAL (
			SELECT embedding FROM faces
			WHERE person_id = p.id AND embedding IS NOT NULL
			ORDER BY created_at LIMIT 1
		) f ON true
		ORDER BY p.created_at`)
	if err != nil {
		return nil, fmt.Errorf("select representatives: %w", err)
	}
	defer rows.Close()

	var reps []match.Representative
	for rows.Next() {
		var id uuid.UUID
		var v pgvector.Vector
		if err := rows.Scan(&id, &v); err != nil {
			return nil, fmt.Errorf("scan representative: %w", err)
		}
		reps = append(reps, match.Representative{PersonID: id, Embedding: v.Slice()})
	}
	return reps, rows.Err()
}

func recomputeFaceCount(ctx context.Context, tx pgx.Tx, personID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE persons SET
			face_count = (SELECT count(*) FROM faces WHERE person_id = $1),
			updated_at = now()
		WHERE id = $1`, personID)
	if err != nil {
		return fmt.Errorf("recompute face count: %w", err)
	}
	return nil
}
