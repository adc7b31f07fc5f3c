package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/photopipe/internal/config"
	"github.com/your-org/photopipe/internal/models"
	"github.com/your-org/photopipe/internal/queue"
	"github.com/your-org/photopipe/internal/storage"
	"github.com/your-org/photopipe/internal/thumbs"
	"github.com/your-org/photopipe/pkg/dto"
)

type PhotoHandler struct {
	db       *storage.Store
	blobs    storage.BlobStore
	producer *queue.Producer
	sizes    []config.ThumbnailSize
}

func NewPhotoHandler(db *storage.Store, blobs storage.BlobStore, producer *queue.Producer, sizes []config.ThumbnailSize) *PhotoHandler {
	return &PhotoHandler{db: db, blobs: blobs, producer: producer, sizes: sizes}
}

// Upload accepts a multipart photo, stores the original and enqueues both
// the ingestion and thumbnail jobs.
func (h *PhotoHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported content type"})
		return
	}

	photoID := uuid.New()
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".jpg"
	}
	key := "photos/" + photoID.String() + ext

	if err := h.blobs.Put(c.Request.Context(), key, file, header.Size, contentType); err != nil {
		slog.Error("store upload", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store upload failed"})
		return
	}

	photo := &models.Photo{
		ID:               photoID,
		FilePath:         key,
		FileSize:         header.Size,
		ContentType:      contentType,
		ProcessingStatus: models.StatusPending,
	}
	if err := h.db.CreatePhoto(c.Request.Context(), photo); err != nil {
		slog.Error("create photo", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create photo failed"})
		return
	}

	h.enqueueJobs(c, photoID)

	photo.CreatedAt = time.Now().UTC()
	photo.UpdatedAt = photo.CreatedAt
	c.JSON(http.StatusCreated, toPhotoResponse(photo))
}

func (h *PhotoHandler) enqueueJobs(c *gin.Context, photoID uuid.UUID) {
	ctx := c.Request.Context()
	for _, kind := range []string{models.JobIngest, models.JobThumbnails} {
		if err := h.producer.PublishPhotoTask(ctx, kind, photoID); err != nil {
			slog.Error("enqueue photo job", "photo_id", photoID, "kind", kind, "error", err)
		}
	}
}

func (h *PhotoHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	photos, err := h.db.ListPhotos(c.Request.Context(), limit, offset)
	if err != nil {
		slog.Error("list photos", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list photos failed"})
		return
	}

	resp := dto.PhotoListResponse{Photos: make([]dto.PhotoResponse, 0, len(photos))}
	for _, p := range photos {
		resp.Photos = append(resp.Photos, toPhotoResponse(p))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *PhotoHandler) Get(c *gin.Context) {
	photo, ok := h.loadPhoto(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toPhotoResponse(photo))
}

func (h *PhotoHandler) ListFaces(c *gin.Context) {
	photo, ok := h.loadPhoto(c)
	if !ok {
		return
	}

	faces, err := h.db.ListFacesByPhoto(c.Request.Context(), photo.ID)
	if err != nil {
		slog.Error("list faces", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list faces failed"})
		return
	}

	resp := dto.FaceListResponse{Faces: make([]dto.FaceResponse, 0, len(faces))}
	for _, f := range faces {
		resp.Faces = append(resp.Faces, toFaceResponse(f))
	}
	c.JSON(http.StatusOK, resp)
}

// Thumbnail streams one derivative of the photo.
func (h *PhotoHandler) Thumbnail(c *gin.Context) {
	photo, ok := h.loadPhoto(c)
	if !ok {
		return
	}

	sizeName := c.Param("size")
	valid := false
	for _, s := range h.sizes {
		if s.Name == sizeName {
			valid = true
			break
		}
	}
	if !valid {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown thumbnail size"})
		return
	}

	r, err := h.blobs.Get(c.Request.Context(), thumbs.DerivativeKey(photo.FilePath, sizeName))
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thumbnail not generated yet"})
			return
		}
		slog.Error("read thumbnail", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read thumbnail failed"})
		return
	}
	defer r.Close()

	c.Header("Content-Type", "image/jpeg")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, r); err != nil {
		slog.Warn("stream thumbnail", "error", err)
	}
}

// Reprocess wipes the photo's faces and runs both pipelines again.
func (h *PhotoHandler) Reprocess(c *gin.Context) {
	photo, ok := h.loadPhoto(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := h.db.DeleteFacesByPhoto(ctx, photo.ID); err != nil {
		slog.Error("delete faces", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reprocess failed"})
		return
	}

	// completed photos go back to pending; pending and failed photos are
	// picked up as-is by the redelivered jobs.
	if photo.ProcessingStatus == models.StatusCompleted {
		if err := h.db.UpdatePhotoStatus(ctx, photo.ID, models.StatusPending); err != nil {
			slog.Error("reset photo status", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reprocess failed"})
			return
		}
	}

	h.enqueueJobs(c, photo.ID)
	c.JSON(http.StatusAccepted, gin.H{"status": "reprocessing"})
}

func (h *PhotoHandler) loadPhoto(c *gin.Context) (*models.Photo, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return nil, false
	}

	photo, err := h.db.GetPhoto(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
			return nil, false
		}
		slog.Error("load photo", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load photo failed"})
		return nil, false
	}
	return photo, true
}

func toPhotoResponse(p *models.Photo) dto.PhotoResponse {
	return dto.PhotoResponse{
		ID:               p.ID,
		FilePath:         p.FilePath,
		FileSize:         p.FileSize,
		ContentType:      p.ContentType,
		ProcessingStatus: string(p.ProcessingStatus),
		CreatedAt:        p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toFaceResponse(f *models.Face) dto.FaceResponse {
	resp := dto.FaceResponse{
		ID:         f.ID,
		PhotoID:    f.PhotoID,
		PersonID:   f.PersonID,
		BoxLeft:    f.BoxLeft,
		BoxTop:     f.BoxTop,
		BoxWidth:   f.BoxWidth,
		BoxHeight:  f.BoxHeight,
		Confidence: f.Confidence,
		CreatedAt:  f.CreatedAt.UTC().Format(time.RFC3339),
	}
	if f.ThumbnailKey != nil {
		resp.ThumbnailKey = *f.ThumbnailKey
	}
	return resp
}
