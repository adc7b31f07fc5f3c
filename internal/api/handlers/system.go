package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/photopipe/internal/detect"
	"github.com/your-org/photopipe/internal/queue"
	"github.com/your-org/photopipe/internal/storage"
)

type SystemHandler struct {
	db       *storage.Store
	blobs    storage.BlobStore
	producer *queue.Producer
	detector *detect.Client
}

func NewSystemHandler(db *storage.Store, blobs storage.BlobStore, producer *queue.Producer, detector *detect.Client) *SystemHandler {
	return &SystemHandler{db: db, blobs: blobs, producer: producer, detector: detector}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	// Check Postgres
	if err := h.db.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	// Check blob storage
	if err := h.blobs.Ping(ctx); err != nil {
		checks["storage"] = err.Error()
		healthy = false
	} else {
		checks["storage"] = "ok"
	}

	// Check NATS
	if err := h.producer.Ping(); err != nil {
		checks["nats"] = err.Error()
		healthy = false
	} else {
		checks["nats"] = "ok"
	}

	// Check detection service
	if h.detector != nil {
		if err := h.detector.Health(ctx); err != nil {
			checks["detector"] = err.Error()
			healthy = false
		} else {
			checks["detector"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}
