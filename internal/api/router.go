package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/photopipe/internal/api/handlers"
	"github.com/your-org/photopipe/internal/api/ws"
	"github.com/your-org/photopipe/internal/config"
	"github.com/your-org/photopipe/internal/detect"
	"github.com/your-org/photopipe/internal/queue"
	"github.com/your-org/photopipe/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	DB       *storage.Store
	Blobs    storage.BlobStore
	Producer *queue.Producer
	Detector *detect.Client
	Hub      *ws.Hub
	Sizes    []config.ThumbnailSize
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Blobs, cfg.Producer, cfg.Detector)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Photos
	photoH := handlers.NewPhotoHandler(cfg.DB, cfg.Blobs, cfg.Producer, cfg.Sizes)
	v1.POST("/photos", photoH.Upload)
	v1.GET("/photos", photoH.List)
	v1.GET("/photos/:id", photoH.Get)
	v1.GET("/photos/:id/faces", photoH.ListFaces)
	v1.GET("/photos/:id/thumbnail/:size", photoH.Thumbnail)
	v1.POST("/photos/:id/reprocess", photoH.Reprocess)

	// People
	personH := handlers.NewPersonHandler(cfg.DB)
	v1.GET("/people", personH.List)
	v1.GET("/people/:id", personH.Get)
	v1.PATCH("/people/:id", personH.Update)
	v1.POST("/people/:id/merge", personH.Merge)

	return r
}
