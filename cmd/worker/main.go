package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/photopipe/internal/config"
	"github.com/your-org/photopipe/internal/detect"
	"github.com/your-org/photopipe/internal/ingest"
	"github.com/your-org/photopipe/internal/models"
	"github.com/your-org/photopipe/internal/observability"
	"github.com/your-org/photopipe/internal/queue"
	"github.com/your-org/photopipe/internal/storage"
	"github.com/your-org/photopipe/internal/thumbs"
	"github.com/your-org/photopipe/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting photopipe worker", "workers", cfg.Worker.Count)

	// Connect to Postgres
	db, err := storage.NewStore(context.Background(), cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.Migrate(context.Background(), db.Pool()); err != nil {
		slog.Error("apply migrations", "error", err)
		os.Exit(1)
	}

	// Blob storage
	blobs, err := storage.NewBlobStore(context.Background(), cfg.Storage)
	if err != nil {
		slog.Error("init blob storage", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	detector := detect.NewClient(cfg.Detector.BaseURL, cfg.Detector.Timeout)

	ingestPipeline := ingest.NewPipeline(db, blobs, detector, cfg.Matching.Tolerance, cfg.Matching.DefaultConfidence)
	thumbsPipeline := thumbs.NewPipeline(db, blobs, cfg.Thumbnails.Sizes)

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, msg jetstream.Msg) error {
		var task models.PhotoTask
		if err := json.Unmarshal(msg.Data(), &task); err != nil {
			slog.Error("unmarshal photo task", "error", err)
			return nil // Don't retry on unmarshal errors
		}

		var jobErr error
		switch task.Kind {
		case models.JobIngest:
			jobErr = ingestPipeline.Ingest(ctx, task.PhotoID)
		case models.JobThumbnails:
			jobErr = thumbsPipeline.Generate(ctx, task.PhotoID)
		default:
			slog.Error("unknown job kind", "kind", task.Kind)
			return nil
		}

		publishUpdate(ctx, producer, db, task.PhotoID)

		if jobErr != nil {
			return fmt.Errorf("%s photo %s: %w", task.Kind, task.PhotoID, jobErr)
		}
		return nil
	}

	terminal := func(err error) bool {
		return errors.Is(err, ingest.ErrPhotoMissing) ||
			errors.Is(err, ingest.ErrSourceMissing) ||
			errors.Is(err, thumbs.ErrPhotoMissing) ||
			errors.Is(err, thumbs.ErrSourceMissing)
	}

	if err := consumer.ConsumePhotoJobs(ctx, "photo-workers", handler, terminal, cfg.Worker.Count); err != nil {
		slog.Error("start photo job consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		addr := fmt.Sprintf(":%d", cfg.Worker.MetricsPort)
		slog.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}

// publishUpdate pushes the photo's current state to the events stream so the
// API can broadcast it over WebSocket. Missing photos are skipped quietly.
func publishUpdate(ctx context.Context, producer *queue.Producer, db *storage.Store, photoID uuid.UUID) {
	photo, err := db.GetPhoto(ctx, photoID)
	if err != nil {
		return
	}
	count, err := db.CountFacesByPhoto(ctx, photoID)
	if err != nil {
		count = 0
	}

	event := dto.PhotoEvent{
		Type:      "photo_updated",
		PhotoID:   photoID,
		Status:    string(photo.ProcessingStatus),
		FaceCount: count,
	}
	if err := producer.PublishPhotoEvent(ctx, photoID, event); err != nil {
		slog.Warn("publish photo event", "photo_id", photoID, "error", err)
	}
}
