package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceid/internal/api"
	"github.com/your-org/faceid/internal/api/handlers"
	"github.com/your-org/faceid/internal/api/ws"
	"github.com/your-org/faceid/internal/capture"
	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/identity"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/queue"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/internal/vision"
	"github.com/your-org/faceid/internal/workflow"
)

// vectorBackend is what the api needs from a sample store.
type vectorBackend interface {
	identity.VectorStore
	handlers.PersonReader
	handlers.Pinger
}

type imageBackend interface {
	workflow.ImageStore
	handlers.ImageReader
	handlers.Pinger
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	var logOutputs []io.Writer
	if cfg.Logging.File != "" {
		logFile, err := observability.OpenLogFile(cfg.Logging.File)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer logFile.Close()
		logOutputs = append(logOutputs, logFile)
	}
	logger := observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format, logOutputs...)
	slog.Info("starting faceid API service",
		"port", cfg.Server.Port,
		"vector_store", cfg.VectorStore.Backend,
		"image_store", cfg.Storage.Backend,
		"camera", cfg.Camera.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handlers.Pinger{}

	// Vector store
	var vectors vectorBackend
	var auditLog handlers.EventReader
	switch cfg.VectorStore.Backend {
	case config.VectorBackendMemory:
		vectors = storage.NewMemoryStore(storage.WithAcceptDistance(1 - cfg.Recognition.Threshold))
		slog.Warn("using in-memory vector store, enrollments are lost on restart")
	default:
		db, err := storage.NewPostgresStore(ctx, cfg.Database, cfg.VectorStore.CollectionName)
		if err != nil {
			slog.Error("connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := storage.Migrate(ctx, db.Pool()); err != nil {
			slog.Error("migrate postgres", "error", err)
			os.Exit(1)
		}
		vectors = db
		auditLog = db
	}
	checks["vector_store"] = vectors

	// Image store
	var images imageBackend
	switch cfg.Storage.Backend {
	case config.StorageBackendMinIO:
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		images = minioStore
	default:
		local, err := storage.NewLocalImageStore(cfg.Storage.ImageStoragePath)
		if err != nil {
			slog.Error("open image storage", "path", cfg.Storage.ImageStoragePath, "error", err)
			os.Exit(1)
		}
		images = local
	}
	checks["image_store"] = images

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// NATS: publish identity events and fan them back out over WebSocket
	var events workflow.EventPublisher
	if cfg.NATS.Enabled {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		events = producer
		checks["nats"] = producer

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create event consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		err = consumer.ConsumeIdentityEvents(ctx, "api-ws", func(ctx context.Context, ev *models.IdentityEvent) error {
			hub.BroadcastEvent(ev)
			return nil
		}, 1, false)
		if err != nil {
			slog.Warn("start event consumer", "error", err)
		}
	} else {
		events = hubPublisher{hub: hub}
	}

	// Face models
	var capability vision.Capability
	libPath := cfg.Vision.ONNXLibrary
	if libPath == "" {
		libPath = getONNXLibPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Warn("onnx runtime init failed, recognition will be unavailable", "error", err)
		capability = vision.Unavailable{Err: err}
	} else {
		defer ort.DestroyEnvironment()
		onnx, err := vision.NewONNXCapability(cfg.Vision)
		if err != nil {
			slog.Warn("face models unavailable", "models_dir", cfg.Vision.ModelsDir, "error", err)
			capability = vision.Unavailable{Err: err}
		} else {
			defer onnx.Close()
			capability = onnx
			slog.Info("face models loaded", "models_dir", cfg.Vision.ModelsDir)
		}
	}
	extractor := vision.NewExtractor(capability, logger)

	// Capture device, opened on first live read
	var opener capture.Opener
	if cfg.Camera.Enabled {
		opener = &capture.FFmpegOpener{
			Binary:      "ffmpeg",
			Format:      cfg.Camera.InputFormat,
			FrameWidth:  cfg.Camera.FrameWidth,
			ReadTimeout: cfg.Camera.ReadTimeout,
			Logger:      logger,
		}
	}
	source := capture.NewSource(opener, cfg.Camera.DeviceID, logger)
	defer source.Close()

	identities, err := identity.NewStore(vectors, cfg.Recognition.Threshold, logger)
	if err != nil {
		slog.Error("create identity store", "error", err)
		os.Exit(1)
	}

	enroller, err := workflow.NewEnroller(workflow.EnrollerConfig{
		Source:       source,
		Extractor:    extractor,
		Identities:   identities,
		Images:       images,
		Events:       events,
		Pacer:        workflow.FixedPacer{Interval: cfg.Camera.CaptureInterval},
		CaptureCount: cfg.Registration.CaptureCount,
		Logger:       logger,
	})
	if err != nil {
		slog.Error("create enroller", "error", err)
		os.Exit(1)
	}

	verifier, err := workflow.NewVerifier(workflow.VerifierConfig{
		Source:     source,
		Extractor:  extractor,
		Identities: identities,
		Events:     events,
		Logger:     logger,
	})
	if err != nil {
		slog.Error("create verifier", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(api.RouterConfig{
		APIKeys:    cfg.Server.APIKeys,
		Registrar:  enroller,
		Recognizer: verifier,
		Persons:    vectors,
		Images:     images,
		Events:     auditLog,
		Checks:     checks,
		Device:     source,
		Hub:        hub,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	cancel()

	slog.Info("API server stopped")
}

// hubPublisher delivers events straight to WebSocket clients when NATS is off.
type hubPublisher struct {
	hub *ws.Hub
}

func (p hubPublisher) PublishIdentityEvent(_ context.Context, ev *models.IdentityEvent) error {
	p.hub.BroadcastEvent(ev)
	return nil
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
