package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sgdea/docucore/internal/config"
	"github.com/sgdea/docucore/internal/core"
	"github.com/sgdea/docucore/internal/core/chat"
	db "github.com/sgdea/docucore/internal/core/database"
	"github.com/sgdea/docucore/internal/core/extraction"
	"github.com/sgdea/docucore/internal/core/llm"
	objectclient "github.com/sgdea/docucore/internal/core/object-client"
	"github.com/sgdea/docucore/internal/core/ocr"
	"github.com/sgdea/docucore/internal/core/pipeline"
	"github.com/sgdea/docucore/internal/models"
)

// App owns all long-lived components and their shutdown order.
type App struct {
	DBClient    core.DbClient
	Coordinator *pipeline.Coordinator
	Server      *Server
	Log         zerolog.Logger
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := newLogger(cfg)

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(initCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database init: %w", err)
	}
	log.Info().Msg("database initialized and bootstrapped")

	objClient, err := objectclient.NewS3Client(initCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("object storage init: %w", err)
	}
	log.Info().Str("bucket", cfg.BucketName).Msg("object storage ready")

	embedder, err := llm.NewGeminiEmbedder(initCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("embedder init: %w", err)
	}
	generator, err := llm.NewGeminiLLM(initCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("generator init: %w", err)
	}

	recognizer := ocr.NewTesseractRecognizer(cfg.OCRLang)
	extractor := extraction.NewFitzExtractor()

	coordinator := pipeline.NewCoordinator(dbClient, objClient, extractor, recognizer, embedder, pipeline.Config{
		Workers:        cfg.Workers,
		Bucket:         cfg.BucketName,
		OCRConcurrency: cfg.OCRConcurrency,
		OCRTimeout:     time.Duration(cfg.OCRTimeoutSecs) * time.Second,
		HeartbeatEvery: time.Duration(cfg.HeartbeatSecs) * time.Second,
	}, log)

	engine := chat.NewEngine(dbClient, embedder, generator, chat.Config{
		TopK:          cfg.ChatTopK,
		ContextBudget: cfg.ContextBudget,
		GenTimeout:    time.Duration(cfg.GenTimeoutSecs) * time.Second,
	}, log)

	server := NewServer(cfg, dbClient, objClient, coordinator, engine, log)

	return &App{
		DBClient:    dbClient,
		Coordinator: coordinator,
		Server:      server,
		Log:         log,
	}, nil
}

// Start launches the pipeline workers and requeues documents left in
// pendiente by a previous run, then serves HTTP until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	a.Coordinator.Start(ctx)
	go a.Coordinator.MonitorStale(ctx, time.Minute, 5*time.Minute)
	a.requeuePending(ctx)
	return a.Server.Start(ctx)
}

func (a *App) requeuePending(ctx context.Context) {
	st := models.StatusPending
	docs, err := a.DBClient.ListDocuments(ctx, models.DocumentFilter{Status: &st})
	if err != nil {
		a.Log.Warn().Err(err).Msg("pending requeue scan failed")
		return
	}
	for _, d := range docs {
		a.Coordinator.Enqueue(d.ID)
	}
	if len(docs) > 0 {
		a.Log.Info().Int("count", len(docs)).Msg("requeued pending documents")
	}
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.LogFormat == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}
