package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sgdea/docucore/internal/core"
	objectclient "github.com/sgdea/docucore/internal/core/object-client"
)

// Version is recorded in processing_info on every attempt.
const Version = "2.0"

// Config tunes one coordinator instance.
//
// Workers:        size of the worker pool; one run = one document = one worker.
// OCRConcurrency: per-run cap on parallel OCR calls so a single scan-heavy
//                 document cannot starve other runs.
type Config struct {
	Workers        int
	QueueSize      int
	Bucket         string
	OCRConcurrency int
	OCRTimeout     time.Duration
	RunTimeout     time.Duration
	HeartbeatEvery time.Duration
	TargetTokens   int
	OverlapTokens  int
	BatchSize      int
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.OCRConcurrency <= 0 {
		c.OCRConcurrency = 4
	}
	if c.OCRTimeout <= 0 {
		c.OCRTimeout = 60 * time.Second
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 5 * time.Minute
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 10 * time.Second
	}
	if c.TargetTokens <= 0 {
		c.TargetTokens = 300
	}
	if c.OverlapTokens < 0 {
		c.OverlapTokens = 0
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
}

// Coordinator drives the extraction pipeline: claim, extract, OCR, analyze,
// persist, with the status state machine enforced through the store.
type Coordinator struct {
	db         core.DbClient
	obj        core.ObjectClient
	extractor  core.Extractor
	recognizer core.Recognizer
	embedder   core.EmbeddingProvider
	cfg        Config
	log        zerolog.Logger
	jobs       chan string
}

func NewCoordinator(db core.DbClient, obj core.ObjectClient, ex core.Extractor, rec core.Recognizer, emb core.EmbeddingProvider, cfg Config, log zerolog.Logger) *Coordinator {
	cfg.defaults()
	return &Coordinator{
		db:         db,
		obj:        obj,
		extractor:  ex,
		recognizer: rec,
		embedder:   emb,
		cfg:        cfg,
		log:        log.With().Str("component", "pipeline").Logger(),
		jobs:       make(chan string, cfg.QueueSize),
	}
}

// Start launches the worker pool. Workers drain the jobs channel until the
// context is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	for w := 1; w <= c.cfg.Workers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					c.log.Info().Int("worker", w).Msg("worker shutting down")
					return
				case docID := <-c.jobs:
					if err := c.ProcessOne(ctx, docID); err != nil {
						c.log.Error().Err(err).Str("document_id", docID).Int("worker", w).Msg("pipeline run failed")
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a document ID for processing. Blocks when the queue is
// full.
func (c *Coordinator) Enqueue(docID string) {
	c.jobs <- docID
}

// MonitorStale periodically reports runs stuck in procesando whose heartbeat
// went quiet. Requeue policy stays with the operator; the monitor only makes
// the stuck runs visible.
func (c *Coordinator) MonitorStale(ctx context.Context, every, olderThan time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			docs, err := c.db.ListStaleProcessing(ctx, olderThan)
			if err != nil {
				c.log.Warn().Err(err).Msg("stale run scan failed")
				continue
			}
			for _, d := range docs {
				c.log.Warn().
					Str("document_id", d.ID).
					Str("filename", d.Filename).
					Msg("run in procesando with stale heartbeat")
			}
		}
	}
}

// heartbeat touches ultimo_latido while a run is active so stuck runs are
// detectable from outside.
func (c *Coordinator) heartbeat(ctx context.Context, docID string) {
	t := time.NewTicker(c.cfg.HeartbeatEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if err := c.db.Heartbeat(ctx, docID, now); err != nil {
				c.log.Warn().Err(err).Str("document_id", docID).Msg("heartbeat write failed")
			}
		}
	}
}

// objectLocation resolves where a document's raw bytes live. A storage_ref
// that is not a full object URL is treated as a key in the configured bucket.
func (c *Coordinator) objectLocation(storageRef string) (bucket, key string) {
	if b, k, ok := objectclient.ParseURL(storageRef); ok {
		return b, k
	}
	return c.cfg.Bucket, storageRef
}
