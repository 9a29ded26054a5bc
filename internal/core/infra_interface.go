package core

import (
	"context"
	"time"

	"github.com/sgdea/docucore/internal/models"
)

// DbClient defines all persistence operations the pipeline, chat engine and
// handlers need. It abstracts Postgres/pgvector so higher layers never depend
// on a specific DB.
type DbClient interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)

	// ClaimDocument atomically moves pendiente → procesando and reports
	// whether this caller won the claim. The compare-and-set runs on the
	// stored status so claims are exclusive across processes.
	ClaimDocument(ctx context.Context, id string) (bool, error)

	// CompleteDocument writes status, content_info, contenido_json and
	// processing_info in one atomic update. Readers only ever observe the
	// document as procesado with all result fields present.
	CompleteDocument(ctx context.Context, id string, info *models.ContentInfo, content *models.ContentJSON, proc *models.ProcessingInfo) error

	// FailDocument moves the run to error while preserving the attempt's
	// processing_info for diagnostics.
	FailDocument(ctx context.Context, id string, proc *models.ProcessingInfo) error

	Heartbeat(ctx context.Context, id string, at time.Time) error
	ListStaleProcessing(ctx context.Context, olderThan time.Duration) ([]models.Document, error)

	// DeleteDocument removes the record and its fragments atomically. It
	// returns ErrDocumentBusy while a run is active and ErrDocumentNotFound
	// for unknown ids.
	DeleteDocument(ctx context.Context, id string) error

	InsertFragments(ctx context.Context, frags []models.Fragment) error
	FragmentsByDocument(ctx context.Context, documentID string) ([]models.Fragment, error)
	SearchFragments(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.Fragment, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage holding the
// raw uploaded PDF bytes.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteFile(ctx context.Context, bucket, key string) error
}
