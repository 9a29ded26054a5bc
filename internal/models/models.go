package models

import (
	"time"
)

// Document represents one received PDF and everything derived from it.
// JSON field names follow the wire contract consumed by the frontend.
type Document struct {
	ID           string          `db:"id" json:"id"`
	Filename     string          `db:"nombre_pdf" json:"nombre_pdf"`
	SizeBytes    int64           `db:"tamano_archivo" json:"tamano_archivo"`
	FileHash     string          `db:"hash_archivo" json:"hash_archivo,omitempty"`
	OriginDomain string          `db:"dominio_origen" json:"dominio_origen"`
	StorageRef   string          `db:"url_almacenamiento" json:"url_google_drive,omitempty"`
	Status       Status          `db:"estado_procesamiento" json:"estado_procesamiento"`
	ReceivedAt   time.Time       `db:"fecha_hora_recepcion" json:"fecha_hora_recepcion"`
	ContentInfo  *ContentInfo    `db:"content_info" json:"content_info,omitempty"`
	Processing   *ProcessingInfo `db:"processing_info" json:"processing_info,omitempty"`
	ContentJSON  *ContentJSON    `db:"contenido_json" json:"contenido_json,omitempty"`

	// LastHeartbeat is touched by the pipeline while a run is active so an
	// external sweep can detect runs stuck in procesando.
	LastHeartbeat *time.Time `db:"ultimo_latido" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"-"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}

// ContentInfo is the compact extraction summary shown in the document table.
// Present if and only if the document is procesado.
type ContentInfo struct {
	TotalPages     int  `json:"total_pages"`
	TotalChars     int  `json:"total_chars"`
	HasImages      bool `json:"has_images"`
	HasText        bool `json:"has_text"`
	ImagesWithText int  `json:"images_with_text"`
}

// ProcessingInfo records one pipeline attempt, written exactly once when the
// run reaches a terminal status. It is kept on failures too so they stay
// auditable.
type ProcessingInfo struct {
	ProcessedAt           time.Time `json:"processed_at"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	PipelineVersion       string    `json:"pipeline_version"`
	Error                 string    `json:"error,omitempty"`
}

// ContentJSON is the full structured extraction result, persisted verbatim
// and consumed by the chat engine and the details modal.
type ContentJSON struct {
	Extraction Extraction      `json:"extraction"`
	Analysis   Analysis        `json:"analysis"`
	Processing *ProcessingInfo `json:"processing_info,omitempty"`
}

type Extraction struct {
	Text       TextContent       `json:"text"`
	Images     ImageContent      `json:"images"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	TotalPages int               `json:"total_pages"`
	HasImages  bool              `json:"has_images"`
}

type TextContent struct {
	FullText   string     `json:"full_text"`
	Pages      []PageText `json:"pages"`
	TotalChars int        `json:"total_chars"`
	HasText    bool       `json:"has_text"`
}

type PageText struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
	CharCount  int    `json:"char_count"`
	Scanned    bool   `json:"scanned,omitempty"`
}

type ImageContent struct {
	OCRText        string      `json:"ocr_text"`
	Images         []ImageInfo `json:"images"`
	TotalImages    int         `json:"total_images"`
	ImagesWithText int         `json:"images_with_text"`
}

// ImageInfo describes one raster image routed through OCR. A per-image OCR
// failure is recorded in Error and never aborts the run.
type ImageInfo struct {
	Page       int     `json:"page"`
	ImageIndex int     `json:"image_index"`
	OCRText    string  `json:"ocr_text"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
	HasText    bool    `json:"has_text"`
	Error      string  `json:"error,omitempty"`
}

type Analysis struct {
	Keywords       []string `json:"keywords"`
	TotalChars     int      `json:"total_chars"`
	HasText        bool     `json:"has_text"`
	HasImages      bool     `json:"has_images"`
	ImagesWithText int      `json:"images_with_text"`
}

// Fragment is one position-ordered slice of a document's aggregated text,
// embedded for scoped retrieval. Fragments are cascade-deleted with their
// document.
type Fragment struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"documento_id" json:"documento_id"`
	Position   int       `db:"posicion" json:"posicion"`
	Text       string    `db:"texto" json:"texto"`
	Embedding  []float32 `db:"embedding" json:"-"`
	TokenCount int       `db:"num_tokens" json:"num_tokens"`
	CreatedAt  time.Time `db:"created_at" json:"-"`
}

// ChatExchange is one question/answer pair about a single document. It is
// returned to the caller and never persisted.
type ChatExchange struct {
	DocumentID string    `json:"document_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Timestamp  time.Time `json:"timestamp"`
}

// DocumentFilter narrows ListDocuments. Zero values mean "no constraint".
type DocumentFilter struct {
	Status       *Status
	OriginDomain string
	Limit        int
	Offset       int
}
