package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sgdea/docucore/internal/config"
	"github.com/sgdea/docucore/internal/core"
	objectclient "github.com/sgdea/docucore/internal/core/object-client"
	"github.com/sgdea/docucore/internal/models"
)

// Enqueuer schedules a document for background processing.
type Enqueuer interface {
	Enqueue(docID string)
}

type DocumentHandler struct {
	db       core.DbClient
	storage  core.ObjectClient
	enqueuer Enqueuer
	cfg      *config.Config
	log      zerolog.Logger
}

func NewDocumentHandler(db core.DbClient, storage core.ObjectClient, enq Enqueuer, cfg *config.Config, log zerolog.Logger) *DocumentHandler {
	return &DocumentHandler{
		db:       db,
		storage:  storage,
		enqueuer: enq,
		cfg:      cfg,
		log:      log.With().Str("component", "api").Logger(),
	}
}

// UploadDocument receives the PDF, stores the raw bytes, registers the
// document as pendiente and hands it to the pipeline. The response returns
// before processing starts.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(h.cfg.MaxFileSizeMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("el archivo supera el máximo de %d MB", h.cfg.MaxFileSizeMB))
		return
	}

	file, header, err := r.FormFile("pdf_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "falta el campo pdf_file")
		return
	}
	defer file.Close()

	filename := filepath.Base(strings.TrimSpace(header.Filename))
	if filename == "" || filename == "." {
		writeError(w, http.StatusBadRequest, "nombre de archivo vacío")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "no se pudo leer el archivo")
		return
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		writeError(w, http.StatusBadRequest, "el archivo no es un PDF válido")
		return
	}

	sum := sha256.Sum256(data)
	docID := uuid.NewString()
	key := fmt.Sprintf("%s/%s", docID, strings.ReplaceAll(filename, " ", "_"))

	storageURL, err := h.storage.UploadFile(r.Context(), h.cfg.BucketName, key, data, "application/pdf")
	if err != nil {
		h.log.Error().Err(err).Str("document_id", docID).Msg("object upload failed")
		writeError(w, http.StatusInternalServerError, "no se pudo almacenar el archivo")
		return
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:           docID,
		Filename:     filename,
		SizeBytes:    int64(len(data)),
		FileHash:     hex.EncodeToString(sum[:]),
		OriginDomain: originDomain(r),
		StorageRef:   storageURL,
		Status:       models.StatusPending,
		ReceivedAt:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.db.CreateDocument(r.Context(), doc); err != nil {
		h.log.Error().Err(err).Str("document_id", docID).Msg("document insert failed")
		writeError(w, http.StatusInternalServerError, "no se pudo registrar el documento")
		return
	}

	h.enqueuer.Enqueue(docID)
	h.log.Info().Str("document_id", docID).Str("filename", filename).Int64("size", doc.SizeBytes).Msg("document received")

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": doc})
}

// GetDocuments lists documents, optionally filtered by ?estado=.
func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	var filter models.DocumentFilter

	if raw := r.URL.Query().Get("estado"); raw != "" {
		st, err := models.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("estado desconocido: %q", raw))
			return
		}
		filter.Status = &st
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	docs, err := h.db.ListDocuments(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("document list failed")
		writeError(w, http.StatusInternalServerError, "no se pudo listar los documentos")
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"documentos": docs},
	})
}

// GetDocument returns one document with its full contenido_json.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := h.db.GetDocumentByID(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("document_id", id).Msg("document load failed")
		writeError(w, http.StatusInternalServerError, "no se pudo consultar el documento")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "documento no encontrado")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": doc})
}

// DeleteDocument removes the record, its fragments and the stored object.
// Deletion is refused while a run holds the document.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := h.db.GetDocumentByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "no se pudo consultar el documento")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "documento no encontrado")
		return
	}

	if err := h.db.DeleteDocument(r.Context(), id); err != nil {
		status := statusFor(err)
		msg := "no se pudo eliminar el documento"
		if status == http.StatusConflict {
			msg = "el documento está siendo procesado"
		} else if status == http.StatusNotFound {
			msg = "documento no encontrado"
		}
		writeError(w, status, msg)
		return
	}

	// The DB row is the source of truth; a leftover object is only storage
	// garbage, so its removal is best effort.
	if bucket, key, ok := objectclient.ParseURL(doc.StorageRef); ok {
		if err := h.storage.DeleteFile(r.Context(), bucket, key); err != nil {
			h.log.Warn().Err(err).Str("document_id", id).Msg("stored object removal failed")
		}
	} else if doc.StorageRef != "" {
		if err := h.storage.DeleteFile(r.Context(), h.cfg.BucketName, doc.StorageRef); err != nil {
			h.log.Warn().Err(err).Str("document_id", id).Msg("stored object removal failed")
		}
	}

	h.log.Info().Str("document_id", id).Msg("document deleted")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// originDomain records where the upload came from, host only.
func originDomain(r *http.Request) string {
	for _, raw := range []string{r.Header.Get("Origin"), r.Header.Get("Referer")} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return "desconocido"
}
