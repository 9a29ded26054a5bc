package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sgdea/docucore/internal/core"
	"github.com/sgdea/docucore/internal/core/chat"
)

type ChatHandler struct {
	engine *chat.Engine
	log    zerolog.Logger
}

func NewChatHandler(engine *chat.Engine, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{engine: engine, log: log.With().Str("component", "api").Logger()}
}

type chatRequest struct {
	Message    string `json:"message"`
	DocumentID string `json:"document_id"`
}

// QueryDocument answers one question scoped to one document.
func (h *ChatHandler) QueryDocument(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cuerpo de la petición inválido"})
		return
	}
	if strings.TrimSpace(req.Message) == "" || strings.TrimSpace(req.DocumentID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "se requieren message y document_id"})
		return
	}

	exchange, err := h.engine.Answer(r.Context(), req.DocumentID, req.Message)
	if err != nil {
		h.log.Warn().Err(err).Str("document_id", req.DocumentID).Msg("chat query failed")
		writeJSON(w, statusFor(err), map[string]string{"error": chatErrorMessage(err)})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"response": exchange.Answer})
}

func chatErrorMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrDocumentNotFound):
		return "documento no encontrado"
	case errors.Is(err, core.ErrDocumentNotReady):
		return "el documento aún no ha sido procesado"
	case errors.Is(err, core.ErrGenerationUnavailable):
		return "el servicio de generación no está disponible"
	default:
		return "no se pudo responder la consulta"
	}
}
