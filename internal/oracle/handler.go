package oracle

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const maxRequestBody = 5 << 20

// Handler serves POST /analyze-match for the matcher service.
type Handler struct {
	oracle Oracle
	logger *log.Logger
}

func NewHandler(oracle Oracle, logger *log.Logger) *Handler {
	return &Handler{oracle: oracle, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path != "/analyze-match" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.DraftText) == "" || strings.TrimSpace(req.ReferenceText) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Both draftText and referenceText are required."})
		return
	}

	started := time.Now()
	text, err := h.oracle.Analyze(r.Context(), req)
	if err != nil {
		h.logger.Error("analyze match failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to process LLM request."})
		return
	}
	h.logger.Debug("analyze match", "duration_ms", time.Since(started).Milliseconds(), "response", text)
	writeJSON(w, http.StatusOK, analyzeResponse{MatchedParagraph: text})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
