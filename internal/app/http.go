package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"bridge/api/internal/docs"
	"bridge/api/internal/search"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *log.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *log.Logger) *HTTPServer {
	if logger == nil {
		logger = log.Default()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger.WithPrefix("http")}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	get := r.Method == http.MethodGet || r.Method == http.MethodHead
	post := r.Method == http.MethodPost

	switch {
	case get && r.URL.Path == "/api/health":
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case get && r.URL.Path == "/api/ready":
		s.handleReady(w, r)

	// Routes used by the browser extension.
	case post && r.URL.Path == "/select-text":
		s.handleSelectText(w, r)
	case post && r.URL.Path == "/match-docs":
		s.handleMatchDocs(w, r)
	case get && r.URL.Path == "/fetch-doc-text":
		s.handleFetchDocText(w, r)

	case post && r.URL.Path == "/api/mirror/capture":
		s.handleMirrorCapture(w, r)
	case post && r.URL.Path == "/api/mirror/match":
		s.handleMirrorMatch(w, r)
	case get && r.URL.Path == "/api/matches/history":
		s.handleMatchHistory(w, r)
	case get && r.URL.Path == "/api/matches/search":
		s.handleMatchSearch(w, r)
	case get && r.URL.Path == "/api/draft/history":
		s.handleDraftHistory(w, r)
	case get && r.URL.Path == "/api/draft/snapshot":
		s.handleDraftSnapshot(w, r)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failures := s.service.Ping(ctx)
	checks := map[string]any{}
	for _, name := range s.service.ReadyChecks() {
		if err, failed := failures[name]; failed {
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	status, statusCode := "ready", http.StatusOK
	if len(failures) > 0 {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSelectText(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SelectedText string `json:"selectedText"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := s.service.TriggerSelection(r.Context(), body.SelectedText)
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			writeText(w, domainErr.Status, domainErr.Message)
			return
		}
		s.logger.Error("selection trigger failed", "err", err)
		writeText(w, http.StatusInternalServerError, "Internal error.")
		return
	}
	writeText(w, http.StatusOK, status)
}

func (s *HTTPServer) handleMatchDocs(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DocID string `json:"docId"`
		URL   string `json:"url"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	docID := strings.TrimSpace(body.DocID)
	if docID == "" && body.URL != "" {
		docID, _ = docs.IDFromURL(body.URL)
	}

	entry, err := s.service.LookupMatch(r.Context(), docID)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matched": nullable(entry.Match),
		"note":    nullable(entry.Note),
	})
}

func (s *HTTPServer) handleFetchDocText(w http.ResponseWriter, r *http.Request) {
	text, err := s.service.DraftText(r.Context())
	if err != nil {
		s.logger.Error("fetch draft text failed", "err", err)
		writeText(w, http.StatusInternalServerError, "Failed to fetch doc")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": text})
}

func (s *HTTPServer) handleMirrorCapture(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.URL) == "" {
		writeError(w, http.StatusBadRequest, "MISSING_URL", "url is required", nil)
		return
	}
	cached, err := s.service.CaptureMirror(r.Context(), body.URL)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cached": cached})
}

func (s *HTTPServer) handleMirrorMatch(w http.ResponseWriter, r *http.Request) {
	matched, err := s.service.MatchMirror(r.Context())
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matchedParagraph": matched})
}

func (s *HTTPServer) handleMatchHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	events, err := s.service.MatchHistory(r.Context(), query.Get("docId"), parseLimit(query.Get("limit")))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(events))
	for _, event := range events {
		item := map[string]any{
			"id":             event.ID,
			"draftDocId":     event.DraftDocID,
			"referenceDocId": event.ReferenceDocID,
			"referenceTitle": event.ReferenceTitle,
			"trigger":        event.Trigger,
			"candidate":      event.Candidate,
			"kind":           event.Kind,
			"accepted":       event.Accepted,
			"clause":         nullable(event.Clause),
			"note":           nullable(event.Note),
			"createdAt":      event.CreatedAt,
		}
		if event.SpanStart != nil && event.SpanEnd != nil {
			item["span"] = map[string]any{"start": *event.SpanStart, "end": *event.SpanEnd, "pass": nullable(event.LocatePass)}
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleMatchSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "MISSING_QUERY", "q is required", nil)
		return
	}
	accepted, _ := strconv.ParseBool(query.Get("accepted"))
	writeJSON(w, http.StatusOK, s.service.SearchMatches(search.Query{
		Text:           text,
		ReferenceDocID: query.Get("docId"),
		AcceptedOnly:   accepted,
		Limit:          parseLimit(query.Get("limit")),
	}))
}

func (s *HTTPServer) handleDraftHistory(w http.ResponseWriter, r *http.Request) {
	commits, err := s.service.DraftHistory(parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

func (s *HTTPServer) handleDraftSnapshot(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimSpace(r.URL.Query().Get("hash"))
	if hash == "" {
		writeError(w, http.StatusBadRequest, "MISSING_HASH", "hash is required", nil)
		return
	}
	snap, err := s.service.DraftSnapshot(hash)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap})
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", "err", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeText answers the extension routes that return bare status strings.
func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// nullable maps nil and empty strings to JSON null.
func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func parseLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	if limit > 200 {
		return 200
	}
	return limit
}
