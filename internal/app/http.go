package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kanban/api/internal/store"
)

// Options configures either transport adapter.
type Options struct {
	CORSOrigin string
	// StaticDir, when set, serves the built client with an index.html
	// fallback for every non-API path.
	StaticDir string
	Logger    log.FieldLogger
}

func (o Options) logger() log.FieldLogger {
	if o.Logger == nil {
		return log.StandardLogger()
	}
	return o.Logger
}

func (o Options) corsOrigin() string {
	if o.CORSOrigin == "" {
		return "*"
	}
	return o.CORSOrigin
}

type HTTPServer struct {
	service    *Service
	corsOrigin string
	static     http.Handler
	logger     log.FieldLogger
}

func NewHTTPServer(service *Service, opts Options) *HTTPServer {
	server := &HTTPServer{service: service, corsOrigin: opts.corsOrigin(), logger: opts.logger()}
	if opts.StaticDir != "" {
		server.static = staticHandler(opts.StaticDir)
	}
	return server
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		status, payload := readiness(r.Context(), s.service)
		writeJSON(w, status, payload)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) == 0 || parts[0] != "api" {
		if s.static != nil && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
			s.static.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "lists":
		s.handleLists(w, r)
	case len(parts) == 3 && parts[1] == "lists":
		s.handleList(w, r, parts[2])
	case len(parts) == 2 && parts[1] == "cards":
		s.handleCards(w, r)
	case len(parts) == 3 && parts[1] == "cards":
		s.handleCard(w, r, parts[2])
	case len(parts) == 4 && parts[1] == "cards" && parts[3] == "move":
		s.handleCardMove(w, r, parts[2])
	case len(parts) == 2 && parts[1] == "search":
		s.handleSearch(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleLists(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		payload, err := s.service.BoardJSON(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeRawJSON(w, http.StatusOK, payload)
	case http.MethodPost:
		var body ListInput
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		list, err := s.service.CreateList(r.Context(), body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, list)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request, rawID string) {
	if r.Method != http.MethodPut && r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	id, ok := parseID(rawID)
	if !ok {
		s.writeServiceError(w, r, notFound("List not found"))
		return
	}

	if r.Method == http.MethodPut {
		var body ListInput
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		list, err := s.service.RenameList(r.Context(), id, body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
		return
	}

	if err := s.service.DeleteList(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleCards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	var body CreateCardInput
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	card, err := s.service.CreateCard(r.Context(), body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (s *HTTPServer) handleCard(w http.ResponseWriter, r *http.Request, rawID string) {
	if r.Method != http.MethodPut && r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	id, ok := parseID(rawID)
	if !ok {
		s.writeServiceError(w, r, notFound("Card not found"))
		return
	}

	if r.Method == http.MethodPut {
		var body EditCardInput
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		card, err := s.service.EditCard(r.Context(), id, body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, card)
		return
	}

	if err := s.service.DeleteCard(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleCardMove takes {target_list_id, position}; both are required and a
// negative position is rejected with 400 VALIDATION_ERROR.
func (s *HTTPServer) handleCardMove(w http.ResponseWriter, r *http.Request, rawID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	var body MoveCardInput
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	id, ok := parseID(rawID)
	if !ok {
		if body.TargetListID == nil || body.Position == nil {
			s.writeServiceError(w, r, validationError("target_list_id and position are required"))
			return
		}
		s.writeServiceError(w, r, notFound("Card not found"))
		return
	}
	if err := s.service.MoveCard(r.Context(), id, body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	payload, err := s.service.SearchCards(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("request_id", requestIDFromContext(r.Context())).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFrom(r.Header.Get("X-Request-ID"))
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		logAccess(s.logger, requestID, r.Method, r.URL.Path, writer.status, started)
	})
}

type requestIDKey struct{}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDFrom(header string) string {
	if id := strings.TrimSpace(header); id != "" {
		return id
	}
	return uuid.NewString()
}

func logAccess(logger log.FieldLogger, requestID, method, path string, status int, started time.Time) {
	logger.WithFields(log.Fields{
		"request_id":  requestID,
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("request")
}

// readiness pings the store and reports the result for /api/ready.
func readiness(ctx context.Context, service *Service) (int, map[string]any) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	return statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	setJSONHeaders(w.Header())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRawJSON(w http.ResponseWriter, status int, payload []byte) {
	setJSONHeaders(w.Header())
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func setJSONHeaders(header http.Header) {
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorBody(code, message, details))
}

func errorBody(code, message string, details any) map[string]any {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	return response
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return fmt.Errorf("invalid JSON body")
	}
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	defer body.Close()
	decoder := json.NewDecoder(body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", err.Error(), nil
}

func staticHandler(dir string) http.Handler {
	files := http.Dir(dir)
	fileServer := http.FileServer(files)
	index := filepath.Join(dir, "index.html")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f, err := files.Open(path.Clean("/" + r.URL.Path)); err == nil {
			stat, statErr := f.Stat()
			_ = f.Close()
			if statErr == nil && !stat.IsDir() {
				fileServer.ServeHTTP(w, r)
				return
			}
		}
		http.ServeFile(w, r, index)
	})
}
