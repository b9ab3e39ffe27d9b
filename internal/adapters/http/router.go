package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kirillkom/claim-assistant/internal/config"
	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/core/ports"
	"github.com/kirillkom/claim-assistant/internal/observability/metrics"
)

const (
	defaultMaxUploadBytes = 50 << 20
	multipartMemory       = 8 << 20
)

type Router struct {
	cfg      config.Config
	sessions ports.ClaimSessions
	batches  ports.BatchSubmitter
	reader   ports.BatchReader
	exporter ports.ReceiptExporter
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	sessions ports.ClaimSessions,
	batches ports.BatchSubmitter,
	reader ports.BatchReader,
	exporter ports.ReceiptExporter,
) *Router {
	return &Router{
		cfg:      cfg,
		sessions: sessions,
		batches:  batches,
		reader:   reader,
		exporter: exporter,
	}
}

// WithMetrics exposes /metrics and records request metrics.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/sessions", rt.startSession)
	mux.HandleFunc("GET /v1/sessions/{session_id}", rt.getSession)
	mux.HandleFunc("POST /v1/sessions/{session_id}/policy", rt.selectPolicy)
	mux.HandleFunc("POST /v1/sessions/{session_id}/payout", rt.selectPayout)
	mux.HandleFunc("POST /v1/sessions/{session_id}/receipts", rt.processReceipts)
	mux.HandleFunc("GET /v1/sessions/{session_id}/receipts", rt.listReceipts)
	mux.HandleFunc("GET /v1/sessions/{session_id}/receipts.xlsx", rt.exportReceipts)
	mux.HandleFunc("POST /v1/sessions/{session_id}/documents", rt.attachDocument)
	mux.HandleFunc("POST /v1/sessions/{session_id}/messages", rt.ask)
	mux.HandleFunc("GET /v1/sessions/{session_id}/missing", rt.missingItems)

	mux.HandleFunc("POST /v1/batches", rt.submitBatch)
	mux.HandleFunc("GET /v1/batches/{batch_id}", rt.getBatch)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIBackpressureLimit, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) startSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID string `json:"client_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := rt.sessions.StartSession(r.Context(), req.ClientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSession(w, http.StatusCreated, session)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := rt.sessions.Session(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, session)
}

func (rt *Router) selectPolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PolicyID      string `json:"policy_id"`
		LifeAssuredID string `json:"life_assured_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	draft, err := rt.sessions.SelectPolicy(r.Context(), r.PathValue("session_id"), req.PolicyID, req.LifeAssuredID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (rt *Router) selectPayout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PayoutMethodID string `json:"payout_method_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	draft, err := rt.sessions.SelectPayout(r.Context(), r.PathValue("session_id"), req.PayoutMethodID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (rt *Router) processReceipts(w http.ResponseWriter, r *http.Request) {
	uploads, closeAll, ok := rt.readUploads(w, r, "files")
	if !ok {
		return
	}
	defer closeAll()

	summary, err := rt.sessions.ProcessReceipts(r.Context(), r.PathValue("session_id"), uploads)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) listReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := rt.sessions.Receipts(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

func (rt *Router) exportReceipts(w http.ResponseWriter, r *http.Request) {
	if rt.exporter == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "receipt export is not configured"})
		return
	}

	sessionID := r.PathValue("session_id")
	receipts, err := rt.sessions.Receipts(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body bytes.Buffer
	if err := rt.exporter.ExportReceipts(&body, receipts); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", rt.exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="receipts-%s.xlsx"`, sessionID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body.Bytes())
}

func (rt *Router) attachDocument(w http.ResponseWriter, r *http.Request) {
	uploads, closeAll, ok := rt.readUploads(w, r, "file")
	if !ok {
		return
	}
	defer closeAll()
	if len(uploads) != 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exactly one multipart field 'file' is required"})
		return
	}

	ref, err := rt.sessions.AttachDocument(r.Context(), r.PathValue("session_id"), uploads[0])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	reply, err := rt.sessions.Ask(r.Context(), r.PathValue("session_id"), req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (rt *Router) missingItems(w http.ResponseWriter, r *http.Request) {
	missing, err := rt.sessions.MissingItems(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if missing == nil {
		missing = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"missing": missing, "complete": len(missing) == 0})
}

func (rt *Router) submitBatch(w http.ResponseWriter, r *http.Request) {
	uploads, closeAll, ok := rt.readUploads(w, r, "files")
	if !ok {
		return
	}
	defer closeAll()

	batch, err := rt.batches.Submit(r.Context(), r.FormValue("client_id"), uploads)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, batch)
}

func (rt *Router) getBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := rt.reader.GetByID(r.Context(), r.PathValue("batch_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// readUploads parses a multipart body and opens every file under field. The
// returned closer releases the opened parts and any spooled temp files.
func (rt *Router) readUploads(w http.ResponseWriter, r *http.Request, field string) ([]domain.Upload, func(), bool) {
	limit := rt.cfg.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload is too large"})
			return nil, nil, false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("multipart field '%s' is required", field)})
		return nil, nil, false
	}

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		_ = r.MultipartForm.RemoveAll()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("multipart field '%s' is required", field)})
		return nil, nil, false
	}

	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, file := range opened {
			_ = file.Close()
		}
		_ = r.MultipartForm.RemoveAll()
	}

	uploads := make([]domain.Upload, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			closeAll()
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read uploaded file " + header.Filename})
			return nil, nil, false
		}
		opened = append(opened, file)
		uploads = append(uploads, domain.Upload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
		})
	}
	return uploads, closeAll, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

// writeSession encodes under the session lock so tool handlers running on
// the same session cannot race the encoder.
func writeSession(w http.ResponseWriter, status int, session *domain.Session) {
	session.Lock()
	body, err := json.Marshal(session)
	session.Unlock()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		loggerFromContext(r.Context()).Error("http_handler_failed",
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
