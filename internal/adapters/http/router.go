package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/uk-legal-assistant/internal/config"
	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/core/ports"
	"github.com/kirillkom/uk-legal-assistant/internal/observability/metrics"
)

const (
	serviceName       = "api"
	maxJSONBodyBytes  = 1 << 20
	multipartOverhead = 1 << 20
	uploadFormField   = "documents"
)

type Router struct {
	chat        ports.ChatService
	documents   ports.DocumentService
	scheduler   ports.IngestScheduler
	httpMetrics *metrics.HTTPServerMetrics

	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
	maxUploadFiles   int
	maxFileBytes     int64
}

func NewRouter(
	cfg config.Config,
	chat ports.ChatService,
	documents ports.DocumentService,
	scheduler ports.IngestScheduler,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	if httpMetrics == nil {
		httpMetrics = metrics.NewHTTPServerMetrics(serviceName)
	}
	maxFiles := cfg.UploadMaxFiles
	if maxFiles <= 0 {
		maxFiles = 5
	}
	maxFileBytes := cfg.UploadMaxFileBytes
	if maxFileBytes <= 0 {
		maxFileBytes = 10 << 20
	}
	return &Router{
		chat:             chat,
		documents:        documents,
		scheduler:        scheduler,
		httpMetrics:      httpMetrics,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: cfg.APIBackpressureWait,
		maxUploadFiles:   maxFiles,
		maxFileBytes:     maxFileBytes,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/chat", rt.postChat)
	api.HandleFunc("GET /v1/chat/history", rt.getChatHistory)
	api.HandleFunc("POST /v1/documents", rt.uploadDocuments)
	api.HandleFunc("GET /v1/documents", rt.listDocuments)
	api.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	api.HandleFunc("POST /v1/documents/classify", rt.classifyDocument)
	api.HandleFunc("GET /v1/documents/context", rt.documentContext)
	api.HandleFunc("POST /v1/legislation/ingest", rt.ingestLegislation)

	guarded := rateLimitMiddleware(
		backpressureMiddleware(api, rt.maxInFlight, rt.backpressureWait),
		rt.rateLimitRPS,
		rt.rateLimitBurst,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", rt.httpMetrics.Handler())
	mux.Handle("/v1/", guarded)

	return requestIDMiddleware(accessLogMiddleware(rt.httpMetrics.Middleware(serviceName, mux)))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	Query           string   `json:"query"`
	UserID          string   `json:"user_id"`
	SessionID       string   `json:"session_id"`
	RejectedUploads []string `json:"rejected_uploads"`
	HasValidUploads bool     `json:"has_valid_uploads"`
}

func (rt *Router) postChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}

	start := time.Now()
	answer, err := rt.chat.Chat(r.Context(), domain.AnswerRequest{
		Query:           req.Query,
		UserID:          req.UserID,
		SessionID:       req.SessionID,
		RejectedUploads: req.RejectedUploads,
		HasValidUploads: req.HasValidUploads,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	rt.httpMetrics.RecordAnswer(serviceName, "chat", string(answer.Mode), len(answer.Evidence), time.Since(start))
	rt.httpMetrics.RecordVariantTimeouts(serviceName, answer.TimedOut)
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) getChatHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	messages, err := rt.chat.History(r.Context(), q.Get("user_id"), q.Get("session_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type uploadResultResponse struct {
	Filename    string                   `json:"filename"`
	Status      string                   `json:"status"`
	Document    *domain.UploadedDocument `json:"document,omitempty"`
	Error       string                   `json:"error,omitempty"`
	Warnings    []string                 `json:"warnings,omitempty"`
	Suggestions []string                 `json:"suggestions,omitempty"`
}

func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	limit := int64(rt.maxUploadFiles)*rt.maxFileBytes + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload exceeds size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart form is required"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[uploadFormField]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field 'documents' is required"})
		return
	}

	files := make([]domain.UploadFile, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cannot read " + header.Filename})
			return
		}
		// One byte past the limit is enough for the per-file size check.
		data, err := io.ReadAll(io.LimitReader(f, rt.maxFileBytes+1))
		f.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cannot read " + header.Filename})
			return
		}
		files = append(files, domain.UploadFile{Filename: header.Filename, Data: data})
	}

	results := rt.documents.ProcessUploads(
		r.Context(),
		r.FormValue("session_id"),
		r.FormValue("user_id"),
		files,
	)

	out := make([]uploadResultResponse, 0, len(results))
	var firstErr error
	accepted := 0
	for _, res := range results {
		item := uploadResultResponse{Filename: res.Filename}
		switch {
		case res.Err == nil:
			item.Status = "accepted"
			item.Document = res.Document
			accepted++
		case domain.IsKind(res.Err, domain.ErrIrrelevantDocument):
			body := errorBody(res.Err)
			item.Status = "rejected"
			item.Error = body.Error
			item.Warnings = body.Warnings
			item.Suggestions = body.Suggestions
		default:
			item.Status = "failed"
			item.Error = res.Err.Error()
		}
		if res.Err != nil && firstErr == nil {
			firstErr = res.Err
		}
		rt.httpMetrics.RecordUploadOutcome(serviceName, item.Status)
		out = append(out, item)
	}

	status := http.StatusOK
	if accepted == 0 && firstErr != nil {
		status = mapErrorToHTTPStatus(firstErr)
	}
	writeJSON(w, status, map[string]any{"results": out})
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	docs, err := rt.documents.ListDocuments(r.Context(), q.Get("session_id"), q.Get("user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []domain.UploadedDocument{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := rt.documents.DeactivateDocument(r.Context(), r.PathValue("id"), r.URL.Query().Get("user_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type classifyRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

func (rt *Router) classifyDocument(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	writeJSON(w, http.StatusOK, rt.documents.ClassifyUpload(req.Text, req.Filename))
}

func (rt *Router) documentContext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	blob, found, err := rt.documents.BuildDocumentContext(r.Context(), q.Get("session_id"), q.Get("user_id"), q.Get("query"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"found": found, "context": blob})
}

type ingestRequest struct {
	Sources []domain.LegislationSource `json:"sources"`
	URLs    []string                   `json:"urls"`
}

func (rt *Router) ingestLegislation(w http.ResponseWriter, r *http.Request) {
	if rt.scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "ingestion queue is not configured"})
		return
	}
	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	sources := req.Sources
	for _, u := range req.URLs {
		sources = append(sources, domain.LegislationSource{URL: u})
	}

	queued, err := rt.scheduler.Schedule(r.Context(), sources)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
