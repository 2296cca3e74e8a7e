package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/oncostack/dvh-engine/internal/dvh"
	"github.com/oncostack/dvh-engine/internal/engine"
	"github.com/oncostack/dvh-engine/internal/radbio"
	"github.com/oncostack/dvh-engine/internal/services"
)

// Handler serves the plan evaluation API.
type Handler struct {
	logger         *slog.Logger
	service        *services.EvaluationService
	maxUploadBytes int64
}

// NewHandler constructs the API handler.
func NewHandler(logger *slog.Logger, service *services.EvaluationService, maxUploadBytes int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 100 << 20
	}
	return &Handler{logger: logger, service: service, maxUploadBytes: maxUploadBytes}
}

// Routes returns the HTTP mux for the evaluation API.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/api/v1/plans/evaluate", h.handleEvaluate)
	mux.HandleFunc("/api/v1/plans/compare", h.handleCompare)
	return mux
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleEvaluate accepts one cumulative DVH export, either as a multipart
// "file" part or as a raw text body, and returns the plan's OutcomeRecord.
func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if !enforcePost(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	planName, body, err := h.planUpload(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer body.Close()

	record, err := h.service.EvaluatePlan(r.Context(), planName, body)
	if err != nil {
		h.writeEvaluationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleCompare accepts two exports as multipart parts "plan_a" and
// "plan_b" and returns both records plus their field-wise deltas.
func (h *Handler) handleCompare(w http.ResponseWriter, r *http.Request) {
	if !enforcePost(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("expected multipart form with plan_a and plan_b files"))
		return
	}
	nameA, fileA, err := formFile(r, "plan_a")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer fileA.Close()
	nameB, fileB, err := formFile(r, "plan_b")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer fileB.Close()

	result, err := h.service.ComparePlans(r.Context(), nameA, fileA, nameB, fileB)
	if err != nil {
		h.writeEvaluationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// planUpload extracts the plan upload from a multipart part when present,
// falling back to the raw request body.
func (h *Handler) planUpload(r *http.Request, field string) (string, io.ReadCloser, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			return "", nil, errors.New("malformed multipart form")
		}
		return formFile(r, field)
	}

	planName := r.URL.Query().Get("plan")
	if planName == "" {
		planName = r.Header.Get("X-Plan-Name")
	}
	if planName == "" {
		planName = "uploaded-plan"
	}
	return planName, r.Body, nil
}

func formFile(r *http.Request, field string) (string, multipart.File, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, errors.New("missing file field " + field)
	}
	name := strings.TrimSuffix(header.Filename, ".txt")
	if name == "" {
		name = field
	}
	return name, file, nil
}

type errorResponse struct {
	Error string `json:"error"`
	Plan  string `json:"plan,omitempty"`
	Stage string `json:"stage,omitempty"`
	Organ string `json:"organ,omitempty"`
}

// writeEvaluationError maps the evaluation error taxonomy onto HTTP
// status codes: malformed or clinically invalid input is 422, everything
// else is an internal error. The body names the exact failing structure
// or parameter, never a generic message.
func (h *Handler) writeEvaluationError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}

	var evalErr *engine.EvaluationError
	if errors.As(err, &evalErr) {
		resp.Plan = evalErr.Plan
		resp.Stage = string(evalErr.Stage)
		resp.Organ = string(evalErr.Organ)
	}

	status := http.StatusInternalServerError
	var parseErr *dvh.ParseError
	var formatErr *dvh.FormatError
	var conversionErr *dvh.ConversionError
	var notFoundErr *dvh.StructureNotFoundError
	var paramErr *radbio.ModelParameterError
	switch {
	case errors.As(err, &parseErr), errors.As(err, &formatErr),
		errors.As(err, &conversionErr), errors.As(err, &notFoundErr),
		errors.As(err, &paramErr):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("evaluation request failed", slog.Any("error", err))
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}
