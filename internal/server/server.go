package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/bess-engine/internal/config"
	"github.com/iwvelando/bess-engine/internal/engine"
	"github.com/iwvelando/bess-engine/internal/optimizer"
	"github.com/iwvelando/bess-engine/pkg/cache"
	"github.com/iwvelando/bess-engine/pkg/constants"
	"github.com/iwvelando/bess-engine/pkg/cost"
	"github.com/iwvelando/bess-engine/pkg/output"
	"github.com/iwvelando/bess-engine/pkg/revenue"
	"github.com/iwvelando/bess-engine/pkg/sizing"
	"github.com/iwvelando/bess-engine/pkg/validation"
	"go.uber.org/zap"
)

// Service is the engine surface served over HTTP.
type Service interface {
	SizeFacility(ctx context.Context, facility sizing.FacilityInput) (sizing.Result, error)
	PriceEquipment(ctx context.Context, sz sizing.Result, cfg cost.EquipmentConfig) (cost.Breakdown, error)
	ComputeFinancials(ctx context.Context, breakdown cost.Breakdown, rates revenue.TariffInput, params engine.FinancialParams) (engine.FinancialReport, error)
	Quote(ctx context.Context, req engine.QuoteRequest) (engine.Quote, error)
	UseCases(ctx context.Context) ([]string, error)
	CacheStats() map[string]cache.Stats
	PurgeCache()
}

// Options tune the handler. Zero values select the defaults.
type Options struct {
	MaxUploadSize int64
	Version       string
	Durations     []float64
}

type handler struct {
	logger        *zap.Logger
	service       Service
	runner        *optimizer.Runner
	maxUploadSize int64
	version       string
	durations     []float64
}

// PriceRequest is the body of /api/price.
type PriceRequest struct {
	Sizing    sizing.Result        `json:"sizing"`
	Equipment cost.EquipmentConfig `json:"equipment,omitempty"`
}

// FinancialsRequest is the body of /api/financials.
type FinancialsRequest struct {
	Costs     cost.Breakdown         `json:"costs"`
	Rates     revenue.TariffInput    `json:"rates,omitempty"`
	Financial engine.FinancialParams `json:"financial,omitempty"`
}

// NewHandler constructs the HTTP handler that serves the quoting API.
func NewHandler(logger *zap.Logger, service Service, opts Options) (http.Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = constants.DefaultMaxUploadSizeBytes
	}
	trimmedVersion := strings.TrimSpace(opts.Version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}
	runner, err := optimizer.NewRunner(logger, service)
	if err != nil {
		return nil, err
	}

	h := &handler{
		logger:        logger,
		service:       service,
		runner:        runner,
		maxUploadSize: opts.MaxUploadSize,
		version:       trimmedVersion,
		durations:     opts.Durations,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/size", h.handleSize)
	mux.HandleFunc("/api/price", h.handlePrice)
	mux.HandleFunc("/api/financials", h.handleFinancials)
	mux.HandleFunc("/api/quote", h.handleQuote)
	mux.HandleFunc("/api/quote/upload", h.handleQuoteUpload)
	mux.HandleFunc("/api/usecases", h.handleUseCases)
	mux.HandleFunc("/api/cache", h.handleCache)
	mux.HandleFunc("/api/version", h.handleVersion)
	return mux, nil
}

func (h *handler) handleSize(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleSize"
	var facility sizing.FacilityInput
	if !h.decodePost(w, r, op, &facility) {
		return
	}
	result, err := h.service.SizeFacility(r.Context(), facility)
	if err != nil {
		h.respondServiceError(w, err, op)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *handler) handlePrice(w http.ResponseWriter, r *http.Request) {
	const op = "server.handlePrice"
	var req PriceRequest
	if !h.decodePost(w, r, op, &req) {
		return
	}
	breakdown, err := h.service.PriceEquipment(r.Context(), req.Sizing, req.Equipment)
	if err != nil {
		h.respondServiceError(w, err, op)
		return
	}
	h.writeJSON(w, http.StatusOK, breakdown)
}

func (h *handler) handleFinancials(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleFinancials"
	var req FinancialsRequest
	if !h.decodePost(w, r, op, &req) {
		return
	}
	report, err := h.service.ComputeFinancials(r.Context(), req.Costs, req.Rates, req.Financial)
	if err != nil {
		h.respondServiceError(w, err, op)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleQuote"
	var req engine.QuoteRequest
	if !h.decodePost(w, r, op, &req) {
		return
	}
	h.runQuote(w, r, req, op)
}

func (h *handler) handleQuoteUpload(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleQuoteUpload"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %d bytes", h.maxUploadSize), op)
			return
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to parse upload: %v", err), op)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, "missing quote request file", op)
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.logger.Warn("failed to close uploaded file",
				zap.String("op", op),
				zap.Error(closeErr),
			)
		}
	}()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to read quote request: %v", err), op)
		return
	}
	req, err := config.ParseQuoteRequest(&buf)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}
	h.runQuote(w, r, req, op)
}

func (h *handler) runQuote(w http.ResponseWriter, r *http.Request, req engine.QuoteRequest, op string) {
	start := time.Now()
	format := r.URL.Query().Get("format")
	if format == "" {
		format = constants.OutputFormatJSON
	}
	if err := validation.ValidateOutputFormat(format); err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	var report output.Report
	if coerceBool(r.URL.Query().Get("optimize")) {
		result, err := h.runner.Run(r.Context(), req, h.durations)
		if err != nil {
			h.respondServiceError(w, err, op)
			return
		}
		report.Quote = result.Best
		summary := result.Summary
		report.Optimization = &summary
	} else {
		quote, err := h.service.Quote(r.Context(), req)
		if err != nil {
			h.respondServiceError(w, err, op)
			return
		}
		report.Quote = quote
	}
	report.Quote.Warnings = append(requestWarnings(req, report.Quote), report.Quote.Warnings...)

	h.logger.Info("quote served",
		zap.String("op", op),
		zap.String("quote_id", report.Quote.ID),
		zap.Bool("optimized", report.Optimization != nil),
		zap.String("format", format),
		zap.Duration("duration", time.Since(start)),
	)

	if format == constants.OutputFormatJSON {
		h.writeJSON(w, http.StatusOK, report)
		return
	}
	var buf bytes.Buffer
	if err := output.Write(&buf, format, report); err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to render quote: %v", err), op)
		return
	}
	contentType := "text/plain; charset=utf-8"
	if format == constants.OutputFormatCSV {
		contentType = "text/csv; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("failed to write response", zap.String("op", op), zap.Error(err))
	}
}

// requestWarnings flags questionable but accepted request values.
func requestWarnings(req engine.QuoteRequest, quote engine.Quote) []string {
	rv := validation.RequestValidator{
		Facility:             req.Facility,
		Equipment:            req.Equipment,
		Rates:                req.Rates,
		ProjectLifetimeYears: quote.Financials.Input.ProjectLifetimeYears,
	}
	return rv.ValidateAll()
}

func (h *handler) handleUseCases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	slugs, err := h.service.UseCases(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "server.handleUseCases")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]string{"useCases": slugs})
}

// handleCache reports the cache counters on GET and drops the in-process
// entries on DELETE.
func (h *handler) handleCache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.writeJSON(w, http.StatusOK, h.service.CacheStats())
	case http.MethodDelete:
		h.service.PurgeCache()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

// decodePost reads a JSON body into v. It writes the error response itself
// and reports whether the handler should continue.
func (h *handler) decodePost(w http.ResponseWriter, r *http.Request, op string, v interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request exceeds limit of %d bytes", h.maxUploadSize), op)
			return false
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err), op)
		return false
	}
	return true
}

// StatusFor maps an engine error onto an HTTP status.
func StatusFor(err error) int {
	var mismatch *cost.ReconciliationError
	switch {
	case engine.IsInvalidInput(err):
		return http.StatusBadRequest
	case errors.Is(err, sizing.ErrUnknownUseCase):
		return http.StatusNotFound
	case errors.As(err, &mismatch):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *handler) respondServiceError(w http.ResponseWriter, err error, op string) {
	h.respondErrorWithOp(w, StatusFor(err), err.Error(), op)
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("op", op),
			zap.Int("status", status),
			zap.String("error", msg),
		)
	} else {
		h.logger.Warn("request rejected",
			zap.String("op", op),
			zap.Int("status", status),
			zap.String("error", msg),
		)
	}

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func coerceBool(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}
	parsed, err := strconv.ParseBool(trimmed)
	return err == nil && parsed
}
