package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"qr-campaign-analytics/internal/features"
	"qr-campaign-analytics/internal/models"
	"qr-campaign-analytics/internal/service"
	"qr-campaign-analytics/internal/simulator"
	"qr-campaign-analytics/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
	logger      *zap.Logger
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
	Logger      *zap.Logger
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 10 << 20, // 10MB default
		Logger:      zap.NewNop(),
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultHandlerOptions().MaxBodySize
	}
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
		logger:      opts.Logger,
	}
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/scans", func(r chi.Router) {
		r.Post("/", h.IngestScans)
	})

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/timeseries", h.TimeSeries)
		r.Get("/summary", analyticsHandler(h, h.service.Summary))
		r.Get("/consistency", analyticsHandler(h, h.service.Consistency))
		r.Get("/cohorts", analyticsHandler(h, h.service.Cohorts))
		r.Get("/rfm", analyticsHandler(h, h.service.RFM))
		r.Get("/rates", analyticsHandler(h, h.service.ActivityRates))
		r.Get("/claims", analyticsHandler(h, h.service.ClaimSpeed))
		r.Get("/prizes", analyticsHandler(h, h.service.PrizeStats))
		r.Get("/time-of-day", analyticsHandler(h, h.service.TimeOfDay))
		r.Get("/users", analyticsHandler(h, h.service.UserActivity))
	})

	r.Route("/simulations", func(r chi.Router) {
		r.Post("/", h.Simulate)
		r.Post("/compare", h.CompareSimulations)
	})
}

// HealthResponse is the payload of GET /health.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Features []features.FeatureFlag `json:"features"`
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Health(r.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		h.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}
	h.respondJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Features: h.service.Features().List(),
	})
}

// IngestScans handles POST /scans
func (h *Handler) IngestScans(w http.ResponseWriter, r *http.Request) {
	var req models.IngestScansRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	for i := range req.Scans {
		scan := &req.Scans[i]
		scan.ID = validation.SanitizeString(scan.ID)
		for k, v := range scan.Identifiers {
			scan.Identifiers[k] = validation.SanitizeString(v)
		}
	}

	resp, err := h.service.IngestScans(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, resp)
}

// TimeSeries handles GET /analytics/timeseries
func (h *Handler) TimeSeries(w http.ResponseWriter, r *http.Request) {
	q, err := parseAnalyticsQuery(r)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	resp, err := h.service.TimeSeries(r.Context(), q)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// analyticsHandler adapts a query-driven service method to an HTTP handler.
func analyticsHandler[T any](h *Handler, run func(context.Context, models.AnalyticsQuery) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseAnalyticsQuery(r)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}

		resp, err := run(r.Context(), q)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}

		h.respondJSON(w, http.StatusOK, resp)
	}
}

// Simulate handles POST /simulations. Omitted fields keep their defaults.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	cfg := simulator.DefaultConfig()
	if !h.decodeBody(w, r, &cfg) {
		return
	}

	res, err := h.service.Simulate(r.Context(), cfg)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, res)
}

// CompareRequest is the body of POST /simulations/compare.
type CompareRequest struct {
	Config simulator.Config `json:"config"`
	Values []float64        `json:"values"`
}

// CompareSimulations handles POST /simulations/compare
func (h *Handler) CompareSimulations(w http.ResponseWriter, r *http.Request) {
	req := CompareRequest{Config: simulator.DefaultConfig()}
	if !h.decodeBody(w, r, &req) {
		return
	}

	rows, err := h.service.CompareSimulations(r.Context(), req.Config, req.Values)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, rows)
}

// parseAnalyticsQuery reads the dashboard selection from the query string.
// Dates are wall clock values in the requested time zone.
func parseAnalyticsQuery(r *http.Request) (models.AnalyticsQuery, error) {
	v := r.URL.Query()
	q := models.AnalyticsQuery{
		Field:       models.TimestampField(validation.SanitizeString(v.Get("field"))),
		Granularity: validation.SanitizeString(v.Get("granularity")),
		Timezone:    validation.SanitizeString(v.Get("tz")),
		UserField:   validation.SanitizeString(v.Get("user_field")),
		Regions:     splitList(v.Get("regions")),
		Received:    validation.SanitizeString(v.Get("received")),
		Scope:       validation.SanitizeString(v.Get("scope")),
		RateBasis:   validation.SanitizeString(v.Get("basis")),
	}

	for _, wt := range splitList(v.Get("win_types")) {
		q.WinTypes = append(q.WinTypes, models.WinType(wt))
	}

	var err error
	if q.Unique, err = parseBool(v.Get("unique"), "unique"); err != nil {
		return q, err
	}
	if q.RealPrizesOnly, err = parseBool(v.Get("real_only"), "real_only"); err != nil {
		return q, err
	}

	if raw := validation.SanitizeString(v.Get("from")); raw != "" {
		if q.From, err = validation.ValidateTimeString("from", raw); err != nil {
			return q, err
		}
	}
	if raw := validation.SanitizeString(v.Get("to")); raw != "" {
		if q.To, err = validation.ValidateTimeString("to", raw); err != nil {
			return q, err
		}
		// A bare date includes the whole day.
		if len(raw) == len(time.DateOnly) {
			q.To = q.To.Add(24*time.Hour - time.Nanosecond)
		}
	}

	return q, nil
}

func parseBool(raw, field string) (bool, error) {
	raw = validation.SanitizeString(raw)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &validation.ValidationError{Field: field, Message: "must be a boolean"}
	}
	return b, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := validation.SanitizeString(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decodeBody reads a size-limited JSON body into dst and reports failures itself.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			h.respondError(w, http.StatusBadRequest, "request body is required")
		case errors.As(err, &maxErr):
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		default:
			h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		}
		return false
	}
	return true
}

// respondServiceError maps validation errors to 400 and everything else to 500.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var vErr *validation.ValidationError
	if errors.As(err, &vErr) {
		h.respondError(w, http.StatusBadRequest, vErr.Error())
		return
	}

	h.logger.Error("request failed", zap.Error(err))
	h.respondError(w, http.StatusInternalServerError, "internal server error")
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
