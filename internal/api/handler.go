package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/eugenenazirov/digitsum/internal/digitsum"
	"github.com/eugenenazirov/digitsum/internal/metrics"
	"github.com/eugenenazirov/digitsum/internal/session"
	"github.com/eugenenazirov/digitsum/internal/tracing"
)

// DefaultMaxBodyBytes bounds compute request bodies.
const DefaultMaxBodyBytes int64 = 64 << 10

// Handler wires calculator and session dependencies into HTTP handlers.
type Handler struct {
	calculator digitsum.Calculator
	sessions   session.Store

	metrics      *metrics.Recorder
	tracer       trace.Tracer
	logger       *zap.Logger
	maxBodyBytes int64

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithMetrics records computations on rec and exposes it under /metrics.
func WithMetrics(rec *metrics.Recorder) HandlerOption {
	return func(h *Handler) {
		h.metrics = rec
	}
}

// WithTracer overrides the tracer used for compute spans.
func WithTracer(tracer trace.Tracer) HandlerOption {
	return func(h *Handler) {
		h.tracer = tracer
	}
}

// WithHandlerLogger sets the logger used for non-request diagnostics.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMaxBodyBytes limits the size of compute request bodies.
func WithMaxBodyBytes(limit int64) HandlerOption {
	return func(h *Handler) {
		if limit > 0 {
			h.maxBodyBytes = limit
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(calc digitsum.Calculator, store session.Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		calculator:   calc,
		sessions:     store,
		tracer:       tracing.Tracer(),
		logger:       zap.NewNop(),
		maxBodyBytes: DefaultMaxBodyBytes,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCompute(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "digitsum.compute")
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	req, err := decodeComputeRequest(r.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request too large",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	sessionID := sessionIDFromContext(ctx)
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("digitsum.input_length", len(req.Input)),
	)

	start := time.Now()
	result, calcErr := h.calculator.Compute(req.Input)
	elapsed := time.Since(start)

	entry := session.Entry{
		SessionID:  sessionID,
		Input:      req.Input,
		ComputedAt: h.clock(),
	}

	if calcErr != nil {
		span.RecordError(calcErr)
		failure, ok := digitsum.AsFailure(calcErr)
		if !ok {
			span.SetStatus(codes.Error, "compute failed")
			writeInternalError(w, calcErr)
			return
		}
		span.SetStatus(codes.Error, failure.Error)

		h.metrics.ObserveFailure(elapsed)
		entry.Failure = &failure
		h.record(entry)
		writeError(w, http.StatusBadRequest, failure.Error, calcErr.Error())
		return
	}

	h.metrics.ObserveSuccess(result, elapsed)
	entry.Result = &result
	h.record(entry)

	span.SetAttributes(
		attribute.Int("digitsum.digits", len(result.Digits)),
		attribute.Int("digitsum.sum", result.Sum),
	)
	span.SetStatus(codes.Ok, "")

	writeJSON(w, http.StatusOK, computeResponse{
		Result:            result,
		CalculationTimeMs: elapsed.Milliseconds(),
	})
}

func (h *Handler) handleGetLast(w http.ResponseWriter, r *http.Request) {
	entry, err := h.sessions.Last(sessionIDFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No computation", err.Error(), "POST /api/digit-sum to compute a result")
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Reset(sessionIDFromContext(r.Context())); err != nil {
		writeInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// record stores entry; a failing store never fails the computation itself.
func (h *Handler) record(entry session.Entry) {
	if err := h.sessions.Record(entry); err != nil {
		h.logger.Warn("failed to record session entry",
			zap.String("session_id", entry.SessionID),
			zap.Error(err),
		)
	}
}

type computeRequest struct {
	Input string `json:"input"`
}

type computeResponse struct {
	digitsum.Result
	CalculationTimeMs int64 `json:"calculationTimeMs"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}

var errTrailingData = errors.New("unexpected data after JSON payload")

// decodeComputeRequest reads exactly one JSON object from body.
func decodeComputeRequest(body io.Reader) (computeRequest, error) {
	var req computeRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		return computeRequest{}, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errTrailingData
		}
		return computeRequest{}, err
	}
	return req, nil
}
