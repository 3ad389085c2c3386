package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eugenenazirov/digitsum/internal/digitsum"
	"github.com/eugenenazirov/digitsum/internal/metrics"
	"github.com/eugenenazirov/digitsum/internal/session"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	router http.Handler
	clock  *controllableClock
	store  *session.MemoryStore
	spans  *tracetest.SpanRecorder
}

func setupTestRouter(t *testing.T, opts ...HandlerOption) testEnv {
	t.Helper()

	store := session.NewMemoryStore(16)
	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))
	spans := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	opts = append([]HandlerOption{
		WithClock(clock.Now),
		WithTracer(provider.Tracer("test")),
		WithMetrics(metrics.New()),
	}, opts...)
	handler := NewHandler(digitsum.New(), store, opts...)
	router := NewRouter(handler, zaptest.NewLogger(t), WithLogging(false), WithRateLimit(0, 0))

	return testEnv{router: router, clock: clock, store: store, spans: spans}
}

func doRequest(t *testing.T, handler http.Handler, method, target, body, sessionID string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set(sessionIDHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type computeBody struct {
	OriginalInput         string          `json:"originalInput"`
	Digits                []int           `json:"digits"`
	Steps                 []digitsum.Step `json:"steps"`
	Sum                   int             `json:"sum"`
	CalculationExpression string          `json:"calculationExpression"`
	CalculationTimeMs     *int64          `json:"calculationTimeMs"`
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	if got := sessionIDFromContext(ctx); got != "" {
		t.Fatalf("expected empty session id, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestHealthEndpoint(t *testing.T) {
	env := setupTestRouter(t)

	rec := doRequest(t, env.router, http.MethodGet, "/api/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(env.clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", env.clock.Now(), body.Timestamp)
	}
}

func TestComputeEndpointReturnsTrace(t *testing.T) {
	env := setupTestRouter(t)

	rec := doRequest(t, env.router, http.MethodPost, "/api/digit-sum", `{"input":"12345"}`, "s1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(sessionIDHeader); got != "s1" {
		t.Fatalf("expected session header s1, got %q", got)
	}

	var body computeBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.OriginalInput != "12345" || body.Sum != 15 || body.CalculationExpression != "1 + 2 + 3 + 4 + 5" {
		t.Fatalf("unexpected body: %+v", body)
	}
	wantPartials := []int{1, 3, 6, 10, 15}
	if len(body.Steps) != len(wantPartials) {
		t.Fatalf("expected %d steps, got %d", len(wantPartials), len(body.Steps))
	}
	for i, step := range body.Steps {
		if step.Partial != wantPartials[i] || step.Digit != body.Digits[i] {
			t.Fatalf("unexpected step %d: %+v", i, step)
		}
	}
	if body.CalculationTimeMs == nil {
		t.Fatalf("expected calculationTimeMs field")
	}

	var computeSpan sdktrace.ReadOnlySpan
	for _, span := range env.spans.Ended() {
		if span.Name() == "digitsum.compute" {
			computeSpan = span
		}
	}
	if computeSpan == nil {
		t.Fatalf("expected digitsum.compute span to be recorded")
	}
	attrs := map[string]int64{}
	for _, kv := range computeSpan.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInt64()
	}
	if attrs["digitsum.sum"] != 15 || attrs["digitsum.digits"] != 5 {
		t.Fatalf("unexpected span attributes: %v", attrs)
	}
}

func TestComputeEndpointRejectsInvalidNumbers(t *testing.T) {
	env := setupTestRouter(t)

	for _, payload := range []string{`{"input":""}`, `{"input":"abc"}`, `{}`} {
		rec := doRequest(t, env.router, http.MethodPost, "/api/digit-sum", payload, "s1")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", payload, rec.Code)
		}

		var body errorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body.Error != digitsum.FailureMessage {
			t.Fatalf("%s: expected error %q, got %q", payload, digitsum.FailureMessage, body.Error)
		}
	}
}

func TestComputeEndpointRejectsMalformedJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "truncated object", body: `{"input":`},
		{name: "trailing garbage", body: `{"input":"1"} garbage`},
		{name: "second object", body: `{"input":"1"}{"input":"2"}`},
		{name: "not an object", body: `["1"]`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTestRouter(t)

			rec := doRequest(t, env.router, http.MethodPost, "/api/digit-sum", tc.body, "s1")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body.Error != "Invalid request" {
				t.Fatalf("expected invalid request error, got %q", body.Error)
			}
			if env.store.Len() != 0 {
				t.Fatalf("malformed request must not touch the session")
			}
		})
	}
}

func TestComputeEndpointAcceptsTrailingWhitespace(t *testing.T) {
	env := setupTestRouter(t)

	rec := doRequest(t, env.router, http.MethodPost, "/api/digit-sum", "{\"input\":\"12\"}\n  ", "s1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestDecodeComputeRequestReportsTrailingObject(t *testing.T) {
	_, err := decodeComputeRequest(strings.NewReader(`{"input":"1"} {}`))
	if !errors.Is(err, errTrailingData) {
		t.Fatalf("expected errTrailingData, got %v", err)
	}
}

func TestComputeEndpointRejectsOversizedBody(t *testing.T) {
	env := setupTestRouter(t, WithMaxBodyBytes(32))

	payload, err := json.Marshal(map[string]string{"input": strings.Repeat("9", 64)})
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/digit-sum", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rec.Code)
	}
}

func TestLastAndResetFlow(t *testing.T) {
	env := setupTestRouter(t)

	rec := doRequest(t, env.router, http.MethodGet, "/api/digit-sum/last", "", "s1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected idle session to return 404, got %d", rec.Code)
	}

	env.clock.Advance(time.Minute)
	rec = doRequest(t, env.router, http.MethodPost, "/api/digit-sum", `{"input":"-908"}`, "s1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = doRequest(t, env.router, http.MethodGet, "/api/digit-sum/last", "", "s1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var entry session.Entry
	if err := json.NewDecoder(rec.Body).Decode(&entry); err != nil {
		t.Fatalf("failed to decode entry: %v", err)
	}
	if entry.Input != "-908" || entry.Result == nil || entry.Result.Sum != 17 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if !entry.ComputedAt.Equal(env.clock.Now()) {
		t.Fatalf("expected computedAt %s, got %s", env.clock.Now(), entry.ComputedAt)
	}

	// other sessions stay idle
	rec = doRequest(t, env.router, http.MethodGet, "/api/digit-sum/last", "", "s2")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected other session to be idle, got %d", rec.Code)
	}

	rec = doRequest(t, env.router, http.MethodDelete, "/api/digit-sum/last", "", "s1")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}

	rec = doRequest(t, env.router, http.MethodGet, "/api/digit-sum/last", "", "s1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after reset, got %d", rec.Code)
	}
}

func TestInvalidInputIsRecordedAsFailure(t *testing.T) {
	env := setupTestRouter(t)

	doRequest(t, env.router, http.MethodPost, "/api/digit-sum", `{"input":"abc"}`, "s1")

	entry, err := env.store.Last("s1")
	if err != nil {
		t.Fatalf("expected recorded entry: %v", err)
	}
	if entry.Result != nil || entry.Failure == nil || entry.Failure.Error != digitsum.FailureMessage {
		t.Fatalf("expected failure entry, got %+v", entry)
	}
}

func TestComputeWithoutSessionHeaderMintsOne(t *testing.T) {
	env := setupTestRouter(t)

	rec := doRequest(t, env.router, http.MethodPost, "/api/digit-sum", `{"input":"7"}`, "")
	sessionID := rec.Header().Get(sessionIDHeader)
	if sessionID == "" {
		t.Fatalf("expected generated session id")
	}
	if _, err := env.store.Last(sessionID); err != nil {
		t.Fatalf("expected entry under generated session: %v", err)
	}
}

type failingStore struct {
	session.Store
}

func (failingStore) Record(session.Entry) error { return errors.New("store unavailable") }

func TestComputeSucceedsWhenSessionStoreFails(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	handler := NewHandler(digitsum.New(), failingStore{Store: session.NewMemoryStore(1)}, WithHandlerLogger(zap.New(core)))
	router := NewRouter(handler, zap.NewNop(), WithLogging(false), WithRateLimit(0, 0))

	rec := doRequest(t, router, http.MethodPost, "/api/digit-sum", `{"input":"55"}`, "s1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected 1 warning, got %d", logs.Len())
	}
}

type brokenCalculator struct{}

func (brokenCalculator) Compute(string) (digitsum.Result, error) {
	return digitsum.Result{}, errors.New("unexpected")
}

func TestComputeMapsUnexpectedErrorsToInternalError(t *testing.T) {
	handler := NewHandler(brokenCalculator{}, session.NewMemoryStore(1))
	router := NewRouter(handler, zap.NewNop(), WithLogging(false), WithRateLimit(0, 0))

	rec := doRequest(t, router, http.MethodPost, "/api/digit-sum", `{"input":"1"}`, "s1")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}
