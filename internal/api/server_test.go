package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-engine/internal/common/config"
	"notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/engine"
	"notification-engine/internal/engine/fingerprint"
	"notification-engine/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type MockEngine struct {
	SubmitFunc    func(ctx context.Context, ev models.NotificationEvent) (models.SubmitResult, error)
	SubmitAllFunc func(ctx context.Context, events []models.NotificationEvent) ([]models.SubmitResult, error)
	InspectFunc   func(ctx context.Context, fp fingerprint.Fingerprint) (engine.Inspection, error)
}

func (m *MockEngine) Submit(ctx context.Context, ev models.NotificationEvent) (models.SubmitResult, error) {
	return m.SubmitFunc(ctx, ev)
}

func (m *MockEngine) SubmitAll(ctx context.Context, events []models.NotificationEvent) ([]models.SubmitResult, error) {
	return m.SubmitAllFunc(ctx, events)
}

func (m *MockEngine) Inspect(ctx context.Context, fp fingerprint.Fingerprint) (engine.Inspection, error) {
	return m.InspectFunc(ctx, fp)
}

func newTestServer(t *testing.T, eng Engine, checks map[string]ReadinessCheck) http.Handler {
	cfg := config.ServerConfig{MaxBatchSize: 2}
	return NewServer(cfg, eng, checks, logger.NewTestLogger(t)).Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const event = `{"jobId":"J1","recipientKeys":["s1"],"eventType":"assigned","priority":"high"}`

// ==========================
// Submit Tests
// ==========================

func TestSubmit_Delivered(t *testing.T) {
	var got models.NotificationEvent
	eng := &MockEngine{SubmitFunc: func(_ context.Context, ev models.NotificationEvent) (models.SubmitResult, error) {
		got = ev
		return models.SubmitResult{AuditID: "a1", Outcome: models.OutcomeDelivered}, nil
	}}

	rec := do(t, newTestServer(t, eng, nil), http.MethodPost, "/v1/notifications", event)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
	assert.Equal(t, models.OutcomeDelivered, resp.Result.Outcome)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "status-update", got.SourceTrigger)
}

func TestSubmit_SuppressionIsOK(t *testing.T) {
	eng := &MockEngine{SubmitFunc: func(context.Context, models.NotificationEvent) (models.SubmitResult, error) {
		return models.SubmitResult{Outcome: models.OutcomeSuppressedRateLimited, Reason: "rate limit reached: 5 of 5 in 1h0m0s"}, nil
	}}

	rec := do(t, newTestServer(t, eng, nil), http.MethodPost, "/v1/notifications", event)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "suppressed_rate_limited")
}

func TestSubmit_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid recipient", errors.NewInvalidRecipientError("no keys"), http.StatusBadRequest, "INVALID_RECIPIENT"},
		{"dedup down", errors.NewDedupUnavailableError(fmt.Errorf("redis")), http.StatusServiceUnavailable, "DEDUP_UNAVAILABLE"},
		{"delivery", errors.NewDeliveryFailedError("modal", fmt.Errorf("sns")), http.StatusBadGateway, "DELIVERY_FAILED"},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &MockEngine{SubmitFunc: func(context.Context, models.NotificationEvent) (models.SubmitResult, error) {
				return models.SubmitResult{Outcome: models.OutcomeFailed}, tt.err
			}}

			rec := do(t, newTestServer(t, eng, nil), http.MethodPost, "/v1/notifications", event)
			assert.Equal(t, tt.status, rec.Code)

			var resp submitResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestSubmit_RejectsMalformedBody(t *testing.T) {
	eng := &MockEngine{SubmitFunc: func(context.Context, models.NotificationEvent) (models.SubmitResult, error) {
		t.Fatal("must not submit")
		return models.SubmitResult{}, nil
	}}
	h := newTestServer(t, eng, nil)

	rec := do(t, h, http.MethodPost, "/v1/notifications", `{"jobId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/notifications", `{"jobId":"J1","colour":"red"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "PAYLOAD_SCHEMA_INVALID")
}

// ==========================
// Batch Tests
// ==========================

func TestSubmitBatch(t *testing.T) {
	eng := &MockEngine{SubmitAllFunc: func(_ context.Context, events []models.NotificationEvent) ([]models.SubmitResult, error) {
		out := make([]models.SubmitResult, len(events))
		for i, ev := range events {
			out[i] = models.SubmitResult{Outcome: models.OutcomeDelivered, RecipientID: ev.RecipientKeys[0]}
		}
		out[1] = models.SubmitResult{Outcome: models.OutcomeFailed, ErrorCode: "DELIVERY_FAILED"}
		return out, errors.NewDeliveryFailedError("banner", fmt.Errorf("queue full"))
	}}
	body := `{"events":[` + event + `,` + strings.Replace(event, "s1", "s2", 1) + `]}`

	rec := do(t, newTestServer(t, eng, nil), http.MethodPost, "/v1/notifications/batch", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "s1", resp.Results[0].RecipientID)
	assert.Equal(t, "DELIVERY_FAILED", resp.Results[1].ErrorCode)
}

func TestSubmitBatch_Limits(t *testing.T) {
	eng := &MockEngine{SubmitAllFunc: func(context.Context, []models.NotificationEvent) ([]models.SubmitResult, error) {
		t.Fatal("must not submit")
		return nil, nil
	}}
	h := newTestServer(t, eng, nil)

	rec := do(t, h, http.MethodPost, "/v1/notifications/batch", `{"events":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := `{"events":[` + event + `,` + event + `,` + event + `]}`
	rec = do(t, h, http.MethodPost, "/v1/notifications/batch", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "exceeds the limit of 2")
}

// ==========================
// Inspect Tests
// ==========================

func TestInspect(t *testing.T) {
	fp := strings.Repeat("ab", 32)
	eng := &MockEngine{InspectFunc: func(_ context.Context, got fingerprint.Fingerprint) (engine.Inspection, error) {
		return engine.Inspection{
			Fingerprint: got.String(),
			Live:        true,
			Record:      &models.DedupRecord{Fingerprint: got.String(), ExpiresAt: time.Now().Add(time.Minute)},
		}, nil
	}}
	h := newTestServer(t, eng, nil)

	rec := do(t, h, http.MethodGet, "/v1/dedup/"+fp, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out engine.Inspection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Live)
	assert.Equal(t, fp, out.Fingerprint)

	rec = do(t, h, http.MethodGet, "/v1/dedup/not-a-fingerprint", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ==========================
// Health Tests
// ==========================

func TestHealthAndReady(t *testing.T) {
	healthy := true
	checks := map[string]ReadinessCheck{
		"redis": func(context.Context) error {
			if healthy {
				return nil
			}
			return fmt.Errorf("connection refused")
		},
	}
	h := newTestServer(t, &MockEngine{}, checks)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/ready", "").Code)

	healthy = false
	rec := do(t, h, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics", "").Code)
}
