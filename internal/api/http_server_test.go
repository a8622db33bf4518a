package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"recpay/internal/booking"
	"recpay/internal/catalog"
	"recpay/internal/config"
	"recpay/internal/engine"
	"recpay/internal/events"
	"recpay/internal/models"
	"recpay/internal/payhero"
	"recpay/internal/recommend"
	"recpay/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey   = "test-key"
	testAPIExtra = "test-extra"
)

type stubPay struct {
	mu       sync.Mutex
	initiate payhero.InitiateResult
	statuses []payhero.StatusResult
}

func (s *stubPay) Initiate(ctx context.Context, amount int64, phone, reference string) payhero.InitiateResult {
	res := s.initiate
	res.Reference = reference
	return res
}

func (s *stubPay) CheckStatus(ctx context.Context, reference, checkoutID string) payhero.StatusResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return payhero.StatusResult{Status: payhero.StatusPending}
	}
	res := s.statuses[0]
	s.statuses = s.statuses[1:]
	return res
}

func (s *stubPay) SearchByCode(ctx context.Context, code string) (*payhero.StatusResult, error) {
	return nil, nil
}

func (s *stubPay) NormalizePhone(raw string) string {
	return payhero.NormalizePhone(raw, models.DefaultCountryCode)
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{{Key: testAPIKey, Extra: testAPIExtra, Name: "test"}},
		},
	}
}

func newTestServer(t *testing.T, cfg config.APIConfig, pay *stubPay, engOverride ...engine.Config) *httptest.Server {
	t.Helper()

	cat := catalog.New([]models.Service{
		{ID: "1", Name: "Basketball Court", Category: "Sports", Price: 1500, Available: true},
		{ID: "2", Name: "Spa Session", Category: "Wellness", Price: 2500, Available: true},
	})
	logger := zerolog.Nop()

	engCfg := engine.Config{
		DeadTime:         time.Millisecond,
		PollInterval:     time.Millisecond,
		ManualEntryAfter: 2,
		BypassAfter:      5,
		WarningWindow:    10 * time.Millisecond,
	}
	if len(engOverride) > 0 {
		engCfg = engOverride[0]
	}
	flow := booking.New(store.NewBookingStore(), cat, pay, events.NewEventBus(), engCfg, nil, &logger)
	t.Cleanup(flow.Close)

	rec := recommend.New(cat, nil, 30*time.Minute, &logger)
	exports := config.ExportConfig{Path: filepath.Join(t.TempDir(), "exports")}
	server := NewHTTPServer(cfg, exports, flow, cat, rec, &logger)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeaderDefault, testAPIKey)
	req.Header.Set(apiExtraHeaderDefault, testAPIExtra)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func acceptedInitiate() payhero.InitiateResult {
	return payhero.InitiateResult{Success: true, Status: "QUEUED", CheckoutID: "98765"}
}

func createRequestBody() map[string]string {
	return map[string]string{
		"service_id": "1",
		"date":       "2025-06-02",
		"time":       "10:00",
		"phone":      "0712345678",
	}
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), &stubPay{initiate: acceptedInitiate()})

	t.Run("MissingHeaders", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/services")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("WrongExtra", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/services", nil)
		req.Header.Set(apiKeyHeaderDefault, testAPIKey)
		req.Header.Set(apiExtraHeaderDefault, "wrong")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("HealthIsOpen", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("MetricsIsOpen", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestPermissions(t *testing.T) {
	cfg := testAPIConfig()
	cfg.Auth.APIKeys[0].Permissions = []string{permReadCatalog}
	ts := newTestServer(t, cfg, &stubPay{initiate: acceptedInitiate()})

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/services", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodPost, "/api/v1/bookings", createRequestBody())
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}
	ts := newTestServer(t, cfg, &stubPay{initiate: acceptedInitiate()})

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/services", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/api/v1/services", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServices(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), &stubPay{initiate: acceptedInitiate()})

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/services", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Len(t, body["services"], 2)
	assert.Equal(t, []any{"Sports", "Wellness"}, body["categories"])
}

func TestRecommend(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), &stubPay{initiate: acceptedInitiate()})

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/recommend", map[string]string{"mood": "stressed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	services := body["services"].([]any)
	require.Len(t, services, 1)

	resp = doRequest(t, ts, http.MethodPost, "/api/v1/recommend", map[string]string{"mood": " "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBookingLifecycle(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), &stubPay{initiate: acceptedInitiate()})

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/bookings", createRequestBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	created := body["booking"].(map[string]any)
	id := created["id"].(string)
	assert.Contains(t, id, models.ReferencePrefix)
	assert.Equal(t, models.StatusPending, created["status"])
	require.Contains(t, body, "payment")

	resp = doRequest(t, ts, http.MethodGet, "/api/v1/bookings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody(t, resp)["bookings"], 1)

	// A pending booking cannot be deleted.
	resp = doRequest(t, ts, http.MethodDelete, "/api/v1/bookings/"+id, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%s/cancel", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/api/v1/bookings/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody(t, resp)["booking"].(map[string]any)
	assert.Equal(t, models.StatusCancelled, got["status"])

	// Cancelled bookings have no receipt.
	resp = doRequest(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%s/receipt", id), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodDelete, "/api/v1/bookings/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/api/v1/bookings/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfirmedBookingReceipt(t *testing.T) {
	pay := &stubPay{
		initiate: acceptedInitiate(),
		statuses: []payhero.StatusResult{{Status: "SUCCESS", TransactionCode: "RG12345678"}},
	}
	ts := newTestServer(t, testAPIConfig(), pay)

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/bookings", createRequestBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decodeBody(t, resp)["booking"].(map[string]any)["id"].(string)

	require.Eventually(t, func() bool {
		resp := doRequest(t, ts, http.MethodGet, "/api/v1/bookings/"+id, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		got := decodeBody(t, resp)["booking"].(map[string]any)
		return got["status"] == models.StatusConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	resp = doRequest(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%s/receipt", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	receipt := decodeBody(t, resp)["receipt"].(map[string]any)
	assert.Equal(t, "RG12345678", receipt["transaction_code"])
	assert.Equal(t, "Basketball Court", receipt["service"])
	assert.Equal(t, "254712345678", receipt["phone"], "receipt carries the canonical phone")
}

func TestCreateBookingValidation(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), &stubPay{initiate: acceptedInitiate()})

	t.Run("InvalidJSON", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/bookings", bytes.NewReader([]byte("{nope")))
		req.Header.Set(apiKeyHeaderDefault, testAPIKey)
		req.Header.Set(apiExtraHeaderDefault, testAPIExtra)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("UnknownService", func(t *testing.T) {
		body := createRequestBody()
		body["service_id"] = "404"
		resp := doRequest(t, ts, http.MethodPost, "/api/v1/bookings", body)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("MissingPhone", func(t *testing.T) {
		body := createRequestBody()
		body["phone"] = ""
		resp := doRequest(t, ts, http.MethodPost, "/api/v1/bookings", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestVerifyBeforeThreshold(t *testing.T) {
	// A long dead time keeps the engine in Requesting, so no poll attempts
	// can unlock the manual affordances while the test runs.
	ts := newTestServer(t, testAPIConfig(), &stubPay{initiate: acceptedInitiate()}, engine.Config{
		DeadTime:         time.Hour,
		PollInterval:     time.Hour,
		ManualEntryAfter: 2,
		BypassAfter:      5,
		WarningWindow:    time.Second,
	})

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/bookings", createRequestBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decodeBody(t, resp)["booking"].(map[string]any)["id"].(string)

	resp = doRequest(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%s/verify", id), map[string]string{"code": "RG1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%s/skip", id), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), &stubPay{initiate: acceptedInitiate()})

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/bookings", createRequestBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["total"])
	assert.Equal(t, float64(1), summary["pending"])

	resp = doRequest(t, ts, http.MethodGet, "/api/v1/dashboard/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")

	// A POST archives the workbook server-side instead of streaming it.
	resp = doRequest(t, ts, http.MethodPost, "/api/v1/dashboard/export", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	saved := decodeBody(t, resp)["path"].(string)
	assert.FileExists(t, saved)
}
