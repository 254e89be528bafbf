package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"qr-campaign-analytics/internal/database"
	"qr-campaign-analytics/internal/models"
	"qr-campaign-analytics/internal/service"
	"qr-campaign-analytics/internal/simulator"
)

func setupTestHandler(t *testing.T) (*chi.Mux, *service.Service, func()) {
	dbPath := "./test_handler_" + uuid.New().String() + ".db"
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	svc := service.NewService(db, service.Settings{
		Timezone:   "UTC",
		UserFields: []string{"user_id"},
	}, service.Dependencies{})
	h := NewHandler(svc)

	r := chi.NewRouter()
	h.Routes(r)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}

	return r, svc, cleanup
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func seed(t *testing.T, r http.Handler, svc *service.Service) {
	t.Helper()
	prize := "p1"
	received := "0"
	rr := doJSON(t, r, "POST", "/scans", models.IngestScansRequest{Scans: []models.ScanRecord{
		{Identifiers: map[string]string{"user_id": "u1"}, WinDate: "2024-09-16 10:00:00"},
		{Identifiers: map[string]string{"user_id": "u1"}, WinDate: "2024-09-17 10:00:00"},
		{Identifiers: map[string]string{"user_id": "u2"}, WinDate: "2024-09-17 12:00:00", PrizeID: &prize, IsWinReceived: &received},
	}})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	svc.Events().Wait()
}

func TestHealthCheck(t *testing.T) {
	r, _, cleanup := setupTestHandler(t)
	defer cleanup()

	rr := doJSON(t, r, "GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "ok" || len(resp.Features) == 0 {
		t.Errorf("Unexpected health response: %+v", resp)
	}
}

func TestIngestScans_Success(t *testing.T) {
	r, svc, cleanup := setupTestHandler(t)
	defer cleanup()

	seed(t, r, svc)
}

func TestIngestScans_InvalidJSON(t *testing.T) {
	r, _, cleanup := setupTestHandler(t)
	defer cleanup()

	req := httptest.NewRequest("POST", "/scans", bytes.NewBufferString("{invalid json}"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestIngestScans_Empty(t *testing.T) {
	r, _, cleanup := setupTestHandler(t)
	defer cleanup()

	rr := doJSON(t, r, "POST", "/scans", models.IngestScansRequest{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestTimeSeries(t *testing.T) {
	r, svc, cleanup := setupTestHandler(t)
	defer cleanup()
	seed(t, r, svc)

	rr := doJSON(t, r, "GET", "/analytics/timeseries?granularity=D&unique=true&tz=UTC", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp models.TimeSeriesResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Buckets) != 2 {
		t.Fatalf("Expected 2 buckets, got %d", len(resp.Buckets))
	}
	if resp.Buckets[0].Count != 1 || resp.Buckets[1].Count != 2 {
		t.Errorf("Unexpected bucket counts: %+v", resp.Buckets)
	}
}

func TestTimeSeries_BadParams(t *testing.T) {
	r, _, cleanup := setupTestHandler(t)
	defer cleanup()

	for _, path := range []string{
		"/analytics/timeseries?granularity=Y",
		"/analytics/timeseries?tz=Mars/Base",
		"/analytics/timeseries?unique=maybe",
		"/analytics/timeseries?from=yesterday",
	} {
		rr := doJSON(t, r, "GET", path, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", path, rr.Code)
		}
	}
}

func TestSummary_Filters(t *testing.T) {
	r, svc, cleanup := setupTestHandler(t)
	defer cleanup()
	seed(t, r, svc)

	rr := doJSON(t, r, "GET", "/analytics/summary?from=2024-09-17&to=2024-09-17&win_types=real_prize", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp service.SummaryResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.TotalEvents != 1 || resp.RealPrizesPending != 1 {
		t.Errorf("Unexpected summary: %+v", resp.Summary)
	}
}

func TestAnalyticsEndpoints(t *testing.T) {
	r, svc, cleanup := setupTestHandler(t)
	defer cleanup()
	seed(t, r, svc)

	for _, path := range []string{
		"/analytics/consistency",
		"/analytics/cohorts",
		"/analytics/rfm",
		"/analytics/rates?basis=global_last",
		"/analytics/claims",
		"/analytics/prizes",
		"/analytics/time-of-day?tz=Asia/Yerevan",
		"/analytics/users?scope=all",
	} {
		rr := doJSON(t, r, "GET", path, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d: %s", path, rr.Code, rr.Body.String())
		}
	}
}

func TestSimulate(t *testing.T) {
	r, _, cleanup := setupTestHandler(t)
	defer cleanup()

	rr := doJSON(t, r, "POST", "/simulations", map[string]any{
		"weekly_value":           70,
		"max_days":               1,
		"max_paid_feeds_per_day": 2,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var res simulator.Result
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(res.Log) != 1 {
		t.Fatalf("Expected 1 day, got %d", len(res.Log))
	}
	if res.Log[0].FeedsToday != 3 || res.Log[0].PaidSpent.String() != "3" {
		t.Errorf("Expected 3 feeds costing 3, got %d costing %s", res.Log[0].FeedsToday, res.Log[0].PaidSpent)
	}
}

func TestSimulate_Invalid(t *testing.T) {
	r, _, cleanup := setupTestHandler(t)
	defer cleanup()

	rr := doJSON(t, r, "POST", "/simulations", map[string]any{"max_days": 1000})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestCompareSimulations(t *testing.T) {
	r, _, cleanup := setupTestHandler(t)
	defer cleanup()

	rr := doJSON(t, r, "POST", "/simulations/compare", map[string]any{
		"config": map[string]any{"max_days": 60},
		"values": []float64{1, 3},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var rows []simulator.Comparison
	if err := json.NewDecoder(rr.Body).Decode(&rows); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(rows) != 2 || rows[1].WeeklyValue != 3 {
		t.Errorf("Unexpected comparison rows: %+v", rows)
	}
}
