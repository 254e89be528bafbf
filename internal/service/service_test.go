package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"qr-campaign-analytics/internal/database"
	"qr-campaign-analytics/internal/features"
	"qr-campaign-analytics/internal/models"
	"qr-campaign-analytics/internal/simulator"
	"qr-campaign-analytics/internal/validation"
)

func setupTestDB(t *testing.T) (*database.DB, func()) {
	dbPath := "./test_" + uuid.New().String() + ".db"
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}

	return db, cleanup
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func newTestService(t *testing.T, db *database.DB) *Service {
	return NewService(db, Settings{
		Timezone:   "UTC",
		UserFields: []string{"customer_id", "user_id"},
	}, Dependencies{
		Logger: zaptest.NewLogger(t),
		Now:    func() time.Time { return time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC) },
	})
}

func sampleScans() []models.ScanRecord {
	return []models.ScanRecord{
		{
			ID:          "s1",
			Identifiers: map[string]string{"user_id": "u1"},
			WinDate:     "2024-09-16 10:00:00",
		},
		{
			ID:               "s2",
			Identifiers:      map[string]string{"user_id": "u1"},
			WinDate:          "2024-09-17 10:00:00",
			PrizeReceiveDate: "2024-09-17 12:00:00",
			PrizeID:          strPtr("p1"),
			IsWinReceived:    strPtr("1"),
			RegionID:         int64Ptr(1),
		},
		{
			ID:            "s3",
			Identifiers:   map[string]string{"user_id": "u2"},
			WinDate:       "2024-09-17 11:00:00",
			PrizeID:       strPtr("p1"),
			IsWinReceived: strPtr("0"),
			RegionID:      int64Ptr(2),
		},
		{
			ID:          "s4",
			Identifiers: map[string]string{"user_id": "u2"},
			WinDate:     "2024-09-19 09:00:00",
		},
		{
			ID:          "s5",
			Identifiers: map[string]string{"user_id": "u3"},
		},
	}
}

func ingest(t *testing.T, svc *Service, scans []models.ScanRecord) {
	t.Helper()
	if _, err := svc.IngestScans(context.Background(), models.IngestScansRequest{Scans: scans}); err != nil {
		t.Fatalf("Failed to ingest scans: %v", err)
	}
	svc.Events().Wait()
}

func counts(buckets []models.Bucket) []int {
	out := make([]int, len(buckets))
	for i, b := range buckets {
		out[i] = b.Count
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestIngestScans_Validation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := newTestService(t, db)
	_, err := svc.IngestScans(context.Background(), models.IngestScansRequest{})

	var vErr *validation.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected validation error, got %v", err)
	}
}

func TestTimeSeries_DailyCounts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := newTestService(t, db)
	ingest(t, svc, sampleScans())

	resp, err := svc.TimeSeries(context.Background(), models.AnalyticsQuery{Granularity: "D"})
	if err != nil {
		t.Fatalf("TimeSeries failed: %v", err)
	}

	if resp.UserField != "user_id" {
		t.Errorf("Expected detected user field user_id, got %q", resp.UserField)
	}
	if got, want := counts(resp.Buckets), []int{1, 2, 0, 1}; !equalInts(got, want) {
		t.Fatalf("Expected counts %v, got %v", want, got)
	}
	if !resp.Buckets[0].Date.Equal(time.Date(2024, 9, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected first bucket %v", resp.Buckets[0].Date)
	}

	weekly, err := svc.TimeSeries(context.Background(), models.AnalyticsQuery{Granularity: "W", Unique: true})
	if err != nil {
		t.Fatalf("TimeSeries failed: %v", err)
	}
	if got, want := counts(weekly.Buckets), []int{2}; !equalInts(got, want) {
		t.Fatalf("Expected weekly unique counts %v, got %v", want, got)
	}
}

func TestTimeSeries_InvalidQuery(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := newTestService(t, db)
	_, err := svc.TimeSeries(context.Background(), models.AnalyticsQuery{Granularity: "Y"})

	var vErr *validation.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected validation error, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := newTestService(t, db)
	ingest(t, svc, sampleScans())

	resp, err := svc.Summary(context.Background(), models.AnalyticsQuery{})
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}

	if resp.TotalEvents != 4 {
		t.Errorf("Expected 4 events with a win date, got %d", resp.TotalEvents)
	}
	if resp.UniqueUsers == nil || *resp.UniqueUsers != 2 {
		t.Errorf("Expected 2 unique users, got %v", resp.UniqueUsers)
	}
	if resp.RealPrizes != 2 || resp.RealPrizesReceived != 1 || resp.RealPrizesPending != 1 {
		t.Errorf("Unexpected real prize counts: %+v", resp.Summary)
	}
	if resp.ForgottenPending != 1 {
		t.Errorf("Expected 1 forgotten pending prize, got %d", resp.ForgottenPending)
	}
	if len(resp.Regions) != 3 {
		t.Errorf("Expected 3 regions, got %v", resp.Regions)
	}

	filtered, err := svc.Summary(context.Background(), models.AnalyticsQuery{Regions: []string{"Armenia"}})
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if filtered.TotalEvents != 1 {
		t.Errorf("Expected 1 event in Armenia, got %d", filtered.TotalEvents)
	}
}

func TestSummary_WindowInTimezone(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := newTestService(t, db)
	ingest(t, svc, sampleScans())

	// 2024-09-17 in Yerevan (UTC+4) runs from 16th 20:00 UTC to 17th 20:00 UTC.
	q := models.AnalyticsQuery{
		Timezone: "Asia/Yerevan",
		From:     time.Date(2024, 9, 17, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 9, 17, 23, 59, 59, 0, time.UTC),
	}
	resp, err := svc.Summary(context.Background(), q)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if resp.TotalEvents != 2 {
		t.Errorf("Expected 2 events on 2024-09-17 Yerevan time, got %d", resp.TotalEvents)
	}
}

func TestClaimSpeedAndConsistency(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := newTestService(t, db)
	ingest(t, svc, sampleScans())
	ctx := context.Background()

	claims, err := svc.ClaimSpeed(ctx, models.AnalyticsQuery{})
	if err != nil {
		t.Fatalf("ClaimSpeed failed: %v", err)
	}
	if len(claims.Hours) != 1 || claims.Hours[0] != 2 {
		t.Errorf("Expected one claim of 2 hours, got %v", claims.Hours)
	}

	c, err := svc.Consistency(ctx, models.AnalyticsQuery{})
	if err != nil {
		t.Fatalf("Consistency failed: %v", err)
	}
	if !c.Consistent || c.PendingEvents != 1 || c.PendingUsers != 1 {
		t.Errorf("Unexpected consistency result: %+v", c)
	}
}

func TestUserTables(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := newTestService(t, db)
	ingest(t, svc, sampleScans())
	ctx := context.Background()

	rfm, err := svc.RFM(ctx, models.AnalyticsQuery{})
	if err != nil {
		t.Fatalf("RFM failed: %v", err)
	}
	if len(rfm) != 2 {
		t.Fatalf("Expected 2 RFM rows, got %d", len(rfm))
	}

	// Segments come from the full dataset even when the filter keeps one scan.
	narrowed, err := svc.RFM(ctx, models.AnalyticsQuery{Regions: []string{"Armenia"}})
	if err != nil {
		t.Fatalf("RFM failed: %v", err)
	}
	if len(narrowed) != 1 || narrowed[0].Frequency != 1 || narrowed[0].Segment != "Active" {
		t.Errorf("Unexpected narrowed RFM rows: %+v", narrowed)
	}

	cohorts, err := svc.Cohorts(ctx, models.AnalyticsQuery{})
	if err != nil {
		t.Fatalf("Cohorts failed: %v", err)
	}
	if len(cohorts.Cohorts) != 1 || cohorts.Cohorts[0].Size != 2 {
		t.Errorf("Expected one cohort of 2 users, got %+v", cohorts.Cohorts)
	}

	rates, err := svc.ActivityRates(ctx, models.AnalyticsQuery{RateBasis: "own_last"})
	if err != nil {
		t.Fatalf("ActivityRates failed: %v", err)
	}
	if len(rates.Users) != 2 {
		t.Errorf("Expected 2 users with rates, got %d", len(rates.Users))
	}

	if _, err := svc.ActivityRates(ctx, models.AnalyticsQuery{RateBasis: "median"}); err == nil {
		t.Error("Expected error for unknown rate basis")
	}

	users, err := svc.UserActivity(ctx, models.AnalyticsQuery{})
	if err != nil {
		t.Fatalf("UserActivity failed: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("Expected 2 users, got %d", len(users))
	}
}

func TestUserTables_WholeBaseKeepsStartFrom(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db, Settings{
		Timezone:   "UTC",
		StartFrom:  time.Date(2024, 9, 15, 0, 0, 0, 0, time.UTC),
		UserFields: []string{"user_id"},
	}, Dependencies{Logger: zaptest.NewLogger(t)})
	ingest(t, svc, []models.ScanRecord{
		{ID: "old", Identifiers: map[string]string{"user_id": "u1"}, WinDate: "2024-08-01 10:00:00"},
		{ID: "new", Identifiers: map[string]string{"user_id": "u1"}, WinDate: "2024-09-20 10:00:00"},
	})
	ctx := context.Background()

	for _, scopeName := range []string{"current", "all"} {
		q := models.AnalyticsQuery{Scope: scopeName}

		rfm, err := svc.RFM(ctx, q)
		if err != nil {
			t.Fatalf("RFM failed: %v", err)
		}
		if len(rfm) != 1 || rfm[0].Frequency != 1 {
			t.Errorf("scope=%s: expected one scan after start_from, got %+v", scopeName, rfm)
		}

		cohorts, err := svc.Cohorts(ctx, q)
		if err != nil {
			t.Fatalf("Cohorts failed: %v", err)
		}
		wantWeek := time.Date(2024, 9, 16, 0, 0, 0, 0, time.UTC)
		if len(cohorts.Cohorts) != 1 || !cohorts.Cohorts[0].CohortWeek.Equal(wantWeek) {
			t.Errorf("scope=%s: expected single cohort week %v, got %+v", scopeName, wantWeek, cohorts.Cohorts)
		}

		rates, err := svc.ActivityRates(ctx, q)
		if err != nil {
			t.Fatalf("ActivityRates failed: %v", err)
		}
		if len(rates.Users) != 1 || rates.Users[0].TotalScans != 1 {
			t.Errorf("scope=%s: unexpected rates %+v", scopeName, rates.Users)
		}

		users, err := svc.UserActivity(ctx, q)
		if err != nil {
			t.Fatalf("UserActivity failed: %v", err)
		}
		if len(users) != 1 || users[0].Scans != 1 {
			t.Errorf("scope=%s: unexpected user activity %+v", scopeName, users)
		}
	}
}

func TestClaimSpeed_WholeBaseScope(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := newTestService(t, db)
	ingest(t, svc, sampleScans())
	ctx := context.Background()

	// The only received prize is in Georgia.
	narrowed, err := svc.ClaimSpeed(ctx, models.AnalyticsQuery{Regions: []string{"Armenia"}})
	if err != nil {
		t.Fatalf("ClaimSpeed failed: %v", err)
	}
	if len(narrowed.Hours) != 0 || narrowed.ForgottenPending != 1 {
		t.Errorf("Expected no claims and one forgotten prize in Armenia, got %+v", narrowed)
	}

	whole, err := svc.ClaimSpeed(ctx, models.AnalyticsQuery{Regions: []string{"Armenia"}, Scope: "all"})
	if err != nil {
		t.Fatalf("ClaimSpeed failed: %v", err)
	}
	if len(whole.Hours) != 1 || whole.Hours[0] != 2 || whole.ForgottenPending != 1 {
		t.Errorf("Expected the Georgia claim with scope=all, got %+v", whole)
	}
}

func TestAnalyticsCache_InvalidatedOnIngest(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := newTestService(t, db)
	ingest(t, svc, sampleScans())
	ctx := context.Background()
	q := models.AnalyticsQuery{Granularity: "D"}

	first, err := svc.TimeSeries(ctx, q)
	if err != nil {
		t.Fatalf("TimeSeries failed: %v", err)
	}

	// Written behind the service's back: the cached result must be served.
	extra := []models.ScanRecord{{ID: "s6", Identifiers: map[string]string{"user_id": "u4"}, WinDate: "2024-09-19 12:00:00"}}
	if _, err := db.InsertScanRecords(ctx, extra); err != nil {
		t.Fatalf("InsertScanRecords failed: %v", err)
	}
	cached, err := svc.TimeSeries(ctx, q)
	if err != nil {
		t.Fatalf("TimeSeries failed: %v", err)
	}
	if !equalInts(counts(first.Buckets), counts(cached.Buckets)) {
		t.Errorf("Expected cached result %v, got %v", counts(first.Buckets), counts(cached.Buckets))
	}

	ingest(t, svc, []models.ScanRecord{{ID: "s7", Identifiers: map[string]string{"user_id": "u5"}, WinDate: "2024-09-19 13:00:00"}})
	fresh, err := svc.TimeSeries(ctx, q)
	if err != nil {
		t.Fatalf("TimeSeries failed: %v", err)
	}
	if got, want := counts(fresh.Buckets), []int{1, 2, 0, 3}; !equalInts(got, want) {
		t.Errorf("Expected %v after ingestion, got %v", want, got)
	}
}

func TestTimeSeries_TrailingZeroFlag(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	flags := features.NewDefaultManager(false, true, true)
	svc := NewService(db, Settings{Timezone: "UTC", UserFields: []string{"user_id"}}, Dependencies{
		Features: flags,
		Logger:   zaptest.NewLogger(t),
	})

	// The last weekly bucket only holds an anonymous event, so its unique count is 0.
	ingest(t, svc, []models.ScanRecord{
		{Identifiers: map[string]string{"user_id": "u1"}, WinDate: "2024-09-16 10:00:00"},
		{WinDate: "2024-09-24 10:00:00"},
	})
	q := models.AnalyticsQuery{Granularity: "W", Unique: true}

	trimmed, err := svc.TimeSeries(context.Background(), q)
	if err != nil {
		t.Fatalf("TimeSeries failed: %v", err)
	}
	if got, want := counts(trimmed.Buckets), []int{1}; !equalInts(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	flags.Disable(features.FeatureTrimTrailingZero)
	kept, err := svc.TimeSeries(context.Background(), q)
	if err != nil {
		t.Fatalf("TimeSeries failed: %v", err)
	}
	if got, want := counts(kept.Buckets), []int{1, 0}; !equalInts(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestSimulate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := newTestService(t, db)
	ctx := context.Background()

	res, err := svc.Simulate(ctx, simulator.DefaultConfig())
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if len(res.Log) == 0 || res.Summary.DaysRun != len(res.Log) {
		t.Errorf("Expected days_run to match log length, got %d and %d", res.Summary.DaysRun, len(res.Log))
	}

	bad := simulator.DefaultConfig()
	bad.MaxDays = 0
	_, err = svc.Simulate(ctx, bad)
	var vErr *validation.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "max_days" {
		t.Errorf("Expected max_days validation error, got %v", err)
	}

	rows, err := svc.CompareSimulations(ctx, simulator.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("CompareSimulations failed: %v", err)
	}
	if len(rows) != len(simulator.DefaultComparisonValues) {
		t.Errorf("Expected %d comparison rows, got %d", len(simulator.DefaultComparisonValues), len(rows))
	}
}

func TestSimulate_LogsRunEvent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	core, logs := observer.New(zap.InfoLevel)
	svc := NewService(db, Settings{Timezone: "UTC"}, Dependencies{Logger: zap.New(core)})

	cfg := simulator.DefaultConfig()
	cfg.MaxDays = 5
	if _, err := svc.Simulate(context.Background(), cfg); err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	svc.Events().Wait()

	entries := logs.FilterMessage("simulation finished").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one simulation log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["days_run"]; got != int64(5) {
		t.Errorf("Expected days_run 5, got %v", got)
	}
}
