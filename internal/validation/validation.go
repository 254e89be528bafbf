package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"qr-campaign-analytics/internal/models"
	"qr-campaign-analytics/internal/simulator"
	"qr-campaign-analytics/internal/timeseries"
)

const (
	maxScansPerRequest  = 10_000
	maxSimulationDays   = 365
	maxPaidFeedsPerDay  = 50
	maxWeeklyValue      = 1000
	maxComparisonValues = 20
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateScanRecord checks the structural shape of a raw record. Content
// problems such as unparseable timestamps are not errors; they are treated
// as missing values downstream.
func ValidateScanRecord(rec models.ScanRecord) error {
	if len(SanitizeString(rec.ID)) > 128 {
		return &ValidationError{
			Field:   "id",
			Message: "cannot exceed 128 characters",
		}
	}

	for key := range rec.Identifiers {
		if SanitizeString(key) == "" {
			return &ValidationError{
				Field:   "identifiers",
				Message: "identifier names cannot be empty",
			}
		}
	}

	if rec.RegionID != nil && *rec.RegionID < 0 {
		return &ValidationError{
			Field:   "region_id",
			Message: "must be non-negative",
		}
	}

	return nil
}

// ValidateIngestRequest checks the batch size and every record in it.
func ValidateIngestRequest(req models.IngestScansRequest) error {
	if len(req.Scans) == 0 {
		return &ValidationError{
			Field:   "scans",
			Message: "cannot be empty",
		}
	}

	if len(req.Scans) > maxScansPerRequest {
		return &ValidationError{
			Field:   "scans",
			Message: fmt.Sprintf("cannot contain more than %d records", maxScansPerRequest),
		}
	}

	for i, rec := range req.Scans {
		if err := ValidateScanRecord(rec); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("scans[%d]", i),
				Message: err.Error(),
			}
		}
	}

	return nil
}

// ValidateAnalyticsQuery checks the selection of an analytics request.
func ValidateAnalyticsQuery(q models.AnalyticsQuery) error {
	switch q.Field {
	case models.FieldWinDate, models.FieldPrizeReceiveDate, models.FieldPrizeDeliveryDate,
		models.FieldActivationDate, models.FieldCreatedDate, models.FieldModifyDate:
	default:
		return &ValidationError{
			Field:   "field",
			Message: fmt.Sprintf("unknown timestamp field %q", q.Field),
		}
	}

	if _, err := timeseries.ParseGranularity(q.Granularity); err != nil {
		return &ValidationError{
			Field:   "granularity",
			Message: "must be one of D, W, M",
		}
	}

	if _, err := ValidateTimezone(q.Timezone); err != nil {
		return err
	}

	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return &ValidationError{
			Field:   "from",
			Message: "must not be after to",
		}
	}

	for i, w := range q.WinTypes {
		switch w {
		case models.WinTypeRealPrize, models.WinTypePoints, models.WinTypeNoWin:
		default:
			return &ValidationError{
				Field:   fmt.Sprintf("win_types[%d]", i),
				Message: fmt.Sprintf("unknown win type %q", w),
			}
		}
	}

	if q.Scope != "" && q.Scope != "current" && q.Scope != "all" {
		return &ValidationError{
			Field:   "scope",
			Message: "must be current or all",
		}
	}

	return nil
}

// ValidateTimezone resolves an IANA zone name.
func ValidateTimezone(name string) (*time.Location, error) {
	name = SanitizeString(name)
	if name == "" {
		return nil, &ValidationError{
			Field:   "tz",
			Message: "is required",
		}
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &ValidationError{
			Field:   "tz",
			Message: "must be a valid IANA time zone",
		}
	}

	return loc, nil
}

// ValidateSimulation checks a simulator configuration before it is run.
func ValidateSimulation(cfg simulator.Config) error {
	if cfg.MaxDays < 1 || cfg.MaxDays > maxSimulationDays {
		return &ValidationError{
			Field:   "max_days",
			Message: fmt.Sprintf("must be between 1 and %d", maxSimulationDays),
		}
	}

	if cfg.WeeklyValue < 0 || cfg.WeeklyValue > maxWeeklyValue {
		return &ValidationError{
			Field:   "weekly_value",
			Message: fmt.Sprintf("must be between 0 and %d", maxWeeklyValue),
		}
	}

	if cfg.MaxPaidFeedsPerDay < 0 || cfg.MaxPaidFeedsPerDay > maxPaidFeedsPerDay {
		return &ValidationError{
			Field:   "max_paid_feeds_per_day",
			Message: fmt.Sprintf("must be between 0 and %d", maxPaidFeedsPerDay),
		}
	}

	switch cfg.ValueMode {
	case simulator.ValuePoints, simulator.ValueFeeds:
	default:
		return &ValidationError{
			Field:   "value_mode",
			Message: "must be points or feeds",
		}
	}

	switch cfg.Accrual {
	case simulator.AccrualDaily, simulator.AccrualWeekly:
	default:
		return &ValidationError{
			Field:   "accrual",
			Message: "must be daily or weekly",
		}
	}

	if _, err := simulator.ParseStage(string(cfg.StartStage)); err != nil {
		return &ValidationError{
			Field:   "start_stage",
			Message: err.Error(),
		}
	}

	if cfg.StartHunger < 0 {
		return &ValidationError{
			Field:   "start_hunger",
			Message: "must be non-negative",
		}
	}

	if cfg.StartSize < 0 {
		return &ValidationError{
			Field:   "start_size",
			Message: "must be non-negative",
		}
	}

	names := []simulator.Stage{simulator.StageSmall, simulator.StageMedium, simulator.StageAdult}
	for i, spec := range cfg.Stages {
		field := fmt.Sprintf("stages.%s", names[i])
		if spec.HungerCap < 1 {
			return &ValidationError{Field: field + ".hunger_cap", Message: "must be at least 1"}
		}
		if spec.SizeCap < 1 {
			return &ValidationError{Field: field + ".size_cap", Message: "must be at least 1"}
		}
		if spec.DailyHungerLoss < 0 {
			return &ValidationError{Field: field + ".daily_hunger_loss", Message: "must be non-negative"}
		}
		if spec.StageUpBonus < 0 {
			return &ValidationError{Field: field + ".stageup_bonus", Message: "must be non-negative"}
		}
	}

	return nil
}

// ValidateComparisonValues checks the weekly values of a comparison run.
func ValidateComparisonValues(values []float64) error {
	if len(values) > maxComparisonValues {
		return &ValidationError{
			Field:   "values",
			Message: fmt.Sprintf("cannot contain more than %d values", maxComparisonValues),
		}
	}

	for i, v := range values {
		if v < 0 || v > maxWeeklyValue {
			return &ValidationError{
				Field:   fmt.Sprintf("values[%d]", i),
				Message: fmt.Sprintf("must be between 0 and %d", maxWeeklyValue),
			}
		}
	}

	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// ValidateTimeString parses a query bound. Both RFC3339 and plain dates are accepted.
func ValidateTimeString(field, timeStr string) (time.Time, error) {
	if timeStr == "" {
		return time.Time{}, &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}

	if t, err := time.Parse(time.RFC3339, timeStr); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, timeStr); err == nil {
		return t, nil
	}

	return time.Time{}, &ValidationError{
		Field:   field,
		Message: "must be an RFC3339 timestamp or a YYYY-MM-DD date",
	}
}
