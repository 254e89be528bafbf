package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"qr-campaign-analytics/internal/cache"
	"qr-campaign-analytics/internal/classifier"
	"qr-campaign-analytics/internal/database"
	"qr-campaign-analytics/internal/events"
	"qr-campaign-analytics/internal/features"
	"qr-campaign-analytics/internal/metrics"
	"qr-campaign-analytics/internal/models"
	"qr-campaign-analytics/internal/scope"
	"qr-campaign-analytics/internal/segmentation"
	"qr-campaign-analytics/internal/simulator"
	"qr-campaign-analytics/internal/timeseries"
	"qr-campaign-analytics/internal/tracing"
	"qr-campaign-analytics/internal/validation"
)

const (
	// forgottenPendingAge is how old a pending real prize must be to count as forgotten.
	forgottenPendingAge = 7 * 24 * time.Hour
	topPendingLimit     = 20
)

// Settings holds the dashboard defaults applied to every request.
type Settings struct {
	Timezone   string
	StartFrom  time.Time // wall clock in Timezone, labelled UTC; zero disables it
	UserFields []string
	CacheTTL   time.Duration
}

// Dependencies are the optional collaborators of a Service. Nil members get
// an in-memory or no-op default.
type Dependencies struct {
	Cache    cache.Cache
	Events   *events.Manager
	Features *features.Manager
	Tracer   *tracing.Tracer
	Logger   *zap.Logger
	Now      func() time.Time
}

// Service loads raw scans, classifies and scopes them and runs the analytics.
type Service struct {
	db       *database.DB
	cache    cache.Cache
	events   *events.Manager
	features *features.Manager
	tracer   *tracing.Tracer
	logger   *zap.Logger
	now      func() time.Time
	settings Settings
}

// NewService creates a new service instance and wires the cache invalidation hook.
func NewService(db *database.DB, settings Settings, deps Dependencies) *Service {
	if settings.Timezone == "" {
		settings.Timezone = "UTC"
	}
	if settings.CacheTTL <= 0 {
		settings.CacheTTL = 5 * time.Minute
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewInMemoryCache()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Features == nil {
		deps.Features = features.NewDefaultManager(true, true, true)
	}
	if deps.Events == nil {
		deps.Events = events.NewManager(deps.Features.IsEnabled(features.FeatureEventHooksEnabled), deps.Logger)
	}
	if deps.Tracer == nil {
		deps.Tracer = tracing.NewNoop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Service{
		db:       db,
		cache:    deps.Cache,
		events:   deps.Events,
		features: deps.Features,
		tracer:   deps.Tracer,
		logger:   deps.Logger,
		now:      deps.Now,
		settings: settings,
	}

	s.events.Subscribe(events.EventScansIngested, func(ctx context.Context, e events.Event) error {
		if err := s.cache.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear analytics cache: %w", err)
		}
		s.logger.Debug("analytics cache cleared", zap.String("event", string(e.Type)))
		return nil
	})
	s.events.Subscribe(events.EventSimulationRun, func(ctx context.Context, e events.Event) error {
		data, ok := e.Data.(events.SimulationRunData)
		if !ok {
			return fmt.Errorf("unexpected %s payload %T", e.Type, e.Data)
		}
		s.logger.Info("simulation finished",
			zap.Float64("weekly_value", data.WeeklyValue),
			zap.Int("days_run", data.DaysRun),
			zap.Bool("died", data.Died),
			zap.Bool("reached_adult", data.ReachedAdult),
		)
		return nil
	})

	return s
}

// Features exposes the flag manager, e.g. for the health endpoint.
func (s *Service) Features() *features.Manager {
	return s.features
}

// Events exposes the event manager so callers can wait for hooks on shutdown.
func (s *Service) Events() *events.Manager {
	return s.events
}

// Health checks the database connection.
func (s *Service) Health(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	return nil
}

// IngestScans validates and stores a batch of raw scan records.
func (s *Service) IngestScans(ctx context.Context, req models.IngestScansRequest) (models.IngestScansResponse, error) {
	ctx, span := s.tracer.StartSpan(ctx, "service.IngestScans")
	defer span.End()
	span.SetAttributes(attribute.Int("scans.count", len(req.Scans)))

	if err := validation.ValidateIngestRequest(req); err != nil {
		return models.IngestScansResponse{}, err
	}

	inserted, err := s.db.InsertScanRecords(ctx, req.Scans)
	if err != nil {
		return models.IngestScansResponse{}, spanError(span, fmt.Errorf("failed to store scans: %w", err))
	}

	total, err := s.db.CountScanRecords(ctx)
	if err != nil {
		return models.IngestScansResponse{}, spanError(span, fmt.Errorf("failed to count scans: %w", err))
	}

	s.logger.Info("scans ingested", zap.Int("inserted", inserted), zap.Int("total", total))
	if !s.features.IsEnabled(features.FeatureEventHooksEnabled) {
		// Without hooks nothing else would invalidate the cache.
		if err := s.cache.Clear(ctx); err != nil {
			s.logger.Warn("failed to clear analytics cache", zap.Error(err))
		}
	}
	s.events.PublishScansIngested(ctx, inserted, total)

	return models.IngestScansResponse{Inserted: inserted}, nil
}

// dataset is one resolved analytics request.
type dataset struct {
	query     models.AnalyticsQuery
	loc       *time.Location
	userField string
	all       []models.ScanEvent // every classified event
	base      []models.ScanEvent // dated events on or after the start-from bound
	scoped    []models.ScanEvent // events passing the dashboard filter
}

// population returns the events used by user-level tables. The whole-base
// scope still honours the start-from bound.
func (d dataset) population() []models.ScanEvent {
	if d.query.Scope == "all" {
		return d.base
	}
	return d.scoped
}

// normalizeQuery fills defaults and validates the query.
func (s *Service) normalizeQuery(q models.AnalyticsQuery) (models.AnalyticsQuery, *time.Location, error) {
	if q.Field == "" {
		q.Field = models.FieldWinDate
	}
	if q.Granularity == "" {
		q.Granularity = "D"
	}
	if q.Timezone == "" {
		q.Timezone = s.settings.Timezone
	}
	if q.Scope == "" {
		q.Scope = "current"
	}
	if q.Received == "" {
		q.Received = string(scope.ReceivedAll)
	}

	if err := validation.ValidateAnalyticsQuery(q); err != nil {
		return q, nil, err
	}
	loc, err := validation.ValidateTimezone(q.Timezone)
	if err != nil {
		return q, nil, err
	}
	return q, loc, nil
}

func (s *Service) load(ctx context.Context, q models.AnalyticsQuery) (dataset, error) {
	q, loc, err := s.normalizeQuery(q)
	if err != nil {
		return dataset{}, err
	}

	received, err := scope.ParseReceivedFilter(q.Received)
	if err != nil {
		return dataset{}, &validation.ValidationError{Field: "received", Message: err.Error()}
	}

	records, err := s.db.ListScanRecords(ctx)
	if err != nil {
		return dataset{}, fmt.Errorf("failed to load scans: %w", err)
	}

	all := classifier.ClassifyAll(records)
	s.reportDataQuality(records, all)

	userField := q.UserField
	if userField == "" {
		userField = detectUserField(all, s.settings.UserFields)
	}
	q.UserField = userField

	startFrom := fromWall(s.settings.StartFrom, loc)
	filter := scope.Filter{
		StartFrom:      startFrom,
		From:           fromWall(q.From, loc),
		To:             fromWall(q.To, loc),
		Regions:        q.Regions,
		WinTypes:       q.WinTypes,
		Received:       received,
		RealPrizesOnly: q.RealPrizesOnly,
	}

	return dataset{
		query:     q,
		loc:       loc,
		userField: userField,
		all:       all,
		base:      scope.Apply(all, scope.Filter{StartFrom: startFrom}),
		scoped:    scope.Apply(all, filter),
	}, nil
}

// reportDataQuality logs source values that were treated as missing.
func (s *Service) reportDataQuality(records []models.ScanRecord, evs []models.ScanEvent) {
	unparsed := 0
	for i, rec := range records {
		if rec.WinDate != "" && evs[i].WinDate.IsZero() {
			unparsed++
		}
		if err := classifier.CheckInvariants(evs[i]); err != nil {
			s.logger.Error("classified event breaks invariants", zap.Error(err))
		}
	}
	if unparsed > 0 {
		s.logger.Warn("unparseable win_date values treated as missing", zap.Int("count", unparsed))
	}
}

// detectUserField picks the first candidate identifier present in the data.
func detectUserField(evs []models.ScanEvent, candidates []string) string {
	for _, field := range candidates {
		for _, ev := range evs {
			if _, ok := ev.UserKey(field); ok {
				return field
			}
		}
	}
	return ""
}

// fromWall reads a UTC-labelled wall clock as a time in loc.
func fromWall(t time.Time, loc *time.Location) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// cached runs compute once per distinct query while the cache entry lives.
func cached[T any](ctx context.Context, s *Service, name string, key any, compute func(context.Context) (T, error)) (T, error) {
	ctx, span := s.tracer.StartSpan(ctx, "service."+name)
	defer span.End()

	useCache := s.features.IsEnabled(features.FeatureCacheEnabled)
	var cacheKey string
	if useCache {
		k, err := cache.Key(name, key)
		if err != nil {
			s.logger.Warn("failed to build cache key", zap.String("op", name), zap.Error(err))
			useCache = false
		}
		cacheKey = k
	}

	if useCache {
		var hit T
		err := cache.GetJSON(ctx, s.cache, cacheKey, &hit)
		if err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return hit, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			s.logger.Warn("cache read failed", zap.String("op", name), zap.Error(err))
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	out, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, spanError(span, err)
	}

	if useCache {
		if err := cache.SetJSON(ctx, s.cache, cacheKey, out, s.settings.CacheTTL); err != nil {
			s.logger.Warn("cache write failed", zap.String("op", name), zap.Error(err))
		}
	}
	return out, nil
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// TimeSeries buckets the scoped events by the requested timestamp field.
func (s *Service) TimeSeries(ctx context.Context, q models.AnalyticsQuery) (models.TimeSeriesResponse, error) {
	return cached(ctx, s, "TimeSeries", q, func(ctx context.Context) (models.TimeSeriesResponse, error) {
		d, err := s.load(ctx, q)
		if err != nil {
			return models.TimeSeriesResponse{}, err
		}

		g, err := timeseries.ParseGranularity(d.query.Granularity)
		if err != nil {
			return models.TimeSeriesResponse{}, &validation.ValidationError{Field: "granularity", Message: err.Error()}
		}

		buckets := timeseries.Aggregate(d.scoped, timeseries.Params{
			Field:            d.query.Field,
			Granularity:      g,
			Unique:           d.query.Unique,
			Location:         d.loc,
			UserField:        d.userField,
			KeepTrailingZero: !s.features.IsEnabled(features.FeatureTrimTrailingZero),
		})
		return models.TimeSeriesResponse{
			Granularity: string(g),
			Unique:      d.query.Unique && d.userField != "",
			Timezone:    d.query.Timezone,
			UserField:   d.userField,
			Buckets:     buckets,
		}, nil
	})
}

// SummaryResponse holds the headline metrics of the scoped events.
type SummaryResponse struct {
	metrics.Summary
	UserField        string                      `json:"user_field"`
	ForgottenPending int                         `json:"forgotten_pending"`
	Segments         []segmentation.SegmentCount `json:"segments"`
	Regions          []string                    `json:"regions"`
}

// Summary computes key metrics, the segment distribution and the region list.
func (s *Service) Summary(ctx context.Context, q models.AnalyticsQuery) (SummaryResponse, error) {
	return cached(ctx, s, "Summary", q, func(ctx context.Context) (SummaryResponse, error) {
		d, err := s.load(ctx, q)
		if err != nil {
			return SummaryResponse{}, err
		}

		resp := SummaryResponse{
			Summary:          metrics.Summarize(d.scoped, d.userField),
			UserField:        d.userField,
			ForgottenPending: segmentation.ForgottenPending(d.scoped, s.now(), forgottenPendingAge),
			Segments:         []segmentation.SegmentCount{},
			Regions:          scope.Regions(d.all),
		}
		if d.userField != "" {
			resp.Segments = segmentation.SegmentDistribution(segmentation.UserSegments(d.all, d.userField))
		}
		return resp, nil
	})
}

// Consistency runs the pending-prize cross check on the scoped events.
func (s *Service) Consistency(ctx context.Context, q models.AnalyticsQuery) (metrics.Consistency, error) {
	return cached(ctx, s, "Consistency", q, func(ctx context.Context) (metrics.Consistency, error) {
		d, err := s.load(ctx, q)
		if err != nil {
			return metrics.Consistency{}, err
		}

		c := metrics.PendingConsistency(d.scoped, d.userField, topPendingLimit)
		if !c.Consistent {
			s.logger.Warn("pending users exceed pending events",
				zap.String("user_field", d.userField),
				zap.Int("pending_users", c.PendingUsers),
				zap.Int("pending_events", c.PendingEvents))
		}
		return c, nil
	})
}

// Cohorts builds the weekly retention matrix.
func (s *Service) Cohorts(ctx context.Context, q models.AnalyticsQuery) (segmentation.CohortMatrix, error) {
	return cached(ctx, s, "Cohorts", q, func(ctx context.Context) (segmentation.CohortMatrix, error) {
		d, err := s.load(ctx, q)
		if err != nil {
			return segmentation.CohortMatrix{}, err
		}
		return segmentation.CohortRetention(d.population(), d.userField, d.loc), nil
	})
}

// RFM lists recency and frequency per user. Segments always come from the full dataset.
func (s *Service) RFM(ctx context.Context, q models.AnalyticsQuery) ([]segmentation.RFMRow, error) {
	return cached(ctx, s, "RFM", q, func(ctx context.Context) ([]segmentation.RFMRow, error) {
		d, err := s.load(ctx, q)
		if err != nil {
			return nil, err
		}

		rows := segmentation.RFM(d.population(), d.userField, d.loc)
		segments := segmentation.UserSegments(d.all, d.userField)
		for i := range rows {
			rows[i].Segment = segments[rows[i].User]
		}
		return rows, nil
	})
}

// RatesResponse holds per-user activity rates and their distribution.
type RatesResponse struct {
	Basis   segmentation.RateBasis      `json:"basis"`
	Users   []segmentation.ActivityRate `json:"users"`
	Summary segmentation.RateSummary    `json:"summary"`
}

// ActivityRates computes daily and weekly scan rates per user.
func (s *Service) ActivityRates(ctx context.Context, q models.AnalyticsQuery) (RatesResponse, error) {
	return cached(ctx, s, "ActivityRates", q, func(ctx context.Context) (RatesResponse, error) {
		basis, err := segmentation.ParseRateBasis(q.RateBasis)
		if err != nil {
			return RatesResponse{}, &validation.ValidationError{Field: "basis", Message: err.Error()}
		}

		d, err := s.load(ctx, q)
		if err != nil {
			return RatesResponse{}, err
		}

		rates := segmentation.ActivityRates(d.population(), d.userField, d.loc, basis)
		return RatesResponse{
			Basis:   basis,
			Users:   rates,
			Summary: segmentation.SummarizeRates(rates),
		}, nil
	})
}

// ClaimsResponse holds claim speed and the forgotten pending count.
type ClaimsResponse struct {
	segmentation.ClaimStats
	ForgottenPending int `json:"forgotten_pending"`
}

// ClaimSpeed measures hours from win to receipt for received real prizes.
func (s *Service) ClaimSpeed(ctx context.Context, q models.AnalyticsQuery) (ClaimsResponse, error) {
	return cached(ctx, s, "ClaimSpeed", q, func(ctx context.Context) (ClaimsResponse, error) {
		d, err := s.load(ctx, q)
		if err != nil {
			return ClaimsResponse{}, err
		}

		claims := segmentation.TimeToClaim(d.population())
		if claims.Anomalies > 0 {
			s.logger.Warn("received prizes dated before their win excluded",
				zap.Int("count", claims.Anomalies))
		}
		return ClaimsResponse{
			ClaimStats:       claims,
			ForgottenPending: segmentation.ForgottenPending(d.population(), s.now(), forgottenPendingAge),
		}, nil
	})
}

// PrizeStats lists win and claim rates per prize.
func (s *Service) PrizeStats(ctx context.Context, q models.AnalyticsQuery) ([]metrics.PrizeRow, error) {
	return cached(ctx, s, "PrizeStats", q, func(ctx context.Context) ([]metrics.PrizeRow, error) {
		d, err := s.load(ctx, q)
		if err != nil {
			return nil, err
		}
		return metrics.PrizeStats(d.scoped), nil
	})
}

// TimeOfDay builds the hour histogram and weekday heatmap of wins.
func (s *Service) TimeOfDay(ctx context.Context, q models.AnalyticsQuery) (metrics.TimeOfDay, error) {
	return cached(ctx, s, "TimeOfDay", q, func(ctx context.Context) (metrics.TimeOfDay, error) {
		d, err := s.load(ctx, q)
		if err != nil {
			return metrics.TimeOfDay{}, err
		}
		return metrics.TimeOfDayDistribution(d.scoped, d.loc), nil
	})
}

// UserActivity lists the most active users.
func (s *Service) UserActivity(ctx context.Context, q models.AnalyticsQuery) ([]segmentation.UserActivityRow, error) {
	return cached(ctx, s, "UserActivity", q, func(ctx context.Context) ([]segmentation.UserActivityRow, error) {
		d, err := s.load(ctx, q)
		if err != nil {
			return nil, err
		}

		rows := segmentation.UserActivity(d.population(), d.userField, d.loc)
		segments := segmentation.UserSegments(d.all, d.userField)
		for i := range rows {
			rows[i].Segment = segments[rows[i].User]
		}
		return rows, nil
	})
}

// Simulate validates cfg and runs the growth simulator.
func (s *Service) Simulate(ctx context.Context, cfg simulator.Config) (simulator.Result, error) {
	ctx, span := s.tracer.StartSpan(ctx, "service.Simulate")
	defer span.End()

	if err := validation.ValidateSimulation(cfg); err != nil {
		return simulator.Result{}, err
	}

	res := simulator.Run(cfg)
	span.SetAttributes(
		attribute.Float64("sim.weekly_value", cfg.WeeklyValue),
		attribute.Int("sim.days_run", res.Summary.DaysRun),
	)

	s.events.PublishSimulationRun(ctx, events.SimulationRunData{
		WeeklyValue:  cfg.WeeklyValue,
		DaysRun:      res.Summary.DaysRun,
		Died:         res.Summary.DiedOnDay != nil,
		ReachedAdult: res.Summary.ReachedAdultOnDay != nil,
	})
	return res, nil
}

// CompareSimulations reruns cfg for each weekly value; nil values use the defaults.
func (s *Service) CompareSimulations(ctx context.Context, cfg simulator.Config, values []float64) ([]simulator.Comparison, error) {
	_, span := s.tracer.StartSpan(ctx, "service.CompareSimulations")
	defer span.End()

	if len(values) == 0 {
		values = simulator.DefaultComparisonValues
	}
	if err := validation.ValidateSimulation(cfg); err != nil {
		return nil, err
	}
	if err := validation.ValidateComparisonValues(values); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("sim.scenarios", len(values)))
	return simulator.Compare(cfg, values), nil
}
