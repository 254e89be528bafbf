package segmentation

import (
	"fmt"
	"time"

	"qr-campaign-analytics/internal/models"
	"qr-campaign-analytics/internal/stats"
	"qr-campaign-analytics/internal/timeseries"
)

// RateBasis chooses where a user's observation window ends.
type RateBasis string

const (
	// BasisOwnLast ends the window at the user's own last scan.
	BasisOwnLast RateBasis = "own_last"
	// BasisGlobalLast ends the window at the last observed day of the batch.
	BasisGlobalLast RateBasis = "global_last"
)

// ParseRateBasis maps a query value to a RateBasis; empty means global.
func ParseRateBasis(s string) (RateBasis, error) {
	switch RateBasis(s) {
	case "", BasisGlobalLast:
		return BasisGlobalLast, nil
	case BasisOwnLast:
		return BasisOwnLast, nil
	}
	return "", fmt.Errorf("unknown rate basis %q", s)
}

// ActivityRate is the normalized scan rate of one user.
type ActivityRate struct {
	User       string    `json:"user"`
	TotalScans int       `json:"total_scans"`
	FirstDay   time.Time `json:"first_day"`
	LastDay    time.Time `json:"last_day"`
	SpanDays   int       `json:"span_days"`
	SpanWeeks  int       `json:"span_weeks"`
	FullWeeks  int       `json:"full_weeks"`

	DailyRate      float64 `json:"daily_rate_span"`
	WeeklyRateSpan float64 `json:"weekly_rate_span"`
	// WeeklyRateFullWeeks is nil when the window holds no complete Monday-Sunday week.
	WeeklyRateFullWeeks *float64 `json:"weekly_rate_full_weeks"`
}

// ActivityRates computes per-user daily and weekly scan rates. Windows are
// inclusive on both ends and never shorter than one day or one week.
func ActivityRates(events []models.ScanEvent, userField string, loc *time.Location, basis RateBasis) []ActivityRate {
	scans := userScans(events, userField, loc)
	if len(scans) == 0 {
		return []ActivityRate{}
	}

	type window struct {
		first, last time.Time
		total       int
	}
	byUser := make(map[string]*window)
	var globalLast time.Time
	for _, s := range scans {
		w, ok := byUser[s.user]
		if !ok {
			w = &window{first: s.at, last: s.at}
			byUser[s.user] = w
		}
		w.total++
		if s.at.Before(w.first) {
			w.first = s.at
		}
		if s.at.After(w.last) {
			w.last = s.at
		}
	}
	// The batch end counts every dated scan, identified or not.
	for _, ev := range events {
		if ev.WinDate.IsZero() {
			continue
		}
		if at := timeseries.Wall(ev.WinDate, loc); at.After(globalLast) {
			globalLast = at
		}
	}
	globalLastDay := timeseries.DayStart(globalLast)

	out := make([]ActivityRate, 0, len(byUser))
	for _, user := range sortedUsers(byUser) {
		w := byUser[user]
		firstDay := timeseries.DayStart(w.first)
		lastDay := timeseries.DayStart(w.last)
		if basis == BasisGlobalLast {
			lastDay = globalLastDay
		}

		r := ActivityRate{
			User:       user,
			TotalScans: w.total,
			FirstDay:   firstDay,
			LastDay:    lastDay,
			SpanDays:   max(timeseries.DaysBetween(firstDay, lastDay)+1, 1),
			SpanWeeks:  max(timeseries.DaysBetween(timeseries.WeekStart(firstDay), timeseries.WeekStart(lastDay))/7+1, 1),
			FullWeeks:  FullWeeks(firstDay, lastDay),
		}
		r.DailyRate = float64(r.TotalScans) / float64(r.SpanDays)
		r.WeeklyRateSpan = float64(r.TotalScans) / float64(r.SpanWeeks)
		if r.FullWeeks > 0 {
			v := float64(r.TotalScans) / float64(r.FullWeeks)
			r.WeeklyRateFullWeeks = &v
		}
		out = append(out, r)
	}
	return out
}

// FullWeeks counts Monday-to-Sunday weeks lying entirely within [firstDay, lastDay].
func FullWeeks(firstDay, lastDay time.Time) int {
	firstDay, lastDay = timeseries.DayStart(firstDay), timeseries.DayStart(lastDay)
	monday := timeseries.WeekStart(firstDay)
	if monday.Before(firstDay) {
		monday = monday.AddDate(0, 0, 7)
	}
	n := 0
	for ; !monday.AddDate(0, 0, 6).After(lastDay); monday = monday.AddDate(0, 0, 7) {
		n++
	}
	return n
}

// RateSummary describes the distribution of each rate column.
type RateSummary struct {
	ScansPerUser        stats.Summary `json:"scans_per_user"`
	DailyRate           stats.Summary `json:"daily_rate_span"`
	WeeklyRateSpan      stats.Summary `json:"weekly_rate_span"`
	WeeklyRateFullWeeks stats.Summary `json:"weekly_rate_full_weeks"`
	// UsersWithoutFullWeek counts users left out of WeeklyRateFullWeeks.
	UsersWithoutFullWeek int `json:"users_without_full_week"`
}

// SummarizeRates aggregates ActivityRates output.
func SummarizeRates(rates []ActivityRate) RateSummary {
	var scans, daily, weekly, full []float64
	s := RateSummary{}
	for _, r := range rates {
		scans = append(scans, float64(r.TotalScans))
		daily = append(daily, r.DailyRate)
		weekly = append(weekly, r.WeeklyRateSpan)
		if r.WeeklyRateFullWeeks == nil {
			s.UsersWithoutFullWeek++
			continue
		}
		full = append(full, *r.WeeklyRateFullWeeks)
	}
	s.ScansPerUser = stats.Summarize(scans)
	s.DailyRate = stats.Summarize(daily)
	s.WeeklyRateSpan = stats.Summarize(weekly)
	s.WeeklyRateFullWeeks = stats.Summarize(full)
	return s
}
