// Package timeseries buckets scan events into day, week or month series.
package timeseries

import (
	"sort"
	"time"

	"qr-campaign-analytics/internal/models"
)

// Params controls a single aggregation.
type Params struct {
	Field       models.TimestampField
	Granularity Granularity
	// Unique counts distinct UserField values per bucket instead of events.
	Unique    bool
	Location  *time.Location
	UserField string
	// KeepTrailingZero disables dropping a zero-count final bucket.
	KeepTrailingZero bool
}

// Aggregate groups events into contiguous buckets.
//
// Buckets between the first and last observed key are filled with zero,
// leading zero buckets are trimmed and a single zero bucket at the end is
// dropped as an incomplete current period. Interior gaps stay.
func Aggregate(events []models.ScanEvent, p Params) []models.Bucket {
	out := []models.Bucket{}
	if len(events) == 0 {
		return out
	}
	if p.Field == "" {
		p.Field = models.FieldWinDate
	}
	unique := p.Unique && p.UserField != ""

	counts := make(map[time.Time]int)
	users := make(map[time.Time]map[string]struct{})
	for _, ev := range events {
		ts := ev.Timestamp(p.Field)
		if ts.IsZero() {
			continue
		}
		key := p.Granularity.Floor(Wall(ts, p.Location))

		if !unique {
			counts[key]++
			continue
		}
		set, ok := users[key]
		if !ok {
			set = make(map[string]struct{})
			users[key] = set
		}
		// A bucket with only anonymous events still exists with count 0.
		if id, ok := ev.UserKey(p.UserField); ok {
			set[id] = struct{}{}
		}
	}
	if unique {
		for key, set := range users {
			counts[key] = len(set)
		}
	}
	if len(counts) == 0 {
		return out
	}

	keys := make([]time.Time, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	first, last := keys[0], keys[len(keys)-1]
	for d := first; !d.After(last); d = p.Granularity.Next(d) {
		out = append(out, models.Bucket{Date: d, Count: counts[d]})
	}

	return trim(out, !p.KeepTrailingZero)
}

func trim(series []models.Bucket, dropTrailingZero bool) []models.Bucket {
	for i, b := range series {
		if b.Count > 0 {
			series = series[i:]
			break
		}
	}
	if dropTrailingZero && len(series) > 0 && series[len(series)-1].Count == 0 {
		series = series[:len(series)-1]
	}
	return series
}

// Total sums the counts of a series.
func Total(series []models.Bucket) int {
	n := 0
	for _, b := range series {
		n += b.Count
	}
	return n
}
