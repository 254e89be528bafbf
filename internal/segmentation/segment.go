// Package segmentation computes per-user aggregates over classified scan events:
// frequency segments, cohort retention, RFM fields, claim speed and activity rates.
//
// Every function here only looks at events with a win_date and a non-empty
// identifier under the chosen user field.
package segmentation

import (
	"sort"
	"time"

	"qr-campaign-analytics/internal/models"
	"qr-campaign-analytics/internal/timeseries"
)

// Segment is a frequency class of a user.
type Segment string

const (
	SegmentNovice    Segment = "Novice"
	SegmentActive    Segment = "Active"
	SegmentPowerUser Segment = "Power User"
)

// SegmentFor classifies a lifetime scan count.
func SegmentFor(scans int) Segment {
	switch {
	case scans <= 1:
		return SegmentNovice
	case scans <= 5:
		return SegmentActive
	default:
		return SegmentPowerUser
	}
}

// UserSegments assigns a segment to every user of the dataset. Pass the
// unfiltered dataset so that dashboard filters do not move users between segments.
func UserSegments(all []models.ScanEvent, userField string) map[string]Segment {
	counts := make(map[string]int)
	for _, s := range userScans(all, userField, nil) {
		counts[s.user]++
	}
	out := make(map[string]Segment, len(counts))
	for user, n := range counts {
		out[user] = SegmentFor(n)
	}
	return out
}

// SegmentCount is one row of the segment distribution.
type SegmentCount struct {
	Segment Segment `json:"segment"`
	Users   int     `json:"users"`
}

// SegmentDistribution counts users per segment, most populated first.
func SegmentDistribution(segments map[string]Segment) []SegmentCount {
	counts := make(map[Segment]int)
	for _, s := range segments {
		counts[s]++
	}
	out := make([]SegmentCount, 0, len(counts))
	for s, n := range counts {
		out = append(out, SegmentCount{Segment: s, Users: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Users != out[j].Users {
			return out[i].Users > out[j].Users
		}
		return out[i].Segment < out[j].Segment
	})
	return out
}

// scan is one event reduced to what per-user aggregates need.
type scan struct {
	user  string
	at    time.Time // wall clock in the display timezone
	event models.ScanEvent
}

// userScans keeps events that have both a win_date and a user identifier.
func userScans(events []models.ScanEvent, userField string, loc *time.Location) []scan {
	out := make([]scan, 0, len(events))
	for _, ev := range events {
		if ev.WinDate.IsZero() {
			continue
		}
		user, ok := ev.UserKey(userField)
		if !ok {
			continue
		}
		out = append(out, scan{user: user, at: timeseries.Wall(ev.WinDate, loc), event: ev})
	}
	return out
}

func sortedUsers[T any](m map[string]T) []string {
	users := make([]string, 0, len(m))
	for u := range m {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}
