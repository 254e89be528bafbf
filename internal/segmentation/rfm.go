package segmentation

import (
	"time"

	"qr-campaign-analytics/internal/models"
)

// RFMRow holds the recency / frequency fields of one user.
type RFMRow struct {
	User        string    `json:"user"`
	LastScan    time.Time `json:"last_scan"`
	RecencyDays int       `json:"recency_days"`
	Frequency   int       `json:"frequency"`
	RealPrizes  int       `json:"real_prizes"`
	Segment     Segment   `json:"segment"`
}

// RFM computes per-user recency, frequency and real prize counts. Recency is
// measured in whole days back from the latest scan of the whole batch.
func RFM(events []models.ScanEvent, userField string, loc *time.Location) []RFMRow {
	scans := userScans(events, userField, loc)
	if len(scans) == 0 {
		return []RFMRow{}
	}

	type agg struct {
		last     time.Time // absolute
		lastWall time.Time
		freq     int
		real     int
	}
	byUser := make(map[string]*agg)
	var globalLast time.Time
	for _, s := range scans {
		a, ok := byUser[s.user]
		if !ok {
			a = &agg{}
			byUser[s.user] = a
		}
		a.freq++
		if s.event.IsRealPrize {
			a.real++
		}
		if s.event.WinDate.After(a.last) {
			a.last = s.event.WinDate
			a.lastWall = s.at
		}
		if s.event.WinDate.After(globalLast) {
			globalLast = s.event.WinDate
		}
	}

	out := make([]RFMRow, 0, len(byUser))
	for _, user := range sortedUsers(byUser) {
		a := byUser[user]
		out = append(out, RFMRow{
			User:        user,
			LastScan:    a.lastWall,
			RecencyDays: int(globalLast.Sub(a.last) / (24 * time.Hour)),
			Frequency:   a.freq,
			RealPrizes:  a.real,
			Segment:     SegmentFor(a.freq),
		})
	}
	return out
}
