package segmentation

import (
	"sort"
	"time"

	"qr-campaign-analytics/internal/models"
	"qr-campaign-analytics/internal/stats"
)

// UserActivityRow summarizes the scan history of one user.
type UserActivityRow struct {
	User                    string  `json:"user"`
	Scans                   int     `json:"scans"`
	WinsAny                 int     `json:"wins_any"`
	RealPrizes              int     `json:"real_prizes"`
	AvgHoursBetweenScans    float64 `json:"avg_hours_between_scans"`
	MedianHoursBetweenScans float64 `json:"median_hours_between_scans"`
	AvgDaysBetweenScans     float64 `json:"avg_days_between_scans"`
	Segment                 Segment `json:"segment"`
}

// UserActivity lists users by scans, wins and real prizes, most active first.
// Users with a single scan report zero gaps.
func UserActivity(events []models.ScanEvent, userField string, loc *time.Location) []UserActivityRow {
	scans := userScans(events, userField, loc)
	if len(scans) == 0 {
		return []UserActivityRow{}
	}

	byUser := make(map[string][]scan)
	for _, s := range scans {
		byUser[s.user] = append(byUser[s.user], s)
	}

	out := make([]UserActivityRow, 0, len(byUser))
	for _, user := range sortedUsers(byUser) {
		history := byUser[user]
		sort.SliceStable(history, func(i, j int) bool { return history[i].event.WinDate.Before(history[j].event.WinDate) })

		row := UserActivityRow{User: user, Scans: len(history), Segment: SegmentFor(len(history))}
		gaps := make([]float64, 0, len(history))
		for i, s := range history {
			if s.event.HasWin {
				row.WinsAny++
			}
			if s.event.IsRealPrize {
				row.RealPrizes++
			}
			if i > 0 {
				gaps = append(gaps, s.event.WinDate.Sub(history[i-1].event.WinDate).Hours())
			}
		}
		if len(gaps) > 0 {
			row.AvgHoursBetweenScans = stats.Mean(gaps)
			row.MedianHoursBetweenScans = stats.Median(gaps)
			row.AvgDaysBetweenScans = row.AvgHoursBetweenScans / 24
		}
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Scans != b.Scans {
			return a.Scans > b.Scans
		}
		if a.WinsAny != b.WinsAny {
			return a.WinsAny > b.WinsAny
		}
		return a.RealPrizes > b.RealPrizes
	})
	return out
}
