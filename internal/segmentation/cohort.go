package segmentation

import (
	"sort"
	"time"

	"qr-campaign-analytics/internal/models"
	"qr-campaign-analytics/internal/timeseries"
)

// CohortRow is the retention curve of users whose first scan fell in CohortWeek.
type CohortRow struct {
	CohortWeek time.Time `json:"cohort_week"`
	Size       int       `json:"size"`
	// Users[w] is the number of distinct cohort users active w weeks after the cohort week.
	Users []int     `json:"users"`
	Rates []float64 `json:"rates"`
}

// CohortMatrix is the weekly retention table, cohorts ascending.
type CohortMatrix struct {
	Weeks   int         `json:"weeks"` // number of relative-week columns
	Cohorts []CohortRow `json:"cohorts"`
}

// CohortRetention builds the cohort_week x weeks_since_first matrix. Week
// boundaries are Mondays in loc.
func CohortRetention(events []models.ScanEvent, userField string, loc *time.Location) CohortMatrix {
	scans := userScans(events, userField, loc)
	if len(scans) == 0 {
		return CohortMatrix{Cohorts: []CohortRow{}}
	}

	firstScan := make(map[string]time.Time)
	for _, s := range scans {
		if f, ok := firstScan[s.user]; !ok || s.at.Before(f) {
			firstScan[s.user] = s.at
		}
	}

	type cell struct {
		cohort time.Time
		week   int
	}
	active := make(map[cell]map[string]struct{})
	maxWeek := 0
	for _, s := range scans {
		cohortWeek := timeseries.WeekStart(firstScan[s.user])
		activityWeek := timeseries.WeekStart(s.at)
		w := timeseries.DaysBetween(cohortWeek, activityWeek) / 7
		c := cell{cohort: cohortWeek, week: w}
		if active[c] == nil {
			active[c] = make(map[string]struct{})
		}
		active[c][s.user] = struct{}{}
		if w > maxWeek {
			maxWeek = w
		}
	}

	cohortWeeks := make(map[time.Time]struct{})
	for _, f := range firstScan {
		cohortWeeks[timeseries.WeekStart(f)] = struct{}{}
	}
	ordered := make([]time.Time, 0, len(cohortWeeks))
	for w := range cohortWeeks {
		ordered = append(ordered, w)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	m := CohortMatrix{Weeks: maxWeek + 1, Cohorts: make([]CohortRow, 0, len(ordered))}
	for _, cw := range ordered {
		row := CohortRow{
			CohortWeek: cw,
			Users:      make([]int, maxWeek+1),
			Rates:      make([]float64, maxWeek+1),
		}
		for w := 0; w <= maxWeek; w++ {
			row.Users[w] = len(active[cell{cohort: cw, week: w}])
		}
		// Every cohort member is active in week 0 by definition of the cohort.
		row.Size = row.Users[0]
		for w := range row.Users {
			if row.Size > 0 {
				row.Rates[w] = float64(row.Users[w]) / float64(row.Size)
			}
		}
		m.Cohorts = append(m.Cohorts, row)
	}
	return m
}
