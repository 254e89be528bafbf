package metrics

import (
	"sort"
	"time"

	"qr-campaign-analytics/internal/models"
	"qr-campaign-analytics/internal/timeseries"
)

// PrizeRow holds win probability and claim state of one prize.
type PrizeRow struct {
	PrizeID        string  `json:"prize_id"`
	Won            int     `json:"won"`
	Received       int     `json:"received"`
	PerScan        float64 `json:"p_per_scan"`
	ShareAmongReal float64 `json:"share_among_real"`
	ReceivedShare  float64 `json:"received_share_in_prize"`
	UnclaimedRate  float64 `json:"unclaimed_rate"`
}

// PrizeStats groups real prize wins by prize_id, most won first.
// Probabilities use every event of the batch as the scan denominator.
func PrizeStats(events []models.ScanEvent) []PrizeRow {
	won := make(map[string]int)
	received := make(map[string]int)
	totalReal := 0
	for _, ev := range events {
		if !ev.IsRealPrize {
			continue
		}
		totalReal++
		won[ev.PrizeID]++
		if ev.IsRealPrizeReceived {
			received[ev.PrizeID]++
		}
	}

	scans := max(len(events), 1)
	out := make([]PrizeRow, 0, len(won))
	for id, n := range won {
		r := PrizeRow{
			PrizeID:        id,
			Won:            n,
			Received:       received[id],
			PerScan:        float64(n) / float64(scans),
			ShareAmongReal: float64(n) / float64(max(totalReal, 1)),
			ReceivedShare:  float64(received[id]) / float64(n),
		}
		r.UnclaimedRate = 1 - r.ReceivedShare
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Won != out[j].Won {
			return out[i].Won > out[j].Won
		}
		return out[i].PrizeID < out[j].PrizeID
	})
	return out
}

// TimeOfDay is the hour histogram and weekday x hour heatmap of win dates.
type TimeOfDay struct {
	Hours [24]int `json:"hours"`
	// Heatmap[d][h]: d is 0 for Monday through 6 for Sunday.
	Heatmap [7][24]int `json:"heatmap"`
}

// TimeOfDayDistribution buckets win dates by local hour and weekday.
func TimeOfDayDistribution(events []models.ScanEvent, loc *time.Location) TimeOfDay {
	var out TimeOfDay
	for _, ev := range events {
		if ev.WinDate.IsZero() {
			continue
		}
		w := timeseries.Wall(ev.WinDate, loc)
		dow := (int(w.Weekday()) + 6) % 7
		out.Hours[w.Hour()]++
		out.Heatmap[dow][w.Hour()]++
	}
	return out
}
