package segmentation

import (
	"time"

	"qr-campaign-analytics/internal/models"
	"qr-campaign-analytics/internal/stats"
)

// ClaimStats describes how fast real prizes were picked up after the win.
type ClaimStats struct {
	Hours   []float64     `json:"hours"`
	Summary stats.Summary `json:"summary"`
	// Anomalies counts receipts dated before their win; they are left out of Hours.
	Anomalies int `json:"anomalies"`
}

// TimeToClaim measures hours_to_claim for every received real prize that has
// both a win and a receive date.
func TimeToClaim(events []models.ScanEvent) ClaimStats {
	out := ClaimStats{Hours: []float64{}}
	for _, ev := range events {
		if !ev.IsRealPrize || !ev.IsWinReceived {
			continue
		}
		if ev.WinDate.IsZero() || ev.PrizeReceiveDate.IsZero() {
			continue
		}
		hours := ev.PrizeReceiveDate.Sub(ev.WinDate).Hours()
		if hours < 0 {
			out.Anomalies++
			continue
		}
		out.Hours = append(out.Hours, hours)
	}
	out.Summary = stats.Summarize(out.Hours)
	return out
}

// ForgottenPending counts pending real prizes won more than age before now.
func ForgottenPending(events []models.ScanEvent, now time.Time, age time.Duration) int {
	cutoff := now.Add(-age)
	n := 0
	for _, ev := range events {
		if ev.IsRealPrizePending && ev.WinDate.Before(cutoff) {
			n++
		}
	}
	return n
}
