package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qr-campaign-analytics/internal/classifier"
	"qr-campaign-analytics/internal/models"
)

func strPtr(s string) *string { return &s }

func sampleEvents() []models.ScanEvent {
	rec := func(user, win, prize, received string) models.ScanRecord {
		r := models.ScanRecord{Identifiers: map[string]string{"user_id": user}, WinDate: win}
		if prize != "" {
			r.PrizeID = strPtr(prize)
		}
		if received != "" {
			r.IsWinReceived = strPtr(received)
		}
		return r
	}
	return classifier.ClassifyAll([]models.ScanRecord{
		rec("u1", "", "", ""),
		rec("u1", "2024-09-16T08:00:00Z", "", ""),       // points
		rec("u1", "2024-09-16T09:00:00Z", "p1", "1"),    // real, received
		rec("u1", "2024-09-17T09:00:00Z", "p1", "0"),    // real, pending
		rec("u2", "2024-09-22T23:30:00Z", "p2", "0"),    // real, pending
		rec("u3", "2024-09-18T10:00:00Z", "p1", "true"), // real, received
	})
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleEvents(), "user_id")
	assert.Equal(t, 6, s.TotalEvents)
	require.NotNil(t, s.UniqueUsers)
	assert.Equal(t, 3, *s.UniqueUsers)
	assert.Equal(t, 5, s.Wins)
	assert.Equal(t, 4, s.RealPrizes)
	assert.Equal(t, 2, s.RealPrizesReceived)
	assert.Equal(t, 2, s.RealPrizesPending)
	assert.Equal(t, s.RealPrizes, s.RealPrizesReceived+s.RealPrizesPending)
	assert.InDelta(t, 5.0/6, s.WinRate, 1e-9)
	assert.InDelta(t, 0.8, s.RealPrizeShare, 1e-9)
	assert.InDelta(t, 0.5, s.PendingRate, 1e-9)

	s = Summarize(nil, "")
	assert.Nil(t, s.UniqueUsers)
	assert.Equal(t, 0.0, s.WinRate)
}

func TestPendingConsistency(t *testing.T) {
	c := PendingConsistency(sampleEvents(), "user_id", 0)
	assert.True(t, c.Consistent)
	assert.Equal(t, 2, c.PendingEvents)
	assert.Equal(t, 2, c.PendingUsers)
	assert.Equal(t, 3, c.UsersWonAny)
	assert.Equal(t, 2, c.UsersReceivedAny)
	assert.Equal(t, 1, c.PendingReceivedBefore)
	require.Len(t, c.TopPending, 2)
	assert.Equal(t, "u1", c.TopPending[0].User)
	assert.True(t, c.TopPending[0].HasReceivedRealBefore)

	limited := PendingConsistency(sampleEvents(), "user_id", 1)
	assert.Len(t, limited.TopPending, 1)
}

func TestPrizeStats(t *testing.T) {
	rows := PrizeStats(sampleEvents())
	require.Len(t, rows, 2)

	p1 := rows[0]
	assert.Equal(t, "p1", p1.PrizeID)
	assert.Equal(t, 3, p1.Won)
	assert.Equal(t, 2, p1.Received)
	assert.InDelta(t, 0.5, p1.PerScan, 1e-9)
	assert.InDelta(t, 0.75, p1.ShareAmongReal, 1e-9)
	assert.InDelta(t, 1.0/3, p1.UnclaimedRate, 1e-9)

	assert.Empty(t, PrizeStats(nil))
}

func TestTimeOfDayDistribution(t *testing.T) {
	yerevan := time.FixedZone("Asia/Yerevan", 4*3600)
	tod := TimeOfDayDistribution(sampleEvents(), yerevan)

	// 2024-09-22T23:30Z is Monday 03:30 in Yerevan.
	assert.Equal(t, 1, tod.Heatmap[0][3])
	assert.Equal(t, 1, tod.Hours[3])
	// 2024-09-16 08:00Z and 09:00Z are Monday 12:00 and 13:00.
	assert.Equal(t, 1, tod.Heatmap[0][12])
	assert.Equal(t, 1, tod.Heatmap[0][13])

	total := 0
	for _, n := range tod.Hours {
		total += n
	}
	assert.Equal(t, 5, total)
}
