package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qr-campaign-analytics/internal/models"
)

func utc(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func event(user string, ts time.Time) models.ScanEvent {
	ev := models.ScanEvent{WinDate: ts, HasWin: !ts.IsZero()}
	if user != "" {
		ev.Identifiers = map[string]string{"user_id": user}
	}
	return ev
}

func dates(series []models.Bucket) []time.Time {
	out := make([]time.Time, len(series))
	for i, b := range series {
		out[i] = b.Date
	}
	return out
}

func TestAggregate_EmptyInput(t *testing.T) {
	out := Aggregate(nil, Params{Granularity: Day})
	require.NotNil(t, out)
	assert.Empty(t, out)

	out = Aggregate([]models.ScanEvent{event("u1", time.Time{})}, Params{Granularity: Day})
	assert.Empty(t, out)
}

func TestAggregate_DailyGapFill(t *testing.T) {
	events := []models.ScanEvent{
		event("u1", utc(2024, 9, 15, 10)),
		event("u2", utc(2024, 9, 15, 11)),
		event("u1", utc(2024, 9, 18, 9)),
		event("u3", time.Time{}),
	}

	out := Aggregate(events, Params{Granularity: Day, Location: time.UTC})
	require.Len(t, out, 4)
	assert.Equal(t, []int{2, 0, 0, 1}, []int{out[0].Count, out[1].Count, out[2].Count, out[3].Count})
	assert.Equal(t, utc(2024, 9, 15, 0), out[0].Date)
	assert.Equal(t, utc(2024, 9, 18, 0), out[3].Date)

	// Every non-null timestamp is counted exactly once.
	assert.Equal(t, 3, Total(out))
}

func TestAggregate_UniqueUsers(t *testing.T) {
	events := []models.ScanEvent{
		event("u1", utc(2024, 9, 16, 10)),
		event("u1", utc(2024, 9, 17, 10)),
		event("u2", utc(2024, 9, 18, 10)),
		event("u1", utc(2024, 9, 24, 10)),
	}

	out := Aggregate(events, Params{Granularity: Week, Unique: true, UserField: "user_id"})
	require.Len(t, out, 2)
	assert.Equal(t, utc(2024, 9, 16, 0), out[0].Date)
	assert.Equal(t, 2, out[0].Count)
	assert.Equal(t, 1, out[1].Count)
}

func TestAggregate_UniqueWithoutUserFieldCountsEvents(t *testing.T) {
	events := []models.ScanEvent{
		event("u1", utc(2024, 9, 16, 10)),
		event("u1", utc(2024, 9, 16, 11)),
	}
	out := Aggregate(events, Params{Granularity: Day, Unique: true})
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Count)
}

func TestAggregate_TimezoneShiftsDay(t *testing.T) {
	yerevan := time.FixedZone("Asia/Yerevan", 4*3600)
	// 22:00 UTC on the 15th is 02:00 on the 16th in Yerevan.
	events := []models.ScanEvent{event("u1", utc(2024, 9, 15, 22))}

	out := Aggregate(events, Params{Granularity: Day, Location: yerevan})
	require.Len(t, out, 1)
	assert.Equal(t, utc(2024, 9, 16, 0), out[0].Date)
	assert.Equal(t, time.UTC, out[0].Date.Location())
}

func TestAggregate_WeekStartsMonday(t *testing.T) {
	events := []models.ScanEvent{
		event("u1", utc(2024, 9, 15, 10)), // Sunday
		event("u1", utc(2024, 9, 16, 10)), // Monday
		event("u1", utc(2024, 10, 1, 10)),
	}

	out := Aggregate(events, Params{Granularity: Week})
	assert.Equal(t, []time.Time{
		utc(2024, 9, 9, 0),
		utc(2024, 9, 16, 0),
		utc(2024, 9, 23, 0),
		utc(2024, 9, 30, 0),
	}, dates(out))
	assert.Equal(t, 0, out[2].Count)
}

func TestAggregate_Monthly(t *testing.T) {
	events := []models.ScanEvent{
		event("u1", utc(2024, 11, 30, 10)),
		event("u1", utc(2025, 2, 3, 10)),
	}

	out := Aggregate(events, Params{Granularity: Month})
	assert.Equal(t, []time.Time{
		utc(2024, 11, 1, 0),
		utc(2024, 12, 1, 0),
		utc(2025, 1, 1, 0),
		utc(2025, 2, 1, 0),
	}, dates(out))
}

func TestAggregate_TrimsLeadingAndOneTrailingZero(t *testing.T) {
	// Anonymous events produce zero-count buckets in unique mode.
	events := []models.ScanEvent{
		event("", utc(2024, 9, 14, 10)),
		event("", utc(2024, 9, 15, 10)),
		event("u1", utc(2024, 9, 16, 10)),
		event("u2", utc(2024, 9, 18, 10)),
		event("", utc(2024, 9, 19, 10)),
	}
	p := Params{Granularity: Day, Unique: true, UserField: "user_id"}

	out := Aggregate(events, p)
	assert.Equal(t, []time.Time{
		utc(2024, 9, 16, 0),
		utc(2024, 9, 17, 0),
		utc(2024, 9, 18, 0),
	}, dates(out))
	assert.Equal(t, 0, out[1].Count, "interior gap remains")

	p.KeepTrailingZero = true
	out = Aggregate(events, p)
	require.Len(t, out, 4)
	assert.Equal(t, 0, out[3].Count)
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("week")
	require.NoError(t, err)
	assert.Equal(t, Week, g)

	_, err = ParseGranularity("year")
	assert.Error(t, err)
}

func TestWeekStart(t *testing.T) {
	assert.Equal(t, utc(2024, 9, 16, 0), WeekStart(utc(2024, 9, 22, 23)))
	assert.Equal(t, utc(2024, 9, 16, 0), WeekStart(utc(2024, 9, 16, 0)))
	assert.Equal(t, 7, DaysBetween(utc(2024, 9, 16, 5), utc(2024, 9, 23, 1)))
}
