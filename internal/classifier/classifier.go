// Package classifier derives the win/prize flags of a scan event from its raw record.
package classifier

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"qr-campaign-analytics/internal/models"
)

// regionNames maps known region codes to display names.
var regionNames = map[int64]string{
	1: "Georgia",
	2: "Armenia",
}

var missingPrizeIDs = map[string]bool{
	"":     true,
	"null": true,
	"none": true,
	"nan":  true,
}

var truthyValues = map[string]bool{
	"1":    true,
	"true": true,
	"yes":  true,
	"y":    true,
	"t":    true,
}

// Layouts tried in order. Values without an offset are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses a source timestamp into an absolute instant.
// Unparseable input yields the zero time, which callers treat as missing.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" || missingPrizeIDs[strings.ToLower(raw)] || strings.EqualFold(raw, "nat") {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// NormalizePrizeID trims the prize identifier and reports whether it is present.
func NormalizePrizeID(raw *string) (string, bool) {
	if raw == nil {
		return "", false
	}
	v := strings.TrimSpace(*raw)
	if missingPrizeIDs[strings.ToLower(v)] {
		return "", false
	}
	return v, true
}

// ParseReceived interprets the source is_win_received value.
func ParseReceived(raw *string) bool {
	if raw == nil {
		return false
	}
	return truthyValues[strings.ToLower(strings.TrimSpace(*raw))]
}

// RegionName resolves a region code. Unknown codes pass through as their decimal form.
func RegionName(id *int64) string {
	if id == nil {
		return "Unknown"
	}
	if name, ok := regionNames[*id]; ok {
		return name
	}
	return strconv.FormatInt(*id, 10)
}

// Classify converts a raw record into a classified event.
func Classify(rec models.ScanRecord) models.ScanEvent {
	ev := models.ScanEvent{
		ID:                rec.ID,
		Identifiers:       rec.Identifiers,
		WinDate:           ParseTimestamp(rec.WinDate),
		PrizeReceiveDate:  ParseTimestamp(rec.PrizeReceiveDate),
		PrizeDeliveryDate: ParseTimestamp(rec.PrizeDeliveryDate),
		ActivationDate:    ParseTimestamp(rec.ActivationDate),
		CreatedDate:       ParseTimestamp(rec.CreatedDate),
		ModifyDate:        ParseTimestamp(rec.ModifyDate),
		RegionName:        RegionName(rec.RegionID),
	}
	ev.PrizeID, ev.HasPrizeID = NormalizePrizeID(rec.PrizeID)

	ev.HasWin = !ev.WinDate.IsZero()
	ev.IsRealPrize = ev.HasWin && ev.HasPrizeID
	ev.IsPointWin = ev.HasWin && !ev.HasPrizeID

	switch {
	case ev.IsRealPrize:
		ev.WinType = models.WinTypeRealPrize
	case ev.IsPointWin:
		ev.WinType = models.WinTypePoints
	default:
		ev.WinType = models.WinTypeNoWin
	}

	// Points are credited instantly.
	ev.IsWinReceived = ParseReceived(rec.IsWinReceived) || ev.IsPointWin

	ev.IsRealPrizeReceived = ev.IsRealPrize && ev.IsWinReceived
	ev.IsRealPrizePending = ev.IsRealPrize && !ev.IsWinReceived
	return ev
}

// ClassifyAll classifies a batch of records, preserving order.
func ClassifyAll(recs []models.ScanRecord) []models.ScanEvent {
	out := make([]models.ScanEvent, len(recs))
	for i, rec := range recs {
		out[i] = Classify(rec)
	}
	return out
}

// CheckInvariants reports the first broken derived-flag invariant of ev.
func CheckInvariants(ev models.ScanEvent) error {
	if ev.IsRealPrize && ev.IsPointWin {
		return fmt.Errorf("event %s: real prize and point win both set", ev.ID)
	}
	want := models.WinTypeNoWin
	if ev.IsRealPrize {
		want = models.WinTypeRealPrize
	} else if ev.IsPointWin {
		want = models.WinTypePoints
	}
	if ev.WinType != want {
		return fmt.Errorf("event %s: win_type %q does not match flags (want %q)", ev.ID, ev.WinType, want)
	}
	if ev.IsRealPrizeReceived == ev.IsRealPrizePending && ev.IsRealPrize {
		return fmt.Errorf("event %s: real prize must be exactly one of received or pending", ev.ID)
	}
	if !ev.IsRealPrize && (ev.IsRealPrizeReceived || ev.IsRealPrizePending) {
		return fmt.Errorf("event %s: received/pending set without a real prize", ev.ID)
	}
	if ev.IsPointWin && !ev.IsWinReceived {
		return fmt.Errorf("event %s: point win not marked received", ev.ID)
	}
	return nil
}
