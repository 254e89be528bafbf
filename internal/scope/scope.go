// Package scope applies dashboard filters to classified events.
package scope

import (
	"fmt"
	"time"

	"qr-campaign-analytics/internal/models"
)

// ReceivedFilter restricts events by their is_win_received flag.
type ReceivedFilter string

const (
	ReceivedAll         ReceivedFilter = "all"
	ReceivedOnly        ReceivedFilter = "received"
	ReceivedNotReceived ReceivedFilter = "not_received"
)

// ParseReceivedFilter maps a query value to a ReceivedFilter; empty means all.
func ParseReceivedFilter(s string) (ReceivedFilter, error) {
	switch ReceivedFilter(s) {
	case "", ReceivedAll:
		return ReceivedAll, nil
	case ReceivedOnly, ReceivedNotReceived:
		return ReceivedFilter(s), nil
	}
	return "", fmt.Errorf("unknown received filter %q", s)
}

// Filter is the dashboard selection. Zero values disable a criterion.
type Filter struct {
	// StartFrom is a fixed lower bound applied before From.
	StartFrom      time.Time
	From           time.Time
	To             time.Time
	Regions        []string
	WinTypes       []models.WinType
	Received       ReceivedFilter
	RealPrizesOnly bool
}

// Apply returns the events matching f. Events without a win_date are always dropped.
func Apply(events []models.ScanEvent, f Filter) []models.ScanEvent {
	regions := toSet(f.Regions)
	winTypes := make(map[models.WinType]bool, len(f.WinTypes))
	for _, w := range f.WinTypes {
		winTypes[w] = true
	}

	out := make([]models.ScanEvent, 0, len(events))
	for _, ev := range events {
		if ev.WinDate.IsZero() {
			continue
		}
		if !f.StartFrom.IsZero() && ev.WinDate.Before(f.StartFrom) {
			continue
		}
		if !f.From.IsZero() && ev.WinDate.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && ev.WinDate.After(f.To) {
			continue
		}
		if len(regions) > 0 && !regions[ev.RegionName] {
			continue
		}
		if len(winTypes) > 0 && !winTypes[ev.WinType] {
			continue
		}
		switch f.Received {
		case ReceivedOnly:
			if !ev.IsWinReceived {
				continue
			}
		case ReceivedNotReceived:
			if ev.IsWinReceived {
				continue
			}
		}
		if f.RealPrizesOnly && !ev.IsRealPrize {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Regions lists the distinct region names of events in first-seen order.
func Regions(events []models.ScanEvent) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ev := range events {
		if !seen[ev.RegionName] {
			seen[ev.RegionName] = true
			out = append(out, ev.RegionName)
		}
	}
	return out
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
