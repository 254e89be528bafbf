// Package metrics computes the headline numbers of the campaign dashboard.
package metrics

import (
	"sort"

	"qr-campaign-analytics/internal/models"
	"qr-campaign-analytics/internal/stats"
)

// Summary holds the key metrics of a batch of events.
type Summary struct {
	TotalEvents        int  `json:"total_events"`
	UniqueUsers        *int `json:"unique_users,omitempty"` // nil without a user field
	Wins               int  `json:"wins"`
	RealPrizes         int  `json:"real_prizes"`
	RealPrizesReceived int  `json:"real_prizes_received"`
	RealPrizesPending  int  `json:"real_prizes_pending"`

	WinRate        float64 `json:"win_rate"`
	RealPrizeShare float64 `json:"real_prize_share"`
	ReceivedRate   float64 `json:"received_rate"`
	PendingRate    float64 `json:"pending_rate"`
}

// Summarize counts wins and prize states. userField may be empty.
func Summarize(events []models.ScanEvent, userField string) Summary {
	s := Summary{TotalEvents: len(events)}
	users := make(map[string]struct{})
	for _, ev := range events {
		if ev.HasWin {
			s.Wins++
		}
		if ev.IsRealPrize {
			s.RealPrizes++
		}
		if ev.IsRealPrizeReceived {
			s.RealPrizesReceived++
		}
		if ev.IsRealPrizePending {
			s.RealPrizesPending++
		}
		if id, ok := ev.UserKey(userField); ok {
			users[id] = struct{}{}
		}
	}
	if userField != "" {
		n := len(users)
		s.UniqueUsers = &n
	}

	s.WinRate = stats.SafeRate(float64(s.Wins), float64(s.TotalEvents))
	s.RealPrizeShare = stats.SafeRate(float64(s.RealPrizes), float64(s.Wins))
	s.ReceivedRate = stats.SafeRate(float64(s.RealPrizesReceived), float64(s.RealPrizes))
	s.PendingRate = stats.SafeRate(float64(s.RealPrizesPending), float64(s.RealPrizes))
	return s
}

// PendingUser is one user waiting for at least one real prize.
type PendingUser struct {
	User                    string `json:"user"`
	PendingRealPrizes       int    `json:"pending_real_prizes"`
	ReceivedRealBeforeCount int    `json:"received_real_before_count"`
	HasReceivedRealBefore   bool   `json:"has_received_real_before"`
}

// Consistency reports winner/receiver counts and checks that unique pending
// users never exceed pending events. A violation points at a wrong user field.
type Consistency struct {
	UserField             string        `json:"user_field"`
	UsersWonAny           int           `json:"users_won_any"`
	UsersReceivedAny      int           `json:"users_received_any"`
	PendingEvents         int           `json:"pending_events"`
	PendingUsers          int           `json:"pending_users"`
	PendingReceivedBefore int           `json:"pending_users_received_before"`
	Consistent            bool          `json:"consistent"`
	TopPending            []PendingUser `json:"top_pending"`
}

// PendingConsistency builds the pending-prize cross check. Only the top
// limit users by pending count are listed; limit <= 0 lists all.
func PendingConsistency(events []models.ScanEvent, userField string, limit int) Consistency {
	c := Consistency{UserField: userField}
	won := make(map[string]struct{})
	received := make(map[string]struct{})
	pending := make(map[string]int)
	receivedReal := make(map[string]int)

	for _, ev := range events {
		if ev.IsRealPrizePending {
			c.PendingEvents++
		}
		id, ok := ev.UserKey(userField)
		if !ok {
			continue
		}
		if ev.HasWin {
			won[id] = struct{}{}
		}
		if ev.IsWinReceived {
			received[id] = struct{}{}
		}
		if ev.IsRealPrizePending {
			pending[id]++
		}
		if ev.IsRealPrizeReceived {
			receivedReal[id]++
		}
	}

	c.UsersWonAny = len(won)
	c.UsersReceivedAny = len(received)
	c.PendingUsers = len(pending)
	c.Consistent = c.PendingUsers <= c.PendingEvents

	c.TopPending = make([]PendingUser, 0, len(pending))
	for user, n := range pending {
		before := receivedReal[user]
		if before > 0 {
			c.PendingReceivedBefore++
		}
		c.TopPending = append(c.TopPending, PendingUser{
			User:                    user,
			PendingRealPrizes:       n,
			ReceivedRealBeforeCount: before,
			HasReceivedRealBefore:   before > 0,
		})
	}
	sort.Slice(c.TopPending, func(i, j int) bool {
		a, b := c.TopPending[i], c.TopPending[j]
		if a.PendingRealPrizes != b.PendingRealPrizes {
			return a.PendingRealPrizes > b.PendingRealPrizes
		}
		return a.User < b.User
	})
	if limit > 0 && len(c.TopPending) > limit {
		c.TopPending = c.TopPending[:limit]
	}
	return c
}
