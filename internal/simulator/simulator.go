// Package simulator runs the day-by-day growth economy of the goose feeding game.
//
// One entity moves through the small, medium and adult stages. Each day it
// may earn currency, loses hunger, and is fed while the daily cap and the
// wallet allow. Size grows only when a feed is given on a full stomach.
package simulator

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ValueMode says what the weekly value means.
type ValueMode string

const (
	// ValuePoints treats the weekly value as currency income.
	ValuePoints ValueMode = "points"
	// ValueFeeds treats the weekly value as a number of feeds per week.
	ValueFeeds ValueMode = "feeds"
)

// AccrualMode says how currency income is spread over the week.
type AccrualMode string

const (
	AccrualDaily  AccrualMode = "daily"
	AccrualWeekly AccrualMode = "weekly"
)

// affordTolerance absorbs rounding of the daily income split.
var affordTolerance = decimal.New(1, -9)

// Config is the full parameter set of one simulation run.
type Config struct {
	Stages             Stages      `json:"stages"`
	WeeklyValue        float64     `json:"weekly_value"`
	ValueMode          ValueMode   `json:"value_mode"`
	Accrual            AccrualMode `json:"accrual"`
	StartStage         Stage       `json:"start_stage"`
	StartHunger        int         `json:"start_hunger"`
	StartSize          int         `json:"start_size"`
	VisitDaily         bool        `json:"visit_daily"`
	MaxPaidFeedsPerDay int         `json:"max_paid_feeds_per_day"`
	StageUpBonus       bool        `json:"stageup_bonus"`
	MaxDays            int         `json:"max_days"`
}

// DefaultConfig returns the baseline scenario.
func DefaultConfig() Config {
	return Config{
		Stages:             DefaultStages(),
		WeeklyValue:        2,
		ValueMode:          ValuePoints,
		Accrual:            AccrualDaily,
		StartStage:         StageSmall,
		StartHunger:        3,
		StartSize:          1,
		VisitDaily:         true,
		MaxPaidFeedsPerDay: 10,
		StageUpBonus:       true,
		MaxDays:            180,
	}
}

// DayLog is the state at the end of one simulated day.
type DayLog struct {
	Day        int             `json:"day"`
	Stage      Stage           `json:"stage"`
	Hunger     int             `json:"hunger"`
	Size       int             `json:"size"`
	FeedsToday int             `json:"feeds_today"`
	PaidSpent  decimal.Decimal `json:"paid_spent"`
	WalletEnd  decimal.Decimal `json:"wallet_end"`
	SizeGains  int             `json:"size_gains"`
	StageUp    string          `json:"stage_up"`
}

// Summary describes how a run ended. Day fields are nil when the event never happened.
type Summary struct {
	DaysRun            int             `json:"days_run"`
	ReachedMediumOnDay *int            `json:"reached_medium_on_day"`
	ReachedAdultOnDay  *int            `json:"reached_adult_on_day"`
	DiedOnDay          *int            `json:"died_on_day"`
	FinalStage         Stage           `json:"final_stage"`
	FinalHunger        int             `json:"final_hunger"`
	FinalSize          int             `json:"final_size"`
	WalletEnd          decimal.Decimal `json:"wallet_end"`
	TotalPaidSpent     decimal.Decimal `json:"total_paid_spent"`
}

// Result is the day log and summary of a run.
type Result struct {
	Log     []DayLog `json:"log"`
	Summary Summary  `json:"summary"`
}

// FeedCost is the price of the n-th feed of a day (1-based): 0, 1, 2, 3, ...
func FeedCost(n int) int {
	return max(0, n-1)
}

// WeeklyFeedPlan spreads total feeds over a Monday-first week. Every day gets
// one feed when the player visits daily; the rest are packed into the earliest
// days up to the daily cap.
func WeeklyFeedPlan(total int, visitDaily bool, maxPaidFeedsPerDay int) [7]int {
	baseline := 0
	if visitDaily {
		baseline = 1
	}
	var plan [7]int
	for i := range plan {
		plan[i] = baseline
	}

	extras := max(0, total-baseline*7)
	dailyCap := baseline + max(0, maxPaidFeedsPerDay)
	for i := 0; i < len(plan) && extras > 0; i++ {
		add := min(extras, max(0, dailyCap-plan[i]))
		plan[i] += add
		extras -= add
	}
	return plan
}

// Run simulates until death, the adult stage, or MaxDays. It is deterministic.
func Run(cfg Config) Result {
	if cfg.StartStage == "" {
		cfg.StartStage = StageSmall
	}
	if cfg.ValueMode == "" {
		cfg.ValueMode = ValuePoints
	}

	s := state{
		cfg:    cfg,
		stage:  cfg.StartStage,
		hunger: cfg.StartHunger,
		size:   cfg.StartSize,
		wallet: decimal.Zero,
	}
	weekly := decimal.NewFromFloat(cfg.WeeklyValue)
	dailyIncome := weekly.Div(decimal.NewFromInt(7))

	var plan [7]int
	if cfg.ValueMode == ValueFeeds {
		total := int(math.RoundToEven(math.Max(0, cfg.WeeklyValue)))
		plan = WeeklyFeedPlan(total, cfg.VisitDaily, cfg.MaxPaidFeedsPerDay)
	}

	log := make([]DayLog, 0, cfg.MaxDays)
	for day := 1; day <= cfg.MaxDays; day++ {
		if cfg.ValueMode == ValuePoints {
			if cfg.Accrual == AccrualWeekly {
				if (day-1)%7 == 0 {
					s.wallet = s.wallet.Add(weekly)
				}
			} else {
				s.wallet = s.wallet.Add(dailyIncome)
			}
		}

		s.hunger -= s.spec().DailyHungerLoss
		if s.hunger <= 0 {
			s.hunger = 0
			d := day
			s.diedOn = &d
			log = append(log, s.entry(day))
			break
		}

		entry := DayLog{Day: day, PaidSpent: decimal.Zero}
		if cfg.VisitDaily {
			limit := 1 + max(0, cfg.MaxPaidFeedsPerDay)
			if cfg.ValueMode == ValueFeeds {
				limit = plan[(day-1)%7]
			}
			for entry.FeedsToday < limit {
				if !s.feed(day, &entry) {
					break
				}
			}
		}

		end := s.entry(day)
		end.FeedsToday = entry.FeedsToday
		end.PaidSpent = entry.PaidSpent
		end.SizeGains = entry.SizeGains
		end.StageUp = entry.StageUp
		log = append(log, end)

		if s.stage == StageAdult {
			if s.adultOn == nil {
				d := day
				s.adultOn = &d
			}
			break
		}
	}

	return Result{Log: log, Summary: s.summarize(log)}
}

type state struct {
	cfg      Config
	stage    Stage
	hunger   int
	size     int
	wallet   decimal.Decimal
	mediumOn *int
	adultOn  *int
	diedOn   *int
}

func (s *state) spec() StageSpec {
	return s.cfg.Stages.Spec(s.stage)
}

// feed gives the next feed of the day. It returns false when the wallet
// cannot cover the cost, which ends feeding for the day.
func (s *state) feed(day int, entry *DayLog) bool {
	cost := decimal.NewFromInt(int64(FeedCost(entry.FeedsToday + 1)))
	if cost.IsPositive() {
		if s.cfg.ValueMode == ValuePoints {
			if s.wallet.Add(affordTolerance).LessThan(cost) {
				return false
			}
			s.wallet = s.wallet.Sub(cost)
		}
		// In feeds mode the cost is only tracked.
		entry.PaidSpent = entry.PaidSpent.Add(cost)
	}

	// Growth is decided on the hunger level before this feed.
	spec := s.spec()
	if s.hunger >= spec.HungerCap && s.size < spec.SizeCap {
		s.size++
		entry.SizeGains++
		if s.size >= spec.SizeCap {
			s.promote(day, entry)
		}
	}

	s.hunger = min(s.hunger+1, s.spec().HungerCap)
	entry.FeedsToday++
	return true
}

func (s *state) promote(day int, entry *DayLog) {
	prev := s.stage
	next, ok := prev.Next()
	if !ok {
		return
	}
	s.stage = next
	entry.StageUp = fmt.Sprintf("%s->%s", prev, next)
	if s.cfg.StageUpBonus {
		s.wallet = s.wallet.Add(decimal.NewFromInt(int64(s.cfg.Stages.Spec(prev).StageUpBonus)))
	}
	d := day
	switch {
	case prev == StageSmall && s.mediumOn == nil:
		s.mediumOn = &d
	case prev == StageMedium && s.adultOn == nil:
		s.adultOn = &d
	}
}

func (s *state) entry(day int) DayLog {
	return DayLog{
		Day:       day,
		Stage:     s.stage,
		Hunger:    s.hunger,
		Size:      s.size,
		PaidSpent: decimal.Zero,
		WalletEnd: s.wallet,
	}
}

func (s *state) summarize(log []DayLog) Summary {
	sum := Summary{
		ReachedMediumOnDay: s.mediumOn,
		ReachedAdultOnDay:  s.adultOn,
		DiedOnDay:          s.diedOn,
		FinalStage:         s.cfg.StartStage,
		FinalHunger:        s.cfg.StartHunger,
		FinalSize:          s.cfg.StartSize,
		WalletEnd:          decimal.Zero,
		TotalPaidSpent:     decimal.Zero,
	}
	if len(log) == 0 {
		return sum
	}
	last := log[len(log)-1]
	sum.DaysRun = last.Day
	sum.FinalStage = last.Stage
	sum.FinalHunger = last.Hunger
	sum.FinalSize = last.Size
	sum.WalletEnd = last.WalletEnd
	for _, l := range log {
		sum.TotalPaidSpent = sum.TotalPaidSpent.Add(l.PaidSpent)
	}
	return sum
}

// Comparison is one row of a weekly value sweep.
type Comparison struct {
	WeeklyValue  float64         `json:"weekly_value"`
	ToMediumDays *int            `json:"to_medium_days"`
	ToAdultDays  *int            `json:"to_adult_days"`
	DiedOnDay    *int            `json:"died_on_day"`
	SpentTotal   decimal.Decimal `json:"spent_total"`
}

// DefaultComparisonValues are the weekly values compared by default.
var DefaultComparisonValues = []float64{1, 2, 5, 10}

// Compare reruns cfg for each weekly value.
func Compare(cfg Config, values []float64) []Comparison {
	out := make([]Comparison, 0, len(values))
	for _, v := range values {
		c := cfg
		c.WeeklyValue = v
		res := Run(c)
		out = append(out, Comparison{
			WeeklyValue:  v,
			ToMediumDays: res.Summary.ReachedMediumOnDay,
			ToAdultDays:  res.Summary.ReachedAdultOnDay,
			DiedOnDay:    res.Summary.DiedOnDay,
			SpentTotal:   res.Summary.TotalPaidSpent.Round(1),
		})
	}
	return out
}
