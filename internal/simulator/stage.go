package simulator

import "fmt"

// Stage is a growth phase. Stages only move forward.
type Stage string

const (
	StageSmall  Stage = "small"
	StageMedium Stage = "medium"
	StageAdult  Stage = "adult"
)

var stageOrder = [...]Stage{StageSmall, StageMedium, StageAdult}

// index returns the position of s in the growth order, or -1.
func (s Stage) index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the following stage and false when s is terminal.
func (s Stage) Next() (Stage, bool) {
	i := s.index()
	if i < 0 || i+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[i+1], true
}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if st.index() < 0 {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return st, nil
}

// StageSpec holds the caps and decay of one stage.
type StageSpec struct {
	HungerCap       int `json:"hunger_cap"`
	SizeCap         int `json:"size_cap"`
	DailyHungerLoss int `json:"daily_hunger_loss"`
	// StageUpBonus is credited when leaving this stage.
	StageUpBonus int `json:"stageup_bonus"`
}

// Stages holds one spec per stage, in growth order.
type Stages [3]StageSpec

// Spec returns the spec of s.
func (st Stages) Spec(s Stage) StageSpec {
	return st[s.index()]
}

// DefaultStages returns the balance used by the game designers as a starting point.
func DefaultStages() Stages {
	return Stages{
		{HungerCap: 5, SizeCap: 5, DailyHungerLoss: 1, StageUpBonus: 5},
		{HungerCap: 10, SizeCap: 15, DailyHungerLoss: 1, StageUpBonus: 10},
		{HungerCap: 20, SizeCap: 15, DailyHungerLoss: 2, StageUpBonus: 0},
	}
}
