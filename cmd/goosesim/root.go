package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"qr-campaign-analytics/internal/simulator"
	"qr-campaign-analytics/internal/validation"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "goosesim",
		Short: "Goose growth economy simulator",
		Long: `Simulates one goose from the small stage towards adult, day by day.

COMMANDS:
  run       Simulate a single scenario and print the day log
  compare   Rerun a scenario for several weekly values

EXAMPLES:
  goosesim run --weekly-value 5 --days 60
  goosesim run --value-mode feeds --weekly-value 14 --json
  goosesim compare --values 1,2,5,10`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to load .env file: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(newRunCmd(), newCompareCmd())
	return root
}

// scenarioFlags binds the simulator parameters to command flags.
type scenarioFlags struct {
	cfg        simulator.Config
	valueMode  string
	accrual    string
	startStage string
}

func addScenarioFlags(cmd *cobra.Command) *scenarioFlags {
	sf := &scenarioFlags{cfg: simulator.DefaultConfig()}
	sf.valueMode = string(sf.cfg.ValueMode)
	sf.accrual = string(sf.cfg.Accrual)
	sf.startStage = string(sf.cfg.StartStage)

	f := cmd.Flags()
	f.Float64Var(&sf.cfg.WeeklyValue, "weekly-value", sf.cfg.WeeklyValue, "Weekly currency income, or feeds per week in feeds mode")
	f.StringVar(&sf.valueMode, "value-mode", sf.valueMode, "Meaning of the weekly value: points or feeds")
	f.StringVar(&sf.accrual, "accrual", sf.accrual, "Income schedule in points mode: daily or weekly")
	f.StringVar(&sf.startStage, "start-stage", sf.startStage, "Initial stage: small, medium or adult")
	f.IntVar(&sf.cfg.StartHunger, "start-hunger", sf.cfg.StartHunger, "Initial hunger")
	f.IntVar(&sf.cfg.StartSize, "start-size", sf.cfg.StartSize, "Initial size")
	f.BoolVar(&sf.cfg.VisitDaily, "visit-daily", sf.cfg.VisitDaily, "Player takes the free feed every day")
	f.IntVar(&sf.cfg.MaxPaidFeedsPerDay, "max-paid-feeds", sf.cfg.MaxPaidFeedsPerDay, "Cap on paid feeds per day")
	f.BoolVar(&sf.cfg.StageUpBonus, "stageup-bonus", sf.cfg.StageUpBonus, "Credit the stage-up bonus on promotion")
	f.IntVarP(&sf.cfg.MaxDays, "days", "d", sf.cfg.MaxDays, "Number of days to simulate")

	for i, st := range []simulator.Stage{simulator.StageSmall, simulator.StageMedium, simulator.StageAdult} {
		spec := &sf.cfg.Stages[i]
		f.IntVar(&spec.HungerCap, string(st)+"-hunger-cap", spec.HungerCap, "Hunger cap of the "+string(st)+" stage")
		f.IntVar(&spec.SizeCap, string(st)+"-size-cap", spec.SizeCap, "Size cap of the "+string(st)+" stage")
		f.IntVar(&spec.DailyHungerLoss, string(st)+"-hunger-loss", spec.DailyHungerLoss, "Daily hunger loss of the "+string(st)+" stage")
		f.IntVar(&spec.StageUpBonus, string(st)+"-bonus", spec.StageUpBonus, "Bonus credited when leaving the "+string(st)+" stage")
	}

	return sf
}

// config returns the validated scenario.
func (sf *scenarioFlags) config() (simulator.Config, error) {
	cfg := sf.cfg
	cfg.ValueMode = simulator.ValueMode(sf.valueMode)
	cfg.Accrual = simulator.AccrualMode(sf.accrual)
	cfg.StartStage = simulator.Stage(sf.startStage)

	return cfg, validation.ValidateSimulation(cfg)
}

// dayOrDash prints an optional day number.
func dayOrDash(d *int) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprint(*d)
}
