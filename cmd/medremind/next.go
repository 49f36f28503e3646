package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"medication-reminder/pkg/schedule"

	"github.com/spf13/cobra"
)

var (
	nextTime      string
	nextFrequency string
	nextInterval  int
	nextDays      string
	nextNow       string
	nextCount     int
)

// nextCmd evalúa una regla sin servidor ni base: útil para soporte.
var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the next trigger instants of a schedule rule",
	Example: `  medremind next --time 08:00 --frequency daily
  medremind next --time 06:00 --frequency hourly --interval 8 --count 3
  medremind next --time 21:30 --frequency weekly --days 1,3,5 --now 2024-01-01T00:00:00Z`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rule, err := buildRule(nextTime, nextFrequency, nextInterval, nextDays)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if strings.TrimSpace(nextNow) != "" {
			now, err = time.Parse(time.RFC3339, strings.TrimSpace(nextNow))
			if err != nil {
				return fmt.Errorf("--now must be RFC3339: %w", err)
			}
		}

		triggers := nextTriggers(rule, now, nextCount)
		if len(triggers) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no upcoming trigger")
			return nil
		}
		for _, t := range triggers {
			fmt.Fprintln(cmd.OutOrStdout(), t.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	nextCmd.Flags().StringVar(&nextTime, "time", "", "Time of day HH:MM (UTC)")
	nextCmd.Flags().StringVar(&nextFrequency, "frequency", "daily", "daily|hourly|weekly")
	nextCmd.Flags().IntVar(&nextInterval, "interval", 0, "Interval hours (hourly)")
	nextCmd.Flags().StringVar(&nextDays, "days", "", "Comma separated days of week, 0=Sunday (weekly)")
	nextCmd.Flags().StringVar(&nextNow, "now", "", "Evaluate at this RFC3339 instant instead of now")
	nextCmd.Flags().IntVar(&nextCount, "count", 1, "How many successive triggers to print")
	_ = nextCmd.MarkFlagRequired("time")
}

func buildRule(tod, freq string, interval int, days string) (schedule.Rule, error) {
	t, err := schedule.ParseTimeOfDay(tod)
	if err != nil {
		return schedule.Rule{}, err
	}
	kind, err := schedule.ParseFrequencyKind(freq)
	if err != nil {
		return schedule.Rule{}, err
	}

	rule := schedule.Rule{TimeOfDay: t, Kind: kind, IntervalHours: interval, Active: true}
	if strings.TrimSpace(days) != "" {
		for _, p := range strings.Split(days, ",") {
			d, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return schedule.Rule{}, fmt.Errorf("invalid day %q", p)
			}
			rule.DaysOfWeek = append(rule.DaysOfWeek, d)
		}
	}
	if err := rule.Validate(); err != nil {
		return schedule.Rule{}, err
	}
	return rule, nil
}

// nextTriggers encadena ResolveNextTrigger desde el último instante devuelto.
func nextTriggers(rule schedule.Rule, now time.Time, count int) []time.Time {
	if count < 1 {
		count = 1
	}
	out := make([]time.Time, 0, count)
	at := now
	for i := 0; i < count; i++ {
		t, ok := schedule.ResolveNextTrigger(rule, at)
		if !ok {
			break
		}
		out = append(out, t)
		at = t
	}
	return out
}
