package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/planner"
)

var planCmd = &cobra.Command{
	Use:   "plan <origin_stop_id> <destination_stop_id>",
	Short: "Plans journeys between two stops or stations",
	Args:  cobra.ExactArgs(2),
	RunE:  plan,
}

var (
	depart       string
	maxTransfers int
	maxWalkKm    float64
	walkSpeed    float64
	results      int
	modes        []string
)

func init() {
	planCmd.Flags().StringVarP(&depart, "depart", "d", "", "Departure time, RFC3339 or HH:MM today in the feed's timezone (default now)")
	planCmd.Flags().IntVarP(&maxTransfers, "max-transfers", "t", 0, "Maximum number of transfers")
	planCmd.Flags().Float64VarP(&maxWalkKm, "max-walk", "w", 0, "Maximum walking distance in km")
	planCmd.Flags().Float64VarP(&walkSpeed, "walk-speed", "", 0, "Walking speed in km/h")
	planCmd.Flags().IntVarP(&results, "results", "n", 0, "Number of journeys returned")
	planCmd.Flags().StringSliceVarP(&modes, "mode", "m", []string{}, "Restrict to route types (bus, subway, rail, ...)")
	rootCmd.AddCommand(planCmd)
}

func parseDepart(s string, tz *time.Location, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	hm, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid departure time '%s'", s)
	}
	local := now.In(tz)
	return time.Date(local.Year(), local.Month(), local.Day(), hm.Hour(), hm.Minute(), 0, 0, tz), nil
}

func plan(cmd *cobra.Command, args []string) error {
	m, cfg, err := loadManager(cmd)
	if err != nil {
		return err
	}
	s, _, err := m.Current()
	if err != nil {
		return err
	}

	departAfter, err := parseDepart(depart, s.Store.Location, time.Now())
	if err != nil {
		return err
	}

	constraints := cfg.Constraints()
	flags := cmd.Flags()
	if flags.Changed("max-transfers") {
		constraints.MaxTransfers = maxTransfers
	}
	if flags.Changed("max-walk") {
		constraints.MaxWalkKm = maxWalkKm
	}
	if flags.Changed("walk-speed") {
		constraints.WalkSpeedKmh = walkSpeed
	}
	if flags.Changed("results") {
		constraints.Results = results
	}
	for _, mode := range modes {
		rt, err := model.ParseRouteType(mode)
		if err != nil {
			return err
		}
		constraints.Modes = append(constraints.Modes, rt)
	}

	res, err := m.PlanJourney(cmd.Context(), args[0], args[1], departAfter, constraints)
	if err != nil {
		return err
	}

	if len(res.Journeys) == 0 {
		fmt.Println("no journeys found")
	}
	for i, j := range res.Journeys {
		if i > 0 {
			fmt.Println()
		}
		printJourney(j, s.Store.Location)
	}
	if res.Truncated != nil {
		fmt.Printf("\nsearch cut short after %d expansions: %s\n", res.Expansions, res.Truncated)
	}

	return nil
}

func printJourney(j planner.Journey, tz *time.Location) {
	clock := func(t time.Time) string { return t.In(tz).Format("15:04") }

	fmt.Printf(
		"%s -> %s (%s, %d transfers, %.1fkm walking)\n",
		clock(j.Departure), clock(j.Arrival), j.Duration, j.Transfers, j.WalkingDistanceKm,
	)
	for _, leg := range j.Legs {
		switch l := leg.(type) {
		case *planner.Ride:
			delay := ""
			if l.ArrivalDelay != 0 {
				delay = fmt.Sprintf(" [%+ds]", int(l.ArrivalDelay/time.Second))
			}
			fmt.Printf(
				"  %s %s  %s %s to %s (%s, %d stops)%s\n",
				clock(l.Departure), clock(l.Arrival),
				l.RouteType, strings.TrimSpace(l.RouteName),
				l.AlightStop.Name, l.Headsign, l.Stops, delay,
			)
		case *planner.Walk:
			fmt.Printf(
				"  %s %s  walk %.0fm to %s\n",
				clock(l.Departure), clock(l.Arrival), l.DistanceKm*1000, l.ToStop.Name,
			)
		}
	}
}
