package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var stopsCmd = &cobra.Command{
	Use:   "stops <lat> <lng> [radius_km] [limit]",
	Short: "Lists stops near a geographical location",
	Args:  cobra.RangeArgs(2, 4),
	RunE:  stops,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Finds stops by name",
	Args:  cobra.ExactArgs(1),
	RunE:  search,
}

var searchLimit int

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "Maximum number of stops returned (0 for all)")
	rootCmd.AddCommand(stopsCmd)
	rootCmd.AddCommand(searchCmd)
}

func stops(cmd *cobra.Command, args []string) error {
	radius := 0.5
	limit := 0

	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid lat: %w", err)
	}
	lng, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid lng: %w", err)
	}
	if len(args) >= 3 {
		radius, err = strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid radius: %w", err)
		}
	}
	if len(args) == 4 {
		limit, err = strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
	}

	m, _, err := loadManager(cmd)
	if err != nil {
		return err
	}

	nearby, err := m.FindStopsNearby(lat, lng, radius, limit)
	if err != nil {
		return err
	}

	for _, n := range nearby {
		fmt.Printf("%s: %s (%.0fm)\n", n.Stop.ID, n.Stop.Name, n.DistanceKm*1000)
	}

	return nil
}

func search(cmd *cobra.Command, args []string) error {
	m, _, err := loadManager(cmd)
	if err != nil {
		return err
	}

	stops, err := m.SearchStopsByName(args[0], searchLimit)
	if err != nil {
		return err
	}

	for _, stop := range stops {
		fmt.Printf("%s: %s\n", stop.ID, stop.Name)
	}

	return nil
}
