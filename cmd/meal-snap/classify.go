// cmd/meal-snap/classify.go
package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mcp-meal-snap/internal/models"
	"mcp-meal-snap/internal/nutrition"
)

func newClassifyCmd() *cobra.Command {
	var timezone string
	cmd := &cobra.Command{
		Use:   "classify <RFC3339 time|hour>",
		Short: "Show the meal type for a time of day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mealType, err := classifyArg(args[0], timezone)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", mealType, mealType.Label())
			return nil
		},
	}
	cmd.Flags().StringVar(&timezone, "timezone", "Local", "IANA timezone the time is classified in")
	return cmd
}

func classifyArg(arg, timezone string) (models.MealType, error) {
	if hour, err := strconv.Atoi(arg); err == nil {
		if hour < 0 || hour > 23 {
			return 0, fmt.Errorf("hour %d out of range 0-23", hour)
		}
		return nutrition.ClassifyHour(hour), nil
	}

	t, err := time.Parse(time.RFC3339, arg)
	if err != nil {
		return 0, fmt.Errorf("expected an hour or an RFC3339 time, got %q", arg)
	}

	loc := time.Local
	if timezone != "" && timezone != "Local" {
		if loc, err = time.LoadLocation(timezone); err != nil {
			return 0, fmt.Errorf("invalid timezone: %w", err)
		}
	}
	return nutrition.ClassifyIn(t, loc), nil
}
