package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	summaryBucket string
	summaryMonths int
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List your presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		presets, err := api.Presets(ctx)
		if err != nil {
			return err
		}
		if len(presets) == 0 {
			fmt.Println("No presets found.")
			return nil
		}

		faint := color.New(color.Faint)
		for _, p := range presets {
			day := ""
			if p.DayOfWeek != "" {
				day = faint.Sprintf(" (%s)", p.DayOfWeek)
			}
			fmt.Printf("%s %s%s  %d sets\n", faint.Sprint(p.ID.String()), padRight(p.Name, 20), day, p.PlannedCount())
			for _, ex := range p.Exercises {
				fmt.Printf("    %s %d x %s\n", padRight(ex.ExerciseID, 20), ex.Sets, ex.SetType)
			}
		}
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show training volume per week or month",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		end := time.Now()
		start := end.AddDate(0, -summaryMonths, 0)
		rows, err := api.TrainingSummary(ctx, summaryBucket, start, end)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No logged sets in range.")
			return nil
		}

		bold := color.New(color.Bold)
		bold.Printf("%-12s %8s %8s %8s %12s\n", "PERIOD", "SESSIONS", "SETS", "REPS", "TONNAGE KG")
		for _, r := range rows {
			fmt.Printf("%-12s %8v %8v %8v %12.1f\n",
				periodLabel(r["period"]), r["sessions"], r["working_sets"], r["total_reps"], number(r["tonnage_kg"]))
		}
		return nil
	},
}

func init() {
	summaryCmd.Flags().StringVarP(&summaryBucket, "bucket", "b", "month", "period: week or month")
	summaryCmd.Flags().IntVarP(&summaryMonths, "months", "m", 6, "months of history")
}

func periodLabel(v any) string {
	s, _ := v.(string)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format("2006-01-02")
	}
	return s
}

func number(v any) float64 {
	f, _ := v.(float64)
	return f
}
