package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/avanderberg/scrumline/internal/domain"
)

func newSprintCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sprint",
		Short: "Manage sprints",
	}

	cmd.AddCommand(
		newSprintAddCmd(app),
		newSprintListCmd(app),
		newSprintRenameCmd(app),
		newSprintRemoveCmd(app),
		newSprintContingentCmd(app),
		newSprintBurndownCmd(app),
	)

	return cmd
}

func newSprintAddCmd(app *App) *cobra.Command {
	var milestone, team, start string
	var days int

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := time.Parse("2006-01-02", start)
			if err != nil {
				return fmt.Errorf("start date %q is not YYYY-MM-DD", start)
			}
			sprint := &domain.Sprint{
				Name:      args[0],
				Start:     startDate,
				Milestone: milestone,
				Team:      team,
			}
			sprint.SetDuration(days)
			if err := app.Sprints.Create(context.Background(), sprint); err != nil {
				return err
			}
			fmt.Printf("Created sprint %q (%s, %d days)\n", sprint.Name, milestone, days)
			return nil
		},
	}

	cmd.Flags().StringVar(&milestone, "milestone", "", "Milestone the sprint works toward")
	cmd.Flags().StringVar(&team, "team", "", "Assigned team")
	cmd.Flags().StringVar(&start, "start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&days, "days", domain.DefaultSprintDuration, "Sprint length in days")
	_ = cmd.MarkFlagRequired("milestone")
	_ = cmd.MarkFlagRequired("start")

	return cmd
}

func newSprintListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sprints",
		RunE: func(cmd *cobra.Command, args []string) error {
			sprints, err := app.Sprints.List(context.Background())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(sprints))
			now := time.Now()
			for _, s := range sprints {
				state := "planned"
				if s.IsCurrentlyRunning(now) {
					state = "running"
				} else if s.IsClosed(now) {
					state = "closed"
				}
				rows = append(rows, []string{
					s.Name, s.Milestone, s.Team,
					s.Start.Format("2006-01-02"), s.End.Format("2006-01-02"), state,
				})
			}
			fmt.Print(renderTable([]string{"name", "milestone", "team", "start", "end", "state"}, rows))
			return nil
		},
	}
}

func newSprintRenameCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a sprint and rewrite every reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			sprint, err := app.Sprints.Get(ctx, args[0])
			if err != nil {
				return err
			}
			renamed := *sprint
			renamed.Name = args[1]
			if err := app.Sprints.Update(ctx, args[0], &renamed); err != nil {
				return err
			}
			fmt.Printf("Renamed sprint %q to %q\n", args[0], args[1])
			return nil
		},
	}
}

func newSprintRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Sprints.Delete(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted sprint %q\n", args[0])
			return nil
		},
	}
}

func newSprintContingentCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contingent",
		Short: "Manage sprint contingents",
	}

	var amount float64
	add := &cobra.Command{
		Use:   "add SPRINT NAME",
		Short: "Reserve a contingent in a sprint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := &domain.Contingent{Name: args[1], Sprint: args[0], Amount: amount}
			if err := app.Sprints.AddContingent(context.Background(), c); err != nil {
				return err
			}
			fmt.Printf("Reserved %.1fh for %q in sprint %q\n", amount, c.Name, c.Sprint)
			return nil
		},
	}
	add.Flags().Float64Var(&amount, "amount", 0, "Reserved hours")
	_ = add.MarkFlagRequired("amount")

	book := &cobra.Command{
		Use:   "book SPRINT NAME HOURS",
		Short: "Book hours against a contingent",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			hours, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("hours %q is not a number", args[2])
			}
			if err := app.Sprints.AddTimeToContingent(context.Background(), args[1], args[0], hours); err != nil {
				return err
			}
			fmt.Printf("Booked %.1fh on %q\n", hours, args[1])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list SPRINT",
		Short: "List the contingents of a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contingents, err := app.Sprints.Contingents(context.Background(), args[0])
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(contingents))
			for _, c := range contingents {
				rows = append(rows, []string{
					c.Name,
					fmt.Sprintf("%.1f", c.Amount),
					fmt.Sprintf("%.1f", c.Actual),
					fmt.Sprintf("%.1f", c.Amount-c.Actual),
				})
			}
			fmt.Print(renderTable([]string{"name", "amount", "actual", "left"}, rows))
			return nil
		},
	}

	cmd.AddCommand(add, book, list)
	return cmd
}

func newSprintBurndownCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "burndown SPRINT",
		Short: "Show the remaining-work log of a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			series, err := app.Burndown.RemainingTimeSeries(ctx, args[0])
			if err != nil {
				return err
			}
			var running float64
			rows := make([][]string, 0, len(series))
			for _, c := range series {
				running += c.Value
				rows = append(rows, []string{
					time.Unix(c.Timestamp, 0).UTC().Format(time.RFC3339),
					fmt.Sprintf("%+.1f", c.Value),
					fmt.Sprintf("%.1f", running),
				})
			}
			fmt.Print(renderTable([]string{"when", "delta", "remaining"}, rows))
			return nil
		},
	}
}
