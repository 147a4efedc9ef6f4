package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avanderberg/scrumline/internal/domain"
)

func newMilestoneCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "milestone",
		Short: "Manage milestones",
	}

	var due string
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := &domain.Milestone{Name: args[0]}
			if due != "" {
				d, err := time.Parse("2006-01-02", due)
				if err != nil {
					return fmt.Errorf("due date %q is not YYYY-MM-DD", due)
				}
				m.Due = &d
			}
			if err := app.Milestones.Create(context.Background(), m); err != nil {
				return err
			}
			fmt.Printf("Created milestone %q\n", m.Name)
			return nil
		},
	}
	add.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List milestones",
		RunE: func(cmd *cobra.Command, args []string) error {
			milestones, err := app.Milestones.List(context.Background())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(milestones))
			for _, m := range milestones {
				due := ""
				if m.Due != nil {
					due = m.Due.Format("2006-01-02")
				}
				completed := ""
				if m.Completed != nil {
					completed = m.Completed.Format("2006-01-02")
				}
				rows = append(rows, []string{m.Name, due, completed})
			}
			fmt.Print(renderTable([]string{"name", "due", "completed"}, rows))
			return nil
		},
	}

	rename := &cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a milestone and cascade to tickets and sprints",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Milestones.Rename(context.Background(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Renamed milestone %q to %q\n", args[0], args[1])
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Milestones.Delete(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted milestone %q\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(add, list, rename, remove)
	return cmd
}
