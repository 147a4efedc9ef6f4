package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/avanderberg/scrumline/internal/domain"
)

func newTeamCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Manage teams and members",
	}

	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Teams.Create(context.Background(), &domain.Team{Name: args[0]}); err != nil {
				return err
			}
			fmt.Printf("Created team %q\n", args[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List teams and their members",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			teams, err := app.Teams.List(ctx)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(teams))
			for _, team := range teams {
				members, err := app.Teams.Members(ctx, team.Name)
				if err != nil {
					return err
				}
				names := make([]string, len(members))
				for i, m := range members {
					names[i] = m.Name
				}
				rows = append(rows, []string{team.Name, strings.Join(names, ", ")})
			}
			fmt.Print(renderTable([]string{"team", "members"}, rows))
			return nil
		},
	}

	var capacity string
	member := &cobra.Command{
		Use:   "member TEAM NAME",
		Short: "Add a member to a team",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := &domain.TeamMember{Name: args[1], Team: args[0]}
			if capacity != "" {
				parts := strings.Split(capacity, ",")
				if len(parts) != 7 {
					return fmt.Errorf("capacity needs seven comma-separated hours, Monday first")
				}
				for i, p := range parts {
					h, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
					if err != nil {
						return fmt.Errorf("capacity %q is not a number", p)
					}
					m.Capacity[i] = h
				}
			}
			if err := app.Teams.AddMember(context.Background(), m); err != nil {
				return err
			}
			fmt.Printf("Added %q to team %q (%.1fh/week)\n", m.Name, m.Team, m.WeeklyCapacity())
			return nil
		},
	}
	member.Flags().StringVar(&capacity, "capacity", "", "Hours per weekday, Monday first (e.g. 6,6,6,6,4,0,0)")

	capacityCmd := &cobra.Command{
		Use:   "capacity SPRINT",
		Short: "Show the planning capacity of a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hours, err := app.Teams.SprintCapacity(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Sprint %q capacity: %.1fh\n", args[0], hours)
			return nil
		},
	}

	cmd.AddCommand(add, list, member, capacityCmd)
	return cmd
}
