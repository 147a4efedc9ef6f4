package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/avanderberg/scrumline/internal/csvio"
	"github.com/avanderberg/scrumline/internal/domain"
)

func newBacklogCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backlog",
		Short: "Show and reorder backlogs",
	}

	cmd.AddCommand(
		newBacklogShowCmd(app),
		newBacklogReorderCmd(app),
		newBacklogAddCmd(app),
		newBacklogRemoveCmd(app),
	)

	return cmd
}

func newBacklogShowCmd(app *App) *cobra.Command {
	var scope string
	var asCSV bool

	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Print a backlog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := app.Backlogs.Open(context.Background(), args[0], scope)
			if err != nil {
				return err
			}
			if asCSV {
				return csvio.ExportBacklog(os.Stdout, app.Config, b)
			}
			rows := make([][]string, 0, len(b.Items()))
			for _, item := range b.Items() {
				summary := item.Ticket.Get(domain.FieldSummary)
				if item.Ticket.Get(domain.FieldStatus) == domain.StatusClosed {
					summary = styleClosed.Render(summary)
				}
				rows = append(rows, []string{
					strconv.Itoa(item.Pos),
					fmt.Sprintf("#%d", item.Ticket.ID),
					item.Ticket.Type,
					summary,
					item.Ticket.Get(domain.FieldRemainingTime),
				})
			}
			fmt.Print(renderTable([]string{"pos", "id", "type", "summary", "remaining"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", domain.GlobalScope, "Sprint or milestone name")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "Write CSV instead of a table")

	return cmd
}

func newBacklogReorderCmd(app *App) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "reorder NAME [ID...]",
		Short: "Reorder a backlog, interactively or from an id list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			name := args[0]
			if len(args) > 1 {
				ids := make([]int64, 0, len(args)-1)
				for _, arg := range args[1:] {
					id, err := strconv.ParseInt(arg, 10, 64)
					if err != nil {
						return fmt.Errorf("ticket id %q is not numeric", arg)
					}
					ids = append(ids, id)
				}
				return app.Backlogs.Reorder(ctx, name, scope, ids)
			}

			if !interactiveTerminal() {
				return fmt.Errorf("no ids given and no terminal for interactive reordering")
			}
			b, err := app.Backlogs.Open(ctx, name, scope)
			if err != nil {
				return err
			}
			model := newReorderModel(b.Items())
			out, err := tea.NewProgram(model).Run()
			if err != nil {
				return err
			}
			final := out.(reorderModel)
			if !final.confirmed {
				fmt.Println("Reorder cancelled")
				return nil
			}
			return app.Backlogs.Reorder(ctx, name, scope, final.order())
		},
	}

	cmd.Flags().StringVar(&scope, "scope", domain.GlobalScope, "Sprint or milestone name")

	return cmd
}

func newBacklogAddCmd(app *App) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "add NAME ID",
		Short: "Pull a ticket into a scoped backlog",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("ticket id %q is not numeric", args[1])
			}
			return app.Backlogs.AddTicket(context.Background(), args[0], scope, id)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Sprint or milestone name")
	_ = cmd.MarkFlagRequired("scope")

	return cmd
}

func newBacklogRemoveCmd(app *App) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "rm NAME ID",
		Short: "Drop a ticket from a backlog",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("ticket id %q is not numeric", args[1])
			}
			return app.Backlogs.RemoveTicket(context.Background(), args[0], scope, id)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", domain.GlobalScope, "Sprint or milestone name")

	return cmd
}
