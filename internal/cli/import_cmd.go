package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/avanderberg/scrumline/internal/csvio"
)

func newImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Apply CSV files to the ticket store",
	}

	var author string
	create := &cobra.Command{
		Use:   "tickets FILE",
		Short: "Create one ticket per CSV row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			header, rows, err := readCSVFile(args[0])
			if err != nil {
				return err
			}
			p := csvio.NewImportPerformer(app.Config, app.Tickets, author)
			res, err := p.Commit(context.Background(), header, rows)
			if err != nil {
				return err
			}
			reportResult(res, "created")
			return nil
		},
	}
	create.Flags().StringVar(&author, "author", "importer", "Reporter recorded on created tickets")

	update := &cobra.Command{
		Use:   "update FILE",
		Short: "Update existing tickets from CSV rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			header, rows, err := readCSVFile(args[0])
			if err != nil {
				return err
			}
			res, err := csvio.NewUpdatePerformer(app.Tickets).Commit(context.Background(), header, rows)
			if err != nil {
				return err
			}
			reportResult(res, "updated")
			return nil
		},
	}

	var force bool
	del := &cobra.Command{
		Use:   "delete FILE",
		Short: "Delete the tickets listed in a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			header, rows, err := readCSVFile(args[0])
			if err != nil {
				return err
			}
			res, err := csvio.NewDeletePerformer(app.Tickets, force).Commit(context.Background(), header, rows)
			if err != nil {
				return err
			}
			reportResult(res, "deleted")
			return nil
		},
	}
	del.Flags().BoolVar(&force, "force", false, "Skip the summary match check")

	cmd.AddCommand(create, update, del)
	return cmd
}

func readCSVFile(path string) ([]string, []csvio.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return csvio.ReadRows(f)
}

func reportResult(res *csvio.Result, verb string) {
	fmt.Printf("%d tickets %s (batch %s)\n", len(res.TicketIDs), verb, res.BatchID)
	for _, w := range res.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
}
