package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/avanderberg/scrumline/internal/api"
	"github.com/avanderberg/scrumline/internal/service"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			obs := service.NewLogUseCaseObserver(os.Stderr)
			server := api.NewServer(app.Database, app.Config, obs)
			fmt.Printf("Listening on %s\n", addr)
			return server.Router().Run(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")

	return cmd
}
