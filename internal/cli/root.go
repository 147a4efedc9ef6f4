// Package cli implements the scrumline command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/avanderberg/scrumline/internal/config"
	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/repository"
	"github.com/avanderberg/scrumline/internal/service"
)

// App bundles the services the commands operate on.
type App struct {
	Config     *config.Config
	Database   *db.DB
	Store      *repository.Store
	Tickets    *service.TicketService
	Sprints    *service.SprintService
	Milestones *service.MilestoneService
	Teams      *service.TeamService
	Backlogs   *service.BacklogService
	Burndown   *service.BurndownService
}

// NewRootCmd creates the top-level "scrumline" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "scrumline",
		Short:         "Agile planning on top of a ticket tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newTicketCmd(app),
		newSprintCmd(app),
		newMilestoneCmd(app),
		newTeamCmd(app),
		newBacklogCmd(app),
		newImportCmd(app),
		newServeCmd(app),
	)

	return root
}
