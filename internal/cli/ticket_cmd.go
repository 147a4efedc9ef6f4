package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/avanderberg/scrumline/internal/domain"
)

func newTicketCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Manage tickets",
	}

	cmd.AddCommand(
		newTicketNewCmd(app),
		newTicketShowCmd(app),
		newTicketEditCmd(app),
		newTicketRemoveCmd(app),
		newTicketLinkCmd(app),
		newTicketUnlinkCmd(app),
	)

	return cmd
}

func newTicketNewCmd(app *App) *cobra.Command {
	var ticketType, summary string
	var fields []string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if summary == "" && interactiveTerminal() {
				if err := ticketForm(app, &ticketType, &summary); err != nil {
					return err
				}
			}
			if summary == "" {
				return fmt.Errorf("a summary is required")
			}
			if app.Config.SchemaFor(ticketType) == nil {
				return fmt.Errorf("unknown ticket type %q", ticketType)
			}
			t := app.Tickets.New(ticketType)
			t.Set(domain.FieldSummary, summary)
			for _, kv := range fields {
				name, value, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("field %q is not name=value", kv)
				}
				t.Set(name, value)
			}
			if err := app.Tickets.Create(context.Background(), t); err != nil {
				return err
			}
			fmt.Printf("Created %s #%d: %s\n", t.Type, t.ID, t.Get(domain.FieldSummary))
			return nil
		},
	}

	cmd.Flags().StringVar(&ticketType, "type", domain.TypeTask, "Ticket type")
	cmd.Flags().StringVar(&summary, "summary", "", "Ticket summary")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "Extra field as name=value (repeatable)")

	return cmd
}

// ticketForm collects the type and summary interactively.
func ticketForm(app *App, ticketType, summary *string) error {
	options := make([]huh.Option[string], 0)
	for _, name := range app.Config.TypeNames() {
		options = append(options, huh.NewOption(name, name))
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Ticket type").
				Options(options...).
				Value(ticketType),
			huh.NewInput().
				Title("Summary").
				Placeholder("What needs doing?").
				Value(summary).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("a summary is required")
					}
					return nil
				}),
		),
	).WithShowHelp(false).Run()
}

func newTicketShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show ticket details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			t, err := ticketByArg(ctx, app, args[0])
			if err != nil {
				return err
			}
			out, err := app.Tickets.Outgoing(ctx, t)
			if err != nil {
				return err
			}
			in, err := app.Tickets.Incoming(ctx, t)
			if err != nil {
				return err
			}

			var b strings.Builder
			b.WriteString(fmt.Sprintf("%s  %s\n\n",
				styleHeader.Render(fmt.Sprintf("#%d %s", t.ID, t.Get(domain.FieldSummary))),
				styleDim.Render(t.Type)))
			names := make([]string, 0, len(t.Schema().Fields))
			names = append(names, t.Schema().Fields...)
			sort.Strings(names)
			for _, f := range names {
				if f == domain.FieldSummary {
					continue
				}
				if v := t.Get(f); v != "" {
					b.WriteString(fmt.Sprintf("  %s  %s\n", styleDim.Render(pad(f, 16)), v))
				}
			}
			for _, c := range t.Schema().Calculated {
				b.WriteString(fmt.Sprintf("  %s  %s\n", styleDim.Render(pad(c.Name, 16)), t.Get(c.Name)))
			}
			if len(in) > 0 {
				b.WriteString(fmt.Sprintf("  %s  %s\n", styleDim.Render(pad("referenced by", 16)), ticketRefs(in)))
			}
			if len(out) > 0 {
				b.WriteString(fmt.Sprintf("  %s  %s\n", styleDim.Render(pad("refers to", 16)), ticketRefs(out)))
			}
			fmt.Print(b.String())
			return nil
		},
	}
}

func ticketRefs(tickets []*domain.Ticket) string {
	refs := make([]string, len(tickets))
	for i, t := range tickets {
		refs[i] = fmt.Sprintf("#%d (%s)", t.ID, t.Type)
	}
	return strings.Join(refs, ", ")
}

func newTicketEditCmd(app *App) *cobra.Command {
	var fields []string

	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change ticket fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			t, err := ticketByArg(ctx, app, args[0])
			if err != nil {
				return err
			}
			for _, kv := range fields {
				name, value, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("field %q is not name=value", kv)
				}
				t.Set(name, value)
			}
			if err := app.Tickets.Save(ctx, t); err != nil {
				return err
			}
			fmt.Printf("Saved #%d\n", t.ID)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&fields, "field", nil, "Field as name=value (repeatable)")
	_ = cmd.MarkFlagRequired("field")

	return cmd
}

func newTicketRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a ticket and its cascade-linked children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("ticket id %q is not numeric", args[0])
			}
			if err := app.Tickets.Delete(context.Background(), id); err != nil {
				return err
			}
			fmt.Printf("Deleted #%d\n", id)
			return nil
		},
	}
}

func newTicketLinkCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "link SRC DEST",
		Short: "Link one ticket to another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			src, err := ticketByArg(ctx, app, args[0])
			if err != nil {
				return err
			}
			dest, err := ticketByArg(ctx, app, args[1])
			if err != nil {
				return err
			}
			if err := app.Tickets.LinkTo(ctx, src, dest); err != nil {
				return err
			}
			fmt.Printf("Linked #%d -> #%d\n", src.ID, dest.ID)
			return nil
		},
	}
}

func newTicketUnlinkCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink SRC DEST",
		Short: "Remove a link between two tickets",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			src, err := ticketByArg(ctx, app, args[0])
			if err != nil {
				return err
			}
			dest, err := ticketByArg(ctx, app, args[1])
			if err != nil {
				return err
			}
			if err := app.Tickets.DelLinkTo(ctx, src, dest); err != nil {
				return err
			}
			fmt.Printf("Unlinked #%d -> #%d\n", src.ID, dest.ID)
			return nil
		},
	}
}

func ticketByArg(ctx context.Context, app *App, arg string) (*domain.Ticket, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ticket id %q is not numeric", arg)
	}
	return app.Tickets.Get(ctx, id)
}
