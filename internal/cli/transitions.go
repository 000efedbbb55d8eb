package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/petrijr/retrofit/pkg/api"
)

// changeFlags are shared by every command that records a history entry.
type changeFlags struct {
	actor string
	notes string
}

func (f *changeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.actor, "actor", defaultActor(), "who is making the change")
	cmd.Flags().StringVar(&f.notes, "notes", "", "note stored with the history entry")
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func newAdvanceCommand(app *App) *cobra.Command {
	var (
		change     changeFlags
		assignedTo string
	)
	cmd := &cobra.Command{
		Use:   "advance <participant-id> <status>",
		Short: "Move a participant to a specific status",
		Long: `Move a participant to any status valid for its program, or to ON_HOLD.
Moves that skip statuses are accepted and flagged unless strict adjacency
is enabled in the engine configuration.

Example:
  retrofit advance p-42 initial-audit-completed --notes "report uploaded"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := api.ParseParticipantStatus(args[1])
			if err != nil {
				return NewExitError(ExitUsageError, err)
			}
			p, err := app.Engine.Advance(cmd.Context(), api.TransitionRequest{
				ParticipantID: args[0],
				Target:        target,
				Actor:         change.actor,
				Notes:         change.notes,
				AssignedTo:    assignedTo,
			})
			if err != nil {
				return err
			}
			return app.printer(cmd).participant(p)
		},
	}
	change.register(cmd)
	cmd.Flags().StringVar(&assignedTo, "assign", "", "assignee recorded with the history entry")
	return cmd
}

func newNextCommand(app *App) *cobra.Command {
	var change changeFlags
	cmd := &cobra.Command{
		Use:   "next <participant-id>",
		Short: "Advance a participant to the next status of its program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.Engine.Next(cmd.Context(), args[0], change.actor, change.notes)
			if err != nil {
				return err
			}
			return app.printer(cmd).participant(p)
		},
	}
	change.register(cmd)
	return cmd
}

func newPreviousCommand(app *App) *cobra.Command {
	var change changeFlags
	cmd := &cobra.Command{
		Use:   "previous <participant-id>",
		Short: "Move a participant back to the previous status of its program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.Engine.Previous(cmd.Context(), args[0], change.actor, change.notes)
			if err != nil {
				return err
			}
			return app.printer(cmd).participant(p)
		},
	}
	change.register(cmd)
	return cmd
}

func newHoldCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "hold <participant-id>",
		Short: "Toggle a participant's hold flag",
		Long: `Flip the hold flag. The status and history are not changed; use
"advance <id> on-hold" to record an ON_HOLD status instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.Engine.ToggleHold(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.printer(cmd).participant(p)
		},
	}
}

func newResumeCommand(app *App) *cobra.Command {
	var change changeFlags
	cmd := &cobra.Command{
		Use:   "resume <participant-id>",
		Short: "Move an ON_HOLD participant back to the status it was held from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.Engine.Resume(cmd.Context(), args[0], change.actor, change.notes)
			if err != nil {
				return err
			}
			return app.printer(cmd).participant(p)
		},
	}
	change.register(cmd)
	return cmd
}
