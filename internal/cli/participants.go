package cli

import (
	"github.com/spf13/cobra"

	"github.com/petrijr/retrofit/pkg/api"
)

func newEnrollCommand(app *App) *cobra.Command {
	var (
		np       api.NewParticipant
		priority string
	)
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Enrol a participant in a program",
		Long: `Enrol a participant. New participants start in READY_FOR_BOOKING
whatever steps the program enables.

Example:
  retrofit enroll --program RES --first Ada --last Lovelace --email ada@example.org`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if priority != "" {
				p, err := api.ParsePriority(priority)
				if err != nil {
					return NewExitError(ExitUsageError, err)
				}
				np.Priority = p
			}
			p, err := app.Engine.CreateParticipant(cmd.Context(), np)
			if err != nil {
				return err
			}
			return app.printer(cmd).participant(p)
		},
	}

	f := cmd.Flags()
	f.StringVar(&np.ID, "id", "", "participant ID (generated when empty)")
	f.StringVar(&np.ProgramID, "program", "", "program ID")
	f.StringVar(&np.FirstName, "first", "", "first name")
	f.StringVar(&np.LastName, "last", "", "last name")
	f.StringVar(&np.Email, "email", "", "email address")
	f.StringVar(&np.Phone, "phone", "", "phone number")
	f.StringVar(&np.Address, "address", "", "street address")
	f.StringVar(&np.City, "city", "", "city")
	f.StringVar(&np.PostalCode, "postal-code", "", "postal code")
	f.StringVar(&np.PropertyType, "property-type", "", "property type, e.g. detached")
	f.StringVar(&np.AssignedAdvisor, "advisor", "", "assigned energy advisor")
	f.StringVar(&priority, "priority", "", "priority: high, medium or low")
	_ = cmd.MarkFlagRequired("program")
	return cmd
}

func newShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <participant-id>",
		Short: "Show a participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.Engine.GetParticipant(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.printer(cmd).participant(p)
		},
	}
}

func newListCommand(app *App) *cobra.Command {
	var (
		program string
		status  string
		held    bool
		notHeld bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List participants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := api.ParticipantListOptions{ProgramID: program}
			if status != "" {
				s, err := api.ParseParticipantStatus(status)
				if err != nil {
					return NewExitError(ExitUsageError, err)
				}
				opts.Status = s
			}
			switch {
			case held:
				opts.OnHold = &held
			case notHeld:
				onHold := false
				opts.OnHold = &onHold
			}

			parts, err := app.Engine.ListParticipants(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return app.printer(cmd).participants(parts)
		},
	}
	cmd.Flags().StringVar(&program, "program", "", "only participants of this program")
	cmd.Flags().StringVar(&status, "status", "", "only participants in this status")
	cmd.Flags().BoolVar(&held, "held", false, "only participants on hold")
	cmd.Flags().BoolVar(&notHeld, "not-held", false, "only participants not on hold")
	cmd.MarkFlagsMutuallyExclusive("held", "not-held")
	return cmd
}

func newHistoryCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "history <participant-id>",
		Short: "Show a participant's status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := app.Engine.GetHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.printer(cmd).history(entries)
		},
	}
}

func newTransitionsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "transitions <participant-id>",
		Short: "Show where a participant is in its program and where it can move",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := app.Engine.Transitions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.printer(cmd).transitions(t)
		},
	}
}

func newAssignCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <participant-id> [advisor-id]",
		Short: "Assign an energy advisor to a participant",
		Long: `Record the energy advisor responsible for a participant and queue an
assignment notification. Without an advisor the assignment is cleared and
nobody is notified. The status and history are not changed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var advisor string
			if len(args) == 2 {
				advisor = args[1]
			}
			p, err := app.Engine.AssignAdvisor(cmd.Context(), args[0], advisor)
			if err != nil {
				return err
			}
			return app.printer(cmd).participant(p)
		},
	}
}

func newPriorityCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "priority <participant-id> <high|medium|low>",
		Short: "Change a participant's priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			priority, err := api.ParsePriority(args[1])
			if err != nil {
				return NewExitError(ExitUsageError, err)
			}
			p, err := app.Engine.SetPriority(cmd.Context(), args[0], priority)
			if err != nil {
				return err
			}
			return app.printer(cmd).participant(p)
		},
	}
}
