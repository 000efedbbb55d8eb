package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petrijr/retrofit/internal/config"
)

func newProgramsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "programs",
		Aliases: []string{"program"},
		Short:   "Manage program configurations",
	}
	cmd.AddCommand(
		newProgramsListCommand(app),
		newProgramsSeedCommand(app),
		newSequenceCommand(app),
		newSetActiveCommand(app, "activate", "Mark a program as active", true),
		newSetActiveCommand(app, "deactivate", "Mark a program as inactive", false),
	)
	return cmd
}

func newProgramsListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered programs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			progs, err := app.Engine.ListPrograms(cmd.Context())
			if err != nil {
				return err
			}
			return app.printer(cmd).programs(progs)
		},
	}
}

func newProgramsSeedCommand(app *App) *cobra.Command {
	var (
		file   string
		update bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register programs from a catalog file",
		Long: `Register every program in a YAML catalog. Programs that already exist
are skipped unless --update is given, in which case their step
configuration is replaced.

Without --file the configured programs_file, or the built-in catalog, is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" && app.Config != nil {
				path = app.Config.ProgramsFile
			}
			progs, err := config.LoadPrograms(path)
			if err != nil {
				return NewExitError(ExitUsageError, err)
			}
			created, updated, err := seedPrograms(cmd.Context(), app.Engine, progs, update)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "programs: %d registered, %d updated, %d unchanged\n",
				created, updated, len(progs)-created-updated)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "program catalog YAML file")
	cmd.Flags().BoolVar(&update, "update", false, "replace existing programs")
	return cmd
}

func newSequenceCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sequence <program-id>",
		Short: "Show the status pipeline derived from a program's steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := app.Engine.DeriveSequence(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.printer(cmd).sequence(seq)
		},
	}
}

func newSetActiveCommand(app *App, use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <program-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Engine.SetProgramActive(cmd.Context(), args[0], active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "program %s %sd\n", args[0], use)
			return nil
		},
	}
}
