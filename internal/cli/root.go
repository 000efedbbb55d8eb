package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petrijr/retrofit/internal/config"
)

type rootOptions struct {
	configPath string
	backend    string
	logLevel   string
}

// NewRootCommand builds the retrofit command tree around app. When
// app.Engine is already set the backend is not opened, which is how tests
// inject an in-memory engine.
func NewRootCommand(app *App) *cobra.Command {
	var opts rootOptions

	root := &cobra.Command{
		Use:   "retrofit",
		Short: "Track participants through an energy-retrofit program",
		Long: `retrofit manages programs and moves participants through their
status pipeline: booking, audits, technical review, contractor quotes,
work orders and the final audit.

Configuration is read from ./retrofit.yaml or the file given with --config,
and RETROFIT_* environment variables override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Output == "" {
				app.Output = OutputText
			}
			if app.Output != OutputText && app.Output != OutputJSON {
				return NewExitError(ExitUsageError, fmt.Errorf("unknown output format %q", app.Output))
			}
			if app.Engine != nil {
				return nil
			}

			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return NewExitError(ExitUsageError, err)
			}
			app.Config = cfg

			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return NewExitError(ExitUsageError, err)
			}
			app.Logger = logger

			return app.Open(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ./retrofit.yaml)")
	flags.StringVar(&opts.backend, "backend", "", "storage backend: memory, sqlite, postgres, redis or mongo")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVarP(&app.Output, "output", "o", OutputText, "output format: text or json")

	root.AddCommand(
		newProgramsCommand(app),
		newEnrollCommand(app),
		newShowCommand(app),
		newListCommand(app),
		newHistoryCommand(app),
		newTransitionsCommand(app),
		newAssignCommand(app),
		newPriorityCommand(app),
		newAdvanceCommand(app),
		newNextCommand(app),
		newPreviousCommand(app),
		newHoldCommand(app),
		newResumeCommand(app),
		newDispatchCommand(app),
	)
	return root
}

func loadConfig(cmd *cobra.Command, opts rootOptions) (*config.Config, error) {
	loader := config.NewLoader()
	if cmd.Flags().Changed("backend") {
		loader.Set("backend", opts.backend)
	}
	if cmd.Flags().Changed("log-level") {
		loader.Set("log.level", opts.logLevel)
	}
	if opts.configPath != "" {
		return loader.LoadFromFile(opts.configPath)
	}
	return loader.Load()
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	app := &App{}
	root := NewRootCommand(app)

	err := root.ExecuteContext(ctx)
	if cerr := app.Close(); cerr != nil && app.Logger != nil {
		app.Logger.Warn("closing backend", "error", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, flagStyle.Render("Error:"), err)
	}
	return ExitCode(err)
}

func (a *App) printer(cmd *cobra.Command) printer {
	return printer{w: cmd.OutOrStdout(), format: a.Output}
}
