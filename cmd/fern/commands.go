package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/server"
	"github.com/Ramsey-B/fern/pkg/jobs"
)

type environment struct {
	envFile string
	cfg     *config.Config
	logger  ectologger.Logger
}

func newRootCommand() *cobra.Command {
	env := &environment{}

	root := &cobra.Command{
		Use:           "fern",
		Short:         "Fern runs integration jobs against third-party providers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var files []string
			if env.envFile != "" {
				files = append(files, env.envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err := server.NewLogger(cfg)
			if err != nil {
				return err
			}
			env.cfg = cfg
			env.logger = logger
			return nil
		},
	}
	root.PersistentFlags().StringVar(&env.envFile, "env-file", "", "path to a .env file (default .env)")

	root.AddCommand(
		newServeCommand(env),
		newMigrateCommand(env),
		newRunJobCommand(env),
	)
	return root
}

func newServeCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app := server.NewApp(env.cfg, env.logger)
			return server.New(env.cfg, app, env.logger).Run(ctx)
		},
	}
}

func newMigrateCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env.cfg.DatabaseMigrateOnStart = true

			app := server.NewApp(env.cfg, env.logger)
			if err := app.StartDatabase(ctx); err != nil {
				return err
			}
			defer app.DB.SqlxDB().Close()

			env.logger.WithContext(ctx).Info("Migrations applied")
			return nil
		},
	}
}

func newRunJobCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "run-job <job-id>",
		Short: "Run a pending job now as a platform caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app := server.NewApp(env.cfg, env.logger)
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer app.Stop(context.Background())

			outcome, err := app.Jobs.RunJobNow(ctx, jobs.SystemCaller(), jobID)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(outcome); err != nil {
				return err
			}
			if !outcome.OK {
				return fmt.Errorf("job failed: %s", outcome.Message)
			}
			return nil
		},
	}
}
