package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/knowledge-indexer/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the job executor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := app.New(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.RunServer(ctx)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job executor without the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := app.New(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.RunWorker(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()
		return app.Migrate(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd)
}
