package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/biogas-cli/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Subscribe to the sensor topic and store readings (no HTTP API)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		return ingest.NewSubscriber(cfg.MQTT, env.Ingest).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
