package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/biogas-cli/internal/ingest"
	"github.com/sells-group/biogas-cli/internal/server"
)

var (
	servePort   int
	serveNoMQTT bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the MQTT sensor subscriber",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if serveNoMQTT {
			cfg.MQTT.Enabled = false
		}

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := server.New(env.Service, env.Ingest, server.Options{
			Port:            port,
			CORSOrigins:     cfg.Server.CORSOrigins,
			ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSecs) * time.Second,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(gctx) })

		if cfg.MQTT.Enabled {
			sub := ingest.NewSubscriber(cfg.MQTT, env.Ingest)
			g.Go(func() error {
				// The API keeps serving when the broker is unreachable.
				if err := sub.Run(gctx); err != nil {
					zap.L().Error("mqtt subscriber stopped", zap.Error(err))
				}
				return nil
			})
		} else {
			zap.L().Info("mqtt subscriber disabled")
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoMQTT, "no-mqtt", false, "do not start the MQTT subscriber")
	rootCmd.AddCommand(serveCmd)
}
