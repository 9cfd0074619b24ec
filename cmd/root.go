package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/biogas-cli/internal/config"
)

var cfg *config.Config

// Persistent overrides, applied over config.yaml, .env and BIOGAS_* values.
var (
	rootConfigPath string
	rootLogLevel   string
	rootSQLitePath string
	rootTimezone   string
)

var rootCmd = &cobra.Command{
	Use:   "biogas",
	Short: "Biogas digester monitoring and production modelling",
	Long: `Models expected biogas production with Gompertz kinetics, ingests digester sensor
readings over MQTT and HTTP, reconciles them into daily production and renders stage reports.

A stage is one filling of the digester: material, amount, humidity and temperature.
The active stage drives the expected series that "serve" and "report" compare
against measured gas.

Typical flow:
  biogas migrate                     create the schema
  biogas stage start --material ...  open a filling stage, closing the active one
  biogas serve                       dashboard API plus MQTT ingest
  biogas report create               production report for the active stage

Settings come from config.yaml, .env and BIOGAS_* variables; the flags below win.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(rootConfigPath)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyRootOverrides(cmd, c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// applyRootOverrides copies explicitly set persistent flags into c.
func applyRootOverrides(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("log-level") {
		c.Log.Level = rootLogLevel
	}
	if f.Changed("db") {
		c.Store.Driver = "sqlite"
		c.Store.SQLitePath = rootSQLitePath
	}
	if f.Changed("tz") {
		c.Telemetry.Timezone = rootTimezone
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootConfigPath, "config", "", "config file (default ./config.yaml)")
	pf.StringVar(&rootLogLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&rootSQLitePath, "db", "", "SQLite file holding stages and readings (forces the sqlite driver)")
	pf.StringVar(&rootTimezone, "tz", "", "IANA zone for day boundaries of measured production")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
