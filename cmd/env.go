package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/biogas-cli/internal/alerts"
	"github.com/sells-group/biogas-cli/internal/dashboard"
	"github.com/sells-group/biogas-cli/internal/ingest"
	"github.com/sells-group/biogas-cli/internal/kinetics"
	"github.com/sells-group/biogas-cli/internal/report"
	"github.com/sells-group/biogas-cli/internal/store"
)

// appEnv holds the services shared by the long-running commands.
type appEnv struct {
	Store   store.Store
	Service *dashboard.Service
	Ingest  *ingest.Handler
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initEnv validates the config for mode, opens and migrates the store and
// wires the dashboard service and the ingest handler. Callers should defer
// env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	svc, err := initService(st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	alerter := alerts.NewAlerter(cfg.Alerts, st)
	if cfg.Alerts.WebhookURL == "" {
		zap.L().Debug("BIOGAS_ALERTS_WEBHOOK_URL not set, alert webhook disabled")
	}

	return &appEnv{
		Store:   st,
		Service: svc,
		Ingest:  ingest.NewHandler(st, alerter),
	}, nil
}

func initService(st store.Store) (*dashboard.Service, error) {
	reg, err := kinetics.LoadRegistry(cfg.Model.MaterialsFile)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Telemetry.Location()
	if err != nil {
		return nil, err
	}
	return dashboard.New(st, reg, report.NewWriter(cfg.Report.OutputDir), dashboard.Options{
		SystemName:     cfg.Report.SystemName,
		TargetFraction: cfg.Model.TargetFraction,
		MaxDays:        cfg.Model.MaxDays,
		Location:       loc,
		CacheSize:      cfg.Dashboard.SimulationCacheSize,
	})
}
