package dashboard

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/biogas-cli/internal/model"
)

// CreateStage opens a new stage and closes any active one. Number defaults to
// the next free number, People to DefaultPeople and Date to today.
func (s *Service) CreateStage(ctx context.Context, stage *model.Stage) error {
	if stage.Number <= 0 {
		n, err := s.store.NextStageNumber(ctx)
		if err != nil {
			return eris.Wrap(err, "dashboard: next stage number")
		}
		stage.Number = n
	}
	if stage.People == "" {
		stage.People = DefaultPeople
	}
	if stage.Date.IsZero() {
		now := s.now().In(s.opts.Location)
		stage.Date = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	if err := s.store.CreateStage(ctx, stage); err != nil {
		return eris.Wrap(err, "dashboard: create stage")
	}
	zap.L().Info("dashboard: stage created",
		zap.String("id", stage.ID),
		zap.Int("number", stage.Number),
		zap.String("material", stage.MaterialType),
	)
	return nil
}

// CloseCurrentStage closes the active stage and returns it.
func (s *Service) CloseCurrentStage(ctx context.Context) (*model.Stage, error) {
	stage, err := s.activeStage(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.CloseStage(ctx, stage.ID); err != nil {
		return nil, eris.Wrapf(err, "dashboard: close stage %s", stage.ID)
	}
	zap.L().Info("dashboard: stage closed", zap.String("id", stage.ID), zap.Int("number", stage.Number))
	return s.store.GetStage(ctx, stage.ID)
}

// ListStages returns stages newest first.
func (s *Service) ListStages(ctx context.Context, limit int) ([]model.Stage, error) {
	return s.store.ListStages(ctx, limit)
}

// ListAlerts returns alerts newest first.
func (s *Service) ListAlerts(ctx context.Context, unresolvedOnly bool, limit int) ([]model.Alert, error) {
	return s.store.ListAlerts(ctx, unresolvedOnly, limit)
}

// ResolveAlert marks an alert resolved.
func (s *Service) ResolveAlert(ctx context.Context, id string) error {
	return s.store.ResolveAlert(ctx, id)
}
