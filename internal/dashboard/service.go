// Package dashboard implements the operations behind the HTTP API and the CLI:
// stage lifecycle, live production, reports, simulations and alerts.
package dashboard

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/biogas-cli/internal/kinetics"
	"github.com/sells-group/biogas-cli/internal/model"
	"github.com/sells-group/biogas-cli/internal/production"
	"github.com/sells-group/biogas-cli/internal/report"
	"github.com/sells-group/biogas-cli/internal/store"
	"github.com/sells-group/biogas-cli/internal/telemetry"
)

var (
	// ErrNoActiveStage is returned when an operation needs an active stage and none exists.
	ErrNoActiveStage = eris.New("dashboard: no active stage")
	// ErrInvalidReportType is returned for report types other than normal and final.
	ErrInvalidReportType = eris.New("dashboard: invalid report type")
	// ErrFileUnavailable is returned when a report file was never written.
	ErrFileUnavailable = eris.New("dashboard: report file unavailable")
)

// DefaultPeople is recorded on stages created without a crew.
const DefaultPeople = "unspecified"

// Options configures a Service.
type Options struct {
	SystemName string
	// TargetFraction and MaxDays fill requests that leave them unset. Zero
	// values fall back to the kinetics defaults.
	TargetFraction float64
	MaxDays        int
	// Location decides calendar days for reconciliation and "today".
	Location  *time.Location
	CacheSize int
}

// Service wires the store, the kinetic model, the reconciler and the report writer.
type Service struct {
	store    store.Store
	registry kinetics.Registry
	writer   *report.Writer
	opts     Options
	cache    *lru.Cache[string, kinetics.Result]
	now      func() time.Time
}

// New creates a Service.
func New(st store.Store, reg kinetics.Registry, w *report.Writer, opts Options) (*Service, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	cache, err := lru.New[string, kinetics.Result](opts.CacheSize)
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: create simulation cache")
	}
	return &Service{
		store:    st,
		registry: reg,
		writer:   w,
		opts:     opts,
		cache:    cache,
		now:      time.Now,
	}, nil
}

// Simulate runs the kinetic time series for req. Results are cached by
// request; callers get their own copy of the slices.
func (s *Service) Simulate(req kinetics.Request) (kinetics.Result, error) {
	if req.TargetFraction == nil && s.opts.TargetFraction > 0 {
		tf := s.opts.TargetFraction
		req.TargetFraction = &tf
	}
	if req.MaxDays == nil && s.opts.MaxDays > 0 {
		n := s.opts.MaxDays
		req.MaxDays = &n
	}

	key, err := json.Marshal(req)
	if err != nil {
		return kinetics.Result{}, eris.Wrap(err, "dashboard: simulation cache key")
	}
	if res, ok := s.cache.Get(string(key)); ok {
		return cloneResult(res), nil
	}

	res, err := kinetics.Generate(req, s.registry.Resolve(req.MaterialClass))
	if err != nil {
		return kinetics.Result{}, err
	}
	s.cache.Add(string(key), res)
	return cloneResult(res), nil
}

func cloneResult(r kinetics.Result) kinetics.Result {
	r.Days = slices.Clone(r.Days)
	r.DailyM3 = slices.Clone(r.DailyM3)
	r.CumulativeM3 = slices.Clone(r.CumulativeM3)
	return r
}

// Calculate runs the steady-state calculator.
func (s *Service) Calculate(req kinetics.CalcRequest) (*kinetics.CalcResult, error) {
	return kinetics.Estimate(req, s.registry.Resolve(req.MaterialClass))
}

// Production is the live view of a stage.
type Production struct {
	Stage      *model.Stage          `json:"stage"`
	Expected   kinetics.Result       `json:"expected"`
	Comparison production.Comparison `json:"comparison"`
	Telemetry  telemetry.Stats       `json:"telemetry"`
}

// CurrentProduction compares the active stage's expected series with its
// readings from creation until now.
func (s *Service) CurrentProduction(ctx context.Context) (*Production, error) {
	stage, err := s.activeStage(ctx)
	if err != nil {
		return nil, err
	}
	return s.stageProduction(ctx, stage, s.now())
}

// StageProduction is CurrentProduction for any stage. Closed stages end at
// their close time.
func (s *Service) StageProduction(ctx context.Context, stageID string) (*Production, error) {
	stage, err := s.store.GetStage(ctx, stageID)
	if err != nil {
		return nil, eris.Wrapf(err, "dashboard: get stage %s", stageID)
	}
	return s.stageProduction(ctx, stage, s.stageEnd(stage))
}

func (s *Service) stageEnd(stage *model.Stage) time.Time {
	if !stage.Active && stage.ClosedAt != nil {
		return *stage.ClosedAt
	}
	return s.now()
}

func (s *Service) stageProduction(ctx context.Context, stage *model.Stage, end time.Time) (*Production, error) {
	expected, err := s.Simulate(kinetics.Request{
		MaterialClass: stage.MaterialType,
		VSKgPerDay:    stage.AmountKg,
		TemperatureC:  stage.TemperatureC,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "dashboard: simulate stage %d", stage.Number)
	}

	readings, err := s.store.ListReadings(ctx, store.ReadingFilter{
		StageID: stage.ID,
		From:    stage.CreatedAt,
		To:      end,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "dashboard: list readings of stage %d", stage.Number)
	}

	samples := make([]telemetry.Sample, len(readings))
	for i, r := range readings {
		samples[i] = telemetry.Sample{Timestamp: r.Timestamp, Payload: r.RawPayload, GasFlow: r.GasFlow}
	}
	telemetry.SortSamples(samples)

	rec, err := telemetry.NewReconciler(s.opts.Location).Reconcile(samples)
	if err != nil {
		return nil, eris.Wrapf(err, "dashboard: reconcile stage %d", stage.Number)
	}
	if rec.Stats.Malformed > 0 || rec.Stats.Resets > 0 {
		zap.L().Debug("dashboard: telemetry anomalies",
			zap.String("stage_id", stage.ID),
			zap.Int("malformed", rec.Stats.Malformed),
			zap.Int("resets", rec.Stats.Resets),
		)
	}

	loc := s.opts.Location
	return &Production{
		Stage:      stage,
		Expected:   expected,
		Comparison: production.Compare(expected, rec.Daily, stage.CreatedAt.In(loc), end.In(loc)),
		Telemetry:  rec.Stats,
	}, nil
}

func (s *Service) activeStage(ctx context.Context) (*model.Stage, error) {
	stage, err := s.store.ActiveStage(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: load active stage")
	}
	if stage == nil {
		return nil, ErrNoActiveStage
	}
	return stage, nil
}

// Stats is the dashboard header.
type Stats struct {
	store.Counts
	ReadingsByDay []model.DayCount `json:"readings_by_day"`
}

// Stats counts active stages, reports and today's readings, plus readings per
// day over the last week.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	now := s.now().In(s.opts.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.opts.Location)

	counts, err := s.store.Counts(ctx, today)
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: counts")
	}
	byDay, err := s.store.CountReadingsByDay(ctx, today.AddDate(0, 0, -6), today.AddDate(0, 0, 1))
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: readings by day")
	}
	return &Stats{Counts: *counts, ReadingsByDay: byDay}, nil
}
