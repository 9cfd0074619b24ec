package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/biogas-cli/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrStageClosed is returned when a reading targets an inactive stage.
	ErrStageClosed = eris.New("store: stage is closed")
)

// ReadingFilter selects readings of one stage inside an optional time window.
type ReadingFilter struct {
	StageID string
	From    time.Time // inclusive; zero means unbounded
	To      time.Time // inclusive; zero means unbounded
	Limit   int       // zero means no limit
}

// Counts summarizes the store for the dashboard.
type Counts struct {
	ActiveStages  int `json:"active_stages"`
	Reports       int `json:"reports"`
	ReadingsSince int `json:"readings_today"`
}

// Store defines the persistence interface for stages, readings, reports and alerts.
type Store interface {
	// Stages
	CreateStage(ctx context.Context, stage *model.Stage) error
	GetStage(ctx context.Context, id string) (*model.Stage, error)
	ActiveStage(ctx context.Context) (*model.Stage, error)
	ListStages(ctx context.Context, limit int) ([]model.Stage, error)
	CloseStage(ctx context.Context, id string) error
	NextStageNumber(ctx context.Context) (int, error)

	// Readings
	InsertReading(ctx context.Context, r *model.Reading) error
	BulkInsertReadings(ctx context.Context, readings []model.Reading) (int64, error)
	ListReadings(ctx context.Context, filter ReadingFilter) ([]model.Reading, error)
	CountReadingsByDay(ctx context.Context, from, to time.Time) ([]model.DayCount, error)

	// Reports
	CreateReport(ctx context.Context, r *model.Report) error
	UpdateReport(ctx context.Context, r *model.Report) error
	GetReport(ctx context.Context, id string) (*model.Report, error)
	ListReports(ctx context.Context, limit int) ([]model.Report, error)

	// Alerts
	CreateAlert(ctx context.Context, a *model.Alert) error
	ListAlerts(ctx context.Context, unresolvedOnly bool, limit int) ([]model.Alert, error)
	ResolveAlert(ctx context.Context, id string) error

	Counts(ctx context.Context, readingsSince time.Time) (*Counts, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

func newID() string { return uuid.New().String() }

func newStageDefaults(st *model.Stage, now time.Time) {
	if st.ID == "" {
		st.ID = newID()
	}
	st.Active = true
	// A preset CreatedAt backfills historic stages.
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.CreatedAt = st.CreatedAt.UTC()
	st.ClosedAt = nil
	if st.Date.IsZero() {
		st.Date = now
	}
	y, m, d := st.Date.Date()
	st.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
