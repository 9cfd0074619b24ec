package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/biogas-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS stages`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetStage_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM stages WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetStage(context.Background(), "nonexistent")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetStage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "number", "date", "people", "material_type", "material_amount_kg",
		"material_humidity_pct", "added_water_m3", "temperature_c", "active", "created_at", "closed_at",
	}).AddRow("st-1", 4, date, "crew", "porcino", 120.0, 75.0, 1.5, 37.0, true, created, (*time.Time)(nil))

	mock.ExpectQuery(`SELECT .* FROM stages WHERE id = \$1`).WithArgs("st-1").WillReturnRows(rows)

	st, err := s.GetStage(context.Background(), "st-1")
	require.NoError(t, err)
	assert.Equal(t, 4, st.Number)
	assert.Equal(t, "porcino", st.MaterialType)
	assert.Equal(t, 120.0, st.AmountKg)
	assert.True(t, st.Active)
	assert.Nil(t, st.ClosedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ActiveStage_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM stages WHERE active ORDER BY created_at DESC LIMIT 1`).
		WillReturnError(pgx.ErrNoRows)

	st, err := s.ActiveStage(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateStage_ClosesPrevious(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE stages SET active = false`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO stages`).
		WithArgs(pgxmock.AnyArg(), 2, pgxmock.AnyArg(), "crew", "bovino", 10.0, 80.0, 0.0, 35.0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	st := &model.Stage{Number: 2, People: "crew", MaterialType: "bovino", AmountKg: 10, HumidityPct: 80, TemperatureC: 35}
	require.NoError(t, s.CreateStage(context.Background(), st))
	assert.NotEmpty(t, st.ID)
	assert.True(t, st.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateStage_PresetCreatedAt(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE stages SET active = false`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`INSERT INTO stages`).
		WithArgs(pgxmock.AnyArg(), 1, pgxmock.AnyArg(), "crew", "bovino", 10.0, 80.0, 0.0, 35.0, created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	st := &model.Stage{Number: 1, People: "crew", MaterialType: "bovino", AmountKg: 10, HumidityPct: 80, TemperatureC: 35, CreatedAt: created}
	require.NoError(t, s.CreateStage(context.Background(), st))
	assert.Equal(t, created, st.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseStage_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE stages SET active = false, closed_at = COALESCE`).
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CloseStage(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_NextStageNumber(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(number\), 0\) \+ 1 FROM stages`).
		WillReturnRows(pgxmock.NewRows([]string{"n"}).AddRow(7))

	n, err := s.NextStageNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertReading(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	ts := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT active FROM stages WHERE id = \$1 FOR SHARE`).
		WithArgs("st-1").
		WillReturnRows(pgxmock.NewRows([]string{"active"}).AddRow(true))
	mock.ExpectQuery(`INSERT INTO sensor_readings`).
		WithArgs("st-1", ts, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectCommit()

	r := &model.Reading{StageID: "st-1", Timestamp: ts, GasFlow: fp(0.3), RawPayload: map[string]any{"gas_flow": 0.3}}
	require.NoError(t, s.InsertReading(context.Background(), r))
	assert.Equal(t, int64(42), r.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertReading_ClosedStage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT active FROM stages`).
		WithArgs("st-1").
		WillReturnRows(pgxmock.NewRows([]string{"active"}).AddRow(false))
	mock.ExpectRollback()

	err := s.InsertReading(context.Background(), &model.Reading{StageID: "st-1"})
	require.ErrorIs(t, err, ErrStageClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertReading_BeginError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(fmt.Errorf("connection refused"))

	err := s.InsertReading(context.Background(), &model.Reading{StageID: "st-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BulkInsertReadings(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	ts := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT active FROM stages`).
		WithArgs("st-1").
		WillReturnRows(pgxmock.NewRows([]string{"active"}).AddRow(true))
	mock.ExpectCopyFrom(pgx.Identifier{"sensor_readings"}, readingColumns).WillReturnResult(2)
	mock.ExpectCommit()

	n, err := s.BulkInsertReadings(context.Background(), []model.Reading{
		{StageID: "st-1", Timestamp: ts, GasFlow: fp(0.1)},
		{StageID: "st-1", Timestamp: ts.Add(time.Minute), GasFlow: fp(0.2)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveAlert_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE alerts SET resolved = true WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.ErrorIs(t, s.ResolveAlert(context.Background(), "missing"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateAlert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO alerts`).
		WithArgs(pgxmock.AnyArg(), "WARN", "pressure out of range", pgxmock.AnyArg(), false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a := &model.Alert{Level: model.AlertWarn, Message: "pressure out of range", Details: map[string]any{"presion": 980.0}}
	require.NoError(t, s.CreateAlert(context.Background(), a))
	assert.NotEmpty(t, a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Counts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	since := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"a", "r", "t"}).AddRow(1, 5, 120))

	c, err := s.Counts(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, &Counts{ActiveStages: 1, Reports: 5, ReadingsSince: 120}, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetReport_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM reports WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetReport(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
