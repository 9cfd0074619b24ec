package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/biogas-cli/internal/db"
	"github.com/sells-group/biogas-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const readingsTable = "sensor_readings"

var readingColumns = []string{"stage_id", "ts", "pressure_hpa", "biol_flow", "gas_flow", "raw_payload"}

// preparedStatements lists the ingest hot path, prepared on each new connection.
var preparedStatements = map[string]string{
	"stage_open":     `SELECT active FROM stages WHERE id = $1 FOR SHARE`,
	"insert_reading": `INSERT INTO sensor_readings (stage_id, ts, pressure_hpa, biol_flow, gas_flow, raw_payload) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
	"active_stage":   `SELECT ` + stageColumns + ` FROM stages WHERE active ORDER BY created_at DESC LIMIT 1`,
	"insert_alert":   `INSERT INTO alerts (id, level, message, details, resolved, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS stages (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	number                INTEGER NOT NULL,
	date                  DATE NOT NULL DEFAULT CURRENT_DATE,
	people                TEXT NOT NULL DEFAULT '',
	material_type         TEXT NOT NULL,
	material_amount_kg    DOUBLE PRECISION NOT NULL DEFAULT 0,
	material_humidity_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	added_water_m3        DOUBLE PRECISION NOT NULL DEFAULT 0,
	temperature_c         DOUBLE PRECISION NOT NULL DEFAULT 35,
	active                BOOLEAN NOT NULL DEFAULT true,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	closed_at             TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS sensor_readings (
	id           BIGSERIAL PRIMARY KEY,
	stage_id     TEXT NOT NULL REFERENCES stages(id) ON DELETE CASCADE,
	ts           TIMESTAMPTZ NOT NULL DEFAULT now(),
	pressure_hpa DOUBLE PRECISION,
	biol_flow    DOUBLE PRECISION,
	gas_flow     DOUBLE PRECISION,
	raw_payload  JSONB
);

CREATE TABLE IF NOT EXISTS reports (
	id                   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	stage_id             TEXT NOT NULL REFERENCES stages(id) ON DELETE CASCADE,
	report_type          TEXT NOT NULL,
	observations         TEXT NOT NULL DEFAULT '',
	inferences           TEXT NOT NULL DEFAULT '',
	production_estimated DOUBLE PRECISION NOT NULL DEFAULT 0,
	production_real      DOUBLE PRECISION NOT NULL DEFAULT 0,
	file_excel           TEXT NOT NULL DEFAULT '',
	file_csv             TEXT NOT NULL DEFAULT '',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	details    JSONB,
	resolved   BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_stages_active ON stages(active) WHERE active;
CREATE INDEX IF NOT EXISTS idx_readings_ts ON sensor_readings(ts);
CREATE INDEX IF NOT EXISTS idx_readings_stage_ts ON sensor_readings(stage_id, ts);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_unresolved ON alerts(created_at DESC) WHERE NOT resolved;
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Stages ---

// CreateStage inserts st as the active stage and closes any stage that was active.
func (s *PostgresStore) CreateStage(ctx context.Context, st *model.Stage) error {
	now := time.Now().UTC()
	newStageDefaults(st, now)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`UPDATE stages SET active = false, closed_at = $1 WHERE active`, now,
	); err != nil {
		return eris.Wrap(err, "postgres: close previous stages")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO stages (`+stageColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, $10, NULL)`,
		st.ID, st.Number, st.Date, st.People, st.MaterialType, st.AmountKg,
		st.HumidityPct, st.AddedWaterM3, st.TemperatureC, st.CreatedAt,
	); err != nil {
		return eris.Wrap(err, "postgres: insert stage")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit create stage")
}

func (s *PostgresStore) GetStage(ctx context.Context, id string) (*model.Stage, error) {
	st, err := scanPgStage(s.pool.QueryRow(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "stage %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get stage %s", id)
	}
	return st, nil
}

// ActiveStage returns the most recently created active stage, or nil when none is active.
func (s *PostgresStore) ActiveStage(ctx context.Context) (*model.Stage, error) {
	st, err := scanPgStage(s.pool.QueryRow(ctx, preparedStatements["active_stage"]))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: active stage")
	}
	return st, nil
}

func (s *PostgresStore) ListStages(ctx context.Context, limit int) ([]model.Stage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stageColumns+` FROM stages ORDER BY created_at DESC, number DESC LIMIT $1`,
		listLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stages")
	}
	defer rows.Close()

	var stages []model.Stage
	for rows.Next() {
		st, err := scanPgStage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage")
		}
		stages = append(stages, *st)
	}
	return stages, eris.Wrap(rows.Err(), "postgres: list stages iterate")
}

func (s *PostgresStore) CloseStage(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stages SET active = false, closed_at = COALESCE(closed_at, $1) WHERE id = $2`,
		time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: close stage %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "stage %s", id)
	}
	return nil
}

func (s *PostgresStore) NextStageNumber(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(number), 0) + 1 FROM stages`).Scan(&n)
	return n, eris.Wrap(err, "postgres: next stage number")
}

// --- Readings ---

// InsertReading stores r for its stage. Readings for a closed stage are rejected.
func (s *PostgresStore) InsertReading(ctx context.Context, r *model.Reading) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	raw, err := marshalDetails(r.RawPayload)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := pgStageOpen(ctx, tx, r.StageID); err != nil {
		return err
	}
	var id int64
	if err := tx.QueryRow(ctx, preparedStatements["insert_reading"],
		r.StageID, r.Timestamp, r.PressureHPa, r.BiolFlow, r.GasFlow, raw,
	).Scan(&id); err != nil {
		return eris.Wrapf(err, "postgres: insert reading for stage %s", r.StageID)
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit reading")
	}
	r.ID = id
	return nil
}

// BulkInsertReadings copies readings into the table with the COPY protocol after
// checking that every referenced stage is open. IDs are not populated.
func (s *PostgresStore) BulkInsertReadings(ctx context.Context, readings []model.Reading) (int64, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(readings))
	stages := make(map[string]bool)
	for i := range readings {
		r := &readings[i]
		if r.Timestamp.IsZero() {
			r.Timestamp = time.Now().UTC()
		}
		raw, err := marshalDetails(r.RawPayload)
		if err != nil {
			return 0, err
		}
		stages[r.StageID] = true
		rows = append(rows, []any{r.StageID, r.Timestamp, r.PressureHPa, r.BiolFlow, r.GasFlow, raw})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for id := range stages {
		if err := pgStageOpen(ctx, tx, id); err != nil {
			return 0, err
		}
	}
	n, err := db.CopyFrom(ctx, tx, readingsTable, readingColumns, rows)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit bulk readings")
	}
	return n, nil
}

func (s *PostgresStore) ListReadings(ctx context.Context, f ReadingFilter) ([]model.Reading, error) {
	query := `SELECT id, stage_id, ts, pressure_hpa, biol_flow, gas_flow, raw_payload
		FROM sensor_readings WHERE stage_id = $1`
	args := []any{f.StageID}
	argIdx := 2

	if !f.From.IsZero() {
		query += fmt.Sprintf(` AND ts >= $%d`, argIdx)
		args = append(args, f.From)
		argIdx++
	}
	if !f.To.IsZero() {
		query += fmt.Sprintf(` AND ts <= $%d`, argIdx)
		args = append(args, f.To)
		argIdx++
	}
	query += ` ORDER BY ts, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list readings")
	}
	defer rows.Close()

	var out []model.Reading
	for rows.Next() {
		var r model.Reading
		var raw []byte
		if err := rows.Scan(&r.ID, &r.StageID, &r.Timestamp, &r.PressureHPa, &r.BiolFlow, &r.GasFlow, &raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reading")
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &r.RawPayload); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal payload of reading %d", r.ID)
			}
		}
		r.Timestamp = r.Timestamp.UTC()
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list readings iterate")
}

// CountReadingsByDay counts readings per UTC day in [from, to).
func (s *PostgresStore) CountReadingsByDay(ctx context.Context, from, to time.Time) ([]model.DayCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT to_char(ts AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)::int
		 FROM sensor_readings WHERE ts >= $1 AND ts < $2 GROUP BY day ORDER BY day`,
		from, to)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count readings by day")
	}
	defer rows.Close()

	var out []model.DayCount
	for rows.Next() {
		var dc model.DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan day count")
		}
		out = append(out, dc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: count readings iterate")
}

// --- Reports ---

func (s *PostgresStore) CreateReport(ctx context.Context, r *model.Report) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reports (`+reportColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.StageID, string(r.Type), r.Observations, r.Inferences,
		r.ProductionEstimated, r.ProductionReal, r.ExcelPath, r.CSVPath, r.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert report")
}

func (s *PostgresStore) UpdateReport(ctx context.Context, r *model.Report) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET report_type = $1, observations = $2, inferences = $3,
		 production_estimated = $4, production_real = $5, file_excel = $6, file_csv = $7
		 WHERE id = $8`,
		string(r.Type), r.Observations, r.Inferences, r.ProductionEstimated, r.ProductionReal,
		r.ExcelPath, r.CSVPath, r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update report %s", r.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "report %s", r.ID)
	}
	return nil
}

func (s *PostgresStore) GetReport(ctx context.Context, id string) (*model.Report, error) {
	r, err := scanPgReport(s.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "report %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, limit int) ([]model.Report, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+reportColumns+` FROM reports ORDER BY created_at DESC LIMIT $1`, listLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		r, err := scanPgReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

// --- Alerts ---

func (s *PostgresStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	details, err := marshalDetails(a.Details)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, preparedStatements["insert_alert"],
		a.ID, string(a.Level), a.Message, details, a.Resolved, a.CreatedAt)
	return eris.Wrap(err, "postgres: insert alert")
}

func (s *PostgresStore) ListAlerts(ctx context.Context, unresolvedOnly bool, limit int) ([]model.Alert, error) {
	query := `SELECT id, level, message, details, resolved, created_at FROM alerts`
	if unresolvedOnly {
		query += ` WHERE NOT resolved`
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, listLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var level string
		var details []byte
		if err := rows.Scan(&a.ID, &level, &a.Message, &details, &a.Resolved, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		a.Level = model.AlertLevel(level)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &a.Details); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal alert details %s", a.ID)
			}
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list alerts iterate")
}

func (s *PostgresStore) ResolveAlert(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET resolved = true WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve alert %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "alert %s", id)
	}
	return nil
}

func (s *PostgresStore) Counts(ctx context.Context, readingsSince time.Time) (*Counts, error) {
	var c Counts
	err := s.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM stages WHERE active)::int,
			(SELECT COUNT(*) FROM reports)::int,
			(SELECT COUNT(*) FROM sensor_readings WHERE ts >= $1)::int`,
		readingsSince,
	).Scan(&c.ActiveStages, &c.Reports, &c.ReadingsSince)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: counts")
	}
	return &c, nil
}

// helpers

func pgStageOpen(ctx context.Context, tx pgx.Tx, stageID string) error {
	var active bool
	err := tx.QueryRow(ctx, preparedStatements["stage_open"], stageID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "stage %s", stageID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: lookup stage %s", stageID)
	}
	if !active {
		return eris.Wrapf(ErrStageClosed, "stage %s", stageID)
	}
	return nil
}

func scanPgStage(row pgx.Row) (*model.Stage, error) {
	var st model.Stage
	err := row.Scan(&st.ID, &st.Number, &st.Date, &st.People, &st.MaterialType, &st.AmountKg,
		&st.HumidityPct, &st.AddedWaterM3, &st.TemperatureC, &st.Active, &st.CreatedAt, &st.ClosedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func scanPgReport(row pgx.Row) (*model.Report, error) {
	var r model.Report
	var typ string
	err := row.Scan(&r.ID, &r.StageID, &typ, &r.Observations, &r.Inferences,
		&r.ProductionEstimated, &r.ProductionReal, &r.ExcelPath, &r.CSVPath, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Type = model.ReportType(typ)
	return &r, nil
}
