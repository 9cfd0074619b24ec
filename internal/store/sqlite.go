package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/biogas-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const (
	tsLayout   = "2006-01-02 15:04:05.000000000"
	dateLayout = "2006-01-02"
)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS stages (
	id                    TEXT PRIMARY KEY,
	number                INTEGER NOT NULL,
	date                  TEXT NOT NULL,
	people                TEXT NOT NULL DEFAULT '',
	material_type         TEXT NOT NULL,
	material_amount_kg    REAL NOT NULL DEFAULT 0,
	material_humidity_pct REAL NOT NULL DEFAULT 0,
	added_water_m3        REAL NOT NULL DEFAULT 0,
	temperature_c         REAL NOT NULL DEFAULT 35,
	active                INTEGER NOT NULL DEFAULT 1,
	created_at            TEXT NOT NULL,
	closed_at             TEXT
);

CREATE TABLE IF NOT EXISTS sensor_readings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	stage_id     TEXT NOT NULL REFERENCES stages(id) ON DELETE CASCADE,
	ts           TEXT NOT NULL,
	pressure_hpa REAL,
	biol_flow    REAL,
	gas_flow     REAL,
	raw_payload  TEXT
);

CREATE TABLE IF NOT EXISTS reports (
	id                   TEXT PRIMARY KEY,
	stage_id             TEXT NOT NULL REFERENCES stages(id) ON DELETE CASCADE,
	report_type          TEXT NOT NULL,
	observations         TEXT NOT NULL DEFAULT '',
	inferences           TEXT NOT NULL DEFAULT '',
	production_estimated REAL NOT NULL DEFAULT 0,
	production_real      REAL NOT NULL DEFAULT 0,
	file_excel           TEXT NOT NULL DEFAULT '',
	file_csv             TEXT NOT NULL DEFAULT '',
	created_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY,
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	details    TEXT,
	resolved   INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stages_active ON stages(active);
CREATE INDEX IF NOT EXISTS idx_readings_ts ON sensor_readings(ts);
CREATE INDEX IF NOT EXISTS idx_readings_stage_ts ON sensor_readings(stage_id, ts);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_resolved ON alerts(resolved);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Stages ---

const stageColumns = `id, number, date, people, material_type, material_amount_kg,
	material_humidity_pct, added_water_m3, temperature_c, active, created_at, closed_at`

// CreateStage inserts st as the active stage and closes any stage that was active.
func (s *SQLiteStore) CreateStage(ctx context.Context, st *model.Stage) error {
	now := time.Now().UTC()
	newStageDefaults(st, now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin create stage")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE stages SET active = 0, closed_at = ? WHERE active = 1`, formatTS(now),
	); err != nil {
		return eris.Wrap(err, "sqlite: close previous stages")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO stages (`+stageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, NULL)`,
		st.ID, st.Number, st.Date.Format(dateLayout), st.People, st.MaterialType, st.AmountKg,
		st.HumidityPct, st.AddedWaterM3, st.TemperatureC, formatTS(st.CreatedAt),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert stage")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit create stage")
}

func (s *SQLiteStore) GetStage(ctx context.Context, id string) (*model.Stage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE id = ?`, id)
	st, err := scanStage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "stage %s", id)
	}
	return st, err
}

// ActiveStage returns the most recently created active stage, or nil when none is active.
func (s *SQLiteStore) ActiveStage(ctx context.Context) (*model.Stage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE active = 1 ORDER BY created_at DESC LIMIT 1`)
	st, err := scanStage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, err
}

func (s *SQLiteStore) ListStages(ctx context.Context, limit int) ([]model.Stage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stageColumns+` FROM stages ORDER BY created_at DESC, number DESC LIMIT ?`,
		listLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stages")
	}
	defer rows.Close() //nolint:errcheck

	var stages []model.Stage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		stages = append(stages, *st)
	}
	return stages, eris.Wrap(rows.Err(), "sqlite: list stages iterate")
}

func (s *SQLiteStore) CloseStage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stages SET active = 0, closed_at = COALESCE(closed_at, ?) WHERE id = ?`,
		formatTS(time.Now()), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: close stage %s", id)
	}
	return checkRowsAffected(res, "stage", id)
}

func (s *SQLiteStore) NextStageNumber(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(number), 0) + 1 FROM stages`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: next stage number")
}

// --- Readings ---

// InsertReading stores r for its stage. Readings for a closed stage are rejected.
func (s *SQLiteStore) InsertReading(ctx context.Context, r *model.Reading) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert reading")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := sqliteStageOpen(ctx, tx, r.StageID); err != nil {
		return err
	}
	id, err := insertSQLiteReading(ctx, tx, r)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit reading")
	}
	r.ID = id
	return nil
}

// BulkInsertReadings stores readings in one transaction. Every referenced stage
// must be open.
func (s *SQLiteStore) BulkInsertReadings(ctx context.Context, readings []model.Reading) (int64, error) {
	if len(readings) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin bulk readings")
	}
	defer tx.Rollback() //nolint:errcheck

	checked := make(map[string]bool)
	for i := range readings {
		r := &readings[i]
		if !checked[r.StageID] {
			if err := sqliteStageOpen(ctx, tx, r.StageID); err != nil {
				return 0, err
			}
			checked[r.StageID] = true
		}
		if r.ID, err = insertSQLiteReading(ctx, tx, r); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit bulk readings")
	}
	return int64(len(readings)), nil
}

func (s *SQLiteStore) ListReadings(ctx context.Context, f ReadingFilter) ([]model.Reading, error) {
	query := `SELECT id, stage_id, ts, pressure_hpa, biol_flow, gas_flow, raw_payload
		FROM sensor_readings WHERE stage_id = ?`
	args := []any{f.StageID}
	if !f.From.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, formatTS(f.From))
	}
	if !f.To.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, formatTS(f.To))
	}
	query += ` ORDER BY ts, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list readings")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Reading
	for rows.Next() {
		var (
			r                   model.Reading
			ts                  string
			pressure, biol, gas sql.NullFloat64
			raw                 sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.StageID, &ts, &pressure, &biol, &gas, &raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reading")
		}
		if r.Timestamp, err = parseTS(ts); err != nil {
			return nil, err
		}
		r.PressureHPa, r.BiolFlow, r.GasFlow = nullFloat(pressure), nullFloat(biol), nullFloat(gas)
		if raw.Valid && raw.String != "" {
			if err := json.Unmarshal([]byte(raw.String), &r.RawPayload); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal payload of reading %d", r.ID)
			}
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list readings iterate")
}

// CountReadingsByDay counts readings per UTC day in [from, to).
func (s *SQLiteStore) CountReadingsByDay(ctx context.Context, from, to time.Time) ([]model.DayCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(ts, 1, 10) AS day, COUNT(*) FROM sensor_readings
		 WHERE ts >= ? AND ts < ? GROUP BY day ORDER BY day`,
		formatTS(from), formatTS(to))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count readings by day")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DayCount
	for rows.Next() {
		var dc model.DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan day count")
		}
		out = append(out, dc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: count readings iterate")
}

// --- Reports ---

const reportColumns = `id, stage_id, report_type, observations, inferences,
	production_estimated, production_real, file_excel, file_csv, created_at`

func (s *SQLiteStore) CreateReport(ctx context.Context, r *model.Report) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StageID, string(r.Type), r.Observations, r.Inferences,
		r.ProductionEstimated, r.ProductionReal, r.ExcelPath, r.CSVPath, formatTS(r.CreatedAt),
	)
	return eris.Wrap(err, "sqlite: insert report")
}

func (s *SQLiteStore) UpdateReport(ctx context.Context, r *model.Report) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET report_type = ?, observations = ?, inferences = ?,
		 production_estimated = ?, production_real = ?, file_excel = ?, file_csv = ?
		 WHERE id = ?`,
		string(r.Type), r.Observations, r.Inferences, r.ProductionEstimated, r.ProductionReal,
		r.ExcelPath, r.CSVPath, r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update report %s", r.ID)
	}
	return checkRowsAffected(res, "report", r.ID)
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "report %s", id)
	}
	return r, err
}

func (s *SQLiteStore) ListReports(ctx context.Context, limit int) ([]model.Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports ORDER BY created_at DESC LIMIT ?`, listLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

// --- Alerts ---

func (s *SQLiteStore) CreateAlert(ctx context.Context, a *model.Alert) error {
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
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, level, message, details, resolved, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Level), a.Message, details, a.Resolved, formatTS(a.CreatedAt),
	)
	return eris.Wrap(err, "sqlite: insert alert")
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, unresolvedOnly bool, limit int) ([]model.Alert, error) {
	query := `SELECT id, level, message, details, resolved, created_at FROM alerts`
	if unresolvedOnly {
		query += ` WHERE resolved = 0`
	}
	query += ` ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, listLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Alert
	for rows.Next() {
		var (
			a       model.Alert
			details sql.NullString
			created string
		)
		if err := rows.Scan(&a.ID, &a.Level, &a.Message, &details, &a.Resolved, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		if a.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &a.Details); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal alert details %s", a.ID)
			}
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list alerts iterate")
}

func (s *SQLiteStore) ResolveAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve alert %s", id)
	}
	return checkRowsAffected(res, "alert", id)
}

func (s *SQLiteStore) Counts(ctx context.Context, readingsSince time.Time) (*Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM stages WHERE active = 1),
			(SELECT COUNT(*) FROM reports),
			(SELECT COUNT(*) FROM sensor_readings WHERE ts >= ?)`,
		formatTS(readingsSince),
	).Scan(&c.ActiveStages, &c.Reports, &c.ReadingsSince)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: counts")
	}
	return &c, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanStage(row scannable) (*model.Stage, error) {
	var (
		st            model.Stage
		date, created string
		closed        sql.NullString
	)
	err := row.Scan(&st.ID, &st.Number, &date, &st.People, &st.MaterialType, &st.AmountKg,
		&st.HumidityPct, &st.AddedWaterM3, &st.TemperatureC, &st.Active, &created, &closed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan stage")
	}
	if st.Date, err = time.ParseInLocation(dateLayout, date, time.UTC); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse stage date %q", date)
	}
	if st.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if closed.Valid {
		t, err := parseTS(closed.String)
		if err != nil {
			return nil, err
		}
		st.ClosedAt = &t
	}
	return &st, nil
}

func scanReport(row scannable) (*model.Report, error) {
	var (
		r       model.Report
		created string
	)
	err := row.Scan(&r.ID, &r.StageID, &r.Type, &r.Observations, &r.Inferences,
		&r.ProductionEstimated, &r.ProductionReal, &r.ExcelPath, &r.CSVPath, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan report")
	}
	if r.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	return &r, nil
}

func sqliteStageOpen(ctx context.Context, tx *sql.Tx, stageID string) error {
	var active bool
	err := tx.QueryRowContext(ctx, `SELECT active FROM stages WHERE id = ?`, stageID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "stage %s", stageID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: lookup stage %s", stageID)
	}
	if !active {
		return eris.Wrapf(ErrStageClosed, "stage %s", stageID)
	}
	return nil
}

func insertSQLiteReading(ctx context.Context, tx *sql.Tx, r *model.Reading) (int64, error) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	raw, err := marshalDetails(r.RawPayload)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO sensor_readings (stage_id, ts, pressure_hpa, biol_flow, gas_flow, raw_payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.StageID, formatTS(r.Timestamp), r.PressureHPa, r.BiolFlow, r.GasFlow, raw,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert reading for stage %s", r.StageID)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: reading id")
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.ParseInLocation(tsLayout, s, time.UTC)
	return t, eris.Wrapf(err, "sqlite: parse timestamp %q", s)
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// marshalDetails encodes a JSON object column; nil maps are stored as NULL.
func marshalDetails(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal json column")
	}
	return string(b), nil
}
