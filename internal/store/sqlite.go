package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultRunsPerPage = 50
	defaultHitsPerPage = 100
	maxPerPage         = 1000
)

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens path. ":memory:" gives a private in-memory database.
// Pragmas go through the DSN so every pooled connection gets them.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		tier TEXT NOT NULL,
		segment_count INTEGER NOT NULL,
		server_seed_hash TEXT NOT NULL,
		client_seed TEXT NOT NULL,
		nonce_start INTEGER NOT NULL,
		nonce_end INTEGER NOT NULL,
		target_op TEXT NOT NULL,
		target_val REAL NOT NULL,
		target_val2 REAL NOT NULL DEFAULT 0,
		tolerance REAL NOT NULL DEFAULT 0,
		hit_limit INTEGER NOT NULL DEFAULT 0,
		timed_out INTEGER NOT NULL DEFAULT 0,
		hit_count INTEGER NOT NULL DEFAULT 0,
		total_evaluated INTEGER NOT NULL DEFAULT 0,
		summary_min REAL,
		summary_max REAL,
		summary_mean REAL,
		engine_version TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS hits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		nonce INTEGER NOT NULL,
		metric REAL NOT NULL,
		segment_index INTEGER NOT NULL,
		color TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hits_run_nonce ON hits(run_id, nonce)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_tier_created ON runs(tier, created_at DESC)`,
	`ALTER TABLE runs ADD COLUMN params_json TEXT NOT NULL DEFAULT '{}'`,
}

// Migrate applies the migrations not yet recorded in schema_migrations.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, i+1, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}
	return nil
}

// SchemaVersion returns the number of applied migrations.
func (s *SQLiteDB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}

// EncodeParams renders v as the params_json column value.
func EncodeParams(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	return string(b), nil
}

// SaveRun saves a scan run to the database
func (s *SQLiteDB) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.ParamsJSON == "" {
		run.ParamsJSON = "{}"
	}

	query := `INSERT INTO runs (
		id, tier, segment_count, server_seed_hash, client_seed, nonce_start, nonce_end,
		target_op, target_val, target_val2, tolerance, hit_limit, timed_out,
		hit_count, total_evaluated, summary_min, summary_max, summary_mean,
		params_json, engine_version, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Tier, run.SegmentCount, run.ServerSeedHash, run.ClientSeed,
		run.NonceStart, run.NonceEnd, run.TargetOp, run.TargetVal, run.TargetVal2,
		run.Tolerance, run.HitLimit, boolInt(run.TimedOut), run.HitCount, run.TotalEvaluated,
		run.SummaryMin, run.SummaryMax, run.SummaryMean,
		run.ParamsJSON, run.EngineVersion, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// SaveHits saves multiple hits to the database
func (s *SQLiteDB) SaveHits(ctx context.Context, runID string, hits []Hit) error {
	if len(hits) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO hits (run_id, nonce, metric, segment_index, color) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, hit := range hits {
		if _, err := stmt.ExecContext(ctx, runID, hit.Nonce, hit.Metric, hit.SegmentIndex, hit.Color); err != nil {
			return fmt.Errorf("save hit nonce %d: %w", hit.Nonce, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, tier, segment_count, server_seed_hash, client_seed, nonce_start, nonce_end,
	target_op, target_val, target_val2, tolerance, hit_limit, timed_out,
	hit_count, total_evaluated, summary_min, summary_max, summary_mean,
	params_json, engine_version, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var timedOut int
	var summaryMin, summaryMax, summaryMean sql.NullFloat64

	err := row.Scan(
		&run.ID, &run.Tier, &run.SegmentCount, &run.ServerSeedHash, &run.ClientSeed,
		&run.NonceStart, &run.NonceEnd, &run.TargetOp, &run.TargetVal, &run.TargetVal2,
		&run.Tolerance, &run.HitLimit, &timedOut, &run.HitCount, &run.TotalEvaluated,
		&summaryMin, &summaryMax, &summaryMean,
		&run.ParamsJSON, &run.EngineVersion, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.SummaryMin = nullFloat(summaryMin)
	run.SummaryMax = nullFloat(summaryMax)
	run.SummaryMean = nullFloat(summaryMean)
	run.TimedOut = timedOut == 1
	return &run, nil
}

// GetRun retrieves a run by ID
func (s *SQLiteDB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first with pagination and filtering
func (s *SQLiteDB) ListRuns(ctx context.Context, query RunsQuery) (*RunsList, error) {
	var where []string
	var args []any
	if query.Tier != "" {
		where = append(where, "tier = ?")
		args = append(args, strings.ToLower(query.Tier))
	}
	if query.SegmentCount > 0 {
		where = append(where, "segment_count = ?")
		args = append(args, query.SegmentCount)
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var totalCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	page, perPage := paginate(query.Page, query.PerPage, defaultRunsPerPage)
	offset := (page - 1) * perPage

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs `+whereClause+`
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`, append(args, perPage, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return &RunsList{
		Runs:       runs,
		TotalCount: totalCount,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages(totalCount, perPage),
	}, nil
}

// GetRunHits retrieves hits for a run ordered by nonce, with the distance to
// the previous hit.
func (s *SQLiteDB) GetRunHits(ctx context.Context, runID string, page, perPage int) (*HitsPage, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}

	var totalCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM hits WHERE run_id = ?", runID).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to get hits count: %w", err)
	}

	page, perPage = paginate(page, perPage, defaultHitsPerPage)
	offset := (page - 1) * perPage

	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, nonce, metric, segment_index, color
		FROM hits WHERE run_id = ?
		ORDER BY nonce
		LIMIT ? OFFSET ?`, runID, perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query hits: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		if err := rows.Scan(&hit.ID, &hit.RunID, &hit.Nonce, &hit.Metric, &hit.SegmentIndex, &hit.Color); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hits: %w", err)
	}

	withDelta := make([]HitWithDelta, len(hits))
	for i, hit := range hits {
		withDelta[i] = HitWithDelta{Hit: hit}
		if i > 0 {
			delta := hit.Nonce - hits[i-1].Nonce
			withDelta[i].DeltaNonce = &delta
			continue
		}
		if page > 1 {
			// First hit on a later page: measure from the last hit of the previous page.
			var prev uint64
			err := s.db.QueryRowContext(ctx,
				`SELECT nonce FROM hits WHERE run_id = ? AND nonce < ? ORDER BY nonce DESC LIMIT 1`,
				runID, hit.Nonce).Scan(&prev)
			if err == nil {
				delta := hit.Nonce - prev
				withDelta[i].DeltaNonce = &delta
			}
		}
	}

	return &HitsPage{
		Hits:       withDelta,
		TotalCount: totalCount,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages(totalCount, perPage),
	}, nil
}

func paginate(page, perPage, def int) (int, int) {
	if perPage <= 0 {
		perPage = def
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	if page <= 0 {
		page = 1
	}
	return page, perPage
}

func totalPages(total, perPage int) int {
	return (total + perPage - 1) / perPage
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
