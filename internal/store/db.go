package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// DB represents the database interface
type DB interface {
	Close() error
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	SaveRun(ctx context.Context, run *Run) error
	SaveHits(ctx context.Context, runID string, hits []Hit) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, query RunsQuery) (*RunsList, error)
	GetRunHits(ctx context.Context, runID string, page, perPage int) (*HitsPage, error)
}

// RunsQuery represents query parameters for listing runs
type RunsQuery struct {
	Tier         string `json:"tier,omitempty"`
	SegmentCount int    `json:"segment_count,omitempty"`
	Page         int    `json:"page"`
	PerPage      int    `json:"per_page"`
}

// RunsList represents paginated runs response
type RunsList struct {
	Runs       []Run `json:"runs"`
	TotalCount int   `json:"total_count"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

// HitsPage represents paginated hits response with delta nonce calculation
type HitsPage struct {
	Hits       []HitWithDelta `json:"hits"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	TotalPages int            `json:"total_pages"`
}

// Run is a stored scan. Only the server seed hash is kept.
type Run struct {
	ID             string    `json:"id"`
	Tier           string    `json:"tier"`
	SegmentCount   int       `json:"segment_count"`
	ServerSeedHash string    `json:"server_seed_hash"`
	ClientSeed     string    `json:"client_seed"`
	NonceStart     uint64    `json:"nonce_start"`
	NonceEnd       uint64    `json:"nonce_end"`
	TargetOp       string    `json:"target_op"`
	TargetVal      float64   `json:"target_val"`
	TargetVal2     float64   `json:"target_val2"`
	Tolerance      float64   `json:"tolerance"`
	HitLimit       int       `json:"hit_limit"`
	TimedOut       bool      `json:"timed_out"`
	HitCount       int       `json:"hit_count"`
	TotalEvaluated uint64    `json:"total_evaluated"`
	SummaryMin     *float64  `json:"summary_min"`
	SummaryMax     *float64  `json:"summary_max"`
	SummaryMean    *float64  `json:"summary_mean"`
	ParamsJSON     string    `json:"params_json"`
	EngineVersion  string    `json:"engine_version"`
	CreatedAt      time.Time `json:"created_at"`
}

// Hit is one matching nonce of a run.
type Hit struct {
	ID           int64   `json:"id"`
	RunID        string  `json:"run_id"`
	Nonce        uint64  `json:"nonce"`
	Metric       float64 `json:"metric"`
	SegmentIndex int     `json:"segment_index"`
	Color        string  `json:"color"`
}

// HitWithDelta represents a hit with calculated delta nonce
type HitWithDelta struct {
	Hit
	DeltaNonce *uint64 `json:"delta_nonce,omitempty"`
}
