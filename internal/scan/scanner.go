// Package scan replays provably-fair wheel spins across a nonce range and
// reports the nonces whose winning multiplier matches a target.
package scan

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/stake-wheel-go/internal/engine"
	"github.com/MJE43/stake-wheel-go/internal/metrics"
	"github.com/MJE43/stake-wheel-go/internal/wheel"
)

const (
	defaultBatchSize = 2048
	defaultMaxRange  = 500_000
	hitBuffer        = 1024
)

// Request describes one scan.
type Request struct {
	Seeds        engine.Seeds `json:"seeds"`
	SegmentCount int          `json:"segment_count"`
	Tier         wheel.Tier   `json:"tier"`
	NonceStart   uint64       `json:"nonce_start"`
	NonceEnd     uint64       `json:"nonce_end"`
	TargetOp     TargetOp     `json:"target_op"`
	TargetVal    float64      `json:"target_val"`
	TargetVal2   float64      `json:"target_val2,omitempty"`
	Tolerance    float64      `json:"tolerance"`
	Limit        int          `json:"limit,omitempty"`
	TimeoutMs    int          `json:"timeout_ms,omitempty"`
}

// Hit is a nonce whose spin matched the target.
type Hit struct {
	Nonce  uint64      `json:"nonce"`
	Metric float64     `json:"metric"`
	Index  int         `json:"index"`
	Color  wheel.Color `json:"color"`
}

// Summary contains aggregate statistics over the hits.
type Summary struct {
	TotalEvaluated uint64  `json:"total_evaluated"`
	HitsFound      int     `json:"hits_found"`
	MinMetric      float64 `json:"min_metric"`
	MaxMetric      float64 `json:"max_metric"`
	MeanMetric     float64 `json:"mean_metric"`
	TimedOut       bool    `json:"timed_out,omitempty"`
	LimitReached   bool    `json:"limit_reached,omitempty"`
	DurationMs     int64   `json:"duration_ms"`
}

// Result is returned by Scan. Hits are ordered by nonce.
type Result struct {
	Hits    []Hit   `json:"hits"`
	Summary Summary `json:"summary"`
	Echo    Request `json:"echo"`
}

type job struct {
	start, end uint64
}

type Options struct {
	Workers   int
	BatchSize uint64
	MaxRange  uint64
	Logger    *zap.Logger
}

// Scanner runs scans on a shared goroutine pool.
type Scanner struct {
	pool      *ants.Pool
	batchSize uint64
	maxRange  uint64
	log       *zap.Logger
}

func NewScanner(opts Options) (*Scanner, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxRange == 0 {
		opts.MaxRange = defaultMaxRange
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	pool, err := ants.NewPool(opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("scan pool: %w", err)
	}
	return &Scanner{
		pool:      pool,
		batchSize: opts.BatchSize,
		maxRange:  opts.MaxRange,
		log:       opts.Logger.Named("scan"),
	}, nil
}

// Close releases the worker pool.
func (s *Scanner) Close() { s.pool.Release() }

// Workers returns the pool capacity.
func (s *Scanner) Workers() int { return s.pool.Cap() }

// Validate checks a request without running it and returns its evaluator.
func (s *Scanner) Validate(req Request) (*TargetEvaluator, error) {
	if req.Seeds.Server == "" || req.Seeds.Client == "" {
		return nil, ErrInvalidSeeds
	}
	if req.NonceEnd < req.NonceStart {
		return nil, fmt.Errorf("%w: nonce_end %d before nonce_start %d", ErrInvalidRange, req.NonceEnd, req.NonceStart)
	}
	if span := req.NonceEnd - req.NonceStart; span >= s.maxRange {
		return nil, fmt.Errorf("%w: %d nonces exceeds the limit of %d", ErrInvalidRange, span+1, s.maxRange)
	}
	if req.SegmentCount <= 0 {
		return nil, fmt.Errorf("%w: got %d", wheel.ErrInvalidSegmentCount, req.SegmentCount)
	}
	if !req.Tier.Valid() {
		return nil, fmt.Errorf("%w: %d", wheel.ErrInvalidTier, req.Tier)
	}
	if req.Limit < 0 || req.TimeoutMs < 0 {
		return nil, fmt.Errorf("%w: limit and timeout must not be negative", ErrInvalidTarget)
	}
	tol := req.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}
	return NewTargetEvaluator(req.TargetOp, req.TargetVal, req.TargetVal2, tol)
}

// Scan replays every nonce in [NonceStart, NonceEnd]. On timeout the partial
// result is returned together with ErrTimeout.
func (s *Scanner) Scan(ctx context.Context, req Request) (*Result, error) {
	evaluator, err := s.Validate(req)
	if err != nil {
		return nil, err
	}

	parent := ctx
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	started := time.Now()
	var evaluated uint64
	hits := make(chan Hit, hitBuffer)
	submitErr := make(chan error, 1)

	var wg sync.WaitGroup
	go func() {
		defer close(hits)
		defer wg.Wait()
		for current := req.NonceStart; ; {
			end := current + s.batchSize - 1
			if end < current || end > req.NonceEnd {
				end = req.NonceEnd
			}
			j := job{start: current, end: end}
			if ctx.Err() != nil {
				return
			}
			wg.Add(1)
			if err := s.pool.Submit(func() {
				defer wg.Done()
				s.run(ctx, j, req, evaluator, hits, &evaluated)
			}); err != nil {
				wg.Done()
				submitErr <- err
				return
			}
			if end == req.NonceEnd {
				return
			}
			current = end + 1
		}
	}()

	collected := make([]Hit, 0, min(max(req.Limit, 0), hitBuffer))
	limitReached := false
	for hit := range hits {
		if limitReached {
			continue
		}
		collected = append(collected, hit)
		if req.Limit > 0 && len(collected) >= req.Limit {
			limitReached = true
			stop()
		}
	}

	select {
	case err := <-submitErr:
		if errors.Is(err, ants.ErrPoolClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("submit scan batch: %w", err)
	default:
	}

	timedOut := !limitReached && ctx.Err() != nil && parent.Err() == nil
	if !limitReached && !timedOut && parent.Err() != nil {
		return nil, parent.Err()
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].Nonce < collected[j].Nonce })
	elapsed := time.Since(started)
	res := &Result{
		Hits:    collected,
		Summary: summarize(collected, atomic.LoadUint64(&evaluated), timedOut, limitReached, elapsed),
		Echo:    req,
	}
	metrics.ScanFinished(res.Summary.TotalEvaluated, uint64(res.Summary.HitsFound), elapsed, timedOut)
	s.log.Info("scan finished",
		zap.String("server_seed_hash", engine.HashServerSeed(req.Seeds.Server)),
		zap.Uint64("nonce_start", req.NonceStart),
		zap.Uint64("nonce_end", req.NonceEnd),
		zap.Uint64("evaluated", res.Summary.TotalEvaluated),
		zap.Int("hits", res.Summary.HitsFound),
		zap.Bool("timed_out", timedOut),
		zap.Duration("elapsed", elapsed),
	)

	if timedOut {
		return res, ErrTimeout
	}
	return res, nil
}

func (s *Scanner) run(ctx context.Context, j job, req Request, ev *TargetEvaluator, hits chan<- Hit, evaluated *uint64) {
	for nonce := j.start; ; nonce++ {
		if ctx.Err() != nil {
			return
		}
		out, err := wheel.Replay(req.Seeds, nonce, req.SegmentCount, req.Tier)
		if err != nil {
			s.log.Warn("replay failed", zap.Uint64("nonce", nonce), zap.Error(err))
		} else {
			atomic.AddUint64(evaluated, 1)
			if ev.Matches(out.Metric()) {
				hit := Hit{Nonce: nonce, Metric: out.Metric(), Index: out.Index, Color: out.Segment.Color}
				select {
				case hits <- hit:
				case <-ctx.Done():
					return
				}
			}
		}
		if nonce == j.end {
			return
		}
	}
}

func summarize(hits []Hit, evaluated uint64, timedOut, limitReached bool, elapsed time.Duration) Summary {
	sum := Summary{
		TotalEvaluated: evaluated,
		HitsFound:      len(hits),
		TimedOut:       timedOut,
		LimitReached:   limitReached,
		DurationMs:     elapsed.Milliseconds(),
	}
	if len(hits) == 0 {
		return sum
	}

	total := decimal.Zero
	sum.MinMetric, sum.MaxMetric = hits[0].Metric, hits[0].Metric
	for _, h := range hits {
		sum.MinMetric = min(sum.MinMetric, h.Metric)
		sum.MaxMetric = max(sum.MaxMetric, h.Metric)
		total = total.Add(decimal.NewFromFloat(h.Metric))
	}
	sum.MeanMetric = total.DivRound(decimal.NewFromInt(int64(len(hits))), 8).InexactFloat64()
	return sum
}
