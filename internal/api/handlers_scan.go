package api

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MJE43/stake-wheel-go/internal/engine"
	"github.com/MJE43/stake-wheel-go/internal/scan"
	"github.com/MJE43/stake-wheel-go/internal/store"
)

const (
	saveRunTimeout = 5 * time.Second
	exportPageSize = 1000
)

// handleScan scans a nonce range for spins matching the target and stores
// the run when a database is configured.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		s.errorHandler.HandleError(w, r, scan.ErrClosed)
		return
	}

	var req ScanRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	tier, err := parseTier(req.Tier)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if err := s.checkSegmentCount(req.SegmentCount); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = s.scanDefaultLimit
	}
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout == 0 {
		timeout = s.scanDefaultTimeout
	}
	if timeout > s.scanMaxTimeout {
		timeout = s.scanMaxTimeout
	}
	timeoutMs := int(timeout / time.Millisecond)

	scanReq := scan.Request{
		Seeds:        req.Seeds.engine(),
		SegmentCount: req.SegmentCount,
		Tier:         tier,
		NonceStart:   req.NonceStart,
		NonceEnd:     req.NonceEnd,
		TargetOp:     scan.TargetOp(req.TargetOp),
		TargetVal:    req.TargetVal,
		TargetVal2:   req.TargetVal2,
		Tolerance:    req.Tolerance,
		Limit:        limit,
		TimeoutMs:    timeoutMs,
	}

	result, err := s.scanner.Scan(r.Context(), scanReq)
	if err != nil && !errors.Is(err, scan.ErrTimeout) {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	runID := s.saveRun(r.Context(), req, scanReq, result)

	if err != nil {
		extra := map[string]interface{}{
			"total_evaluated": result.Summary.TotalEvaluated,
			"hits_found":      result.Summary.HitsFound,
		}
		if runID != "" {
			extra["run_id"] = runID
		}
		s.errorHandler.HandleTimeoutError(w, r, "scan", timeoutMs, extra)
		return
	}

	s.writeJSON(w, http.StatusOK, ScanResponse{
		RunID:         runID,
		Hits:          result.Hits,
		Summary:       result.Summary,
		EngineVersion: EngineVersion,
		Echo: ScanEcho{
			Seeds:        echoSeeds(req.Seeds),
			SegmentCount: req.SegmentCount,
			Tier:         tier.String(),
			NonceStart:   req.NonceStart,
			NonceEnd:     req.NonceEnd,
			TargetOp:     req.TargetOp,
			TargetVal:    req.TargetVal,
			TargetVal2:   req.TargetVal2,
			Tolerance:    req.Tolerance,
			Limit:        limit,
			TimeoutMs:    timeoutMs,
		},
	})
}

// saveRun stores the run and its hits. Failures are logged, the scan result
// is still returned to the caller.
func (s *Server) saveRun(ctx context.Context, req ScanRequest, scanReq scan.Request, result *scan.Result) string {
	if s.db == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveRunTimeout)
	defer cancel()

	params, err := store.EncodeParams(ScanEcho{
		Seeds:        echoSeeds(req.Seeds),
		SegmentCount: scanReq.SegmentCount,
		Tier:         scanReq.Tier.String(),
		NonceStart:   scanReq.NonceStart,
		NonceEnd:     scanReq.NonceEnd,
		TargetOp:     req.TargetOp,
		TargetVal:    scanReq.TargetVal,
		TargetVal2:   scanReq.TargetVal2,
		Tolerance:    scanReq.Tolerance,
		Limit:        scanReq.Limit,
		TimeoutMs:    scanReq.TimeoutMs,
	})
	if err != nil {
		s.log.Error("encode run params", zap.Error(err))
		return ""
	}

	sum := result.Summary
	run := &store.Run{
		Tier:           scanReq.Tier.String(),
		SegmentCount:   scanReq.SegmentCount,
		ServerSeedHash: engine.HashServerSeed(scanReq.Seeds.Server),
		ClientSeed:     scanReq.Seeds.Client,
		NonceStart:     scanReq.NonceStart,
		NonceEnd:       scanReq.NonceEnd,
		TargetOp:       req.TargetOp,
		TargetVal:      scanReq.TargetVal,
		TargetVal2:     scanReq.TargetVal2,
		Tolerance:      scanReq.Tolerance,
		HitLimit:       scanReq.Limit,
		TimedOut:       sum.TimedOut,
		HitCount:       sum.HitsFound,
		TotalEvaluated: sum.TotalEvaluated,
		ParamsJSON:     params,
		EngineVersion:  EngineVersion,
	}
	if sum.HitsFound > 0 {
		run.SummaryMin = &sum.MinMetric
		run.SummaryMax = &sum.MaxMetric
		run.SummaryMean = &sum.MeanMetric
	}
	if err := s.db.SaveRun(ctx, run); err != nil {
		s.log.Error("save run", zap.Error(err))
		return ""
	}

	hits := make([]store.Hit, len(result.Hits))
	for i, h := range result.Hits {
		hits[i] = store.Hit{
			RunID:        run.ID,
			Nonce:        h.Nonce,
			Metric:       h.Metric,
			SegmentIndex: h.Index,
			Color:        string(h.Color),
		}
	}
	if err := s.db.SaveHits(ctx, run.ID, hits); err != nil {
		s.log.Error("save hits", zap.String("run_id", run.ID), zap.Error(err))
	}
	return run.ID
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	q := r.URL.Query()
	query := store.RunsQuery{
		Tier:    q.Get("tier"),
		Page:    queryInt(q.Get("page")),
		PerPage: queryInt(q.Get("per_page")),
	}
	query.SegmentCount = queryInt(q.Get("segment_count"))
	if query.Tier != "" {
		tier, err := parseTier(query.Tier)
		if err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		query.Tier = tier.String()
	}

	runs, err := s.db.ListRuns(r.Context(), query)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	run, err := s.db.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetRunHits(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	q := r.URL.Query()
	page, err := s.db.GetRunHits(r.Context(), chi.URLParam(r, "id"), queryInt(q.Get("page")), queryInt(q.Get("per_page")))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) requireDB(w http.ResponseWriter, r *http.Request) bool {
	if s.db != nil {
		return true
	}
	engineErr := NewError(ErrTypeServiceUnavailable, "Database not configured").Build()
	s.errorHandler.write(w, r, http.StatusServiceUnavailable, engineErr)
	return false
}

// queryInt parses a query parameter, treating missing or malformed values
// as zero so the store applies its defaults.
func queryInt(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// handleExportRunHits streams every hit of a run as CSV, ordered by nonce.
func (s *Server) handleExportRunHits(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	runID := chi.URLParam(r, "id")
	first, err := s.db.GetRunHits(r.Context(), runID, 1, exportPageSize)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="run_`+runID+`_hits.csv"`)
	w.Header().Set("X-Engine-Version", EngineVersion)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"nonce", "delta_nonce", "metric", "segment_index", "color"})

	page := first
	for {
		for _, h := range page.Hits {
			delta := ""
			if h.DeltaNonce != nil {
				delta = strconv.FormatUint(*h.DeltaNonce, 10)
			}
			if err := cw.Write([]string{
				strconv.FormatUint(h.Nonce, 10),
				delta,
				strconv.FormatFloat(h.Metric, 'f', -1, 64),
				strconv.Itoa(h.SegmentIndex),
				h.Color,
			}); err != nil {
				s.log.Warn("csv export aborted", zap.String("run_id", runID), zap.Error(err))
				return
			}
		}
		if page.Page >= page.TotalPages {
			break
		}
		page, err = s.db.GetRunHits(r.Context(), runID, page.Page+1, exportPageSize)
		if err != nil {
			// Headers are gone; the truncated file is all the client gets.
			s.log.Error("csv export failed", zap.String("run_id", runID), zap.Error(err))
			break
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.log.Warn("csv export flush", zap.String("run_id", runID), zap.Error(err))
	}
}
