package api

import (
	"net/http"

	"github.com/MJE43/stake-wheel-go/internal/engine"
	"github.com/MJE43/stake-wheel-go/internal/metrics"
	"github.com/MJE43/stake-wheel-go/internal/wheel"
)

func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, TiersResponse{
		Tiers:         wheel.Tiers(),
		SegmentCounts: append([]int(nil), wheel.SegmentCounts...),
		DefaultCount:  wheel.DefaultSegmentCount,
		DefaultTier:   wheel.DefaultTier,
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleLegend(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, LegendResponse{
		Legend:        wheel.Legend(),
		EngineVersion: EngineVersion,
	})
}

// handleGenerate builds a wheel. Without seeds it draws from the process
// source; with seeds it returns the provably-fair wheel for the nonce.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
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

	var src engine.Source
	if req.Seeds != nil {
		src = engine.NewSeededSource(req.Seeds.engine(), req.Nonce)
	}
	generated, err := wheel.Generate(req.SegmentCount, tier, src)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	metrics.WheelGenerated(tier.String())

	resp := GenerateResponse{
		Wheel:         generated,
		Component:     generated.ComponentData(),
		Stats:         generated.Stats(),
		EngineVersion: EngineVersion,
	}
	if req.Seeds != nil {
		echo := echoSeeds(*req.Seeds)
		nonce := req.Nonce
		resp.Seeds = &echo
		resp.Nonce = &nonce
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleVerify replays a provably-fair spin.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
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

	outcome, err := wheel.Replay(req.Seeds.engine(), req.Nonce, req.SegmentCount, tier)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	resp := VerifyResponse{
		Outcome:       outcome,
		Valid:         outcome.Wheel.Validate() == nil,
		EngineVersion: EngineVersion,
		Echo: VerifyEcho{
			Seeds:        echoSeeds(req.Seeds),
			Nonce:        req.Nonce,
			SegmentCount: req.SegmentCount,
			Tier:         tier.String(),
			Index:        req.Index,
		},
	}
	if req.Index != nil {
		match := *req.Index == outcome.Index
		resp.IndexMatches = &match
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSeedHash(w http.ResponseWriter, r *http.Request) {
	var req SeedHashRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, SeedHashResponse{
		Hash:          engine.HashServerSeed(req.ServerSeed),
		EngineVersion: EngineVersion,
	})
}
