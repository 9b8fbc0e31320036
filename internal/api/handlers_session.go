package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MJE43/stake-wheel-go/internal/engine"
	"github.com/MJE43/stake-wheel-go/internal/session"
	"github.com/MJE43/stake-wheel-go/internal/wheel"
)

// clientMessage is what websocket subscribers may send.
type clientMessage struct {
	Type   string `json:"type"`
	SpinID string `json:"spin_id,omitempty"`
}

const (
	clientSpin     = "spin"
	clientComplete = "spin.complete"
)

func (s *Server) sessionResponse(st session.State) SessionResponse {
	return SessionResponse{
		Session:       st,
		Component:     st.Wheel.ComponentData(),
		EngineVersion: EngineVersion,
	}
}

// lookupSession resolves the {id} URL parameter and writes the error when the
// session is unknown.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	if s.sessions == nil {
		engineErr := NewError(ErrTypeServiceUnavailable, "Sessions not configured").Build()
		s.errorHandler.write(w, r, http.StatusServiceUnavailable, engineErr)
		return nil, false
	}
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		engineErr := NewError(ErrTypeServiceUnavailable, "Sessions not configured").Build()
		s.errorHandler.write(w, r, http.StatusServiceUnavailable, engineErr)
		return
	}

	var req CreateSessionRequest
	if r.ContentLength != 0 && !s.decodeRequest(w, r, &req) {
		return
	}
	var tier wheel.Tier
	if req.Tier != "" {
		t, err := wheel.ParseTier(req.Tier)
		if err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		tier = t
	}
	create := session.CreateRequest{
		SegmentCount: req.SegmentCount,
		Tier:         tier,
		Nonce:        req.Nonce,
	}
	if req.Seeds != nil {
		seeds := engine.Seeds{Server: req.Seeds.Server, Client: req.Seeds.Client}
		create.Seeds = &seeds
	}

	sess, err := s.sessions.Create(create)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, s.sessionResponse(sess.Snapshot()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessionResponse(sess.Snapshot()))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		engineErr := NewError(ErrTypeServiceUnavailable, "Sessions not configured").Build()
		s.errorHandler.write(w, r, http.StatusServiceUnavailable, engineErr)
		return
	}
	if err := s.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetTier(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req SetTierRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	tier, err := wheel.ParseTier(req.Tier)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if _, err := sess.SetTier(tier); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessionResponse(sess.Snapshot()))
}

func (s *Server) handleSetSegments(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req SetSegmentsRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	if _, err := sess.SetSegmentCount(req.SegmentCount); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessionResponse(sess.Snapshot()))
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if _, err := sess.Regenerate(); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessionResponse(sess.Snapshot()))
}

// handleSpin starts a spin. A second request while the wheel is turning is
// answered with 409 and the running spin in the error context.
func (s *Server) handleSpin(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	info, err := sess.Spin(r.Context())
	if errors.Is(err, session.ErrSpinInProgress) {
		engineErr := NewError(ErrTypeSpinInProgress, "A spin is already in progress").
			WithContext("spin_id", info.ID).
			WithContext("target", info.Target).
			Build()
		s.errorHandler.write(w, r, http.StatusConflict, engineErr)
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, SpinResponse{Spin: info, EngineVersion: EngineVersion})
}

// handleCompleteSpin is the stop callback for clients that animate the wheel
// themselves.
func (s *Server) handleCompleteSpin(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req CompleteSpinRequest
	if r.ContentLength != 0 && !s.decodeRequest(w, r, &req) {
		return
	}
	out, err := sess.Complete(req.SpinID)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CompleteSpinResponse{Outcome: out, EngineVersion: EngineVersion})
}

// handleSessionEvents streams session events over a websocket. The first
// message is the current state; subscribers may send spin requests and stop
// callbacks back.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if s.hub == nil {
		engineErr := NewError(ErrTypeServiceUnavailable, "Live events not configured").Build()
		s.errorHandler.write(w, r, http.StatusServiceUnavailable, engineErr)
		return
	}

	hello := func() any {
		return map[string]interface{}{
			"type":       "session.state",
			"session_id": sess.ID(),
			"session":    s.sessionResponse(sess.Snapshot()),
		}
	}
	log := s.log.With(zap.String("session_id", sess.ID()))
	err := s.hub.Serve(w, r, sess.ID(), hello, func(data []byte) {
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug("ignoring malformed client message", zap.Error(err))
			return
		}
		switch msg.Type {
		case clientSpin:
			// Rejected spins are reported to subscribers as spin.ignored.
			_, _ = sess.Spin(r.Context())
		case clientComplete:
			if _, err := sess.Complete(msg.SpinID); err != nil {
				log.Debug("complete from client rejected", zap.Error(err))
			}
		default:
			log.Debug("unknown client message", zap.String("type", msg.Type))
		}
	})
	if err != nil {
		log.Warn("websocket session ended", zap.Error(err))
	}
}
