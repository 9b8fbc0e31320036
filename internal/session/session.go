// Package session hosts the state of one wheel widget: the selected segment
// count and tier, the generated wheel, and the spin guard that keeps a second
// spin from starting while the wheel is still turning.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MJE43/stake-wheel-go/internal/engine"
	"github.com/MJE43/stake-wheel-go/internal/metrics"
	"github.com/MJE43/stake-wheel-go/internal/wheel"
)

// Options configures a new session. Zero values fall back to the widget
// defaults: 30 segments, medium tier, an 800ms timer spinner.
type Options struct {
	SegmentCount int
	Tier         wheel.Tier
	MaxSegments  int

	// Seeds switches the session into provably-fair mode. Every wheel and
	// spin is then reproducible with wheel.Replay(Seeds, nonce, count, tier).
	Seeds *engine.Seeds
	Nonce uint64

	Source  engine.Source
	Spinner Spinner
	Sink    EventSink
	Logger  *zap.Logger
}

// SpinInfo describes a running spin.
type SpinInfo struct {
	ID        string    `json:"id"`
	Target    int       `json:"target"`
	Nonce     *uint64   `json:"nonce,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// State is a point-in-time copy of a session.
type State struct {
	ID             string       `json:"id"`
	SegmentCount   int          `json:"segment_count"`
	Tier           wheel.Tier   `json:"tier"`
	Wheel          wheel.Wheel  `json:"wheel"`
	Spinning       bool         `json:"spinning"`
	CurrentSpin    *SpinInfo    `json:"current_spin,omitempty"`
	LastOutcome    *SpinOutcome `json:"last_outcome,omitempty"`
	SpinCount      uint64       `json:"spin_count"`
	ProvablyFair   bool         `json:"provably_fair"`
	ServerSeedHash string       `json:"server_seed_hash,omitempty"`
	ClientSeed     string       `json:"client_seed,omitempty"`
	Nonce          *uint64      `json:"nonce,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type spin struct {
	id        string
	target    int
	wheel     wheel.Wheel
	nonce     *uint64
	startedAt time.Time
}

func (sp *spin) info() SpinInfo {
	return SpinInfo{ID: sp.id, Target: sp.target, Nonce: sp.nonce, StartedAt: sp.startedAt}
}

// Session owns one wheel and its spin guard. At most one spin is in flight
// at a time. Methods are safe for concurrent use.
type Session struct {
	id          string
	maxSegments int
	spinner     Spinner
	sink        EventSink
	log         *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	count     int
	tier      wheel.Tier
	wheel     wheel.Wheel
	src       engine.Source
	seeds     *engine.Seeds
	nonce     uint64
	spinning  bool
	current   *spin
	last      *SpinOutcome
	spins     uint64
	closed    bool
	createdAt time.Time
	updatedAt time.Time
}

// New creates a session and generates its first wheel.
func New(id string, opts Options) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if opts.SegmentCount == 0 {
		opts.SegmentCount = wheel.DefaultSegmentCount
	}
	if opts.Tier == 0 {
		opts.Tier = wheel.DefaultTier
	}
	if opts.Spinner == nil {
		opts.Spinner = NewTimerSpinner(DefaultSpinDuration)
	}
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Source == nil {
		opts.Source = engine.NewMathSource(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()
	s := &Session{
		id:          id,
		maxSegments: opts.MaxSegments,
		spinner:     opts.Spinner,
		sink:        opts.Sink,
		log:         opts.Logger.With(zap.String("session_id", id)),
		ctx:         ctx,
		cancel:      cancel,
		count:       opts.SegmentCount,
		tier:        opts.Tier,
		src:         opts.Source,
		nonce:       opts.Nonce,
		createdAt:   now,
		updatedAt:   now,
	}
	if opts.Seeds != nil {
		seeds := *opts.Seeds
		s.seeds = &seeds
	}

	if err := s.checkCount(opts.SegmentCount); err != nil {
		cancel()
		return nil, err
	}
	if err := s.regenerateLocked(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Wheel returns the current segment list.
func (s *Session) Wheel() wheel.Wheel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wheel
}

// Spinning reports whether a spin is running.
func (s *Session) Spinning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spinning
}

// SetTier selects a tier and regenerates the wheel.
func (s *Session) SetTier(tier wheel.Tier) (wheel.Wheel, error) {
	if !tier.Valid() {
		return wheel.Wheel{}, fmt.Errorf("%w: %d", wheel.ErrInvalidTier, tier)
	}
	return s.update(func() { s.tier = tier })
}

// SetSegmentCount selects a segment count and regenerates the wheel.
func (s *Session) SetSegmentCount(count int) (wheel.Wheel, error) {
	if err := s.checkCount(count); err != nil {
		return wheel.Wheel{}, err
	}
	return s.update(func() { s.count = count })
}

// Regenerate draws a fresh wheel with the current settings. A running spin is
// not affected; it resolves against the wheel it started on.
func (s *Session) Regenerate() (wheel.Wheel, error) {
	return s.update(func() {})
}

func (s *Session) update(apply func()) (wheel.Wheel, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return wheel.Wheel{}, ErrSessionClosed
	}
	prevCount, prevTier := s.count, s.tier
	apply()
	if err := s.regenerateLocked(); err != nil {
		s.count, s.tier = prevCount, prevTier
		s.mu.Unlock()
		return wheel.Wheel{}, err
	}
	w := s.wheel
	s.mu.Unlock()

	s.publish(Event{Type: EventWheelRegenerated, Wheel: &w})
	return w, nil
}

func (s *Session) checkCount(count int) error {
	if count <= 0 {
		return fmt.Errorf("%w: got %d", wheel.ErrInvalidSegmentCount, count)
	}
	if s.maxSegments > 0 && count > s.maxSegments {
		return fmt.Errorf("%w: %d exceeds the limit of %d", wheel.ErrInvalidSegmentCount, count, s.maxSegments)
	}
	return nil
}

// regenerateLocked replaces the wheel. In provably-fair mode the stream is
// reset to the current nonce so the next spin draws right after generation.
func (s *Session) regenerateLocked() error {
	src := s.src
	if s.seeds != nil {
		src = engine.NewSeededSource(*s.seeds, s.nonce)
	}
	w, err := wheel.Generate(s.count, s.tier, src)
	if err != nil {
		return err
	}
	s.src = src
	s.wheel = w
	s.updatedAt = time.Now().UTC()
	metrics.WheelGenerated(s.tier.String())
	return nil
}

// Spin starts a spin toward a uniformly chosen index. While a spin is running
// the call changes nothing and returns the running spin with
// ErrSpinInProgress.
func (s *Session) Spin(ctx context.Context) (SpinInfo, error) {
	if err := ctx.Err(); err != nil {
		return SpinInfo{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SpinInfo{}, ErrSessionClosed
	}
	if s.spinning {
		info := s.current.info()
		s.mu.Unlock()
		metrics.Spin(metrics.SpinIgnored)
		s.log.Debug("spin ignored", zap.String("spin_id", info.ID))
		s.publish(Event{Type: EventSpinIgnored, Spin: &info})
		return info, ErrSpinInProgress
	}

	target, err := wheel.PickWinningIndex(s.wheel.Len(), s.src)
	if err != nil {
		s.mu.Unlock()
		return SpinInfo{}, err
	}
	sp := &spin{
		id:        uuid.NewString(),
		target:    target,
		wheel:     s.wheel,
		startedAt: time.Now().UTC(),
	}
	if s.seeds != nil {
		nonce := s.nonce
		sp.nonce = &nonce
	}
	s.spinning = true
	s.current = sp
	s.updatedAt = sp.startedAt
	info := sp.info()
	req := SpinRequest{
		SessionID: s.id,
		SpinID:    sp.id,
		Target:    target,
		Segment:   sp.wheel.Segments[target],
		StartedAt: sp.startedAt,
	}
	s.mu.Unlock()

	metrics.Spin(metrics.SpinStarted)
	s.log.Debug("spin started", zap.String("spin_id", sp.id), zap.Int("target", target))
	s.publish(Event{Type: EventSpinStarted, Spin: &info})

	if err := s.spinner.StartSpin(s.ctx, req, s.spinnerStopped); err != nil {
		s.mu.Lock()
		if s.current == sp {
			s.spinning = false
			s.current = nil
		}
		s.mu.Unlock()
		return SpinInfo{}, fmt.Errorf("start spin: %w", err)
	}
	return info, nil
}

// Complete reports that the wheel stopped. An empty spinID completes whatever
// spin is running.
func (s *Session) Complete(spinID string) (SpinOutcome, error) {
	return s.complete(spinID, time.Now().UTC())
}

func (s *Session) spinnerStopped(out SpinOutcome) {
	_, err := s.complete(out.SpinID, out.StoppedAt)
	if err != nil && !errors.Is(err, ErrNoSpinInProgress) && !errors.Is(err, ErrSpinMismatch) {
		s.log.Warn("spin completion failed", zap.String("spin_id", out.SpinID), zap.Error(err))
	}
}

func (s *Session) complete(spinID string, at time.Time) (SpinOutcome, error) {
	s.mu.Lock()
	if !s.spinning {
		s.mu.Unlock()
		return SpinOutcome{}, ErrNoSpinInProgress
	}
	sp := s.current
	if spinID != "" && spinID != sp.id {
		s.mu.Unlock()
		return SpinOutcome{}, fmt.Errorf("%w: got %s, running %s", ErrSpinMismatch, spinID, sp.id)
	}

	out := SpinOutcome{
		SpinID:       sp.id,
		Index:        sp.target,
		Segment:      sp.wheel.Segments[sp.target],
		Tier:         sp.wheel.Tier,
		SegmentCount: sp.wheel.Len(),
		Nonce:        sp.nonce,
		StartedAt:    sp.startedAt,
		StoppedAt:    at.UTC(),
	}
	s.spinning = false
	s.current = nil
	s.last = &out
	s.spins++
	s.updatedAt = out.StoppedAt

	var next *wheel.Wheel
	if s.seeds != nil && !s.closed {
		s.nonce++
		if err := s.regenerateLocked(); err != nil {
			s.log.Error("regenerate after spin", zap.Error(err))
		} else {
			w := s.wheel
			next = &w
		}
	}
	s.mu.Unlock()

	metrics.Spin(metrics.SpinCompleted)
	s.log.Debug("spin completed",
		zap.String("spin_id", out.SpinID),
		zap.Int("index", out.Index),
		zap.String("label", out.Segment.Label),
	)
	s.publish(Event{Type: EventSpinCompleted, Outcome: &out})
	if next != nil {
		s.publish(Event{Type: EventWheelRegenerated, Wheel: next})
	}
	return out, nil
}

// Close cancels any running spin and rejects further changes.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.publish(Event{Type: EventSessionClosed})
}

func (s *Session) snapshotLocked() State {
	st := State{
		ID:           s.id,
		SegmentCount: s.count,
		Tier:         s.tier,
		Wheel:        s.wheel.Clone(),
		Spinning:     s.spinning,
		SpinCount:    s.spins,
		ProvablyFair: s.seeds != nil,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
	if s.current != nil {
		info := s.current.info()
		st.CurrentSpin = &info
	}
	if s.last != nil {
		last := *s.last
		st.LastOutcome = &last
	}
	if s.seeds != nil {
		nonce := s.nonce
		st.Nonce = &nonce
		st.ServerSeedHash = engine.HashServerSeed(s.seeds.Server)
		st.ClientSeed = s.seeds.Client
	}
	return st
}

func (s *Session) publish(e Event) {
	e.SessionID = s.id
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	s.sink.Publish(e)
}
