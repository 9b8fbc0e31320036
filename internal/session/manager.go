package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/MJE43/stake-wheel-go/internal/engine"
	"github.com/MJE43/stake-wheel-go/internal/metrics"
	"github.com/MJE43/stake-wheel-go/internal/wheel"
)

// DefaultTTL is how long an untouched session is kept.
const DefaultTTL = 30 * time.Minute

// ManagerOptions configures a Manager. Zero values fall back to DefaultTTL,
// the default wheel and no session cap.
type ManagerOptions struct {
	TTL          time.Duration
	MaxSessions  int
	SegmentCount int
	Tier         wheel.Tier
	MaxSegments  int

	// NewSpinner builds the spinner for each session. Nil means a timer
	// spinner with DefaultSpinDuration.
	NewSpinner func() Spinner
	Sink       EventSink
	Logger     *zap.Logger
}

// CreateRequest overrides the manager defaults for one session.
type CreateRequest struct {
	SegmentCount int
	Tier         wheel.Tier
	Seeds        *engine.Seeds
	Nonce        uint64
}

// Manager keeps sessions in memory and expires idle ones.
type Manager struct {
	opts  ManagerOptions
	cache *cache.Cache
	log   *zap.Logger
	mu    sync.Mutex
}

// NewManager applies the defaults and starts the expiry janitor. Call Close to
// stop it and close every live session.
func NewManager(opts ManagerOptions) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SegmentCount == 0 {
		opts.SegmentCount = wheel.DefaultSegmentCount
	}
	if opts.Tier == 0 {
		opts.Tier = wheel.DefaultTier
	}
	if opts.NewSpinner == nil {
		opts.NewSpinner = func() Spinner { return NewTimerSpinner(DefaultSpinDuration) }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	m := &Manager{
		opts:  opts,
		cache: cache.New(opts.TTL, cleanupInterval(opts.TTL)),
		log:   opts.Logger.Named("sessions"),
	}
	m.cache.OnEvicted(func(id string, v interface{}) {
		if s, ok := v.(*Session); ok {
			s.Close()
			metrics.SessionClosed()
			m.log.Debug("session evicted", zap.String("session_id", id))
		}
	})
	return m
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if d := ttl / 2; d > time.Second {
		return d
	}
	return time.Second
}

// Create starts a new session with a fresh wheel.
func (m *Manager) Create(req CreateRequest) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opts.MaxSessions > 0 && m.cache.ItemCount() >= m.opts.MaxSessions {
		return nil, fmt.Errorf("%w: %d sessions", ErrTooManySessions, m.opts.MaxSessions)
	}

	opts := Options{
		SegmentCount: m.opts.SegmentCount,
		Tier:         m.opts.Tier,
		MaxSegments:  m.opts.MaxSegments,
		Seeds:        req.Seeds,
		Nonce:        req.Nonce,
		Spinner:      m.opts.NewSpinner(),
		Sink:         m.opts.Sink,
		Logger:       m.opts.Logger,
	}
	if req.SegmentCount != 0 {
		opts.SegmentCount = req.SegmentCount
	}
	if req.Tier != 0 {
		opts.Tier = req.Tier
	}

	id := uuid.NewString()
	s, err := New(id, opts)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Add(id, s, cache.DefaultExpiration); err != nil {
		s.Close()
		return nil, fmt.Errorf("register session: %w", err)
	}
	metrics.SessionOpened()
	m.log.Info("session created",
		zap.String("session_id", id),
		zap.Int("segments", opts.SegmentCount),
		zap.Stringer("tier", opts.Tier),
		zap.Bool("provably_fair", req.Seeds != nil),
	)
	return s, nil
}

// Get returns a session and extends its lifetime.
func (m *Manager) Get(id string) (*Session, error) {
	v, ok := m.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s := v.(*Session)
	if err := m.cache.Replace(id, s, cache.DefaultExpiration); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete closes and removes a session.
func (m *Manager) Delete(id string) error {
	if _, ok := m.cache.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.cache.Delete(id)
	return nil
}

// Len returns the number of live sessions, including expired ones not yet
// swept.
func (m *Manager) Len() int { return m.cache.ItemCount() }

// Close removes every session.
func (m *Manager) Close() {
	for id := range m.cache.Items() {
		m.cache.Delete(id)
	}
}
