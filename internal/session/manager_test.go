package session

import (
	"errors"
	"testing"
	"time"

	"github.com/MJE43/stake-wheel-go/internal/engine"
	"github.com/MJE43/stake-wheel-go/internal/wheel"
)

func newTestManager(opts ManagerOptions) *Manager {
	if opts.NewSpinner == nil {
		opts.NewSpinner = func() Spinner { return ManualSpinner{} }
	}
	return NewManager(opts)
}

func TestManagerCreateGetDelete(t *testing.T) {
	m := newTestManager(ManagerOptions{SegmentCount: 20, Tier: wheel.TierEasy})
	defer m.Close()

	s, err := m.Create(CreateRequest{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	st := s.Snapshot()
	if st.SegmentCount != 20 || st.Tier != wheel.TierEasy {
		t.Errorf("expected manager defaults, got %d %s", st.SegmentCount, st.Tier)
	}

	got, err := m.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("Get returned %v, %v", got, err)
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 session, got %d", m.Len())
	}

	if err := m.Delete(s.ID()); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := m.Delete(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound on second delete, got %v", err)
	}
	if _, err := s.Regenerate(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("deleted session should be closed, got %v", err)
	}
}

func TestManagerCreateOverrides(t *testing.T) {
	m := newTestManager(ManagerOptions{MaxSegments: 50})
	defer m.Close()

	seeds := engine.Seeds{Server: "s", Client: "c"}
	s, err := m.Create(CreateRequest{SegmentCount: 11, Tier: wheel.TierEasy, Seeds: &seeds, Nonce: 3})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	st := s.Snapshot()
	if st.SegmentCount != 11 || st.Tier != wheel.TierEasy || !st.ProvablyFair {
		t.Errorf("unexpected state %+v", st)
	}
	if st.Nonce == nil || *st.Nonce != 3 {
		t.Errorf("expected nonce 3, got %v", st.Nonce)
	}

	if _, err := m.Create(CreateRequest{SegmentCount: 51}); !errors.Is(err, wheel.ErrInvalidSegmentCount) {
		t.Errorf("expected ErrInvalidSegmentCount, got %v", err)
	}
}

func TestManagerSessionLimit(t *testing.T) {
	m := newTestManager(ManagerOptions{MaxSessions: 2})
	defer m.Close()

	for i := 0; i < 2; i++ {
		if _, err := m.Create(CreateRequest{}); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}
	if _, err := m.Create(CreateRequest{}); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("expected ErrTooManySessions, got %v", err)
	}
}

func TestManagerExpiresIdleSessions(t *testing.T) {
	m := newTestManager(ManagerOptions{TTL: 50 * time.Millisecond})
	defer m.Close()

	s, err := m.Create(CreateRequest{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected expired session to be gone, got %v", err)
	}
}

func TestManagerClose(t *testing.T) {
	rec := newRecorder()
	m := newTestManager(ManagerOptions{Sink: rec})
	s, err := m.Create(CreateRequest{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	m.Close()
	if m.Len() != 0 {
		t.Errorf("expected no sessions after Close, got %d", m.Len())
	}
	rec.waitFor(t, EventSessionClosed)
	if _, err := s.Regenerate(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}
