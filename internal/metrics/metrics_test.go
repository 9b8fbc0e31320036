package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(GeneratedTotal.WithLabelValues("easy"))
	WheelGenerated("easy")
	WheelGenerated("easy")
	if got := testutil.ToFloat64(GeneratedTotal.WithLabelValues("easy")) - before; got != 2 {
		t.Errorf("expected 2 wheels, got %v", got)
	}

	before = testutil.ToFloat64(spins.WithLabelValues(SpinIgnored))
	Spin(SpinIgnored)
	if got := testutil.ToFloat64(spins.WithLabelValues(SpinIgnored)) - before; got != 1 {
		t.Errorf("expected 1 ignored spin, got %v", got)
	}
}

func TestActiveSessions(t *testing.T) {
	before := testutil.ToFloat64(activeSessions)
	SessionOpened()
	SessionOpened()
	SessionClosed()
	if got := testutil.ToFloat64(activeSessions) - before; got != 1 {
		t.Errorf("expected gauge delta 1, got %v", got)
	}
}

func TestScanFinished(t *testing.T) {
	nonces := testutil.ToFloat64(scanNonces)
	hits := testutil.ToFloat64(scanHits)
	ScanFinished(500, 7, 20*time.Millisecond, true)

	if got := testutil.ToFloat64(scanNonces) - nonces; got != 500 {
		t.Errorf("expected 500 nonces, got %v", got)
	}
	if got := testutil.ToFloat64(scanHits) - hits; got != 7 {
		t.Errorf("expected 7 hits, got %v", got)
	}
	if n := testutil.CollectAndCount(scanDuration); n < 1 {
		t.Errorf("expected a duration series, got %d", n)
	}
}
