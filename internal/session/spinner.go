package session

import (
	"context"
	"errors"
	"time"

	"github.com/MJE43/stake-wheel-go/internal/wheel"
)

// DefaultSpinDuration matches the wheel component's spin animation.
const DefaultSpinDuration = 800 * time.Millisecond

// SpinRequest tells the wheel component where to land.
type SpinRequest struct {
	SessionID string
	SpinID    string
	Target    int
	Segment   wheel.Segment
	StartedAt time.Time
}

// SpinOutcome is reported once the wheel has stopped.
type SpinOutcome struct {
	SpinID       string        `json:"spin_id"`
	Index        int           `json:"index"`
	Segment      wheel.Segment `json:"segment"`
	Tier         wheel.Tier    `json:"tier"`
	SegmentCount int           `json:"segment_count"`
	Nonce        *uint64       `json:"nonce,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	StoppedAt    time.Time     `json:"stopped_at"`
}

// Spinner is the external wheel component contract: it accepts a spin toward
// a target index and calls onComplete exactly once when it stops, unless ctx
// is cancelled first.
type Spinner interface {
	StartSpin(ctx context.Context, req SpinRequest, onComplete func(SpinOutcome)) error
}

var errNilCallback = errors.New("spinner: nil completion callback")

// TimerSpinner stops the wheel after a fixed duration.
type TimerSpinner struct {
	Duration time.Duration
}

// NewTimerSpinner returns a spinner that stops after d, or after
// DefaultSpinDuration when d is not positive.
func NewTimerSpinner(d time.Duration) *TimerSpinner {
	if d <= 0 {
		d = DefaultSpinDuration
	}
	return &TimerSpinner{Duration: d}
}

// StartSpin arms the timer and returns at once. onComplete runs on the timer
// goroutine unless ctx is cancelled before the wheel stops.
func (t *TimerSpinner) StartSpin(ctx context.Context, req SpinRequest, onComplete func(SpinOutcome)) error {
	if onComplete == nil {
		return errNilCallback
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	go func() {
		timer := time.NewTimer(t.Duration)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case at := <-timer.C:
			onComplete(outcomeFor(req, at))
		}
	}()
	return nil
}

// ManualSpinner leaves completion to the client, which reports the stop
// through Session.Complete.
type ManualSpinner struct{}

func (ManualSpinner) StartSpin(ctx context.Context, _ SpinRequest, onComplete func(SpinOutcome)) error {
	if onComplete == nil {
		return errNilCallback
	}
	return ctx.Err()
}

func outcomeFor(req SpinRequest, at time.Time) SpinOutcome {
	return SpinOutcome{
		SpinID:    req.SpinID,
		Index:     req.Target,
		Segment:   req.Segment,
		StartedAt: req.StartedAt,
		StoppedAt: at,
	}
}
