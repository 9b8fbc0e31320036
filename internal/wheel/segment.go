package wheel

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SegmentCounts are the sizes offered by the segment selector.
var SegmentCounts = []int{10, 20, 30, 40, 50}

// DefaultSegmentCount is the size a fresh session starts with.
const DefaultSegmentCount = 30

// Segment is one wedge of the wheel.
type Segment struct {
	Label      string  `json:"label"`
	Multiplier float64 `json:"multiplier"`
	Color      Color   `json:"color"`
}

// Neutral reports whether s is a zero-multiplier segment.
func (s Segment) Neutral() bool { return s.Multiplier == 0 }

func newSegment(multiplier float64, color Color) Segment {
	return Segment{Label: FormatLabel(multiplier), Multiplier: multiplier, Color: color}
}

// FormatLabel renders a multiplier the way the wheel shows it: "1.5x", "2x", "0x".
func FormatLabel(multiplier float64) string {
	return decimal.NewFromFloat(multiplier).String() + "x"
}

// Wheel is a generated segment list. A Wheel is never mutated after
// generation; regenerating produces a new value.
type Wheel struct {
	Tier     Tier      `json:"tier"`
	Segments []Segment `json:"segments"`
}

// Len returns the number of segments.
func (w Wheel) Len() int { return len(w.Segments) }

// At returns the segment at index i.
func (w Wheel) At(i int) (Segment, error) {
	if i < 0 || i >= len(w.Segments) {
		return Segment{}, fmt.Errorf("%w: index %d outside wheel of %d segments", ErrInvalidArgument, i, len(w.Segments))
	}
	return w.Segments[i], nil
}

// Clone returns a deep copy so callers can hand the wheel out without sharing
// the backing array.
func (w Wheel) Clone() Wheel {
	segs := make([]Segment, len(w.Segments))
	copy(segs, w.Segments)
	return Wheel{Tier: w.Tier, Segments: segs}
}

// ComponentSegment is the record shape consumed by the browser wheel component.
type ComponentSegment struct {
	Option string         `json:"option"`
	Style  ComponentStyle `json:"style"`
}

// ComponentStyle carries the per-segment style of ComponentSegment.
type ComponentStyle struct {
	BackgroundColor Color `json:"backgroundColor"`
}

// ComponentData converts the wheel into the data array of the rendering component.
func (w Wheel) ComponentData() []ComponentSegment {
	out := make([]ComponentSegment, len(w.Segments))
	for i, s := range w.Segments {
		out[i] = ComponentSegment{Option: s.Label, Style: ComponentStyle{BackgroundColor: s.Color}}
	}
	return out
}

// Stats summarises a wheel.
type Stats struct {
	Segments           int             `json:"segments"`
	MultiplierSegments int             `json:"multiplier_segments"`
	MeanMultiplier     decimal.Decimal `json:"mean_multiplier"`
	MaxMultiplier      float64         `json:"max_multiplier"`
	ColorCounts        map[Color]int   `json:"color_counts"`
}

// Stats computes segment counts and the expected multiplier of a uniform spin.
func (w Wheel) Stats() Stats {
	st := Stats{Segments: len(w.Segments), ColorCounts: make(map[Color]int)}
	values := make([]float64, len(w.Segments))
	for i, s := range w.Segments {
		values[i] = s.Multiplier
		st.ColorCounts[s.Color]++
		if !s.Neutral() {
			st.MultiplierSegments++
		}
		if s.Multiplier > st.MaxMultiplier {
			st.MaxMultiplier = s.Multiplier
		}
	}
	st.MeanMultiplier = mean(values)
	return st
}

// Validate checks the wheel invariants: parity of multiplier and neutral
// segments, palette membership, the multiplier domain of w.Tier, and that
// cyclically adjacent multiplier segments differ in color.
func (w Wheel) Validate() error {
	payouts, err := w.Tier.Payouts()
	if err != nil {
		return err
	}
	allowed := make(map[float64]bool, len(payouts))
	for _, p := range payouts {
		allowed[p] = true
	}

	n := len(w.Segments)
	if n == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalidWheel)
	}
	for i, s := range w.Segments {
		if i%2 == 1 {
			if s.Multiplier != 0 || s.Color != NeutralColor {
				return fmt.Errorf("%w: segment %d must be neutral, got %s %s", ErrInvalidWheel, i, s.Label, s.Color)
			}
			continue
		}
		if !allowed[s.Multiplier] {
			return fmt.Errorf("%w: segment %d multiplier %v not in %s table", ErrInvalidWheel, i, s.Multiplier, w.Tier)
		}
		if !s.Color.IsAccent() {
			return fmt.Errorf("%w: segment %d color %s is not an accent", ErrInvalidWheel, i, s.Color)
		}
		if s.Label != FormatLabel(s.Multiplier) {
			return fmt.Errorf("%w: segment %d label %q does not match multiplier", ErrInvalidWheel, i, s.Label)
		}
	}

	last := lastEven(n)
	if last == 0 {
		return nil
	}
	for i := 0; i <= last; i += 2 {
		prev := i - 2
		if i == 0 {
			prev = last
		}
		if w.Segments[i].Color == w.Segments[prev].Color {
			return fmt.Errorf("%w: segments %d and %d share color %s", ErrInvalidWheel, prev, i, w.Segments[i].Color)
		}
	}
	return nil
}

// lastEven returns the largest even index of a wheel with n segments.
func lastEven(n int) int {
	if n <= 0 {
		return -1
	}
	return (n - 1) &^ 1
}
