package wheel

import (
	"fmt"

	"github.com/MJE43/stake-wheel-go/internal/engine"
)

// Generate builds a wheel of count segments for tier.
//
// Even indices carry a multiplier drawn from the tier's non-zero entries and an
// accent color (two draws, multiplier first); odd indices are neutral. A second
// pass walks the even indices from 2 upwards and redraws the color of each one
// while it matches the previous multiplier segment. The last even index is also
// kept distinct from index 0, its neighbour across the wrap.
//
// A nil src uses engine.Default(). Output is a pure function of
// (count, tier, draws of src).
func Generate(count int, tier Tier, src engine.Source) (Wheel, error) {
	if count <= 0 {
		return Wheel{}, fmt.Errorf("%w: got %d", ErrInvalidSegmentCount, count)
	}
	payouts, err := tier.Payouts()
	if err != nil {
		return Wheel{}, err
	}
	if src == nil {
		src = engine.Default()
	}

	segments := make([]Segment, count)
	for i := range segments {
		if i%2 != 0 {
			segments[i] = newSegment(0, NeutralColor)
			continue
		}
		multiplier := payouts[src.IntN(len(payouts))]
		segments[i] = newSegment(multiplier, drawAccent(src))
	}

	last := lastEven(count)
	for i := 2; i <= last; i += 2 {
		prev := (i - 2 + count) % count
		for segments[i].Color == segments[prev].Color || wrapConflict(segments, i, last) {
			segments[i].Color = drawAccent(src)
		}
	}

	return Wheel{Tier: tier, Segments: segments}, nil
}

// MustGenerate is Generate for static inputs known to be valid.
func MustGenerate(count int, tier Tier, src engine.Source) Wheel {
	w, err := Generate(count, tier, src)
	if err != nil {
		panic(err)
	}
	return w
}

func drawAccent(src engine.Source) Color {
	return accentColors[src.IntN(len(accentColors))]
}

// wrapConflict reports whether the last multiplier segment matches index 0.
// When last == 2 index 0 is already its predecessor.
func wrapConflict(segments []Segment, i, last int) bool {
	return i == last && last > 2 && segments[i].Color == segments[0].Color
}
