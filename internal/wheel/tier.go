package wheel

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Tier selects the multiplier table a wheel is generated from.
// The zero value is not a valid tier.
type Tier uint8

const (
	TierEasy Tier = iota + 1
	TierMedium
)

// DefaultTier is the tier a fresh session starts with.
const DefaultTier = TierMedium

var allTiers = []Tier{TierEasy, TierMedium}

// AllTiers lists the recognized tiers in display order.
func AllTiers() []Tier {
	out := make([]Tier, len(allTiers))
	copy(out, allTiers)
	return out
}

// ParseTier maps a tier name to its Tier. Names are case-insensitive.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return TierEasy, nil
	case "medium":
		return TierMedium, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
}

func (t Tier) String() string {
	switch t {
	case TierEasy:
		return "easy"
	case TierMedium:
		return "medium"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the recognized tiers.
func (t Tier) Valid() bool {
	return t == TierEasy || t == TierMedium
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTier, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Multipliers returns a copy of the tier's full multiplier table, zero entry included.
// Repeated values are intentional: they weight the uniform draw.
func (t Tier) Multipliers() ([]float64, error) {
	var table []float64
	switch t {
	case TierEasy:
		table = []float64{0, 1.5, 1.5, 1.5, 2, 2, 2, 1.7}
	case TierMedium:
		table = []float64{0, 1.5, 1.5, 2, 2, 3, 1.7}
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidTier, uint8(t))
	}
	return table, nil
}

// Payouts returns the non-zero entries of the tier's table in table order.
func (t Tier) Payouts() ([]float64, error) {
	table, err := t.Multipliers()
	if err != nil {
		return nil, err
	}
	out := table[:0]
	for _, m := range table {
		if m != 0 {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyMultiplierTable, t)
	}
	return out, nil
}

// TierSpec describes a tier for clients building selectors and legends.
type TierSpec struct {
	Tier        Tier            `json:"tier"`
	Multipliers []float64       `json:"multipliers"`
	Payouts     []float64       `json:"payouts"`
	SegmentMean decimal.Decimal `json:"segment_mean"`
}

// Spec returns the descriptor for t.
func (t Tier) Spec() (TierSpec, error) {
	table, err := t.Multipliers()
	if err != nil {
		return TierSpec{}, err
	}
	payouts, err := t.Payouts()
	if err != nil {
		return TierSpec{}, err
	}
	return TierSpec{
		Tier:        t,
		Multipliers: table,
		Payouts:     payouts,
		SegmentMean: mean(payouts),
	}, nil
}

// ExpectedMultiplier is the mean multiplier of a uniformly random spin over a
// wheel of count segments generated for t.
func (t Tier) ExpectedMultiplier(count int) (decimal.Decimal, error) {
	if count <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrInvalidSegmentCount, count)
	}
	payouts, err := t.Payouts()
	if err != nil {
		return decimal.Zero, err
	}
	multiplierSegments := int64((count + 1) / 2)
	return mean(payouts).
		Mul(decimal.NewFromInt(multiplierSegments)).
		DivRound(decimal.NewFromInt(int64(count)), 8), nil
}

// Tiers returns the descriptor of every recognized tier.
func Tiers() []TierSpec {
	specs := make([]TierSpec, 0, len(allTiers))
	for _, t := range allTiers {
		spec, err := t.Spec()
		if err != nil {
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}

func mean(values []float64) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(values))), 8)
}
