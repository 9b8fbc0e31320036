package wheel

import (
	"fmt"

	"github.com/MJE43/stake-wheel-go/internal/engine"
)

// Outcome is a fully reproducible spin: the wheel generated from the seeded
// stream and the index the same stream then picked.
type Outcome struct {
	ServerSeedHash string  `json:"server_seed_hash"`
	ClientSeed     string  `json:"client_seed"`
	Nonce          uint64  `json:"nonce"`
	Wheel          Wheel   `json:"wheel"`
	Index          int     `json:"index"`
	Segment        Segment `json:"segment"`
	Draws          int     `json:"draws"`
}

// Metric returns the winning multiplier.
func (o Outcome) Metric() float64 { return o.Segment.Multiplier }

// Replay regenerates the wheel and winning index for seeds and nonce. Wheel
// generation consumes the stream first, the spin takes the next draw.
func Replay(seeds engine.Seeds, nonce uint64, count int, tier Tier) (Outcome, error) {
	src := engine.NewSeededSource(seeds, nonce)

	w, err := Generate(count, tier, src)
	if err != nil {
		return Outcome{}, err
	}
	idx, err := PickWinningIndex(w.Len(), src)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		ServerSeedHash: engine.HashServerSeed(seeds.Server),
		ClientSeed:     seeds.Client,
		Nonce:          nonce,
		Wheel:          w,
		Index:          idx,
		Segment:        w.Segments[idx],
		Draws:          src.Draws(),
	}, nil
}

// EvaluateMetric is Replay reduced to the winning multiplier, used by scans.
func EvaluateMetric(seeds engine.Seeds, nonce uint64, count int, tier Tier) (float64, error) {
	o, err := Replay(seeds, nonce, count, tier)
	if err != nil {
		return 0, fmt.Errorf("replay nonce %d: %w", nonce, err)
	}
	return o.Metric(), nil
}
