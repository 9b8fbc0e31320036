package wheel

import (
	"fmt"

	"github.com/MJE43/stake-wheel-go/internal/engine"
)

// PickWinningIndex draws the segment a spin lands on, uniformly in [0, length).
func PickWinningIndex(length int, src engine.Source) (int, error) {
	if length <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidLength, length)
	}
	if src == nil {
		src = engine.Default()
	}
	return src.IntN(length), nil
}
