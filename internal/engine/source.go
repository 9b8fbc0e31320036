package engine

import (
	crand "crypto/rand"
	"math/rand/v2"
)

// Source is the randomness consumed by wheel generation and spins.
// IntN returns a uniformly distributed value in [0, n) and panics if n <= 0.
type Source interface {
	IntN(n int) int
}

// MathSource draws from a ChaCha8 stream. It is not safe for concurrent use.
type MathSource struct {
	rng *rand.Rand
}

// NewMathSource returns a ChaCha8 backed source. A nil seed is filled from
// crypto/rand so each source starts from fresh entropy.
func NewMathSource(seed *[32]byte) *MathSource {
	var s [32]byte
	if seed != nil {
		s = *seed
	} else {
		_, _ = crand.Read(s[:])
	}
	return &MathSource{rng: rand.New(rand.NewChaCha8(s))}
}

// IntN implements Source.
func (m *MathSource) IntN(n int) int {
	return m.rng.IntN(n)
}

// globalSource wraps the runtime's goroutine-safe generator.
type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Default returns a goroutine-safe source backed by the math/rand/v2 globals.
func Default() Source { return globalSource{} }

// SeededSource turns a provably fair byte stream into bounded integers.
// Each draw consumes one float (4 bytes): floor(float * n).
type SeededSource struct {
	bg    *ByteGenerator
	draws int
}

// NewSeededSource starts a stream for seeds and nonce at cursor 0.
func NewSeededSource(seeds Seeds, nonce uint64) *SeededSource {
	return &SeededSource{bg: NewByteGenerator(seeds, nonce)}
}

// IntN implements Source.
func (s *SeededSource) IntN(n int) int {
	if n <= 0 {
		panic("engine: invalid argument to IntN")
	}
	s.draws++
	idx := int(s.bg.NextFloat() * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// Draws reports how many values have been taken from the stream.
func (s *SeededSource) Draws() int { return s.draws }
