package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"strconv"
)

// ByteGenerator expands a seed pair and nonce into an unbounded byte stream.
// Round r is HMAC-SHA256(server, "client:nonce:r"); rounds are read in order.
type ByteGenerator struct {
	mac    hash.Hash
	prefix []byte
	round  uint64
	pos    int
	block  [sha256.Size]byte
}

// NewByteGenerator positions the stream at the first byte of round 0.
func NewByteGenerator(seeds Seeds, nonce uint64) *ByteGenerator {
	prefix := make([]byte, 0, len(seeds.Client)+24)
	prefix = append(prefix, seeds.Client...)
	prefix = append(prefix, ':')
	prefix = strconv.AppendUint(prefix, nonce, 10)
	prefix = append(prefix, ':')

	g := &ByteGenerator{
		mac:    hmac.New(sha256.New, []byte(seeds.Server)),
		prefix: prefix,
	}
	g.fill()
	return g
}

func (g *ByteGenerator) fill() {
	g.mac.Reset()
	g.mac.Write(g.prefix)
	g.mac.Write(strconv.AppendUint(nil, g.round, 10))
	g.mac.Sum(g.block[:0])
	g.pos = 0
}

// Next returns the next byte, rolling over to a new round when the current
// block is used up.
func (g *ByteGenerator) Next() byte {
	if g.pos == len(g.block) {
		g.round++
		g.fill()
	}
	b := g.block[g.pos]
	g.pos++
	return b
}

// NextFloat reads four bytes as a big-endian fraction in [0, 1).
func (g *ByteGenerator) NextFloat() float64 {
	var buf [4]byte
	for i := range buf {
		buf[i] = g.Next()
	}
	return unitFloat(buf)
}

func unitFloat(b [4]byte) float64 {
	return float64(binary.BigEndian.Uint32(b[:])) / (1 << 32)
}
