// Command wheel-debug replays provably-fair wheel spins for a seed pair and
// prints the generated wheels with their winning segments.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/MJE43/stake-wheel-go/internal/engine"
	"github.com/MJE43/stake-wheel-go/internal/wheel"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	var (
		serverSeed = flag.String("server", "e48cce04b6eb5ea077f2cb1f94add672d18bf2673a5fdacd17457463cd82e495", "server seed")
		clientSeed = flag.String("client", "56e27fed-ece3-4279-ab56-96f71fe9b2ee", "client seed")
		nonce      = flag.Uint64("nonce", 0, "first nonce to replay")
		count      = flag.Int("segments", wheel.DefaultSegmentCount, "segment count")
		tierName   = flag.String("tier", wheel.DefaultTier.String(), "tier: easy or medium")
		spins      = flag.Int("n", 1, "number of consecutive nonces to replay")
		asJSON     = flag.Bool("json", false, "print outcomes as JSON")
	)
	flag.Parse()

	tier, err := wheel.ParseTier(*tierName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	seeds := engine.Seeds{Server: *serverSeed, Client: *clientSeed}

	fmt.Printf("Server seed hash: %s\n", engine.HashServerSeed(seeds.Server))
	fmt.Printf("Client seed:      %s\n", seeds.Client)
	fmt.Printf("Tier: %s  Segments: %d\n\n", tier, *count)

	for i := 0; i < *spins; i++ {
		n := *nonce + uint64(i)
		out, err := wheel.Replay(seeds, n, *count, tier)
		if err != nil {
			fmt.Fprintf(os.Stderr, "nonce %d: %v\n", n, err)
			os.Exit(1)
		}
		if *asJSON {
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Println(string(data))
			continue
		}
		printOutcome(out)
	}
}

func printOutcome(out wheel.Outcome) {
	labels := make([]string, out.Wheel.Len())
	for i, s := range out.Wheel.Segments {
		labels[i] = fmt.Sprintf("%s/%s", s.Label, s.Color.Name())
		if i == out.Index {
			labels[i] = "[" + labels[i] + "]"
		}
	}
	valid := "ok"
	if err := out.Wheel.Validate(); err != nil {
		valid = err.Error()
	}
	fmt.Printf("Nonce %d: index %d -> %s (%s), %d draws, wheel %s\n",
		out.Nonce, out.Index, out.Segment.Label, out.Segment.Color.Name(), out.Draws, valid)
	fmt.Printf("  %s\n", strings.Join(labels, " "))
}
