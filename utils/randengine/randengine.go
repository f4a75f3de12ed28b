// Package randengine wraps golang.org/x/exp/rand behind a single stream so
// every draw the simulation makes — spawn-accept ordering, cut-in
// Bernoulli trials, random depart pos/speed, teleport checks, speedDev
// jitter — comes from one seeded, process-local source in a fixed call
// order (SPEC_FULL.md §5 Determinism).
package randengine

import (
	"flag"
	"log"
	"sync"

	"golang.org/x/exp/rand"
)

var seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset")

// Engine is a seeded RNG stream. The embedded *rand.Rand is not safe for
// concurrent use; the *Safe methods take an internal mutex for the rare
// caller that needs cross-goroutine draws (one-time road-map setup only —
// per-tick decision logic is single-threaded per §5 and must use the plain
// methods so draw order stays deterministic).
type Engine struct {
	*rand.Rand
	mtx sync.Mutex
}

// New creates an Engine seeded by seed (offset by the optional
// -rand.seed_offset flag, which lets a deployment nudge the stream without
// touching scenario configs).
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// DiscreteDistribution draws an index in [0, len(weight)) with probability
// proportional to weight[i]. Not safe for concurrent use.
func (e *Engine) DiscreteDistribution(weight []float64) int32 {
	total := .0
	for _, w := range weight {
		total += w
	}
	draw := total * e.Float64()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > draw {
			return int32(i)
		}
	}
	log.Panicf("randengine: DiscreteDistribution: sum=%f draw=%f", sum, draw)
	return -1
}

// PTrue returns true with probability p. Not safe for concurrent use.
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// PTrueSafe is the concurrency-safe variant of PTrue.
func (e *Engine) PTrueSafe(p float64) bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Float64() < p
}

// IntnSafe is the concurrency-safe variant of Intn.
func (e *Engine) IntnSafe(n int) int {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Intn(n)
}

// Float64Safe is the concurrency-safe variant of Float64.
func (e *Engine) Float64Safe() float64 {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Float64()
}

// DiscreteDistributionSafe is the concurrency-safe variant of
// DiscreteDistribution.
func (e *Engine) DiscreteDistributionSafe(weight []float64) int32 {
	total := .0
	for _, w := range weight {
		total += w
	}
	draw := total * e.Float64Safe()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > draw {
			return int32(i)
		}
	}
	return int32(len(weight))
}
