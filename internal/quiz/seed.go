package quiz

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// Linear congruential recurrence parameters. The sequence is fully determined
// by the seed, so a learner's quiz can be rebuilt without storing it.
const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

// Next advances seed once and returns a value in [0, 1) with the next seed.
func Next(seed int64) (float64, int64) {
	next := (seed*lcgMultiplier + lcgIncrement) % lcgModulus
	if next < 0 {
		next += lcgModulus
	}
	return float64(next) / lcgModulus, next
}

// NextInt returns floor(value*max) for the next value in the sequence.
func NextInt(seed int64, max int) (int, int64) {
	v, next := Next(seed)
	return int(v * float64(max)), next
}

// Generator walks the sequence for one seed. It holds no shared state; create
// one per randomization.
type Generator struct {
	seed int64
}

// NewGenerator creates a generator starting at seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{seed: seed}
}

// Float64 returns the next value in [0, 1).
func (g *Generator) Float64() float64 {
	v, next := Next(g.seed)
	g.seed = next
	return v
}

// Intn returns the next integer in [0, n).
func (g *Generator) Intn(n int) int {
	i, next := NextInt(g.seed, n)
	g.seed = next
	return i
}

// Seed returns the current seed.
func (g *Generator) Seed() int64 {
	return g.seed
}

// HashSeed derives an initial seed from identifying strings. Parts are joined
// with ":" and folded with hash*31 + code over UTF-16 code units, wrapped to
// 32 bits. The result is the absolute value, so it is never negative.
func HashSeed(parts ...string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(strings.Join(parts, ":"))) {
		h = h*31 + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// AttemptSeed is the base seed for one learner's attempt at a quiz.
func AttemptSeed(learnerID, quizID string, attempt int) int64 {
	return HashSeed(learnerID, quizID, strconv.Itoa(attempt))
}

// shuffle is an in-place Fisher-Yates shuffle driven by gen.
func shuffle[T any](items []T, gen *Generator) {
	for i := len(items) - 1; i > 0; i-- {
		j := gen.Intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}
