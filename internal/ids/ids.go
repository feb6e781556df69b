package ids

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// SessionPrefix marks identifiers minted for tracking sessions.
const SessionPrefix = "sid_"

// SessionIDLength is the number of random symbols after SessionPrefix.
const SessionIDLength = 15

// Generator produces random alphanumeric identifiers. It is not meant for
// secrets. Safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Generator drawing from src.
func New(src rand.Source) *Generator {
	return &Generator{rnd: rand.New(src)}
}

// NewSeeded returns a deterministic Generator, mostly for tests.
func NewSeeded(seed uint64) *Generator {
	return New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewRandom returns a Generator seeded from the clock.
func NewRandom() *Generator {
	now := uint64(time.Now().UnixNano())
	return New(rand.NewPCG(now, rand.Uint64()))
}

// Generate returns n symbols drawn uniformly from [A-Za-z0-9].
// n <= 0 yields the empty string.
func (g *Generator) Generate(n int) string {
	if n <= 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(n)

	g.mu.Lock()
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[g.rnd.IntN(len(alphabet))])
	}
	g.mu.Unlock()

	return b.String()
}

// SessionID returns a new "sid_"-prefixed session identifier.
func (g *Generator) SessionID() string {
	return SessionPrefix + g.Generate(SessionIDLength)
}
