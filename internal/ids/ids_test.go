package ids

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLengthAndAlphabet(t *testing.T) {
	g := NewSeeded(42)

	for _, n := range []int{1, 10, 15, 64} {
		id := g.Generate(n)
		require.Len(t, id, n)
		for _, r := range id {
			assert.True(t, strings.ContainsRune(alphabet, r), "unexpected symbol %q", r)
		}
	}
}

func TestGenerateNonPositive(t *testing.T) {
	g := NewSeeded(1)
	assert.Equal(t, "", g.Generate(0))
	assert.Equal(t, "", g.Generate(-3))
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	a := NewSeeded(7)
	b := NewSeeded(7)
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.Generate(20), b.Generate(20))
	}

	c := NewSeeded(8)
	assert.NotEqual(t, NewSeeded(7).Generate(20), c.Generate(20))
}

func TestSessionID(t *testing.T) {
	g := NewRandom()
	id := g.SessionID()

	assert.True(t, strings.HasPrefix(id, SessionPrefix))
	assert.Len(t, id, len(SessionPrefix)+SessionIDLength)
}

func TestGenerateConcurrent(t *testing.T) {
	g := NewRandom()
	seen := make(chan string, 200)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- g.SessionID()
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[string]struct{}{}
	for id := range seen {
		unique[id] = struct{}{}
	}
	assert.Len(t, unique, 200)
}
