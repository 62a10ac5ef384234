package crdt

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yoga07/safe-farming/types/farming"
)

func randomGCounter(r *rand.Rand) *GCounter {
	g := NewGCounter()
	for i := 0; i < r.Intn(5); i++ {
		replica := farming.ReplicaID(fmt.Sprintf("r%d", r.Intn(4)))
		_ = g.Increment(replica, uint64(r.Intn(1000)))
	}
	return g
}

func randomPNCounter(r *rand.Rand) *PNCounter {
	return &PNCounter{Credited: randomGCounter(r), Debited: randomGCounter(r)}
}

func mergedG(a, b *GCounter) *GCounter {
	out := a.Clone()
	out.Merge(b)
	return out
}

func mergedPN(a, b *PNCounter) *PNCounter {
	out := a.Clone()
	out.Merge(b)
	return out
}

func TestGCounterSemilattice(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		a, b, c := randomGCounter(r), randomGCounter(r), randomGCounter(r)

		assert.True(t, mergedG(a, b).Equal(mergedG(b, a)), "commutative")
		assert.True(
			t,
			mergedG(mergedG(a, b), c).Equal(mergedG(a, mergedG(b, c))),
			"associative",
		)
		assert.True(t, mergedG(a, a).Equal(a), "idempotent")

		// merge never loses increments
		m := mergedG(a, b)
		assert.GreaterOrEqual(t, m.Value(), a.Value())
		assert.GreaterOrEqual(t, m.Value(), b.Value())
	}
}

func TestPNCounterSemilattice(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		a, b, c := randomPNCounter(r), randomPNCounter(r), randomPNCounter(r)

		assert.True(t, mergedPN(a, b).Equal(mergedPN(b, a)))
		assert.True(t, mergedPN(mergedPN(a, b), c).Equal(mergedPN(a, mergedPN(b, c))))
		assert.True(t, mergedPN(a, a).Equal(a))
	}
}

func TestGCounterIncrementOwnSlot(t *testing.T) {
	g := NewGCounter()
	require.NoError(t, g.Increment("a", 5))
	require.NoError(t, g.Increment("a", 3))
	require.NoError(t, g.Increment("b", 2))

	assert.Equal(t, uint64(8), g.Get("a"))
	assert.Equal(t, uint64(2), g.Get("b"))
	assert.Equal(t, uint64(10), g.Value())
	assert.Equal(t, []farming.ReplicaID{"a", "b"}, g.Replicas())
}

func TestGCounterOverflow(t *testing.T) {
	g := NewGCounter()
	require.NoError(t, g.Increment("a", math.MaxUint64-1))
	err := g.Increment("a", 2)
	assert.True(t, errors.Is(err, farming.ErrExcessiveValue))
	assert.Equal(t, uint64(math.MaxUint64-1), g.Get("a"))

	require.NoError(t, g.Increment("b", 10))
	assert.Equal(t, uint64(math.MaxUint64), g.Value())
}

func TestPNCounterValueClampsAtZero(t *testing.T) {
	p := NewPNCounter()
	require.NoError(t, p.Credit("a", 10))
	require.NoError(t, p.Debit("b", 15))
	assert.Equal(t, uint64(0), p.Value())

	require.NoError(t, p.Credit("b", 20))
	assert.Equal(t, uint64(15), p.Value())
}

func TestPNCounterDebitPerKeyIsIdempotent(t *testing.T) {
	a := NewPNCounter()
	require.NoError(t, a.Credit("r1", 100))
	b := a.Clone()

	require.NoError(t, a.Debit("R1/1", 30))
	require.NoError(t, a.Debit("R1/1", 30))
	require.NoError(t, b.Debit("R1/1", 30))
	assert.Equal(t, uint64(70), a.Value())

	a.Merge(b)
	assert.Equal(t, uint64(70), a.Value())
	assert.True(t, a.Equal(b))

	require.NoError(t, b.Debit("R1/2", 20))
	a.Merge(b)
	assert.Equal(t, uint64(50), a.Value())
}

func TestZeroIncrementLeavesNoSlot(t *testing.T) {
	empty, err := NewGCounter().ToCanonicalBytes()
	require.NoError(t, err)

	g := NewGCounter()
	require.NoError(t, g.Increment("a", 0))
	assert.Empty(t, g.Replicas())
	data, err := g.ToCanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t, empty, data)

	// Equal states encode to equal bytes however they were reached.
	x := NewGCounter()
	require.NoError(t, x.Increment("a", 5))
	require.NoError(t, x.Increment("b", 0))
	y := NewGCounter()
	require.NoError(t, y.Increment("a", 5))
	assert.True(t, x.Equal(y))
	xb, err := x.ToCanonicalBytes()
	require.NoError(t, err)
	yb, err := y.ToCanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t, xb, yb)
}

func TestCounterSerialization(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	p := randomPNCounter(r)
	require.NoError(t, p.Credit("x", 42))

	data, err := p.ToCanonicalBytes()
	require.NoError(t, err)

	decoded := NewPNCounter()
	require.NoError(t, decoded.FromCanonicalBytes(data))
	assert.True(t, p.Equal(decoded))

	again, err := decoded.ToCanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t, data, again, "encoding is deterministic")

	assert.Error(t, NewGCounter().FromCanonicalBytes(data))
}

func TestGSet(t *testing.T) {
	a := NewGSet[string]()
	assert.True(t, a.Add("x"))
	assert.False(t, a.Add("x"))

	b := NewGSet[string]()
	b.Add("y")

	a.Merge(b)
	assert.True(t, a.Has("x"))
	assert.True(t, a.Has("y"))
	assert.Equal(t, 2, a.Len())

	c := a.Clone()
	c.Merge(a)
	assert.True(t, c.Equal(a))
	assert.ElementsMatch(t, []string{"x", "y"}, c.Items())
}
